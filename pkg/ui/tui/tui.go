package tui

import (
	"fmt"

	"kptnexport/pkg/ui"

	tea "github.com/charmbracelet/bubbletea"
)

// TUI is the full-screen Reporter
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a new TUI instance
func NewTUI() *TUI {
	model := NewModel()
	return &TUI{
		program: tea.NewProgram(model, tea.WithAltScreen()),
		model:   model,
	}
}

// Start runs the TUI until the user quits or Stop is called
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Stop stops the TUI gracefully
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

func (t *TUI) SetStage(stage string, total int) {
	t.Send(StageMsg{Stage: stage, Total: total})
}

func (t *TUI) StartItem(id, label string) {
	t.Send(ItemStartMsg{ID: id, Label: label})
}

func (t *TUI) CompleteItem(id string, size int64) {
	t.Send(ItemCompleteMsg{ID: id, Size: size})
}

func (t *TUI) FailItem(id string, err error) {
	t.Send(ItemErrorMsg{ID: id, Error: err})
}

// Finish shows the closing summary; the TUI stays open until the user quits
func (t *TUI) Finish(summary string) {
	t.Send(DoneMsg{Summary: summary})
}

// Log sends a log message to the TUI
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (t *TUI) LogInfo(format string, args ...interface{}) {
	t.Log("INFO", format, args...)
}

func (t *TUI) LogSuccess(format string, args ...interface{}) {
	t.Log("SUCCESS", format, args...)
}

func (t *TUI) LogWarning(format string, args ...interface{}) {
	t.Log("WARN", format, args...)
}

func (t *TUI) LogError(format string, args ...interface{}) {
	t.Log("ERROR", format, args...)
}

// IsPaused returns whether the user paused the export
func (t *TUI) IsPaused() bool {
	return t.model.IsPaused()
}

var _ ui.Reporter = (*TUI)(nil)
