package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// StageMsg is sent when the export enters a new stage
type StageMsg struct {
	Stage string
	Total int
}

// ItemStartMsg is sent when an item starts
type ItemStartMsg struct {
	ID    string
	Label string
}

// ItemCompleteMsg is sent when an item completes
type ItemCompleteMsg struct {
	ID   string
	Size int64
}

// ItemErrorMsg is sent when an item fails
type ItemErrorMsg struct {
	ID    string
	Error error
}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// DoneMsg is sent once the export has finished
type DoneMsg struct {
	Summary string
}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.mu.Lock()
		m.width = msg.Width
		m.height = msg.Height
		m.mu.Unlock()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		return m, tickCmd()

	case StageMsg:
		m.SetStage(msg.Stage, msg.Total)
		return m, nil

	case ItemStartMsg:
		m.StartItem(msg.ID, msg.Label)
		return m, nil

	case ItemCompleteMsg:
		m.CompleteItem(msg.ID, msg.Size)
		return m, nil

	case ItemErrorMsg:
		m.FailItem(msg.ID, msg.Error)
		m.mu.RLock()
		label := msg.ID
		if item, ok := m.items[msg.ID]; ok {
			label = item.Label
		}
		m.mu.RUnlock()
		m.AddLogMessage("ERROR", "Failed: "+label+" - "+errorText(msg.Error))
		return m, nil

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil

	case DoneMsg:
		m.Finish(msg.Summary)
		m.AddLogMessage("SUCCESS", msg.Summary)
		return m, nil
	}

	return m, nil
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		return m, tea.Quit

	case "p", "P":
		if m.TogglePause() {
			m.AddLogMessage("WARN", "Export paused by user")
		} else {
			m.AddLogMessage("INFO", "Export resumed by user")
		}
		return m, nil

	case "?":
		m.mu.Lock()
		m.showHelp = !m.showHelp
		m.mu.Unlock()
		return m, nil

	case "ctrl+l":
		m.mu.Lock()
		m.logMessages = nil
		m.mu.Unlock()
		return m, nil
	}

	return m, nil
}

// tickCmd returns a command that sends a tick message
func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
