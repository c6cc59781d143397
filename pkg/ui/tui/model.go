package tui

import (
	"sync"
	"time"

	"kptnexport/pkg/ui"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ItemState is the state of one tracked item
type ItemState int

const (
	ItemActive ItemState = iota
	ItemCompleted
	ItemFailed
)

// Item is a recipe, image or document being processed in the current stage
type Item struct {
	ID        string
	Label     string
	Stage     string
	State     ItemState
	Size      int64
	StartTime time.Time
	Error     error
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// Model represents the TUI model
type Model struct {
	spinner  spinner.Model
	progress progress.Model

	tracker *ui.StatusTracker
	items   map[string]*Item
	order   []string
	stage   string

	sessionStartTime time.Time
	finished         bool
	summary          string

	width          int
	height         int
	showHelp       bool
	isPaused       bool
	logMessages    []LogMessage
	maxLogMessages int

	mu sync.RWMutex
}

// NewModel creates a new TUI model
func NewModel() *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(neonCyan)

	p := progress.New(progress.WithDefaultGradient())
	p.Width = 40

	return &Model{
		spinner:          s,
		progress:         p,
		tracker:          ui.NewStatusTracker(),
		items:            make(map[string]*Item),
		sessionStartTime: time.Now(),
		maxLogMessages:   50,
	}
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// SetStage switches to a new stage and clears the item list
func (m *Model) SetStage(stage string, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tracker.SetStage(stage, total)
	m.stage = stage
	m.items = make(map[string]*Item)
	m.order = nil
}

// StartItem marks an item as in progress
func (m *Model) StartItem(id, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if label == "" {
		label = id
	}
	if _, ok := m.items[id]; !ok {
		m.order = append(m.order, id)
	}
	m.items[id] = &Item{
		ID:        id,
		Label:     label,
		Stage:     m.stage,
		State:     ItemActive,
		StartTime: time.Now(),
	}
}

// CompleteItem marks an item as done
func (m *Model) CompleteItem(id string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tracker.Complete(size)
	if item, ok := m.items[id]; ok {
		item.State = ItemCompleted
		item.Size = size
	}
}

// FailItem marks an item as failed
func (m *Model) FailItem(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tracker.Fail()
	if item, ok := m.items[id]; ok {
		item.State = ItemFailed
		item.Error = err
	}
}

// Finish records the closing summary
func (m *Model) Finish(summary string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = true
	m.summary = summary
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	color := dimWhite
	switch level {
	case "ERROR":
		color = lipgloss.Color("#FF0000")
	case "WARN":
		color = neonOrange
	case "SUCCESS":
		color = neonGreen
	case "INFO":
		color = neonCyan
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})

	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// TogglePause flips the paused flag and returns the new value
func (m *Model) TogglePause() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isPaused = !m.isPaused
	return m.isPaused
}

// IsPaused reports whether the user paused the run
func (m *Model) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isPaused
}

// ItemsByState returns the items of the current stage in state, in start order
func (m *Model) ItemsByState(state ItemState) []*Item {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Item
	for _, id := range m.order {
		if item := m.items[id]; item != nil && item.State == state {
			out = append(out, item)
		}
	}
	return out
}

// CurrentStage returns the current stage and its counters
func (m *Model) CurrentStage() (string, ui.StageStats) {
	return m.tracker.Current()
}

// StageHistory lists every stage seen with its counters
func (m *Model) StageHistory() []StageLine {
	var lines []StageLine
	for _, stage := range m.tracker.Stages() {
		lines = append(lines, StageLine{Name: stage, Stats: m.tracker.Stats(stage)})
	}
	return lines
}

// StageLine pairs a stage name with its counters
type StageLine struct {
	Name  string
	Stats ui.StageStats
}

// Fraction is the completed share of the current stage
func (m *Model) Fraction() float64 {
	_, s := m.CurrentStage()
	if s.Total <= 0 {
		return 0
	}
	f := float64(s.Finished()) / float64(s.Total)
	if f > 1 {
		f = 1
	}
	return f
}
