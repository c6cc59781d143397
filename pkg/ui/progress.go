package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	ProgressBar   = "━"
	ProgressEmpty = "─"
)

// StageStats counts the items of one export stage
type StageStats struct {
	Total  int
	Done   int
	Failed int
	Bytes  int64
}

// Finished is the number of items that completed either way
func (s StageStats) Finished() int {
	return s.Done + s.Failed
}

// StatusTracker keeps per-stage counters for an export run
type StatusTracker struct {
	mu        sync.Mutex
	current   string
	stages    map[string]*StageStats
	order     []string
	StartTime time.Time
}

// NewStatusTracker creates a new status tracker
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		stages:    make(map[string]*StageStats),
		StartTime: time.Now(),
	}
}

// SetStage makes stage current, resetting its counters
func (st *StatusTracker) SetStage(stage string, total int) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.stages[stage]; !ok {
		st.order = append(st.order, stage)
	}
	st.stages[stage] = &StageStats{Total: total}
	st.current = stage
}

// Complete counts a finished item of the current stage
func (st *StatusTracker) Complete(size int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s := st.stages[st.current]; s != nil {
		s.Done++
		s.Bytes += size
	}
}

// Fail counts a failed item of the current stage
func (st *StatusTracker) Fail() {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s := st.stages[st.current]; s != nil {
		s.Failed++
	}
}

// Current returns the current stage and its counters
func (st *StatusTracker) Current() (string, StageStats) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s := st.stages[st.current]; s != nil {
		return st.current, *s
	}
	return st.current, StageStats{}
}

// Stats returns the counters of stage
func (st *StatusTracker) Stats(stage string) StageStats {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s := st.stages[stage]; s != nil {
		return *s
	}
	return StageStats{}
}

// Stages lists the stages seen so far in order
func (st *StatusTracker) Stages() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]string(nil), st.order...)
}

// GetElapsedTime returns the elapsed time since tracking started
func (st *StatusTracker) GetElapsedTime() time.Duration {
	return time.Since(st.StartTime)
}

// ProgressBarString renders the current stage as a bar of width cells
func (st *StatusTracker) ProgressBarString(width int) string {
	_, s := st.Current()
	return RenderBar(s.Finished(), s.Total, width)
}

// RenderBar draws done/total as a fixed-width bar
func RenderBar(done, total, width int) string {
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, width-filled)
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// FormatBytes formats bytes in a human-readable way
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
