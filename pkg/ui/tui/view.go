package tui

import (
	"fmt"
	"strings"
	"time"

	"kptnexport/pkg/ui"

	"github.com/charmbracelet/lipgloss"
)

// View renders the entire TUI
func (m *Model) View() string {
	m.mu.RLock()
	width, height, showHelp := m.width, m.height, m.showHelp
	m.mu.RUnlock()

	if width == 0 || height == 0 {
		return "Initializing..."
	}

	sections := []string{m.renderLogo(width)}

	colWidth := (width - 4) / 2
	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsPanel(colWidth),
		m.renderActivePanel(colWidth),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.renderStagesPanel(colWidth),
		m.renderLogsPanel(colWidth, height),
	)
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right))

	if showHelp {
		sections = append(sections, m.renderHelp(width))
	} else {
		sections = append(sections, helpStyle.Render("Press ? for help"))
	}

	return baseStyle.Width(width).Height(height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *Model) renderLogo(width int) string {
	return logoStyle.Width(width).Render(strings.Trim(ui.ASCIILogo, "\n"))
}

// renderStatsPanel shows the current stage with an overall bar
func (m *Model) renderStatsPanel(width int) string {
	title := titleStyle.Render(" EXPORT ")

	stage, s := m.CurrentStage()
	if stage == "" {
		stage = "starting"
	}

	m.mu.RLock()
	elapsed := time.Since(m.sessionStartTime)
	paused, finished, summary := m.isPaused, m.finished, m.summary
	spin := m.spinner.View()
	bar := m.progress
	m.mu.RUnlock()

	bar.Width = width - 8
	if bar.Width < 10 {
		bar.Width = 10
	}

	header := spin + " " + statsValueStyle.Render(stage)
	if finished {
		header = successStyle.Render("✓ done")
	}

	stats := []string{
		header,
		bar.ViewAs(m.Fraction()),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Progress:"), statsValueStyle.Render(fmt.Sprintf("%d/%d", s.Finished(), s.Total))),
		fmt.Sprintf("%s %s", statsLabelStyle.Render("Elapsed:"), statsValueStyle.Render(formatDuration(elapsed))),
	}
	if s.Bytes > 0 {
		stats = append(stats, fmt.Sprintf("%s %s", statsLabelStyle.Render("Downloaded:"), speedStyle.Render(ui.FormatBytes(s.Bytes))))
	}
	if s.Failed > 0 {
		stats = append(stats, errorStyle.Render(fmt.Sprintf("%d failed", s.Failed)))
	}
	if paused {
		stats = append(stats, warningStyle.Render("⏸  PAUSED"))
	}
	if finished && summary != "" {
		stats = append(stats, "", successStyle.Render(summary), helpStyle.Render("Press q to exit"))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, stats...)),
	)
}

// renderActivePanel lists in-progress items and the latest finished ones
func (m *Model) renderActivePanel(width int) string {
	title := titleStyle.Render(" IN PROGRESS ")

	active := m.ItemsByState(ItemActive)
	completed := m.ItemsByState(ItemCompleted)
	failed := m.ItemsByState(ItemFailed)

	var lines []string
	if len(active) == 0 {
		lines = append(lines, lipgloss.NewStyle().Foreground(dimWhite).Render("Nothing in progress"))
	}
	for i, item := range active {
		if i == 5 {
			lines = append(lines, queueItemStyle.Render(fmt.Sprintf("... and %d more", len(active)-5)))
			break
		}
		lines = append(lines, queueItemActiveStyle.Render("▸ "+truncate(item.Label, width-8)))
	}

	if len(completed) > 0 {
		lines = append(lines, "", successStyle.Render(fmt.Sprintf("✓ %d completed", len(completed))))
		start := len(completed) - 3
		if start < 0 {
			start = 0
		}
		for _, item := range completed[start:] {
			lines = append(lines, queueItemCompletedStyle.Render("✓ "+truncate(item.Label, width-8)))
		}
	}
	if len(failed) > 0 {
		lines = append(lines, "", errorStyle.Render(fmt.Sprintf("✗ %d failed", len(failed))))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, lines...)),
	)
}

// renderStagesPanel shows one line per stage seen so far
func (m *Model) renderStagesPanel(width int) string {
	title := titleStyle.Render(" STAGES ")

	current, _ := m.CurrentStage()
	var lines []string
	for _, line := range m.StageHistory() {
		pct := 100.0
		if line.Stats.Total > 0 {
			pct = float64(line.Stats.Finished()) / float64(line.Stats.Total) * 100
		}
		style := GetProgressBarStyle(pct)
		marker := "  "
		if line.Name == current {
			marker = "▸ "
		}
		text := fmt.Sprintf("%s%-10s %s %d/%d", marker, line.Name, ui.RenderBar(line.Stats.Finished(), line.Stats.Total, 12), line.Stats.Finished(), line.Stats.Total)
		if line.Stats.Failed > 0 {
			text += fmt.Sprintf(" (%d failed)", line.Stats.Failed)
		}
		lines = append(lines, style.Render(text))
	}
	if len(lines) == 0 {
		lines = append(lines, lipgloss.NewStyle().Foreground(dimWhite).Render("Waiting..."))
	}

	return panelStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")),
	)
}

// renderLogsPanel renders the logs panel
func (m *Model) renderLogsPanel(width, height int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	title := titleStyle.Render(" LOG ")

	start := len(m.logMessages) - 10
	if start < 0 {
		start = 0
	}

	var logs []string
	for _, log := range m.logMessages[start:] {
		timestamp := logTimestampStyle.Render(log.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(log.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", log.Level))
		message := logMessageStyle.Render(truncate(log.Message, width-25))
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, message))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = lipgloss.NewStyle().Foreground(dimWhite).Render("No logs yet...")
	}

	logsHeight := height - 30
	if logsHeight < 5 {
		logsHeight = 5
	}

	return panelStyle.Width(width).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

// renderHelp renders the help panel
func (m *Model) renderHelp(width int) string {
	help := `
  Keys:
    q/Q      - Quit (cancels the export)
    p/P      - Pause/Resume before the next recipe
    ctrl+l   - Clear the log
    ?        - Toggle this help

  Status Indicators:
    ` + successStyle.Render("Green") + `    - Completed
    ` + warningStyle.Render("Orange") + `   - Paused/Warning
    ` + errorStyle.Render("Red") + `      - Failed
`
	return panelStyle.Width(width).Render(help)
}

func truncate(s string, max int) string {
	if max < 4 {
		max = 4
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

// formatDuration formats a duration as a clock
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
