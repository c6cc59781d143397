package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// ProgressDisplay is the plain terminal Reporter: one rewritten status line
// per stage, or one line per item in debug mode.
type ProgressDisplay struct {
	mu      sync.Mutex
	out     io.Writer
	account string
	tracker *StatusTracker
	labels  map[string]string
	current string
	isDebug bool
	quiet   bool
}

// NewProgressDisplay creates a display writing to stdout
func NewProgressDisplay(account string, debug bool) *ProgressDisplay {
	return NewProgressDisplayTo(os.Stdout, account, debug)
}

// NewProgressDisplayTo creates a display writing to out
func NewProgressDisplayTo(out io.Writer, account string, debug bool) *ProgressDisplay {
	return &ProgressDisplay{
		out:     out,
		account: account,
		tracker: NewStatusTracker(),
		labels:  make(map[string]string),
		isDebug: debug,
		quiet:   IsQuietMode(),
	}
}

// Tracker exposes the counters behind the display
func (p *ProgressDisplay) Tracker() *StatusTracker {
	return p.tracker
}

func (p *ProgressDisplay) SetStage(stage string, total int) {
	p.tracker.SetStage(stage, total)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = ""
	p.labels = make(map[string]string)
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, "\n%s %s", Magenta("→"), stage)
	if total > 0 {
		fmt.Fprintf(p.out, " (%d)", total)
	}
	fmt.Fprintln(p.out)
}

func (p *ProgressDisplay) StartItem(id, label string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if label == "" {
		label = id
	}
	p.labels[id] = label
	p.current = label
	if !p.isDebug {
		p.printProgress()
	}
}

func (p *ProgressDisplay) CompleteItem(id string, size int64) {
	p.tracker.Complete(size)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isDebug {
		p.printLine(Green("✓"), p.label(id), FormatBytes(size))
		return
	}
	p.printProgress()
}

func (p *ProgressDisplay) FailItem(id string, err error) {
	p.tracker.Fail()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isDebug {
		p.printLine(Red("✗"), p.label(id), fmt.Sprint(err))
		return
	}
	p.printProgress()
}

func (p *ProgressDisplay) LogInfo(format string, args ...interface{}) {
	p.log(Cyan("•"), format, args...)
}

func (p *ProgressDisplay) LogSuccess(format string, args ...interface{}) {
	p.log(Green("✓"), format, args...)
}

func (p *ProgressDisplay) LogWarning(format string, args ...interface{}) {
	p.log(Yellow("⚠"), format, args...)
}

// LogError is printed even in quiet mode
func (p *ProgressDisplay) LogError(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "\n%s %s\n", Red("✗"), fmt.Sprintf(format, args...))
}

// IsPaused is always false; the plain display has no pause control
func (p *ProgressDisplay) IsPaused() bool {
	return false
}

// Complete prints the closing summary
func (p *ProgressDisplay) Complete(documents, failed int, outputDir string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	elapsed := p.tracker.GetElapsedTime()
	fmt.Fprintf(p.out, "\n\n%s Exported %d recipes", Green("✓"), documents)
	if p.account != "" {
		fmt.Fprintf(p.out, " for %s", p.account)
	}
	fmt.Fprintln(p.out)
	fmt.Fprintf(p.out, "  %s %s in %s\n", Dim("•"), outputDir, FormatDuration(elapsed))

	images := p.tracker.Stats(StageImages)
	if images.Total > 0 {
		fmt.Fprintf(p.out, "  %s %d images (%s)\n", Dim("•"), images.Done, FormatBytes(images.Bytes))
	}
	if failed > 0 {
		fmt.Fprintf(p.out, "  %s %s\n", Dim("•"), Red(fmt.Sprintf("%d recipes failed", failed)))
	}
}

func (p *ProgressDisplay) label(id string) string {
	if l, ok := p.labels[id]; ok {
		return l
	}
	return id
}

func (p *ProgressDisplay) log(symbol, format string, args ...interface{}) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "\n%s %s\n", symbol, fmt.Sprintf(format, args...))
}

func (p *ProgressDisplay) printLine(symbol, label, detail string) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, "%s %s • %s\n", symbol, label, Dim(detail))
}

// printProgress rewrites the status line of the current stage
func (p *ProgressDisplay) printProgress() {
	if p.quiet {
		return
	}
	stage, s := p.tracker.Current()

	line := fmt.Sprintf("%s [%s] %d/%d",
		Cyan(stage),
		RenderBar(s.Finished(), s.Total, 20),
		s.Finished(),
		s.Total,
	)
	if s.Bytes > 0 {
		line += " • " + FormatBytes(s.Bytes)
	}
	if p.current != "" {
		current := p.current
		if len([]rune(current)) > 40 {
			current = string([]rune(current)[:37]) + "..."
		}
		line += " • " + current
	}
	if s.Failed > 0 {
		line += " • " + Red(fmt.Sprintf("%d errors", s.Failed))
	}

	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 120), line)
}

var (
	_ Reporter = (*ProgressDisplay)(nil)
	_ Reporter = NopReporter{}
)
