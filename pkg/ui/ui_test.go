package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusTracker(t *testing.T) {
	st := NewStatusTracker()

	st.SetStage(StageImages, 4)
	st.Complete(100)
	st.Complete(50)
	st.Fail()

	stage, s := st.Current()
	assert.Equal(t, StageImages, stage)
	assert.Equal(t, StageStats{Total: 4, Done: 2, Failed: 1, Bytes: 150}, s)
	assert.Equal(t, 3, s.Finished())

	st.SetStage(StageRender, 2)
	st.Complete(0)
	assert.Equal(t, 1, st.Stats(StageRender).Done)
	assert.Equal(t, 2, st.Stats(StageImages).Done, "earlier stage keeps its counters")
	assert.Equal(t, []string{StageImages, StageRender}, st.Stages())
	assert.Equal(t, StageStats{}, st.Stats("unknown"))
}

func TestRenderBar(t *testing.T) {
	tests := []struct {
		done, total int
		want        string
	}{
		{0, 4, "────"},
		{2, 4, "━━──"},
		{4, 4, "━━━━"},
		{9, 4, "━━━━"},
		{1, 0, "────"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RenderBar(tt.done, tt.total, 4))
	}
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2<<20))

	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "2m5s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h30m", FormatDuration(90*time.Minute))
}

func TestProgressDisplay(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressDisplayTo(&buf, "cook@example.com", false)

	p.SetStage(StageRender, 2)
	p.StartItem("a", "Ofen-Gnocchi")
	p.CompleteItem("a", 2048)
	p.StartItem("b", "Salat")
	p.FailItem("b", errors.New("boom"))
	p.LogWarning("skipped %d images", 3)
	p.Complete(1, 1, "export")

	out := buf.String()
	assert.Contains(t, out, "documents (2)")
	assert.Contains(t, out, "2/2")
	assert.Contains(t, out, "Salat")
	assert.Contains(t, out, "1 errors")
	assert.Contains(t, out, "skipped 3 images")
	assert.Contains(t, out, "Exported 1 recipes for cook@example.com")
	assert.Contains(t, out, "1 recipes failed")
	assert.False(t, p.IsPaused())
}

func TestProgressDisplayDebug(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressDisplayTo(&buf, "", true)

	p.SetStage(StageImages, 1)
	p.StartItem("img-1", "step01.jpg")
	p.FailItem("img-1", errors.New("HTTP 404"))

	assert.Contains(t, buf.String(), "step01.jpg")
	assert.Contains(t, buf.String(), "HTTP 404")
}

func TestQuietMode(t *testing.T) {
	SetQuietMode(true)
	defer SetQuietMode(false)

	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	p := NewProgressDisplayTo(&buf, "", false)
	p.SetStage(StageLoad, 3)
	p.LogInfo("hidden")
	PrintInfo("Label", "hidden")
	assert.Empty(t, buf.String())

	p.LogError("shown %s", "anyway")
	PrintError("also shown")
	assert.Contains(t, buf.String(), "shown anyway")
	assert.Contains(t, buf.String(), "also shown")
}

type recordingSender struct {
	titles []string
}

func (r *recordingSender) Send(title, message string) error {
	r.titles = append(r.titles, title)
	return nil
}

func TestNotifier(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)

	sender := &recordingSender{}
	n := NewNotifierWithSender(sender)
	n.SendSuccess("Export complete", "12 recipes")
	n.SendError("Export failed", "login rejected")

	assert.Equal(t, []string{"Export complete", "Export failed"}, sender.titles)
	assert.True(t, strings.Contains(buf.String(), "12 recipes"))

	disabled := NewNotifier(false)
	disabled.sender = sender
	disabled.SendNotification("x", "y")
	assert.Len(t, sender.titles, 2)
}

func TestEscaping(t *testing.T) {
	assert.Equal(t, `say \"hi\"`, appleScriptEscape(`say "hi"`))
	assert.Equal(t, "a &amp; b &lt;c&gt;", xmlEscape("a & b <c>"))
}
