package ui

// Stage names reported by an export run
const (
	StageLogin     = "login"
	StageFavorites = "favorites"
	StageLoad      = "recipes"
	StageImages    = "images"
	StageRender    = "documents"
	StageUpload    = "upload"
)

// Reporter receives progress events from an export run. Items are
// identified by an id unique within a stage.
type Reporter interface {
	SetStage(stage string, total int)
	StartItem(id, label string)
	CompleteItem(id string, size int64)
	FailItem(id string, err error)
	LogInfo(format string, args ...interface{})
	LogSuccess(format string, args ...interface{})
	LogWarning(format string, args ...interface{})
	LogError(format string, args ...interface{})
	IsPaused() bool
}

// NopReporter discards all events
type NopReporter struct{}

func (NopReporter) SetStage(string, int)              {}
func (NopReporter) StartItem(string, string)          {}
func (NopReporter) CompleteItem(string, int64)        {}
func (NopReporter) FailItem(string, error)            {}
func (NopReporter) LogInfo(string, ...interface{})    {}
func (NopReporter) LogSuccess(string, ...interface{}) {}
func (NopReporter) LogWarning(string, ...interface{}) {}
func (NopReporter) LogError(string, ...interface{})   {}
func (NopReporter) IsPaused() bool                    { return false }
