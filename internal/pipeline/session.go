package pipeline

import (
	"time"

	"github.com/google/uuid"

	"pefmt/internal/status"
)

// Session is one formatting request. It is owned by a single Run call.
type Session struct {
	ID            string
	Text          string
	FilePath      string
	WorkDir       string
	WorkspaceRoot string
	// Virtual marks documents that have no file on disk.
	Virtual bool
	Options Options
}

// Options adjust a single request.
type Options struct {
	// Force bypasses ignore files and the require-config setting.
	Force bool
	// RangeStart and RangeEnd restrict the formatter to a character range
	// of Text. Nil means the whole text.
	RangeStart *int
	RangeEnd   *int
}

// NewSession fills the session ID and working directory defaults.
func NewSession(text, filePath, workDir string) Session {
	return Session{ID: uuid.NewString(), Text: text, FilePath: filePath, WorkDir: workDir}
}

// Stage outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeSkipped    = "skipped"
	OutcomeUnresolved = "unresolved"
	OutcomeInvalid    = "invalid"
	OutcomeFailed     = "failed"
)

// StageReport describes what one tool did.
type StageReport struct {
	Tool     string
	Path     string
	Daemon   bool
	Outcome  string
	Err      error
	Duration time.Duration
}

// Result is the outcome of Run. Text always holds the best text available.
type Result struct {
	SessionID string
	Text      string
	Changed   bool
	Status    status.Status
	Mode      string
	// Aborted results must not be applied: the document was ignored, its
	// configuration could not be read, or the request was cancelled.
	Aborted   bool
	Cancelled bool
	// Err is set when a configuration error stopped the request.
	Err          error
	Formatter    StageReport
	Linter       StageReport
	LintErrors   int
	LintWarnings int
	Duration     time.Duration
}
