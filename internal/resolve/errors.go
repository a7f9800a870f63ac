package resolve

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a tool that could not be located anywhere.
	ErrNotFound = errors.New("tool not found")
	// ErrInvalidInstall marks a located tool that failed validation.
	ErrInvalidInstall = errors.New("invalid tool installation")
)

// NotFoundError reports an unresolvable tool.
type NotFoundError struct {
	Tool     string
	StartDir string
	// Reason is set when the walk stopped early, for example when a manifest
	// declares the package but it is not installed.
	Reason string
}

func (e *NotFoundError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s not found from %s: %s", e.Tool, e.StartDir, e.Reason)
	}
	return fmt.Sprintf("%s not found from %s", e.Tool, e.StartDir)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidInstallError reports a located tool that cannot be used. It is
// permanent until the environment or configuration changes.
type InvalidInstallError struct {
	Tool    string
	Path    string
	Version string
	Reason  string
}

func (e *InvalidInstallError) Error() string {
	return fmt.Sprintf("%s at %s is unusable: %s", e.Tool, e.Path, e.Reason)
}

func (e *InvalidInstallError) Is(target error) bool { return target == ErrInvalidInstall }
