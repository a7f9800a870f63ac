package fmtconfig

import (
	"errors"
	"fmt"
)

// ErrConfigParse marks a formatter configuration file that exists but
// cannot be parsed.
var ErrConfigParse = errors.New("formatter config parse error")

// ConfigError reports an unparseable configuration file.
type ConfigError struct {
	Path  string
	Cause error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid formatter config %s: %v", e.Path, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

func (e *ConfigError) Is(target error) bool { return target == ErrConfigParse }
