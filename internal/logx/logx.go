package logx

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pefmt/internal/paths"
)

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LevelFunc reports the current minimum level. It is consulted on every
// call so the threshold follows settings updates.
type LevelFunc func() Level

// Fixed returns a LevelFunc pinned to l.
func Fixed(l Level) LevelFunc {
	return func() Level { return l }
}

// DebugWhen returns LevelDebug while enabled reports true, LevelInfo otherwise.
func DebugWhen(enabled func() bool) LevelFunc {
	return func() Level {
		if enabled() || os.Getenv("PEFMT_DEBUG") == "1" {
			return LevelDebug
		}
		return LevelInfo
	}
}

// Hook observes every emitted entry. Used to drive the status indicator from
// warnings and errors.
type Hook func(level Level, msg string)

// Logger writes leveled lines to one or more *log.Logger sinks.
type Logger struct {
	mu    sync.RWMutex
	sinks []*log.Logger
	level LevelFunc
	hooks []Hook
}

// New creates a logger that writes to a timestamped file inside the
// workspace's logs directory. The returned closer should be closed when
// logging is no longer needed.
func New(p paths.WorkspacePaths, level LevelFunc) (*Logger, io.Closer, error) {
	if err := os.MkdirAll(p.LogsDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure logs directory: %w", err)
	}

	filename := time.Now().Format("20060102-150405") + ".log"
	filePath := filepath.Join(p.LogsDir, filename)
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	return NewWriter(file, level), file, nil
}

// NewWriter creates a logger writing to w.
func NewWriter(w io.Writer, level LevelFunc) *Logger {
	if level == nil {
		level = Fixed(LevelInfo)
	}
	return &Logger{
		sinks: []*log.Logger{log.New(w, "", log.LstdFlags|log.Lmicroseconds)},
		level: level,
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWriter(io.Discard, Fixed(LevelError+1))
}

// Mirror adds another destination, typically stderr for --verbose runs.
func (l *Logger) Mirror(w io.Writer) {
	l.mu.Lock()
	l.sinks = append(l.sinks, log.New(w, "", log.Ltime))
	l.mu.Unlock()
}

// OnEntry registers a hook.
func (l *Logger) OnEntry(h Hook) {
	l.mu.Lock()
	l.hooks = append(l.hooks, h)
	l.mu.Unlock()
}

func (l *Logger) Debug(msg string, data ...any) { l.log(LevelDebug, msg, nil, data) }
func (l *Logger) Info(msg string, data ...any)  { l.log(LevelInfo, msg, nil, data) }
func (l *Logger) Warn(msg string, data ...any)  { l.log(LevelWarn, msg, nil, data) }

// Error logs msg with err appended.
func (l *Logger) Error(msg string, err error, data ...any) {
	l.log(LevelError, msg, err, data)
}

// Enabled reports whether level would be written.
func (l *Logger) Enabled(level Level) bool {
	return l != nil && level >= l.level()
}

func (l *Logger) log(level Level, msg string, err error, data []any) {
	if l == nil {
		return
	}

	l.mu.RLock()
	hooks := l.hooks
	sinks := l.sinks
	l.mu.RUnlock()

	for _, h := range hooks {
		h(level, msg)
	}
	if !l.Enabled(level) {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	for _, d := range data {
		b.WriteByte('\n')
		b.WriteString(formatData(d))
	}
	if err != nil {
		fmt.Fprintf(&b, "\nerror: %v", err)
	}
	line := b.String()
	for _, s := range sinks {
		s.Print(line)
	}
}

func formatData(d any) string {
	switch v := d.(type) {
	case string:
		return v
	case error:
		return v.Error()
	}
	buf, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", d)
	}
	return string(buf)
}
