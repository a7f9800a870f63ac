// Package settings owns the process-wide settings snapshot read by the
// formatting pipeline.
package settings

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"pefmt/internal/config"
	"pefmt/internal/logx"
	"pefmt/internal/tools"
)

// Keys accepted by Set.
const (
	KeyEnabled            = "enable"
	KeyDebugLogging       = "enableDebugLogs"
	KeyUseDaemons         = "useDaemons"
	KeyDaemonPathPrettier = "daemonPathPrettier"
	KeyDaemonPathEslint   = "daemonPathEslint"
)

// Source supplies configuration sections. Implemented by the host.
type Source interface {
	GetConfiguration(ctx context.Context, section, scope string) (map[string]any, error)
	// Trusted reports whether the workspace may run its own code and
	// widen file access.
	Trusted() bool
}

// Persister is implemented by sources that can store a value set at runtime
// so it survives the next Update.
type Persister interface {
	SetConfiguration(ctx context.Context, section, key string, value any) error
}

// Snapshot is an immutable view of the settings. Readers must not modify
// it; every change produces a new Snapshot.
type Snapshot struct {
	Enabled      bool
	DebugLogging bool
	UseDaemons   bool
	// DaemonPaths maps a daemon tool name to its executable. A missing
	// entry means the daemon has not been set up yet.
	DaemonPaths map[string]string
	Untrusted   bool
	// Config is the full decoded configuration, already restricted when
	// the workspace is untrusted.
	Config config.Config
}

// DaemonPath returns the configured executable for a daemon tool.
func (s *Snapshot) DaemonPath(tool string) string {
	if s == nil {
		return ""
	}
	return s.DaemonPaths[tool]
}

func (s *Snapshot) clone() *Snapshot {
	next := *s
	next.DaemonPaths = make(map[string]string, len(s.DaemonPaths))
	for k, v := range s.DaemonPaths {
		next.DaemonPaths[k] = v
	}
	return &next
}

func fromConfig(cfg config.Config, trusted bool) *Snapshot {
	if !trusted {
		cfg = cfg.Restricted()
	}
	snap := &Snapshot{
		Enabled:      cfg.EnableValue(),
		DebugLogging: cfg.EnableDebugLogs,
		UseDaemons:   cfg.UseDaemonsValue(),
		DaemonPaths:  map[string]string{},
		Untrusted:    !trusted,
		Config:       cfg,
	}
	if cfg.DaemonPathPrettier != "" {
		snap.DaemonPaths[tools.Prettierd] = cfg.DaemonPathPrettier
	}
	if cfg.DaemonPathEslint != "" {
		snap.DaemonPaths[tools.ESLintD] = cfg.DaemonPathEslint
	}
	return snap
}

// Subscription is returned by Subscribe. Close releases it.
type Subscription struct {
	once  sync.Once
	close func()
}

// Close stops delivery. It is safe to call more than once.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.close)
}

// Listener is notified after the snapshot changes.
type Listener func(prev, next *Snapshot)

// Manager is the only writer of the settings snapshot.
type Manager struct {
	source Source
	scope  string
	log    *logx.Logger

	current atomic.Pointer[Snapshot]

	// writeMu serialises Update and Set so a Set is never lost between an
	// Update's read and swap. Listeners run after it is released.
	writeMu sync.Mutex

	subMu     sync.Mutex
	nextID    int
	listeners map[int]Listener
}

// NewManager creates a Manager holding the default snapshot. Call Update to
// read the source.
func NewManager(source Source, scope string, log *logx.Logger) *Manager {
	if log == nil {
		log = logx.Discard()
	}
	m := &Manager{source: source, scope: scope, log: log, listeners: map[int]Listener{}}
	trusted := source == nil || source.Trusted()
	m.current.Store(fromConfig(config.Default(), trusted))
	return m
}

// Snapshot returns the current settings.
func (m *Manager) Snapshot() *Snapshot {
	return m.current.Load()
}

// Update re-reads configuration from the source and replaces the snapshot
// as a whole. Values stored with Set and not persisted are dropped.
func (m *Manager) Update(ctx context.Context) error {
	m.writeMu.Lock()
	cfg := config.Default()
	trusted := true
	if m.source != nil {
		section, err := m.source.GetConfiguration(ctx, config.Section, m.scope)
		if err != nil {
			m.writeMu.Unlock()
			return fmt.Errorf("read %s settings: %w", config.Section, err)
		}
		cfg, err = config.Decode(section)
		if err != nil {
			m.writeMu.Unlock()
			return err
		}
		trusted = m.source.Trusted()
	}

	next := fromConfig(cfg, trusted)
	prev := m.current.Swap(next)
	m.writeMu.Unlock()

	if next.Untrusted {
		m.log.Info("workspace is untrusted; document selectors, editorconfig, node_modules and global modules are disabled")
	}
	m.notify(prev, next)
	return nil
}

// Set overrides one value until the next Update. When the source can
// persist values the new value is stored there as well.
func (m *Manager) Set(ctx context.Context, key string, value any) error {
	m.writeMu.Lock()
	prev := m.current.Load()
	next := prev.clone()
	if err := apply(next, key, value); err != nil {
		m.writeMu.Unlock()
		return err
	}
	m.current.Store(next)
	m.writeMu.Unlock()

	if p, ok := m.source.(Persister); ok {
		if err := p.SetConfiguration(ctx, config.Section, key, value); err != nil {
			m.log.Warn("persist setting "+key, err)
		}
	}
	m.notify(prev, next)
	return nil
}

func apply(s *Snapshot, key string, value any) error {
	switch key {
	case KeyEnabled, KeyDebugLogging, KeyUseDaemons:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("setting %s expects a bool, got %T", key, value)
		}
		switch key {
		case KeyEnabled:
			s.Enabled = b
			s.Config.Enable = &b
		case KeyDebugLogging:
			s.DebugLogging = b
			s.Config.EnableDebugLogs = b
		default:
			s.UseDaemons = b
			s.Config.UseDaemons = &b
		}
	case KeyDaemonPathPrettier, KeyDaemonPathEslint:
		path, ok := value.(string)
		if !ok {
			return fmt.Errorf("setting %s expects a string, got %T", key, value)
		}
		tool := tools.Prettierd
		if key == KeyDaemonPathEslint {
			tool = tools.ESLintD
			s.Config.DaemonPathEslint = path
		} else {
			s.Config.DaemonPathPrettier = path
		}
		if path == "" {
			delete(s.DaemonPaths, tool)
		} else {
			s.DaemonPaths[tool] = path
		}
	default:
		return fmt.Errorf("unknown setting: %s", key)
	}
	return nil
}

// DaemonPathKey returns the Set key storing the executable of a daemon tool.
func DaemonPathKey(tool string) (string, bool) {
	switch tool {
	case tools.Prettierd:
		return KeyDaemonPathPrettier, true
	case tools.ESLintD:
		return KeyDaemonPathEslint, true
	}
	return "", false
}

// Subscribe registers fn for snapshot changes.
func (m *Manager) Subscribe(fn Listener) *Subscription {
	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.subMu.Unlock()
	return &Subscription{close: func() {
		m.subMu.Lock()
		delete(m.listeners, id)
		m.subMu.Unlock()
	}}
}

func (m *Manager) notify(prev, next *Snapshot) {
	m.subMu.Lock()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.subMu.Unlock()
	for _, fn := range listeners {
		fn(prev, next)
	}
}
