package edit

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"pefmt/internal/logx"
	"pefmt/internal/resolve"
	"pefmt/internal/settings"
	"pefmt/internal/status"
	"pefmt/internal/watch"
)

// Registration is a handle returned by the host. Close releases it.
type Registration interface {
	Close() error
}

// Host is the editor collaborator.
type Host interface {
	// WorkspaceFolder returns the folder containing path.
	WorkspaceFolder(path string) (string, bool)
	RegisterProvider(folder string, p *Provider) (Registration, error)
	Watch(ctx context.Context, folder string, h watch.Handler) (Registration, error)
	ApplyEdits(ctx context.Context, doc Document, edits []TextEdit) error
}

// ToolCache is the resolver state the service keeps current. Implemented by
// *resolve.Resolver.
type ToolCache interface {
	Configure(p resolve.Policy)
	InvalidatePath(path string)
}

// ConfigCache is implemented by *fmtconfig.Resolver.
type ConfigCache interface {
	Reset()
}

// ServiceOptions wires a Service.
type ServiceOptions struct {
	Host      Host
	Settings  *settings.Manager
	Formatter Formatter
	Tools     ToolCache
	Config    ConfigCache
	Indicator *status.Indicator
	Logger    *logx.Logger
}

type folder struct {
	provider  *Provider
	selectors []string
	regs      []Registration
}

// Service registers providers per workspace folder and keeps caches in
// step with settings and file changes.
type Service struct {
	host      Host
	settings  *settings.Manager
	formatter Formatter
	tools     ToolCache
	config    ConfigCache
	indicator *status.Indicator
	log       *logx.Logger

	mu      sync.Mutex
	folders map[string]*folder
	sub     *settings.Subscription
	closed  bool
}

// NewService creates a Service and subscribes it to settings changes.
func NewService(o ServiceOptions) *Service {
	if o.Logger == nil {
		o.Logger = logx.Discard()
	}
	if o.Indicator == nil {
		o.Indicator = status.NewIndicator("")
	}
	s := &Service{
		host:      o.Host,
		settings:  o.Settings,
		formatter: o.Formatter,
		tools:     o.Tools,
		config:    o.Config,
		indicator: o.Indicator,
		log:       o.Logger,
		folders:   map[string]*folder{},
	}
	s.tools.Configure(resolve.PolicyFor(o.Settings.Snapshot().Config))
	s.sub = o.Settings.Subscribe(s.settingsChanged)
	return s
}

// Indicator returns the status indicator.
func (s *Service) Indicator() *status.Indicator { return s.indicator }

// ActiveDocumentChanged registers a provider for the document's workspace
// folder the first time a document from it becomes active. Virtual
// documents are left to the host's default formatter.
func (s *Service) ActiveDocumentChanged(ctx context.Context, doc Document) (*Provider, error) {
	if doc.Virtual() {
		return nil, nil
	}
	root, ok := s.host.WorkspaceFolder(doc.FileName)
	if !ok {
		s.log.Warn("no workspace folder for " + doc.FileName)
		return nil, nil
	}
	return s.EnsureFolder(ctx, root)
}

// EnsureFolder registers a provider and a watcher for root unless one
// exists already.
func (s *Service) EnsureFolder(ctx context.Context, root string) (*Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("service closed")
	}
	if f, ok := s.folders[root]; ok {
		return f.provider, nil
	}

	s.log.Debug("Registering document editor providers")
	f, err := s.register(ctx, root)
	if err != nil {
		return nil, err
	}
	s.folders[root] = f
	s.log.Debug("Enabling for workspace " + root)
	return f.provider, nil
}

func (s *Service) register(ctx context.Context, root string) (*folder, error) {
	snap := s.settings.Snapshot()
	selectors := slices.Clone(snap.Config.DocumentSelectors)
	p := NewProvider(ProviderOptions{
		Root:      root,
		Selector:  NewSelector(root, selectors),
		Formatter: s.formatter,
		Settings:  s.settings,
		Indicator: s.indicator,
		Logger:    s.log,
	})
	reg, err := s.host.RegisterProvider(root, p)
	if err != nil {
		return nil, fmt.Errorf("register provider for %s: %w", root, err)
	}
	f := &folder{provider: p, selectors: selectors, regs: []Registration{reg}}
	watcher, err := s.host.Watch(ctx, root, s.HandleEvents)
	if err != nil {
		s.log.Warn("file watching unavailable for "+root, err)
	} else if watcher != nil {
		f.regs = append(f.regs, watcher)
	}
	return f, nil
}

// Provider returns the provider registered for the folder containing path.
func (s *Service) Provider(path string) (*Provider, bool) {
	root, ok := s.host.WorkspaceFolder(path)
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.folders[root]
	if !ok {
		return nil, false
	}
	return f.provider, true
}

// HandleEvents applies watcher events: manifest and config changes drop the
// affected cache entries, a settings file change reloads everything.
func (s *Service) HandleEvents(events []watch.Event) {
	reload := false
	for _, ev := range events {
		switch ev.Kind {
		case watch.KindSettings:
			reload = true
		case watch.KindManifest:
			s.log.Debug("manifest changed: " + ev.Path)
			s.tools.InvalidatePath(ev.Path)
		case watch.KindConfig:
			s.log.Debug("config changed: " + ev.Path)
			s.tools.InvalidatePath(ev.Path)
			s.config.Reset()
			s.indicator.Reset()
		}
	}
	if reload {
		if err := s.Reload(context.Background()); err != nil {
			s.log.Error("reload settings", err)
		}
	}
}

// Reload re-reads settings and drops every cached resolution.
func (s *Service) Reload(ctx context.Context) error {
	if err := s.settings.Update(ctx); err != nil {
		return err
	}
	s.tools.Configure(resolve.PolicyFor(s.settings.Snapshot().Config))
	s.config.Reset()
	s.indicator.Reset()
	return nil
}

func (s *Service) settingsChanged(prev, next *settings.Snapshot) {
	if prev.Enabled != next.Enabled {
		s.log.Warn("The enable setting changed. Reload the editor for the change to take effect.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for root, f := range s.folders {
		if slices.Equal(f.selectors, next.Config.DocumentSelectors) {
			continue
		}
		s.log.Debug("document selectors changed; re-registering " + root)
		closeAll(f.regs, s.log)
		nf, err := s.register(context.Background(), root)
		if err != nil {
			s.log.Error("re-register provider", err)
			delete(s.folders, root)
			continue
		}
		s.folders[root] = nf
	}
}

// ForceFormatDocument formats doc ignoring ignore files and the
// require-config setting, and asks the host to apply the edit.
func (s *Service) ForceFormatDocument(ctx context.Context, doc Document) error {
	p, err := s.ActiveDocumentChanged(ctx, doc)
	if err != nil {
		return err
	}
	if p == nil {
		s.log.Info("No workspace document. Nothing was formatted.")
		return nil
	}
	edits := p.ForceFormat(ctx, doc)
	if len(edits) != 1 {
		return nil
	}
	if err := s.host.ApplyEdits(ctx, doc, edits); err != nil {
		s.log.Error("Error formatting document", err)
		return err
	}
	s.indicator.Update(status.Success)
	return nil
}

// Close releases registrations and the settings subscription.
func (s *Service) Close() {
	s.sub.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.folders {
		closeAll(f.regs, s.log)
	}
	s.folders = map[string]*folder{}
	s.closed = true
}

func closeAll(regs []Registration, log *logx.Logger) {
	for _, r := range regs {
		if err := r.Close(); err != nil {
			log.Warn("release registration", err)
		}
	}
}
