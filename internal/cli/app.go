package cli

import (
	"context"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"pefmt/internal/config"
	"pefmt/internal/edit"
	"pefmt/internal/executor"
	"pefmt/internal/fmtconfig"
	"pefmt/internal/host"
	"pefmt/internal/logx"
	"pefmt/internal/metrics"
	"pefmt/internal/paths"
	"pefmt/internal/pipeline"
	"pefmt/internal/resolve"
	"pefmt/internal/settings"
	"pefmt/internal/state"
	"pefmt/internal/status"
	"pefmt/internal/tools"
	"pefmt/internal/watch"
)

// app is the wired formatter stack for one workspace.
type app struct {
	paths     paths.WorkspacePaths
	log       *logx.Logger
	store     *state.Store
	host      *host.Local
	settings  *settings.Manager
	runner    *executor.OSRunner
	tools     *resolve.Resolver
	config    *fmtconfig.Resolver
	metrics   *metrics.Recorder
	installer *tools.Installer
	pipeline  *pipeline.Runner
	service   *edit.Service

	closers []io.Closer
}

type appOptions struct {
	watching bool
	onEvents watch.Handler
}

func openApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	ctx := commandContext(cmd)

	wp, err := paths.Resolve(workspaceDir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(wp.ConfigFile)
	if err != nil {
		return nil, err
	}
	wp = paths.ApplyConfig(wp, cfg)
	if err := wp.EnsureMetaDirs(); err != nil {
		return nil, err
	}

	a := &app{paths: wp}
	logger, closer, err := logx.New(wp, logx.DebugWhen(func() bool {
		return a.settings != nil && a.settings.Snapshot().DebugLogging
	}))
	if err != nil {
		return nil, err
	}
	a.log = logger
	a.closers = append(a.closers, closer)
	if verbose {
		logger.Mirror(cmd.ErrOrStderr())
	}

	store, err := state.Open(state.Config{Path: wp.StateDir})
	if err != nil {
		logger.Warn("state store unavailable; resolutions will not be remembered", err.Error())
	} else {
		a.store = store
		a.closers = append(a.closers, store)
	}

	a.host = host.New(host.Options{
		Paths:    wp,
		Store:    a.store,
		Trusted:  !untrusted,
		Watching: opts.watching,
		Watch:    watch.DefaultOptions(),
		OnEvents: opts.onEvents,
		Logger:   logger,
	})
	a.settings = settings.NewManager(a.host, wp.Root, logger)
	if err := a.settings.Update(ctx); err != nil {
		a.Close()
		return nil, err
	}
	snap := a.settings.Snapshot()

	a.metrics = metrics.New()
	a.runner = executor.NewOSRunner(executor.Options{MaxOutputBytes: snap.Config.MaxOutputBytes})
	var memo resolve.Memo
	if a.store != nil {
		memo = a.store
	}
	a.tools = resolve.New(resolve.Options{
		StopAt:   resolve.StopAtMarker(resolve.RootMarker),
		Runner:   a.runner,
		Store:    memo,
		Logger:   logger,
		Observer: a.metrics,
	})
	a.config = fmtconfig.NewResolver(logger)

	lockDir := filepath.Join(wp.MetaDir, "locks")
	if global, err := paths.GlobalDir(); err == nil {
		lockDir = filepath.Join(global, "locks")
	}
	a.installer = tools.NewInstaller(a.runner, tools.InstallerOptions{LockDir: lockDir})

	a.pipeline = pipeline.New(pipeline.Deps{
		Tools:     a.tools,
		Config:    a.config,
		Settings:  a.settings,
		Exec:      a.runner,
		Installer: a.installer,
		Logger:    logger,
		Observer:  a.metrics,
	})

	indicator := status.NewIndicator("pefmt")
	logger.OnEntry(func(level logx.Level, _ string) {
		if level >= logx.LevelError {
			indicator.Update(status.Error)
		}
	})
	a.service = edit.NewService(edit.ServiceOptions{
		Host:      a.host,
		Settings:  a.settings,
		Formatter: a.pipeline,
		Tools:     a.tools,
		Config:    a.config,
		Indicator: indicator,
		Logger:    logger,
	})
	return a, nil
}

// provider returns the workspace provider, registering it on first use.
func (a *app) provider(ctx context.Context) (*edit.Provider, error) {
	return a.service.EnsureFolder(ctx, a.paths.Root)
}

func (a *app) Close() {
	if a.service != nil {
		a.service.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
