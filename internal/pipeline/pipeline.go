// Package pipeline runs the formatter and then the linter's autofix over a
// document and returns the best text it can produce.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"pefmt/internal/config"
	"pefmt/internal/executor"
	"pefmt/internal/fmtconfig"
	"pefmt/internal/logx"
	"pefmt/internal/resolve"
	"pefmt/internal/settings"
	"pefmt/internal/status"
	"pefmt/internal/tools"
)

// Modes reported in Result.Mode.
const (
	ModeProcess = config.ModeProcess
	ModeModule  = config.ModeModule
	ModeDaemon  = "daemon"
)

// ToolResolver locates tools. Implemented by *resolve.Resolver.
type ToolResolver interface {
	ResolveForFile(ctx context.Context, tool, filePath string) (resolve.Reference, error)
	ResolveBin(ctx context.Context, tool, startDir string) (resolve.Reference, error)
}

// ConfigResolver decides config, ignore and flag handling per document.
// Implemented by *fmtconfig.Resolver.
type ConfigResolver interface {
	Resolve(req fmtconfig.Request) (fmtconfig.Resolution, error)
}

// Installer installs daemon tools. Implemented by *tools.Installer.
type Installer interface {
	Install(ctx context.Context, tool string) (tools.Status, error)
}

// Observer receives run, stage and install outcomes. Implemented by the
// metrics package.
type Observer interface {
	ObserveRun(mode, status string, d time.Duration)
	ObserveStage(tool, outcome string)
	ObserveInstall(tool string, err error)
}

// Deps wires a Runner.
type Deps struct {
	Tools    ToolResolver
	Config   ConfigResolver
	Settings *settings.Manager
	Exec     executor.Runner
	// Installer sets up daemons on first use. Nil disables installs.
	Installer Installer
	Logger    *logx.Logger
	Observer  Observer
	// Node runs the module bridge. Defaults to "node".
	Node string
}

// Runner executes formatting sessions. It keeps no state between runs;
// concurrent runs share only the resolver cache and the settings snapshot.
type Runner struct {
	tools     ToolResolver
	config    ConfigResolver
	settings  *settings.Manager
	runner    executor.Runner
	installer Installer
	log       *logx.Logger
	observer  Observer
	node      string
}

// New creates a Runner.
func New(d Deps) *Runner {
	log := d.Logger
	if log == nil {
		log = logx.Discard()
	}
	node := d.Node
	if node == "" {
		node = "node"
	}
	return &Runner{
		tools:     d.Tools,
		config:    d.Config,
		settings:  d.Settings,
		runner:    d.Exec,
		installer: d.Installer,
		log:       log,
		observer:  d.Observer,
		node:      node,
	}
}

// Format returns the formatted text, or the original text when nothing
// better is available. It never fails.
func (r *Runner) Format(ctx context.Context, sourceText, filePath, workingDirectory string) string {
	return r.Run(ctx, NewSession(sourceText, filePath, workingDirectory)).Text
}

// Run formats one session.
func (r *Runner) Run(ctx context.Context, sess Session) Result {
	started := time.Now()
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.WorkDir == "" {
		sess.WorkDir = filepath.Dir(sess.FilePath)
	}

	snap := r.settings.Snapshot()
	mode := snap.Config.Mode
	if snap.UseDaemons {
		mode = ModeDaemon
	}
	res := Result{SessionID: sess.ID, Text: sess.Text, Mode: mode}
	log := r.log

	log.Info(fmt.Sprintf("Formatting %s", sess.FilePath), map[string]string{"session": sess.ID, "mode": mode})

	r.run(ctx, sess, snap, &res)

	if ctx.Err() != nil {
		res = Result{SessionID: sess.ID, Text: sess.Text, Mode: mode, Aborted: true, Cancelled: true}
		log.Info(fmt.Sprintf("Formatting %s cancelled", sess.FilePath))
	}
	res.Changed = !res.Aborted && res.Text != sess.Text
	res.Duration = time.Since(started)
	if !res.Cancelled {
		log.Info(fmt.Sprintf("Formatting completed in %dms.", res.Duration.Milliseconds()))
		if r.observer != nil {
			r.observer.ObserveRun(mode, string(res.Status), res.Duration)
		}
	}
	return res
}

func (r *Runner) run(ctx context.Context, sess Session, snap *settings.Snapshot, res *Result) {
	cfg := snap.Config
	fc, err := r.config.Resolve(fmtconfig.Request{
		FilePath:      sess.FilePath,
		WorkspaceRoot: sess.WorkspaceRoot,
		Virtual:       sess.Virtual,
		Force:         sess.Options.Force,
		Settings:      fmtconfig.SettingsFrom(cfg),
	})
	if err != nil {
		r.log.Error("Invalid formatter configuration. Not formatting "+sess.FilePath, err)
		res.Status, res.Aborted, res.Err = status.Error, true, err
		return
	}
	if fc.Ignored {
		r.log.Info(fmt.Sprintf("File is ignored (%s). Skipping %s", fc.IgnoreReason, sess.FilePath))
		res.Status, res.Aborted = status.Ignored, true
		return
	}
	if fc.Disabled {
		res.Formatter = StageReport{Tool: tools.Prettier, Outcome: OutcomeSkipped}
		res.Status, res.Aborted = status.Disabled, true
		return
	}

	base := call{
		filePath:        sess.FilePath,
		workDir:         sess.WorkDir,
		args:            fc.Args,
		timeout:         time.Duration(cfg.TimeoutSeconds) * time.Second,
		force:           sess.Options.Force,
		virtual:         sess.Virtual,
		configPath:      fc.ConfigFile,
		ignorePath:      ignorePath(sess.WorkspaceRoot, cfg.IgnorePath),
		withNodeModules: cfg.WithNodeModules,
		useEditorConfig: cfg.UseEditorConfigValue(),
		rangeStart:      sess.Options.RangeStart,
		rangeEnd:        sess.Options.RangeEnd,
	}

	// Formatter stage.
	var formatted *string
	warn := false
	c, report, ok := r.prepare(ctx, tools.Prettier, sess, snap, base)
	res.Formatter = report
	if !ok {
		r.log.Error("Prettier could not be loaded. See previous logs for more information.", report.Err)
		r.observeStage(report)
		res.Status = status.Error
		return
	}
	c.text = sess.Text
	stageStart := time.Now()
	out, ferr := r.format(ctx, c)
	res.Formatter.Duration = time.Since(stageStart)
	if errors.Is(ferr, errIgnoredByFormatter) {
		res.Formatter.Outcome = OutcomeSkipped
		r.observeStage(res.Formatter)
		r.log.Info("File is ignored by the formatter. Skipping " + sess.FilePath)
		res.Status, res.Aborted = status.Ignored, true
		return
	}
	if ferr != nil {
		res.Formatter.Outcome, res.Formatter.Err = OutcomeFailed, ferr
		r.log.Error("Error formatting document with "+c.ref.Tool, ferr)
		warn = true
	} else {
		res.Formatter.Outcome = OutcomeOK
		formatted = &out
	}
	r.observeStage(res.Formatter)
	if ctx.Err() != nil {
		return
	}

	// Linter stage, on the formatter's output when there is one.
	c, report, ok = r.prepare(ctx, tools.ESLint, sess, snap, base)
	res.Linter = report
	if !ok {
		r.log.Error("ESLint could not be loaded. See previous logs for more information.", report.Err)
		r.observeStage(report)
		res.Text = pick(nil, formatted, sess.Text)
		res.Status = status.Warning
		return
	}
	c.text = pick(nil, formatted, sess.Text)
	// The linter sees the whole text; range options only apply to the formatter.
	c.rangeStart, c.rangeEnd = nil, nil
	stageStart = time.Now()
	lr, lerr := r.lint(ctx, c)
	res.Linter.Duration = time.Since(stageStart)
	if lerr != nil {
		res.Linter.Outcome, res.Linter.Err = OutcomeFailed, lerr
		r.observeStage(res.Linter)
		r.log.Error("Error linting document with "+c.ref.Tool, lerr)
		res.Text = pick(nil, formatted, sess.Text)
		res.Status = status.Warning
		return
	}
	res.Linter.Outcome = OutcomeOK
	r.observeStage(res.Linter)
	res.LintErrors, res.LintWarnings = lr.ErrorCount, lr.WarningCount
	res.Text = pick(&lr, formatted, sess.Text)

	switch {
	case warn:
		res.Status = status.Warning
	default:
		res.Status = status.Success
	}
}

// prepare picks the tool variant and invocation style for one stage. In
// daemon mode the daemon is preferred and set up on demand; if that fails
// the one-shot tool is used.
func (r *Runner) prepare(ctx context.Context, tool string, sess Session, snap *settings.Snapshot, base call) (call, StageReport, bool) {
	c := base
	if snap.UseDaemons {
		if ref, ok := r.daemon(ctx, tool, sess, snap); ok {
			c.ref, c.style = ref, styleDaemon
			return c, StageReport{Tool: ref.Tool, Path: ref.Path, Daemon: true}, true
		}
	}

	ref, err := r.tools.ResolveForFile(ctx, tool, sess.FilePath)
	if err != nil {
		outcome := OutcomeUnresolved
		if errors.Is(err, resolve.ErrInvalidInstall) {
			outcome = OutcomeInvalid
		}
		return c, StageReport{Tool: tool, Outcome: outcome, Err: err}, false
	}
	c.ref = ref
	c.style = styleProcess
	if snap.Config.Mode == ModeModule && ref.Kind == resolve.KindModule {
		c.style = styleModule
	}
	r.log.Debug(fmt.Sprintf("%s path: %s", tool, ref.Path))
	return c, StageReport{Tool: tool, Path: ref.Path}, true
}

// daemon returns the daemon variant of tool: the path stored in settings,
// else a local or PATH install, else a fresh global install. Whatever is
// found is stored in settings so later runs skip the lookup.
func (r *Runner) daemon(ctx context.Context, tool string, sess Session, snap *settings.Snapshot) (resolve.Reference, bool) {
	def, ok := tools.DaemonFor(tool)
	if !ok {
		return resolve.Reference{}, false
	}

	if path := snap.DaemonPath(def.Name); path != "" {
		ref, err := resolve.BinaryReference(def.Name, path, tools.SourceSettings)
		if err == nil {
			return ref, true
		}
		r.log.Warn(fmt.Sprintf("configured %s path is unusable", def.Name), err)
	}

	r.log.Info(fmt.Sprintf("Setting up %s", def.Name))
	ref, err := r.tools.ResolveBin(ctx, def.Name, sess.WorkDir)
	if err != nil {
		if r.installer == nil {
			r.log.Debug(fmt.Sprintf("%s not available and installs are disabled", def.Name), err)
			return resolve.Reference{}, false
		}
		st, ierr := r.installer.Install(ctx, def.Name)
		if r.observer != nil {
			r.observer.ObserveInstall(def.Name, ierr)
		}
		if ierr != nil {
			r.log.Error(fmt.Sprintf("Failed to setup %s daemon", def.Name), ierr)
			return resolve.Reference{}, false
		}
		r.log.Debug(fmt.Sprintf("Output from installing %s", def.Name), st)
		ref, err = resolve.BinaryReference(def.Name, st.Path, tools.SourceInstall)
		if err != nil {
			r.log.Error(fmt.Sprintf("Failed to setup %s daemon", def.Name), err)
			return resolve.Reference{}, false
		}
	}

	if key, ok := settings.DaemonPathKey(def.Name); ok {
		if err := r.settings.Set(ctx, key, ref.Path); err != nil {
			r.log.Warn("store daemon path", err)
		}
	}
	return ref, true
}

func (r *Runner) observeStage(s StageReport) {
	if r.observer != nil && s.Outcome != "" {
		r.observer.ObserveStage(s.Tool, s.Outcome)
	}
}

func ignorePath(root, p string) string {
	if p == "" || filepath.IsAbs(p) || root == "" {
		return p
	}
	return filepath.Join(root, p)
}
