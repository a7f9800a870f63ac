package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pefmt/internal/edit"
	"pefmt/internal/host"
	"pefmt/internal/pipeline"
	"pefmt/internal/status"
	"pefmt/internal/tui"
)

type formatOptions struct {
	write      bool
	check      bool
	diff       bool
	force      bool
	stdin      bool
	stdinPath  string
	rangeStart int
	rangeEnd   int
	jobs       int
	noProgress bool
	cache      bool
	cacheFile  string
}

func (o formatOptions) hasRange() bool { return o.rangeStart >= 0 || o.rangeEnd >= 0 }

// printsText reports whether the formatted text itself goes to stdout.
func (o formatOptions) printsText() bool { return !o.write && !o.check && !o.diff && !outputJSON }

func newFormatCmd() *cobra.Command {
	opts := formatOptions{}
	cmd := &cobra.Command{
		Use:   "format [file|dir]...",
		Short: "Format files with prettier and fix them with eslint",
		Long: `Format runs the workspace's prettier over each file, then eslint's autofix
over the result. Directories are walked for files of supported languages.
With a single file and no --write, --check or --diff the result is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormat(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&opts.write, "write", "w", false, "Write the result back to each file")
	f.BoolVar(&opts.check, "check", false, "Exit non-zero when a file would change")
	f.BoolVar(&opts.diff, "diff", false, "Print a unified diff of the changes")
	f.BoolVar(&opts.force, "force", false, "Ignore .prettierignore and the requireConfig setting")
	f.BoolVar(&opts.stdin, "stdin", false, "Read the document from stdin")
	f.StringVar(&opts.stdinPath, "stdin-filepath", "", "Path used to resolve tools and configuration for stdin")
	f.IntVar(&opts.rangeStart, "range-start", -1, "Format from this byte offset")
	f.IntVar(&opts.rangeEnd, "range-end", -1, "Format up to this byte offset")
	f.IntVarP(&opts.jobs, "jobs", "j", runtime.NumCPU(), "Files formatted concurrently")
	f.BoolVar(&opts.noProgress, "no-progress", false, "Disable the live progress table")
	f.BoolVar(&opts.cache, "cache", false, "Skip files unchanged since they were last formatted")
	f.StringVar(&opts.cacheFile, "cache-location", "", "Cache file (default .pefmt/format-cache.json)")
	return cmd
}

// fileReport is the per-file outcome printed as a table row or JSON.
type fileReport struct {
	Path         string `json:"path"`
	State        string `json:"state"`
	Status       string `json:"status"`
	Mode         string `json:"mode,omitempty"`
	Changed      bool   `json:"changed"`
	Written      bool   `json:"written,omitempty"`
	Formatter    string `json:"formatter,omitempty"`
	Linter       string `json:"linter,omitempty"`
	LintErrors   int    `json:"lintErrors,omitempty"`
	LintWarnings int    `json:"lintWarnings,omitempty"`
	Error        string `json:"error,omitempty"`
	DurationMS   int64  `json:"durationMs"`
	Diff         string `json:"diff,omitempty"`

	edits []edit.TextEdit
	text  string
}

func (r fileReport) row() tui.FileRow {
	return tui.FileRow{Path: r.Path, State: r.State, Detail: r.Error, Elapsed: time.Duration(r.DurationMS) * time.Millisecond}
}

func runFormat(cmd *cobra.Command, args []string, opts formatOptions) error {
	if opts.stdin && len(args) > 0 {
		return errors.New("--stdin does not take file arguments")
	}
	if !opts.stdin && len(args) == 0 {
		return errors.New("no files given; pass paths or --stdin")
	}
	if opts.stdin && opts.write {
		return errors.New("--write cannot be used with --stdin")
	}
	if opts.hasRange() && (opts.rangeStart < 0 || opts.rangeEnd < opts.rangeStart) {
		return errors.New("--range-start and --range-end must both be set, with start <= end")
	}

	a, err := openApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := commandContext(cmd)

	p, err := a.provider(ctx)
	if err != nil {
		return err
	}

	var docs []edit.Document
	if opts.stdin {
		doc, err := stdinDocument(cmd.InOrStdin(), opts.stdinPath)
		if err != nil {
			return err
		}
		docs = []edit.Document{doc}
	} else {
		docs, err = collectDocuments(args, p.Selector())
		if err != nil {
			return err
		}
	}
	if len(docs) == 0 {
		return errors.New("no matching files")
	}
	if opts.printsText() && len(docs) > 1 {
		return errors.New("several files matched; use --write, --check or --diff")
	}
	if opts.hasRange() && len(docs) > 1 {
		return errors.New("--range-start and --range-end apply to a single file")
	}

	var cache *formatCache
	if opts.cache && !opts.stdin && !opts.hasRange() && !opts.force {
		cache = a.openFormatCache(ctx, opts.cacheFile)
	}

	reports := make([]fileReport, len(docs))
	work := func(ctx context.Context, send func(tea.Msg)) {
		g := new(errgroup.Group)
		g.SetLimit(max(opts.jobs, 1))
		for i, doc := range docs {
			g.Go(func() error {
				rel := a.paths.Rel(doc.FileName)
				if cache != nil && cache.upToDate(doc) {
					reports[i] = fileReport{Path: rel, State: tui.StateCached, Status: string(status.Success), text: doc.Text}
					send(tui.FileDoneMsg{Path: rel, State: tui.StateCached})
					return nil
				}
				send(tui.FileStartedMsg{Path: rel})
				r := formatDocument(ctx, p, doc, opts)
				r.Path = rel
				if opts.write && len(r.edits) > 0 && r.Changed {
					if err := a.host.ApplyEdits(ctx, doc, r.edits); err != nil {
						r.State = tui.StateError
						r.Error = err.Error()
					} else {
						r.Written = true
					}
				}
				if cache != nil {
					cache.record(doc, r)
				}
				reports[i] = r
				send(tui.FileDoneMsg{Path: rel, State: r.State, Detail: r.Error, Elapsed: time.Duration(r.DurationMS) * time.Millisecond})
				return nil
			})
		}
		_ = g.Wait()
	}

	out := cmd.OutOrStdout()
	mode := tui.DetectMode(cmd.ErrOrStderr(), opts.noProgress || opts.printsText(), outputJSON)
	if mode == tui.ModeTUI {
		keys := make([]string, len(docs))
		for i, doc := range docs {
			keys[i] = a.paths.Rel(doc.FileName)
		}
		if _, err := tui.RunWithWork(ctx, cmd.ErrOrStderr(), tui.NewProgressModel("format", keys), work); err != nil {
			return err
		}
	} else {
		work(ctx, func(tea.Msg) {})
	}
	if cache != nil {
		if err := cache.save(); err != nil {
			a.log.Warn("could not save format cache: " + err.Error())
		}
	}

	return writeFormatResult(out, mode, reports, opts)
}

func writeFormatResult(out io.Writer, mode tui.OutputMode, reports []fileReport, opts formatOptions) error {
	switch {
	case mode == tui.ModeJSON:
		data, err := json.MarshalIndent(reports, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		fmt.Fprintln(out, string(data))
	case opts.printsText():
		r := reports[0]
		if r.State == tui.StateError {
			return fmt.Errorf("%s: %s", r.Path, r.Error)
		}
		fmt.Fprint(out, r.text)
		return nil
	default:
		if mode == tui.ModePlain {
			rows := make([]tui.FileRow, len(reports))
			for i, r := range reports {
				rows[i] = r.row()
			}
			fmt.Fprint(out, tui.Table(rows))
		}
		if opts.diff {
			for _, r := range reports {
				fmt.Fprint(out, r.Diff)
			}
		}
	}

	var failed, changed int
	for _, r := range reports {
		if r.State == tui.StateError || r.State == tui.StateCancelled {
			failed++
		}
		if r.Changed && !r.Written {
			changed++
		}
	}
	switch {
	case failed > 0:
		return fmt.Errorf("%d of %d files failed", failed, len(reports))
	case opts.check && changed > 0:
		return fmt.Errorf("%d of %d files would change", changed, len(reports))
	}
	return nil
}

// formatDocument runs the provider over doc and fills the report fields that
// do not depend on writing.
func formatDocument(ctx context.Context, p *edit.Provider, doc edit.Document, opts formatOptions) fileReport {
	r := fileReport{Path: doc.FileName, text: doc.Text}

	rng := edit.FullRange(doc.Text)
	if opts.hasRange() {
		if !p.Selector().MatchesRange(doc) {
			r.State = tui.StateError
			r.Status = string(status.Error)
			r.Error = "range formatting is not supported for this language"
			return r
		}
		end := min(opts.rangeEnd, len(doc.Text))
		rng = edit.Range{Start: edit.PositionAt(doc.Text, min(opts.rangeStart, end)), End: edit.PositionAt(doc.Text, end)}
	}

	res, edits := p.Edits(ctx, doc, rng, opts.force)
	r.edits = edits
	r.Status = string(res.Status)
	r.Mode = res.Mode
	r.Formatter = stageLabel(res.Formatter)
	r.Linter = stageLabel(res.Linter)
	r.LintErrors = res.LintErrors
	r.LintWarnings = res.LintWarnings
	r.DurationMS = res.Duration.Milliseconds()
	r.Error = resultError(res)

	if len(edits) > 0 {
		text, err := host.Apply(doc.Text, edits)
		if err != nil {
			r.State = tui.StateError
			r.Error = err.Error()
			return r
		}
		r.text = text
	}
	r.Changed = r.text != doc.Text
	r.State = stateFor(res, r.Changed, opts.check && !opts.write)
	if opts.diff && r.Changed {
		r.Diff = unifiedDiff(r.Path, doc.Text, r.text)
	}
	return r
}

func stateFor(res pipeline.Result, changed, checking bool) string {
	switch {
	case res.Cancelled:
		return tui.StateCancelled
	case res.Status == status.Error:
		return tui.StateError
	case res.Status == status.Ignored:
		return tui.StateIgnored
	case res.Status == status.Disabled && !changed:
		return tui.StateDisabled
	case res.Status == status.Warning:
		return tui.StateWarning
	case changed && checking:
		return tui.StateWouldWrite
	case changed:
		return tui.StateFormatted
	}
	return tui.StateUnchanged
}

func resultError(res pipeline.Result) string {
	for _, err := range []error{res.Err, res.Formatter.Err, res.Linter.Err} {
		if err != nil {
			return err.Error()
		}
	}
	return ""
}

func stageLabel(s pipeline.StageReport) string {
	if s.Tool == "" {
		return ""
	}
	label := s.Tool + ": " + s.Outcome
	if s.Daemon {
		label += " (daemon)"
	}
	return label
}

func unifiedDiff(name, before, after string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + filepath.ToSlash(name),
		ToFile:   "b/" + filepath.ToSlash(name),
		Context:  3,
	})
	if err != nil {
		return ""
	}
	return diff
}

func stdinDocument(in io.Reader, path string) (edit.Document, error) {
	data, err := io.ReadAll(in)
	if err != nil {
		return edit.Document{}, fmt.Errorf("read stdin: %w", err)
	}
	if path == "" {
		return edit.Document{Scheme: "untitled", FileName: "stdin.js", LanguageID: "javascript", Text: string(data)}, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return edit.Document{}, err
	}
	return edit.Document{Scheme: edit.SchemeFile, FileName: abs, LanguageID: edit.LanguageFor(abs), Text: string(data)}, nil
}

// collectDocuments loads explicit files as given and walks directories for
// files the selector accepts.
func collectDocuments(args []string, sel edit.Selector) ([]edit.Document, error) {
	seen := map[string]bool{}
	var docs []edit.Document
	add := func(path string) error {
		if seen[path] {
			return nil
		}
		seen[path] = true
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		docs = append(docs, edit.Document{
			Scheme:     edit.SchemeFile,
			FileName:   path,
			LanguageID: edit.LanguageFor(path),
			Text:       string(data),
		})
		return nil
	}

	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if err := add(abs); err != nil {
				return nil, err
			}
			continue
		}
		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != abs && skipDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			doc := edit.Document{Scheme: edit.SchemeFile, FileName: path}
			if !sel.Matches(doc) {
				return nil
			}
			return add(path)
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].FileName < docs[j].FileName })
	return docs, nil
}

func skipDir(name string) bool {
	switch name {
	case "node_modules", ".git", ".pefmt":
		return true
	}
	return strings.HasPrefix(name, ".") && name != "."
}
