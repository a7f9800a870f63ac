package edit

import (
	"context"
	"path/filepath"

	"pefmt/internal/logx"
	"pefmt/internal/pipeline"
	"pefmt/internal/settings"
	"pefmt/internal/status"
)

// Formatter runs the pipeline. Implemented by *pipeline.Runner.
type Formatter interface {
	Run(ctx context.Context, sess pipeline.Session) pipeline.Result
}

// Provider answers the host's formatting requests for one workspace folder.
// Each request yields zero or one edit.
type Provider struct {
	root      string
	selector  Selector
	formatter Formatter
	settings  *settings.Manager
	indicator *status.Indicator
	log       *logx.Logger
}

// ProviderOptions wires a Provider.
type ProviderOptions struct {
	Root      string
	Selector  Selector
	Formatter Formatter
	Settings  *settings.Manager
	Indicator *status.Indicator
	Logger    *logx.Logger
}

// NewProvider creates a Provider.
func NewProvider(o ProviderOptions) *Provider {
	if o.Logger == nil {
		o.Logger = logx.Discard()
	}
	if o.Indicator == nil {
		o.Indicator = status.NewIndicator("")
	}
	return &Provider{
		root:      o.Root,
		selector:  o.Selector,
		formatter: o.Formatter,
		settings:  o.Settings,
		indicator: o.Indicator,
		log:       o.Logger,
	}
}

// Selector returns the documents this provider handles.
func (p *Provider) Selector() Selector { return p.selector }

// ProvideDocumentFormattingEdits formats the whole document.
func (p *Provider) ProvideDocumentFormattingEdits(ctx context.Context, doc Document) []TextEdit {
	return p.provide(ctx, doc, FullRange(doc.Text), false)
}

// ProvideDocumentRangeFormattingEdits formats the document with the
// formatter restricted to rng.
func (p *Provider) ProvideDocumentRangeFormattingEdits(ctx context.Context, doc Document, rng Range) []TextEdit {
	if !p.selector.MatchesRange(doc) {
		p.log.Debug("range formatting is not supported for " + doc.FileName)
		return nil
	}
	return p.provide(ctx, doc, rng, false)
}

// ForceFormat formats the whole document, bypassing ignore files and the
// require-config setting.
func (p *Provider) ForceFormat(ctx context.Context, doc Document) []TextEdit {
	return p.provide(ctx, doc, FullRange(doc.Text), true)
}

// Result runs the pipeline over the whole document and returns the raw
// pipeline result. The indicator is updated as for edit requests.
func (p *Provider) Result(ctx context.Context, doc Document, force bool) (pipeline.Result, bool) {
	return p.run(ctx, doc, pipeline.Options{Force: force})
}

func (p *Provider) run(ctx context.Context, doc Document, opts pipeline.Options) (pipeline.Result, bool) {
	if !p.settings.Snapshot().Enabled {
		p.log.Info("Formatting is not enabled")
		p.indicator.Update(status.Disabled)
		return pipeline.Result{Text: doc.Text, Status: status.Disabled, Aborted: true}, false
	}

	sess := pipeline.NewSession(doc.Text, doc.FileName, filepath.Dir(doc.FileName))
	sess.WorkspaceRoot = p.root
	sess.Virtual = doc.Virtual()
	sess.Options = opts
	res := p.formatter.Run(ctx, sess)
	if res.Cancelled {
		return res, false
	}
	p.indicator.Update(res.Status)
	return res, true
}

func (p *Provider) provide(ctx context.Context, doc Document, rng Range, force bool) []TextEdit {
	_, edits := p.Edits(ctx, doc, rng, force)
	return edits
}

// Edits formats doc and returns the pipeline result along with the edit it
// yields, if any. A range short of the whole text is passed to the formatter
// as UTF-16 offsets; the edit always spans the whole document.
func (p *Provider) Edits(ctx context.Context, doc Document, rng Range, force bool) (pipeline.Result, []TextEdit) {
	full := FullRange(doc.Text)
	opts := pipeline.Options{Force: force}
	if rng != full {
		start, end := UnitOffsetAt(doc.Text, rng.Start), UnitOffsetAt(doc.Text, rng.End)
		if end < start {
			start, end = end, start
		}
		opts.RangeStart, opts.RangeEnd = &start, &end
	}
	res, ok := p.run(ctx, doc, opts)
	if !ok || !Applicable(res) {
		return res, nil
	}
	return res, []TextEdit{{Range: full, NewText: res.Text}}
}

// Applicable reports whether a result should become an edit. Failed,
// aborted and disabled-without-change results yield no edit so the host can
// fall back to another formatter.
func Applicable(res pipeline.Result) bool {
	if res.Aborted || res.Cancelled {
		return false
	}
	switch res.Status {
	case status.Error:
		return false
	case status.Disabled:
		return res.Changed
	}
	return true
}
