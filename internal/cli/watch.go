package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"pefmt/internal/edit"
	"pefmt/internal/status"
	"pefmt/internal/watch"
)

type watchOptions struct {
	metricsAddr string
	rate        float64
	dryRun      bool
}

func newWatchCmd() *cobra.Command {
	opts := watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Format files as they are saved",
		Long: `Watch formats each saved file of a supported language, as an editor's
format-on-save would. Changes to package.json, formatter or linter config and
.pefmt.yaml drop the affected cached resolutions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	cmd.Flags().Float64Var(&opts.rate, "rate", 10, "Maximum files formatted per second")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Report what would change without writing")
	return cmd
}

func runWatch(cmd *cobra.Command, opts watchOptions) error {
	ctx := commandContext(cmd)
	queue := make(chan string, 256)
	enqueue := func(events []watch.Event) {
		for _, ev := range events {
			if ev.Kind != watch.KindSource || ev.Op == watch.OpRemove || ev.Op == watch.OpRename {
				continue
			}
			select {
			case queue <- ev.Path:
			default:
			}
		}
	}

	a, err := openApp(cmd, appOptions{watching: true, onEvents: enqueue})
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	indicator := a.service.Indicator()
	indicator.OnChange(func(s status.Status) {
		a.log.Debug("status " + string(s))
	})

	p, err := a.provider(ctx)
	if err != nil {
		return err
	}

	if opts.metricsAddr != "" {
		stop, err := serveMetrics(opts.metricsAddr, a.metrics.Handler())
		if err != nil {
			return err
		}
		defer stop()
		fmt.Fprintf(out, "Metrics on http://%s/metrics\n", opts.metricsAddr)
	}

	limit := rate.Limit(opts.rate)
	if opts.rate <= 0 {
		limit = rate.Inf
	}
	limiter := rate.NewLimiter(limit, 1)

	fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", a.paths.Root)
	for {
		select {
		case <-ctx.Done():
			return nil
		case path := <-queue:
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			line := formatSaved(ctx, a, p, path, opts.dryRun)
			if line != "" {
				fmt.Fprintln(out, indicator.Current().Icon()+" "+line)
			}
		}
	}
}

// formatSaved formats one saved file and returns a report line, or "" when
// the file is not handled.
func formatSaved(ctx context.Context, a *app, p *edit.Provider, path string, dryRun bool) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	doc := edit.Document{Scheme: edit.SchemeFile, FileName: path, LanguageID: edit.LanguageFor(path), Text: string(data)}
	if !p.Selector().Matches(doc) {
		return ""
	}
	rel := a.paths.Rel(path)

	res, edits := p.Edits(ctx, doc, edit.FullRange(doc.Text), false)
	if len(edits) == 0 {
		if detail := resultError(res); detail != "" {
			return fmt.Sprintf("%s: %s (%s)", rel, res.Status, detail)
		}
		return fmt.Sprintf("%s: %s", rel, res.Status)
	}
	if edits[0].NewText == doc.Text {
		return ""
	}
	if dryRun {
		return rel + ": would change"
	}
	if err := a.host.ApplyEdits(ctx, doc, edits); err != nil {
		return fmt.Sprintf("%s: not written (%v)", rel, err)
	}
	return fmt.Sprintf("%s: formatted in %dms", rel, res.Duration.Milliseconds())
}

func serveMetrics(addr string, handler http.Handler) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
