package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"pefmt/internal/resolve"
	"pefmt/internal/tools"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the formatter and linter the workspace resolves",
	}
	cmd.AddCommand(newToolsListCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List resolved tool statuses",
		RunE:  runToolsList,
	}
}

func runToolsList(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	statuses := a.toolStatuses(commandContext(cmd), a.paths.Root)
	return writeStatuses(cmd, statuses)
}

// toolStatuses resolves every known tool from dir. One-shot tools go
// through module resolution, daemons through the bin walk and any path
// remembered in settings.
func (a *app) toolStatuses(ctx context.Context, dir string) []tools.Status {
	snap := a.settings.Snapshot()
	ctx = tools.WithMinimums(ctx, snap.Config.MinimumVersions)

	statuses := make([]tools.Status, 0, len(tools.KnownTools()))
	for _, name := range tools.KnownTools() {
		def, _ := tools.Definition(name)
		minimum, notes := tools.MinimumVersion(ctx, def)
		st := tools.Status{Tool: name, Package: def.Package, Minimum: minimum, Notes: notes}

		var (
			ref resolve.Reference
			err error
		)
		if def.Daemon {
			if path := snap.DaemonPath(name); path != "" {
				ref, err = resolve.BinaryReference(name, path, tools.SourceSettings)
			} else {
				ref, err = a.tools.ResolveBin(ctx, name, dir)
			}
			if err == nil && ref.Version == "" {
				if v, verr := tools.ReadVersion(ctx, a.runner, ref.Path); verr == nil {
					ref.Version = v
				}
			}
		} else {
			ref, err = a.tools.Resolve(ctx, name, dir)
		}

		st.Source = ref.Source
		st.Path = ref.Path
		st.Version = ref.Version
		if err != nil {
			st.Error = err.Error()
			if errors.Is(err, resolve.ErrNotFound) {
				st.Notes = append(st.Notes, tools.InstallHints(name)...)
			}
		} else {
			st.Satisfied = true
		}
		statuses = append(statuses, st)
	}
	return statuses
}

func writeStatuses(cmd *cobra.Command, statuses []tools.Status) error {
	if outputJSON {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	printStatusTable(cmd, statuses)
	return nil
}

func printStatusTable(cmd *cobra.Command, statuses []tools.Status) {
	if len(statuses) == 0 {
		cmd.Println("(no tool statuses)")
		return
	}

	rows := make([]tools.Status, len(statuses))
	copy(rows, statuses)
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Tool < rows[j].Tool
	})

	cmd.Printf("%-10s %-13s %-10s %-4s %s\n", "Tool", "Source", "Version", "OK", "Path")
	for _, st := range rows {
		ok := "no"
		if st.Satisfied {
			ok = "yes"
		}
		path := st.Path
		if path == "" {
			path = "(missing)"
		}
		cmd.Printf("%-10s %-13s %-10s %-4s %s\n", st.Tool, nonEmptyOrDash(string(st.Source)), nonEmptyOrDash(st.Version), ok, path)
		if st.Error != "" {
			cmd.Printf("  error: %s\n", st.Error)
		}
		for _, note := range st.Notes {
			cmd.Printf("  %s\n", note)
		}
	}
}

func nonEmptyOrDash(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return value
}
