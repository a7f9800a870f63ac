package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pefmt/internal/resolve"
	"pefmt/internal/tools"
)

func newResolveCmd() *cobra.Command {
	var bin bool
	cmd := &cobra.Command{
		Use:   "resolve <tool> [file|dir]",
		Short: "Show where a tool resolves from a file or directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd, args, bin)
		},
	}
	cmd.Flags().BoolVar(&bin, "bin", false, "Look for an executable in node_modules/.bin and PATH instead of a package")
	return cmd
}

func runResolve(cmd *cobra.Command, args []string, bin bool) error {
	tool := strings.ToLower(args[0])
	if _, ok := tools.Definition(tool); !ok {
		return fmt.Errorf("unknown tool %q (known: %s)", tool, strings.Join(tools.KnownTools(), ", "))
	}

	a, err := openApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := commandContext(cmd)

	target := a.paths.Root
	if len(args) == 2 {
		if target, err = filepath.Abs(args[1]); err != nil {
			return err
		}
	}
	info, statErr := os.Stat(target)
	isFile := statErr == nil && !info.IsDir()

	var ref resolve.Reference
	switch {
	case bin:
		dir := target
		if isFile {
			dir = filepath.Dir(target)
		}
		ref, err = a.tools.ResolveBin(ctx, tool, dir)
	case isFile:
		ref, err = a.tools.ResolveForFile(ctx, tool, target)
	default:
		ref, err = a.tools.Resolve(ctx, tool, target)
	}
	if err != nil {
		return fmt.Errorf("%s (%s): %w", tool, resolve.Outcome(err), err)
	}

	if outputJSON {
		data, err := json.MarshalIndent(ref, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	cmd.Printf("Tool:    %s (%s)\n", ref.Tool, ref.Package)
	cmd.Printf("Kind:    %s\n", ref.Kind)
	cmd.Printf("Source:  %s\n", ref.Source)
	cmd.Printf("Path:    %s\n", ref.Path)
	cmd.Printf("Version: %s\n", nonEmptyOrDash(ref.Version))
	cmd.Printf("Command: %s\n", strings.Join(ref.Exec, " "))
	return nil
}
