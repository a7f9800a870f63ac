package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pefmt/internal/settings"
	"pefmt/internal/tools"
	"pefmt/internal/tui"
)

func newDaemonsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemons",
		Short: "Manage the long-running prettierd and eslint_d variants",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "install [tool|all]",
		Short: "Install daemons globally with npm and remember their paths",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDaemonsInstall,
	})
	return cmd
}

func daemonTargets(arg string) ([]string, error) {
	var all []string
	for _, name := range tools.KnownTools() {
		if def, _ := tools.Definition(name); def.Daemon {
			all = append(all, name)
		}
	}
	if arg == "" || arg == "all" {
		return all, nil
	}
	if def, ok := tools.Definition(arg); ok && def.Daemon {
		return []string{arg}, nil
	}
	if def, ok := tools.DaemonFor(arg); ok {
		return []string{def.Name}, nil
	}
	return nil, fmt.Errorf("unknown daemon: %s (known: %s)", arg, strings.Join(all, ", "))
}

func runDaemonsInstall(cmd *cobra.Command, args []string) error {
	target := ""
	if len(args) == 1 {
		target = strings.ToLower(args[0])
	}
	names, err := daemonTargets(target)
	if err != nil {
		return err
	}

	a, err := openApp(cmd, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(commandContext(cmd), 10*time.Minute)
	defer cancel()

	sw := tui.NewStatusWriter(cmd.ErrOrStderr())
	var (
		statuses []tools.Status
		errs     []error
	)
	for _, name := range names {
		def, _ := tools.Definition(name)
		sw.Update("Installing " + def.Package)
		st, err := a.installer.Install(ctx, name)
		a.metrics.ObserveInstall(name, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		} else if key, ok := settings.DaemonPathKey(name); ok {
			if err := a.settings.Set(ctx, key, st.Path); err != nil {
				errs = append(errs, fmt.Errorf("remember %s: %w", name, err))
			}
		}
		statuses = append(statuses, st)
	}
	sw.Stop()

	if err := writeStatuses(cmd, statuses); err != nil {
		return err
	}
	return errors.Join(errs...)
}
