package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pefmt/internal/config"
	"pefmt/internal/paths"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the workspace settings file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings in YAML",
		RunE:  runConfigShow,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default .pefmt.yaml at the workspace root",
		RunE:  runConfigInit,
	})
	return cmd
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	wp, err := paths.Resolve(workspaceDir)
	if err != nil {
		return err
	}
	section, err := config.LoadSection(wp.ConfigFile)
	if err != nil {
		return err
	}
	cfg, err := config.Decode(section)
	if err != nil {
		return err
	}
	if untrusted {
		cfg = cfg.Restricted()
	}

	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, string(data))
	if len(data) == 0 || data[len(data)-1] != '\n' {
		fmt.Fprintln(out)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	wp, err := paths.Resolve(workspaceDir)
	if err != nil {
		return err
	}
	created, err := ensureConfigFileExists(wp)
	if err != nil {
		return err
	}
	if !created {
		cmd.Printf("Settings already exist at %s\n", wp.ConfigFile)
		return nil
	}
	cmd.Printf("Created %s\n", wp.ConfigFile)
	return nil
}

func ensureConfigFileExists(wp paths.WorkspacePaths) (bool, error) {
	if _, err := os.Stat(wp.ConfigFile); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(wp.ConfigFile), 0o755); err != nil {
		return false, fmt.Errorf("ensure config dir: %w", err)
	}
	data, err := config.Default().Marshal()
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(wp.ConfigFile, data, 0o644); err != nil {
		return false, fmt.Errorf("write default config: %w", err)
	}
	return true, nil
}
