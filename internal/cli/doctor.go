package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"pefmt/internal/config"
	"pefmt/internal/executor"
	"pefmt/internal/paths"
	"pefmt/internal/tools"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the workspace can be formatted",
		RunE:  runDoctor,
	}
}

type healthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Summary string `json:"summary"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	wp, err := paths.Resolve(workspaceDir)
	if err != nil {
		return err
	}
	exists, err := paths.DirExists(wp.Root)
	if err != nil {
		return fmt.Errorf("stat workspace dir: %w", err)
	}
	if !exists {
		return fmt.Errorf("workspace directory does not exist: %s", wp.Root)
	}

	var checks []healthCheck

	section, cfgErr := config.LoadSection(wp.ConfigFile)
	var cfg config.Config
	if cfgErr == nil {
		cfg, cfgErr = config.Decode(section)
	}
	checks = append(checks, checkConfig(wp, cfg, cfgErr))
	if cfgErr != nil {
		return writeDoctorResult(cmd, wp.Root, checks)
	}

	a, err := openApp(cmd, appOptions{})
	if err != nil {
		checks = append(checks, healthCheck{Name: "Workspace", Status: "error", Summary: err.Error()})
		return writeDoctorResult(cmd, wp.Root, checks)
	}
	defer a.Close()
	ctx := commandContext(cmd)

	checks = append(checks, checkNode(ctx, a.runner))
	checks = append(checks, checkTools(a.toolStatuses(ctx, a.paths.Root), a.settings.Snapshot().UseDaemons))
	checks = append(checks, checkIgnore(wp, cfg))
	checks = append(checks, checkState(a))
	if untrusted {
		checks = append(checks, healthCheck{Name: "Trust", Status: "warning", Summary: "untrusted: selectors, editorconfig, node_modules and global modules are off"})
	}

	return writeDoctorResult(cmd, wp.Root, checks)
}

func checkConfig(wp paths.WorkspacePaths, cfg config.Config, cfgErr error) healthCheck {
	if cfgErr != nil {
		return healthCheck{Name: "Config", Status: "error", Summary: cfgErr.Error()}
	}

	var warnings, errs int
	var first string
	for _, v := range cfg.Validate(wp.Root) {
		switch v.Level {
		case "warning":
			warnings++
		case "error":
			errs++
		}
		if first == "" {
			first = v.Message
		}
	}

	summary := fmt.Sprintf("mode %s, package manager %s", cfg.Mode, cfg.PackageManager)
	if errs > 0 {
		return healthCheck{Name: "Config", Status: "error", Summary: fmt.Sprintf("%d errors; %s", errs, first)}
	}
	if warnings > 0 {
		return healthCheck{Name: "Config", Status: "warning", Summary: fmt.Sprintf("%s; %d warnings; %s", summary, warnings, first)}
	}
	return healthCheck{Name: "Config", Status: "ok", Summary: summary}
}

func checkNode(ctx context.Context, runner executor.Runner) healthCheck {
	path, err := exec.LookPath("node")
	if err != nil {
		return healthCheck{Name: "Node", Status: "error", Summary: "node not found in PATH"}
	}
	version, err := tools.ReadVersion(ctx, runner, path)
	if err != nil {
		return healthCheck{Name: "Node", Status: "warning", Summary: fmt.Sprintf("%s: %v", path, err)}
	}
	return healthCheck{Name: "Node", Status: "ok", Summary: version}
}

func checkTools(statuses []tools.Status, useDaemons bool) healthCheck {
	var found []string
	status := "ok"
	var problems []string
	for _, st := range statuses {
		def, _ := tools.Definition(st.Tool)
		if st.Satisfied {
			label := st.Tool
			if st.Version != "" {
				label += " " + st.Version
			}
			found = append(found, label)
			continue
		}
		switch {
		case def.Daemon && !useDaemons:
			continue
		case def.Kind == tools.KindFormatter && !def.Daemon:
			status = "error"
		case status == "ok":
			status = "warning"
		}
		problems = append(problems, st.Tool+" missing")
	}
	if len(problems) == 0 {
		return healthCheck{Name: "Tools", Status: status, Summary: joinComma(found)}
	}
	return healthCheck{Name: "Tools", Status: status, Summary: joinComma(append(problems, found...))}
}

func checkIgnore(wp paths.WorkspacePaths, cfg config.Config) healthCheck {
	file := cfg.IgnorePath
	if !filepath.IsAbs(file) {
		file = filepath.Join(wp.Root, file)
	}
	ok, err := paths.FileExists(file)
	switch {
	case err != nil:
		return healthCheck{Name: "Ignore", Status: "warning", Summary: err.Error()}
	case !ok:
		return healthCheck{Name: "Ignore", Status: "ok", Summary: "no " + cfg.IgnorePath}
	}
	return healthCheck{Name: "Ignore", Status: "ok", Summary: wp.Rel(file)}
}

func checkState(a *app) healthCheck {
	if a.store == nil {
		return healthCheck{Name: "State", Status: "warning", Summary: "state store unavailable; resolutions are not remembered"}
	}
	return healthCheck{Name: "State", Status: "ok", Summary: a.paths.Rel(a.paths.StateDir)}
}

func writeDoctorResult(cmd *cobra.Command, root string, checks []healthCheck) error {
	if outputJSON {
		data, err := json.MarshalIndent(checks, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	bold := lipgloss.NewStyle().Bold(true).Inline(true)
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Inline(true)
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Inline(true)
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Inline(true)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, bold.Render("WORKSPACE HEALTH:")+" "+root)

	for _, c := range checks {
		var statusStr string
		switch c.Status {
		case "ok":
			statusStr = green.Render("OK")
		case "warning":
			statusStr = yellow.Render("WARN")
		case "error":
			statusStr = red.Render("ERROR")
		}
		fmt.Fprintf(out, "  %-10s %s    %s\n", c.Name+":", statusStr, c.Summary)
	}
	return nil
}

func joinComma(items []string) string {
	if len(items) == 0 {
		return ""
	}
	result := items[0]
	for _, item := range items[1:] {
		result += ", " + item
	}
	return result
}
