package pipeline

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pefmt/internal/executor"
	"pefmt/internal/resolve"
)

//go:embed bridge.js
var bridgeScript string

// style is how a resolved tool is invoked.
type style int

const (
	// styleProcess runs the tool's CLI once per request.
	styleProcess style = iota
	// styleDaemon talks to prettierd or eslint_d.
	styleDaemon
	// styleModule loads the package in a Node bridge process.
	styleModule
)

// call carries everything a tool invocation needs.
type call struct {
	ref      resolve.Reference
	style    style
	text     string
	filePath string
	workDir  string
	args     []string
	timeout  time.Duration

	// Module bridge settings.
	force           bool
	virtual         bool
	configPath      string
	ignorePath      string
	withNodeModules bool
	useEditorConfig bool
	rangeStart      *int
	rangeEnd        *int
}

func (r *Runner) format(ctx context.Context, c call) (string, error) {
	switch c.style {
	case styleDaemon:
		// prettierd resolves configuration itself and takes only the file name.
		args := append([]string{}, c.ref.Exec[1:]...)
		res, err := r.exec(ctx, c, append(args, c.filePath))
		if err != nil {
			return "", err
		}
		return res.Stdout, nil
	case styleModule:
		out, err := r.bridge(ctx, c, "format")
		if err != nil {
			return "", err
		}
		if out.Ignored {
			return "", errIgnoredByFormatter
		}
		if out.Output == nil {
			return "", errors.New("formatter returned no output")
		}
		return *out.Output, nil
	default:
		args := append([]string{}, c.ref.Exec[1:]...)
		args = append(args, "--stdin-filepath", c.filePath)
		args = append(args, c.args...)
		if c.rangeStart != nil {
			args = append(args, "--range-start", strconv.Itoa(*c.rangeStart))
		}
		if c.rangeEnd != nil {
			args = append(args, "--range-end", strconv.Itoa(*c.rangeEnd))
		}
		res, err := r.exec(ctx, c, args)
		if err != nil {
			return "", err
		}
		return res.Stdout, nil
	}
}

var errIgnoredByFormatter = errors.New("formatter reports the file as ignored")

func (r *Runner) lint(ctx context.Context, c call) (lintResult, error) {
	switch c.style {
	case styleDaemon:
		args := append([]string{}, c.ref.Exec[1:]...)
		args = append(args, "--stdin", "--stdin-filename", c.filePath, "--fix-to-stdout")
		res, err := r.exec(ctx, c, args)
		if err != nil && !remainingProblems(res, err) {
			return lintResult{}, err
		}
		out := res.Stdout
		return lintResult{Output: &out}, nil
	case styleModule:
		out, err := r.bridge(ctx, c, "lint")
		if err != nil {
			return lintResult{}, err
		}
		return out.lintResult, nil
	default:
		args := append([]string{}, c.ref.Exec[1:]...)
		args = append(args, "--stdin", "--stdin-filename", c.filePath, "--fix-dry-run", "--format", "json")
		res, err := r.exec(ctx, c, args)
		if err != nil && !remainingProblems(res, err) {
			return lintResult{}, err
		}
		result, perr := parseLintJSON(res.Stdout)
		if perr != nil {
			return lintResult{}, perr
		}
		if msg := result.fatal(); msg != "" && result.Output == nil {
			r.log.Warn("linter could not parse " + c.filePath + ": " + msg)
		}
		return result, nil
	}
}

// remainingProblems reports a linter exit that only signals unfixed lint
// problems. Exit code 1 with output is a normal result; anything else is a
// failure.
func remainingProblems(res *executor.Result, err error) bool {
	var cmdErr *executor.CommandError
	if !errors.As(err, &cmdErr) || res == nil {
		return false
	}
	return cmdErr.Stage == "wait" && cmdErr.ExitCode == 1 && strings.TrimSpace(res.Stdout) != ""
}

func (r *Runner) exec(ctx context.Context, c call, args []string) (*executor.Result, error) {
	cmd := executor.Command{
		Path:    c.ref.Exec[0],
		Args:    args,
		Dir:     c.workDir,
		Stdin:   c.text,
		Timeout: c.timeout,
	}
	r.log.Debug("running " + cmd.String())
	res, err := r.runner.Run(ctx, cmd)
	if err != nil {
		return res, err
	}
	if res.Truncated {
		return res, fmt.Errorf("%s output exceeded the output limit", c.ref.Tool)
	}
	if res.Binary {
		return res, fmt.Errorf("%s produced binary output", c.ref.Tool)
	}
	return res, nil
}

type bridgeRequest struct {
	Op              string `json:"op"`
	PackageDir      string `json:"packageDir"`
	Text            string `json:"text"`
	FilePath        string `json:"filePath"`
	Cwd             string `json:"cwd"`
	Force           bool   `json:"force"`
	Virtual         bool   `json:"virtual"`
	ConfigPath      string `json:"configPath,omitempty"`
	IgnorePath      string `json:"ignorePath,omitempty"`
	WithNodeModules bool   `json:"withNodeModules"`
	UseEditorConfig bool   `json:"useEditorConfig"`
	RangeStart      *int   `json:"rangeStart,omitempty"`
	RangeEnd        *int   `json:"rangeEnd,omitempty"`
}

type bridgeResponse struct {
	lintResult
	Ignored bool   `json:"ignored"`
	Error   string `json:"error"`
}

// bridge runs one operation against the resolved package inside a Node
// process.
func (r *Runner) bridge(ctx context.Context, c call, op string) (bridgeResponse, error) {
	req := bridgeRequest{
		Op:              op,
		PackageDir:      c.ref.Path,
		Text:            c.text,
		FilePath:        c.filePath,
		Cwd:             c.workDir,
		Force:           c.force,
		Virtual:         c.virtual,
		ConfigPath:      c.configPath,
		IgnorePath:      c.ignorePath,
		WithNodeModules: c.withNodeModules,
		UseEditorConfig: c.useEditorConfig,
		RangeStart:      c.rangeStart,
		RangeEnd:        c.rangeEnd,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return bridgeResponse{}, fmt.Errorf("encode bridge request: %w", err)
	}

	bc := c
	bc.text = string(payload)
	bc.ref.Exec = []string{r.node}
	res, err := r.exec(ctx, bc, []string{"-e", bridgeScript})

	var out bridgeResponse
	if res != nil && strings.TrimSpace(res.Stdout) != "" {
		if perr := json.Unmarshal([]byte(res.Stdout), &out); perr != nil && err == nil {
			return bridgeResponse{}, fmt.Errorf("decode bridge response: %w", perr)
		}
	}
	if out.Error != "" {
		return out, fmt.Errorf("%s %s: %s", c.ref.Tool, op, firstLine(out.Error))
	}
	if err != nil {
		return out, err
	}
	return out, nil
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}
