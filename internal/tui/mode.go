package tui

import (
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/mattn/go-isatty"
)

// OutputMode describes how batch progress is rendered.
type OutputMode int

const (
	// ModeTUI redraws a live table with bubbletea.
	ModeTUI OutputMode = iota
	// ModePlain prints a static table once the batch finishes.
	ModePlain
	// ModeJSON writes one JSON document per run.
	ModeJSON
)

// DetectMode picks the output mode for out.
func DetectMode(out io.Writer, noProgress, jsonOutput bool) OutputMode {
	if jsonOutput {
		return ModeJSON
	}
	if noProgress || !Interactive(out) {
		return ModePlain
	}
	return ModeTUI
}

// Interactive reports whether out is a terminal that can redraw lines.
func Interactive(out io.Writer) bool {
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return false
	}
	if runtime.GOOS != "windows" {
		term := os.Getenv("TERM")
		if term == "" || strings.EqualFold(term, "dumb") {
			return false
		}
	}
	return true
}
