// Package cliout holds small terminal-output helpers shared by the cmd/
// packages: colorized status words when stdout is a real terminal, and
// human-readable relative timestamps and byte sizes otherwise left as
// raw numbers.
package cliout

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

var colorEnabled = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

const (
	colorGreen  = "\x1b[32m"
	colorRed    = "\x1b[31m"
	colorYellow = "\x1b[33m"
	colorReset  = "\x1b[0m"
)

// Status colorizes a terminal status/phase word: green for success,
// red for failure/cancellation, yellow for anything in progress.
func Status(s string) string {
	if !colorEnabled {
		return s
	}
	switch s {
	case "complete", "completed", "download_complete":
		return colorGreen + s + colorReset
	case "failed", "cancelled", "skipped":
		return colorRed + s + colorReset
	default:
		return colorYellow + s + colorReset
	}
}

// Relative renders t both as RFC3339 and as a humanized "3 minutes ago"
// suffix, the way an operator skimming `job status` output wants it.
func Relative(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return fmt.Sprintf("%s (%s)", t.Format(time.RFC3339), humanize.Time(t))
}

// Bytes renders a byte count rounded to the nearest human-readable unit.
func Bytes(n uint64) string {
	return humanize.Bytes(n)
}
