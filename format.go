package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// colorEnabled reports whether stdout is a terminal that should receive
// ANSI color codes, honoring --json (never colored) and a dumb terminal.
func colorEnabled() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) && !flagJSON && os.Getenv("TERM") != "dumb"
}

// stateColor renders a folder/transfer state string in a color matching its
// severity: green for healthy, yellow for paused/conflict, red for error.
func stateColor(state string) string {
	if !colorEnabled() {
		return state
	}

	switch state {
	case "idle", "syncing", "scanning":
		return color.GreenString(state)
	case "paused", "conflict":
		return color.YellowString(state)
	case "error":
		return color.RedString(state)
	default:
		return state
	}
}

// formatSize renders byte counts the way humans read them (e.g. "1.2 MB"),
// via go-humanize rather than a hand-rolled table of size thresholds.
func formatSize(bytes int64) string {
	return humanize.Bytes(uint64(bytes))
}

// formatSpeed renders a bytes-per-second rate.
func formatSpeed(bytesPerSec float64) string {
	return humanize.Bytes(uint64(bytesPerSec)) + "/s"
}

// formatTime returns a relative, human-friendly timestamp (e.g. "3 minutes
// ago"), or "never" for an unset (zero) time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	return humanize.Time(t)
}

// printTable writes aligned columns to the given writer.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.Join(parts, "  "))
}
