// Copyright 2026 The Xfer Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
)

// palette holds the styles used for human-readable listings.
type palette struct {
	heading lipgloss.Style
	label   lipgloss.Style
	digest  lipgloss.Style
	good    lipgloss.Style
}

// newPalette builds styles for output written to w. mode is "auto"
// (color when w is a color terminal), "always", or "never".
func newPalette(w io.Writer, mode string) (palette, error) {
	renderer := lipgloss.NewRenderer(w)
	switch mode {
	case "auto":
	case "always":
		// Set explicitly: the renderer otherwise re-detects from w.
		renderer.SetColorProfile(termenv.ANSI256)
	case "never":
		renderer.SetColorProfile(termenv.Ascii)
	default:
		return palette{}, fmt.Errorf("--color must be auto, always, or never (got %q)", mode)
	}
	return palette{
		heading: renderer.NewStyle().Bold(true),
		label:   renderer.NewStyle().Foreground(lipgloss.Color("244")),
		digest:  renderer.NewStyle().Faint(true),
		good:    renderer.NewStyle().Foreground(lipgloss.Color("2")),
	}, nil
}

// table writes rows with columns padded to their widest visible cell.
// Cells may carry ANSI styling; widths ignore escape sequences.
func table(w io.Writer, rows [][]string) {
	var widths []int
	for _, row := range rows {
		for column, cell := range row {
			if column >= len(widths) {
				widths = append(widths, 0)
			}
			widths[column] = max(widths[column], ansi.StringWidth(cell))
		}
	}
	for _, row := range rows {
		var line strings.Builder
		for column, cell := range row {
			line.WriteString(cell)
			if column == len(row)-1 {
				break
			}
			line.WriteString(strings.Repeat(" ", widths[column]-ansi.StringWidth(cell)+2))
		}
		fmt.Fprintln(w, line.String())
	}
}
