package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// table writes tab-separated rows for pipes and aligned columns with a
// header for terminals.
type table struct {
	header []string
	rows   [][]string
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) write(w io.Writer) error {
	if !isTerminal(w) {
		for _, r := range t.rows {
			if _, err := fmt.Fprintln(w, strings.Join(r, "\t")); err != nil {
				return err
			}
		}
		return nil
	}

	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, r := range t.rows {
		for i := 0; i < len(r) && i < len(widths); i++ {
			widths[i] = max(widths[i], runewidth.StringWidth(r[i]))
		}
	}
	if total := terminalWidth(w); total > 0 && len(widths) > 0 {
		// The last column absorbs any overflow.
		used := 0
		for _, wd := range widths[:len(widths)-1] {
			used += wd + 2
		}
		last := len(widths) - 1
		widths[last] = max(8, min(widths[last], total-used))
	}

	if _, err := fmt.Fprintln(w, formatRow(t.header, widths)); err != nil {
		return err
	}
	for _, r := range t.rows {
		if _, err := fmt.Fprintln(w, formatRow(r, widths)); err != nil {
			return err
		}
	}
	return nil
}

func formatRow(cells []string, widths []int) string {
	parts := make([]string, 0, len(cells))
	for i, c := range cells {
		if i >= len(widths) {
			parts = append(parts, c)
			continue
		}
		c = runewidth.Truncate(c, widths[i], "…")
		if i < len(widths)-1 {
			c = runewidth.FillRight(c, widths[i])
		}
		parts = append(parts, c)
	}
	return strings.Join(parts, "  ")
}
