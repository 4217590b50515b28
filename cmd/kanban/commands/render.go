package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"kanban-sync/domain"
)

func init() {
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	listColor    = color.New(color.FgCyan, color.Bold)
	idColor      = color.New(color.FgHiBlack)
	versionColor = color.New(color.FgGreen)
	emptyColor   = color.New(color.FgYellow)
	errColor     = color.New(color.FgRed, color.Bold)
)

// renderBoard prints a snapshot as one block per list.
func renderBoard(w io.Writer, s domain.Snapshot) {
	versionColor.Fprintf(w, "board v%d\n", s.Version)
	renderLists(w, s.Board)
}

func renderLists(w io.Writer, b domain.Board) {
	if len(b.Lists) == 0 {
		emptyColor.Fprintln(w, "  (no lists)")
		return
	}
	for i, l := range b.Lists {
		fmt.Fprintf(w, "%d. ", i)
		listColor.Fprint(w, l.Name)
		idColor.Fprintf(w, " [%s]\n", l.ID)
		if len(l.Cards) == 0 {
			emptyColor.Fprintln(w, "     (empty)")
			continue
		}
		for j, c := range l.Cards {
			fmt.Fprintf(w, "   %d. %s", j, c.Text)
			idColor.Fprintf(w, " [%s]\n", c.ID)
		}
	}
}
