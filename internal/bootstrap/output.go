package bootstrap

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/chmouel/lazystage/internal/models"
	"github.com/chmouel/lazystage/internal/workflow"
)

const shortHashLen = 8

func shortHash(hash string) string {
	if len(hash) > shortHashLen {
		return hash[:shortHashLen]
	}
	return hash
}

func printStatus(w io.Writer, snap workflow.Snapshot) error {
	if models.IsLoading(snap.Status) {
		_, err := fmt.Fprintln(w, "Loading...")
		return err
	}
	staged, unstaged := models.Lists(snap.Status)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Mode:\t%s\n", snap.Mode)
	if snap.Message != "" {
		subject, _, _ := strings.Cut(snap.Message, "\n")
		fmt.Fprintf(tw, "Draft:\t%s\n", subject)
	}
	printSection(tw, "Staged", staged)
	printSection(tw, "Unstaged", unstaged)
	return tw.Flush()
}

func printSection(w io.Writer, title string, entries []models.StatusEntry) {
	fmt.Fprintf(w, "%s (%d):\n", title, len(entries))
	for _, e := range entries {
		fmt.Fprintf(w, "  %s\t%s\n", e.Kind.Short(), e.Path)
	}
}

func printActions(w io.Writer, actions workflow.ActionSet) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, b := range actions.Buttons {
		state := "disabled"
		if b.Enabled {
			state = "enabled"
		}
		fmt.Fprintf(tw, "%s\t%s\n", b.Action, state)
	}
	editor := "hidden"
	if actions.ShowMessageEditor {
		editor = "shown"
	}
	fmt.Fprintf(tw, "message editor\t%s\n", editor)
	return tw.Flush()
}

func printBlame(w io.Writer, lines []models.BlameLine) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	for _, l := range lines {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%4d)\t%s\n", shortHash(l.Hash), l.Author, l.Date.Format("2006-01-02"), l.LineNumber, l.Text)
	}
	return tw.Flush()
}

func printHistory(w io.Writer, commits []models.CommitSummary) error {
	for _, c := range commits {
		if _, err := fmt.Fprintf(w, "%s %s %s %s\n", shortHash(c.Hash), c.When.Format("2006-01-02"), c.Author, c.Subject()); err != nil {
			return err
		}
	}
	return nil
}
