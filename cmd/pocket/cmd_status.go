package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/odvcencio/pocket/pkg/repo"
	"github.com/odvcencio/pocket/pkg/worktree"
)

var (
	stagedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	unstagedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	untrackedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
)

func newStatusCmd(a *app) *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show working tree status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open()
			if err != nil {
				return err
			}
			st, err := r.Status()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if short {
				printShortStatus(out, st)
				return nil
			}
			if !isTerminal(out) {
				fmt.Fprint(out, st.Summary())
				return nil
			}
			printColorStatus(out, st)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&short, "short", "s", false, "one line per path")
	return cmd
}

var shortCodes = map[worktree.ChangeKind]string{
	worktree.Added:    "A",
	worktree.Modified: "M",
	worktree.Removed:  "D",
}

func printShortStatus(out io.Writer, st *repo.StatusReport) {
	for _, c := range st.Staged {
		fmt.Fprintf(out, "%s  %s\n", shortCodes[c.Kind], c.Path)
	}
	for _, p := range st.Modified {
		fmt.Fprintf(out, " M %s\n", p)
	}
	for _, p := range st.Deleted {
		fmt.Fprintf(out, " D %s\n", p)
	}
	for _, p := range st.Untracked {
		fmt.Fprintf(out, "?? %s\n", p)
	}
}

func printColorStatus(out io.Writer, st *repo.StatusReport) {
	fmt.Fprintf(out, "On branch %s\n", st.Branch)
	if st.Unborn() {
		fmt.Fprintln(out, "\nNo commits yet")
	}
	if st.Clean() {
		fmt.Fprintln(out, "nothing to commit, working tree clean")
		return
	}
	if len(st.Staged) > 0 {
		fmt.Fprintln(out, "\nChanges to be committed:")
		for _, c := range st.Staged {
			fmt.Fprintln(out, stagedStyle.Render(fmt.Sprintf("  %-10s %s", c.Kind.String()+":", c.Path)))
		}
	}
	if len(st.Modified)+len(st.Deleted) > 0 {
		fmt.Fprintln(out, "\nChanges not staged for commit:")
		for _, p := range st.Modified {
			fmt.Fprintln(out, unstagedStyle.Render(fmt.Sprintf("  %-10s %s", "modified:", p)))
		}
		for _, p := range st.Deleted {
			fmt.Fprintln(out, unstagedStyle.Render(fmt.Sprintf("  %-10s %s", "deleted:", p)))
		}
	}
	if len(st.Untracked) > 0 {
		fmt.Fprintln(out, "\nUntracked files:")
		for _, p := range st.Untracked {
			fmt.Fprintln(out, untrackedStyle.Render("  "+p))
		}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
