package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/odvcencio/pocket/pkg/repo"
)

func newAddCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "add <paths...>",
		Short: "Stage files for the next commit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("specify paths to add, or --all")
			}
			r, err := a.open()
			if err != nil {
				return err
			}
			var res *repo.AddResult
			if all {
				res, err = r.AddAll()
			} else {
				var paths []string
				paths, err = a.absPaths(args)
				if err != nil {
					return err
				}
				res, err = r.Add(paths...)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Summary())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "A", false, "stage every change in the working tree")
	return cmd
}

// absPaths resolves command-line paths against the working directory,
// since repo.Add reads relative paths from the repository root.
func (a *app) absPaths(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		p := arg
		if !filepath.IsAbs(p) {
			p = filepath.Join(a.dir, p)
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", arg, err)
		}
		out = append(out, abs)
	}
	return out, nil
}
