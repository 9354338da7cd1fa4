package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newLogCmd(a *app) *cobra.Command {
	var oneline bool
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show commit history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open()
			if err != nil {
				return err
			}
			entries, err := r.Log(limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				c := e.Commit
				subject, _, _ := strings.Cut(c.Message, "\n")
				if oneline {
					fmt.Fprintf(out, "%s %s\n", e.Hash.Short(), subject)
					continue
				}
				fmt.Fprintf(out, "commit %s\n", e.Hash)
				fmt.Fprintf(out, "Author: %s\n", c.Author)
				fmt.Fprintf(out, "Date:   %s %s\n", time.Unix(c.Timestamp, 0).UTC().Format("2006-01-02 15:04:05"), c.Timezone)
				if c.Signature != "" {
					fmt.Fprintln(out, "Signed: yes")
				}
				fmt.Fprintln(out)
				for _, line := range strings.Split(c.Message, "\n") {
					fmt.Fprintf(out, "    %s\n", line)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&oneline, "oneline", false, "show each commit on a single line")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of commits to show (0 = all)")
	return cmd
}
