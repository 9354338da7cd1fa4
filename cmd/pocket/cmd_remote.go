package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRemoteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage repository remotes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open()
			if err != nil {
				return err
			}
			remotes, err := r.Remotes()
			if err != nil {
				return err
			}
			for _, rm := range remotes {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", rm.Name, rm.URL)
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <url>",
		Short: "Add a named remote",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open()
			if err != nil {
				return err
			}
			info, err := r.AddRemote(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), info.Summary())
			return nil
		},
	})

	return cmd
}
