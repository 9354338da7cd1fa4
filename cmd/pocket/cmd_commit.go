package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/pocket/pkg/repo"
)

func newCommitCmd(a *app) *cobra.Command {
	var message string
	var author string
	var sign bool
	var keyPath string

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record staged changes to the repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open()
			if err != nil {
				return err
			}
			cfg, err := r.Config()
			if err != nil {
				return err
			}

			opts := repo.CommitOptions{
				Message: message,
				Author:  a.settings.author(author, cfg),
			}
			if sign || keyPath != "" {
				signer, resolved, err := newSSHCommitSigner(keyPath)
				if err != nil {
					return err
				}
				a.logger.Debug("signing commit", "key", resolved)
				opts.Signer = signer
			}

			res, err := r.Commit(opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Summary())
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().StringVar(&author, "author", "", `override author ("Name <email>")`)
	cmd.Flags().BoolVar(&sign, "sign", false, "sign the commit with an SSH key")
	cmd.Flags().StringVar(&keyPath, "key", "", "SSH private key for --sign (default: ~/.ssh/id_ed25519, id_ecdsa, id_rsa)")
	return cmd
}
