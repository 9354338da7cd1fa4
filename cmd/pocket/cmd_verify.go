package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var errVerifyFailed = errors.New("verification failed")

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify object integrity and commit signatures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open()
			if err != nil {
				return err
			}
			res, err := r.Verify()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			bad := len(res.Problems)
			for _, p := range res.Problems {
				fmt.Fprintf(out, "corrupt: %s\n", p)
			}

			hashes, err := r.Store.List()
			if err != nil {
				return err
			}
			signed := 0
			for _, h := range hashes {
				// Non-commits fail the typed read.
				c, err := r.Store.ReadCommit(h)
				if err != nil || c.Signature == "" {
					continue
				}
				signed++
				fp, err := verifyCommitSignature(c)
				if err != nil {
					bad++
					fmt.Fprintf(out, "bad signature: %s: %v\n", h.Short(), err)
					continue
				}
				a.logger.Debug("good signature", "commit", h.Short(), "key", fp)
			}

			if bad > 0 {
				return fmt.Errorf("%w: %d problem(s) in %d object(s)", errVerifyFailed, bad, res.Checked)
			}
			fmt.Fprintf(out, "ok: verified %d object(s), %d signed commit(s)\n", res.Checked, signed)
			return nil
		},
	}
}
