package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/odvcencio/pocket/pkg/remote"
	"github.com/odvcencio/pocket/pkg/repo"
)

func newPushCmd(a *app) *cobra.Command {
	var username string
	var password string
	var token string

	cmd := &cobra.Command{
		Use:   "push [remote]",
		Short: "Push the current branch to a remote",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.open()
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}

			creds, err := a.pushCredentials(username, password, token)
			if err != nil {
				return err
			}

			timeout := a.settings.pushTimeout()
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			res, err := r.Push(ctx, repo.PushOptions{
				Remote:      name,
				Credentials: creds,
				Timeout:     timeout,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Summary())
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "username for HTTP remotes")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password for HTTP remotes")
	cmd.Flags().StringVar(&token, "token", "", "access token, sent as a bearer credential")
	return cmd
}

// pushCredentials merges flags with POCKET_USERNAME / POCKET_PASSWORD and
// prompts for a missing password when attached to a terminal.
func (a *app) pushCredentials(username, password, token string) (*remote.Credentials, error) {
	if token = strings.TrimSpace(token); token != "" {
		return &remote.Credentials{Password: token}, nil
	}
	if username == "" {
		username = a.settings.username()
	}
	if password == "" {
		password = a.settings.password()
	}
	if username == "" && password == "" {
		return nil, nil
	}
	if username != "" && password == "" && isTerminal(os.Stdin) {
		prompt := &survey.Password{Message: fmt.Sprintf("Password for %s:", username)}
		if err := survey.AskOne(prompt, &password); err != nil {
			return nil, fmt.Errorf("read password: %w", err)
		}
	}
	return &remote.Credentials{Username: username, Password: password}, nil
}
