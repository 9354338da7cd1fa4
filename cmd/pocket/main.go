package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/odvcencio/pocket/pkg/logging"
	"github.com/odvcencio/pocket/pkg/repo"
)

const version = "0.1.0-dev"

// app carries state shared by every command of one invocation.
type app struct {
	dir      string
	settings *settings
	logger   *slog.Logger
	closer   io.Closer
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	a := &app{settings: newSettings(), logger: logging.Discard()}

	root := &cobra.Command{
		Use:           "pocket",
		Short:         "A small local version control system",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.settings.load(); err != nil {
				return err
			}
			logger, closer, err := logging.New(logging.Options{
				Verbose: a.settings.verbose(),
				Stderr:  cmd.ErrOrStderr(),
				File:    a.settings.logFile(),
			})
			if err != nil {
				return fmt.Errorf("open log: %w", err)
			}
			a.logger, a.closer = logger, closer
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closer != nil {
				return a.closer.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.dir, "dir", "C", ".", "run as if started in this directory")
	root.PersistentFlags().Bool("verbose", false, "log debug records to stderr")
	root.PersistentFlags().String("log-file", "", "write a rotating debug log to this file")
	a.settings.bindFlags(root.PersistentFlags())

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newAddCmd(a))
	root.AddCommand(newStatusCmd(a))
	root.AddCommand(newCommitCmd(a))
	root.AddCommand(newPushCmd(a))
	root.AddCommand(newRemoteCmd(a))
	root.AddCommand(newLogCmd(a))
	root.AddCommand(newReflogCmd(a))
	root.AddCommand(newVerifyCmd(a))
	root.AddCommand(newServeCmd(a))
	return root
}

func (a *app) open() (*repo.Repo, error) {
	return repo.OpenWith(a.dir, repo.Options{Logger: a.logger})
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "pocket", version)
		},
	}
}

// exitCode maps failures onto distinct exit statuses so scripts can tell
// a rejected push from a usage error.
func exitCode(err error) int {
	switch repo.KindOf(err) {
	case repo.KindNonFastForward, repo.KindRefConflict:
		return 3
	case repo.KindAuthenticationFailed:
		return 4
	case repo.KindTimeout:
		return 5
	case repo.KindUnknown:
		return 1
	default:
		return 2
	}
}
