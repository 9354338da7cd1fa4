package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/odvcencio/pocket/pkg/remote"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	var username string
	var password string

	cmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "Serve a repository to HTTP push clients",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.dir
			if len(args) == 1 {
				path = args[0]
				if !filepath.IsAbs(path) {
					path = filepath.Join(a.dir, path)
				}
			}
			backend, err := remote.OpenBackend(path, a.logger)
			if err != nil {
				return err
			}

			var creds *remote.Credentials
			if password == "" {
				password = a.settings.password()
			}
			if username == "" {
				username = a.settings.username()
			}
			if username != "" || password != "" {
				creds = &remote.Credentials{Username: username, Password: password}
			}

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			srv := &http.Server{
				Handler:           remote.NewServer(backend, creds, a.logger),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "serving %s on http://%s\n", path, ln.Addr())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8417", "listen address")
	cmd.Flags().StringVar(&username, "username", "", "require this username (basic auth)")
	cmd.Flags().StringVar(&password, "password", "", "require this password or bearer token")
	return cmd
}
