package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/crm-oauth/internal/httpapi"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the integrations HTTP API",
		Long: `Serve the /integrations routes. The callback route is the redirect URI
registered with each CRM: CRM_BASE_URL + /integrations/callback/{crm}.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if addr == "" {
					addr = a.env.ListenAddr
				}
				ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				handler := httpapi.NewServer(a.service, a.env.httpConfig(a.logger))
				return serve(ctx, addr, handler, a)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: CRM_LISTEN_ADDR or :8000)")
	return cmd
}

// serve runs handler on addr until ctx is done, then shuts down gracefully
func serve(ctx context.Context, addr string, handler http.Handler, a *app) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Serving integrations API", "addr", ln.Addr().String(), "base_url", a.env.BaseURL)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
