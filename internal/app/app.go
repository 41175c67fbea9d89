// Package app provides application lifecycle management for the wallet sync server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/toolhive-wallet-sync/internal/config"
)

// WalletSyncApp encapsulates all components needed to run the wallet sync server
// It provides lifecycle management and graceful shutdown capabilities
type WalletSyncApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start runs the worker bridge, starts every configured wallet and serves
// HTTP. It blocks until Stop is called or a component fails.
func (app *WalletSyncApp) Start() error {
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	return app.serve(listener)
}

func (app *WalletSyncApp) serve(listener net.Listener) error {
	g, ctx := errgroup.WithContext(app.ctx)

	g.Go(func() error {
		if err := app.components.Bridge.Run(ctx); err != nil {
			return fmt.Errorf("worker bridge failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-app.components.Bridge.Ready():
		case <-ctx.Done():
			return nil
		}
		app.startWallets(ctx)
		return nil
	})

	g.Go(func() error {
		slog.Info("Server listening", "address", listener.Addr().String())
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	// A failed component takes the others down with it
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = app.httpServer.Shutdown(shutdownCtx)
		return nil
	})

	return g.Wait()
}

// startWallets starts every configured wallet. A wallet that fails to start
// is logged and left stopped.
func (app *WalletSyncApp) startWallets(ctx context.Context) {
	svc := app.components.WalletService
	for i := range app.config.Wallets {
		target := app.config.Wallets[i].Target()
		if err := svc.StartWallet(ctx, target); err != nil {
			slog.ErrorContext(ctx, "Failed to start wallet sync",
				"family", target.Family, "wallet", target.Wallet, "error", err)
		}
	}
}

// Stop gracefully stops the application with the given timeout
// It stops the sync workers and then shuts down the HTTP server
func (app *WalletSyncApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	// Cancelling the application context stops the bridge and its workers
	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *WalletSyncApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server
func (app *WalletSyncApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// GetComponents returns the application components
func (app *WalletSyncApp) GetComponents() *AppComponents {
	return app.components
}
