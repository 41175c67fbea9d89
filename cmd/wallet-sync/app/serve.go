package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	walletapp "github.com/stacklok/toolhive-wallet-sync/internal/app"
	"github.com/stacklok/toolhive-wallet-sync/internal/config"
	"github.com/stacklok/toolhive-wallet-sync/internal/telemetry"
)

const defaultGracefulTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the wallet sync server",
		Long: `Start the wallet sync server.

The server requires a configuration file (--config) that specifies:
- The tracked wallets, their family, network and polling interval
- The ledger gateway endpoint and its request limits
- Where the user's identity is stored (keyring or file)
- Optional telemetry settings

Every configured wallet starts syncing as soon as the server is up.`,
		RunE: runServe,
	}

	cmd.Flags().String("address", ":8080", "Address to listen on")
	cmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	if err := viper.BindPFlag("address", cmd.Flags().Lookup("address")); err != nil {
		slog.Error("Failed to bind address flag", "error", err)
	}
	if err := viper.BindPFlag("config", cmd.Flags().Lookup("config")); err != nil {
		slog.Error("Failed to bind config flag", "error", err)
	}
	if err := cmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
	}

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath := viper.GetString("config")
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration", "path", configPath, "wallets", len(cfg.Wallets))

	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultGracefulTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown telemetry", "error", err)
		}
	}()

	app, err := walletapp.NewWalletSyncApp(ctx,
		walletapp.WithConfig(cfg),
		walletapp.WithAddress(viper.GetString("address")),
		walletapp.WithTelemetry(tel),
	)
	if err != nil {
		return fmt.Errorf("failed to create wallet sync app: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := app.Stop(defaultGracefulTimeout); err != nil {
		return err
	}
	return <-errCh
}
