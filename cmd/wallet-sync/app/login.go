package app

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	walletapp "github.com/stacklok/toolhive-wallet-sync/internal/app"
	"github.com/stacklok/toolhive-wallet-sync/internal/config"
	"github.com/stacklok/toolhive-wallet-sync/internal/identity"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the identity token used to read ledgers",
		Long: `Store the identity token sync workers read ledgers with.

The token is read from --token, or from stdin when the flag is omitted.
It is stored where the configuration (--config) says, by default in a file
below the user's data directory.`,
		RunE: runLogin,
	}
	cmd.Flags().String("token", "", "Identity token (read from stdin when empty)")
	cmd.Flags().String("config", "", "Path to configuration file (YAML format)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Erase the stored identity token",
		Long: `Erase the stored identity token.

Running servers notice on their next sync: every worker stops and the
wallet data it served is invalidated.`,
		RunE: runLogout,
	}
	cmd.Flags().String("config", "", "Path to configuration file (YAML format)")
	return cmd
}

func runLogin(cmd *cobra.Command, _ []string) error {
	storage, err := identityStorage(cmd)
	if err != nil {
		return err
	}

	token, err := cmd.Flags().GetString("token")
	if err != nil {
		return err
	}
	if token == "" {
		token, err = readToken(cmd.InOrStdin())
		if err != nil {
			return err
		}
	}

	ident, err := identity.FromToken(token)
	if err != nil {
		return fmt.Errorf("invalid identity token: %w", err)
	}
	if err := storage.Store(cmd.Context(), token); err != nil {
		return fmt.Errorf("failed to store identity: %w", err)
	}

	slog.Info("Identity stored", "principal", ident.Principal)
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", ident.Principal)
	return err
}

func runLogout(cmd *cobra.Command, _ []string) error {
	storage, err := identityStorage(cmd)
	if err != nil {
		return err
	}
	if err := storage.Delete(cmd.Context()); err != nil {
		return fmt.Errorf("failed to erase identity: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	return err
}

// identityStorage returns the storage selected by --config, or the default
// identity file without one
func identityStorage(cmd *cobra.Command) (identity.Storage, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if configPath == "" {
		return identity.NewFileLoader(""), nil
	}
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return walletapp.NewIdentityStorage(cfg), nil
}

func readToken(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", fmt.Errorf("no token provided")
	}
	return token, nil
}
