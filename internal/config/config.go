// Package config provides configuration loading and management for the wallet sync server.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/toolhive-wallet-sync/internal/message"
	"github.com/stacklok/toolhive-wallet-sync/internal/telemetry"
)

const (
	// EnvPrefix is the prefix of environment variables read by the CLI
	EnvPrefix = "WALLET_SYNC"

	// IdentitySourceKeyring reads the identity token from the OS keyring
	IdentitySourceKeyring = "keyring"

	// IdentitySourceFile reads the identity token from a local file
	IdentitySourceFile = "file"
)

// walletNamePattern keeps wallet names usable as a single path segment
var walletNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// Wallets are the wallets to keep in sync
	Wallets []WalletConfig `yaml:"wallets"`

	// Identity selects where the user's credentials are read from
	Identity *IdentityConfig `yaml:"identity,omitempty"`

	Ledger LedgerConfig `yaml:"ledger"`

	// StatusDir is where scheduler statuses are persisted.
	// Statuses are kept in memory only when empty.
	StatusDir string `yaml:"statusDir,omitempty"`

	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// WalletConfig defines one tracked wallet
type WalletConfig struct {
	// Name identifies the wallet within its family
	Name string `yaml:"name"`

	// Family is the asset family (btc, eth, icrc, ckminter, sol)
	Family string `yaml:"family"`

	Network string `yaml:"network"`
	Token   string `yaml:"token,omitempty"`
	Address string `yaml:"address,omitempty"`

	// Minter is the minter to watch, only used by the ckminter family
	Minter string `yaml:"minter,omitempty"`

	SyncPolicy *SyncPolicyConfig `yaml:"syncPolicy,omitempty"`
}

// SyncPolicyConfig defines synchronization settings
type SyncPolicyConfig struct {
	Interval string `yaml:"interval"`
}

// IdentityConfig defines where credentials are stored
type IdentityConfig struct {
	// Source is either "keyring" or "file"; defaults to "file"
	Source string `yaml:"source,omitempty"`

	// Service and User locate the keyring entry
	Service string `yaml:"service,omitempty"`
	User    string `yaml:"user,omitempty"`

	// Path is the identity file; defaults to the XDG data home
	Path string `yaml:"path,omitempty"`
}

// LedgerConfig defines the ledger backend
type LedgerConfig struct {
	// Endpoint is the base URL of the ledger gateway
	Endpoint string `yaml:"endpoint"`

	// RequestsPerSecond limits outgoing requests; 0 keeps the client default
	RequestsPerSecond float64 `yaml:"requestsPerSecond,omitempty"`

	// MaxRetries bounds the retries of a failed read; 0 keeps the client default
	MaxRetries uint `yaml:"maxRetries,omitempty"`

	// Timeout is the per-request timeout (e.g., "10s")
	Timeout string `yaml:"timeout,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetIdentity returns the identity configuration, defaulting to the file source
func (c *Config) GetIdentity() IdentityConfig {
	ident := IdentityConfig{}
	if c.Identity != nil {
		ident = *c.Identity
	}
	if ident.Source == "" {
		ident.Source = IdentitySourceFile
	}
	return ident
}

// GetTimeout returns the per-request timeout, zero when unset
func (l *LedgerConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(l.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// Target returns the bridge target of the wallet
func (w *WalletConfig) Target() message.Target {
	return message.Target{Family: message.Family(w.Family), Wallet: w.Name}
}

// Params returns the worker parameters of the wallet
func (w *WalletConfig) Params() message.Params {
	return message.Params{
		Network: w.Network,
		Token:   w.Token,
		Address: w.Address,
		Minter:  w.Minter,
	}
}

// Interval returns the polling interval. It is only meaningful on a
// validated configuration.
func (w *WalletConfig) Interval() time.Duration {
	if w.SyncPolicy == nil {
		return 0
	}
	d, _ := time.ParseDuration(w.SyncPolicy.Interval)
	return d
}

// Validate checks the configuration and reports every problem found
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if len(c.Wallets) == 0 {
		return fmt.Errorf("at least one wallet must be configured")
	}

	var errs []error
	targets := make(map[message.Target]bool)
	// Synced data is keyed by token and by minter, so two wallets sharing
	// either would overwrite each other
	tokens := make(map[string]message.Target)
	minters := make(map[string]message.Target)
	for i := range c.Wallets {
		w := &c.Wallets[i]
		if err := w.validate(i); err != nil {
			errs = append(errs, err)
			continue
		}
		target := w.Target()
		if targets[target] {
			errs = append(errs, fmt.Errorf("wallet[%d]: duplicate wallet '%s'", i, target))
			continue
		}
		targets[target] = true

		if w.Token != "" {
			if owner, ok := tokens[w.Token]; ok {
				errs = append(errs, fmt.Errorf("wallet[%d] (%s): token '%s' is already tracked by '%s'",
					i, w.Name, w.Token, owner))
			} else {
				tokens[w.Token] = target
			}
		}
		if w.Family == string(message.FamilyCkMinter) {
			if owner, ok := minters[w.Minter]; ok {
				errs = append(errs, fmt.Errorf("wallet[%d] (%s): minter '%s' is already tracked by '%s'",
					i, w.Name, w.Minter, owner))
			} else {
				minters[w.Minter] = target
			}
		}
	}

	if err := c.validateIdentity(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Ledger.validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

func (w *WalletConfig) validate(index int) error {
	if w.Name == "" {
		return fmt.Errorf("wallet[%d]: name is required", index)
	}
	prefix := fmt.Sprintf("wallet[%d] (%s)", index, w.Name)

	if !walletNamePattern.MatchString(w.Name) {
		return fmt.Errorf("%s: name may only contain letters, digits, '.', '_' and '-'", prefix)
	}
	if err := message.Family(w.Family).Validate(); err != nil {
		return fmt.Errorf("%s: %w", prefix, err)
	}
	if w.Network == "" {
		return fmt.Errorf("%s: network is required", prefix)
	}
	if err := validateSyncPolicy(w.SyncPolicy, prefix); err != nil {
		return err
	}

	switch message.Family(w.Family) {
	case message.FamilyBTC, message.FamilyETH, message.FamilySOL:
		if w.Token == "" || w.Address == "" {
			return fmt.Errorf("%s: token and address are required for family %s", prefix, w.Family)
		}
	case message.FamilyICRC:
		if w.Token == "" {
			return fmt.Errorf("%s: token is required for family %s", prefix, w.Family)
		}
	case message.FamilyCkMinter:
		if w.Minter == "" {
			return fmt.Errorf("%s: minter is required for family %s", prefix, w.Family)
		}
	}
	return nil
}

func validateSyncPolicy(policy *SyncPolicyConfig, prefix string) error {
	if policy == nil || policy.Interval == "" {
		return fmt.Errorf("%s: syncPolicy.interval is required", prefix)
	}

	d, err := time.ParseDuration(policy.Interval)
	if err != nil {
		return fmt.Errorf("%s: syncPolicy.interval must be a valid duration (e.g., '30s', '5m'): %w", prefix, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s: syncPolicy.interval must be positive", prefix)
	}
	return nil
}

func (c *Config) validateIdentity() error {
	ident := c.GetIdentity()
	switch ident.Source {
	case IdentitySourceFile:
		return nil
	case IdentitySourceKeyring:
		if ident.User == "" {
			return fmt.Errorf("identity: user is required for the keyring source")
		}
		return nil
	default:
		return fmt.Errorf("identity: source must be %q or %q, got %q",
			IdentitySourceKeyring, IdentitySourceFile, ident.Source)
	}
}

func (l *LedgerConfig) validate() error {
	if l.Endpoint == "" {
		return fmt.Errorf("ledger: endpoint is required")
	}
	u, err := url.Parse(l.Endpoint)
	if err != nil {
		return fmt.Errorf("ledger: invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("ledger: endpoint must be an http or https URL, got %q", l.Endpoint)
	}
	if l.RequestsPerSecond < 0 {
		return fmt.Errorf("ledger: requestsPerSecond cannot be negative")
	}
	if l.Timeout != "" {
		if _, err := time.ParseDuration(l.Timeout); err != nil {
			return fmt.Errorf("ledger: timeout must be a valid duration: %w", err)
		}
	}
	return nil
}
