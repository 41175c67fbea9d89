// Package service provides the business logic behind the wallet sync API
package service

import (
	"context"
	"errors"
	"time"

	"github.com/stacklok/toolhive-wallet-sync/internal/ledger"
	"github.com/stacklok/toolhive-wallet-sync/internal/message"
	"github.com/stacklok/toolhive-wallet-sync/internal/pending"
	"github.com/stacklok/toolhive-wallet-sync/internal/status"
)

var (
	// ErrWalletNotFound is returned for wallets, tokens or minters that are not configured
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrWalletNotStarted is returned when triggering a wallet that is not syncing
	ErrWalletNotStarted = errors.New("wallet sync not started")
	// ErrNotLoaded is returned when no value was synced yet
	ErrNotLoaded = errors.New("not loaded yet")
	// ErrInvalidated is returned when the value was reset and not synced again yet
	ErrInvalidated = errors.New("invalidated, waiting for the next sync")
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go WalletService

// WalletService defines the interface for wallet sync operations
type WalletService interface {
	// CheckReadiness checks if the service is ready to serve requests
	CheckReadiness(ctx context.Context) error

	// ListWallets returns every configured wallet with its scheduler status
	ListWallets(ctx context.Context) ([]WalletStatus, error)

	// GetBalance returns the synced balance of token
	GetBalance(ctx context.Context, token string) (*BalanceView, error)

	// GetTotal sums the balances of tokens, or of every configured token when empty
	GetTotal(ctx context.Context, tokens []string) (*TotalView, error)

	// GetTransactions returns the synced transactions of token, newest first
	GetTransactions(ctx context.Context, token string) (*TransactionsView, error)

	// GetPending returns the pending transactions of address
	GetPending(ctx context.Context, address string) (*PendingView, error)

	// GetMinterInfo returns the synced status of minter
	GetMinterInfo(ctx context.Context, minter string) (*MinterView, error)

	// StartWallet starts (or restarts) the sync of target
	StartWallet(ctx context.Context, target message.Target) error

	// StopWallet stops the sync of target
	StopWallet(ctx context.Context, target message.Target) error

	// TriggerWallet asks for an immediate sync of target
	TriggerWallet(ctx context.Context, target message.Target) error

	// Logout stops every sync, clears the synced data and erases the stored credentials
	Logout(ctx context.Context) error
}

// Wallet is a tracked wallet as configured
type Wallet struct {
	Target   message.Target
	Params   message.Params
	Interval time.Duration
}

// WalletStatus describes a configured wallet
type WalletStatus struct {
	Family   message.Family          `json:"family"`
	Wallet   string                  `json:"wallet"`
	Network  string                  `json:"network"`
	Token    string                  `json:"token,omitempty"`
	Address  string                  `json:"address,omitempty"`
	Minter   string                  `json:"minter,omitempty"`
	Interval string                  `json:"interval"`
	Loaded   bool                    `json:"loaded"`
	Status   *status.SchedulerStatus `json:"status,omitempty"`
}

// BalanceView is a synced balance. Amounts are decimal strings.
type BalanceView struct {
	Token     string    `json:"token"`
	Amount    string    `json:"amount"`
	Certified bool      `json:"certified"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TotalView is the sum of several balances
type TotalView struct {
	Tokens    []string `json:"tokens"`
	Amount    string   `json:"amount"`
	Certified bool     `json:"certified"`
	// Missing lists the tokens without a usable balance
	Missing []string `json:"missing,omitempty"`
}

// TransactionsView is the synced transaction list of a token
type TransactionsView struct {
	Token        string               `json:"token"`
	Certified    bool                 `json:"certified"`
	UpdatedAt    time.Time            `json:"updatedAt"`
	Transactions []ledger.Transaction `json:"transactions"`
}

// PendingView is the set of unconfirmed transactions of an address
type PendingView struct {
	Address   string             `json:"address"`
	Certified bool               `json:"certified"`
	Items     []pending.Item     `json:"items"`
	Excluded  []pending.Outpoint `json:"excludedOutpoints,omitempty"`
}

// MinterView is the synced status of a minter
type MinterView struct {
	Minter    string            `json:"minter"`
	Certified bool              `json:"certified"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Info      ledger.MinterInfo `json:"info"`
}
