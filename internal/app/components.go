package app

import (
	"github.com/stacklok/toolhive-wallet-sync/internal/bridge"
	"github.com/stacklok/toolhive-wallet-sync/internal/service"
	"github.com/stacklok/toolhive-wallet-sync/internal/status"
	"github.com/stacklok/toolhive-wallet-sync/internal/wallet"
)

// AppComponents contains the long-lived components of the wallet sync server
//
//nolint:revive // AppComponents is the established name
type AppComponents struct {
	// Bridge owns the sync workers
	Bridge *bridge.Bridge

	// Stores hold the reconciled wallet data
	Stores *wallet.Stores

	StatusService status.Service

	// WalletService serves the API
	WalletService service.WalletService
}
