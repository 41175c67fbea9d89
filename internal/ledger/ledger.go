// Package ledger defines the read operations sync workers perform against
// ledger backends, and the data they return.
//
// Each read is annotated with its trust level. A read made in ModeUpdate goes
// through a consensus-backed or certificate-verified path and returns
// certified data; ModeQuery is a cheaper best-effort read.
package ledger

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/stacklok/toolhive-wallet-sync/internal/certified"
	"github.com/stacklok/toolhive-wallet-sync/internal/identity"
	"github.com/stacklok/toolhive-wallet-sync/internal/pending"
)

// ErrNoData means the backend has nothing for the request, e.g. an account
// that never received funds. It is expected and not surfaced to users.
var ErrNoData = errors.New("no data for account")

// Mode selects the trust level of a read
type Mode int

const (
	// ModeQuery is a best-effort read
	ModeQuery Mode = iota
	// ModeUpdate is a trust-bearing read
	ModeUpdate
)

// Certified reports whether reads in this mode produce certified data
func (m Mode) Certified() bool {
	return m == ModeUpdate
}

func (m Mode) String() string {
	if m == ModeUpdate {
		return "update"
	}
	return "query"
}

// Account identifies what to read on a ledger
type Account struct {
	// Network is the network identifier, e.g. "mainnet" or "testnet"
	Network string `json:"network"`
	// Token is the token or ledger identifier
	Token string `json:"token,omitempty"`
	// Address is the on-chain address; ledgers keyed by principal leave it empty
	Address string `json:"address,omitempty"`
}

// TxStatus is the confirmation state of a transaction
type TxStatus string

const (
	// TxStatusPending means the transaction is not confirmed yet
	TxStatusPending TxStatus = "pending"
	// TxStatusConfirmed means the transaction is final
	TxStatusConfirmed TxStatus = "confirmed"
	// TxStatusFailed means the transaction was rejected
	TxStatusFailed TxStatus = "failed"
)

// Transaction is a single ledger transaction
type Transaction struct {
	ID          string    `json:"id"`
	From        string    `json:"from,omitempty"`
	To          string    `json:"to,omitempty"`
	Value       *big.Int  `json:"value"`
	Timestamp   time.Time `json:"timestamp"`
	BlockHeight uint64    `json:"blockHeight,omitempty"`
	Status      TxStatus  `json:"status"`
}

// Page is one page of transactions, newest first
type Page struct {
	Transactions []Transaction `json:"transactions"`
	// NextCursor is empty on the last page
	NextCursor string `json:"nextCursor,omitempty"`
}

// MinterInfo is the status of a bridging minter
type MinterInfo struct {
	MinConfirmations  uint32   `json:"minConfirmations"`
	RetrieveMinAmount *big.Int `json:"retrieveMinAmount"`
	DepositFee        *big.Int `json:"depositFee"`
}

// BalanceReader reads account balances
type BalanceReader interface {
	GetBalance(ctx context.Context, ident *identity.Identity, account Account, mode Mode) (
		certified.Value[*big.Int], error)
}

// TransactionsReader reads pages of account transactions
type TransactionsReader interface {
	GetTransactionsPage(ctx context.Context, ident *identity.Identity, account Account, cursor string, mode Mode) (
		certified.Value[Page], error)
}

// PendingReader reads broadcast but unconfirmed transactions. It always uses
// a trust-bearing read because its result decides which outputs are spendable.
type PendingReader interface {
	GetPendingTransactions(ctx context.Context, ident *identity.Identity, account Account) (
		certified.Value[[]pending.Item], error)
}

// MinterReader reads minter status
type MinterReader interface {
	GetMinterInfo(ctx context.Context, ident *identity.Identity, network, minterID string) (
		certified.Value[MinterInfo], error)
}

// Client groups every ledger read
//
//go:generate mockgen -destination=mocks/mock_client.go -package=mocks github.com/stacklok/toolhive-wallet-sync/internal/ledger Client
type Client interface {
	BalanceReader
	TransactionsReader
	PendingReader
	MinterReader
}

// ConfirmedIDs returns the ids of the confirmed transactions of page
func ConfirmedIDs(page Page) []string {
	var ids []string
	for _, tx := range page.Transactions {
		if tx.Status == TxStatusConfirmed {
			ids = append(ids, tx.ID)
		}
	}
	return ids
}
