// Package message defines the envelopes exchanged between the worker bridge
// and the background sync workers.
//
// Commands flow from the bridge to a worker, results flow back. Every
// envelope carries a Tag from a closed set; receivers switch over the tag
// exhaustively and reject anything else with Validate.
package message

import (
	"fmt"
	"math/big"
	"time"

	"github.com/stacklok/toolhive-wallet-sync/internal/certified"
	"github.com/stacklok/toolhive-wallet-sync/internal/ledger"
	"github.com/stacklok/toolhive-wallet-sync/internal/pending"
)

// Family is an asset family served by one kind of worker
type Family string

const (
	// FamilyBTC is the UTXO chain
	FamilyBTC Family = "btc"
	// FamilyETH is the account chain
	FamilyETH Family = "eth"
	// FamilyICRC covers ledger platform tokens
	FamilyICRC Family = "icrc"
	// FamilyCkMinter covers ledger platform minter status
	FamilyCkMinter Family = "ckminter"
	// FamilySOL is the second account chain
	FamilySOL Family = "sol"
)

// Families returns every known family in a stable order
func Families() []Family {
	return []Family{FamilyBTC, FamilyETH, FamilyICRC, FamilyCkMinter, FamilySOL}
}

// Validate returns an error for unknown families
func (f Family) Validate() error {
	switch f {
	case FamilyBTC, FamilyETH, FamilyICRC, FamilyCkMinter, FamilySOL:
		return nil
	default:
		return fmt.Errorf("unknown family %q", string(f))
	}
}

// Tag identifies the kind of an envelope
type Tag string

const (
	// TagStart starts (or restarts) a worker's schedule
	TagStart Tag = "start"
	// TagStop stops a worker
	TagStop Tag = "stop"
	// TagTrigger asks a worker for an immediate sync
	TagTrigger Tag = "trigger"

	TagSyncBtcWallet         Tag = "syncBtcWallet"
	TagSyncBtcWalletError    Tag = "syncBtcWalletError"
	TagSyncEthWallet         Tag = "syncEthWallet"
	TagSyncEthWalletError    Tag = "syncEthWalletError"
	TagSyncIcrcWallet        Tag = "syncIcrcWallet"
	TagSyncIcrcWalletError   Tag = "syncIcrcWalletError"
	TagSyncCkMinterInfo      Tag = "syncCkMinterInfo"
	TagSyncCkMinterInfoError Tag = "syncCkMinterInfoError"
	TagSyncSolWallet         Tag = "syncSolWallet"
	TagSyncSolWalletError    Tag = "syncSolWalletError"
)

// Validate returns an error for tags outside the closed set
func (t Tag) Validate() error {
	switch t {
	case TagStart, TagStop, TagTrigger,
		TagSyncBtcWallet, TagSyncBtcWalletError,
		TagSyncEthWallet, TagSyncEthWalletError,
		TagSyncIcrcWallet, TagSyncIcrcWalletError,
		TagSyncCkMinterInfo, TagSyncCkMinterInfoError,
		TagSyncSolWallet, TagSyncSolWalletError:
		return nil
	default:
		return fmt.Errorf("unknown message tag %q", string(t))
	}
}

// IsCommand reports whether t is a bridge to worker command
func (t Tag) IsCommand() bool {
	return t == TagStart || t == TagStop || t == TagTrigger
}

// IsError reports whether t is an error result
func (t Tag) IsError() bool {
	switch t {
	case TagSyncBtcWalletError, TagSyncEthWalletError, TagSyncIcrcWalletError,
		TagSyncCkMinterInfoError, TagSyncSolWalletError:
		return true
	default:
		return false
	}
}

// Family returns the family a result tag belongs to. Commands and unknown
// tags return false.
func (t Tag) Family() (Family, bool) {
	switch t {
	case TagSyncBtcWallet, TagSyncBtcWalletError:
		return FamilyBTC, true
	case TagSyncEthWallet, TagSyncEthWalletError:
		return FamilyETH, true
	case TagSyncIcrcWallet, TagSyncIcrcWalletError:
		return FamilyICRC, true
	case TagSyncCkMinterInfo, TagSyncCkMinterInfoError:
		return FamilyCkMinter, true
	case TagSyncSolWallet, TagSyncSolWalletError:
		return FamilySOL, true
	default:
		return "", false
	}
}

// ResultTag returns the success tag of family f
func ResultTag(f Family) Tag {
	switch f {
	case FamilyBTC:
		return TagSyncBtcWallet
	case FamilyETH:
		return TagSyncEthWallet
	case FamilyICRC:
		return TagSyncIcrcWallet
	case FamilyCkMinter:
		return TagSyncCkMinterInfo
	case FamilySOL:
		return TagSyncSolWallet
	default:
		return ""
	}
}

// ErrorTag returns the error tag of family f
func ErrorTag(f Family) Tag {
	switch f {
	case FamilyBTC:
		return TagSyncBtcWalletError
	case FamilyETH:
		return TagSyncEthWalletError
	case FamilyICRC:
		return TagSyncIcrcWalletError
	case FamilyCkMinter:
		return TagSyncCkMinterInfoError
	case FamilySOL:
		return TagSyncSolWalletError
	default:
		return ""
	}
}

// Target names one tracked wallet of a family. A family can track several
// wallets (e.g. one per token) and each gets its own worker.
type Target struct {
	Family Family `json:"family"`
	Wallet string `json:"wallet"`
}

func (t Target) String() string {
	return string(t.Family) + "/" + t.Wallet
}

// Params are the job-specific parameters of a worker
type Params struct {
	Network string `json:"network"`
	Token   string `json:"token,omitempty"`
	Address string `json:"address,omitempty"`
	Minter  string `json:"minter,omitempty"`
	// Cursor is the transactions page to read, empty for the newest
	Cursor string `json:"cursor,omitempty"`
}

// Account returns the ledger account described by p
func (p Params) Account() ledger.Account {
	return ledger.Account{Network: p.Network, Token: p.Token, Address: p.Address}
}

// Command is sent from the bridge to a worker
type Command struct {
	Tag    Tag    `json:"tag"`
	Target Target `json:"target"`
	Params Params `json:"params"`
	// Interval is the polling interval, used by TagStart
	Interval time.Duration `json:"interval,omitempty"`
}

// Resource identifies which read a payload or error belongs to
type Resource string

const (
	ResourceBalance      Resource = "balance"
	ResourceTransactions Resource = "transactions"
	ResourcePending      Resource = "pending"
	ResourceMinter       Resource = "minter"
)

// WalletPayload is the data of a successful sync. Fields a family does not
// read are nil.
type WalletPayload struct {
	Token        string                                `json:"token,omitempty"`
	Address      string                                `json:"address,omitempty"`
	Minter       string                                `json:"minter,omitempty"`
	Balance      *certified.Value[*big.Int]            `json:"balance,omitempty"`
	Transactions *certified.Value[[]ledger.Transaction] `json:"transactions,omitempty"`
	Pending      *certified.Value[[]pending.Item]      `json:"pending,omitempty"`
	MinterInfo   *certified.Value[ledger.MinterInfo]   `json:"minterInfo,omitempty"`
}

// ErrorKind classifies a sync failure
type ErrorKind string

const (
	// ErrorKindCredential means the identity is gone or expired
	ErrorKindCredential ErrorKind = "credential"
	// ErrorKindTransient is a network or backend failure of a single read
	ErrorKindTransient ErrorKind = "transient"
	// ErrorKindInternal is a bug, e.g. a recovered panic
	ErrorKindInternal ErrorKind = "internal"
	// ErrorKindNoData is an expected empty result
	ErrorKindNoData ErrorKind = "nodata"
)

// ErrorPayload describes a failed sync
type ErrorPayload struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	// Resource is the read that failed, empty when not tied to one
	Resource Resource `json:"resource,omitempty"`
	// Certified is set when the failed read was a trust-bearing call
	Certified bool `json:"certified"`
	// Fatal is set when the worker stopped itself
	Fatal bool `json:"fatal"`
}

// Result is sent from a worker to the bridge
type Result struct {
	Tag    Tag    `json:"tag"`
	Target Target `json:"target"`
	// WorkerID identifies the worker instance that produced the result
	WorkerID string `json:"workerId"`
	// ObservedAt is when the read that produced the result started
	ObservedAt time.Time      `json:"observedAt"`
	Payload    *WalletPayload `json:"payload,omitempty"`
	Err        *ErrorPayload  `json:"error,omitempty"`
}

// Validate checks that the tag is known, belongs to the target's family and
// matches the presence of a payload or error
func (r Result) Validate() error {
	if err := r.Tag.Validate(); err != nil {
		return err
	}
	family, ok := r.Tag.Family()
	if !ok {
		return fmt.Errorf("tag %q is not a result tag", string(r.Tag))
	}
	if family != r.Target.Family {
		return fmt.Errorf("tag %q does not belong to family %q", string(r.Tag), string(r.Target.Family))
	}
	if r.Tag.IsError() && r.Err == nil {
		return fmt.Errorf("error result %q without error payload", string(r.Tag))
	}
	if !r.Tag.IsError() && r.Payload == nil {
		return fmt.Errorf("result %q without payload", string(r.Tag))
	}
	return nil
}
