package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stacklok/toolhive-wallet-sync/internal/certified"
	"github.com/stacklok/toolhive-wallet-sync/internal/identity"
	"github.com/stacklok/toolhive-wallet-sync/internal/ledger"
	"github.com/stacklok/toolhive-wallet-sync/internal/message"
)

// EmitFunc publishes one payload produced by a sync
type EmitFunc func(payload *message.WalletPayload)

// Syncer performs the ledger reads of one family.
//
// Sync calls emit for every payload it produces; most families emit once,
// query-and-update families emit the uncertified result before the certified
// one. Reads that succeeded before a failure are emitted before the error is
// returned.
//
//go:generate mockgen -destination=mocks/mock_syncer.go -package=mocks github.com/stacklok/toolhive-wallet-sync/internal/worker Syncer
type Syncer interface {
	Sync(ctx context.Context, ident *identity.Identity, params message.Params, emit EmitFunc) error
}

// NewSyncer returns the syncer of family
func NewSyncer(family message.Family, client ledger.Client) (Syncer, error) {
	switch family {
	case message.FamilyBTC:
		return &utxoSyncer{client: client}, nil
	case message.FamilyETH, message.FamilySOL:
		return &accountSyncer{client: client}, nil
	case message.FamilyICRC:
		return &queryUpdateSyncer{client: client}, nil
	case message.FamilyCkMinter:
		return &minterSyncer{client: client}, nil
	default:
		return nil, fmt.Errorf("no syncer for family %q", string(family))
	}
}

func newPayload(params message.Params) *message.WalletPayload {
	return &message.WalletPayload{
		Token:   params.Token,
		Address: params.Address,
		Minter:  params.Minter,
	}
}

func transactionsOf(page certified.Value[ledger.Page]) *certified.Value[[]ledger.Transaction] {
	return &certified.Value[[]ledger.Transaction]{
		Data:      page.Data.Transactions,
		Certified: page.Certified,
	}
}

// utxoSyncer reads the balance and the pending transactions of an address
// with trust-bearing reads, then the confirmed transactions feed.
type utxoSyncer struct {
	client ledger.Client
}

func (s *utxoSyncer) Sync(ctx context.Context, ident *identity.Identity, params message.Params, emit EmitFunc) error {
	account := params.Account()
	payload := newPayload(params)

	balance, err := s.client.GetBalance(ctx, ident, account, ledger.ModeUpdate)
	if err != nil {
		return readError(err, message.ResourceBalance, true)
	}
	payload.Balance = &balance

	pendingTxs, err := s.client.GetPendingTransactions(ctx, ident, account)
	if err != nil {
		emit(payload)
		return readError(err, message.ResourcePending, true)
	}
	payload.Pending = &pendingTxs

	page, err := s.client.GetTransactionsPage(ctx, ident, account, params.Cursor, ledger.ModeQuery)
	if err != nil {
		emit(payload)
		return readError(err, message.ResourceTransactions, false)
	}
	payload.Transactions = transactionsOf(page)

	emit(payload)
	return nil
}

// accountSyncer reads balance and transactions of an account chain
type accountSyncer struct {
	client ledger.Client
}

func (s *accountSyncer) Sync(ctx context.Context, ident *identity.Identity, params message.Params, emit EmitFunc) error {
	account := params.Account()
	payload := newPayload(params)

	balance, err := s.client.GetBalance(ctx, ident, account, ledger.ModeQuery)
	if err != nil {
		return readError(err, message.ResourceBalance, false)
	}
	payload.Balance = &balance

	page, err := s.client.GetTransactionsPage(ctx, ident, account, params.Cursor, ledger.ModeQuery)
	if err != nil {
		emit(payload)
		return readError(err, message.ResourceTransactions, false)
	}
	payload.Transactions = transactionsOf(page)

	emit(payload)
	return nil
}

// queryUpdateSyncer reads balance and transactions twice: a fast query whose
// result is published right away, then the certified update call.
type queryUpdateSyncer struct {
	client ledger.Client
}

func (s *queryUpdateSyncer) Sync(
	ctx context.Context, ident *identity.Identity, params message.Params, emit EmitFunc,
) error {
	if err := s.read(ctx, ident, params, ledger.ModeQuery, emit); err != nil {
		// A failed query is superseded by the update call
		if asSyncError(err).Fatal() {
			return err
		}
		slog.Debug("Query read failed, waiting for update call",
			"token", params.Token,
			"error", err)
	}
	return s.read(ctx, ident, params, ledger.ModeUpdate, emit)
}

func (s *queryUpdateSyncer) read(
	ctx context.Context, ident *identity.Identity, params message.Params, mode ledger.Mode, emit EmitFunc,
) error {
	account := params.Account()
	payload := newPayload(params)

	balance, err := s.client.GetBalance(ctx, ident, account, mode)
	if err != nil {
		return readError(err, message.ResourceBalance, mode.Certified())
	}
	payload.Balance = &balance

	page, err := s.client.GetTransactionsPage(ctx, ident, account, params.Cursor, mode)
	if err != nil {
		emit(payload)
		return readError(err, message.ResourceTransactions, mode.Certified())
	}
	payload.Transactions = transactionsOf(page)

	emit(payload)
	return nil
}

// minterSyncer reads the status of a bridging minter
type minterSyncer struct {
	client ledger.Client
}

func (s *minterSyncer) Sync(ctx context.Context, ident *identity.Identity, params message.Params, emit EmitFunc) error {
	info, err := s.client.GetMinterInfo(ctx, ident, params.Network, params.Minter)
	if err != nil {
		return readError(err, message.ResourceMinter, true)
	}

	payload := newPayload(params)
	payload.MinterInfo = &info
	emit(payload)
	return nil
}
