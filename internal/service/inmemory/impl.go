// Package inmemory implements the WalletService over the in-process
// reconciliation stores and worker bridge
package inmemory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhive-wallet-sync/internal/bridge"
	"github.com/stacklok/toolhive-wallet-sync/internal/identity"
	"github.com/stacklok/toolhive-wallet-sync/internal/message"
	"github.com/stacklok/toolhive-wallet-sync/internal/otel"
	"github.com/stacklok/toolhive-wallet-sync/internal/pending"
	"github.com/stacklok/toolhive-wallet-sync/internal/service"
	"github.com/stacklok/toolhive-wallet-sync/internal/status"
	"github.com/stacklok/toolhive-wallet-sync/internal/wallet"
)

// Scheduler starts and stops wallet syncs
type Scheduler interface {
	Start(ctx context.Context, target message.Target, params message.Params, interval time.Duration) error
	Stop(ctx context.Context, target message.Target) error
	Trigger(ctx context.Context, target message.Target) error
	StopAll(ctx context.Context) error
	Running() bool
}

var _ Scheduler = (*bridge.Bridge)(nil)

// walletSvc implements the WalletService interface
type walletSvc struct {
	scheduler   Scheduler
	stores      *wallet.Stores
	statusSvc   status.Service
	credentials identity.Storage
	tracer      trace.Tracer

	wallets []service.Wallet
	byKey   map[message.Target]service.Wallet
	tokens  []string
}

var _ service.WalletService = (*walletSvc)(nil)

// Option is a functional option for configuring the walletSvc
type Option func(*walletSvc)

// WithTracer traces every service operation
func WithTracer(tracer trace.Tracer) Option {
	return func(s *walletSvc) {
		s.tracer = tracer
	}
}

// WithCredentials lets Logout erase the stored identity
func WithCredentials(credentials identity.Storage) Option {
	return func(s *walletSvc) {
		s.credentials = credentials
	}
}

// New creates a wallet service over the given scheduler and stores
func New(
	scheduler Scheduler,
	stores *wallet.Stores,
	statusSvc status.Service,
	wallets []service.Wallet,
	opts ...Option,
) (service.WalletService, error) {
	if scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if stores == nil {
		return nil, fmt.Errorf("stores are required")
	}
	if statusSvc == nil {
		return nil, fmt.Errorf("status service is required")
	}

	s := &walletSvc{
		scheduler: scheduler,
		stores:    stores,
		statusSvc: statusSvc,
		wallets:   wallets,
		byKey:     make(map[message.Target]service.Wallet, len(wallets)),
	}
	seen := make(map[string]bool)
	for _, w := range wallets {
		s.byKey[w.Target] = w
		if w.Params.Token != "" && !seen[w.Params.Token] {
			seen[w.Params.Token] = true
			s.tokens = append(s.tokens, w.Params.Token)
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *walletSvc) CheckReadiness(_ context.Context) error {
	if !s.scheduler.Running() {
		return errors.New("worker bridge is not running")
	}
	return nil
}

func (s *walletSvc) ListWallets(ctx context.Context) ([]service.WalletStatus, error) {
	ctx, span := s.startSpan(ctx, "walletSvc.ListWallets")
	defer span.End()

	statuses, err := s.statusSvc.List(ctx)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to list scheduler statuses: %w", err)
	}

	result := make([]service.WalletStatus, 0, len(s.wallets))
	for _, w := range s.wallets {
		result = append(result, service.WalletStatus{
			Family:   w.Target.Family,
			Wallet:   w.Target.Wallet,
			Network:  w.Params.Network,
			Token:    w.Params.Token,
			Address:  w.Params.Address,
			Minter:   w.Params.Minter,
			Interval: w.Interval.String(),
			Loaded:   s.isLoaded(w),
			Status:   statuses[w.Target],
		})
	}
	return result, nil
}

func (s *walletSvc) isLoaded(w service.Wallet) bool {
	if w.Target.Family == message.FamilyCkMinter {
		return s.stores.Minters.IsLoaded(w.Params.Minter)
	}
	return s.stores.IsLoaded(w.Params.Token)
}

func (s *walletSvc) GetBalance(ctx context.Context, token string) (*service.BalanceView, error) {
	_, span := s.startSpan(ctx, "walletSvc.GetBalance", trace.WithAttributes(otel.AttrToken.String(token)))
	defer span.End()

	if !s.hasToken(token) {
		return nil, fmt.Errorf("%w: token %s", service.ErrWalletNotFound, token)
	}
	v, ok := s.stores.Balances.Get(token)
	if err := entryError(ok, v == nil); err != nil {
		return nil, err
	}
	span.SetAttributes(otel.AttrCertified.Bool(v.Certified))
	return &service.BalanceView{
		Token:     token,
		Amount:    v.Data.String(),
		Certified: v.Certified,
		UpdatedAt: s.stores.Balances.UpdatedAt(token),
	}, nil
}

func (s *walletSvc) GetTotal(ctx context.Context, tokens []string) (*service.TotalView, error) {
	_, span := s.startSpan(ctx, "walletSvc.GetTotal")
	defer span.End()

	if len(tokens) == 0 {
		tokens = s.tokens
	}
	for _, token := range tokens {
		if !s.hasToken(token) {
			return nil, fmt.Errorf("%w: token %s", service.ErrWalletNotFound, token)
		}
	}

	total, missing := s.stores.Total(tokens...)
	return &service.TotalView{
		Tokens:    tokens,
		Amount:    total.Data.String(),
		Certified: total.Certified,
		Missing:   missing,
	}, nil
}

func (s *walletSvc) GetTransactions(ctx context.Context, token string) (*service.TransactionsView, error) {
	_, span := s.startSpan(ctx, "walletSvc.GetTransactions", trace.WithAttributes(otel.AttrToken.String(token)))
	defer span.End()

	if !s.hasToken(token) {
		return nil, fmt.Errorf("%w: token %s", service.ErrWalletNotFound, token)
	}
	v, ok := s.stores.SortedTransactions(token)
	if err := entryError(ok, v == nil); err != nil {
		return nil, err
	}
	span.SetAttributes(otel.AttrTxCount.Int(len(v.Data)))
	return &service.TransactionsView{
		Token:        token,
		Certified:    v.Certified,
		UpdatedAt:    s.stores.Transactions.UpdatedAt(token),
		Transactions: v.Data,
	}, nil
}

func (s *walletSvc) GetPending(ctx context.Context, address string) (*service.PendingView, error) {
	_, span := s.startSpan(ctx, "walletSvc.GetPending")
	defer span.End()

	v, ok := s.stores.Pending.Get(address)
	if err := entryError(ok, v == nil); err != nil {
		return nil, err
	}

	view := &service.PendingView{
		Address:   address,
		Certified: v.Certified,
		Items:     v.Data,
	}
	// Only a certified set is safe for output selection
	excluded, err := s.stores.Pending.ExcludedOutpoints(address)
	switch {
	case err == nil:
		view.Excluded = excluded
	case errors.Is(err, pending.ErrNotCertified):
	default:
		return nil, err
	}
	return view, nil
}

func (s *walletSvc) GetMinterInfo(ctx context.Context, minter string) (*service.MinterView, error) {
	_, span := s.startSpan(ctx, "walletSvc.GetMinterInfo")
	defer span.End()

	v, ok := s.stores.Minters.Get(minter)
	if !ok && !s.hasMinter(minter) {
		return nil, fmt.Errorf("%w: minter %s", service.ErrWalletNotFound, minter)
	}
	if err := entryError(ok, v == nil); err != nil {
		return nil, err
	}
	return &service.MinterView{
		Minter:    minter,
		Certified: v.Certified,
		UpdatedAt: s.stores.Minters.UpdatedAt(minter),
		Info:      v.Data,
	}, nil
}

func (s *walletSvc) StartWallet(ctx context.Context, target message.Target) error {
	ctx, span := s.startSpan(ctx, "walletSvc.StartWallet",
		otel.WalletAttributes(string(target.Family), target.Wallet))
	defer span.End()

	w, err := s.lookup(target)
	if err != nil {
		return err
	}
	if err := s.scheduler.Start(ctx, target, w.Params, w.Interval); err != nil {
		otel.RecordError(span, err)
		return fmt.Errorf("failed to start %s: %w", target, err)
	}
	slog.InfoContext(ctx, "Wallet sync started", "family", target.Family, "wallet", target.Wallet)
	return nil
}

func (s *walletSvc) StopWallet(ctx context.Context, target message.Target) error {
	ctx, span := s.startSpan(ctx, "walletSvc.StopWallet",
		otel.WalletAttributes(string(target.Family), target.Wallet))
	defer span.End()

	if _, err := s.lookup(target); err != nil {
		return err
	}
	if err := s.scheduler.Stop(ctx, target); err != nil {
		otel.RecordError(span, err)
		return fmt.Errorf("failed to stop %s: %w", target, err)
	}
	slog.InfoContext(ctx, "Wallet sync stopped", "family", target.Family, "wallet", target.Wallet)
	return nil
}

func (s *walletSvc) TriggerWallet(ctx context.Context, target message.Target) error {
	ctx, span := s.startSpan(ctx, "walletSvc.TriggerWallet",
		otel.WalletAttributes(string(target.Family), target.Wallet))
	defer span.End()

	if _, err := s.lookup(target); err != nil {
		return err
	}
	err := s.scheduler.Trigger(ctx, target)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bridge.ErrNotStarted):
		return fmt.Errorf("%w: %s", service.ErrWalletNotStarted, target)
	default:
		otel.RecordError(span, err)
		return fmt.Errorf("failed to trigger %s: %w", target, err)
	}
}

// Logout stops every worker before clearing the stores so no in-flight read
// lands after the reset
func (s *walletSvc) Logout(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "walletSvc.Logout")
	defer span.End()

	var errs []error
	if err := s.scheduler.StopAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop workers: %w", err))
	}
	s.stores.ResetAll()
	if s.credentials != nil {
		if err := s.credentials.Delete(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to erase credentials: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		otel.RecordError(span, err)
		return err
	}
	slog.InfoContext(ctx, "Logged out, wallet data cleared")
	return nil
}

func (s *walletSvc) lookup(target message.Target) (service.Wallet, error) {
	w, ok := s.byKey[target]
	if !ok {
		return service.Wallet{}, fmt.Errorf("%w: %s", service.ErrWalletNotFound, target)
	}
	return w, nil
}

func (s *walletSvc) hasToken(token string) bool {
	for _, t := range s.tokens {
		if t == token {
			return true
		}
	}
	return false
}

func (s *walletSvc) hasMinter(minter string) bool {
	for _, w := range s.wallets {
		if w.Params.Minter == minter {
			return true
		}
	}
	return false
}

// entryError maps a store lookup to the service errors
func entryError(present, invalidated bool) error {
	switch {
	case !present:
		return service.ErrNotLoaded
	case invalidated:
		return service.ErrInvalidated
	default:
		return nil
	}
}
