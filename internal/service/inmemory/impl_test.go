package inmemory

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/toolhive-wallet-sync/internal/bridge"
	"github.com/stacklok/toolhive-wallet-sync/internal/certified"
	identitymocks "github.com/stacklok/toolhive-wallet-sync/internal/identity/mocks"
	"github.com/stacklok/toolhive-wallet-sync/internal/ledger"
	"github.com/stacklok/toolhive-wallet-sync/internal/message"
	"github.com/stacklok/toolhive-wallet-sync/internal/pending"
	"github.com/stacklok/toolhive-wallet-sync/internal/service"
	"github.com/stacklok/toolhive-wallet-sync/internal/status"
	"github.com/stacklok/toolhive-wallet-sync/internal/wallet"
)

type fakeScheduler struct {
	mu       sync.Mutex
	running  bool
	started  map[message.Target]time.Duration
	stopped  []message.Target
	stopAll  int
	startErr error
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{running: true, started: make(map[message.Target]time.Duration)}
}

func (f *fakeScheduler) Start(_ context.Context, target message.Target, _ message.Params, interval time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started[target] = interval
	return nil
}

func (f *fakeScheduler) Stop(_ context.Context, target message.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.started, target)
	f.stopped = append(f.stopped, target)
	return nil
}

func (f *fakeScheduler) Trigger(_ context.Context, target message.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.started[target]; !ok {
		return bridge.ErrNotStarted
	}
	return nil
}

func (f *fakeScheduler) StopAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopAll++
	f.started = make(map[message.Target]time.Duration)
	return nil
}

func (f *fakeScheduler) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

var (
	btcWallet = service.Wallet{
		Target:   message.Target{Family: message.FamilyBTC, Wallet: "main"},
		Params:   message.Params{Network: "mainnet", Token: "btc", Address: "bc1qtest"},
		Interval: 30 * time.Second,
	}
	ethWallet = service.Wallet{
		Target:   message.Target{Family: message.FamilyETH, Wallet: "main"},
		Params:   message.Params{Network: "mainnet", Token: "eth", Address: "0xabc"},
		Interval: time.Minute,
	}
	minterWallet = service.Wallet{
		Target:   message.Target{Family: message.FamilyCkMinter, Wallet: "ckbtc"},
		Params:   message.Params{Network: "mainnet", Minter: "minter-1"},
		Interval: 5 * time.Minute,
	}
)

type testEnv struct {
	svc       service.WalletService
	scheduler *fakeScheduler
	stores    *wallet.Stores
	statusSvc status.Service
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	wallets := []service.Wallet{btcWallet, ethWallet, minterWallet}
	statusSvc := status.NewService(nil)
	regs := make([]status.Registration, 0, len(wallets))
	for _, w := range wallets {
		regs = append(regs, status.Registration{Target: w.Target, Interval: w.Interval})
	}
	require.NoError(t, statusSvc.Initialize(context.Background(), regs))

	env := &testEnv{
		scheduler: newFakeScheduler(),
		stores:    wallet.NewStores(),
		statusSvc: statusSvc,
	}
	svc, err := New(env.scheduler, env.stores, statusSvc, wallets, opts...)
	require.NoError(t, err)
	env.svc = svc
	return env
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()

	stores := wallet.NewStores()
	statusSvc := status.NewService(nil)

	_, err := New(nil, stores, statusSvc, nil)
	assert.EqualError(t, err, "scheduler is required")
	_, err = New(newFakeScheduler(), nil, statusSvc, nil)
	assert.EqualError(t, err, "stores are required")
	_, err = New(newFakeScheduler(), stores, nil, nil)
	assert.EqualError(t, err, "status service is required")
}

func TestCheckReadiness(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	require.NoError(t, env.svc.CheckReadiness(context.Background()))

	env.scheduler.running = false
	assert.Error(t, env.svc.CheckReadiness(context.Background()))
}

func TestListWallets(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.stores.Balances.Set("btc", certified.Certify(big.NewInt(1)))
	env.stores.Transactions.Set("btc", certified.Certify([]ledger.Transaction{}))
	env.stores.Minters.Set("minter-1", certified.Certify(ledger.MinterInfo{}))

	wallets, err := env.svc.ListWallets(context.Background())
	require.NoError(t, err)
	require.Len(t, wallets, 3)

	assert.Equal(t, message.FamilyBTC, wallets[0].Family)
	assert.Equal(t, "30s", wallets[0].Interval)
	assert.True(t, wallets[0].Loaded)
	require.NotNil(t, wallets[0].Status)
	assert.Equal(t, status.PhaseStopped, wallets[0].Status.Phase)

	assert.False(t, wallets[1].Loaded)
	assert.True(t, wallets[2].Loaded)
}

func TestGetBalance(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.GetBalance(ctx, "doge")
	assert.ErrorIs(t, err, service.ErrWalletNotFound)

	_, err = env.svc.GetBalance(ctx, "btc")
	assert.ErrorIs(t, err, service.ErrNotLoaded)

	env.stores.Balances.Set("btc", certified.Certify(big.NewInt(500000)))
	view, err := env.svc.GetBalance(ctx, "btc")
	require.NoError(t, err)
	assert.Equal(t, "500000", view.Amount)
	assert.True(t, view.Certified)
	assert.False(t, view.UpdatedAt.IsZero())

	env.stores.Balances.Reset("btc")
	_, err = env.svc.GetBalance(ctx, "btc")
	assert.ErrorIs(t, err, service.ErrInvalidated)
}

func TestGetTotal(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	env.stores.Balances.Set("btc", certified.Certify(big.NewInt(7)))
	env.stores.Balances.Set("eth", certified.Certify(big.NewInt(5)))

	total, err := env.svc.GetTotal(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"btc", "eth"}, total.Tokens)
	assert.Equal(t, "12", total.Amount)
	assert.True(t, total.Certified)
	assert.Empty(t, total.Missing)

	env.stores.Balances.Reset("eth")
	total, err = env.svc.GetTotal(ctx, []string{"btc", "eth"})
	require.NoError(t, err)
	assert.Equal(t, "7", total.Amount)
	assert.False(t, total.Certified)
	assert.Equal(t, []string{"eth"}, total.Missing)

	_, err = env.svc.GetTotal(ctx, []string{"doge"})
	assert.ErrorIs(t, err, service.ErrWalletNotFound)
}

func TestGetTransactions(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	env.stores.Transactions.Set("eth", certified.Uncertified([]ledger.Transaction{
		{ID: "old", Timestamp: base},
		{ID: "new", Timestamp: base.Add(time.Hour)},
	}))

	view, err := env.svc.GetTransactions(ctx, "eth")
	require.NoError(t, err)
	assert.False(t, view.Certified)
	require.Len(t, view.Transactions, 2)
	assert.Equal(t, "new", view.Transactions[0].ID)

	_, err = env.svc.GetTransactions(ctx, "btc")
	assert.ErrorIs(t, err, service.ErrNotLoaded)
}

func TestGetPending(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.GetPending(ctx, "bc1qtest")
	assert.ErrorIs(t, err, service.ErrNotLoaded)

	items := []pending.Item{{TxID: "p1", Inputs: []pending.Outpoint{{TxID: "prev", Vout: 2}}}}
	env.stores.Pending.SetPendingItems("bc1qtest", items, false)
	view, err := env.svc.GetPending(ctx, "bc1qtest")
	require.NoError(t, err)
	assert.False(t, view.Certified)
	assert.Equal(t, items, view.Items)
	assert.Empty(t, view.Excluded, "uncertified sets never drive output selection")

	env.stores.Pending.SetPendingItems("bc1qtest", items, true)
	view, err = env.svc.GetPending(ctx, "bc1qtest")
	require.NoError(t, err)
	assert.Equal(t, []pending.Outpoint{{TxID: "prev", Vout: 2}}, view.Excluded)

	env.stores.Pending.Invalidate("bc1qtest")
	_, err = env.svc.GetPending(ctx, "bc1qtest")
	assert.ErrorIs(t, err, service.ErrInvalidated)
}

func TestGetMinterInfo(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.GetMinterInfo(ctx, "unknown")
	assert.ErrorIs(t, err, service.ErrWalletNotFound)

	_, err = env.svc.GetMinterInfo(ctx, "minter-1")
	assert.ErrorIs(t, err, service.ErrNotLoaded)

	env.stores.Minters.Set("minter-1", certified.Certify(ledger.MinterInfo{MinConfirmations: 6}))
	view, err := env.svc.GetMinterInfo(ctx, "minter-1")
	require.NoError(t, err)
	assert.True(t, view.Certified)
	assert.Equal(t, uint32(6), view.Info.MinConfirmations)
}

func TestWalletControl(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	env := newTestEnv(t, WithTracer(tp.Tracer(ServiceTracerName)))
	ctx := context.Background()
	unknown := message.Target{Family: message.FamilySOL, Wallet: "main"}

	assert.ErrorIs(t, env.svc.StartWallet(ctx, unknown), service.ErrWalletNotFound)
	assert.ErrorIs(t, env.svc.StopWallet(ctx, unknown), service.ErrWalletNotFound)
	assert.ErrorIs(t, env.svc.TriggerWallet(ctx, unknown), service.ErrWalletNotFound)

	assert.ErrorIs(t, env.svc.TriggerWallet(ctx, btcWallet.Target), service.ErrWalletNotStarted)

	require.NoError(t, env.svc.StartWallet(ctx, btcWallet.Target))
	assert.Equal(t, 30*time.Second, env.scheduler.started[btcWallet.Target])
	require.NoError(t, env.svc.TriggerWallet(ctx, btcWallet.Target))

	require.NoError(t, env.svc.StopWallet(ctx, btcWallet.Target))
	assert.Equal(t, []message.Target{btcWallet.Target}, env.scheduler.stopped)

	env.scheduler.startErr = bridge.ErrNotRunning
	err := env.svc.StartWallet(ctx, ethWallet.Target)
	assert.ErrorIs(t, err, bridge.ErrNotRunning)

	var names []string
	for _, span := range exporter.GetSpans() {
		names = append(names, span.Name)
	}
	assert.Contains(t, names, "walletSvc.StartWallet")
	assert.Contains(t, names, "walletSvc.TriggerWallet")
}

func TestLogout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		deleteErr error
		wantErr   bool
	}{
		{name: "clears everything"},
		{name: "credential removal fails", deleteErr: errors.New("keyring locked"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			credentials := identitymocks.NewMockStorage(ctrl)
			credentials.EXPECT().Delete(gomock.Any()).Return(tt.deleteErr)

			env := newTestEnv(t, WithCredentials(credentials))
			env.stores.Balances.Set("btc", certified.Certify(big.NewInt(1)))
			require.NoError(t, env.svc.StartWallet(context.Background(), btcWallet.Target))

			err := env.svc.Logout(context.Background())
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "failed to erase credentials")
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, 1, env.scheduler.stopAll)
			assert.Empty(t, env.scheduler.started)
			assert.Empty(t, env.stores.Balances.Keys())
		})
	}
}
