package wallet

import (
	"log/slog"

	"github.com/stacklok/toolhive-wallet-sync/internal/ledger"
	"github.com/stacklok/toolhive-wallet-sync/internal/message"
)

// Decision is the outcome of applying a result
type Decision struct {
	// Applied is set when at least one store changed
	Applied bool
	// Surface is set when the user must be told about an error
	Surface bool
}

// Reconciler folds worker results into the stores. It is the only place
// deciding which errors are surfaced and which data they invalidate.
type Reconciler struct {
	stores *Stores
}

// NewReconciler creates a reconciler writing into stores
func NewReconciler(stores *Stores) *Reconciler {
	return &Reconciler{stores: stores}
}

// Stores returns the stores the reconciler writes into
func (r *Reconciler) Stores() *Stores {
	return r.stores
}

// Apply folds res into the stores. params are the parameters the producing
// worker was started with; they name the keys an error affects.
func (r *Reconciler) Apply(params message.Params, res message.Result) Decision {
	if res.Err != nil {
		return r.applyError(params, res)
	}
	if res.Payload == nil {
		return Decision{}
	}
	return r.applyPayload(params, res)
}

func (r *Reconciler) applyPayload(params message.Params, res message.Result) Decision {
	p := res.Payload
	token := firstNonEmpty(p.Token, params.Token)
	address := firstNonEmpty(p.Address, params.Address)
	minter := firstNonEmpty(p.Minter, params.Minter)

	var applied []string
	if p.Balance != nil && token != "" {
		if r.stores.Balances.Merge(token, res.ObservedAt, *p.Balance) {
			applied = append(applied, string(message.ResourceBalance))
		}
	}
	if p.Pending != nil && address != "" {
		if r.stores.Pending.Apply(address, res.ObservedAt, p.Pending.Data, p.Pending.Certified) {
			applied = append(applied, string(message.ResourcePending))
		}
	}
	if p.Transactions != nil && token != "" {
		if r.stores.Transactions.Merge(token, res.ObservedAt, *p.Transactions) {
			applied = append(applied, string(message.ResourceTransactions))
		}
		// Confirmed transactions are no longer pending
		if address != "" {
			confirmed := ledger.ConfirmedIDs(ledger.Page{Transactions: p.Transactions.Data})
			if r.stores.Pending.RemoveConfirmed(address, confirmed) {
				slog.Debug("Dropped confirmed pending transactions", "address", address)
			}
		}
	}
	if p.MinterInfo != nil && minter != "" {
		if r.stores.Minters.Merge(minter, res.ObservedAt, *p.MinterInfo) {
			applied = append(applied, string(message.ResourceMinter))
		}
	}

	if len(applied) == 0 {
		slog.Debug("Result observed before invalidation, ignored",
			"family", res.Target.Family,
			"wallet", res.Target.Wallet,
			"observed_at", res.ObservedAt)
		return Decision{}
	}
	return Decision{Applied: true}
}

func (r *Reconciler) applyError(params message.Params, res message.Result) Decision {
	e := res.Err
	logger := slog.With(
		"family", res.Target.Family,
		"wallet", res.Target.Wallet,
		"kind", e.Kind,
		"resource", e.Resource,
		"error", e.Message,
	)

	switch e.Kind {
	case message.ErrorKindNoData:
		logger.Debug("Ledger has no data for wallet")
		return Decision{}

	case message.ErrorKindCredential:
		r.invalidateWallet(params)
		logger.Error("Wallet sync stopped, identity unavailable")
		return Decision{Applied: true, Surface: true}

	case message.ErrorKindTransient, message.ErrorKindInternal:
		if e.Certified && e.Resource == message.ResourcePending {
			// Spendability can no longer be trusted for any address
			r.stores.Pending.Reset()
			logger.Error("Certified pending read failed, pending outputs cleared")
			return Decision{Applied: true, Surface: true}
		}
		// Previous values stay until the next successful read
		if e.Certified || e.Kind == message.ErrorKindInternal {
			logger.Error("Wallet sync read failed")
			return Decision{Surface: true}
		}
		logger.Warn("Wallet sync read failed")
		return Decision{}

	default:
		logger.Warn("Ignoring error with unknown kind")
		return Decision{}
	}
}

// invalidateWallet resets every key of the wallet described by params
func (r *Reconciler) invalidateWallet(params message.Params) {
	if params.Token != "" {
		r.stores.Balances.Reset(params.Token)
		r.stores.Transactions.Reset(params.Token)
	}
	if params.Address != "" {
		r.stores.Pending.Invalidate(params.Address)
	}
	if params.Minter != "" {
		r.stores.Minters.Reset(params.Minter)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
