// Package wallet holds the reconciled view of every tracked wallet and the
// policy that folds worker results into it.
package wallet

import (
	"math/big"
	"slices"
	"strings"

	"github.com/stacklok/toolhive-wallet-sync/internal/certified"
	"github.com/stacklok/toolhive-wallet-sync/internal/ledger"
	"github.com/stacklok/toolhive-wallet-sync/internal/pending"
)

// Stores are the reconciliation stores of the application
type Stores struct {
	// Balances are keyed by token
	Balances *certified.Store[string, *big.Int]
	// Transactions are keyed by token
	Transactions *certified.ListStore[string, ledger.Transaction]
	// Minters are keyed by minter id
	Minters *certified.Store[string, ledger.MinterInfo]
	// Pending tracks unconfirmed transactions per address
	Pending *pending.Tracker
}

// NewStores creates empty stores
func NewStores() *Stores {
	return &Stores{
		Balances:     certified.NewStore[string, *big.Int](certified.WithClone(cloneInt)),
		Transactions: certified.NewListStore[string, ledger.Transaction](),
		Minters:      certified.NewStore[string, ledger.MinterInfo](),
		Pending:      pending.NewTracker(),
	}
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// ResetAll clears every store, e.g. on logout
func (s *Stores) ResetAll() {
	s.Balances.ResetAll()
	s.Transactions.ResetAll()
	s.Minters.ResetAll()
	s.Pending.Reset()
}

// IsLoaded reports whether both the balance and the transactions of token
// hold a value
func (s *Stores) IsLoaded(token string) bool {
	return s.Balances.IsLoaded(token) && s.Transactions.IsLoaded(token)
}

// SortedTransactions returns the transactions of token newest first. ok
// follows certified.Store.Get.
func (s *Stores) SortedTransactions(token string) (*certified.Value[[]ledger.Transaction], bool) {
	v, ok := s.Transactions.Get(token)
	if !ok || v == nil {
		return v, ok
	}
	slices.SortStableFunc(v.Data, compareNewestFirst)
	return v, true
}

func compareNewestFirst(a, b ledger.Transaction) int {
	if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
		return c
	}
	if a.BlockHeight != b.BlockHeight {
		if a.BlockHeight > b.BlockHeight {
			return -1
		}
		return 1
	}
	return strings.Compare(a.ID, b.ID)
}

// Total sums the loaded balances of tokens. The total is certified only when
// every summed balance is; tokens without a value are skipped and reported
// in missing.
func (s *Stores) Total(tokens ...string) (total certified.Value[*big.Int], missing []string) {
	sum := new(big.Int)
	allCertified := true
	for _, token := range tokens {
		v, ok := s.Balances.Get(token)
		if !ok || v == nil || v.Data == nil {
			missing = append(missing, token)
			continue
		}
		sum.Add(sum, v.Data)
		allCertified = allCertified && v.Certified
	}
	return certified.Value[*big.Int]{Data: sum, Certified: allCertified && len(missing) == 0}, missing
}
