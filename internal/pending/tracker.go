// Package pending tracks transactions that were broadcast but are not yet
// confirmed, per address. Transaction building uses the tracker to avoid
// selecting unspent outputs that a pending transaction already consumes.
package pending

import (
	"errors"
	"time"

	"github.com/stacklok/toolhive-wallet-sync/internal/certified"
)

var (
	// ErrNotLoaded means no pending set was ever recorded for the address
	ErrNotLoaded = errors.New("pending transactions not loaded")

	// ErrInvalidated means the pending set was reset and not reloaded yet
	ErrInvalidated = errors.New("pending transactions invalidated")

	// ErrNotCertified means the pending set came from a best-effort read and
	// must not be used to decide which outputs are spendable
	ErrNotCertified = errors.New("pending transactions not certified")
)

// Outpoint identifies a transaction output
type Outpoint struct {
	TxID string `json:"txid"`
	Vout uint32 `json:"vout"`
}

// Item is a broadcast transaction awaiting confirmation
type Item struct {
	// TxID is the identifier used to exclude the item's resources
	TxID string `json:"txid"`

	// Inputs are the outputs consumed by the pending transaction
	Inputs []Outpoint `json:"inputs,omitempty"`
}

// Tracker records pending transactions per address
type Tracker struct {
	items *certified.ListStore[string, Item]
}

// NewTracker creates an empty Tracker
func NewTracker() *Tracker {
	return &Tracker{
		items: certified.NewListStore[string, Item](),
	}
}

// SetPendingItems replaces the pending set of address. certified must only be
// true when the read that produced items was a trust-bearing call.
func (t *Tracker) SetPendingItems(address string, items []Item, certified bool) {
	t.items.Set(address, t.value(items, certified))
}

// Apply replaces the pending set of address unless the address was reset
// after observedAt. It reports whether the set was stored.
func (t *Tracker) Apply(address string, observedAt time.Time, items []Item, certified bool) bool {
	return t.items.Merge(address, observedAt, t.value(items, certified))
}

// Get returns the raw entry for address, following certified.Store semantics
func (t *Tracker) Get(address string) (*certified.Value[[]Item], bool) {
	return t.items.Get(address)
}

// Invalidate marks the pending set of a single address as unusable
func (t *Tracker) Invalidate(address string) {
	t.items.Reset(address)
}

// Reset clears every address
func (t *Tracker) Reset() {
	t.items.ResetAll()
}

// Addresses returns every tracked address
func (t *Tracker) Addresses() []string {
	return t.items.Keys()
}

// RemoveConfirmed drops the items whose transaction id appears in confirmed.
// It reports whether anything was removed.
func (t *Tracker) RemoveConfirmed(address string, confirmed []string) bool {
	if len(confirmed) == 0 {
		return false
	}
	done := make(map[string]struct{}, len(confirmed))
	for _, id := range confirmed {
		done[id] = struct{}{}
	}
	return t.items.Filter(address, func(item Item) bool {
		_, ok := done[item.TxID]
		return !ok
	})
}

// ExcludedIDs returns the ids of the pending transactions of address
func (t *Tracker) ExcludedIDs(address string) ([]string, error) {
	items, err := t.usable(address)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.TxID)
	}
	return ids, nil
}

// ExcludedOutpoints returns every output consumed by a pending transaction
// of address
func (t *Tracker) ExcludedOutpoints(address string) ([]Outpoint, error) {
	items, err := t.usable(address)
	if err != nil {
		return nil, err
	}
	var outpoints []Outpoint
	for _, item := range items {
		outpoints = append(outpoints, item.Inputs...)
	}
	return outpoints, nil
}

func (t *Tracker) usable(address string) ([]Item, error) {
	v, ok := t.items.Get(address)
	switch {
	case !ok:
		return nil, ErrNotLoaded
	case v == nil:
		return nil, ErrInvalidated
	case !v.Certified:
		return nil, ErrNotCertified
	}
	return v.Data, nil
}

func (*Tracker) value(items []Item, isCertified bool) certified.Value[[]Item] {
	if items == nil {
		items = []Item{}
	}
	return certified.Value[[]Item]{Data: items, Certified: isCertified}
}
