// Package helpers provides the fake ledger gateway and server lifecycle
// helpers used by the integration tests.
package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
)

// MockLedger is a fake ledger gateway speaking the httpledger protocol
type MockLedger struct {
	mu           sync.Mutex
	balances     map[string]string
	unauthorized bool
	requests     atomic.Int64

	server *httptest.Server
}

// NewMockLedger starts a gateway serving balances keyed by token
func NewMockLedger(balances map[string]string) *MockLedger {
	m := &MockLedger{balances: make(map[string]string, len(balances))}
	for token, amount := range balances {
		m.balances[token] = amount
	}

	r := chi.NewRouter()
	r.Use(m.authenticate)
	r.Get("/v1/{network}/balance", m.balance)
	r.Get("/v1/{network}/transactions", m.transactions)
	r.Get("/v1/{network}/pending", m.pending)
	r.Get("/v1/{network}/minters/{minter}", m.minter)

	m.server = httptest.NewServer(r)
	m.server.Config.SetKeepAlivesEnabled(false)
	return m
}

// URL returns the gateway endpoint
func (m *MockLedger) URL() string {
	return m.server.URL
}

// Close stops the gateway
func (m *MockLedger) Close() {
	m.server.Close()
}

// SetBalance changes the balance served for token
func (m *MockLedger) SetBalance(token, amount string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[token] = amount
}

// RejectCredentials makes every following request fail with 401
func (m *MockLedger) RejectCredentials() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unauthorized = true
}

// Requests returns how many requests were served
func (m *MockLedger) Requests() int64 {
	return m.requests.Load()
}

func (m *MockLedger) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.requests.Add(1)
		m.mu.Lock()
		unauthorized := m.unauthorized
		m.mu.Unlock()
		if unauthorized || !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *MockLedger) balance(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	amount, ok := m.balances[r.URL.Query().Get("token")]
	m.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]any{"balance": amount})
}

func (*MockLedger) transactions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"transactions": []map[string]any{{
			"id":        r.URL.Query().Get("token") + "-tx-1",
			"value":     "100",
			"timestamp": 1700000000,
			"status":    "confirmed",
		}},
	})
}

func (*MockLedger) pending(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"pending": []map[string]any{{
			"txid":   "pending-1",
			"inputs": []map[string]any{{"txid": "funding-1", "vout": 0}},
		}},
	})
}

func (*MockLedger) minter(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"minConfirmations":  6,
		"retrieveMinAmount": "50000",
		"depositFee":        "10",
	})
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}
