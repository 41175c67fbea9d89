package v1_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	v1 "github.com/stacklok/toolhive-wallet-sync/internal/api/v1"
	"github.com/stacklok/toolhive-wallet-sync/internal/message"
	"github.com/stacklok/toolhive-wallet-sync/internal/service"
	"github.com/stacklok/toolhive-wallet-sync/internal/service/mocks"
)

func serve(t *testing.T, svc service.WalletService, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	v1.Router(svc).ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestListWallets(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	mockSvc := mocks.NewMockWalletService(ctrl)
	mockSvc.EXPECT().ListWallets(gomock.Any()).Return([]service.WalletStatus{
		{Family: message.FamilyBTC, Wallet: "main", Network: "mainnet", Token: "BTC", Interval: "30s", Loaded: true},
	}, nil)

	rr := serve(t, mockSvc, http.MethodGet, "/families")

	require.Equal(t, http.StatusOK, rr.Code)
	wallets, ok := decode(t, rr)["wallets"].([]any)
	require.True(t, ok)
	require.Len(t, wallets, 1)
	first := wallets[0].(map[string]any)
	assert.Equal(t, "btc", first["family"])
	assert.Equal(t, "main", first["wallet"])
	assert.Equal(t, true, first["loaded"])
}

func TestGetBalance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		retryAfter     string
	}{
		{
			name:           "loaded",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown token",
			err:            fmt.Errorf("%w: token DOGE", service.ErrWalletNotFound),
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "not loaded yet",
			err:            service.ErrNotLoaded,
			expectedStatus: http.StatusServiceUnavailable,
			retryAfter:     "5",
		},
		{
			name:           "invalidated",
			err:            service.ErrInvalidated,
			expectedStatus: http.StatusServiceUnavailable,
			retryAfter:     "5",
		},
		{
			name:           "unexpected failure",
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			mockSvc := mocks.NewMockWalletService(ctrl)

			var view *service.BalanceView
			if tt.err == nil {
				view = &service.BalanceView{Token: "BTC", Amount: "1500", Certified: true, UpdatedAt: time.Unix(100, 0).UTC()}
			}
			mockSvc.EXPECT().GetBalance(gomock.Any(), "BTC").Return(view, tt.err)

			rr := serve(t, mockSvc, http.MethodGet, "/balances/BTC")

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Equal(t, tt.retryAfter, rr.Header().Get("Retry-After"))
			body := decode(t, rr)
			if tt.err == nil {
				assert.Equal(t, "1500", body["amount"])
				assert.Equal(t, true, body["certified"])
				return
			}
			assert.Contains(t, body, "error")
			assert.NotContains(t, body["error"], "boom")
		})
	}
}

func TestGetTotal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		query  string
		tokens []string
	}{
		{name: "all configured tokens", query: "", tokens: nil},
		{name: "selected tokens", query: "?token=BTC&token=ETH", tokens: []string{"BTC", "ETH"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			mockSvc := mocks.NewMockWalletService(ctrl)
			mockSvc.EXPECT().GetTotal(gomock.Any(), tt.tokens).Return(&service.TotalView{
				Tokens: []string{"BTC", "ETH"}, Amount: "42", Certified: false, Missing: []string{"ETH"},
			}, nil)

			rr := serve(t, mockSvc, http.MethodGet, "/balances"+tt.query)

			require.Equal(t, http.StatusOK, rr.Code)
			body := decode(t, rr)
			assert.Equal(t, "42", body["amount"])
			assert.Equal(t, []any{"ETH"}, body["missing"])
		})
	}
}

func TestReadEndpoints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		path   string
		expect func(m *mocks.MockWalletService)
		field  string
	}{
		{
			name: "transactions",
			path: "/transactions/ETH",
			expect: func(m *mocks.MockWalletService) {
				m.EXPECT().GetTransactions(gomock.Any(), "ETH").
					Return(&service.TransactionsView{Token: "ETH", Certified: true}, nil)
			},
			field: "token",
		},
		{
			name: "pending",
			path: "/pending/bc1qexample",
			expect: func(m *mocks.MockWalletService) {
				m.EXPECT().GetPending(gomock.Any(), "bc1qexample").
					Return(&service.PendingView{Address: "bc1qexample"}, nil)
			},
			field: "address",
		},
		{
			name: "minter",
			path: "/minters/ckbtc",
			expect: func(m *mocks.MockWalletService) {
				m.EXPECT().GetMinterInfo(gomock.Any(), "ckbtc").
					Return(&service.MinterView{Minter: "ckbtc", Certified: true}, nil)
			},
			field: "minter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			mockSvc := mocks.NewMockWalletService(ctrl)
			tt.expect(mockSvc)

			rr := serve(t, mockSvc, http.MethodGet, tt.path)

			require.Equal(t, http.StatusOK, rr.Code)
			assert.Contains(t, decode(t, rr), tt.field)
		})
	}
}

func TestWalletControl(t *testing.T) {
	t.Parallel()

	btcMain := message.Target{Family: message.FamilyBTC, Wallet: "main"}

	tests := []struct {
		name           string
		path           string
		expect         func(m *mocks.MockWalletService)
		expectedStatus int
		expectedState  string
	}{
		{
			name: "start",
			path: "/families/btc/wallets/main/start",
			expect: func(m *mocks.MockWalletService) {
				m.EXPECT().StartWallet(gomock.Any(), btcMain).Return(nil)
			},
			expectedStatus: http.StatusAccepted,
			expectedState:  "started",
		},
		{
			name: "stop",
			path: "/families/btc/wallets/main/stop",
			expect: func(m *mocks.MockWalletService) {
				m.EXPECT().StopWallet(gomock.Any(), btcMain).Return(nil)
			},
			expectedStatus: http.StatusAccepted,
			expectedState:  "stopped",
		},
		{
			name: "trigger",
			path: "/families/btc/wallets/main/trigger",
			expect: func(m *mocks.MockWalletService) {
				m.EXPECT().TriggerWallet(gomock.Any(), btcMain).Return(nil)
			},
			expectedStatus: http.StatusAccepted,
			expectedState:  "triggered",
		},
		{
			name: "trigger not started",
			path: "/families/btc/wallets/main/trigger",
			expect: func(m *mocks.MockWalletService) {
				m.EXPECT().TriggerWallet(gomock.Any(), btcMain).Return(service.ErrWalletNotStarted)
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "unknown wallet",
			path: "/families/btc/wallets/other/start",
			expect: func(m *mocks.MockWalletService) {
				m.EXPECT().StartWallet(gomock.Any(), message.Target{Family: message.FamilyBTC, Wallet: "other"}).
					Return(service.ErrWalletNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "unknown family",
			path:           "/families/doge/wallets/main/start",
			expect:         func(*mocks.MockWalletService) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			mockSvc := mocks.NewMockWalletService(ctrl)
			tt.expect(mockSvc)

			rr := serve(t, mockSvc, http.MethodPost, tt.path)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedState != "" {
				body := decode(t, rr)
				assert.Equal(t, "btc", body["family"])
				assert.Equal(t, "main", body["wallet"])
				assert.Equal(t, tt.expectedState, body["status"])
			}
		})
	}
}

func TestWalletControl_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	rr := serve(t, mocks.NewMockWalletService(ctrl), http.MethodGet, "/families/btc/wallets/main/start")

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestLogout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{name: "success", expectedStatus: http.StatusNoContent},
		{name: "failure", err: errors.New("keyring locked"), expectedStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			mockSvc := mocks.NewMockWalletService(ctrl)
			mockSvc.EXPECT().Logout(gomock.Any()).Return(tt.err)

			rr := serve(t, mockSvc, http.MethodPost, "/session/logout")

			assert.Equal(t, tt.expectedStatus, rr.Code)
			if tt.err == nil {
				assert.Empty(t, rr.Body.String())
			}
		})
	}
}
