// Package v1 provides the REST API handlers for synced wallet data.
package v1

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/toolhive-wallet-sync/internal/api/common"
	"github.com/stacklok/toolhive-wallet-sync/internal/message"
	"github.com/stacklok/toolhive-wallet-sync/internal/service"
)

// Routes defines the routes for the wallet API with dependency injection
type Routes struct {
	service service.WalletService
}

// NewRoutes creates a new Routes instance with the provided service
func NewRoutes(svc service.WalletService) *Routes {
	return &Routes{
		service: svc,
	}
}

// Router creates a new router for the wallet API
func Router(svc service.WalletService) http.Handler {
	routes := NewRoutes(svc)

	r := chi.NewRouter()

	r.Get("/families", routes.listWallets)
	r.Route("/families/{family}/wallets/{wallet}", func(r chi.Router) {
		r.Post("/start", routes.startWallet)
		r.Post("/stop", routes.stopWallet)
		r.Post("/trigger", routes.triggerWallet)
	})

	r.Get("/balances", routes.getTotal)
	r.Get("/balances/{token}", routes.getBalance)
	r.Get("/transactions/{token}", routes.getTransactions)
	r.Get("/pending/{address}", routes.getPending)
	r.Get("/minters/{minter}", routes.getMinterInfo)

	r.Post("/session/logout", routes.logout)

	return r
}

// listWallets handles GET /v1/families
func (rr *Routes) listWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := rr.service.ListWallets(r.Context())
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, map[string]any{"wallets": wallets}, http.StatusOK)
}

// getTotal handles GET /v1/balances?token=a&token=b
func (rr *Routes) getTotal(w http.ResponseWriter, r *http.Request) {
	total, err := rr.service.GetTotal(r.Context(), r.URL.Query()["token"])
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, total, http.StatusOK)
}

// getBalance handles GET /v1/balances/{token}
func (rr *Routes) getBalance(w http.ResponseWriter, r *http.Request) {
	token, err := common.GetAndValidateURLParam(r, "token")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	balance, err := rr.service.GetBalance(r.Context(), token)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, balance, http.StatusOK)
}

// getTransactions handles GET /v1/transactions/{token}
func (rr *Routes) getTransactions(w http.ResponseWriter, r *http.Request) {
	token, err := common.GetAndValidateURLParam(r, "token")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	txs, err := rr.service.GetTransactions(r.Context(), token)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, txs, http.StatusOK)
}

// getPending handles GET /v1/pending/{address}
func (rr *Routes) getPending(w http.ResponseWriter, r *http.Request) {
	address, err := common.GetAndValidateURLParam(r, "address")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	view, err := rr.service.GetPending(r.Context(), address)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, view, http.StatusOK)
}

// getMinterInfo handles GET /v1/minters/{minter}
func (rr *Routes) getMinterInfo(w http.ResponseWriter, r *http.Request) {
	minter, err := common.GetAndValidateURLParam(r, "minter")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	view, err := rr.service.GetMinterInfo(r.Context(), minter)
	if err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, view, http.StatusOK)
}

func (rr *Routes) startWallet(w http.ResponseWriter, r *http.Request) {
	rr.control(w, r, rr.service.StartWallet, "started")
}

func (rr *Routes) stopWallet(w http.ResponseWriter, r *http.Request) {
	rr.control(w, r, rr.service.StopWallet, "stopped")
}

func (rr *Routes) triggerWallet(w http.ResponseWriter, r *http.Request) {
	rr.control(w, r, rr.service.TriggerWallet, "triggered")
}

// control runs a wallet command and answers 202 since syncs complete asynchronously
func (*Routes) control(
	w http.ResponseWriter,
	r *http.Request,
	action func(ctx context.Context, target message.Target) error,
	done string,
) {
	target, err := targetFromRequest(r)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := action(r.Context(), target); err != nil {
		common.WriteServiceError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, map[string]string{
		"family": string(target.Family),
		"wallet": target.Wallet,
		"status": done,
	}, http.StatusAccepted)
}

// logout handles POST /v1/session/logout
func (rr *Routes) logout(w http.ResponseWriter, r *http.Request) {
	if err := rr.service.Logout(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "Logout failed", "error", err)
		common.WriteErrorResponse(w, "logout failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func targetFromRequest(r *http.Request) (message.Target, error) {
	family, err := common.GetAndValidateURLParam(r, "family")
	if err != nil {
		return message.Target{}, err
	}
	if err := message.Family(family).Validate(); err != nil {
		return message.Target{}, err
	}
	wallet, err := common.GetAndValidateURLParam(r, "wallet")
	if err != nil {
		return message.Target{}, err
	}
	return message.Target{Family: message.Family(family), Wallet: wallet}, nil
}
