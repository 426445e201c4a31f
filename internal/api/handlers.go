/**
 * @description
 * This file contains the HTTP handlers for the ledger's transaction endpoints and the
 * shared response helpers. Handlers parse the request, call the application service
 * and map its errors onto HTTP status codes.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: URL parameters.
 * - internal/app, internal/domain, internal/store: service logic, models and errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/nilijoski/banking-app/internal/app"
	"github.com/nilijoski/banking-app/internal/domain"
	"github.com/nilijoski/banking-app/internal/store"
)

// Handlers holds the application service that handlers will use.
type Handlers struct {
	service   *app.Service
	rateLimit app.TransferRateLimit
}

// NewHandlers creates a new instance of Handlers. A zero rateLimit disables limiting.
func NewHandlers(service *app.Service, rateLimit app.TransferRateLimit) *Handlers {
	return &Handlers{service: service, rateLimit: rateLimit}
}

type transferResponse struct {
	Success     bool                `json:"success"`
	Message     string              `json:"message,omitempty"`
	Transaction *domain.Transaction `json:"transaction,omitempty"`
}

// TransferHandler handles POST /api/transactions/transfer.
func (h *Handlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, transferResponse{Success: false, Message: "Invalid request body"})
		return
	}

	if retryAfter, err := h.rateLimit.Check(r.Context(), req.FromIban); err != nil {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusTooManyRequests, transferResponse{Success: false, Message: "Too many transfer attempts. Please try again later."})
		return
	}

	tx, err := h.service.Transfer(r.Context(), req)
	if err != nil {
		status, message := errorResponse(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api msg=\"transfer failed\" from_iban=%s to_iban=%s err=%v", req.FromIban, req.ToIban, err)
		}
		writeJSON(w, status, transferResponse{Success: false, Message: message})
		return
	}

	writeJSON(w, http.StatusCreated, transferResponse{Success: true, Transaction: tx})
}

func (h *Handlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	txs, err := h.service.ListTransactions(r.Context())
	respond(w, emptyIfNil(txs), err)
}

func (h *Handlers) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	tx, err := h.service.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	respond(w, tx, err)
}

func (h *Handlers) TransactionsByIbanHandler(w http.ResponseWriter, r *http.Request) {
	txs, err := h.service.TransactionsByIban(r.Context(), chi.URLParam(r, "iban"))
	respond(w, emptyIfNil(txs), err)
}

func (h *Handlers) TransactionsByAccountNumberHandler(w http.ResponseWriter, r *http.Request) {
	txs, err := h.service.TransactionsByAccountNumber(r.Context(), chi.URLParam(r, "accountNumber"))
	respond(w, emptyIfNil(txs), err)
}

func (h *Handlers) RecipientIbansHandler(w http.ResponseWriter, r *http.Request) {
	ibans, err := h.service.RecipientIbans(r.Context(), chi.URLParam(r, "iban"))
	respond(w, emptyIfNil(ibans), err)
}

// errorResponse maps service errors to a status code and a client-safe message.
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, app.ErrInvalidIban),
		errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrSameAccountTransfer),
		errors.Is(err, app.ErrInvalidAccountHolder):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrTransactionNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, store.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "Insufficient balance"
	case errors.Is(err, app.ErrRecipientAlreadySaved):
		return http.StatusConflict, "Recipient already saved"
	case errors.Is(err, app.ErrRateLimited):
		return http.StatusTooManyRequests, "Too many requests"
	default:
		return http.StatusInternalServerError, "An unexpected error occurred"
	}
}

func respond(w http.ResponseWriter, data interface{}, err error) {
	if err != nil {
		status, message := errorResponse(err)
		if status == http.StatusInternalServerError {
			log.Printf("level=error component=api msg=\"request failed\" err=%v", err)
		}
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// writeJSON is a helper for writing JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "message": message})
}
