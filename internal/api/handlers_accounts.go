package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type openAccountRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type savedRecipientRequest struct {
	RecipientIban string `json:"recipientIban"`
}

func (h *Handlers) OpenAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	account, err := h.service.OpenAccount(r.Context(), req.FirstName, req.LastName)
	if err != nil {
		respond(w, nil, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (h *Handlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	respond(w, emptyIfNil(accounts), err)
}

func (h *Handlers) GetAccountByNumberHandler(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetAccountByAccountNumber(r.Context(), chi.URLParam(r, "accountNumber"))
	respond(w, account, err)
}

func (h *Handlers) GetAccountByIbanHandler(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetAccountByIban(r.Context(), chi.URLParam(r, "iban"))
	respond(w, account, err)
}

func (h *Handlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	tx, err := h.service.Deposit(r.Context(), chi.URLParam(r, "accountNumber"), req.Amount)
	respond(w, tx, err)
}

func (h *Handlers) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	tx, err := h.service.Withdraw(r.Context(), chi.URLParam(r, "accountNumber"), req.Amount)
	respond(w, tx, err)
}

func (h *Handlers) AddSavedRecipientHandler(w http.ResponseWriter, r *http.Request) {
	var req savedRecipientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	account, err := h.service.AddSavedRecipient(r.Context(), chi.URLParam(r, "accountID"), req.RecipientIban)
	respond(w, account, err)
}

func (h *Handlers) ListSavedRecipientsHandler(w http.ResponseWriter, r *http.Request) {
	recipients, err := h.service.ListSavedRecipients(r.Context(), chi.URLParam(r, "accountID"))
	respond(w, recipients, err)
}

func (h *Handlers) RemoveSavedRecipientHandler(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.RemoveSavedRecipient(r.Context(), chi.URLParam(r, "accountID"), chi.URLParam(r, "iban"))
	respond(w, account, err)
}
