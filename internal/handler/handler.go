// Package handler is the thin HTTP adapter over the transfer engine and the
// directory. It owns request decoding and error-to-status mapping only; all
// business rules live below it.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/tmahmood/finledger/internal/directory"
	"github.com/tmahmood/finledger/internal/ledger"
	"github.com/tmahmood/finledger/internal/middleware"
)

type Handler struct {
	engine    *ledger.Engine
	directory *directory.Service
	log       *logrus.Logger
}

func NewHandler(engine *ledger.Engine, dir *directory.Service, log *logrus.Logger) *Handler {
	return &Handler{engine: engine, directory: dir, log: log}
}

// decode parses a JSON body keeping numbers as json.Number, so monetary
// amounts reach the validator without a float round-trip.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(dst)
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MobileNumber string `json:"mobile_number"`
		Email        string `json:"email"`
		FullName     string `json:"full_name"`
		PIN          string `json:"pin"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	user, err := h.directory.Register(r.Context(), req.MobileNumber, req.Email, req.FullName, req.PIN)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MobileNumber string `json:"mobile_number"`
		PIN          string `json:"pin"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	token, err := h.directory.Login(r.Context(), req.MobileNumber, req.PIN)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// CreateAccount handles account creation
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	account, err := h.directory.CreateAccount(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// ListAccounts returns the caller's accounts
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	accounts, err := h.directory.ListAccounts(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// Transfer handles funds transfers between accounts
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req struct {
		FromAccountID uuid.UUID   `json:"from_account_id"`
		ToAccountID   uuid.UUID   `json:"to_account_id"`
		Amount        json.Number `json:"amount"`
		Reference     string      `json:"reference"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	txn, err := h.engine.Transfer(r.Context(), ledger.TransferRequest{
		ActorUserID:     userID,
		SourceAccountID: req.FromAccountID,
		DestAccountID:   req.ToAccountID,
		Amount:          req.Amount,
		Reference:       req.Reference,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// Deposit handles deposits to the caller's account
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req struct {
		AccountID uuid.UUID   `json:"account_id"`
		Amount    json.Number `json:"amount"`
		Reference string      `json:"reference"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	txn, err := h.engine.Deposit(r.Context(), ledger.DepositRequest{
		ActorUserID:    userID,
		DestAccountID:  req.AccountID,
		Amount:         req.Amount,
		Reference:      req.Reference,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// Withdraw handles withdrawals from the caller's account
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req struct {
		AccountID uuid.UUID   `json:"account_id"`
		Amount    json.Number `json:"amount"`
		Reference string      `json:"reference"`
	}
	if err := decode(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	txn, err := h.engine.Withdraw(r.Context(), ledger.WithdrawRequest{
		ActorUserID:     userID,
		SourceAccountID: req.AccountID,
		Amount:          req.Amount,
		Reference:       req.Reference,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// TransactionHistory returns the caller's transactions, newest first
func (h *Handler) TransactionHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var accountID *uuid.UUID
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "Invalid account_id", http.StatusBadRequest)
			return
		}
		accountID = &id
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	txns, err := h.engine.GetTransactionHistory(r.Context(), userID, accountID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txns)
}

// TransactionDetails returns one transaction visible to the caller
func (h *Handler) TransactionDetails(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	txID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid transaction id", http.StatusBadRequest)
		return
	}
	txn, err := h.engine.GetTransactionDetails(r.Context(), userID, txID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}
