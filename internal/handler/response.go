package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tmahmood/finledger/internal/directory"
	"github.com/tmahmood/finledger/internal/ledger"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps domain errors onto HTTP statuses. Domain errors surface
// verbatim; anything unrecognized becomes an opaque 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrSelfTransfer),
		errors.Is(err, directory.ErrInvalidInput):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.Is(err, directory.ErrInvalidCredentials):
		status = http.StatusUnauthorized
		message = err.Error()
	case errors.Is(err, ledger.ErrUnauthorized), errors.Is(err, ledger.ErrForbidden):
		status = http.StatusForbidden
		message = err.Error()
	case errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, ledger.ErrTransactionNotFound),
		errors.Is(err, ledger.ErrUserNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, ledger.ErrAccountFrozen),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrStoreConflict):
		status = http.StatusConflict
		message = err.Error()
	case errors.Is(err, ledger.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
		message = err.Error()
	}

	writeJSON(w, status, map[string]any{"error": message, "status": status})
}
