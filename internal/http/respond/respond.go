// Package respond writes JSON bodies and maps domain errors to status codes
// for the v1 handlers.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrJamesThe3rd/autoescrow/internal/dispute"
	"github.com/MrJamesThe3rd/autoescrow/internal/payment"
	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
	"github.com/MrJamesThe3rd/autoescrow/internal/validate"
)

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

var statuses = []struct {
	code int
	errs []error
}{
	{http.StatusNotFound, []error{transaction.ErrNotFound, payment.ErrNotFound, dispute.ErrNotFound}},
	{http.StatusForbidden, []error{transaction.ErrUnauthorizedActor}},
	{http.StatusConflict, []error{
		transaction.ErrInvalidTransition,
		transaction.ErrAlreadyTerminal,
		payment.ErrAlreadyProcessed,
		payment.ErrPendingPaymentExists,
		payment.ErrTransactionClosed,
		payment.ErrNotVerified,
		dispute.ErrAlreadyResolved,
		dispute.ErrInvalidTransition,
	}},
	{http.StatusUnprocessableEntity, []error{
		transaction.ErrPreconditionFailed,
		transaction.ErrInvalidTransaction,
		payment.ErrCurrencyMismatch,
		payment.ErrInsufficientAmount,
		payment.ErrMissingReason,
		payment.ErrInvalidPayment,
		dispute.ErrMissingResolutionText,
		dispute.ErrInvalidDispute,
		validate.ErrInvalidRequest,
	}},
}

// Status returns the HTTP status for err.
func Status(err error) int {
	for _, s := range statuses {
		for _, target := range s.errs {
			if errors.Is(err, target) {
				return s.code
			}
		}
	}

	return http.StatusInternalServerError
}

// Error writes err as plain text. Unmapped errors are logged and hidden
// behind a generic message.
func Error(w http.ResponseWriter, err error) {
	code := Status(err)
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		http.Error(w, "internal error", code)

		return
	}

	http.Error(w, err.Error(), code)
}
