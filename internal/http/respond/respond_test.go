package respond_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MrJamesThe3rd/autoescrow/internal/dispute"
	"github.com/MrJamesThe3rd/autoescrow/internal/http/respond"
	"github.com/MrJamesThe3rd/autoescrow/internal/payment"
	"github.com/MrJamesThe3rd/autoescrow/internal/transaction"
	"github.com/MrJamesThe3rd/autoescrow/internal/validate"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{transaction.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("loading: %w", payment.ErrNotFound), http.StatusNotFound},
		{dispute.ErrNotFound, http.StatusNotFound},
		{transaction.ErrUnauthorizedActor, http.StatusForbidden},
		{transaction.ErrInvalidTransition, http.StatusConflict},
		{transaction.ErrAlreadyTerminal, http.StatusConflict},
		{payment.ErrAlreadyProcessed, http.StatusConflict},
		{payment.ErrPendingPaymentExists, http.StatusConflict},
		{dispute.ErrAlreadyResolved, http.StatusConflict},
		{transaction.ErrPreconditionFailed, http.StatusUnprocessableEntity},
		{payment.ErrCurrencyMismatch, http.StatusUnprocessableEntity},
		{payment.ErrInsufficientAmount, http.StatusUnprocessableEntity},
		{payment.ErrMissingReason, http.StatusUnprocessableEntity},
		{dispute.ErrMissingResolutionText, http.StatusUnprocessableEntity},
		{validate.ErrInvalidRequest, http.StatusUnprocessableEntity},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, respond.Status(tt.err))
		})
	}
}

func TestError_HidesInternalErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	respond.Error(rec, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	respond.JSON(rec, http.StatusCreated, map[string]string{"status": "pending"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"pending"}`, rec.Body.String())
}
