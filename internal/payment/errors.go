package payment

import "errors"

var (
	ErrNotFound       = errors.New("payment not found")
	ErrInvalidPayment = errors.New("invalid payment")

	ErrAlreadyProcessed     = errors.New("payment already processed")
	ErrCurrencyMismatch     = errors.New("payment currency does not match transaction")
	ErrInsufficientAmount   = errors.New("payment does not cover the outstanding balance")
	ErrMissingReason        = errors.New("rejection reason is required")
	ErrNotVerified          = errors.New("payment is not verified")
	ErrPendingPaymentExists = errors.New("transaction already has a pending payment")
	ErrTransactionClosed    = errors.New("transaction is closed")
)
