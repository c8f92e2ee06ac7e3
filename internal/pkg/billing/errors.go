package billing

import "errors"

// Error taxonomy for the payment reconciliation engine. Authentication and
// upstream failures are returned as errors; data-integrity guards
// (subscriber mismatch, price mismatch) are expected input and surface as
// "ignored" reconcile outcomes instead, see ReconcileResult.
var (
	ErrMissingSignature    = errors.New("webhook signature missing or unparseable")
	ErrInvalidSignature    = errors.New("webhook signature invalid")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrNoPaymentInOrder    = errors.New("merchant order has no payments")
)
