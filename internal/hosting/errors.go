package hosting

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the hosted resume id resolves to nothing.
	ErrNotFound = errors.New("hosted resume not found")

	// ErrAlreadyPaid rejects order creation for a record whose payment
	// is already complete or whose download is already enabled.
	ErrAlreadyPaid = errors.New("payment already completed for this resume")

	// ErrPaymentNotRequired rejects order creation when the record
	// carries no positive payment amount.
	ErrPaymentNotRequired = errors.New("payment is not required for this resume download")

	// ErrInvalidAmount rejects a computed minor-unit amount of zero or less.
	ErrInvalidAmount = errors.New("calculated payment amount is invalid")

	// ErrPaymentMismatch means the gateway session was created for a
	// different hosted resume than the one being verified.
	ErrPaymentMismatch = errors.New("payment does not match this resume")

	// ErrAmountMismatch means the gateway-reported paid amount differs
	// from the expected amount by more than the tolerance.
	ErrAmountMismatch = errors.New("paid amount does not match expected amount")

	// ErrNoFlags rejects an admin flag update that names no flags.
	ErrNoFlags = errors.New("no valid fields provided to update")

	// ErrInvalidLogStatus rejects an attempt status outside
	// initiated/cancelled/failed.
	ErrInvalidLogStatus = errors.New("invalid payment log status")
)

// PaymentIncompleteError carries the gateway's reported status so the
// caller can see why the session is not settled.
type PaymentIncompleteError struct {
	GatewayStatus string
}

func (e *PaymentIncompleteError) Error() string {
	return fmt.Sprintf("payment not completed (gateway status %q)", e.GatewayStatus)
}
