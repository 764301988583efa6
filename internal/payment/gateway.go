package payment

import "context"

// CheckoutSession is the gateway-neutral view of a hosted checkout
// transaction. Amounts are in minor units as reported by the gateway.
type CheckoutSession struct {
	ID              string
	URL             string
	PaymentStatus   string
	AmountTotal     int64
	Currency        string
	PaymentIntentID string
	CustomerEmail   string
	Metadata        map[string]string
}

// Paid reports whether the gateway considers the session settled.
func (s *CheckoutSession) Paid() bool {
	return s != nil && s.PaymentStatus == "paid"
}

// CreateSessionParams describes the single line item a hosted-resume
// checkout sells.
type CreateSessionParams struct {
	AmountMinor   int64
	Currency      string
	ProductName   string
	Description   string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// Gateway abstracts the external payment processor. Implementations must
// be safe for concurrent use.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, params CreateSessionParams) (*CheckoutSession, error)
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}
