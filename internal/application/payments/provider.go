package payments

import "context"

// Account is the subset of a connected payment account the checks need.
type Account struct {
	ID               string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

// CheckoutRequest is a hosted checkout for one listing purchase. Amounts are
// in minor units.
type CheckoutRequest struct {
	IdempotencyKey  string
	Currency        string
	ProductName     string
	Description     string
	AmountCents     int64
	FeeCents        int64
	SellerAccountID string
	CustomerEmail   string
	SuccessURL      string
	CancelURL       string
	Metadata        map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// Provider is the payment processor. Calls are made outside any database
// transaction.
type Provider interface {
	CreateAccount(ctx context.Context, email string) (*Account, error)
	RetrieveAccount(ctx context.Context, accountID string) (*Account, error)
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	CreateRefund(ctx context.Context, paymentIntentID, idempotencyKey string) error
}
