package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"sharehouse-backend/internal/application/payments"
	"sharehouse-backend/internal/domain"
	"sharehouse-backend/internal/testsupport"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const secret = "whsec_handler_test"

type stubProvider struct{}

func (stubProvider) CreateAccount(_ context.Context, _ string) (*payments.Account, error) {
	return &payments.Account{ID: "acct_created"}, nil
}

func (stubProvider) RetrieveAccount(_ context.Context, id string) (*payments.Account, error) {
	return &payments.Account{ID: id, ChargesEnabled: true, PayoutsEnabled: true, DetailsSubmitted: true}, nil
}

func (stubProvider) CreateAccountLink(_ context.Context, id, _, _ string) (string, error) {
	return "https://connect.example/" + id, nil
}

func (stubProvider) CreateCheckoutSession(_ context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	id := "cs_" + req.IdempotencyKey
	return &payments.CheckoutSession{ID: id, URL: "https://checkout.example/" + id}, nil
}

func (stubProvider) CreateRefund(_ context.Context, _, _ string) error { return nil }

func newApp(db *gorm.DB, userID uuid.UUID) *fiber.App {
	h := &Handlers{Service: &payments.Service{
		DB:       db,
		Provider: stubProvider{},
		Settings: payments.Settings{
			WebhookSecret:      secret,
			PlatformFeePercent: decimal.RequireFromString("0.02"),
			IdempotencyWindow:  time.Minute,
			SuccessURL:         "https://app.example/ok",
			CancelURL:          "https://app.example/cancel",
			OnboardReturnURL:   "https://app.example/return",
		},
	}}
	app := fiber.New()
	app.Post("/stripe/webhook", h.Webhook)
	app.Use(testsupport.AsUser(userID))
	app.Post("/payments/onboard", h.Onboard)
	app.Get("/payments/status", h.Status)
	app.Post("/checkout", h.Checkout)
	return app
}

func sign(payload []byte, key string) string {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(ts + "." + string(payload)))
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func webhook(t *testing.T, app *fiber.App, payload []byte, sig string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest("POST", "/stripe/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if sig != "" {
		req.Header.Set("Stripe-Signature", sig)
	}
	return testsupport.Send(t, app, req)
}

func TestCheckoutThenWebhookSettles(t *testing.T) {
	db := testsupport.NewDB(t)
	seller := testsupport.OnboardedUser(t, db, "seller", "acct_seller")
	buyer := testsupport.OnboardedUser(t, db, "buyer", "acct_buyer")
	house := testsupport.House(t, db, 10)
	testsupport.Own(t, db, house.ID, seller.ID, 10)
	l := testsupport.Listing(t, db, house.ID, seller.ID, "100.00", 5)
	app := newApp(db, buyer.ID)

	status, out := testsupport.Do(t, app, "POST", "/checkout", map[string]interface{}{"listing_id": "nope"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "BAD_ID", out["error"])

	status, out = testsupport.Do(t, app, "POST", "/checkout", map[string]interface{}{"listing_id": l.ID.String(), "shares": 2})
	require.Equal(t, fiber.StatusOK, status, out)
	checkout := out["checkout"].(map[string]interface{})
	sessionID := checkout["session_id"].(string)
	assert.Equal(t, "https://checkout.example/"+sessionID, out["checkout_url"])
	assert.Equal(t, 0, testsupport.Shares(t, db, house.ID, buyer.ID))

	payload, err := json.Marshal(map[string]any{
		"id":   "evt_handler_1",
		"type": "checkout.session.completed",
		"data": map[string]any{"object": map[string]any{
			"id":             sessionID,
			"payment_intent": "pi_handler_1",
			"amount_total":   20000,
			"currency":       "pln",
		}},
	})
	require.NoError(t, err)

	status, out = webhook(t, app, payload, sign(payload, "whsec_wrong"))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "INVALID_SIGNATURE", out["error"])

	status, out = webhook(t, app, payload, sign(payload, secret))
	require.Equal(t, fiber.StatusOK, status, out)
	assert.Equal(t, payments.OutcomeCompleted, out["result"].(map[string]interface{})["outcome"])
	assert.Equal(t, 2, testsupport.Shares(t, db, house.ID, buyer.ID))
	testsupport.AssertLedgerInvariants(t, db, house.ID)

	var txn domain.Transaction
	require.NoError(t, db.Where("stripe_session_id = ?", sessionID).Take(&txn).Error)
	assert.Equal(t, domain.TxCompleted, txn.Status)

	status, out = webhook(t, app, payload, sign(payload, secret))
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, payments.OutcomeDuplicate, out["result"].(map[string]interface{})["outcome"])
	assert.Equal(t, 2, testsupport.Shares(t, db, house.ID, buyer.ID))
}

func TestWebhookEmptyBody(t *testing.T) {
	db := testsupport.NewDB(t)
	status, out := webhook(t, newApp(db, uuid.New()), nil, "t=1,v1=00")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "BAD_REQUEST", out["error"])
}

func TestOnboardAndStatus(t *testing.T) {
	db := testsupport.NewDB(t)
	u := testsupport.User(t, db, "fresh")
	app := newApp(db, u.ID)

	status, out := testsupport.Do(t, app, "POST", "/payments/onboard", nil)
	require.Equal(t, fiber.StatusOK, status, out)
	assert.Equal(t, "acct_created", out["account"].(map[string]interface{})["account_id"])

	status, out = testsupport.Do(t, app, "GET", "/payments/status", nil)
	require.Equal(t, fiber.StatusOK, status, out)
	assert.Equal(t, true, out["account"].(map[string]interface{})["charges_enabled"])
}
