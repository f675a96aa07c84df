package stripe

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/reevlo/reevlo-backend/db"
	"github.com/reevlo/reevlo-backend/wallet"
	stripeapi "github.com/stripe/stripe-go/v81"
	stripewebhook "github.com/stripe/stripe-go/v81/webhook"
	"go.vocdoni.io/dvote/log"
)

const (
	testWebhookSecret = "whsec_test_secret"
	testBaseURL       = "https://app.reevlo.test"
)

func TestMain(m *testing.M) {
	log.Init("error", "stdout", nil)
	os.Exit(m.Run())
}

// fakeAPI keeps checkout sessions in memory and validates webhook signatures
// with the real SDK code.
type fakeAPI struct {
	mu         sync.Mutex
	created    []*stripeapi.CheckoutSessionParams
	sessions   map[string]*stripeapi.CheckoutSession
	completed  []*stripeapi.CheckoutSession
	lastFilter *SessionFilter
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{sessions: map[string]*stripeapi.CheckoutSession{}}
}

func (*fakeAPI) ValidateWebhookEvent(payload []byte, signatureHeader string) (*stripeapi.Event, error) {
	event, err := stripewebhook.ConstructEvent(payload, signatureHeader, testWebhookSecret)
	if err != nil {
		return nil, NewStripeError(CodeWebhookValidation, "webhook signature validation failed", err)
	}
	return &event, nil
}

func (f *fakeAPI) CreateCheckoutSession(params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, params)
	session := &stripeapi.CheckoutSession{
		ID:       fmt.Sprintf("cs_test_%d", len(f.created)),
		URL:      "https://checkout.stripe.test/pay",
		Status:   stripeapi.CheckoutSessionStatusOpen,
		Metadata: params.Metadata,
	}
	f.sessions[session.ID] = session
	return session, nil
}

func (f *fakeAPI) CheckoutSession(sessionID string) (*stripeapi.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (f *fakeAPI) CompletedCheckoutSessions(filter *SessionFilter) ([]*stripeapi.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	return f.completed, nil
}

func (*fakeAPI) CreatePortalSession(customerID, _ string) (*stripeapi.BillingPortalSession, error) {
	return &stripeapi.BillingPortalSession{URL: "https://billing.stripe.test/" + customerID}, nil
}

type testEnv struct {
	api     *fakeAPI
	db      *db.MemoryStorage
	service *Service
	user    *db.User
	applied []*db.Payment
}

func newTestEnv(c *qt.C) *testEnv {
	config, err := NewConfig("sk_test_key", testWebhookSecret)
	c.Assert(err, qt.IsNil)
	env := &testEnv{api: newFakeAPI(), db: db.NewMemory()}
	env.service, err = NewService(config, env.api, env.db)
	c.Assert(err, qt.IsNil)
	env.service.OnApplied(func(_ *db.User, payment *db.Payment, _ int64) {
		env.applied = append(env.applied, payment)
	})
	env.user = &db.User{Email: "fan@reevlo.test", Password: "hashed-password", FullName: "Fan"}
	_, err = env.db.SetUser(env.user)
	c.Assert(err, qt.IsNil)
	return env
}

func (env *testEnv) balance(c *qt.C) int64 {
	balance, err := env.db.Balance(env.user.ID)
	c.Assert(err, qt.IsNil)
	return balance.VirtualMoney
}

// sessionObject builds the JSON object of a checkout session as Stripe
// sends it inside webhook events.
func sessionObject(id, userID string, checkoutType wallet.CheckoutType, coins int64, paymentStatus string) map[string]any {
	metadata := map[string]string{}
	if userID != "" {
		metadata[MetadataUserID] = userID
		metadata[MetadataType] = string(checkoutType)
	}
	if coins > 0 {
		metadata[MetadataCoinsAmount] = fmt.Sprint(coins)
	}
	object := map[string]any{
		"id":             id,
		"object":         "checkout.session",
		"status":         "complete",
		"payment_status": paymentStatus,
		"amount_total":   coins,
		"currency":       "usd",
		"customer":       "cus_test",
		"metadata":       metadata,
	}
	if checkoutType == wallet.CheckoutMembership {
		object["subscription"] = "sub_test"
		object["amount_total"] = 899
	}
	return object
}

func signedEvent(c *qt.C, eventID string, eventType stripeapi.EventType, object map[string]any) ([]byte, string) {
	payload, err := json.Marshal(map[string]any{
		"id":          eventID,
		"object":      "event",
		"type":        eventType,
		"api_version": stripeapi.APIVersion,
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": object},
	})
	c.Assert(err, qt.IsNil)
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func TestNewConfig(t *testing.T) {
	c := qt.New(t)
	_, err := NewConfig("", testWebhookSecret)
	c.Assert(err, qt.IsNotNil)
	_, err = NewConfig("sk_test", "")
	c.Assert(err, qt.IsNotNil)
	config, err := NewConfig("sk_test", testWebhookSecret)
	c.Assert(err, qt.IsNil)
	c.Assert(config.EventTTL, qt.Equals, DefaultEventTTL)
}

func TestCreateCoinCheckoutSession(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c)

	session, err := env.service.CreateCheckoutSession(env.user, wallet.CheckoutCoins, 1000, testBaseURL)
	c.Assert(err, qt.IsNil)
	c.Assert(session.URL, qt.Not(qt.Equals), "")

	c.Assert(env.api.created, qt.HasLen, 1)
	params := env.api.created[0]
	c.Assert(*params.Mode, qt.Equals, string(stripeapi.CheckoutSessionModePayment))
	c.Assert(params.LineItems, qt.HasLen, 1)
	price := params.LineItems[0].PriceData
	c.Assert(*price.UnitAmount, qt.Equals, int64(1000))
	c.Assert(*price.Currency, qt.Equals, "usd")
	c.Assert(*price.ProductData.Name, qt.Equals, "1,000 Virtual Tokens")
	c.Assert(price.Recurring, qt.IsNil)
	c.Assert(params.Metadata, qt.DeepEquals, map[string]string{
		MetadataUserID:      env.user.ID,
		MetadataType:        "coin",
		MetadataCoinsAmount: "1000",
	})
	c.Assert(*params.SuccessURL, qt.Equals, testBaseURL+"/dashboard?success=true&session_id={CHECKOUT_SESSION_ID}")
	c.Assert(*params.CancelURL, qt.Equals, testBaseURL+"/dashboard?canceled=true")
	c.Assert(*params.CustomerEmail, qt.Equals, env.user.Email)
	c.Assert(params.Customer, qt.IsNil)

	_, err = env.service.CreateCheckoutSession(env.user, wallet.CheckoutCoins, 750, testBaseURL)
	c.Assert(err, qt.ErrorIs, wallet.ErrUnknownPackage)
	_, err = env.service.CreateCheckoutSession(env.user, "gift", 500, testBaseURL)
	c.Assert(err, qt.IsNotNil)
	c.Assert(env.api.created, qt.HasLen, 1)
}

func TestCreateMembershipCheckoutSession(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c)
	env.user.StripeCustomerID = "cus_existing"

	_, err := env.service.CreateCheckoutSession(env.user, wallet.CheckoutMembership, 0, testBaseURL)
	c.Assert(err, qt.IsNil)

	params := env.api.created[0]
	c.Assert(*params.Mode, qt.Equals, string(stripeapi.CheckoutSessionModeSubscription))
	price := params.LineItems[0].PriceData
	c.Assert(*price.UnitAmount, qt.Equals, int64(899))
	c.Assert(*price.Recurring.Interval, qt.Equals, "month")
	c.Assert(*price.ProductData.Name, qt.Equals, "Reevlo Plus Membership")
	c.Assert(params.SubscriptionData.Metadata[MetadataUserID], qt.Equals, env.user.ID)
	c.Assert(params.Metadata[MetadataType], qt.Equals, "membership")
	_, hasCoins := params.Metadata[MetadataCoinsAmount]
	c.Assert(hasCoins, qt.IsFalse)
	c.Assert(*params.Customer, qt.Equals, "cus_existing")
	c.Assert(params.CustomerEmail, qt.IsNil)
}

func TestWebhookCreditsCoinsOnce(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c)

	object := sessionObject("cs_paid", env.user.ID, wallet.CheckoutCoins, 1000, "paid")
	payload, header := signedEvent(c, "evt_1", stripeapi.EventTypeCheckoutSessionCompleted, object)
	c.Assert(env.service.HandleWebhookEvent(payload, header), qt.IsNil)
	c.Assert(env.balance(c), qt.Equals, int64(1000))

	// the same delivery again
	c.Assert(env.service.HandleWebhookEvent(payload, header), qt.IsNil)
	c.Assert(env.balance(c), qt.Equals, int64(1000))

	// another event carrying the same session
	payload, header = signedEvent(c, "evt_2", stripeapi.EventTypeCheckoutSessionAsyncPaymentSucceeded, object)
	c.Assert(env.service.HandleWebhookEvent(payload, header), qt.IsNil)
	c.Assert(env.balance(c), qt.Equals, int64(1000))

	c.Assert(env.applied, qt.HasLen, 1)
	c.Assert(env.applied[0].Source, qt.Equals, db.SourceWebhook)
	user, err := env.db.User(env.user.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(user.StripeCustomerID, qt.Equals, "cus_test")
}

func TestWebhookConcurrentDeliveries(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c)

	object := sessionObject("cs_race", env.user.ID, wallet.CheckoutCoins, 500, "paid")
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		payload, header := signedEvent(c, fmt.Sprintf("evt_race_%d", i), stripeapi.EventTypeCheckoutSessionCompleted, object)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := env.service.HandleWebhookEvent(payload, header); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	c.Assert(env.balance(c), qt.Equals, int64(500))
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c)

	object := sessionObject("cs_forged", env.user.ID, wallet.CheckoutCoins, 5000, "paid")
	payload, _ := signedEvent(c, "evt_forged", stripeapi.EventTypeCheckoutSessionCompleted, object)
	forged := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   payload,
		Secret:    "whsec_wrong",
		Timestamp: time.Now(),
	})
	err := env.service.HandleWebhookEvent(payload, forged.Header)
	c.Assert(err, qt.ErrorIs, ErrWebhookValidation)
	err = env.service.HandleWebhookEvent(payload, "")
	c.Assert(err, qt.ErrorIs, ErrWebhookValidation)
	c.Assert(env.balance(c), qt.Equals, int64(0))
}

func TestWebhookAcknowledgesUnusableSessions(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c)

	events := map[string]map[string]any{
		"evt_no_metadata":  sessionObject("cs_no_metadata", "", wallet.CheckoutCoins, 0, "paid"),
		"evt_unpaid":       sessionObject("cs_unpaid", env.user.ID, wallet.CheckoutCoins, 1000, "unpaid"),
		"evt_unknown_user": sessionObject("cs_unknown_user", "ghost", wallet.CheckoutCoins, 1000, "paid"),
	}
	for id, object := range events {
		payload, header := signedEvent(c, id, stripeapi.EventTypeCheckoutSessionCompleted, object)
		c.Assert(env.service.HandleWebhookEvent(payload, header), qt.IsNil, qt.Commentf(id))
	}
	payload, header := signedEvent(c, "evt_other", "invoice.paid", map[string]any{"id": "in_1", "object": "invoice"})
	c.Assert(env.service.HandleWebhookEvent(payload, header), qt.IsNil)

	c.Assert(env.balance(c), qt.Equals, int64(0))
	c.Assert(env.applied, qt.HasLen, 0)

	// the unpaid session applies once its async payment succeeds
	object := sessionObject("cs_unpaid", env.user.ID, wallet.CheckoutCoins, 1000, "paid")
	payload, header = signedEvent(c, "evt_async", stripeapi.EventTypeCheckoutSessionAsyncPaymentSucceeded, object)
	c.Assert(env.service.HandleWebhookEvent(payload, header), qt.IsNil)
	c.Assert(env.balance(c), qt.Equals, int64(1000))
}

func TestWebhookMembershipLifecycle(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c)

	object := sessionObject("cs_membership", env.user.ID, wallet.CheckoutMembership, 0, "paid")
	payload, header := signedEvent(c, "evt_member", stripeapi.EventTypeCheckoutSessionCompleted, object)
	c.Assert(env.service.HandleWebhookEvent(payload, header), qt.IsNil)

	user, err := env.db.User(env.user.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(user.Premium, qt.IsTrue)
	c.Assert(user.StripeSubscriptionID, qt.Equals, "sub_test")
	c.Assert(env.balance(c), qt.Equals, int64(0))

	// a cancelled subscription the user no longer has is ignored
	payload, header = signedEvent(c, "evt_old_sub", stripeapi.EventTypeCustomerSubscriptionDeleted, map[string]any{
		"id":       "sub_old",
		"object":   "subscription",
		"metadata": map[string]string{MetadataUserID: env.user.ID},
	})
	c.Assert(env.service.HandleWebhookEvent(payload, header), qt.IsNil)
	user, err = env.db.User(env.user.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(user.Premium, qt.IsTrue)

	// cancellation without metadata resolves the user by subscription id
	payload, header = signedEvent(c, "evt_cancel", stripeapi.EventTypeCustomerSubscriptionDeleted, map[string]any{
		"id":     "sub_test",
		"object": "subscription",
	})
	c.Assert(env.service.HandleWebhookEvent(payload, header), qt.IsNil)
	user, err = env.db.User(env.user.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(user.Premium, qt.IsFalse)
}

func completedSession(id, userID string, coins int64) *stripeapi.CheckoutSession {
	return &stripeapi.CheckoutSession{
		ID:            id,
		Status:        stripeapi.CheckoutSessionStatusComplete,
		PaymentStatus: stripeapi.CheckoutSessionPaymentStatusPaid,
		AmountTotal:   coins,
		Currency:      stripeapi.CurrencyUSD,
		Metadata: map[string]string{
			MetadataUserID:      userID,
			MetadataType:        string(wallet.CheckoutCoins),
			MetadataCoinsAmount: fmt.Sprint(coins),
		},
	}
}

func TestSyncUser(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c)

	_, err := env.service.ApplySession(completedSession("cs_done", env.user.ID, 500), db.SourceWebhook)
	c.Assert(err, qt.IsNil)

	env.api.completed = []*stripeapi.CheckoutSession{
		completedSession("cs_done", env.user.ID, 500),
		completedSession("cs_missed", env.user.ID, 2000),
		completedSession("cs_someone_else", "other-user", 5000),
		{ID: "cs_foreign", Status: stripeapi.CheckoutSessionStatusComplete},
	}
	applied, err := env.service.SyncUser(env.user)
	c.Assert(err, qt.IsNil)
	c.Assert(applied, qt.Equals, 1)
	c.Assert(env.balance(c), qt.Equals, int64(2500))
	c.Assert(env.api.lastFilter.Email, qt.Equals, env.user.Email)
	c.Assert(env.api.lastFilter.Limit, qt.Equals, int64(SyncSessionsLimit))

	applied, err = env.service.SyncUser(env.user)
	c.Assert(err, qt.IsNil)
	c.Assert(applied, qt.Equals, 0)
	c.Assert(env.balance(c), qt.Equals, int64(2500))

	payments, err := env.db.Payments(env.user.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(payments, qt.HasLen, 2)
}

func TestSyncRecent(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c)
	other := &db.User{Email: "creator@reevlo.test", Password: "hashed-password"}
	_, err := env.db.SetUser(other)
	c.Assert(err, qt.IsNil)

	env.api.completed = []*stripeapi.CheckoutSession{
		completedSession("cs_a", env.user.ID, 1000),
		completedSession("cs_b", other.ID, 5000),
		completedSession("cs_ghost", "deleted-user", 500),
	}
	before := time.Now()
	applied, err := env.service.SyncRecent(time.Hour, 100)
	c.Assert(err, qt.IsNil)
	c.Assert(applied, qt.Equals, 2)
	c.Assert(env.api.lastFilter.CreatedAfter.Before(before.Add(-59*time.Minute)), qt.IsTrue)

	balance, err := env.db.Balance(other.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(balance.VirtualMoney, qt.Equals, int64(5000))
	payments, err := env.db.Payments(other.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(payments[0].Source, qt.Equals, db.SourceReconciler)
}

func TestCheckoutSessionStatus(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c)

	session, err := env.service.CreateCheckoutSession(env.user, wallet.CheckoutCoins, 2000, testBaseURL)
	c.Assert(err, qt.IsNil)

	status, err := env.service.CheckoutSessionStatus(session.ID, env.user.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(status.Status, qt.Equals, "open")
	c.Assert(status.Coins, qt.Equals, int64(2000))
	c.Assert(status.Applied, qt.IsFalse)

	_, err = env.service.CheckoutSessionStatus(session.ID, "another-user")
	c.Assert(err, qt.ErrorIs, ErrSessionNotFound)
}

func TestCreatePortalSession(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c)

	_, err := env.service.CreatePortalSession(env.user, testBaseURL)
	c.Assert(err, qt.ErrorIs, ErrCustomerNotFound)

	env.user.StripeCustomerID = "cus_portal"
	portal, err := env.service.CreatePortalSession(env.user, testBaseURL)
	c.Assert(err, qt.IsNil)
	c.Assert(portal.URL, qt.Equals, "https://billing.stripe.test/cus_portal")
}
