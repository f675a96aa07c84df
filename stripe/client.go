package stripe

import (
	"time"

	stripeapi "github.com/stripe/stripe-go/v81"
	stripeportalsession "github.com/stripe/stripe-go/v81/billingportal/session"
	stripecheckoutsession "github.com/stripe/stripe-go/v81/checkout/session"
	stripewebhook "github.com/stripe/stripe-go/v81/webhook"
)

// API is the subset of the Stripe API used by the Service. Client implements
// it on top of the SDK; tests provide their own.
type API interface {
	ValidateWebhookEvent(payload []byte, signatureHeader string) (*stripeapi.Event, error)
	CreateCheckoutSession(params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error)
	CheckoutSession(sessionID string) (*stripeapi.CheckoutSession, error)
	CompletedCheckoutSessions(filter *SessionFilter) ([]*stripeapi.CheckoutSession, error)
	CreatePortalSession(customerID, returnURL string) (*stripeapi.BillingPortalSession, error)
}

// SessionFilter narrows the completed checkout sessions to list. Zero fields
// are ignored, except Limit which defaults to SyncSessionsLimit.
type SessionFilter struct {
	Email        string
	CreatedAfter time.Time
	Limit        int64
}

// Client wraps the Stripe SDK.
type Client struct {
	config *Config
}

var _ API = (*Client)(nil)

// NewClient creates a new Stripe client with the given configuration
func NewClient(config *Config) *Client {
	stripeapi.Key = config.APIKey
	return &Client{config: config}
}

// ValidateWebhookEvent checks the signature of a webhook payload and parses
// the event it carries.
func (c *Client) ValidateWebhookEvent(payload []byte, signatureHeader string) (*stripeapi.Event, error) {
	event, err := stripewebhook.ConstructEvent(payload, signatureHeader, c.config.WebhookSecret)
	if err != nil {
		return nil, NewStripeError(CodeWebhookValidation, "webhook signature validation failed", err)
	}
	return &event, nil
}

// CreateCheckoutSession creates a hosted checkout session.
// API description https://docs.stripe.com/api/checkout/sessions/create
func (*Client) CreateCheckoutSession(params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	session, err := stripecheckoutsession.New(params)
	if err != nil {
		return nil, apiError("failed to create checkout session", err)
	}
	return session, nil
}

// CheckoutSession retrieves a checkout session by ID
func (*Client) CheckoutSession(sessionID string) (*stripeapi.CheckoutSession, error) {
	session, err := stripecheckoutsession.Get(sessionID, &stripeapi.CheckoutSessionParams{})
	if err != nil {
		return nil, apiError("failed to get checkout session", err)
	}
	return session, nil
}

// CompletedCheckoutSessions lists completed checkout sessions, newest first,
// up to the filter limit.
func (*Client) CompletedCheckoutSessions(filter *SessionFilter) ([]*stripeapi.CheckoutSession, error) {
	if filter == nil {
		filter = &SessionFilter{}
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = SyncSessionsLimit
	}
	params := &stripeapi.CheckoutSessionListParams{
		Status: stripeapi.String(string(stripeapi.CheckoutSessionStatusComplete)),
	}
	params.Limit = stripeapi.Int64(min(limit, 100))
	if filter.Email != "" {
		params.CustomerDetails = &stripeapi.CheckoutSessionListCustomerDetailsParams{
			Email: stripeapi.String(filter.Email),
		}
	}
	if !filter.CreatedAfter.IsZero() {
		params.CreatedRange = &stripeapi.RangeQueryParams{
			GreaterThanOrEqual: filter.CreatedAfter.Unix(),
		}
	}

	sessions := []*stripeapi.CheckoutSession{}
	i := stripecheckoutsession.List(params)
	for i.Next() {
		sessions = append(sessions, i.CheckoutSession())
		if int64(len(sessions)) >= limit {
			break
		}
	}
	if err := i.Err(); err != nil {
		return nil, apiError("failed to list checkout sessions", err)
	}
	return sessions, nil
}

// CreatePortalSession creates a billing portal session for a customer
func (*Client) CreatePortalSession(customerID, returnURL string) (*stripeapi.BillingPortalSession, error) {
	if customerID == "" {
		return nil, ErrCustomerNotFound
	}
	params := &stripeapi.BillingPortalSessionParams{
		Customer: stripeapi.String(customerID),
	}
	if returnURL != "" {
		params.ReturnURL = stripeapi.String(returnURL)
	}
	session, err := stripeportalsession.New(params)
	if err != nil {
		return nil, apiError("failed to create portal session", err)
	}
	return session, nil
}
