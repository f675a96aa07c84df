// Package stripe integrates the Stripe payment service: it creates checkout
// sessions for coin packages and memberships, receives webhook events, and
// applies completed sessions to the user balances exactly once.
package stripe

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/reevlo/reevlo-backend/db"
	"github.com/reevlo/reevlo-backend/metrics"
	"github.com/reevlo/reevlo-backend/wallet"
	stripeapi "github.com/stripe/stripe-go/v81"
	"go.vocdoni.io/dvote/log"
)

// Metadata keys stored in every checkout session.
const (
	MetadataUserID      = "user_id"
	MetadataType        = "type"
	MetadataCoinsAmount = "coins_amount"
)

// AppliedHook is called once a checkout session has been applied, with the
// stored payment and, for coin purchases, the resulting balance.
type AppliedHook func(user *db.User, payment *db.Payment, balance int64)

// Service provides the main business logic for Stripe operations
type Service struct {
	client    API
	db        db.Database
	events    *EventStore
	locks     *LockManager
	onApplied AppliedHook
}

// NewService creates a new Stripe service. A nil client selects the SDK
// backed Client built from config.
func NewService(config *Config, client API, database db.Database) (*Service, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}
	if client == nil {
		client = NewClient(config)
	}
	return &Service{
		client: client,
		db:     database,
		events: NewEventStore(config.EventCacheSize, config.EventTTL),
		locks:  NewLockManager(),
	}, nil
}

// OnApplied registers the hook called after every applied session.
func (s *Service) OnApplied(hook AppliedHook) {
	s.onApplied = hook
}

// SuccessURL is where the checkout redirects after a successful payment. The
// placeholder is replaced by Stripe with the session identifier.
func SuccessURL(baseURL string) string {
	return baseURL + "/dashboard?success=true&session_id={CHECKOUT_SESSION_ID}"
}

// CancelURL is where the checkout redirects when the user abandons it.
func CancelURL(baseURL string) string {
	return baseURL + "/dashboard?canceled=true"
}

// CreateCheckoutSession creates a hosted checkout session for the user.
// Coin purchases must match one of the wallet packages and run in payment
// mode; memberships run in subscription mode with a monthly price. The user
// id, the checkout type and the coin amount travel in the session metadata,
// which is all the webhook needs to apply the session later.
func (s *Service) CreateCheckoutSession(user *db.User, checkoutType wallet.CheckoutType, coins int64,
	baseURL string,
) (*stripeapi.CheckoutSession, error) {
	if user == nil || user.ID == "" {
		return nil, fmt.Errorf("user is required")
	}
	metadata := map[string]string{
		MetadataUserID: user.ID,
		MetadataType:   string(checkoutType),
	}
	params := &stripeapi.CheckoutSessionParams{
		SuccessURL: stripeapi.String(SuccessURL(baseURL)),
		CancelURL:  stripeapi.String(CancelURL(baseURL)),
	}

	switch checkoutType {
	case wallet.CheckoutCoins:
		pkg, err := wallet.PackageFor(coins)
		if err != nil {
			return nil, err
		}
		metadata[MetadataCoinsAmount] = strconv.FormatInt(pkg.Coins, 10)
		params.Mode = stripeapi.String(string(stripeapi.CheckoutSessionModePayment))
		params.LineItems = []*stripeapi.CheckoutSessionLineItemParams{{
			PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
				Currency: stripeapi.String(wallet.Currency),
				ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripeapi.String(pkg.Name),
					Description: stripeapi.String(pkg.Description),
				},
				UnitAmount: stripeapi.Int64(pkg.UnitAmount()),
			},
			Quantity: stripeapi.Int64(1),
		}}
		if user.StripeCustomerID == "" {
			params.CustomerCreation = stripeapi.String(string(stripeapi.CheckoutSessionCustomerCreationAlways))
		}
	case wallet.CheckoutMembership:
		params.Mode = stripeapi.String(string(stripeapi.CheckoutSessionModeSubscription))
		params.LineItems = []*stripeapi.CheckoutSessionLineItemParams{{
			PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
				Currency: stripeapi.String(wallet.Currency),
				ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripeapi.String(wallet.Membership.Name),
					Description: stripeapi.String(wallet.Membership.Description),
				},
				UnitAmount: stripeapi.Int64(wallet.Membership.UnitAmount()),
				Recurring: &stripeapi.CheckoutSessionLineItemPriceDataRecurringParams{
					Interval: stripeapi.String(wallet.Membership.Interval),
				},
			},
			Quantity: stripeapi.Int64(1),
		}}
		// the cancellation event only carries the subscription
		params.SubscriptionData = &stripeapi.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{MetadataUserID: user.ID},
		}
	default:
		return nil, fmt.Errorf("invalid checkout type %q", checkoutType)
	}

	if user.StripeCustomerID != "" {
		params.Customer = stripeapi.String(user.StripeCustomerID)
	} else {
		params.CustomerEmail = stripeapi.String(user.Email)
	}
	params.Metadata = metadata

	session, err := s.client.CreateCheckoutSession(params)
	if err != nil {
		return nil, err
	}
	log.Infow("checkout session created", "sessionID", session.ID, "userID", user.ID,
		"type", checkoutType, "coins", coins)
	return session, nil
}

// sessionDetails is what the metadata of a checkout session says it sold.
type sessionDetails struct {
	userID       string
	checkoutType wallet.CheckoutType
	coins        int64
}

func parseSessionMetadata(session *stripeapi.CheckoutSession) (*sessionDetails, error) {
	userID := session.Metadata[MetadataUserID]
	checkoutType := wallet.CheckoutType(session.Metadata[MetadataType])
	if userID == "" || checkoutType == "" {
		return nil, ErrMissingMetadata
	}
	if !checkoutType.Valid() {
		return nil, NewStripeError(CodeInvalidEvent, fmt.Sprintf("unknown checkout type %q", checkoutType), nil)
	}
	details := &sessionDetails{userID: userID, checkoutType: checkoutType}
	if checkoutType == wallet.CheckoutCoins {
		coins, err := strconv.ParseInt(session.Metadata[MetadataCoinsAmount], 10, 64)
		if err != nil || coins <= 0 {
			return nil, NewStripeError(CodeInvalidEvent,
				fmt.Sprintf("invalid coins amount %q", session.Metadata[MetadataCoinsAmount]), err)
		}
		details.coins = coins
	}
	return details, nil
}

func isPaid(session *stripeapi.CheckoutSession) bool {
	return session.PaymentStatus == stripeapi.CheckoutSessionPaymentStatusPaid ||
		session.PaymentStatus == stripeapi.CheckoutSessionPaymentStatusNoPaymentRequired
}

// ApplySession applies a completed checkout session to its user: coin
// purchases credit the balance and memberships activate premium. A session
// is applied at most once whatever path delivers it; the second time it
// returns false and no error. Sessions without user metadata return
// ErrMissingMetadata and unpaid ones ErrSessionNotPaid.
func (s *Service) ApplySession(session *stripeapi.CheckoutSession, source db.PaymentSource) (bool, error) {
	if session == nil || session.ID == "" {
		return false, ErrInvalidEvent
	}
	details, err := parseSessionMetadata(session)
	if err != nil {
		return false, err
	}
	if !isPaid(session) {
		return false, ErrSessionNotPaid
	}

	user, payment, balance, err := s.applyLocked(session, details, source)
	if err != nil || payment == nil {
		return false, err
	}
	metrics.RecordSessionApplied(string(details.checkoutType), string(source), payment.Coins)
	if s.onApplied != nil {
		s.onApplied(user, payment, balance)
	}
	return true, nil
}

// applyLocked stores the session while holding the user lock. A nil payment
// and nil error means the session had been applied before.
func (s *Service) applyLocked(session *stripeapi.CheckoutSession, details *sessionDetails,
	source db.PaymentSource,
) (*db.User, *db.Payment, int64, error) {
	unlock := s.locks.LockUser(details.userID)
	defer unlock()

	user, err := s.db.User(details.userID)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("user %s of session %s: %w", details.userID, session.ID, err)
	}
	payment := &db.Payment{
		SessionID:   session.ID,
		UserID:      user.ID,
		AmountTotal: session.AmountTotal,
		Currency:    string(session.Currency),
		Source:      source,
	}

	var balance int64
	switch details.checkoutType {
	case wallet.CheckoutCoins:
		payment.Coins = details.coins
		balance, err = s.db.CreditCoins(payment)
	case wallet.CheckoutMembership:
		if session.Subscription != nil {
			payment.SubscriptionID = session.Subscription.ID
		}
		err = s.db.ActivatePremium(payment)
	}
	if errors.Is(err, db.ErrAlreadyProcessed) {
		log.Debugw("checkout session already applied", "sessionID", session.ID, "source", source)
		return user, nil, 0, nil
	}
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to apply session %s: %w", session.ID, err)
	}

	if session.Customer != nil && session.Customer.ID != "" && user.StripeCustomerID == "" {
		if err := s.db.SetStripeCustomerID(user.ID, session.Customer.ID); err != nil {
			log.Warnw("failed to store stripe customer", "userID", user.ID, "error", err)
		} else {
			user.StripeCustomerID = session.Customer.ID
		}
	}
	if details.checkoutType == wallet.CheckoutMembership {
		user.Premium = true
		user.StripeSubscriptionID = payment.SubscriptionID
	}
	log.Infow("checkout session applied", "sessionID", session.ID, "userID", user.ID,
		"type", details.checkoutType, "coins", payment.Coins, "balance", balance, "source", source)
	return user, payment, balance, nil
}

// skippable reports whether an error applying a session is permanent and
// should not be retried: the session will never apply.
func skippable(err error) bool {
	return errors.Is(err, ErrMissingMetadata) ||
		errors.Is(err, ErrSessionNotPaid) ||
		errors.Is(err, ErrInvalidEvent) ||
		errors.Is(err, db.ErrNotFound)
}

// SyncUser checks the last completed checkout sessions paid with the email
// of the user and applies those that belong to the user and were missed. It
// returns the number of sessions applied.
func (s *Service) SyncUser(user *db.User) (int, error) {
	sessions, err := s.client.CompletedCheckoutSessions(&SessionFilter{
		Email: user.Email,
		Limit: SyncSessionsLimit,
	})
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, session := range sessions {
		if session.Metadata[MetadataUserID] != user.ID {
			continue
		}
		ok, err := s.applyIfMissing(session, db.SourceSync)
		if err != nil {
			if skippable(err) {
				log.Debugw("skipping checkout session", "sessionID", session.ID, "error", err)
				continue
			}
			return applied, err
		}
		if ok {
			applied++
		}
	}
	log.Infow("balance synchronized", "userID", user.ID, "checked", len(sessions), "applied", applied)
	return applied, nil
}

// SyncRecent applies every completed checkout session created within the
// window that was missed, whatever its user. Sessions failing to apply are
// logged and reported together once the rest have been tried.
func (s *Service) SyncRecent(window time.Duration, limit int64) (int, error) {
	sessions, err := s.client.CompletedCheckoutSessions(&SessionFilter{
		CreatedAfter: time.Now().Add(-window),
		Limit:        limit,
	})
	if err != nil {
		return 0, err
	}
	applied := 0
	var errs []error
	for _, session := range sessions {
		ok, err := s.applyIfMissing(session, db.SourceReconciler)
		if err != nil {
			if !skippable(err) {
				log.Warnw("failed to reconcile checkout session", "sessionID", session.ID, "error", err)
				errs = append(errs, err)
			}
			continue
		}
		if ok {
			applied++
		}
	}
	return applied, errors.Join(errs...)
}

func (s *Service) applyIfMissing(session *stripeapi.CheckoutSession, source db.PaymentSource) (bool, error) {
	processed, err := s.db.IsProcessed(session.ID)
	if err != nil {
		return false, err
	}
	if processed {
		return false, nil
	}
	return s.ApplySession(session, source)
}

// CheckoutStatus summarizes a checkout session for its owner.
type CheckoutStatus struct {
	SessionID     string `json:"sessionId"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
	Type          string `json:"type"`
	Coins         int64  `json:"coins,omitempty"`
	Applied       bool   `json:"applied"`
}

// CheckoutSessionStatus returns the status of a checkout session created by
// the user. Sessions of other users are reported as not found.
func (s *Service) CheckoutSessionStatus(sessionID, userID string) (*CheckoutStatus, error) {
	session, err := s.client.CheckoutSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Metadata[MetadataUserID] != userID {
		return nil, ErrSessionNotFound
	}
	applied, err := s.db.IsProcessed(session.ID)
	if err != nil {
		return nil, err
	}
	status := &CheckoutStatus{
		SessionID:     session.ID,
		Status:        string(session.Status),
		PaymentStatus: string(session.PaymentStatus),
		Type:          session.Metadata[MetadataType],
		Applied:       applied,
	}
	if coins, err := strconv.ParseInt(session.Metadata[MetadataCoinsAmount], 10, 64); err == nil {
		status.Coins = coins
	}
	return status, nil
}

// CreatePortalSession creates a billing portal session where the user can
// manage the membership. Users that never paid have no customer and get
// ErrCustomerNotFound.
func (s *Service) CreatePortalSession(user *db.User, returnURL string) (*stripeapi.BillingPortalSession, error) {
	if user.StripeCustomerID == "" {
		return nil, ErrCustomerNotFound
	}
	return s.client.CreatePortalSession(user.StripeCustomerID, returnURL)
}
