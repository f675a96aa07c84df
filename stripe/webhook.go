package stripe

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/reevlo/reevlo-backend/db"
	"github.com/reevlo/reevlo-backend/metrics"
	stripeapi "github.com/stripe/stripe-go/v81"
	"go.vocdoni.io/dvote/log"
)

// HandleWebhookEvent validates the signature of a webhook delivery and
// handles its event. Deliveries of an event handled recently are
// acknowledged without doing anything. A nil error means the delivery can be
// acknowledged; any other error asks Stripe to deliver it again later.
func (s *Service) HandleWebhookEvent(payload []byte, signatureHeader string) error {
	event, err := s.client.ValidateWebhookEvent(payload, signatureHeader)
	if err != nil {
		return err
	}
	if s.events.EventExists(event.ID) {
		log.Debugf("stripe webhook: event %s already processed, skipping", event.ID)
		metrics.RecordWebhookEvent(string(event.Type), metrics.ResultDuplicate)
		return nil
	}
	result, err := s.HandleEvent(event)
	if err != nil {
		metrics.RecordWebhookEvent(string(event.Type), metrics.ResultFailed)
		return err
	}
	metrics.RecordWebhookEvent(string(event.Type), result)
	s.events.MarkProcessed(event.ID)
	return nil
}

// HandleEvent dispatches an already validated event and returns the result
// label of the delivery.
func (s *Service) HandleEvent(event *stripeapi.Event) (string, error) {
	switch event.Type {
	case stripeapi.EventTypeCheckoutSessionCompleted,
		stripeapi.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		return s.handleCheckoutSession(event)
	case stripeapi.EventTypeCustomerSubscriptionDeleted:
		return s.handleSubscriptionDeleted(event)
	default:
		log.Debugf("stripe webhook: received unhandled event type %s (id %s)", event.Type, event.ID)
		return metrics.ResultIgnored, nil
	}
}

// handleCheckoutSession applies the session of a completed or async paid
// checkout. Sessions that can never apply are acknowledged; a completed
// session still waiting for an async payment applies with its
// async_payment_succeeded event.
func (s *Service) handleCheckoutSession(event *stripeapi.Event) (string, error) {
	session, err := parseCheckoutSessionFromEvent(event)
	if err != nil {
		return "", err
	}
	applied, err := s.ApplySession(session, db.SourceWebhook)
	if err != nil {
		if skippable(err) {
			log.Warnf("stripe webhook: session %s not applied (event %s): %v", session.ID, event.ID, err)
			return metrics.ResultIgnored, nil
		}
		return "", fmt.Errorf("stripe webhook: %w", err)
	}
	if !applied {
		return metrics.ResultDuplicate, nil
	}
	return metrics.ResultApplied, nil
}

// handleSubscriptionDeleted removes the premium flag from the user owning a
// cancelled membership. The user is found by the subscription metadata or,
// for subscriptions created without it, by the stored subscription id. A
// user that has since started another subscription is left untouched.
func (s *Service) handleSubscriptionDeleted(event *stripeapi.Event) (string, error) {
	subscription, err := parseSubscriptionFromEvent(event)
	if err != nil {
		return "", err
	}

	var user *db.User
	if userID := subscription.Metadata[MetadataUserID]; userID != "" {
		user, err = s.db.User(userID)
	} else {
		user, err = s.db.UserBySubscriptionID(subscription.ID)
	}
	if errors.Is(err, db.ErrNotFound) {
		log.Warnf("stripe webhook: no user for cancelled subscription %s", subscription.ID)
		return metrics.ResultIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("stripe webhook: %w", err)
	}

	unlock := s.locks.LockUser(user.ID)
	defer unlock()
	if user.StripeSubscriptionID != "" && user.StripeSubscriptionID != subscription.ID {
		log.Infof("stripe webhook: subscription %s cancelled but user %s is on %s, keeping premium",
			subscription.ID, user.ID, user.StripeSubscriptionID)
		return metrics.ResultIgnored, nil
	}
	if err := s.db.DeactivatePremium(user.ID); err != nil {
		return "", fmt.Errorf("stripe webhook: failed to deactivate premium of user %s: %w", user.ID, err)
	}
	log.Infof("stripe webhook: subscription %s cancelled, premium removed from user %s", subscription.ID, user.ID)
	return metrics.ResultApplied, nil
}

func parseCheckoutSessionFromEvent(event *stripeapi.Event) (*stripeapi.CheckoutSession, error) {
	var session stripeapi.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, NewStripeError(CodeInvalidEvent, "failed to parse checkout session from event", err)
	}
	if session.ID == "" {
		return nil, NewStripeError(CodeInvalidEvent, "checkout session without id", nil)
	}
	return &session, nil
}

func parseSubscriptionFromEvent(event *stripeapi.Event) (*stripeapi.Subscription, error) {
	var subscription stripeapi.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		return nil, NewStripeError(CodeInvalidEvent, "failed to parse subscription from event", err)
	}
	if subscription.ID == "" {
		return nil, NewStripeError(CodeInvalidEvent, "subscription without id", nil)
	}
	return &subscription, nil
}
