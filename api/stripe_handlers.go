package api

import (
	stderrors "errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/reevlo/reevlo-backend/api/apicommon"
	"github.com/reevlo/reevlo-backend/errors"
	"github.com/reevlo/reevlo-backend/stripe"
	"github.com/reevlo/reevlo-backend/validator"
	"github.com/reevlo/reevlo-backend/wallet"
	"go.vocdoni.io/dvote/log"
)

// stripeWebhookHandler godoc
//
//	@Summary		Handle Stripe webhook events
//	@Description	Process checkout and subscription events sent by Stripe. Completed checkout sessions credit
//	@Description	coins or activate the membership once, whatever the number of deliveries. Failures answer 500
//	@Description	so that Stripe delivers the event again.
//	@Tags			wallet
//	@Accept			json
//	@Produce		json
//	@Param			Stripe-Signature	header		string	true	"Stripe signature"
//	@Param			body				body		string	true	"Stripe webhook payload"
//	@Success		200					{object}	apicommon.WebhookResponse
//	@Failure		400					{object}	errors.Error	"Invalid payload or signature"
//	@Failure		500					{object}	errors.Error
//	@Router			/api/webhooks/stripe [post]
func (a *API) stripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		errors.ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	signatureHeader := r.Header.Get("Stripe-Signature")
	if signatureHeader == "" {
		errors.ErrInvalidSignature.With("missing Stripe-Signature header").Write(w)
		return
	}
	if err := a.stripe.HandleWebhookEvent(payload, signatureHeader); err != nil {
		switch {
		case stderrors.Is(err, stripe.ErrWebhookValidation):
			errors.ErrInvalidSignature.WithErr(err).Write(w)
		case stderrors.Is(err, stripe.ErrInvalidEvent):
			errors.ErrMalformedBody.WithErr(err).Write(w)
		default:
			log.Warnw("stripe webhook: failed to process event", "error", err)
			errors.ErrStripeWebhookError.WithErr(err).Write(w)
		}
		return
	}
	apicommon.HTTPWriteJSON(w, &apicommon.WebhookResponse{Received: true})
}

// createCheckoutSessionHandler godoc
//
//	@Summary		Create a checkout session
//	@Description	Create a Stripe checkout session to buy a coin package (type coin, amount in coins)
//	@Description	or the monthly membership (type membership).
//	@Tags			wallet
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		apicommon.CheckoutRequest	true	"Checkout information"
//	@Success		200		{object}	apicommon.CheckoutResponse
//	@Failure		400		{object}	errors.Error	"Invalid type or unknown coin package"
//	@Failure		401		{object}	errors.Error
//	@Failure		500		{object}	errors.Error
//	@Router			/api/create-checkout-session [post]
func (a *API) createCheckoutSessionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	req, ok := validator.Model[apicommon.CheckoutRequest](r.Context())
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	checkoutType := wallet.CheckoutType(req.Type)
	if !checkoutType.Valid() {
		errors.ErrInvalidCheckoutType.Write(w)
		return
	}
	if checkoutType == wallet.CheckoutCoins {
		if _, err := wallet.PackageFor(req.Amount); err != nil {
			errors.ErrUnknownCoinPackage.WithErr(err).WithData(wallet.CoinPackages()).Write(w)
			return
		}
	}
	session, err := a.stripe.CreateCheckoutSession(user, checkoutType, req.Amount, a.webAppURL)
	if err != nil {
		writeStripeError(w, err)
		return
	}
	apicommon.HTTPWriteJSON(w, &apicommon.CheckoutResponse{SessionID: session.ID, URL: session.URL})
}

// checkoutSessionHandler godoc
//
//	@Summary		Get checkout session status
//	@Description	Get the status of a checkout session created by the authenticated user, and whether it
//	@Description	has already been applied to the wallet.
//	@Tags			wallet
//	@Produce		json
//	@Security		BearerAuth
//	@Param			sessionID	path		string	true	"Checkout session ID"
//	@Success		200			{object}	stripe.CheckoutStatus
//	@Failure		401			{object}	errors.Error
//	@Failure		404			{object}	errors.Error
//	@Failure		500			{object}	errors.Error
//	@Router			/api/checkout/{sessionID} [get]
func (a *API) checkoutSessionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		errors.ErrMalformedURLParam.With("sessionID is required").Write(w)
		return
	}
	status, err := a.stripe.CheckoutSessionStatus(sessionID, user.ID)
	if err != nil {
		if stderrors.Is(err, stripe.ErrSessionNotFound) {
			errors.ErrCheckoutNotFound.Write(w)
			return
		}
		writeStripeError(w, err)
		return
	}
	apicommon.HTTPWriteJSON(w, status)
}

// portalSessionHandler godoc
//
//	@Summary		Get the billing portal
//	@Description	Create a Stripe billing portal session where the user manages the membership
//	@Tags			wallet
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	apicommon.PortalResponse
//	@Failure		400	{object}	errors.Error	"The user never paid"
//	@Failure		401	{object}	errors.Error
//	@Failure		500	{object}	errors.Error
//	@Router			/subscriptions/portal [get]
func (a *API) portalSessionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	session, err := a.stripe.CreatePortalSession(user, a.webAppURL+"/dashboard")
	if err != nil {
		if stderrors.Is(err, stripe.ErrCustomerNotFound) {
			errors.ErrNoStripeCustomer.Write(w)
			return
		}
		writeStripeError(w, err)
		return
	}
	apicommon.HTTPWriteJSON(w, &apicommon.PortalResponse{PortalURL: session.URL})
}

// syncBalanceHandler godoc
//
//	@Summary		Synchronize the balance
//	@Description	Look up the last completed checkout sessions paid with the user email and apply those
//	@Description	that were missed, for example when a webhook delivery never arrived.
//	@Tags			wallet
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	apicommon.SyncBalanceResponse
//	@Failure		401	{object}	errors.Error
//	@Failure		500	{object}	errors.Error
//	@Router			/api/sync-balance [post]
func (a *API) syncBalanceHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	applied, err := a.stripe.SyncUser(user)
	if err != nil {
		writeStripeError(w, err)
		return
	}
	balance, err := a.db.Balance(user.ID)
	if err != nil {
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, &apicommon.SyncBalanceResponse{
		Success: true,
		Updated: applied > 0,
		Applied: applied,
		Balance: balance.VirtualMoney,
	})
}

// stripeRetryAfter is the delay suggested to clients when Stripe failed in a
// way that may work on a new attempt.
const stripeRetryAfter = 5

// writeStripeError answers a failed Stripe call, adding a Retry-After header
// when the failure is transient.
func writeStripeError(w http.ResponseWriter, err error) {
	if stripe.IsRetryableError(err) {
		w.Header().Set("Retry-After", strconv.Itoa(stripeRetryAfter))
	}
	errors.ErrStripeError.WithErr(err).Write(w)
}
