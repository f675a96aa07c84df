package api

import (
	stderrors "errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/reevlo/reevlo-backend/api/apicommon"
	"github.com/reevlo/reevlo-backend/db"
	"github.com/reevlo/reevlo-backend/errors"
	"github.com/reevlo/reevlo-backend/metrics"
	"github.com/reevlo/reevlo-backend/validator"
	"github.com/reevlo/reevlo-backend/wallet"
	"go.vocdoni.io/dvote/log"
)

// requestPayoutHandler godoc
//
//	@Summary		Request a payout
//	@Description	Cash out coins at the wallet conversion rate. The coins are deducted at once and the
//	@Description	request stays pending until an operator settles it.
//	@Tags			wallet
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		apicommon.PayoutRequest	true	"Coins to withdraw"
//	@Success		200		{object}	apicommon.PayoutResponse
//	@Failure		400		{object}	errors.Error	"Invalid amount, below the minimum or insufficient balance"
//	@Failure		401		{object}	errors.Error
//	@Failure		500		{object}	errors.Error
//	@Router			/api/request-payout [post]
func (a *API) requestPayoutHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	req, ok := validator.Model[apicommon.PayoutRequest](r.Context())
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	balance, err := a.db.Balance(user.ID)
	if err != nil {
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	if err := wallet.ValidatePayout(req.Amount, balance.VirtualMoney); err != nil {
		payoutError(err).Write(w)
		return
	}
	usd := wallet.CoinsToUSD(req.Amount)
	payout := &db.Payout{
		UserID:   user.ID,
		Coins:    req.Amount,
		USDCents: wallet.USDToCents(usd),
		Method:   wallet.PayoutMethodStripe,
	}
	newBalance, err := a.db.CreatePayout(payout)
	if err != nil {
		if stderrors.Is(err, db.ErrInsufficientBalance) {
			errors.ErrInsufficientBalance.Write(w)
			return
		}
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	metrics.RecordPayout(payout.Coins)
	log.Infow("payout requested", "payoutID", payout.ID, "userID", user.ID,
		"coins", payout.Coins, "usd", usd.StringFixed(2), "balance", newBalance)
	a.notifyPayout(user, payout, newBalance)

	apicommon.HTTPWriteJSON(w, &apicommon.PayoutResponse{
		Success:    true,
		PayoutID:   payout.ID,
		USDAmount:  usd,
		NewBalance: newBalance,
		Message:    wallet.PayoutProcessingNotice,
	})
}

// payoutsHandler godoc
//
//	@Summary		List payouts
//	@Description	List the payout requests of the authenticated user, newest first
//	@Tags			wallet
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	apicommon.PayoutList
//	@Failure		401	{object}	errors.Error
//	@Router			/payouts [get]
func (a *API) payoutsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	payouts, err := a.db.Payouts(user.ID)
	if err != nil {
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	list := &apicommon.PayoutList{Payouts: make([]apicommon.PayoutInfo, 0, len(payouts))}
	for i := range payouts {
		list.Payouts = append(list.Payouts, apicommon.PayoutInfoFromDB(&payouts[i]))
	}
	apicommon.HTTPWriteJSON(w, list)
}

// payoutHandler godoc
//
//	@Summary		Get a payout
//	@Description	Get a payout request of the authenticated user
//	@Tags			wallet
//	@Produce		json
//	@Security		BearerAuth
//	@Param			payoutID	path		string	true	"Payout ID"
//	@Success		200			{object}	apicommon.PayoutInfo
//	@Failure		401			{object}	errors.Error
//	@Failure		404			{object}	errors.Error
//	@Router			/payouts/{payoutID} [get]
func (a *API) payoutHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	payoutID := chi.URLParam(r, "payoutID")
	if payoutID == "" {
		errors.ErrMalformedURLParam.With("payoutID is required").Write(w)
		return
	}
	payout, err := a.db.Payout(payoutID)
	if err != nil {
		if stderrors.Is(err, db.ErrNotFound) {
			errors.ErrPayoutNotFound.Write(w)
			return
		}
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	// other users' payouts are reported as missing
	if payout.UserID != user.ID {
		errors.ErrPayoutNotFound.Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, apicommon.PayoutInfoFromDB(payout))
}

// payoutError maps the wallet validation errors to API errors.
func payoutError(err error) errors.Error {
	switch {
	case stderrors.Is(err, wallet.ErrInvalidAmount):
		return errors.ErrInvalidAmount
	case stderrors.Is(err, wallet.ErrBelowMinimum):
		return errors.ErrBelowMinimumPayout.WithData(map[string]int64{"minimum": wallet.MinWithdrawalCoins})
	case stderrors.Is(err, wallet.ErrInsufficientBalance):
		return errors.ErrInsufficientBalance
	default:
		return errors.ErrInvalidData.WithErr(err)
	}
}
