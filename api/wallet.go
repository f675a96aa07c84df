package api

import (
	stderrors "errors"
	"net/http"

	"github.com/reevlo/reevlo-backend/api/apicommon"
	"github.com/reevlo/reevlo-backend/db"
	"github.com/reevlo/reevlo-backend/errors"
	"github.com/reevlo/reevlo-backend/metrics"
	"github.com/reevlo/reevlo-backend/subscriptions"
	"github.com/reevlo/reevlo-backend/validator"
	"github.com/reevlo/reevlo-backend/wallet"
	"go.vocdoni.io/dvote/log"
)

// coinSourceDebug labels the coins credited by the debug route.
const coinSourceDebug = "debug"

// walletHandler godoc
//
//	@Summary		Get the wallet
//	@Description	Get the coin balance of the authenticated user, its withdrawal value and the membership flag
//	@Tags			wallet
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	apicommon.WalletInfo
//	@Failure		401	{object}	errors.Error
//	@Router			/wallet [get]
func (a *API) walletHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	balance, err := a.db.Balance(user.ID)
	if err != nil {
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, &apicommon.WalletInfo{
		VirtualMoney: balance.VirtualMoney,
		USDValue:     wallet.CoinsToUSD(balance.VirtualMoney),
		IsPremium:    user.Premium,
	})
}

// walletPaymentsHandler godoc
//
//	@Summary		List applied payments
//	@Description	List the checkout sessions applied to the authenticated user, newest first
//	@Tags			wallet
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	apicommon.PaymentList
//	@Failure		401	{object}	errors.Error
//	@Router			/wallet/payments [get]
func (a *API) walletPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	payments, err := a.db.Payments(user.ID)
	if err != nil {
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, &apicommon.PaymentList{Payments: payments})
}

// coinPackagesHandler godoc
//
//	@Summary		List coin packages
//	@Tags			wallet
//	@Produce		json
//	@Success		200	{object}	apicommon.CoinPackageList
//	@Router			/coins/packages [get]
func (*API) coinPackagesHandler(w http.ResponseWriter, _ *http.Request) {
	apicommon.HTTPWriteJSON(w, &apicommon.CoinPackageList{Packages: wallet.CoinPackages()})
}

// membershipPlansHandler godoc
//
//	@Summary		List membership plans
//	@Tags			wallet
//	@Produce		json
//	@Success		200	{object}	apicommon.MembershipPlanList
//	@Router			/membership/plans [get]
func (*API) membershipPlansHandler(w http.ResponseWriter, _ *http.Request) {
	apicommon.HTTPWriteJSON(w, &apicommon.MembershipPlanList{Plans: subscriptions.Plans()})
}

// debugAddCoinsHandler credits coins to any user. It is only routed when the
// server runs in debug mode.
func (a *API) debugAddCoinsHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := validator.Model[apicommon.AddCoinsRequest](r.Context())
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	balance, err := a.db.AddCoins(req.UserID, req.Amount)
	if err != nil {
		if stderrors.Is(err, db.ErrNotFound) {
			errors.ErrUserNotFound.Write(w)
			return
		}
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	metrics.RecordCoinsCredited(coinSourceDebug, req.Amount)
	log.Warnw("debug coins added", "userID", req.UserID, "coins", req.Amount, "balance", balance)
	apicommon.HTTPWriteJSON(w, &apicommon.AddCoinsResponse{Success: true, NewBalance: balance})
}
