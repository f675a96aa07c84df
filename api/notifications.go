package api

import (
	"context"

	"github.com/reevlo/reevlo-backend/db"
	"github.com/reevlo/reevlo-backend/notifications"
	"github.com/reevlo/reevlo-backend/notifications/mailtemplates"
	"github.com/reevlo/reevlo-backend/wallet"
	"github.com/shopspring/decimal"
	"go.vocdoni.io/dvote/log"
)

// sendPaymentReceipt emails the user once a checkout session is applied. It
// is registered as the applied hook of the stripe service.
func (a *API) sendPaymentReceipt(user *db.User, payment *db.Payment, balance int64) {
	if a.mail == nil || user == nil || payment == nil {
		return
	}
	var (
		n   *notifications.Notification
		err error
	)
	switch payment.Type {
	case db.PaymentCoins:
		n, err = mailtemplates.PurchaseConfirmedNotification.ExecTemplate(mailtemplates.PurchaseData{
			Name:    displayName(user),
			Coins:   payment.Coins,
			Amount:  decimal.NewFromInt(payment.AmountTotal).Shift(-2).StringFixed(2),
			Balance: balance,
		})
	case db.PaymentMembership:
		n, err = mailtemplates.MembershipActivatedNotification.ExecTemplate(mailtemplates.MembershipData{
			Name:     displayName(user),
			Plan:     "Plus",
			Price:    wallet.Membership.Price.StringFixed(2),
			Interval: wallet.Membership.Interval,
		})
	default:
		return
	}
	if err != nil {
		log.Warnw("could not render receipt", "sessionID", payment.SessionID, "error", err)
		return
	}
	n.ToName = user.FullName
	n.ToAddress = user.Email
	a.deliver(a.mail, n)
}

// notifyPayout emails the creator and, when configured, alerts the operator
// by SMS about a new payout request.
func (a *API) notifyPayout(user *db.User, payout *db.Payout, balance int64) {
	data := mailtemplates.PayoutData{
		Name:     displayName(user),
		Email:    user.Email,
		PayoutID: payout.ID,
		Coins:    payout.Coins,
		Amount:   wallet.CoinsToUSD(payout.Coins).StringFixed(2),
		Balance:  balance,
	}
	if a.mail != nil {
		n, err := mailtemplates.PayoutRequestedNotification.ExecTemplate(data)
		if err != nil {
			log.Warnw("could not render payout email", "payoutID", payout.ID, "error", err)
		} else {
			n.ToName = user.FullName
			n.ToAddress = user.Email
			a.deliver(a.mail, n)
		}
	}
	if a.sms != nil && a.operatorPhone != "" {
		n, err := mailtemplates.PayoutAlertNotification.ExecTemplate(data)
		if err != nil {
			log.Warnw("could not render payout alert", "payoutID", payout.ID, "error", err)
			return
		}
		n.ToNumber = a.operatorPhone
		a.deliver(a.sms, n)
	}
}

// deliver sends the notification in the background. Failures are logged,
// they never fail the request that triggered them.
func (a *API) deliver(service notifications.NotificationService, n *notifications.Notification) {
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notificationTimeout)
		defer cancel()
		if err := service.SendNotification(ctx, n); err != nil {
			log.Warnw("could not send notification", "to", n.ToAddress+n.ToNumber, "subject", n.Subject, "error", err)
		}
	}()
}

func displayName(user *db.User) string {
	if user.FullName != "" {
		return user.FullName
	}
	return user.Email
}
