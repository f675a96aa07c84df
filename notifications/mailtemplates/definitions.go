package mailtemplates

import "github.com/reevlo/reevlo-backend/notifications"

// VerifyAccountNotification carries the code that confirms the email of a
// new account. Data: VerificationData.
var VerifyAccountNotification = MailTemplate{
	File: "verify_account",
	Placeholder: notifications.Notification{
		Subject: "Confirm your Reevlo account",
		PlainBody: `Hi {{.Name}},

Your Reevlo verification code is: {{.Code}}

You can also use this link to verify your account: {{.Link}}
The code expires in {{.ExpiresIn}}.`,
	},
	WebAppURI: "/verify",
}

// PasswordResetNotification carries the code that allows to choose a new
// password. Data: VerificationData.
var PasswordResetNotification = MailTemplate{
	File: "password_reset",
	Placeholder: notifications.Notification{
		Subject: "Reset your Reevlo password",
		PlainBody: `Hi {{.Name}},

Your Reevlo password reset code is: {{.Code}}

You can also use this link to reset your password: {{.Link}}
The code expires in {{.ExpiresIn}}. If you did not ask for it, ignore this email.`,
	},
	WebAppURI: "/reset-password",
}

// PurchaseConfirmedNotification is sent when a coin package is credited.
// Data: PurchaseData.
var PurchaseConfirmedNotification = MailTemplate{
	File: "purchase_confirmed",
	Placeholder: notifications.Notification{
		Subject: "{{.Coins}} coins added to your Reevlo wallet",
		PlainBody: `Hi {{.Name}},

Your purchase of {{.Coins}} coins ({{.Amount}} USD) is confirmed.
Your balance is now {{.Balance}} coins.

Thanks for supporting creators on Reevlo.`,
	},
}

// MembershipActivatedNotification is sent when a Plus membership starts.
// Data: MembershipData.
var MembershipActivatedNotification = MailTemplate{
	File: "membership_activated",
	Placeholder: notifications.Notification{
		Subject: "Welcome to Reevlo {{.Plan}}",
		PlainBody: `Hi {{.Name}},

Your {{.Plan}} membership is active. You will be charged {{.Price}} USD every {{.Interval}}.
You can manage or cancel it at any time from your account.`,
	},
}

// PayoutRequestedNotification is sent to the creator after a payout request.
// Data: PayoutData.
var PayoutRequestedNotification = MailTemplate{
	File: "payout_requested",
	Placeholder: notifications.Notification{
		Subject: "Payout request {{.PayoutID}} received",
		PlainBody: `Hi {{.Name}},

We received your request to cash out {{.Coins}} coins for {{.Amount}} USD.
Your remaining balance is {{.Balance}} coins. We will let you know once it is paid.`,
	},
}

// PayoutAlertNotification is the SMS sent to the operator for each payout.
// Data: PayoutData.
var PayoutAlertNotification = MailTemplate{
	Placeholder: notifications.Notification{
		PlainBody: `Reevlo payout {{.PayoutID}}: {{.Email}} requested {{.Amount}} USD ({{.Coins}} coins)`,
	},
}

// VerificationData fills the verification code notifications.
type VerificationData struct {
	Name      string
	Code      string
	Link      string
	ExpiresIn string
}

// PurchaseData fills PurchaseConfirmedNotification.
type PurchaseData struct {
	Name    string
	Coins   int64
	Amount  string
	Balance int64
}

// MembershipData fills MembershipActivatedNotification.
type MembershipData struct {
	Name     string
	Plan     string
	Price    string
	Interval string
}

// PayoutData fills the payout notifications.
type PayoutData struct {
	Name     string
	Email    string
	PayoutID string
	Coins    int64
	Amount   string
	Balance  int64
}
