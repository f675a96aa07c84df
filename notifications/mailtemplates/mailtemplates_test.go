package mailtemplates

import (
	"net/url"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestLoad(t *testing.T) {
	c := qt.New(t)
	c.Assert(Load(), qt.IsNil)

	available := Available()
	for _, key := range []TemplateKey{
		"verify_account", "password_reset", "purchase_confirmed", "membership_activated", "payout_requested",
	} {
		_, ok := available[key]
		c.Assert(ok, qt.IsTrue, qt.Commentf("template %s should be available", key))
	}
	// loading twice is fine
	c.Assert(Load(), qt.IsNil)
	c.Assert(Available(), qt.HasLen, len(available))
}

func TestVerificationNotifications(t *testing.T) {
	c := qt.New(t)
	c.Assert(Load(), qt.IsNil)

	link := VerifyAccountNotification.Link("https://app.reevlo.test/", url.Values{
		"email": {"ada@reevlo.test"},
		"code":  {"a1b2c3"},
	})
	c.Assert(link, qt.Equals, "https://app.reevlo.test/verify?code=a1b2c3&email=ada%40reevlo.test")
	c.Assert(PasswordResetNotification.Link("https://app.reevlo.test", nil), qt.Equals,
		"https://app.reevlo.test/reset-password")

	data := VerificationData{Name: "Ada", Code: "a1b2c3", Link: link, ExpiresIn: "1 hour"}
	n, err := VerifyAccountNotification.ExecTemplate(data)
	c.Assert(err, qt.IsNil)
	c.Assert(n.Subject, qt.Equals, "Confirm your Reevlo account")
	c.Assert(n.PlainBody, qt.Contains, "Your Reevlo verification code is: a1b2c3")
	c.Assert(n.PlainBody, qt.Contains, link)
	c.Assert(n.Body, qt.Contains, "a1b2c3")
	c.Assert(n.Body, qt.Contains, "expires in 1 hour")

	n, err = PasswordResetNotification.ExecTemplate(data)
	c.Assert(err, qt.IsNil)
	c.Assert(n.Subject, qt.Equals, "Reset your Reevlo password")
	c.Assert(n.PlainBody, qt.Contains, "Your Reevlo password reset code is: a1b2c3")
	c.Assert(n.Body, qt.Contains, "Reset my password")
}

func TestPurchaseConfirmed(t *testing.T) {
	c := qt.New(t)
	c.Assert(Load(), qt.IsNil)

	n, err := PurchaseConfirmedNotification.ExecTemplate(PurchaseData{
		Name:    "Ada <script>",
		Coins:   1000,
		Amount:  "10.00",
		Balance: 1500,
	})
	c.Assert(err, qt.IsNil)
	c.Assert(n.Subject, qt.Equals, "1000 coins added to your Reevlo wallet")
	c.Assert(n.PlainBody, qt.Contains, "Your balance is now 1500 coins.")
	c.Assert(n.Body, qt.Contains, "<strong>1000 coins</strong>")
	// html bodies are escaped
	c.Assert(n.Body, qt.Contains, "Ada &lt;script&gt;")
	c.Assert(n.Body, qt.Not(qt.Contains), "<script>")
}

func TestMembershipActivated(t *testing.T) {
	c := qt.New(t)
	c.Assert(Load(), qt.IsNil)

	n, err := MembershipActivatedNotification.ExecTemplate(MembershipData{
		Name: "Ada", Plan: "Plus", Price: "8.99", Interval: "month",
	})
	c.Assert(err, qt.IsNil)
	c.Assert(n.Subject, qt.Equals, "Welcome to Reevlo Plus")
	c.Assert(n.Body, qt.Contains, "8.99 USD every month")
}

func TestPayoutNotifications(t *testing.T) {
	c := qt.New(t)
	c.Assert(Load(), qt.IsNil)
	data := PayoutData{
		Name:     "Ada",
		Email:    "ada@reevlo.test",
		PayoutID: "po_1",
		Coins:    5000,
		Amount:   "50.00",
		Balance:  250,
	}

	n, err := PayoutRequestedNotification.ExecTemplate(data)
	c.Assert(err, qt.IsNil)
	c.Assert(n.Subject, qt.Equals, "Payout request po_1 received")
	c.Assert(n.Body, qt.Contains, "<strong>50.00 USD</strong>")

	sms, err := PayoutAlertNotification.ExecTemplate(data)
	c.Assert(err, qt.IsNil)
	c.Assert(sms.Body, qt.Equals, "")
	c.Assert(sms.Subject, qt.Equals, "")
	c.Assert(sms.PlainBody, qt.Equals, "Reevlo payout po_1: ada@reevlo.test requested 50.00 USD (5000 coins)")
}

func TestExecTemplateErrors(t *testing.T) {
	c := qt.New(t)
	c.Assert(Load(), qt.IsNil)

	_, err := MailTemplate{File: "missing"}.ExecTemplate(nil)
	c.Assert(err, qt.ErrorMatches, "template missing not found")

	// unknown fields in the data are reported, not rendered as empty
	_, err = PurchaseConfirmedNotification.ExecTemplate(map[string]any{"Name": "Ada"})
	c.Assert(err, qt.Not(qt.IsNil))
}
