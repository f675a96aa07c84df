package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/go-chi/jwtauth/v5"
	"github.com/reevlo/reevlo-backend/api/apicommon"
	"github.com/reevlo/reevlo-backend/db"
	"github.com/reevlo/reevlo-backend/internal"
)

func TestRegisterAndLogin(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, false)
	token, userID := env.register(c, "creator@reevlo.test")

	t.Run("Duplicate", func(t *testing.T) {
		c := qt.New(t)
		status, body := env.request(c, http.MethodPost, usersEndpoint, "", &apicommon.RegisterRequest{
			Email:    "Creator@Reevlo.test",
			Password: testPass,
		})
		c.Assert(status, qt.Equals, http.StatusConflict)
		c.Assert(errorCode(c, body), qt.Equals, 40901)
	})

	t.Run("InvalidInput", func(t *testing.T) {
		c := qt.New(t)
		status, _ := env.request(c, http.MethodPost, usersEndpoint, "", &apicommon.RegisterRequest{
			Email:    "not-an-email",
			Password: testPass,
		})
		c.Assert(status, qt.Equals, http.StatusBadRequest)
		status, _ = env.request(c, http.MethodPost, usersEndpoint, "", &apicommon.RegisterRequest{
			Email:    "short@reevlo.test",
			Password: "short",
		})
		c.Assert(status, qt.Equals, http.StatusBadRequest)
		status, _ = env.request(c, http.MethodPost, usersEndpoint, "", []byte(`{"email":`))
		c.Assert(status, qt.Equals, http.StatusBadRequest)
		// 40 runes pass the length check but take 80 bytes, over the bcrypt limit
		status, body := env.request(c, http.MethodPost, usersEndpoint, "", &apicommon.RegisterRequest{
			Email:    "long@reevlo.test",
			Password: strings.Repeat("ñ", 40),
		})
		c.Assert(status, qt.Equals, http.StatusBadRequest)
		c.Assert(errorCode(c, body), qt.Equals, 40025)
		_, err := env.db.UserByEmail("long@reevlo.test")
		c.Assert(err, qt.Equals, db.ErrNotFound)
	})

	t.Run("Login", func(t *testing.T) {
		c := qt.New(t)
		status, body := env.request(c, http.MethodPost, authLoginEndpoint, "", &apicommon.LoginRequest{
			Email:    "creator@reevlo.test",
			Password: "wrong-password",
		})
		c.Assert(status, qt.Equals, http.StatusUnauthorized)
		c.Assert(errorCode(c, body), qt.Equals, 40002)

		status, _ = env.request(c, http.MethodPost, authLoginEndpoint, "", &apicommon.LoginRequest{
			Email:    "nobody@reevlo.test",
			Password: testPass,
		})
		c.Assert(status, qt.Equals, http.StatusUnauthorized)

		status, body = env.request(c, http.MethodPost, authLoginEndpoint, "", &apicommon.LoginRequest{
			Email:    " CREATOR@reevlo.test ",
			Password: testPass,
		})
		c.Assert(status, qt.Equals, http.StatusOK)
		login := &apicommon.LoginResponse{}
		c.Assert(json.Unmarshal(body, login), qt.IsNil)
		c.Assert(login.Token, qt.Not(qt.Equals), "")
		c.Assert(login.Expirity.After(time.Now().Add(jwtExpiration-time.Minute)), qt.IsTrue)
	})

	t.Run("Me", func(t *testing.T) {
		c := qt.New(t)
		_, err := env.db.AddCoins(userID, 700)
		c.Assert(err, qt.IsNil)
		status, body := env.request(c, http.MethodGet, usersMeEndpoint, token, nil)
		c.Assert(status, qt.Equals, http.StatusOK)
		info := &apicommon.UserInfo{}
		c.Assert(json.Unmarshal(body, info), qt.IsNil)
		c.Assert(info.ID, qt.Equals, userID)
		c.Assert(info.Email, qt.Equals, "creator@reevlo.test")
		c.Assert(info.FullName, qt.Equals, testFullName)
		c.Assert(info.VirtualMoney, qt.Equals, int64(700))
		c.Assert(info.IsPremium, qt.IsFalse)
		c.Assert(info.Plan.ID, qt.Equals, "free")
		c.Assert(info.Perks, qt.HasLen, 0)
		// the password hash never leaves the server
		c.Assert(string(body), qt.Not(qt.Contains), "password")
	})

	t.Run("Refresh", func(t *testing.T) {
		c := qt.New(t)
		status, body := env.request(c, http.MethodPost, authRefresTokenEndpoint, token, nil)
		c.Assert(status, qt.Equals, http.StatusOK)
		login := &apicommon.LoginResponse{}
		c.Assert(json.Unmarshal(body, login), qt.IsNil)
		status, _ = env.request(c, http.MethodGet, usersMeEndpoint, login.Token, nil)
		c.Assert(status, qt.Equals, http.StatusOK)
	})
}

func TestUnauthorized(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, false)

	protected := []struct {
		method string
		path   string
	}{
		{http.MethodPost, authRefresTokenEndpoint},
		{http.MethodGet, usersMeEndpoint},
		{http.MethodGet, walletEndpoint},
		{http.MethodGet, walletPaymentsEndpoint},
		{http.MethodPost, createCheckoutSessionEndpoint},
		{http.MethodGet, "/api/checkout/cs_test_1"},
		{http.MethodGet, subscriptionsPortalEndpoint},
		{http.MethodPost, syncBalanceEndpoint},
		{http.MethodPost, requestPayoutEndpoint},
		{http.MethodGet, payoutsEndpoint},
		{http.MethodGet, "/payouts/some-payout"},
	}
	for _, route := range protected {
		status, body := env.request(c, route.method, route.path, "", nil)
		c.Assert(status, qt.Equals, http.StatusUnauthorized, qt.Commentf("%s %s", route.method, route.path))
		c.Assert(errorCode(c, body), qt.Equals, 40001)

		status, _ = env.request(c, route.method, route.path, "not-a-jwt", nil)
		c.Assert(status, qt.Equals, http.StatusUnauthorized, qt.Commentf("%s %s", route.method, route.path))
	}

	// tokens signed with another secret are rejected
	foreign := &API{auth: jwtauth.New("HS256", []byte("another-secret"), nil)}
	login, err := foreign.buildLoginResponse("some-user")
	c.Assert(err, qt.IsNil)
	status, _ := env.request(c, http.MethodGet, usersMeEndpoint, login.Token, nil)
	c.Assert(status, qt.Equals, http.StatusUnauthorized)

	// valid tokens of deleted users are rejected too
	token, userID := env.register(c, "gone@reevlo.test")
	c.Assert(env.db.DelUser(userID), qt.IsNil)
	status, _ = env.request(c, http.MethodGet, usersMeEndpoint, token, nil)
	c.Assert(status, qt.Equals, http.StatusUnauthorized)
}

func TestAccountVerification(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, false)
	const email = "pending@reevlo.test"

	status, body := env.request(c, http.MethodPost, usersEndpoint, "", &apicommon.RegisterRequest{
		Email:    email,
		Password: testPass,
		FullName: testFullName,
	})
	c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("body: %s", body))
	mails := env.mail.all()
	c.Assert(mails, qt.HasLen, 1)
	c.Assert(mails[0].ToAddress, qt.Equals, email)
	c.Assert(mails[0].Subject, qt.Equals, "Confirm your Reevlo account")
	code := env.lastCode(c, email)
	c.Assert(mails[0].PlainBody, qt.Contains, testWebAppURL+"/verify?code="+code)
	// only the hash is stored
	user, err := env.db.UserByEmail(email)
	c.Assert(err, qt.IsNil)
	c.Assert(user.Verified, qt.IsFalse)
	_, err = env.db.UserByVerificationCode(code, db.CodeTypeAccountVerification)
	c.Assert(err, qt.Equals, db.ErrNotFound)

	login := func() (int, []byte) {
		return env.request(c, http.MethodPost, authLoginEndpoint, "", &apicommon.LoginRequest{
			Email:    email,
			Password: testPass,
		})
	}
	status, body = login()
	c.Assert(status, qt.Equals, http.StatusUnauthorized)
	c.Assert(errorCode(c, body), qt.Equals, 40022)

	verify := func(code string) (int, []byte) {
		return env.request(c, http.MethodPost, verifyUserEndpoint, "", &apicommon.VerifyAccountRequest{
			Email: email,
			Code:  code,
		})
	}

	t.Run("WrongCode", func(t *testing.T) {
		c := qt.New(t)
		status, body := verify("000000")
		c.Assert(status, qt.Equals, http.StatusUnauthorized)
		c.Assert(errorCode(c, body), qt.Equals, 40023)
		// codes are bound to the email they were sent to
		status, body = env.request(c, http.MethodPost, verifyUserEndpoint, "", &apicommon.VerifyAccountRequest{
			Email: "someone@reevlo.test",
			Code:  code,
		})
		c.Assert(status, qt.Equals, http.StatusUnauthorized)
		c.Assert(errorCode(c, body), qt.Equals, 40023)
	})

	t.Run("Resend", func(t *testing.T) {
		c := qt.New(t)
		status, body := env.request(c, http.MethodPost, verifyUserCodeEndpoint, "", &apicommon.EmailRequest{Email: "nope"})
		c.Assert(status, qt.Equals, http.StatusBadRequest)
		c.Assert(errorCode(c, body), qt.Equals, 40006)
		status, body = env.request(c, http.MethodPost, verifyUserCodeEndpoint, "", &apicommon.EmailRequest{Email: "ghost@reevlo.test"})
		c.Assert(status, qt.Equals, http.StatusNotFound)
		c.Assert(errorCode(c, body), qt.Equals, 40018)

		status, body = env.request(c, http.MethodPost, verifyUserCodeEndpoint, "", &apicommon.EmailRequest{Email: email})
		c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("body: %s", body))
		c.Assert(env.mail.all(), qt.HasLen, 2)
		newCode := env.lastCode(c, email)
		if newCode != code {
			// the previous code stops working
			status, body = verify(code)
			c.Assert(status, qt.Equals, http.StatusUnauthorized)
			c.Assert(errorCode(c, body), qt.Equals, 40023)
		}
		code = newCode
	})

	t.Run("Verify", func(t *testing.T) {
		c := qt.New(t)
		status, body := verify(" " + strings.ToUpper(code) + " ")
		c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("body: %s", body))
		res := &apicommon.LoginResponse{}
		c.Assert(json.Unmarshal(body, res), qt.IsNil)
		status, _ = env.request(c, http.MethodGet, usersMeEndpoint, res.Token, nil)
		c.Assert(status, qt.Equals, http.StatusOK)

		status, _ = login()
		c.Assert(status, qt.Equals, http.StatusOK)
		// codes are single use
		status, _ = verify(code)
		c.Assert(status, qt.Equals, http.StatusUnauthorized)
		status, body = env.request(c, http.MethodPost, verifyUserCodeEndpoint, "", &apicommon.EmailRequest{Email: email})
		c.Assert(status, qt.Equals, http.StatusBadRequest)
		c.Assert(errorCode(c, body), qt.Equals, 40026)
	})

	t.Run("Expired", func(t *testing.T) {
		c := qt.New(t)
		const late = "late@reevlo.test"
		status, _ := env.request(c, http.MethodPost, usersEndpoint, "", &apicommon.RegisterRequest{
			Email:    late,
			Password: testPass,
		})
		c.Assert(status, qt.Equals, http.StatusOK)
		user, err := env.db.UserByEmail(late)
		c.Assert(err, qt.IsNil)
		c.Assert(env.db.SetVerificationCode(user.ID, internal.HashVerificationCode(late, "abcdef"),
			db.CodeTypeAccountVerification, time.Now().Add(-time.Minute)), qt.IsNil)
		status, body := env.request(c, http.MethodPost, verifyUserEndpoint, "", &apicommon.VerifyAccountRequest{
			Email: late,
			Code:  "abcdef",
		})
		c.Assert(status, qt.Equals, http.StatusUnauthorized)
		c.Assert(errorCode(c, body), qt.Equals, 40024)
	})
}

func TestRegisterWithoutMail(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, false)
	env.api.mail = nil

	status, body := env.request(c, http.MethodPost, usersEndpoint, "", &apicommon.RegisterRequest{
		Email:    "nomail@reevlo.test",
		Password: testPass,
	})
	c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("body: %s", body))
	status, _ = env.request(c, http.MethodPost, authLoginEndpoint, "", &apicommon.LoginRequest{
		Email:    "nomail@reevlo.test",
		Password: testPass,
	})
	c.Assert(status, qt.Equals, http.StatusOK)

	// codes can't be delivered
	status, body = env.request(c, http.MethodPost, usersRecoveryPasswordEndpoint, "",
		&apicommon.EmailRequest{Email: "nomail@reevlo.test"})
	c.Assert(status, qt.Equals, http.StatusInternalServerError)
	c.Assert(errorCode(c, body), qt.Equals, 50009)
}

func TestPasswordRecovery(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(c, false)
	const email = "forgetful@reevlo.test"
	token, _ := env.register(c, email)
	c.Assert(token, qt.Not(qt.Equals), "")

	askReset := func(email string) {
		status, body := env.request(c, http.MethodPost, usersRecoveryPasswordEndpoint, "", &apicommon.EmailRequest{Email: email})
		c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("body: %s", body))
	}
	// unknown emails get the same answer and no mail
	askReset("stranger@reevlo.test")
	c.Assert(env.mail.all(), qt.HasLen, 0)

	askReset(email)
	mails := env.mail.all()
	c.Assert(mails, qt.HasLen, 1)
	c.Assert(mails[0].Subject, qt.Equals, "Reset your Reevlo password")
	code := env.lastCode(c, email)

	reset := func(code, password string) (int, []byte) {
		return env.request(c, http.MethodPost, usersResetPasswordEndpoint, "", &apicommon.PasswordResetRequest{
			Email:       email,
			Code:        code,
			NewPassword: password,
		})
	}
	// account codes don't reset passwords
	user, err := env.db.UserByEmail(email)
	c.Assert(err, qt.IsNil)
	c.Assert(env.db.SetVerificationCode(user.ID, internal.HashVerificationCode(email, "0a0b0c"),
		db.CodeTypeAccountVerification, time.Now().Add(time.Hour)), qt.IsNil)
	status, body := reset("0a0b0c", "new-password-1")
	c.Assert(status, qt.Equals, http.StatusUnauthorized)
	c.Assert(errorCode(c, body), qt.Equals, 40023)

	status, body = reset(code, strings.Repeat("ñ", 40))
	c.Assert(status, qt.Equals, http.StatusBadRequest)
	c.Assert(errorCode(c, body), qt.Equals, 40025)

	status, body = reset(code, "new-password-1")
	c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("body: %s", body))
	status, _ = reset(code, "new-password-2")
	c.Assert(status, qt.Equals, http.StatusUnauthorized)

	login := func(password string) int {
		status, _ := env.request(c, http.MethodPost, authLoginEndpoint, "", &apicommon.LoginRequest{
			Email:    email,
			Password: password,
		})
		return status
	}
	c.Assert(login(testPass), qt.Equals, http.StatusUnauthorized)
	c.Assert(login("new-password-1"), qt.Equals, http.StatusOK)
}
