package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/reevlo/reevlo-backend/api/apicommon"
	"github.com/reevlo/reevlo-backend/db"
	"github.com/reevlo/reevlo-backend/errors"
	"github.com/reevlo/reevlo-backend/internal"
	"github.com/reevlo/reevlo-backend/notifications/mailtemplates"
	"github.com/reevlo/reevlo-backend/validator"
	"go.vocdoni.io/dvote/log"
)

// registerHandler godoc
//
//	@Summary		Register a new user
//	@Description	Create an account and email a verification code to it. The account can log in once
//	@Description	verified. Without a mail service the account is verified at once.
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Param			request	body		apicommon.RegisterRequest	true	"User information"
//	@Success		200		{string}	string						"OK"
//	@Failure		400		{object}	errors.Error
//	@Failure		409		{object}	errors.Error	"Email already registered"
//	@Failure		500		{object}	errors.Error
//	@Router			/users [post]
func (a *API) registerHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := validator.Model[apicommon.RegisterRequest](r.Context())
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	hash, err := internal.HashPassword(req.Password)
	if err != nil {
		writePasswordError(w, err)
		return
	}
	user := &db.User{
		Email:    internal.NormalizeEmail(req.Email),
		Password: hash,
		FullName: req.FullName,
		Verified: a.mail == nil,
	}
	userID, err := a.db.SetUser(user)
	if err != nil {
		if stderrors.Is(err, db.ErrAlreadyExists) {
			errors.ErrDuplicateConflict.With("email already registered").Write(w)
			return
		}
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	log.Infow("new user registered", "userID", userID, "verified", user.Verified)
	if user.Verified {
		apicommon.HTTPWriteOK(w)
		return
	}
	if err := a.sendVerificationCode(r.Context(), user, db.CodeTypeAccountVerification); err != nil {
		errors.ErrNotificationFailed.WithErr(err).Write(w)
		return
	}
	apicommon.HTTPWriteOK(w)
}

// verifyUserAccountHandler godoc
//
//	@Summary		Verify user account
//	@Description	Verify the account with the code sent by email and get a JWT token
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Param			request	body		apicommon.VerifyAccountRequest	true	"Email and verification code"
//	@Success		200		{object}	apicommon.LoginResponse
//	@Failure		400		{object}	errors.Error
//	@Failure		401		{object}	errors.Error	"Invalid or expired code"
//	@Router			/users/verify [post]
func (a *API) verifyUserAccountHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := validator.Model[apicommon.VerifyAccountRequest](r.Context())
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	user, ok := a.userByCode(w, req.Email, req.Code, db.CodeTypeAccountVerification)
	if !ok {
		return
	}
	if err := a.db.VerifyUserAccount(user.ID); err != nil {
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	log.Infow("user account verified", "userID", user.ID)
	res, err := a.buildLoginResponse(user.ID)
	if err != nil {
		errors.ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, res)
}

// resendVerificationCodeHandler godoc
//
//	@Summary		Resend the verification code
//	@Description	Send a new verification code to an account that is not verified yet. The previous
//	@Description	code stops working.
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Param			request	body		apicommon.EmailRequest	true	"Account email"
//	@Success		200		{string}	string					"OK"
//	@Failure		400		{object}	errors.Error			"Malformed email or account already verified"
//	@Failure		404		{object}	errors.Error
//	@Failure		500		{object}	errors.Error
//	@Router			/users/verify/code [post]
func (a *API) resendVerificationCodeHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := validator.Model[apicommon.EmailRequest](r.Context())
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	email := internal.NormalizeEmail(req.Email)
	if !internal.ValidEmail(email) {
		errors.ErrEmailMalformed.Write(w)
		return
	}
	user, err := a.db.UserByEmail(email)
	if err != nil {
		if stderrors.Is(err, db.ErrNotFound) {
			errors.ErrUserNotFound.Write(w)
			return
		}
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	if user.Verified {
		errors.ErrUserAlreadyVerified.Write(w)
		return
	}
	if err := a.sendVerificationCode(r.Context(), user, db.CodeTypeAccountVerification); err != nil {
		errors.ErrNotificationFailed.WithErr(err).Write(w)
		return
	}
	apicommon.HTTPWriteOK(w)
}

// recoverUserPasswordHandler godoc
//
//	@Summary		Recover the password
//	@Description	Email a password reset code. Unknown emails get the same answer, so the endpoint
//	@Description	does not tell which accounts exist.
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Param			request	body		apicommon.EmailRequest	true	"Account email"
//	@Success		200		{string}	string					"OK"
//	@Failure		400		{object}	errors.Error
//	@Failure		500		{object}	errors.Error
//	@Router			/users/password/recovery [post]
func (a *API) recoverUserPasswordHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := validator.Model[apicommon.EmailRequest](r.Context())
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	email := internal.NormalizeEmail(req.Email)
	if !internal.ValidEmail(email) {
		errors.ErrEmailMalformed.Write(w)
		return
	}
	user, err := a.db.UserByEmail(email)
	if err != nil {
		if stderrors.Is(err, db.ErrNotFound) {
			log.Debugw("password recovery for unknown email")
			apicommon.HTTPWriteOK(w)
			return
		}
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	if err := a.sendVerificationCode(r.Context(), user, db.CodeTypePasswordReset); err != nil {
		errors.ErrNotificationFailed.WithErr(err).Write(w)
		return
	}
	apicommon.HTTPWriteOK(w)
}

// resetUserPasswordHandler godoc
//
//	@Summary		Reset the password
//	@Description	Set a new password with the code sent by the recovery endpoint
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Param			request	body		apicommon.PasswordResetRequest	true	"Email, reset code and new password"
//	@Success		200		{string}	string							"OK"
//	@Failure		400		{object}	errors.Error
//	@Failure		401		{object}	errors.Error	"Invalid or expired code"
//	@Router			/users/password/reset [post]
func (a *API) resetUserPasswordHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := validator.Model[apicommon.PasswordResetRequest](r.Context())
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	hash, err := internal.HashPassword(req.NewPassword)
	if err != nil {
		writePasswordError(w, err)
		return
	}
	user, ok := a.userByCode(w, req.Email, req.Code, db.CodeTypePasswordReset)
	if !ok {
		return
	}
	if err := a.db.ResetUserPassword(user.ID, hash); err != nil {
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	log.Infow("user password reset", "userID", user.ID)
	apicommon.HTTPWriteOK(w)
}

// userInfoHandler godoc
//
//	@Summary		Get current user information
//	@Description	Get the profile, coin balance, plan and perks of the authenticated user
//	@Tags			users
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	apicommon.UserInfo
//	@Failure		401	{object}	errors.Error
//	@Router			/users/me [get]
func (a *API) userInfoHandler(w http.ResponseWriter, r *http.Request) {
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
	apicommon.HTTPWriteJSON(w, apicommon.UserInfoFromDB(user, balance.VirtualMoney))
}

// userByCode returns the owner of an emailed code, writing the error
// response when there is none.
func (a *API) userByCode(w http.ResponseWriter, email, code string, t db.CodeType) (*db.User, bool) {
	hash := internal.HashVerificationCode(internal.NormalizeEmail(email), strings.ToLower(strings.TrimSpace(code)))
	user, err := a.db.UserByVerificationCode(hash, t)
	switch {
	case err == nil:
		return user, true
	case stderrors.Is(err, db.ErrNotFound):
		errors.ErrInvalidCode.Write(w)
	case stderrors.Is(err, db.ErrVerificationExpired):
		errors.ErrCodeExpired.Write(w)
	default:
		errors.ErrInternalStorageError.WithErr(err).Write(w)
	}
	return nil, false
}

// sendVerificationCode stores a new code of the given type for the user and
// emails it. Unlike receipts, codes are sent before answering, the request
// is useless if the email never arrives.
func (a *API) sendVerificationCode(ctx context.Context, user *db.User, t db.CodeType) error {
	if a.mail == nil {
		return fmt.Errorf("no mail service configured")
	}
	tmpl := mailtemplates.VerifyAccountNotification
	if t == db.CodeTypePasswordReset {
		tmpl = mailtemplates.PasswordResetNotification
	}
	code := internal.RandomHex(verificationCodeLength)
	hash := internal.HashVerificationCode(user.Email, code)
	if err := a.db.SetVerificationCode(user.ID, hash, t, time.Now().Add(verificationCodeExpiration)); err != nil {
		return fmt.Errorf("could not store the verification code: %w", err)
	}
	n, err := tmpl.ExecTemplate(mailtemplates.VerificationData{
		Name:      displayName(user),
		Code:      code,
		Link:      tmpl.Link(a.webAppURL, url.Values{"email": {user.Email}, "code": {code}}),
		ExpiresIn: fmt.Sprintf("%d minutes", int(verificationCodeExpiration.Minutes())),
	})
	if err != nil {
		return err
	}
	n.ToName = user.FullName
	n.ToAddress = user.Email
	ctx, cancel := context.WithTimeout(ctx, notificationTimeout)
	defer cancel()
	return a.mail.SendNotification(ctx, n)
}

// writePasswordError answers a password that could not be hashed.
func writePasswordError(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, internal.ErrPasswordTooShort):
		errors.ErrPasswordTooShort.Write(w)
	case stderrors.Is(err, internal.ErrPasswordTooLong):
		errors.ErrPasswordTooLong.Write(w)
	default:
		errors.ErrGenericInternalServerError.WithErr(err).Write(w)
	}
}
