package api

import (
	stderrors "errors"
	"net/http"

	"github.com/reevlo/reevlo-backend/api/apicommon"
	"github.com/reevlo/reevlo-backend/db"
	"github.com/reevlo/reevlo-backend/errors"
	"github.com/reevlo/reevlo-backend/internal"
	"github.com/reevlo/reevlo-backend/validator"
)

// refreshTokenHandler godoc
//
//	@Summary		Refresh JWT token
//	@Description	Refresh the JWT token for an authenticated user
//	@Tags			auth
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	apicommon.LoginResponse
//	@Failure		401	{object}	errors.Error
//	@Router			/auth/refresh [post]
func (a *API) refreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := apicommon.UserFromContext(r.Context())
	if !ok {
		errors.ErrUnauthorized.Write(w)
		return
	}
	res, err := a.buildLoginResponse(user.ID)
	if err != nil {
		errors.ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, res)
}

// authLoginHandler godoc
//
//	@Summary		Login to get a JWT token
//	@Description	Authenticate a user with email and password and get a JWT token
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		apicommon.LoginRequest	true	"Login credentials"
//	@Success		200		{object}	apicommon.LoginResponse
//	@Failure		400		{object}	errors.Error
//	@Failure		401		{object}	errors.Error	"Invalid credentials or account not verified"
//	@Router			/auth/login [post]
func (a *API) authLoginHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := validator.Model[apicommon.LoginRequest](r.Context())
	if !ok {
		errors.ErrMalformedBody.Write(w)
		return
	}
	user, err := a.db.UserByEmail(internal.NormalizeEmail(req.Email))
	if err != nil {
		if stderrors.Is(err, db.ErrNotFound) {
			errors.ErrInvalidCredentials.Write(w)
			return
		}
		errors.ErrInternalStorageError.WithErr(err).Write(w)
		return
	}
	if !internal.CheckPassword(user.Password, req.Password) {
		errors.ErrInvalidCredentials.Write(w)
		return
	}
	if !user.Verified {
		errors.ErrUserNotVerified.Write(w)
		return
	}
	res, err := a.buildLoginResponse(user.ID)
	if err != nil {
		errors.ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	apicommon.HTTPWriteJSON(w, res)
}
