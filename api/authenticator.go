package api

import (
	"context"
	stderrors "errors"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
	"github.com/reevlo/reevlo-backend/api/apicommon"
	"github.com/reevlo/reevlo-backend/db"
	"github.com/reevlo/reevlo-backend/errors"
)

// authenticator checks the JWT token verified by jwtauth.Verifier, loads the
// user named by its userId claim and stores it in the request context.
func (a *API) authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil {
			errors.ErrUnauthorized.Write(w)
			return
		}
		userID, ok := claims["userId"].(string)
		if !ok || userID == "" {
			errors.ErrUnauthorized.With("userId claim not found in JWT token").Write(w)
			return
		}
		user, err := a.db.User(userID)
		if err != nil {
			if stderrors.Is(err, db.ErrNotFound) {
				errors.ErrUnauthorized.With("user not found").Write(w)
				return
			}
			errors.ErrInternalStorageError.WithErr(err).Write(w)
			return
		}
		ctx := context.WithValue(r.Context(), apicommon.UserMetadataKey, *user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
