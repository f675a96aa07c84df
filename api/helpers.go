package api

import (
	"context"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/reevlo/reevlo-backend/api/apicommon"
)

// buildLoginResponse creates a JWT token for the given user identifier.
// The token is signed with the API secret (HS256).
// The token is valid for the period specified on jwtExpiration constant.
func (a *API) buildLoginResponse(id string) (*apicommon.LoginResponse, error) {
	expiration := time.Now().Add(jwtExpiration)
	j := jwt.New()
	if err := j.Set("userId", id); err != nil {
		return nil, err
	}
	if err := j.Set(jwt.IssuedAtKey, time.Now()); err != nil {
		return nil, err
	}
	if err := j.Set(jwt.ExpirationKey, expiration); err != nil {
		return nil, err
	}
	jmap, err := j.AsMap(context.Background())
	if err != nil {
		return nil, err
	}
	_, token, err := a.auth.Encode(jmap)
	if err != nil {
		return nil, err
	}
	return &apicommon.LoginResponse{Token: token, Expirity: expiration}, nil
}
