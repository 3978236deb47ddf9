package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/requestcontext"
)

// PortalClaims are the claims the parent portal puts in its bearer tokens.
type PortalClaims struct {
	Role             string `json:"role"`
	IdentityVerified bool   `json:"identity_verified"`
	jwt.RegisteredClaims
}

// TokenValidator verifies HS256 portal tokens.
type TokenValidator struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewTokenValidator(signingKey, issuer, audience string) *TokenValidator {
	return &TokenValidator{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// ValidateToken checks signature, expiry, issuer and audience, then maps
// the claims onto an Actor.
func (v *TokenValidator) ValidateToken(tokenString string) (requestcontext.Actor, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &PortalClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return requestcontext.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "token expired")
		}
		return requestcontext.Actor{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token")
	}

	actorID, err := id.ParseActorID(claims.Subject)
	if err != nil {
		return requestcontext.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "token subject missing")
	}
	role := requestcontext.Role(claims.Role)
	if !role.IsValid() {
		return requestcontext.Actor{}, dErrors.New(dErrors.CodeUnauthorized, fmt.Sprintf("unknown role %q", claims.Role))
	}

	return requestcontext.Actor{
		ID:               actorID,
		Role:             role,
		IdentityVerified: claims.IdentityVerified,
	}, nil
}

// Sign issues a token for actor. The portal normally does this; the service
// only signs tokens for local tooling and tests.
func (v *TokenValidator) Sign(actor requestcontext.Actor, now time.Time, ttl time.Duration) (string, error) {
	claims := PortalClaims{
		Role:             string(actor.Role),
		IdentityVerified: actor.IdentityVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.signingKey)
}
