package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"compliance/pkg/requestcontext"
)

type MockActorValidator struct {
	mock.Mock
}

func (m *MockActorValidator) ValidateToken(tokenString string) (requestcontext.Actor, error) {
	args := m.Called(tokenString)
	return args.Get(0).(requestcontext.Actor), args.Error(1)
}

type AuthMiddlewareSuite struct {
	suite.Suite
	validator  *MockActorValidator
	middleware func(http.Handler) http.Handler
	called     bool
	ctx        context.Context
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareSuite))
}

func (s *AuthMiddlewareSuite) SetupTest() {
	s.validator = new(MockActorValidator)
	s.middleware = RequireAuth(s.validator, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.called = false
	s.ctx = nil
}

func (s *AuthMiddlewareSuite) serve(header string) int {
	handler := s.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.called = true
		s.ctx = r.Context()
	}))
	req := httptest.NewRequest(http.MethodGet, "/consent", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w.Code
}

func (s *AuthMiddlewareSuite) TestRequireAuth() {
	s.Run("valid token sets actor", func() {
		s.SetupTest()
		actor := requestcontext.Actor{ID: "parent-1", Role: requestcontext.RoleGuardian, IdentityVerified: true}
		s.validator.On("ValidateToken", "good").Return(actor, nil).Once()

		s.Equal(http.StatusOK, s.serve("Bearer good"))
		s.True(s.called)
		got, ok := requestcontext.ActorFrom(s.ctx)
		s.True(ok)
		s.Equal(actor, got)
	})

	s.Run("missing header is rejected", func() {
		s.SetupTest()
		s.Equal(http.StatusUnauthorized, s.serve(""))
		s.False(s.called)
		s.validator.AssertNotCalled(s.T(), "ValidateToken", mock.Anything)
	})

	s.Run("non-bearer scheme is rejected", func() {
		s.SetupTest()
		s.Equal(http.StatusUnauthorized, s.serve("Basic Zm9vOmJhcg=="))
		s.False(s.called)
	})

	s.Run("invalid token is rejected", func() {
		s.SetupTest()
		s.validator.On("ValidateToken", "bad").Return(requestcontext.Actor{}, errors.New("signature")).Once()
		s.Equal(http.StatusUnauthorized, s.serve("Bearer bad"))
		s.False(s.called)
	})
}

func (s *AuthMiddlewareSuite) TestTokenValidator() {
	v := NewTokenValidator("test-signing-key", "portal", "compliance")
	now := time.Now()

	s.Run("round trip", func() {
		token, err := v.Sign(requestcontext.Actor{ID: "dpo-7", Role: requestcontext.RoleAdmin}, now, time.Hour)
		s.Require().NoError(err)

		actor, err := v.ValidateToken(token)
		s.Require().NoError(err)
		s.Equal(requestcontext.RoleAdmin, actor.Role)
		s.Equal("dpo-7", actor.ID.String())
	})

	s.Run("expired token", func() {
		token, err := v.Sign(requestcontext.Actor{ID: "dpo-7", Role: requestcontext.RoleAdmin}, now.Add(-2*time.Hour), time.Hour)
		s.Require().NoError(err)
		_, err = v.ValidateToken(token)
		s.Error(err)
	})

	s.Run("wrong audience", func() {
		other := NewTokenValidator("test-signing-key", "portal", "billing")
		token, err := other.Sign(requestcontext.Actor{ID: "dpo-7", Role: requestcontext.RoleAdmin}, now, time.Hour)
		s.Require().NoError(err)
		_, err = v.ValidateToken(token)
		s.Error(err)
	})

	s.Run("unknown role", func() {
		claims := PortalClaims{
			Role: "SUPERUSER",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "x",
				Issuer:    "portal",
				Audience:  jwt.ClaimStrings{"compliance"},
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-signing-key"))
		s.Require().NoError(err)
		_, err = v.ValidateToken(token)
		s.Error(err)
	})

	s.Run("wrong algorithm", func() {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, PortalClaims{Role: "ADMIN"})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		s.Require().NoError(err)
		_, err = v.ValidateToken(signed)
		s.Error(err)
	})
}
