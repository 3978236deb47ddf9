package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"compliance/internal/consent/handler/mocks"
	"compliance/internal/consent/models"
	"compliance/internal/consent/service"
	"compliance/internal/retention"
	vmodels "compliance/internal/verification/models"
	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/testutil"
)

type ConsentHandlerSuite struct {
	suite.Suite
}

func TestConsentHandlerSuite(t *testing.T) {
	suite.Run(t, new(ConsentHandlerSuite))
}

func newTestRouter(t *testing.T) (http.Handler, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockService := mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	New(mockService, logger).Register(r)
	return r, mockService
}

func serve(router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, target, reader))
	return w
}

// assertErrorResponse unmarshals the response body and asserts the error code.
func assertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedCode string) {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, expectedCode, resp["error"])
}

func (s *ConsentHandlerSuite) TestHandleRequestConsent() {
	studentID := testutil.TestIDs.Student1

	s.T().Run("201 - challenge sent", func(t *testing.T) {
		router, svc := newTestRouter(t)
		record := testutil.NewConsentBuilder().WithChallenge(id.NewChallengeID()).Build()
		expires := testutil.FixedTime.Add(5 * time.Minute)

		svc.EXPECT().
			RequestConsent(gomock.Any(), studentID, "ANALYTICS", vmodels.MethodEmailOTP, "parent@example.com").
			Return(&service.RequestResult{Record: record, ChallengeExpiresAt: &expires, DestinationHint: "p*****@example.com"}, nil)

		w := serve(router, http.MethodPost, "/consent/requests", map[string]any{
			"student_id":          studentID.String(),
			"purpose_code":        " analytics ",
			"verification_method": "email_otp",
			"destination":         "parent@example.com",
		})

		require.Equal(t, http.StatusCreated, w.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, record.ID.String(), resp["consent_id"])
		assert.Equal(t, "CHALLENGE_SENT", resp["status"])
		assert.NotContains(t, w.Body.String(), "code_hash")
	})

	s.T().Run("400 - missing destination for OTP", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := serve(router, http.MethodPost, "/consent/requests", map[string]any{
			"student_id":          studentID.String(),
			"purpose_code":        "ANALYTICS",
			"verification_method": "SMS_OTP",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assertErrorResponse(t, w, "validation_error")
	})

	s.T().Run("400 - unknown method", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := serve(router, http.MethodPost, "/consent/requests", map[string]any{
			"student_id":          studentID.String(),
			"purpose_code":        "ANALYTICS",
			"verification_method": "CARRIER_PIGEON",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	s.T().Run("400 - malformed body", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/consent/requests", bytes.NewBufferString("{")))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assertErrorResponse(t, w, "bad_request")
	})

	s.T().Run("404 - unknown purpose", func(t *testing.T) {
		router, svc := newTestRouter(t)
		svc.EXPECT().RequestConsent(gomock.Any(), gomock.Any(), "MARKETING", gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUnknownPurpose, "unknown consent purpose MARKETING"))

		w := serve(router, http.MethodPost, "/consent/requests", map[string]any{
			"student_id":          studentID.String(),
			"purpose_code":        "MARKETING",
			"verification_method": "EXISTING_IDENTITY",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assertErrorResponse(t, w, "unknown_purpose")
	})
}

func (s *ConsentHandlerSuite) TestHandleGrantConsent() {
	consentID := id.NewConsentID()

	s.T().Run("200 - granted", func(t *testing.T) {
		router, svc := newTestRouter(t)
		record := testutil.NewConsentBuilder().WithID(consentID).Granted(testutil.FixedTime).Build()
		svc.EXPECT().GrantConsent(gomock.Any(), consentID, "482913", true).Return(record, nil)

		w := serve(router, http.MethodPost, "/consent/grant", map[string]any{
			"consent_id": consentID.String(),
			"otp":        "482913",
			"agreed":     true,
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"GRANTED"`)
	})

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid code", dErrors.Verification(dErrors.ReasonInvalidCode, "verification code does not match"), http.StatusUnprocessableEntity, "invalid_code"},
		{"expired", dErrors.Verification(dErrors.ReasonExpired, "verification code has expired"), http.StatusUnprocessableEntity, "expired"},
		{"too many attempts", dErrors.Verification(dErrors.ReasonTooManyAttempts, "too many attempts"), http.StatusUnprocessableEntity, "too_many_attempts"},
		{"not agreed", dErrors.New(dErrors.CodeNotAgreed, "consent terms must be agreed to"), http.StatusUnprocessableEntity, "not_agreed"},
		{"invalid transition", dErrors.New(dErrors.CodeInvalidTransition, "consent cannot be granted from WITHDRAWN"), http.StatusConflict, "invalid_transition"},
		{"not found", dErrors.New(dErrors.CodeNotFound, "consent not found"), http.StatusNotFound, "not_found"},
	}
	for _, tc := range cases {
		s.T().Run(tc.name, func(t *testing.T) {
			router, svc := newTestRouter(t)
			svc.EXPECT().GrantConsent(gomock.Any(), consentID, "000000", true).Return(nil, tc.err)

			w := serve(router, http.MethodPost, "/consent/grant", map[string]any{
				"consent_id": consentID.String(),
				"otp":        "000000",
				"agreed":     true,
			})
			assert.Equal(t, tc.status, w.Code)
			assertErrorResponse(t, w, tc.code)
		})
	}

	s.T().Run("400 - non-numeric otp", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := serve(router, http.MethodPost, "/consent/grant", map[string]any{
			"consent_id": consentID.String(),
			"otp":        "12ab56",
			"agreed":     true,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func (s *ConsentHandlerSuite) TestHandleWithdrawConsent() {
	consentID := id.NewConsentID()

	s.T().Run("200 - returns retention verdict", func(t *testing.T) {
		router, svc := newTestRouter(t)
		record := testutil.NewConsentBuilder().WithID(consentID).Withdrawn("moving schools", testutil.FixedTime).Build()
		svc.EXPECT().WithdrawConsent(gomock.Any(), consentID, "moving schools").
			Return(&service.WithdrawResult{Record: record, Verdict: retention.Verdict{Action: retention.ActionDeleteAfter, Days: 180}}, nil)

		w := serve(router, http.MethodPost, "/consent/"+consentID.String()+"/withdraw", map[string]any{"reason": "  moving schools "})
		require.Equal(t, http.StatusOK, w.Code)

		var resp WithdrawConsentResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, models.StatusWithdrawn, resp.Status)
		assert.Equal(t, retention.ActionDeleteAfter, resp.RetentionVerdict.Action)
		assert.Equal(t, 180, resp.RetentionVerdict.Days)
	})

	s.T().Run("409 - mandatory processing", func(t *testing.T) {
		router, svc := newTestRouter(t)
		svc.EXPECT().WithdrawConsent(gomock.Any(), consentID, "").
			Return(nil, dErrors.New(dErrors.CodeMandatoryProcessing, "consent for ACADEMIC_RECORDS is mandatory and cannot be withdrawn"))

		w := serve(router, http.MethodPost, "/consent/"+consentID.String()+"/withdraw", map[string]any{})
		assert.Equal(t, http.StatusConflict, w.Code)
		assertErrorResponse(t, w, "mandatory_processing")
	})

	s.T().Run("400 - bad id", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := serve(router, http.MethodPost, "/consent/not-a-uuid/withdraw", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func (s *ConsentHandlerSuite) TestReadEndpoints() {
	studentID := testutil.TestIDs.Student1

	s.T().Run("purposes", func(t *testing.T) {
		router, svc := newTestRouter(t)
		svc.EXPECT().ListPurposes(gomock.Any()).Return(models.DefaultCatalog().List())

		w := serve(router, http.MethodGet, "/consent/purposes", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "ACADEMIC_RECORDS")
	})

	s.T().Run("list", func(t *testing.T) {
		router, svc := newTestRouter(t)
		records := []*models.Record{
			testutil.NewConsentBuilder().Withdrawn("", testutil.FixedTime).Build(),
			testutil.NewConsentBuilder().WithChallenge(id.NewChallengeID()).Build(),
		}
		svc.EXPECT().ListConsents(gomock.Any(), studentID).Return(records, nil)

		w := serve(router, http.MethodGet, "/consent?student_id="+studentID.String(), nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp ListResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Consents, 2)
	})

	s.T().Run("status", func(t *testing.T) {
		router, svc := newTestRouter(t)
		svc.EXPECT().GetConsentStatus(gomock.Any(), studentID, "ANALYTICS").Return(models.ViewPending, nil)

		w := serve(router, http.MethodGet, "/consent/status?student_id="+studentID.String()+"&purpose_code=ANALYTICS", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"PENDING"`)
	})

	s.T().Run("status requires purpose", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w := serve(router, http.MethodGet, "/consent/status?student_id="+studentID.String(), nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
