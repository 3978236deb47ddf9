package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"compliance/internal/verification/metrics"
	"compliance/internal/verification/models"
	"compliance/internal/verification/service/mocks"
	"compliance/internal/verification/store"
	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/requestcontext"
	pkgtestutil "compliance/pkg/testutil"
)

const testPepper = "unit-test-pepper"

type ServiceSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	sender  *mocks.MockCodeSender
	store   *store.InMemoryStore
	metrics *metrics.Metrics
	service *Service
	now     time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.sender = mocks.NewMockCodeSender(s.ctrl)
	s.store = store.NewInMemoryStore()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.now = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	svc, err := New(s.store, s.sender, testPepper, slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithMetrics(s.metrics),
		WithCodeGenerator(func() (string, error) { return "482913", nil }),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *ServiceSuite) at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

// issue sends an SMS challenge and returns the handle and the delivered code.
func (s *ServiceSuite) issue(consentID id.ConsentID) (*models.Handle, string) {
	var delivered string
	s.sender.EXPECT().Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, d models.Delivery) error {
			delivered = d.Code
			return nil
		}).Times(1)

	handle, err := s.service.IssueChallenge(s.at(s.now), consentID, models.MethodSMSOTP, "+15550001111")
	s.Require().NoError(err)
	return handle, delivered
}

func (s *ServiceSuite) TestIssueChallenge() {
	s.Run("otp dispatches once and stores only a hash", func() {
		consentID := id.NewConsentID()
		handle, code := s.issue(consentID)

		s.Equal("482913", code)
		s.False(handle.Satisfied)
		s.Equal(s.now.Add(models.DefaultCodeTTL), handle.ExpiresAt)
		s.Equal("********1111", handle.DestinationHint)

		stored, err := s.store.FindByID(context.Background(), handle.ChallengeID)
		s.Require().NoError(err)
		s.Len(stored.CodeHash, 32)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.ChallengesIssued.WithLabelValues("SMS_OTP")))
	})

	s.Run("existing identity short-circuits without sending", func() {
		handle, err := s.service.IssueChallenge(s.at(s.now), id.NewConsentID(), models.MethodExistingIdentity, "")
		s.Require().NoError(err)
		s.True(handle.Satisfied)

		stored, err := s.store.FindByID(context.Background(), handle.ChallengeID)
		s.Require().NoError(err)
		s.Empty(stored.CodeHash)
	})

	s.Run("otp requires a destination", func() {
		_, err := s.service.IssueChallenge(s.at(s.now), id.NewConsentID(), models.MethodEmailOTP, "  ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown method is rejected", func() {
		_, err := s.service.IssueChallenge(s.at(s.now), id.NewConsentID(), models.Method("FAX"), "x")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("reissue retires the prior challenge", func() {
		consentID := id.NewConsentID()
		first, code := s.issue(consentID)
		_, _ = s.issue(consentID)

		res, err := s.service.Validate(s.at(s.now.Add(time.Minute)), first.ChallengeID, code)
		s.Require().NoError(err)
		s.False(res.OK)
		s.Equal(dErrors.ReasonAlreadyConsumed, res.Reason)
	})

	s.Run("delivery failure retires the challenge", func() {
		var challengeID id.ChallengeID
		s.sender.EXPECT().Send(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, d models.Delivery) error {
				challengeID = d.ChallengeID
				return errors.New("gateway down")
			})

		_, err := s.service.IssueChallenge(s.at(s.now), id.NewConsentID(), models.MethodEmailOTP, "parent@example.com")
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))

		stored, err := s.store.FindByID(context.Background(), challengeID)
		s.Require().NoError(err)
		s.True(stored.Consumed)
	})
}

func (s *ServiceSuite) TestIssueChallengeStoreFailure() {
	mockStore := mocks.NewMockStore(s.ctrl)
	svc, err := New(mockStore, s.sender, testPepper, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)

	mockStore.EXPECT().Issue(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))

	_, err = svc.IssueChallenge(s.at(s.now), id.NewConsentID(), models.MethodSMSOTP, "+15550001111")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestValidate() {
	s.Run("wrong code counts an attempt", func() {
		handle, _ := s.issue(id.NewConsentID())

		res, err := s.service.Validate(s.at(s.now.Add(time.Minute)), handle.ChallengeID, "000000")
		s.Require().NoError(err)
		s.False(res.OK)
		s.Equal(dErrors.ReasonInvalidCode, res.Reason)
		s.Equal(1, res.Attempts)
	})

	s.Run("correct code consumes the challenge", func() {
		handle, code := s.issue(id.NewConsentID())

		res, err := s.service.Validate(s.at(s.now.Add(time.Minute)), handle.ChallengeID, " "+code+" ")
		s.Require().NoError(err)
		s.True(res.OK)

		res, err = s.service.Validate(s.at(s.now.Add(2*time.Minute)), handle.ChallengeID, code)
		s.Require().NoError(err)
		s.Equal(dErrors.ReasonAlreadyConsumed, res.Reason)
	})

	s.Run("five attempts lock the challenge even for the right code", func() {
		handle, code := s.issue(id.NewConsentID())
		ctx := s.at(s.now.Add(time.Minute))
		for range models.DefaultMaxAttempts {
			res, err := s.service.Validate(ctx, handle.ChallengeID, "111111")
			s.Require().NoError(err)
			s.Equal(dErrors.ReasonInvalidCode, res.Reason)
		}

		res, err := s.service.Validate(ctx, handle.ChallengeID, code)
		s.Require().NoError(err)
		s.False(res.OK)
		s.Equal(dErrors.ReasonTooManyAttempts, res.Reason)
		s.Equal(models.DefaultMaxAttempts, res.Attempts)
	})

	s.Run("validation at exactly expires_at fails closed", func() {
		handle, code := s.issue(id.NewConsentID())

		res, err := s.service.Validate(s.at(handle.ExpiresAt), handle.ChallengeID, code)
		s.Require().NoError(err)
		s.Equal(dErrors.ReasonExpired, res.Reason)
		s.Equal(0, res.Attempts)
	})

	s.Run("one nanosecond before expiry succeeds", func() {
		handle, code := s.issue(id.NewConsentID())

		res, err := s.service.Validate(s.at(handle.ExpiresAt.Add(-time.Nanosecond)), handle.ChallengeID, code)
		s.Require().NoError(err)
		s.True(res.OK)
	})

	s.Run("satisfied challenge passes without a code", func() {
		handle, err := s.service.IssueChallenge(s.at(s.now), id.NewConsentID(), models.MethodExistingIdentity, "")
		s.Require().NoError(err)

		res, err := s.service.Validate(s.at(s.now.Add(time.Second)), handle.ChallengeID, "")
		s.Require().NoError(err)
		s.True(res.OK)
	})

	s.Run("unknown challenge is not found", func() {
		_, err := s.service.Validate(s.at(s.now), id.NewChallengeID(), "123456")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("different pepper rejects the code", func() {
		other, err := New(s.store, s.sender, "another-pepper", slog.New(slog.NewTextHandler(io.Discard, nil)))
		s.Require().NoError(err)
		handle, code := s.issue(id.NewConsentID())

		res, err := other.Validate(s.at(s.now.Add(time.Minute)), handle.ChallengeID, code)
		s.Require().NoError(err)
		s.Equal(dErrors.ReasonInvalidCode, res.Reason)
	})
}

func (s *ServiceSuite) TestValidateConcurrentCorrectCode() {
	handle, code := s.issue(id.NewConsentID())
	ctx := s.at(s.now.Add(time.Minute))

	var mu sync.Mutex
	reasons := map[dErrors.Reason]int{}
	res := pkgtestutil.RunConcurrent(20, func(int) error {
		r, err := s.service.Validate(ctx, handle.ChallengeID, code)
		if err != nil {
			return err
		}
		mu.Lock()
		reasons[r.Reason]++
		mu.Unlock()
		return r.Err()
	})

	s.Equal(int32(1), res.Successes)
	s.Equal(int32(19), res.Rejections)
	s.Equal(19, reasons[dErrors.ReasonAlreadyConsumed])
}

func (s *ServiceSuite) TestValidateConcurrentWrongCodesNeverExceedCap() {
	handle, _ := s.issue(id.NewConsentID())
	ctx := s.at(s.now.Add(time.Minute))

	var mu sync.Mutex
	reasons := map[dErrors.Reason]int{}
	pkgtestutil.RunConcurrent(12, func(int) error {
		r, err := s.service.Validate(ctx, handle.ChallengeID, "999999")
		if err != nil {
			return err
		}
		mu.Lock()
		reasons[r.Reason]++
		mu.Unlock()
		return r.Err()
	})

	s.Equal(models.DefaultMaxAttempts, reasons[dErrors.ReasonInvalidCode])
	s.Equal(12-models.DefaultMaxAttempts, reasons[dErrors.ReasonTooManyAttempts])

	stored, err := s.store.FindByID(context.Background(), handle.ChallengeID)
	s.Require().NoError(err)
	s.Equal(models.DefaultMaxAttempts, stored.Attempts)
}

func TestNewRejectsEmptyPepper(t *testing.T) {
	_, err := New(store.NewInMemoryStore(), nil, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
}

func TestGenerateCode(t *testing.T) {
	seen := map[string]bool{}
	for range 50 {
		code, err := generateCode()
		require.NoError(t, err)
		assert.Regexp(t, `^\d{6}$`, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestCodeHasherLongPepper(t *testing.T) {
	h, err := newCodeHasher(string(make([]byte, 200)))
	require.NoError(t, err)
	cid := id.NewChallengeID()
	assert.Equal(t, h.Sum(cid, "123456"), h.Sum(cid, "123456"))
	assert.NotEqual(t, h.Sum(cid, "123456"), h.Sum(id.NewChallengeID(), "123456"))
}
