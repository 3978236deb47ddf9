package handler

import (
	"bytes"
	"context"
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

	"compliance/internal/grievance/handler/mocks"
	"compliance/internal/grievance/models"
	"compliance/internal/grievance/service"
	"compliance/internal/sla"
	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/requestcontext"
	"compliance/pkg/testutil"
)

type GrievanceHandlerSuite struct {
	suite.Suite
}

func TestGrievanceHandlerSuite(t *testing.T) {
	suite.Run(t, new(GrievanceHandlerSuite))
}

// withActor stands in for the auth middleware.
func withActor(actor requestcontext.Actor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithActor(r.Context(), actor)
			ctx = requestcontext.WithTime(ctx, testutil.FixedTime.Add(2*time.Hour))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

var (
	guardian = requestcontext.Actor{ID: testutil.TestIDs.Guardian1, Role: requestcontext.RoleGuardian}
	admin    = requestcontext.Actor{ID: testutil.TestIDs.Admin1, Role: requestcontext.RoleAdmin}
)

func newTestRouter(t *testing.T, actor requestcontext.Actor) (http.Handler, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	mockService := mocks.NewMockService(ctrl)
	h := New(mockService, slog.New(slog.NewTextHandler(io.Discard, nil)))

	r := chi.NewRouter()
	r.Use(withActor(actor))
	h.Register(r)
	r.Route("/admin", h.RegisterAdmin)
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

func assertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedCode string) {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, expectedCode, resp["error"])
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Grievance {
	t.Helper()
	var out Grievance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (s *GrievanceHandlerSuite) TestHandleFile() {
	s.T().Run("201 - filed with timeline", func(t *testing.T) {
		router, svc := newTestRouter(t, guardian)
		g := testutil.NewGrievanceBuilder().WithSeverity(models.SeverityCritical).Build()

		svc.EXPECT().
			FileGrievance(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, in service.FileInput) (*models.Grievance, error) {
				assert.Equal(t, models.CategoryDataBreach, in.Category)
				assert.Equal(t, models.SeverityCritical, in.Severity)
				assert.Equal(t, "Leaked grades", in.Subject)
				require.NotNil(t, in.StudentID)
				assert.Equal(t, testutil.TestIDs.Student1, *in.StudentID)
				return g, nil
			})
		svc.EXPECT().
			GetTimelineStatus(g, testutil.FixedTime.Add(2*time.Hour)).
			Return(sla.Status{Kind: sla.KindOnTrack, Hours: 2})

		w := serve(router, http.MethodPost, "/grievances", map[string]any{
			"student_id":  testutil.TestIDs.Student1.String(),
			"category":    "data_breach",
			"severity":    "critical",
			"subject":     "  Leaked grades ",
			"description": "Grades were posted publicly.",
		})

		assert.Equal(t, http.StatusCreated, w.Code)
		out := decode(t, w)
		assert.Equal(t, g.PublicID, out.PublicID)
		assert.Equal(t, models.StatusSubmitted, out.Status)
		assert.Equal(t, sla.KindOnTrack, out.Timeline.Kind)
	})

	s.T().Run("400 - unknown category", func(t *testing.T) {
		router, _ := newTestRouter(t, guardian)
		w := serve(router, http.MethodPost, "/grievances", map[string]any{
			"category":    "SPAM",
			"subject":     "x",
			"description": "y",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assertErrorResponse(t, w, "validation_error")
	})

	s.T().Run("400 - missing subject", func(t *testing.T) {
		router, _ := newTestRouter(t, guardian)
		w := serve(router, http.MethodPost, "/grievances", map[string]any{
			"category":    "OTHER",
			"subject":     "   ",
			"description": "y",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func (s *GrievanceHandlerSuite) TestHandleGet() {
	g := testutil.NewGrievanceBuilder().Build()

	s.T().Run("by uuid", func(t *testing.T) {
		router, svc := newTestRouter(t, guardian)
		svc.EXPECT().Get(gomock.Any(), g.ID).Return(g, nil)
		svc.EXPECT().GetTimelineStatus(g, gomock.Any()).Return(sla.Status{Kind: sla.KindOnTrack})

		w := serve(router, http.MethodGet, "/grievances/"+g.ID.String(), nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, g.ID.String(), decode(t, w).ID)
	})

	s.T().Run("by public id", func(t *testing.T) {
		router, svc := newTestRouter(t, guardian)
		svc.EXPECT().GetByPublicID(gomock.Any(), g.PublicID).Return(g, nil)
		svc.EXPECT().GetTimelineStatus(g, gomock.Any()).Return(sla.Status{Kind: sla.KindOnTrack})

		w := serve(router, http.MethodGet, "/grievances/"+g.PublicID, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	s.T().Run("404 - not visible", func(t *testing.T) {
		router, svc := newTestRouter(t, guardian)
		svc.EXPECT().Get(gomock.Any(), g.ID).Return(nil, dErrors.New(dErrors.CodeNotFound, "grievance not found"))

		w := serve(router, http.MethodGet, "/grievances/"+g.ID.String(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assertErrorResponse(t, w, "not_found")
	})

	s.T().Run("400 - malformed id", func(t *testing.T) {
		router, _ := newTestRouter(t, guardian)
		w := serve(router, http.MethodGet, "/grievances/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func (s *GrievanceHandlerSuite) TestHandleList() {
	s.T().Run("passes filters", func(t *testing.T) {
		router, svc := newTestRouter(t, admin)
		g := testutil.NewGrievanceBuilder().Build()
		svc.EXPECT().
			List(gomock.Any(), models.Filter{Status: models.StatusSubmitted, Severity: models.SeverityHigh, OpenOnly: true, Limit: 10}).
			Return([]*models.Grievance{g}, nil)
		svc.EXPECT().GetTimelineStatus(g, gomock.Any()).Return(sla.Status{Kind: sla.KindOnTrack})

		w := serve(router, http.MethodGet, "/grievances?status=submitted&severity=HIGH&open=true&limit=10", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		var resp ListResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
	})

	s.T().Run("400 - bad limit", func(t *testing.T) {
		router, _ := newTestRouter(t, admin)
		w := serve(router, http.MethodGet, "/grievances?limit=-1", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func (s *GrievanceHandlerSuite) TestHandleAddComment() {
	gid := id.NewGrievanceID()

	s.T().Run("guardian defaults to filer", func(t *testing.T) {
		router, svc := newTestRouter(t, guardian)
		svc.EXPECT().
			AddComment(gomock.Any(), gid, guardian.ID, models.RoleFiler, "Any update?").
			Return(&models.Comment{ID: id.NewCommentID(), AuthorID: guardian.ID, AuthorRole: models.RoleFiler, Body: "Any update?"}, nil)

		w := serve(router, http.MethodPost, "/grievances/"+gid.String()+"/comments", map[string]any{"comment": "Any update?"})
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	s.T().Run("admin defaults to admin", func(t *testing.T) {
		router, svc := newTestRouter(t, admin)
		svc.EXPECT().
			AddComment(gomock.Any(), gid, admin.ID, models.RoleAdmin, "On it").
			Return(&models.Comment{ID: id.NewCommentID(), AuthorID: admin.ID, AuthorRole: models.RoleAdmin, Body: "On it"}, nil)

		w := serve(router, http.MethodPost, "/grievances/"+gid.String()+"/comments", map[string]any{"comment": "On it"})
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	s.T().Run("409 - closed to filer", func(t *testing.T) {
		router, svc := newTestRouter(t, guardian)
		svc.EXPECT().
			AddComment(gomock.Any(), gid, guardian.ID, models.RoleFiler, "Thanks").
			Return(nil, dErrors.New(dErrors.CodeGrievanceClosed, "grievance is RESOLVED"))

		w := serve(router, http.MethodPost, "/grievances/"+gid.String()+"/comments", map[string]any{"comment": "Thanks"})
		assert.Equal(t, http.StatusConflict, w.Code)
		assertErrorResponse(t, w, "grievance_closed")
	})

	s.T().Run("400 - system role rejected", func(t *testing.T) {
		router, _ := newTestRouter(t, admin)
		w := serve(router, http.MethodPost, "/grievances/"+gid.String()+"/comments", map[string]any{
			"comment":     "x",
			"author_role": "SYSTEM",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func (s *GrievanceHandlerSuite) TestAdminTransitions() {
	g := testutil.NewGrievanceBuilder().Acknowledged(testutil.FixedTime.Add(time.Hour)).Build()
	base := "/admin/grievances/" + g.ID.String()

	s.T().Run("acknowledge", func(t *testing.T) {
		router, svc := newTestRouter(t, admin)
		svc.EXPECT().Acknowledge(gomock.Any(), g.ID).Return(g, nil)
		svc.EXPECT().GetTimelineStatus(g, gomock.Any()).Return(sla.Status{Kind: sla.KindOnTrack, Hours: 2})

		w := serve(router, http.MethodPost, base+"/acknowledge", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, models.StatusAcknowledged, decode(t, w).Status)
	})

	s.T().Run("resolve passes notes", func(t *testing.T) {
		router, svc := newTestRouter(t, admin)
		svc.EXPECT().Resolve(gomock.Any(), g.ID, "Fixed.").Return(g, nil)
		svc.EXPECT().GetTimelineStatus(g, gomock.Any()).Return(sla.Status{Kind: sla.KindResolvedIn, Hours: 2})

		w := serve(router, http.MethodPost, base+"/resolve", map[string]any{"notes": " Fixed. "})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	s.T().Run("reopen requires a reason", func(t *testing.T) {
		router, _ := newTestRouter(t, admin)
		w := serve(router, http.MethodPost, base+"/reopen", map[string]any{"reason": ""})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	s.T().Run("error mapping", func(t *testing.T) {
		cases := []struct {
			name   string
			err    error
			status int
			code   string
		}{
			{"forbidden", dErrors.New(dErrors.CodeForbidden, "admin role required"), http.StatusForbidden, "forbidden"},
			{"illegal", dErrors.New(dErrors.CodeInvalidTransition, "cannot move"), http.StatusConflict, "invalid_transition"},
			{"missing", dErrors.New(dErrors.CodeNotFound, "grievance not found"), http.StatusNotFound, "not_found"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				router, svc := newTestRouter(t, admin)
				svc.EXPECT().Close(gomock.Any(), g.ID).Return(nil, tc.err)

				w := serve(router, http.MethodPost, base+"/close", nil)
				assert.Equal(t, tc.status, w.Code)
				assertErrorResponse(t, w, tc.code)
			})
		}
	})
}
