package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"compliance/internal/grievance/models"
	"compliance/internal/grievance/service"
	"compliance/internal/sla"
	id "compliance/pkg/domain"
	"compliance/pkg/platform/httputil"
	"compliance/pkg/requestcontext"
)

// Service defines the grievance operations the HTTP layer depends on.
type Service interface {
	FileGrievance(ctx context.Context, in service.FileInput) (*models.Grievance, error)
	Acknowledge(ctx context.Context, grievanceID id.GrievanceID) (*models.Grievance, error)
	StartReview(ctx context.Context, grievanceID id.GrievanceID) (*models.Grievance, error)
	Resolve(ctx context.Context, grievanceID id.GrievanceID, notes string) (*models.Grievance, error)
	Close(ctx context.Context, grievanceID id.GrievanceID) (*models.Grievance, error)
	Reopen(ctx context.Context, grievanceID id.GrievanceID, reason string) (*models.Grievance, error)
	AddComment(ctx context.Context, grievanceID id.GrievanceID, authorID id.ActorID, role models.AuthorRole, body string) (*models.Comment, error)
	Get(ctx context.Context, grievanceID id.GrievanceID) (*models.Grievance, error)
	GetByPublicID(ctx context.Context, publicID string) (*models.Grievance, error)
	List(ctx context.Context, filter models.Filter) ([]*models.Grievance, error)
	GetTimelineStatus(g *models.Grievance, now time.Time) sla.Status
}

// Handler handles grievance endpoints.
type Handler struct {
	logger     *slog.Logger
	grievances Service
}

func New(grievances Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:     logger,
		grievances: grievances,
	}
}

// Register registers the routes available to any authenticated caller.
func (h *Handler) Register(r chi.Router) {
	r.Post("/grievances", h.HandleFile)
	r.Get("/grievances", h.HandleList)
	r.Get("/grievances/{id}", h.HandleGet)
	r.Post("/grievances/{id}/comments", h.HandleAddComment)
}

// RegisterAdmin registers the status-change routes. The caller mounts them
// behind the admin gate; the service checks the role again.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/grievances/{id}/acknowledge", h.HandleAcknowledge)
	r.Post("/grievances/{id}/review", h.HandleStartReview)
	r.Post("/grievances/{id}/resolve", h.HandleResolve)
	r.Post("/grievances/{id}/close", h.HandleClose)
	r.Post("/grievances/{id}/reopen", h.HandleReopen)
}

func (h *Handler) HandleFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[FileGrievanceRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}
	studentID, err := req.ToStudentID()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	g, err := h.grievances.FileGrievance(ctx, service.FileInput{
		StudentID:   studentID,
		Category:    models.Category(req.Category),
		Severity:    models.Severity(req.Severity),
		Subject:     req.Subject,
		Description: req.Description,
	})
	if err != nil {
		httputil.LogFailure(ctx, h.logger, "failed to file grievance", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, h.render(ctx, g))
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := parseFilter(r.URL.Query().Get)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	items, err := h.grievances.List(ctx, filter)
	if err != nil {
		httputil.LogFailure(ctx, h.logger, "failed to list grievances", err)
		httputil.WriteError(w, err)
		return
	}

	resp := &ListResponse{Grievances: make([]Grievance, 0, len(items)), Count: len(items)}
	for _, g := range items {
		resp.Grievances = append(resp.Grievances, h.render(ctx, g))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleGet accepts either the UUID or the GRV- public id.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ref := chi.URLParam(r, "id")

	var (
		g   *models.Grievance
		err error
	)
	if strings.HasPrefix(strings.ToUpper(ref), "GRV-") {
		g, err = h.grievances.GetByPublicID(ctx, strings.ToUpper(ref))
	} else {
		var grievanceID id.GrievanceID
		if grievanceID, err = id.ParseGrievanceID(ref); err == nil {
			g, err = h.grievances.Get(ctx, grievanceID)
		}
	}
	if err != nil {
		httputil.LogFailure(ctx, h.logger, "failed to get grievance", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.render(ctx, g))
}

func (h *Handler) HandleAddComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	grievanceID, err := id.ParseGrievanceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[AddCommentRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}
	actor, err := httputil.RequireActor(ctx, h.logger)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	role := models.AuthorRole(req.AuthorRole)
	if role == "" {
		role = models.RoleFiler
		if actor.IsAdmin() {
			role = models.RoleAdmin
		}
	}

	comment, err := h.grievances.AddComment(ctx, grievanceID, actor.ID, role, req.Comment)
	if err != nil {
		httputil.LogFailure(ctx, h.logger, "failed to add comment", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toComment(*comment))
}

func (h *Handler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "failed to acknowledge grievance", h.grievances.Acknowledge)
}

func (h *Handler) HandleStartReview(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "failed to start review", h.grievances.StartReview)
}

func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "failed to close grievance", h.grievances.Close)
}

func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[ResolveRequest](r.Context(), w, r, h.logger)
	if !ok {
		return
	}
	h.handleTransition(w, r, "failed to resolve grievance", func(ctx context.Context, gid id.GrievanceID) (*models.Grievance, error) {
		return h.grievances.Resolve(ctx, gid, req.Notes)
	})
}

func (h *Handler) HandleReopen(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.DecodeAndPrepare[ReopenRequest](r.Context(), w, r, h.logger)
	if !ok {
		return
	}
	h.handleTransition(w, r, "failed to reopen grievance", func(ctx context.Context, gid id.GrievanceID) (*models.Grievance, error) {
		return h.grievances.Reopen(ctx, gid, req.Reason)
	})
}

func (h *Handler) handleTransition(
	w http.ResponseWriter,
	r *http.Request,
	failure string,
	apply func(context.Context, id.GrievanceID) (*models.Grievance, error),
) {
	ctx := r.Context()

	grievanceID, err := id.ParseGrievanceID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	g, err := apply(ctx, grievanceID)
	if err != nil {
		httputil.LogFailure(ctx, h.logger, failure, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.render(ctx, g))
}

func (h *Handler) render(ctx context.Context, g *models.Grievance) Grievance {
	return toGrievance(g, h.grievances.GetTimelineStatus(g, requestcontext.Now(ctx)))
}
