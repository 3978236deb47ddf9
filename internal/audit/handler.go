package audit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/platform/httputil"
)

// Handler exposes the audit trail to administrators.
type Handler struct {
	publisher *Publisher
	logger    *slog.Logger
}

func NewHandler(publisher *Publisher, logger *slog.Logger) *Handler {
	return &Handler{publisher: publisher, logger: logger}
}

// Register mounts the routes; the caller applies the admin gate.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit", h.HandleList)
}

type eventResponse struct {
	ID           string `json:"id"`
	OccurredAt   string `json:"occurred_at"`
	Action       string `json:"action"`
	ActorID      string `json:"actor_id,omitempty"`
	ActorRole    string `json:"actor_role,omitempty"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	StudentID    string `json:"student_id,omitempty"`
	Purpose      string `json:"purpose,omitempty"`
	Decision     string `json:"decision,omitempty"`
	Reason       string `json:"reason,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
	ClientDevice string `json:"client_device,omitempty"`
}

type listResponse struct {
	Events []eventResponse `json:"events"`
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := Filter{
		ResourceType: ResourceType(q.Get("resource_type")),
		ResourceID:   q.Get("resource_id"),
		StudentID:    q.Get("student_id"),
		Action:       Action(q.Get("action")),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}

	events, err := h.publisher.List(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events", "error", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events"))
		return
	}

	resp := listResponse{Events: make([]eventResponse, 0, len(events))}
	for _, e := range events {
		resp.Events = append(resp.Events, eventResponse{
			ID:           e.ID.String(),
			OccurredAt:   e.OccurredAt.UTC().Format(timeFormat),
			Action:       string(e.Action),
			ActorID:      e.ActorID,
			ActorRole:    e.ActorRole,
			ResourceType: string(e.ResourceType),
			ResourceID:   e.ResourceID,
			StudentID:    e.StudentID,
			Purpose:      e.Purpose,
			Decision:     e.Decision,
			Reason:       e.Reason,
			RequestID:    e.RequestID,
			ClientDevice: e.ClientDevice,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"
