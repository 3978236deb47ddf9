package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"compliance/internal/consent/models"
	"compliance/internal/consent/service"
	vmodels "compliance/internal/verification/models"
	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/platform/httputil"
	"compliance/pkg/requestcontext"
)

// Service defines the consent operations the HTTP layer depends on.
type Service interface {
	RequestConsent(ctx context.Context, studentID id.StudentID, purposeCode string, method vmodels.Method, destination string) (*service.RequestResult, error)
	GrantConsent(ctx context.Context, consentID id.ConsentID, code string, agreed bool) (*models.Record, error)
	WithdrawConsent(ctx context.Context, consentID id.ConsentID, reason string) (*service.WithdrawResult, error)
	GetConsentStatus(ctx context.Context, studentID id.StudentID, purposeCode string) (models.View, error)
	ListPurposes(ctx context.Context) []models.Purpose
	ListConsents(ctx context.Context, studentID id.StudentID) ([]*models.Record, error)
}

// Handler handles consent endpoints.
type Handler struct {
	logger  *slog.Logger
	consent Service
}

// New creates a new consent Handler.
func New(consent Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		consent: consent,
	}
}

// Register registers the consent routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/consent/purposes", h.HandleListPurposes)
	r.Post("/consent/requests", h.HandleRequestConsent)
	r.Post("/consent/grant", h.HandleGrantConsent)
	r.Post("/consent/{id}/withdraw", h.HandleWithdrawConsent)
	r.Get("/consent", h.HandleListConsents)
	r.Get("/consent/status", h.HandleGetStatus)
}

func (h *Handler) HandleListPurposes(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, &PurposesResponse{Purposes: h.consent.ListPurposes(r.Context())})
}

func (h *Handler) HandleRequestConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RequestConsentRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}
	studentID, err := req.ToStudentID()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.consent.RequestConsent(ctx, studentID, req.PurposeCode, vmodels.Method(req.VerificationMethod), req.Destination)
	if err != nil {
		httputil.LogFailure(ctx, h.logger, "failed to request consent", err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "consent request accepted",
		"consent_id", res.Record.ID.String(),
		"request_id", requestID,
	)
	httputil.WriteJSON(w, http.StatusCreated, toRequestResponse(res))
}

func (h *Handler) HandleGrantConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, ok := httputil.DecodeAndPrepare[GrantConsentRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}
	consentID, err := id.ParseConsentID(req.ConsentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.consent.GrantConsent(ctx, consentID, req.OTP, req.Agreed)
	if err != nil {
		httputil.LogFailure(ctx, h.logger, "failed to grant consent", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &GrantConsentResponse{
		ConsentID:   record.ID.String(),
		Status:      record.Status,
		ConsentDate: record.ConsentDate,
	})
}

func (h *Handler) HandleWithdrawConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	consentID, err := id.ParseConsentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[WithdrawConsentRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	res, err := h.consent.WithdrawConsent(ctx, consentID, req.Reason)
	if err != nil {
		httputil.LogFailure(ctx, h.logger, "failed to withdraw consent", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &WithdrawConsentResponse{
		ConsentID:        res.Record.ID.String(),
		Status:           res.Record.Status,
		RetentionVerdict: res.Verdict,
	})
}

func (h *Handler) HandleListConsents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	studentID, err := id.ParseStudentID(r.URL.Query().Get("student_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	records, err := h.consent.ListConsents(ctx, studentID)
	if err != nil {
		httputil.LogFailure(ctx, h.logger, "failed to list consents", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(records))
}

func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	studentID, err := id.ParseStudentID(q.Get("student_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	purposeCode := q.Get("purpose_code")
	if purposeCode == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "purpose_code is required"))
		return
	}

	view, err := h.consent.GetConsentStatus(ctx, studentID, purposeCode)
	if err != nil {
		httputil.LogFailure(ctx, h.logger, "failed to get consent status", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &StatusResponse{
		StudentID:   studentID.String(),
		PurposeCode: purposeCode,
		Status:      view,
	})
}
