package handler

import (
	"time"

	"compliance/internal/consent/models"
	"compliance/internal/consent/service"
	"compliance/internal/retention"
)

// PurposesResponse lists the purpose catalog.
type PurposesResponse struct {
	Purposes []models.Purpose `json:"purposes"`
}

// RequestConsentResponse never carries the one-time code.
type RequestConsentResponse struct {
	ConsentID          string        `json:"consent_id"`
	Status             models.Status `json:"status"`
	ChallengeExpiresAt *time.Time    `json:"challenge_expires_at,omitempty"`
	DestinationHint    string        `json:"destination_hint,omitempty"`
}

type GrantConsentResponse struct {
	ConsentID   string        `json:"consent_id"`
	Status      models.Status `json:"status"`
	ConsentDate *time.Time    `json:"consent_date,omitempty"`
}

type WithdrawConsentResponse struct {
	ConsentID        string            `json:"consent_id"`
	Status           models.Status     `json:"status"`
	RetentionVerdict retention.Verdict `json:"retention_verdict"`
}

// Consent is a consent record in HTTP responses.
type Consent struct {
	ID                 string        `json:"id"`
	StudentID          string        `json:"student_id"`
	PurposeCode        string        `json:"purpose_code"`
	VerificationMethod string        `json:"verification_method"`
	Status             models.Status `json:"status"`
	ConsentGiven       bool          `json:"consent_given"`
	ConsentDate        *time.Time    `json:"consent_date,omitempty"`
	WithdrawnAt        *time.Time    `json:"withdrawn_at,omitempty"`
	WithdrawalReason   string        `json:"withdrawal_reason,omitempty"`
	Supersedes         string        `json:"supersedes,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

type ListResponse struct {
	Consents []Consent `json:"consents"`
}

type StatusResponse struct {
	StudentID   string      `json:"student_id"`
	PurposeCode string      `json:"purpose_code"`
	Status      models.View `json:"status"`
}

func toRequestResponse(res *service.RequestResult) *RequestConsentResponse {
	return &RequestConsentResponse{
		ConsentID:          res.Record.ID.String(),
		Status:             res.Record.Status,
		ChallengeExpiresAt: res.ChallengeExpiresAt,
		DestinationHint:    res.DestinationHint,
	}
}

func toConsent(r *models.Record) Consent {
	c := Consent{
		ID:                 r.ID.String(),
		StudentID:          r.StudentID.String(),
		PurposeCode:        r.PurposeCode,
		VerificationMethod: string(r.VerificationMethod),
		Status:             r.Status,
		ConsentGiven:       r.ConsentGiven,
		ConsentDate:        r.ConsentDate,
		WithdrawnAt:        r.WithdrawnAt,
		WithdrawalReason:   r.WithdrawalReason,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if r.Supersedes != nil {
		c.Supersedes = r.Supersedes.String()
	}
	return c
}

func toListResponse(records []*models.Record) *ListResponse {
	out := &ListResponse{Consents: make([]Consent, 0, len(records))}
	for _, r := range records {
		out.Consents = append(out.Consents, toConsent(r))
	}
	return out
}
