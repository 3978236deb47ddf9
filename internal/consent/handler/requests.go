package handler

import (
	"strings"

	vmodels "compliance/internal/verification/models"
	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/platform/validation"
)

// RequestConsentRequest starts consent collection for one purpose.
type RequestConsentRequest struct {
	StudentID          string `json:"student_id" validate:"required,uuid"`
	PurposeCode        string `json:"purpose_code" validate:"required,max=64"`
	VerificationMethod string `json:"verification_method" validate:"required,oneof=EMAIL_OTP SMS_OTP EXISTING_IDENTITY"`
	Destination        string `json:"destination,omitempty" validate:"max=255"`
}

// Normalize trims inputs and canonicalises enum casing.
func (r *RequestConsentRequest) Normalize() {
	if r == nil {
		return
	}
	r.StudentID = strings.TrimSpace(r.StudentID)
	r.PurposeCode = strings.ToUpper(strings.TrimSpace(r.PurposeCode))
	r.VerificationMethod = strings.ToUpper(strings.TrimSpace(r.VerificationMethod))
	r.Destination = strings.TrimSpace(r.Destination)
}

// Validate checks that the request is well-formed.
func (r *RequestConsentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.Validate(r); err != nil {
		return err
	}
	method := vmodels.Method(r.VerificationMethod)
	if method.RequiresCode() && r.Destination == "" {
		return dErrors.New(dErrors.CodeValidation, "destination is required for "+r.VerificationMethod)
	}
	return nil
}

func (r *RequestConsentRequest) ToStudentID() (id.StudentID, error) {
	return id.ParseStudentID(r.StudentID)
}

// GrantConsentRequest answers a challenge. OTP is empty for EXISTING_IDENTITY.
type GrantConsentRequest struct {
	ConsentID string `json:"consent_id" validate:"required,uuid"`
	OTP       string `json:"otp,omitempty" validate:"omitempty,len=6,numeric"`
	Agreed    bool   `json:"agreed"`
}

func (r *GrantConsentRequest) Normalize() {
	if r == nil {
		return
	}
	r.ConsentID = strings.TrimSpace(r.ConsentID)
	r.OTP = strings.TrimSpace(r.OTP)
}

func (r *GrantConsentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.Validate(r)
}

// WithdrawConsentRequest carries the optional free-text reason.
type WithdrawConsentRequest struct {
	Reason string `json:"reason"`
}

func (r *WithdrawConsentRequest) Normalize() {
	if r == nil {
		return
	}
	r.Reason = validation.NormalizeText(r.Reason)
}

func (r *WithdrawConsentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.CheckStringLength("reason", r.Reason, validation.MaxReasonLength)
}
