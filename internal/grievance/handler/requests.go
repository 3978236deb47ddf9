package handler

import (
	"strconv"
	"strings"

	"compliance/internal/grievance/models"
	id "compliance/pkg/domain"
	dErrors "compliance/pkg/domain-errors"
	"compliance/pkg/platform/validation"
)

// FileGrievanceRequest opens a grievance. StudentID is optional for
// complaints that are not about a specific student.
type FileGrievanceRequest struct {
	StudentID   string `json:"student_id,omitempty" validate:"omitempty,uuid"`
	Category    string `json:"category" validate:"required,oneof=CONSENT_VIOLATION DATA_BREACH UNAUTHORIZED_ACCESS DATA_INACCURACY RETENTION_VIOLATION OTHER"`
	Severity    string `json:"severity,omitempty" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
	Subject     string `json:"subject" validate:"required"`
	Description string `json:"description" validate:"required"`
}

func (r *FileGrievanceRequest) Normalize() {
	if r == nil {
		return
	}
	r.StudentID = strings.TrimSpace(r.StudentID)
	r.Category = strings.ToUpper(strings.TrimSpace(r.Category))
	r.Severity = strings.ToUpper(strings.TrimSpace(r.Severity))
	r.Subject = validation.NormalizeText(r.Subject)
	r.Description = validation.NormalizeText(r.Description)
}

func (r *FileGrievanceRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.Validate(r); err != nil {
		return err
	}
	if err := validation.CheckStringLength("subject", r.Subject, validation.MaxSubjectLength); err != nil {
		return err
	}
	return validation.CheckStringLength("description", r.Description, validation.MaxDescriptionLength)
}

func (r *FileGrievanceRequest) ToStudentID() (*id.StudentID, error) {
	if r.StudentID == "" {
		return nil, nil
	}
	studentID, err := id.ParseStudentID(r.StudentID)
	if err != nil {
		return nil, err
	}
	return &studentID, nil
}

// AddCommentRequest appends to the thread. AuthorRole defaults from the
// caller's role.
type AddCommentRequest struct {
	Comment    string `json:"comment" validate:"required"`
	AuthorRole string `json:"author_role,omitempty" validate:"omitempty,oneof=FILER ADMIN"`
}

func (r *AddCommentRequest) Normalize() {
	if r == nil {
		return
	}
	r.Comment = validation.NormalizeText(r.Comment)
	r.AuthorRole = strings.ToUpper(strings.TrimSpace(r.AuthorRole))
}

func (r *AddCommentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.Validate(r); err != nil {
		return err
	}
	return validation.CheckStringLength("comment", r.Comment, validation.MaxCommentLength)
}

type ResolveRequest struct {
	Notes string `json:"notes"`
}

func (r *ResolveRequest) Normalize() {
	if r != nil {
		r.Notes = validation.NormalizeText(r.Notes)
	}
}

func (r *ResolveRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.CheckStringLength("notes", r.Notes, validation.MaxDescriptionLength)
}

type ReopenRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (r *ReopenRequest) Normalize() {
	if r != nil {
		r.Reason = validation.NormalizeText(r.Reason)
	}
}

func (r *ReopenRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.Validate(r); err != nil {
		return err
	}
	return validation.CheckStringLength("reason", r.Reason, validation.MaxReasonLength)
}

// parseFilter reads list filters from the query string.
func parseFilter(get func(string) string) (models.Filter, error) {
	filter := models.Filter{
		Status:   models.Status(strings.ToUpper(get("status"))),
		Category: models.Category(strings.ToUpper(get("category"))),
		Severity: models.Severity(strings.ToUpper(get("severity"))),
		OpenOnly: get("open") == "true",
	}
	if raw := get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return models.Filter{}, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer")
		}
		filter.Limit = limit
	}
	return filter, nil
}
