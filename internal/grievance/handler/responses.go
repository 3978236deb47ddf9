package handler

import (
	"time"

	"compliance/internal/grievance/models"
	"compliance/internal/sla"
)

type Comment struct {
	ID         string            `json:"id"`
	AuthorID   string            `json:"author_id"`
	AuthorRole models.AuthorRole `json:"author_role"`
	Body       string            `json:"body"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Grievance is a grievance in HTTP responses. Timeline is evaluated at
// response time.
type Grievance struct {
	ID              string          `json:"id"`
	PublicID        string          `json:"public_id"`
	StudentID       string          `json:"student_id,omitempty"`
	FiledBy         string          `json:"filed_by"`
	Category        models.Category `json:"category"`
	Severity        models.Severity `json:"severity"`
	Status          models.Status   `json:"status"`
	Subject         string          `json:"subject"`
	Description     string          `json:"description"`
	ResolutionNotes string          `json:"resolution_notes,omitempty"`
	FiledAt         time.Time       `json:"filed_at"`
	AcknowledgedAt  *time.Time      `json:"acknowledged_at,omitempty"`
	ReviewStartedAt *time.Time      `json:"review_started_at,omitempty"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
	ClosedAt        *time.Time      `json:"closed_at,omitempty"`
	Timeline        sla.Status      `json:"timeline"`
	Comments        []Comment       `json:"comments,omitempty"`
}

type ListResponse struct {
	Grievances []Grievance `json:"grievances"`
	Count      int         `json:"count"`
}

func toGrievance(g *models.Grievance, timeline sla.Status) Grievance {
	out := Grievance{
		ID:              g.ID.String(),
		PublicID:        g.PublicID,
		FiledBy:         string(g.FiledBy),
		Category:        g.Category,
		Severity:        g.Severity,
		Status:          g.Status,
		Subject:         g.Subject,
		Description:     g.Description,
		ResolutionNotes: g.ResolutionNotes,
		FiledAt:         g.FiledAt,
		AcknowledgedAt:  g.AcknowledgedAt,
		ReviewStartedAt: g.ReviewStartedAt,
		ResolvedAt:      g.ResolvedAt,
		ClosedAt:        g.ClosedAt,
		Timeline:        timeline,
	}
	if g.StudentID != nil {
		out.StudentID = g.StudentID.String()
	}
	for _, c := range g.Comments {
		out.Comments = append(out.Comments, toComment(c))
	}
	return out
}

func toComment(c models.Comment) Comment {
	return Comment{
		ID:         c.ID.String(),
		AuthorID:   string(c.AuthorID),
		AuthorRole: c.AuthorRole,
		Body:       c.Body,
		CreatedAt:  c.CreatedAt,
	}
}
