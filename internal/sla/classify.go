package sla

import (
	"fmt"
	"time"

	"compliance/internal/grievance/models"
)

// Windows measured from filed_at.
const (
	AcknowledgeWindow        = 24 * time.Hour
	CriticalResolutionWindow = 72 * time.Hour
)

// Kind is the timeline classification of a grievance.
type Kind string

const (
	KindOnTrack           Kind = "ON_TRACK"
	KindOverdueAck        Kind = "OVERDUE_ACK"
	KindOverdueResolution Kind = "OVERDUE_RESOLUTION"
	KindResolvedIn        Kind = "RESOLVED_IN"
)

// IsBreach reports whether the kind warrants escalation.
func (k Kind) IsBreach() bool {
	return k == KindOverdueAck || k == KindOverdueResolution
}

// Status is a Kind annotated with whole elapsed hours: time to resolution
// for RESOLVED_IN, time since filing otherwise.
type Status struct {
	Kind  Kind `json:"kind"`
	Hours int  `json:"hours"`
}

func (s Status) String() string {
	return fmt.Sprintf("%s(%dh)", s.Kind, s.Hours)
}

// Classify is the single SLA rule shared by reads and the sweeper.
func Classify(g *models.Grievance, now time.Time) Status {
	if g.ResolvedAt != nil {
		return Status{Kind: KindResolvedIn, Hours: hours(g.ResolvedAt.Sub(g.FiledAt))}
	}
	elapsed := now.Sub(g.FiledAt)
	switch {
	case g.AcknowledgedAt == nil && elapsed > AcknowledgeWindow:
		return Status{Kind: KindOverdueAck, Hours: hours(elapsed)}
	case g.Severity == models.SeverityCritical && elapsed > CriticalResolutionWindow:
		return Status{Kind: KindOverdueResolution, Hours: hours(elapsed)}
	default:
		return Status{Kind: KindOnTrack, Hours: hours(elapsed)}
	}
}

func hours(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d / time.Hour)
}
