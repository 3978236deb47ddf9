// Package retention decides what happens to a student's data once the
// consent that allowed its processing ends.
package retention

import (
	"fmt"

	"compliance/internal/consent/models"
)

// DataCategory is the kind of data held under a purpose.
type DataCategory string

const (
	DataHealth     DataCategory = "HEALTH"
	DataBehavioral DataCategory = "BEHAVIORAL"
	DataFinancial  DataCategory = "FINANCIAL"
	DataAcademic   DataCategory = "ACADEMIC"
	DataGeneral    DataCategory = "GENERAL"
)

type Action string

const (
	ActionDeleteNow   Action = "DELETE_NOW"
	ActionDeleteAfter Action = "DELETE_AFTER"
	ActionRetain      Action = "RETAIN"
)

const (
	FinancialRetentionDays = 2555
	AcademicRetentionDays  = 1825
)

// Verdict is informational: it never blocks a withdrawal.
type Verdict struct {
	Action      Action `json:"action"`
	Days        int    `json:"days,omitempty"`
	LegalReason string `json:"legal_reason,omitempty"`
}

func (v Verdict) String() string {
	switch v.Action {
	case ActionDeleteAfter:
		return fmt.Sprintf("DELETE_AFTER(%d)", v.Days)
	case ActionRetain:
		return fmt.Sprintf("RETAIN(%d, %s)", v.Days, v.LegalReason)
	default:
		return string(v.Action)
	}
}

// DataCategoryFor maps a purpose category to the data it implies.
func DataCategoryFor(p models.Purpose) DataCategory {
	switch p.Category {
	case models.CategoryHealth:
		return DataHealth
	case models.CategoryFinancial:
		return DataFinancial
	case models.CategoryEducational:
		return DataAcademic
	default:
		return DataGeneral
	}
}

// Evaluate applies the rules in order: sensitive data is deleted at once,
// financial and academic data are held for their statutory periods, and
// anything else follows the purpose's own retention period.
// An empty dataCategory is derived from the purpose.
func Evaluate(p models.Purpose, dataCategory DataCategory) Verdict {
	if dataCategory == "" {
		dataCategory = DataCategoryFor(p)
	}
	switch dataCategory {
	case DataHealth, DataBehavioral:
		return Verdict{Action: ActionDeleteNow}
	case DataFinancial:
		return Verdict{Action: ActionRetain, Days: FinancialRetentionDays, LegalReason: "tax law"}
	case DataAcademic:
		return Verdict{Action: ActionRetain, Days: AcademicRetentionDays, LegalReason: "education regulation"}
	}
	if p.RetentionPeriodDays <= 0 {
		return Verdict{Action: ActionDeleteNow}
	}
	return Verdict{Action: ActionDeleteAfter, Days: p.RetentionPeriodDays}
}
