package progression

import "math"

// Eligibility is the three-tier exam eligibility classification.
type Eligibility string

const (
	Eligible      Eligibility = "ELIGIBLE"
	NeedsApproval Eligibility = "NEEDS_APPROVAL"
	NotEligible   Eligibility = "NOT_ELIGIBLE"
)

// Classify places completed hours against thresholds. A grade without
// thresholds is always eligible.
func Classify(h Hours, completed float64) Eligibility {
	switch {
	case h.Unconstrained():
		return Eligible
	case completed >= h.Required:
		return Eligible
	case completed >= h.Minimum:
		return NeedsApproval
	default:
		return NotEligible
	}
}

// CheckEligibility classifies completed hours for grade using the band table.
func (t *RequirementTable) CheckEligibility(grade int, completed float64) Eligibility {
	return Classify(t.HoursForGrade(grade), completed)
}

// RemainingHours is max(0, required - completed).
func RemainingHours(h Hours, completed float64) float64 {
	return math.Max(0, h.Required-completed)
}
