package model

import "time"

type Category string

const (
	CategoryProduct   Category = "product"
	CategoryService   Category = "service"
	CategoryMarketing Category = "marketing"
)

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank orders priorities with critical first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

type Effort string

const (
	EffortLow      Effort = "low"
	EffortMedium   Effort = "medium"
	EffortHigh     Effort = "high"
	EffortVeryHigh Effort = "very_high"
)

// Priority bands over the 0..100 impact score.
const (
	CriticalThreshold = 85
	HighThreshold     = 60
	MediumThreshold   = 35
)

// PriorityFor bands an impact score.
func PriorityFor(impact int) Priority {
	switch {
	case impact >= CriticalThreshold:
		return PriorityCritical
	case impact >= HighThreshold:
		return PriorityHigh
	case impact >= MediumThreshold:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ActionItem is an immutable recommendation produced once per successful run.
type ActionItem struct {
	ID              string             `json:"id"`
	JobID           string             `json:"job_id"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Category        Category           `json:"category"`
	Priority        Priority           `json:"priority"`
	ImpactScore     *int               `json:"impact_score,omitempty"`
	Effort          *Effort            `json:"effort_level,omitempty"`
	Timeline        *string            `json:"timeline,omitempty"`
	Recommendations []string           `json:"recommendations"`
	RelatedPostIDs  []string           `json:"related_post_ids"`
	Metrics         map[string]float64 `json:"metrics"`
	CreatedAt       time.Time          `json:"created_at"`
}

func (a *ActionItem) Impact() int {
	if a.ImpactScore == nil {
		return 0
	}
	return *a.ImpactScore
}

const (
	// MaxEvidence bounds the supporting posts shown with an item.
	MaxEvidence = 5
	// MaxRelatedPosts bounds the related-posts lookup.
	MaxRelatedPosts = 10
)

// Evidence returns the highest ranked supporting post ids.
func (a *ActionItem) Evidence() []string {
	if len(a.RelatedPostIDs) <= MaxEvidence {
		return a.RelatedPostIDs
	}
	return a.RelatedPostIDs[:MaxEvidence]
}
