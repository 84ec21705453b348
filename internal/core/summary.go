package core

// RiskLevel defines the severity band of a total risk score.
type RiskLevel int

const (
	LevelLow RiskLevel = iota
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l RiskLevel) String() string {
	switch l {
	case LevelLow:
		return "Low"
	case LevelMedium:
		return "Medium"
	case LevelHigh:
		return "High"
	case LevelCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

func (l RiskLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// LevelFor maps a percentage to its level: Low <=20, Medium <=50, High <=70, Critical above.
func LevelFor(percent int) RiskLevel {
	switch {
	case percent <= 20:
		return LevelLow
	case percent <= 50:
		return LevelMedium
	case percent <= 70:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// Recommendation returns the fixed advice text for a level.
func Recommendation(l RiskLevel) string {
	switch l {
	case LevelLow:
		return "No significant findings. No further action required."
	case LevelMedium:
		return "Suspicious indicators found. Manual review of the listed evidence is recommended."
	case LevelHigh:
		return "Strong indicators of cheat software use. Review the evidence before clearing this host."
	case LevelCritical:
		return "Multiple independent sources indicate cheat software use. Escalate for investigation."
	default:
		return "Unknown risk level."
	}
}

// RiskSummary is derived from a snapshot of events and never stored on its own.
type RiskSummary struct {
	TotalPercent            int              `json:"total_percent"`
	Level                   RiskLevel        `json:"level"`
	PerCategoryCount        map[Category]int `json:"per_category_count"`
	PerCategoryContribution map[Category]int `json:"per_category_contribution"`
	Recommendation          string           `json:"recommendation"`
}
