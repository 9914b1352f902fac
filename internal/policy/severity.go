package policy

import "github.com/pankaj-dahiya-devops/adposture/internal/models"

// severityRank orders severities for min_severity and fail_on_severity checks.
var severityRank = map[models.Severity]int{
	models.SeverityCritical: 5,
	models.SeverityHigh:     4,
	models.SeverityMedium:   3,
	models.SeverityLow:      2,
	models.SeverityInfo:     1,
}

// SeverityRank returns the numeric rank of s, or 0 for an unknown value.
func SeverityRank(s models.Severity) int {
	return severityRank[s]
}
