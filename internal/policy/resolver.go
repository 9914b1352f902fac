package policy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

// ApplyPolicy filters and rewrites the findings one domain's pack produced.
//
// A disabled domain yields no findings. A rule with enabled: false is
// dropped. A rule severity override replaces the finding's severity and
// appends a reason recording the original. The domain's min_severity is
// applied after overrides. A nil cfg returns findings unchanged.
func ApplyPolicy(findings []models.Finding, domain string, cfg *PolicyConfig) []models.Finding {
	if cfg == nil {
		return findings
	}

	var minRank int
	if d, ok := cfg.Domains[domain]; ok {
		if !d.Enabled {
			return []models.Finding{}
		}
		minRank = SeverityRank(normalizeSeverity(d.MinSeverity))
	}

	result := make([]models.Finding, 0, len(findings))
	for _, f := range findings {
		rc, ok := cfg.Rules[f.RuleID]
		if ok && rc.Enabled != nil && !*rc.Enabled {
			continue
		}
		if ok && rc.Severity != "" {
			override := normalizeSeverity(rc.Severity)
			if override != f.Severity {
				f.Reasons = append(slices.Clip(f.Reasons), models.Reason{
					RuleID: f.RuleID,
					Text:   fmt.Sprintf("Severity set to %s by policy (rule default %s)", override, f.Severity),
				})
				f.Severity = override
			}
		}
		if minRank > 0 && SeverityRank(f.Severity) < minRank {
			continue
		}
		result = append(result, f)
	}
	return result
}

func normalizeSeverity(s string) models.Severity {
	return models.Severity(strings.ToUpper(strings.TrimSpace(s)))
}
