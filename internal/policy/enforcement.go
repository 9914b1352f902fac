package policy

import "github.com/pankaj-dahiya-devops/adposture/internal/models"

// failThreshold returns the enforced rank for domain, or 0 when the policy
// does not enforce it or names an unknown severity.
func failThreshold(domain string, cfg *PolicyConfig) int {
	if cfg == nil {
		return 0
	}
	enf, ok := cfg.Enforcement[domain]
	if !ok {
		return 0
	}
	return SeverityRank(normalizeSeverity(enf.FailOnSeverity))
}

// breaches reports whether f belongs to domain and reaches threshold.
// Findings without a domain stamp count for every domain.
func breaches(f models.Finding, domain string, threshold int) bool {
	if f.Domain != "" && f.Domain != domain {
		return false
	}
	return SeverityRank(f.Severity) >= threshold
}

// ShouldFail reports whether a finding of domain reaches the domain's
// fail_on_severity. It is false for a nil policy, an unenforced domain or an
// unknown severity value.
func ShouldFail(domain string, findings []models.Finding, cfg *PolicyConfig) bool {
	threshold := failThreshold(domain, cfg)
	if threshold == 0 {
		return false
	}
	for _, f := range findings {
		if breaches(f, domain, threshold) {
			return true
		}
	}
	return false
}

// ShouldFailAny reports whether ShouldFail holds for any enforced domain.
func ShouldFailAny(findings []models.Finding, cfg *PolicyConfig) bool {
	return len(Violations(findings, cfg)) > 0
}

// Violations returns the findings that trip enforcement, in input order.
// Each finding appears once even when several domains enforce it.
func Violations(findings []models.Finding, cfg *PolicyConfig) []models.Finding {
	if cfg == nil {
		return nil
	}
	var out []models.Finding
	for _, f := range findings {
		for _, domain := range Domains {
			if t := failThreshold(domain, cfg); t > 0 && breaches(f, domain, t) {
				out = append(out, f)
				break
			}
		}
	}
	return out
}
