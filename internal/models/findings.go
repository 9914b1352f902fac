package models

// Severity represents the impact level of a finding.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// SubjectType identifies the kind of directory object a finding refers to.
type SubjectType string

const (
	SubjectUser           SubjectType = "USER"
	SubjectServiceAccount SubjectType = "SERVICE_ACCOUNT"
	SubjectComputer       SubjectType = "COMPUTER"
	SubjectDomain         SubjectType = "DOMAIN"
	SubjectGroup          SubjectType = "GROUP"
	SubjectTrust          SubjectType = "TRUST"
	SubjectPolicy         SubjectType = "PASSWORD_POLICY"
	SubjectCertificate    SubjectType = "CERTIFICATE_OBJECT"
)

// Reason is one fired indicator inside a finding.
type Reason struct {
	RuleID string `json:"rule_id"`
	Text   string `json:"reason"`
}

// Finding is a single detected risk. It is the atomic output unit of the
// rule engine and is never mutated once the engine has returned it.
type Finding struct {
	ID          string      `json:"id"`
	RuleID      string      `json:"rule_id"`
	Subject     string      `json:"subject"`
	SubjectType SubjectType `json:"subject_type"`
	Domain      string      `json:"domain"`
	// Kind is an optional type label, e.g. "Managed Service Account".
	Kind           string    `json:"kind,omitempty"`
	Severity       Severity  `json:"severity"`
	Reasons        []Reason  `json:"reasons"`
	Explanation    string    `json:"explanation"`
	Recommendation string    `json:"recommendation"`
	DetectedAt     Timestamp `json:"detected_at"`
}

// ReasonTexts returns the human-readable reason strings in order.
func (f Finding) ReasonTexts() []string {
	out := make([]string, len(f.Reasons))
	for i, r := range f.Reasons {
		out[i] = r.Text
	}
	return out
}

// HasReason reports whether the finding carries a reason with the given text.
func (f Finding) HasReason(text string) bool {
	for _, r := range f.Reasons {
		if r.Text == text {
			return true
		}
	}
	return false
}

// FindingSummary aggregates counts across all findings.
type FindingSummary struct {
	TotalFindings    int `json:"total_findings"`
	CriticalFindings int `json:"critical_findings"`
	HighFindings     int `json:"high_findings"`
	MediumFindings   int `json:"medium_findings"`
	LowFindings      int `json:"low_findings"`
	InfoFindings     int `json:"info_findings"`
}
