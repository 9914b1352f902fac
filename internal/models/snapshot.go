package models

// RiskLevel is the banded overall risk of a snapshot.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low Risk"
	RiskMedium RiskLevel = "Medium Risk"
	RiskHigh   RiskLevel = "High Risk"
)

// OverallRisk is the normalised 0–100 risk score and its band.
type OverallRisk struct {
	Score int       `json:"Score"`
	Level RiskLevel `json:"Level"`
}

// Snapshot is the full collected and derived state of one audit run.
// It is built once by the engine and handed to exporters; nothing mutates it
// afterwards. Every collection is non-nil so the JSON schema stays stable.
type Snapshot struct {
	SnapshotID  string    `json:"SnapshotID"`
	GeneratedAt Timestamp `json:"GeneratedAt"`
	Domain      string    `json:"Domain"`

	Users           []IdentityRecord `json:"Users"`
	ServiceAccounts []IdentityRecord `json:"ServiceAccounts"`
	Computers       []HostRecord     `json:"Computers"`
	Groups          []GroupRecord    `json:"SecurityGroups"`
	PasswordPolicy  *PasswordPolicy  `json:"PasswordPolicy"`

	DomainControllers      []HostRecord           `json:"DomainControllers"`
	FineGrainedPolicies    []FineGrainedPolicy    `json:"FineGrainedPasswordPolicies"`
	Trusts                 []TrustRecord          `json:"TrustRelationships"`
	FunctionalLevels       *FunctionalLevels      `json:"FunctionalLevels"`
	Signing                *SigningPolicy         `json:"SigningPolicy"`
	CertificateTemplates   []CertificateTemplate  `json:"CertificateTemplates"`
	CertificateAuthorities []CertificateAuthority `json:"CertificateAuthorities"`

	HostPosture  []HostPostureRecord `json:"ComputerSecurityStatus"`
	NTLMEvents   []AuthEvent         `json:"NTLMEvents"`
	FailedLogons []AuthEvent         `json:"FailedLogons"`
	Findings     []Finding           `json:"Findings"`

	Summary         FindingSummary `json:"Summary"`
	Statistics      map[string]int `json:"Statistics"`
	RiskScores      map[string]int `json:"RiskScores"`
	OverallRisk     OverallRisk    `json:"OverallRisk"`
	Recommendations []string       `json:"Recommendations"`
}

// Normalize replaces nil collections with empty ones in place.
// Exporters call it on snapshots they did not build themselves (for example
// one decoded from disk) before serialising.
func (s *Snapshot) Normalize() {
	if s.Users == nil {
		s.Users = []IdentityRecord{}
	}
	if s.ServiceAccounts == nil {
		s.ServiceAccounts = []IdentityRecord{}
	}
	if s.Computers == nil {
		s.Computers = []HostRecord{}
	}
	if s.Groups == nil {
		s.Groups = []GroupRecord{}
	}
	if s.DomainControllers == nil {
		s.DomainControllers = []HostRecord{}
	}
	if s.FineGrainedPolicies == nil {
		s.FineGrainedPolicies = []FineGrainedPolicy{}
	}
	if s.Trusts == nil {
		s.Trusts = []TrustRecord{}
	}
	if s.CertificateTemplates == nil {
		s.CertificateTemplates = []CertificateTemplate{}
	}
	if s.CertificateAuthorities == nil {
		s.CertificateAuthorities = []CertificateAuthority{}
	}
	if s.HostPosture == nil {
		s.HostPosture = []HostPostureRecord{}
	}
	if s.NTLMEvents == nil {
		s.NTLMEvents = []AuthEvent{}
	}
	if s.FailedLogons == nil {
		s.FailedLogons = []AuthEvent{}
	}
	if s.Findings == nil {
		s.Findings = []Finding{}
	}
	if s.Statistics == nil {
		s.Statistics = map[string]int{}
	}
	if s.RiskScores == nil {
		s.RiskScores = map[string]int{}
	}
	if s.Recommendations == nil {
		s.Recommendations = []string{}
	}
}
