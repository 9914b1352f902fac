package policy

// Audit domain names. Every rule belongs to exactly one of them.
const (
	DomainIdentity       = "identity"
	DomainHosts          = "hosts"
	DomainInfrastructure = "infrastructure"
)

// PolicyConfig is the parsed form of an adp.yaml policy file.
type PolicyConfig struct {
	Version     int                          `yaml:"version"`
	Domains     map[string]DomainConfig      `yaml:"domains"`
	Rules       map[string]RuleConfig        `yaml:"rules"`
	Enforcement map[string]EnforcementConfig `yaml:"enforcement"`
}

type DomainConfig struct {
	Enabled bool `yaml:"enabled"`
	// MinSeverity drops findings ranked below it. Empty keeps everything.
	MinSeverity string `yaml:"min_severity,omitempty"`
}

type RuleConfig struct {
	Enabled  *bool              `yaml:"enabled,omitempty"`
	Severity string             `yaml:"severity,omitempty"`
	Params   map[string]float64 `yaml:"params,omitempty"`
}

type EnforcementConfig struct {
	FailOnSeverity string `yaml:"fail_on_severity,omitempty"`
}
