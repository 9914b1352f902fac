package models

import (
	"strings"
	"time"
)

// trustAttributes bits on trustedDomain objects.
const (
	TrustAttrNonTransitive     = 0x1
	TrustAttrQuarantinedDomain = 0x4
	TrustAttrForestTransitive  = 0x8
	TrustAttrCrossOrganization = 0x10
	TrustAttrWithinForest      = 0x20
	TrustAttrTreatAsExternal   = 0x40
)

// Trust directions as reported by Get-ADTrust.
const (
	TrustDisabled      = "Disabled"
	TrustInbound       = "Inbound"
	TrustOutbound      = "Outbound"
	TrustBidirectional = "BiDirectional"
)

// TrustDirectionName maps the trustDirection attribute to its name.
func TrustDirectionName(v int) string {
	switch v {
	case 1:
		return TrustInbound
	case 2:
		return TrustOutbound
	case 3:
		return TrustBidirectional
	default:
		return TrustDisabled
	}
}

// TrustTypeName maps the trustType attribute to its name.
func TrustTypeName(v int) string {
	switch v {
	case 1:
		return "Downlevel"
	case 2:
		return "Uplevel"
	case 3:
		return "MIT"
	case 4:
		return "DCE"
	default:
		return "Unknown"
	}
}

// TrustRecord is one trust relationship of the audited domain.
type TrustRecord struct {
	Name       string `json:"Name"`
	Direction  string `json:"Direction"`
	TrustType  string `json:"TrustType"`
	Attributes int    `json:"TrustAttributes"`

	IntraForest      bool `json:"IntraForest"`
	ForestTransitive bool `json:"ForestTransitive"`
	// SIDFilteringEnabled is true when foreign SIDs in the trusted side's
	// tickets are discarded: quarantine on external trusts, and forest
	// trusts that do not treat the partner as external.
	SIDFilteringEnabled     bool `json:"SIDFilteringEnabled"`
	SelectiveAuthentication bool `json:"SelectiveAuthentication"`
}

// NewTrustRecord decodes the trustAttributes mask into the flag fields.
func NewTrustRecord(name, direction, trustType string, attrs int) TrustRecord {
	t := TrustRecord{
		Name:                    name,
		Direction:               direction,
		TrustType:               trustType,
		Attributes:              attrs,
		IntraForest:             attrs&TrustAttrWithinForest != 0,
		ForestTransitive:        attrs&TrustAttrForestTransitive != 0,
		SelectiveAuthentication: attrs&TrustAttrCrossOrganization != 0,
	}
	switch {
	case t.IntraForest:
		t.SIDFilteringEnabled = false
	case t.ForestTransitive:
		t.SIDFilteringEnabled = attrs&TrustAttrTreatAsExternal == 0
	default:
		t.SIDFilteringEnabled = attrs&TrustAttrQuarantinedDomain != 0
	}
	return t
}

// Functional levels (msDS-Behavior-Version).
const (
	LevelWindows2000        = 0
	LevelWindows2003Interim = 1
	LevelWindows2003        = 2
	LevelWindows2008        = 3
	LevelWindows2008R2      = 4
	LevelWindows2012        = 5
	LevelWindows2012R2      = 6
	LevelWindows2016        = 7
	LevelWindows2025        = 10
)

var levelNames = map[int]string{
	LevelWindows2000:        "Windows2000",
	LevelWindows2003Interim: "Windows2003Interim",
	LevelWindows2003:        "Windows2003",
	LevelWindows2008:        "Windows2008",
	LevelWindows2008R2:      "Windows2008R2",
	LevelWindows2012:        "Windows2012",
	LevelWindows2012R2:      "Windows2012R2",
	LevelWindows2016:        "Windows2016",
	LevelWindows2025:        "Windows2025",
}

// FunctionalLevelName returns the mode name for level, e.g. "Windows2008R2".
func FunctionalLevelName(level int) string {
	if n, ok := levelNames[level]; ok {
		return n
	}
	return "Unknown"
}

// ParseFunctionalMode reads a DomainMode or ForestMode name such as
// "Windows2008R2Domain" or "Windows2016Forest".
func ParseFunctionalMode(s string) (int, bool) {
	s = strings.TrimSuffix(strings.TrimSuffix(strings.TrimSpace(s), "Domain"), "Forest")
	for level, name := range levelNames {
		if strings.EqualFold(s, name) {
			return level, true
		}
	}
	return 0, false
}

// FunctionalLevels holds the domain and forest functional levels. Nil
// fields were not reported.
type FunctionalLevels struct {
	Domain *int `json:"DomainFunctionalLevel"`
	Forest *int `json:"ForestFunctionalLevel"`
}

// SigningPolicy is the LDAP and SMB signing configuration of a domain
// controller. Nil fields were not read.
type SigningPolicy struct {
	// Source is the controller the values were read from, or "export".
	Source                   string `json:"Source"`
	LDAPSigningRequired      *bool  `json:"LDAPSigningRequired"`
	SMBClientSigningRequired *bool  `json:"SMBClientSigningRequired"`
	SMBServerSigningRequired *bool  `json:"SMBServerSigningRequired"`
}

// FineGrainedPolicy is a password settings object.
type FineGrainedPolicy struct {
	Name                        string   `json:"Name"`
	Precedence                  int      `json:"Precedence"`
	MinPasswordLength           int      `json:"MinPasswordLength"`
	PasswordHistoryCount        int      `json:"PasswordHistoryCount"`
	ComplexityEnabled           bool     `json:"ComplexityEnabled"`
	ReversibleEncryptionEnabled bool     `json:"ReversibleEncryptionEnabled"`
	LockoutThreshold            int      `json:"LockoutThreshold"`
	AppliesTo                   []string `json:"AppliesTo"`
}

// msPKI-Enrollment-Flag bits.
const (
	EnrollmentPendAllRequests = 0x2
	EnrollmentAutoEnrollment  = 0x20
)

// CertificateTemplate is a published certificate template.
type CertificateTemplate struct {
	Name                    string `json:"Name"`
	DisplayName             string `json:"DisplayName"`
	AutoEnrollment          bool   `json:"AutoEnrollment"`
	RequiresManagerApproval bool   `json:"RequiresManagerApproval"`
}

// CertificateAuthority is an enterprise CA registered in the directory.
type CertificateAuthority struct {
	Name     string    `json:"Name"`
	Subject  string    `json:"Subject"`
	NotAfter Timestamp `json:"NotAfter"`
	// ExpiredFlag carries an exporter's own expiry verdict when NotAfter
	// was not exported.
	ExpiredFlag bool `json:"IsExpired"`
}

// Expired reports whether the CA certificate is past its validity at now.
func (c CertificateAuthority) Expired(now time.Time) bool {
	if c.NotAfter.Known() {
		return c.NotAfter.Before(now)
	}
	return c.ExpiredFlag
}
