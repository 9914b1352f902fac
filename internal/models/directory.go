package models

import "strings"

// IdentityKind distinguishes ordinary accounts from directory-managed
// service accounts.
type IdentityKind string

const (
	IdentityUser                  IdentityKind = "user"
	IdentityManagedServiceAccount IdentityKind = "managed_service_account"
)

// IdentityRecord is a user or service account as read from the directory.
// Optional attributes that the source did not provide stay at their "unknown"
// representation (nil pointer, zero Timestamp) rather than a fabricated value.
type IdentityRecord struct {
	SamAccountName    string       `json:"SamAccountName"`
	DisplayName       string       `json:"DisplayName"`
	Description       string       `json:"Description"`
	DistinguishedName string       `json:"DistinguishedName"`
	Kind              IdentityKind `json:"Kind"`
	Enabled           bool         `json:"Enabled"`

	// SupportedEncryptionTypes is the raw msDS-SupportedEncryptionTypes mask;
	// nil when the attribute is absent.
	SupportedEncryptionTypes *int `json:"SupportedEncryptionTypes"`
	// EncryptionTypes is always DecodeEncryptionTypes(SupportedEncryptionTypes).
	EncryptionTypes []string `json:"EncryptionTypes"`
	UseDESKeyOnly   bool     `json:"UseDESKeyOnly"`

	TrustedForDelegation       bool     `json:"TrustedForDelegation"`
	TrustedToAuthForDelegation bool     `json:"TrustedToAuthForDelegation"`
	SPNs                       []string `json:"SPNs"`

	PasswordLastSet       Timestamp `json:"PasswordLastSet"`
	PasswordNeverExpires  bool      `json:"PasswordNeverExpires"`
	PasswordNotRequired   bool      `json:"PasswordNotRequired"`
	PasswordExpired       bool      `json:"PasswordExpired"`
	DoesNotRequirePreAuth bool      `json:"DoesNotRequirePreAuth"`

	// MemberOf holds only the privileged groups the account belongs to.
	MemberOf      []string  `json:"MemberOf"`
	ProtectedUser bool      `json:"ProtectedUser"`
	AdminCount    bool      `json:"AdminCount"`
	LastLogon     Timestamp `json:"LastLogonDate"`
}

// HasDelegation reports whether either delegation flag is set.
func (r IdentityRecord) HasDelegation() bool {
	return r.TrustedForDelegation || r.TrustedToAuthForDelegation
}

// InGroup reports whether the account is a member of group (case-insensitive).
func (r IdentityRecord) InGroup(group string) bool {
	for _, g := range r.MemberOf {
		if strings.EqualFold(g, group) {
			return true
		}
	}
	return false
}

// HostRecord is a computer account as read from the directory.
type HostRecord struct {
	SamAccountName             string    `json:"SamAccountName"`
	DNSHostName                string    `json:"DNSHostName"`
	IPv4Address                string    `json:"IPv4Address"`
	Enabled                    bool      `json:"Enabled"`
	OperatingSystem            string    `json:"OperatingSystem"`
	OperatingSystemVersion     string    `json:"OperatingSystemVersion"`
	TrustedForDelegation       bool      `json:"TrustedForDelegation"`
	TrustedToAuthForDelegation bool      `json:"TrustedToAuthForDelegation"`
	ConstrainedDelegation      []string  `json:"ConstrainedDelegation"`
	SPNs                       []string  `json:"SPNs"`
	IsDomainController         bool      `json:"IsDomainController"`
	SupportedEncryptionTypes   *int      `json:"SupportedEncryptionTypes"`
	EncryptionTypes            []string  `json:"EncryptionTypes"`
	LastLogon                  Timestamp `json:"LastLogonDate"`
}

// Target returns the network identifier used to reach the host: the DNS
// name, else the IPv4 address, else the account name with its trailing
// machine-account marker ("$") stripped.
func (h HostRecord) Target() string {
	if h.DNSHostName != "" {
		return h.DNSHostName
	}
	if h.IPv4Address != "" {
		return h.IPv4Address
	}
	return strings.TrimSuffix(h.SamAccountName, "$")
}

// ComputerName returns the account name without the machine-account marker.
func (h HostRecord) ComputerName() string {
	return strings.TrimSuffix(h.SamAccountName, "$")
}

// HasDelegation reports whether any delegation is configured on the host.
func (h HostRecord) HasDelegation() bool {
	return h.TrustedForDelegation || h.TrustedToAuthForDelegation || len(h.ConstrainedDelegation) > 0
}

// GroupRecord summarises a security group.
type GroupRecord struct {
	Name              string `json:"Name"`
	Description       string `json:"Description"`
	DistinguishedName string `json:"DistinguishedName"`
	// MemberCount is nil when the source did not report membership.
	MemberCount *int `json:"MemberCount"`
	Privileged  bool `json:"Privileged"`

	// ParentGroups are the groups this group is itself a member of, by
	// distinguished name or name as the source reported them.
	ParentGroups []string `json:"MemberOf"`
	// NestingDepth is the longest chain of security groups nested inside
	// this one. A group with no group members has depth 0.
	NestingDepth int `json:"NestingDepth"`
}

// Empty reports whether the group is known to have no members.
func (g GroupRecord) Empty() bool {
	return g.MemberCount != nil && *g.MemberCount == 0
}

// PasswordPolicy is the domain default password policy. Pointer fields are
// nil when the source did not report them.
type PasswordPolicy struct {
	MinPasswordLength           int  `json:"MinPasswordLength"`
	PasswordHistoryCount        int  `json:"PasswordHistoryCount"`
	MaxPasswordAgeDays          *int `json:"MaxPasswordAge"`
	MinPasswordAgeDays          int  `json:"MinPasswordAge"`
	ComplexityEnabled           bool `json:"ComplexityEnabled"`
	ReversibleEncryptionEnabled bool `json:"ReversibleEncryptionEnabled"`
	LockoutThreshold            int  `json:"LockoutThreshold"`
}

// AuthEvent is one authentication record from a domain controller's
// Security log (4624 success or 4625 failure).
type AuthEvent struct {
	TimeCreated           Timestamp `json:"TimeCreated"`
	LogonType             int       `json:"LogonType"`
	AuthenticationPackage string    `json:"AuthenticationPackageName"`
	AccountName           string    `json:"AccountName"`
	AccountDomain         string    `json:"AccountDomain"`
	IPAddress             string    `json:"IPAddress"`
	WorkstationName       string    `json:"WorkstationName"`
}

// DirectoryData is everything the directory source returns for one run.
type DirectoryData struct {
	Domain          string           `json:"Domain"`
	Users           []IdentityRecord `json:"Users"`
	ServiceAccounts []IdentityRecord `json:"ServiceAccounts"`
	Computers       []HostRecord     `json:"Computers"`
	Groups          []GroupRecord    `json:"SecurityGroups"`
	PasswordPolicy  *PasswordPolicy  `json:"PasswordPolicy"`

	FineGrainedPolicies    []FineGrainedPolicy    `json:"FineGrainedPasswordPolicies"`
	Trusts                 []TrustRecord          `json:"TrustRelationships"`
	FunctionalLevels       *FunctionalLevels      `json:"FunctionalLevels"`
	Signing                *SigningPolicy         `json:"SigningPolicy"`
	CertificateTemplates   []CertificateTemplate  `json:"CertificateTemplates"`
	CertificateAuthorities []CertificateAuthority `json:"CertificateAuthorities"`
}

// RecordCount returns the number of identity and host records.
func (d *DirectoryData) RecordCount() int {
	if d == nil {
		return 0
	}
	return len(d.Users) + len(d.ServiceAccounts) + len(d.Computers)
}

// EnabledComputers returns the enabled host records in input order.
func (d *DirectoryData) EnabledComputers() []HostRecord {
	if d == nil {
		return nil
	}
	var out []HostRecord
	for _, c := range d.Computers {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out
}
