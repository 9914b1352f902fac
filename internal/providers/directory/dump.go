package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/psjson"
)

// DumpLoader reads a JSON directory export written by the ActiveDirectory
// PowerShell module (Get-ADUser, Get-ADComputer and friends piped through
// ConvertTo-Json).
type DumpLoader struct {
	path   string
	domain string
	groups groupFilter
	log    zerolog.Logger
}

var _ Collector = (*DumpLoader)(nil)

// NewDumpLoader returns a loader for path. domain is used when the export
// does not name its domain.
func NewDumpLoader(path, domain string, privilegedGroups []string, log zerolog.Logger) *DumpLoader {
	return &DumpLoader{path: path, domain: domain, groups: newGroupFilter(privilegedGroups), log: log}
}

type dumpFile struct {
	Domain          string                    `json:"Domain"`
	Users           psjson.List[dumpIdentity] `json:"Users"`
	ServiceAccounts psjson.List[dumpIdentity] `json:"ServiceAccounts"`
	Computers       psjson.List[dumpHost]     `json:"Computers"`
	Groups          psjson.List[dumpGroup]    `json:"SecurityGroups"`
	PasswordPolicy  *dumpPasswordPolicy       `json:"PasswordPolicy"`

	EmptyGroups            psjson.List[dumpGroup]            `json:"EmptyGroups"`
	LargeGroups            psjson.List[dumpGroup]            `json:"LargeGroups"`
	NestedGroups           psjson.List[dumpNestedGroup]      `json:"NestedGroups"`
	FineGrainedPolicies    psjson.List[dumpPasswordSettings] `json:"FineGrainedPasswordPolicies"`
	Trusts                 psjson.List[dumpTrust]            `json:"TrustRelationships"`
	DomainInfo             *dumpMode                         `json:"DomainInfo"`
	ForestInfo             *dumpMode                         `json:"ForestInfo"`
	LDAPPolicy             *dumpLDAPPolicy                   `json:"LDAPPolicy"`
	SMBPolicy              *dumpSMBPolicy                    `json:"SMBPolicy"`
	CertificateTemplates   psjson.List[dumpCertTemplate]     `json:"CertificateTemplates"`
	CertificateAuthorities psjson.List[dumpCertAuthority]    `json:"CertificateAuthorities"`
}

// Timestamps stay raw so that a malformed one costs only that field.
type dumpIdentity struct {
	SamAccountName             string          `json:"SamAccountName"`
	DisplayName                string          `json:"DisplayName"`
	Description                string          `json:"Description"`
	DistinguishedName          string          `json:"DistinguishedName"`
	Enabled                    psjson.Bool     `json:"Enabled"`
	SupportedEncryptionTypes   psjson.Int      `json:"msDS-SupportedEncryptionTypes"`
	EncryptionTypesMask        psjson.Int      `json:"SupportedEncryptionTypes"`
	UseDESKeyOnly              psjson.Bool     `json:"UseDESKeyOnly"`
	TrustedForDelegation       psjson.Bool     `json:"TrustedForDelegation"`
	TrustedToAuthForDelegation psjson.Bool     `json:"TrustedToAuthForDelegation"`
	ServicePrincipalNames      psjson.Strings  `json:"ServicePrincipalNames"`
	SPNs                       psjson.Strings  `json:"SPNs"`
	PasswordLastSet            json.RawMessage `json:"PasswordLastSet"`
	PasswordNeverExpires       psjson.Bool     `json:"PasswordNeverExpires"`
	PasswordNotRequired        psjson.Bool     `json:"PasswordNotRequired"`
	PasswordExpired            psjson.Bool     `json:"PasswordExpired"`
	DoesNotRequirePreAuth      psjson.Bool     `json:"DoesNotRequirePreAuth"`
	MemberOf                   psjson.Strings  `json:"MemberOf"`
	AdminCount                 psjson.Int      `json:"AdminCount"`
	LastLogonDate              json.RawMessage `json:"LastLogonDate"`
}

type dumpHost struct {
	SamAccountName             string          `json:"SamAccountName"`
	DNSHostName                string          `json:"DNSHostName"`
	IPv4Address                string          `json:"IPv4Address"`
	Enabled                    psjson.Bool     `json:"Enabled"`
	OperatingSystem            string          `json:"OperatingSystem"`
	OperatingSystemVersion     string          `json:"OperatingSystemVersion"`
	TrustedForDelegation       psjson.Bool     `json:"TrustedForDelegation"`
	TrustedToAuthForDelegation psjson.Bool     `json:"TrustedToAuthForDelegation"`
	AllowedToDelegateTo        psjson.Strings  `json:"msDS-AllowedToDelegateTo"`
	ServicePrincipalNames      psjson.Strings  `json:"ServicePrincipalNames"`
	PrimaryGroupID             psjson.Int      `json:"PrimaryGroupID"`
	SupportedEncryptionTypes   psjson.Int      `json:"msDS-SupportedEncryptionTypes"`
	LastLogonDate              json.RawMessage `json:"LastLogonDate"`
}

type dumpGroup struct {
	Name              string         `json:"Name"`
	Description       string         `json:"Description"`
	DistinguishedName string         `json:"DistinguishedName"`
	MemberCount       psjson.Int     `json:"MemberCount"`
	Members           psjson.Strings `json:"Members"`
	MemberOf          psjson.Strings `json:"MemberOf"`
	NestingDepth      psjson.Int     `json:"NestingDepth"`
}

type dumpPasswordPolicy struct {
	MinPasswordLength           psjson.Int      `json:"MinPasswordLength"`
	PasswordHistoryCount        psjson.Int      `json:"PasswordHistoryCount"`
	MaxPasswordAge              json.RawMessage `json:"MaxPasswordAge"`
	MinPasswordAge              json.RawMessage `json:"MinPasswordAge"`
	ComplexityEnabled           psjson.Bool     `json:"ComplexityEnabled"`
	ReversibleEncryptionEnabled psjson.Bool     `json:"ReversibleEncryptionEnabled"`
	LockoutThreshold            psjson.Int      `json:"LockoutThreshold"`
}

// domainControllersGroupID is the primary group of domain controller
// computer accounts.
const domainControllersGroupID = 516

// Collect reads and decodes the export.
func (l *DumpLoader) Collect(ctx context.Context) (*models.DirectoryData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read directory export: %w", err)
	}

	var dump dumpFile
	if err := psjson.Decode(raw, &dump); err != nil {
		return nil, fmt.Errorf("parse directory export %s: %w", l.path, err)
	}

	data := &models.DirectoryData{Domain: dump.Domain}
	if data.Domain == "" {
		data.Domain = l.domain
	}
	for _, u := range dump.Users {
		data.Users = append(data.Users, l.identity(u, models.IdentityUser))
	}
	for _, u := range dump.ServiceAccounts {
		data.ServiceAccounts = append(data.ServiceAccounts, l.identity(u, models.IdentityManagedServiceAccount))
	}
	for _, h := range dump.Computers {
		data.Computers = append(data.Computers, l.host(h))
	}
	for _, g := range dump.Groups {
		data.Groups = append(data.Groups, l.group(g))
	}
	if dump.PasswordPolicy != nil {
		data.PasswordPolicy = l.policy(dump.PasswordPolicy)
	}
	l.infrastructure(&dump, data)

	l.log.Info().
		Str("path", l.path).
		Int("users", len(data.Users)).
		Int("service_accounts", len(data.ServiceAccounts)).
		Int("computers", len(data.Computers)).
		Int("groups", len(data.Groups)).
		Int("trusts", len(data.Trusts)).
		Msg("directory export loaded")

	return finish(data)
}

func (l *DumpLoader) identity(u dumpIdentity, kind models.IdentityKind) models.IdentityRecord {
	log := l.log.With().Str("account", u.SamAccountName).Logger()
	privileged, protected := l.groups.apply(u.MemberOf)

	enc := u.SupportedEncryptionTypes
	if !enc.Valid {
		enc = u.EncryptionTypesMask
	}
	spns := append([]string{}, u.ServicePrincipalNames...)
	spns = append(spns, u.SPNs...)

	return models.IdentityRecord{
		SamAccountName:             u.SamAccountName,
		DisplayName:                u.DisplayName,
		Description:                u.Description,
		DistinguishedName:          u.DistinguishedName,
		Kind:                       kind,
		Enabled:                    bool(u.Enabled),
		SupportedEncryptionTypes:   enc.Ptr(),
		UseDESKeyOnly:              bool(u.UseDESKeyOnly),
		TrustedForDelegation:       bool(u.TrustedForDelegation),
		TrustedToAuthForDelegation: bool(u.TrustedToAuthForDelegation),
		SPNs:                       spns,
		PasswordLastSet:            lenientTimestamp(u.PasswordLastSet, "PasswordLastSet", log),
		PasswordNeverExpires:       bool(u.PasswordNeverExpires),
		PasswordNotRequired:        bool(u.PasswordNotRequired),
		PasswordExpired:            bool(u.PasswordExpired),
		DoesNotRequirePreAuth:      bool(u.DoesNotRequirePreAuth),
		MemberOf:                   privileged,
		ProtectedUser:              protected,
		AdminCount:                 u.AdminCount.Value == 1,
		LastLogon:                  lenientTimestamp(u.LastLogonDate, "LastLogonDate", log),
	}
}

// group reads MemberCount, else the length of an exported Members list.
// Neither present leaves the count unknown.
func (l *DumpLoader) group(g dumpGroup) models.GroupRecord {
	count := g.MemberCount.Ptr()
	if count == nil && g.Members != nil {
		n := len(g.Members)
		count = &n
	}
	return models.GroupRecord{
		Name:              g.Name,
		Description:       g.Description,
		DistinguishedName: g.DistinguishedName,
		MemberCount:       count,
		Privileged:        l.groups.isPrivileged(g.Name),
		ParentGroups:      nonNil(g.MemberOf),
		NestingDepth:      g.NestingDepth.Value,
	}
}

func (l *DumpLoader) host(h dumpHost) models.HostRecord {
	log := l.log.With().Str("computer", h.SamAccountName).Logger()
	return models.HostRecord{
		SamAccountName:             h.SamAccountName,
		DNSHostName:                h.DNSHostName,
		IPv4Address:                h.IPv4Address,
		Enabled:                    bool(h.Enabled),
		OperatingSystem:            h.OperatingSystem,
		OperatingSystemVersion:     h.OperatingSystemVersion,
		TrustedForDelegation:       bool(h.TrustedForDelegation),
		TrustedToAuthForDelegation: bool(h.TrustedToAuthForDelegation),
		ConstrainedDelegation:      nonNil(h.AllowedToDelegateTo),
		SPNs:                       nonNil(h.ServicePrincipalNames),
		IsDomainController:         h.PrimaryGroupID.Value == domainControllersGroupID,
		SupportedEncryptionTypes:   h.SupportedEncryptionTypes.Ptr(),
		LastLogon:                  lenientTimestamp(h.LastLogonDate, "LastLogonDate", log),
	}
}

func (l *DumpLoader) policy(p *dumpPasswordPolicy) *models.PasswordPolicy {
	log := l.log.With().Str("object", "PasswordPolicy").Logger()
	out := &models.PasswordPolicy{
		MinPasswordLength:           p.MinPasswordLength.Value,
		PasswordHistoryCount:        p.PasswordHistoryCount.Value,
		MaxPasswordAgeDays:          timeSpanDays(p.MaxPasswordAge, log),
		ComplexityEnabled:           bool(p.ComplexityEnabled),
		ReversibleEncryptionEnabled: bool(p.ReversibleEncryptionEnabled),
		LockoutThreshold:            p.LockoutThreshold.Value,
	}
	if minAge := timeSpanDays(p.MinPasswordAge, log); minAge != nil {
		out.MinPasswordAgeDays = *minAge
	}
	return out
}

// lenientTimestamp parses an exported date. Anything unparseable becomes
// unknown.
func lenientTimestamp(raw json.RawMessage, field string, log zerolog.Logger) models.Timestamp {
	var s string
	if len(raw) == 0 || string(raw) == "null" {
		return models.Timestamp{}
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		log.Debug().Str("field", field).RawJSON("value", raw).Msg("timestamp is not a string")
		return models.Timestamp{}
	}
	ts, err := models.ParseTimestamp(s)
	if err != nil {
		log.Debug().Str("field", field).Str("value", s).Err(err).Msg("unparseable timestamp")
		return models.Timestamp{}
	}
	return ts
}

// psTimeSpan is a serialised System.TimeSpan.
type psTimeSpan struct {
	Days      *int    `json:"Days"`
	TotalDays float64 `json:"TotalDays"`
}

// timeSpanDays reads a TimeSpan serialised as an object, a number of days or
// a "d.hh:mm:ss" string. A zero span means "never" and is nil.
func timeSpanDays(raw json.RawMessage, log zerolog.Logger) *int {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var days int
	switch raw[0] {
	case '{':
		var ts psTimeSpan
		if err := json.Unmarshal(raw, &ts); err != nil {
			log.Debug().RawJSON("value", raw).Msg("unparseable time span")
			return nil
		}
		days = int(ts.TotalDays)
		if ts.Days != nil && ts.TotalDays == 0 {
			days = *ts.Days
		}
	case '"':
		var s string
		_ = json.Unmarshal(raw, &s)
		d, _, _ := strings.Cut(s, ".")
		if _, err := fmt.Sscanf(d, "%d", &days); err != nil {
			log.Debug().Str("value", s).Msg("unparseable time span")
			return nil
		}
	default:
		var n psjson.Int
		_ = json.Unmarshal(raw, &n)
		if !n.Valid {
			return nil
		}
		days = n.Value
	}
	if days == 0 {
		return nil
	}
	return &days
}
