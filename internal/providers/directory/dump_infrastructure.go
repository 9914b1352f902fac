package directory

import (
	"encoding/json"
	"strings"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/psjson"
)

type dumpNestedGroup struct {
	GroupName    string     `json:"GroupName"`
	NestingDepth psjson.Int `json:"NestingDepth"`
}

// dumpTrust is Get-ADTrust output. TrustAttributes, when exported, wins
// over the individual flags.
type dumpTrust struct {
	Name                    string      `json:"Name"`
	Target                  string      `json:"Target"`
	Direction               psjson.Enum `json:"Direction"`
	TrustType               psjson.Enum `json:"TrustType"`
	TrustAttributes         psjson.Int  `json:"TrustAttributes"`
	IntraForest             psjson.Bool `json:"IntraForest"`
	ForestTransitive        psjson.Bool `json:"ForestTransitive"`
	SIDFilteringForestAware psjson.Bool `json:"SIDFilteringForestAware"`
	SIDFilteringQuarantined psjson.Bool `json:"SIDFilteringQuarantined"`
	SelectiveAuthentication psjson.Bool `json:"SelectiveAuthentication"`
}

type dumpMode struct {
	Name       string      `json:"Name"`
	DomainMode psjson.Enum `json:"DomainMode"`
	ForestMode psjson.Enum `json:"ForestMode"`
}

type dumpLDAPPolicy struct {
	LDAPSigningRequired *psjson.Bool `json:"LDAPSigningRequired"`
}

type dumpSMBPolicy struct {
	ClientSigningRequired *psjson.Bool `json:"ClientSigningRequired"`
	ServerSigningRequired *psjson.Bool `json:"ServerSigningRequired"`
}

type dumpPasswordSettings struct {
	Name                        string         `json:"Name"`
	Precedence                  psjson.Int     `json:"Precedence"`
	MinPasswordLength           psjson.Int     `json:"MinPasswordLength"`
	PasswordHistoryCount        psjson.Int     `json:"PasswordHistoryCount"`
	ComplexityEnabled           psjson.Bool    `json:"ComplexityEnabled"`
	ReversibleEncryptionEnabled psjson.Bool    `json:"ReversibleEncryptionEnabled"`
	LockoutThreshold            psjson.Int     `json:"LockoutThreshold"`
	AppliesTo                   psjson.Strings `json:"AppliesTo"`
}

type dumpCertTemplate struct {
	Name                    string      `json:"Name"`
	DisplayName             string      `json:"DisplayName"`
	AutoEnrollment          psjson.Bool `json:"AutoEnrollment"`
	RequiresManagerApproval psjson.Bool `json:"RequiresManagerApproval"`
	EnrollmentFlag          psjson.Int  `json:"msPKI-Enrollment-Flag"`
}

type dumpCertAuthority struct {
	Name      string          `json:"Name"`
	Subject   string          `json:"Subject"`
	NotAfter  json.RawMessage `json:"NotAfter"`
	IsExpired psjson.Bool     `json:"IsExpired"`
}

// infrastructure copies the trust, level, signing, password settings and
// PKI sections, and folds the EmptyGroups, LargeGroups and NestedGroups
// summaries into the group list.
func (l *DumpLoader) infrastructure(dump *dumpFile, data *models.DirectoryData) {
	l.mergeGroupSummaries(dump, data)

	for _, t := range dump.Trusts {
		data.Trusts = append(data.Trusts, trustFromDump(t))
	}

	var levels models.FunctionalLevels
	if d := dump.DomainInfo; d != nil {
		levels.Domain = modeLevel(d.DomainMode)
		if data.Domain == "" {
			data.Domain = d.Name
		}
	}
	if f := dump.ForestInfo; f != nil {
		levels.Forest = modeLevel(f.ForestMode)
	}
	if levels.Domain != nil || levels.Forest != nil {
		data.FunctionalLevels = &levels
	}

	if dump.LDAPPolicy != nil || dump.SMBPolicy != nil {
		sp := &models.SigningPolicy{Source: "export"}
		if p := dump.LDAPPolicy; p != nil {
			sp.LDAPSigningRequired = boolPtr(p.LDAPSigningRequired)
		}
		if p := dump.SMBPolicy; p != nil {
			sp.SMBClientSigningRequired = boolPtr(p.ClientSigningRequired)
			sp.SMBServerSigningRequired = boolPtr(p.ServerSigningRequired)
		}
		data.Signing = sp
	}

	for _, p := range dump.FineGrainedPolicies {
		appliesTo := []string{}
		for _, a := range p.AppliesTo {
			appliesTo = append(appliesTo, groupName(a))
		}
		data.FineGrainedPolicies = append(data.FineGrainedPolicies, models.FineGrainedPolicy{
			Name:                        p.Name,
			Precedence:                  p.Precedence.Value,
			MinPasswordLength:           p.MinPasswordLength.Value,
			PasswordHistoryCount:        p.PasswordHistoryCount.Value,
			ComplexityEnabled:           bool(p.ComplexityEnabled),
			ReversibleEncryptionEnabled: bool(p.ReversibleEncryptionEnabled),
			LockoutThreshold:            p.LockoutThreshold.Value,
			AppliesTo:                   appliesTo,
		})
	}

	for _, t := range dump.CertificateTemplates {
		tpl := models.CertificateTemplate{
			Name:                    t.Name,
			DisplayName:             t.DisplayName,
			AutoEnrollment:          bool(t.AutoEnrollment),
			RequiresManagerApproval: bool(t.RequiresManagerApproval),
		}
		if t.EnrollmentFlag.Valid {
			tpl.AutoEnrollment = t.EnrollmentFlag.Value&models.EnrollmentAutoEnrollment != 0
			tpl.RequiresManagerApproval = t.EnrollmentFlag.Value&models.EnrollmentPendAllRequests != 0
		}
		data.CertificateTemplates = append(data.CertificateTemplates, tpl)
	}

	for _, ca := range dump.CertificateAuthorities {
		log := l.log.With().Str("ca", ca.Name).Logger()
		data.CertificateAuthorities = append(data.CertificateAuthorities, models.CertificateAuthority{
			Name:        ca.Name,
			Subject:     ca.Subject,
			NotAfter:    lenientTimestamp(ca.NotAfter, "NotAfter", log),
			ExpiredFlag: bool(ca.IsExpired),
		})
	}
}

// mergeGroupSummaries applies the exporter's EmptyGroups, LargeGroups and
// NestedGroups lists to matching SecurityGroups entries, adding groups the
// main list lacks.
func (l *DumpLoader) mergeGroupSummaries(dump *dumpFile, data *models.DirectoryData) {
	byName := make(map[string]int, len(data.Groups))
	for i, g := range data.Groups {
		byName[strings.ToLower(g.Name)] = i
	}
	lookup := func(name string) *models.GroupRecord {
		if i, ok := byName[strings.ToLower(name)]; ok {
			return &data.Groups[i]
		}
		data.Groups = append(data.Groups, models.GroupRecord{
			Name:       name,
			Privileged: l.groups.isPrivileged(name),
		})
		byName[strings.ToLower(name)] = len(data.Groups) - 1
		return &data.Groups[len(data.Groups)-1]
	}

	for _, g := range dump.EmptyGroups {
		rec := lookup(g.Name)
		if rec.MemberCount == nil {
			zero := 0
			rec.MemberCount = &zero
		}
	}
	for _, g := range dump.LargeGroups {
		rec := lookup(g.Name)
		if n := g.MemberCount.Ptr(); n != nil && (rec.MemberCount == nil || *n > *rec.MemberCount) {
			rec.MemberCount = n
		}
	}
	for _, g := range dump.NestedGroups {
		rec := lookup(g.GroupName)
		rec.NestingDepth = max(rec.NestingDepth, g.NestingDepth.Value)
	}
}

func trustFromDump(t dumpTrust) models.TrustRecord {
	name := t.Name
	if name == "" {
		name = t.Target
	}
	direction := t.Direction.String(models.TrustDirectionName)
	trustType := t.TrustType.String(models.TrustTypeName)

	if t.TrustAttributes.Valid {
		return models.NewTrustRecord(name, direction, trustType, t.TrustAttributes.Value)
	}
	rec := models.TrustRecord{
		Name:                    name,
		Direction:               direction,
		TrustType:               trustType,
		IntraForest:             bool(t.IntraForest),
		ForestTransitive:        bool(t.ForestTransitive),
		SelectiveAuthentication: bool(t.SelectiveAuthentication),
	}
	switch {
	case rec.IntraForest:
	case rec.ForestTransitive:
		// SIDFilteringForestAware set means the forest trust is treated as
		// external and SID history is let through.
		rec.SIDFilteringEnabled = !bool(t.SIDFilteringForestAware)
	default:
		rec.SIDFilteringEnabled = bool(t.SIDFilteringQuarantined)
	}
	return rec
}

// modeLevel reads a DomainMode or ForestMode value, numeric or named.
func modeLevel(e psjson.Enum) *int {
	if !e.Valid {
		return nil
	}
	if e.Number {
		v := e.Value
		return &v
	}
	if v, ok := models.ParseFunctionalMode(e.Name); ok {
		return &v
	}
	return nil
}

func boolPtr(b *psjson.Bool) *bool {
	if b == nil {
		return nil
	}
	v := bool(*b)
	return &v
}
