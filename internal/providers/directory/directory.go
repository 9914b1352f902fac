// Package directory reads identity, computer, group, password-policy,
// trust and PKI records from an Active Directory domain.
//
// Two sources are provided: an LDAP collector that queries a domain
// controller directly, and a loader for JSON exports produced by the
// PowerShell ActiveDirectory module.
package directory

import (
	"context"
	"errors"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

// ErrNoDirectoryRecords is returned when a source produced no users,
// service accounts or computers. It is the only fatal collection outcome.
var ErrNoDirectoryRecords = errors.New("no directory records collected")

// ProtectedUsersGroup is the built-in group whose members get hardened
// Kerberos handling.
const ProtectedUsersGroup = "Protected Users"

// Collector is a directory data source.
type Collector interface {
	Collect(ctx context.Context) (*models.DirectoryData, error)
}

// groupFilter keeps the privileged groups of interest out of a full
// memberOf list.
type groupFilter map[string]string

func newGroupFilter(privileged []string) groupFilter {
	f := make(groupFilter, len(privileged))
	for _, g := range privileged {
		f[strings.ToLower(g)] = g
	}
	return f
}

func (f groupFilter) isPrivileged(name string) bool {
	_, ok := f[strings.ToLower(name)]
	return ok
}

// apply reduces groups (names or DNs) to the privileged names and reports
// whether Protected Users was among them.
func (f groupFilter) apply(groups []string) (privileged []string, protected bool) {
	privileged = []string{}
	for _, g := range groups {
		name := groupName(g)
		if strings.EqualFold(name, ProtectedUsersGroup) {
			protected = true
			continue
		}
		if canonical, ok := f[strings.ToLower(name)]; ok {
			privileged = append(privileged, canonical)
		}
	}
	return privileged, protected
}

// groupName returns the CN of a distinguished name, or s unchanged when it
// is not one.
func groupName(s string) string {
	dn, err := ldap.ParseDN(s)
	if err != nil || len(dn.RDNs) == 0 || len(dn.RDNs[0].Attributes) == 0 {
		return s
	}
	first := dn.RDNs[0].Attributes[0]
	if !strings.EqualFold(first.Type, "CN") {
		return s
	}
	return first.Value
}

// DomainFromBaseDN turns "DC=corp,DC=local" into "corp.local".
func DomainFromBaseDN(baseDN string) string {
	var parts []string
	for _, rdn := range strings.Split(baseDN, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(rdn), "=")
		if ok && strings.EqualFold(key, "DC") {
			parts = append(parts, value)
		}
	}
	return strings.Join(parts, ".")
}

// finish fills derived fields and enforces the fatal empty-source rule.
func finish(data *models.DirectoryData) (*models.DirectoryData, error) {
	for i := range data.Users {
		data.Users[i].EncryptionTypes = models.DecodeEncryptionTypes(data.Users[i].SupportedEncryptionTypes)
	}
	for i := range data.ServiceAccounts {
		data.ServiceAccounts[i].EncryptionTypes = models.DecodeEncryptionTypes(data.ServiceAccounts[i].SupportedEncryptionTypes)
	}
	for i := range data.Computers {
		data.Computers[i].EncryptionTypes = models.DecodeEncryptionTypes(data.Computers[i].SupportedEncryptionTypes)
	}
	if data.Users == nil {
		data.Users = []models.IdentityRecord{}
	}
	if data.ServiceAccounts == nil {
		data.ServiceAccounts = []models.IdentityRecord{}
	}
	if data.Computers == nil {
		data.Computers = []models.HostRecord{}
	}
	if data.Groups == nil {
		data.Groups = []models.GroupRecord{}
	}
	for i := range data.Groups {
		data.Groups[i].ParentGroups = nonNil(data.Groups[i].ParentGroups)
	}
	computeNesting(data.Groups)
	if data.Trusts == nil {
		data.Trusts = []models.TrustRecord{}
	}
	if data.FineGrainedPolicies == nil {
		data.FineGrainedPolicies = []models.FineGrainedPolicy{}
	}
	if data.CertificateTemplates == nil {
		data.CertificateTemplates = []models.CertificateTemplate{}
	}
	if data.CertificateAuthorities == nil {
		data.CertificateAuthorities = []models.CertificateAuthority{}
	}
	if data.RecordCount() == 0 {
		return nil, ErrNoDirectoryRecords
	}
	return data, nil
}
