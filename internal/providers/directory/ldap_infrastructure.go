package directory

import (
	"crypto/x509"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

const (
	filterRootDSE            = "(objectClass=*)"
	filterPartitions         = "(objectClass=crossRefContainer)"
	filterTrusts             = "(objectClass=trustedDomain)"
	filterPasswordSettings   = "(objectClass=msDS-PasswordSettings)"
	filterCertTemplates      = "(objectClass=pKICertificateTemplate)"
	filterEnrollmentServices = "(objectClass=pKIEnrollmentService)"
)

var rootDSEAttributes = []string{
	"domainFunctionality", "forestFunctionality", "configurationNamingContext",
}

var trustAttributes = []string{
	"trustPartner", "trustDirection", "trustType", "trustAttributes",
}

var passwordSettingsAttributes = []string{
	"cn", "msDS-PasswordSettingsPrecedence", "msDS-MinimumPasswordLength",
	"msDS-PasswordHistoryLength", "msDS-PasswordComplexityEnabled",
	"msDS-PasswordReversibleEncryptionEnabled", "msDS-LockoutThreshold",
	"msDS-PSOAppliesTo",
}

var certTemplateAttributes = []string{"cn", "displayName", "msPKI-Enrollment-Flag"}

var enrollmentServiceAttributes = []string{"cn", "cACertificate"}

// rootDSE is what the collector needs from the server root.
type rootDSE struct {
	configNC string
	levels   models.FunctionalLevels
}

func (c *LDAPCollector) readRootDSE(conn searcher) rootDSE {
	var root rootDSE
	entries := c.optional(conn, "rootDSE", "", ldap.ScopeBaseObject, filterRootDSE, rootDSEAttributes)
	if len(entries) == 0 {
		return root
	}
	e := entries[0]
	root.configNC = e.GetAttributeValue("configurationNamingContext")
	if v, ok := parseInt(e.GetAttributeValue("domainFunctionality")); ok {
		level := int(v)
		root.levels.Domain = &level
	}
	if v, ok := parseInt(e.GetAttributeValue("forestFunctionality")); ok {
		level := int(v)
		root.levels.Forest = &level
	}
	return root
}

// optional runs a search whose failure only costs its own data. A missing
// container is expected on domains without the feature.
func (c *LDAPCollector) optional(conn searcher, what, base string, scope int, filter string, attrs []string) []*ldap.Entry {
	req := ldap.NewSearchRequest(base, scope, ldap.NeverDerefAliases, 0, 0, false, filter, attrs, nil)
	res, err := conn.SearchWithPaging(req, c.cfg.PageSize)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			c.log.Debug().Str("object", what).Str("base", base).Msg("container not present")
		} else {
			c.log.Warn().Err(err).Str("object", what).Str("base", base).Msg("not readable; continuing without it")
		}
		return nil
	}
	return res.Entries
}

// readInfrastructure fills trusts, functional levels, password settings
// objects and PKI objects.
func (c *LDAPCollector) readInfrastructure(conn searcher, root rootDSE, data *models.DirectoryData) {
	system := "CN=System," + c.cfg.BaseDN

	for _, e := range c.optional(conn, "trusts", system, ldap.ScopeWholeSubtree, filterTrusts, trustAttributes) {
		data.Trusts = append(data.Trusts, trustFromEntry(e))
	}

	for _, e := range c.optional(conn, "password settings", "CN=Password Settings Container,"+system,
		ldap.ScopeSingleLevel, filterPasswordSettings, passwordSettingsAttributes) {
		data.FineGrainedPolicies = append(data.FineGrainedPolicies, passwordSettingsFromEntry(e))
	}

	levels := root.levels
	if root.configNC != "" {
		parts := c.optional(conn, "partitions", "CN=Partitions,"+root.configNC,
			ldap.ScopeBaseObject, filterPartitions, []string{"msDS-Behavior-Version"})
		if len(parts) > 0 {
			if v, ok := parseInt(parts[0].GetAttributeValue("msDS-Behavior-Version")); ok {
				level := int(v)
				levels.Forest = &level
			}
		}

		pki := "CN=Public Key Services,CN=Services," + root.configNC
		for _, e := range c.optional(conn, "certificate templates", "CN=Certificate Templates,"+pki,
			ldap.ScopeSingleLevel, filterCertTemplates, certTemplateAttributes) {
			data.CertificateTemplates = append(data.CertificateTemplates, templateFromEntry(e))
		}
		for _, e := range c.optional(conn, "enrollment services", "CN=Enrollment Services,"+pki,
			ldap.ScopeSingleLevel, filterEnrollmentServices, enrollmentServiceAttributes) {
			data.CertificateAuthorities = append(data.CertificateAuthorities, c.authorityFromEntry(e))
		}
	}
	if levels.Domain != nil || levels.Forest != nil {
		data.FunctionalLevels = &levels
	}
}

func trustFromEntry(e *ldap.Entry) models.TrustRecord {
	atoi := func(name string) int {
		v, _ := parseInt(e.GetAttributeValue(name))
		return int(v)
	}
	name := e.GetAttributeValue("trustPartner")
	if name == "" {
		name = groupName(e.DN)
	}
	return models.NewTrustRecord(
		name,
		models.TrustDirectionName(atoi("trustDirection")),
		models.TrustTypeName(atoi("trustType")),
		atoi("trustAttributes"),
	)
}

func passwordSettingsFromEntry(e *ldap.Entry) models.FineGrainedPolicy {
	atoi := func(name string) int {
		v, _ := parseInt(e.GetAttributeValue(name))
		return int(v)
	}
	appliesTo := []string{}
	for _, dn := range e.GetAttributeValues("msDS-PSOAppliesTo") {
		appliesTo = append(appliesTo, groupName(dn))
	}
	return models.FineGrainedPolicy{
		Name:                        e.GetAttributeValue("cn"),
		Precedence:                  atoi("msDS-PasswordSettingsPrecedence"),
		MinPasswordLength:           atoi("msDS-MinimumPasswordLength"),
		PasswordHistoryCount:        atoi("msDS-PasswordHistoryLength"),
		ComplexityEnabled:           strings.EqualFold(e.GetAttributeValue("msDS-PasswordComplexityEnabled"), "TRUE"),
		ReversibleEncryptionEnabled: strings.EqualFold(e.GetAttributeValue("msDS-PasswordReversibleEncryptionEnabled"), "TRUE"),
		LockoutThreshold:            atoi("msDS-LockoutThreshold"),
		AppliesTo:                   appliesTo,
	}
}

func templateFromEntry(e *ldap.Entry) models.CertificateTemplate {
	flags, _ := parseInt(e.GetAttributeValue("msPKI-Enrollment-Flag"))
	return models.CertificateTemplate{
		Name:                    e.GetAttributeValue("cn"),
		DisplayName:             e.GetAttributeValue("displayName"),
		AutoEnrollment:          flags&models.EnrollmentAutoEnrollment != 0,
		RequiresManagerApproval: flags&models.EnrollmentPendAllRequests != 0,
	}
}

func (c *LDAPCollector) authorityFromEntry(e *ldap.Entry) models.CertificateAuthority {
	ca := models.CertificateAuthority{Name: e.GetAttributeValue("cn")}
	raw := e.GetRawAttributeValue("cACertificate")
	if len(raw) == 0 {
		return ca
	}
	cert, err := x509.ParseCertificate(raw)
	if err != nil {
		c.log.Debug().Err(err).Str("ca", ca.Name).Msg("unparseable CA certificate")
		return ca
	}
	ca.Subject = cert.Subject.String()
	ca.NotAfter = models.NewTimestamp(cert.NotAfter)
	return ca
}
