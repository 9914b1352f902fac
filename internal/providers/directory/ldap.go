package directory

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

// Search filters.
const (
	filterUsers           = "(&(objectCategory=person)(objectClass=user))"
	filterManagedAccounts = "(|(objectClass=msDS-GroupManagedServiceAccount)(objectClass=msDS-ManagedServiceAccount))"
	filterComputers       = "(&(objectCategory=computer)(!(objectClass=msDS-GroupManagedServiceAccount))(!(objectClass=msDS-ManagedServiceAccount)))"
	// Security groups only: groupType has the 0x80000000 bit.
	filterSecurityGroups = "(&(objectClass=group)(groupType:1.2.840.113556.1.4.803:=2147483648))"
	filterDomain         = "(objectClass=domain)"
	// Base-scope re-read of one group for the next member range.
	filterGroupRange = "(objectClass=group)"
)

var identityAttributes = []string{
	"sAMAccountName", "displayName", "description", "distinguishedName",
	"userAccountControl", "msDS-SupportedEncryptionTypes", "servicePrincipalName",
	"pwdLastSet", "lastLogonTimestamp", "memberOf", "adminCount",
	"msDS-User-Account-Control-Computed",
}

var computerAttributes = []string{
	"sAMAccountName", "dNSHostName", "userAccountControl", "operatingSystem",
	"operatingSystemVersion", "msDS-AllowedToDelegateTo", "servicePrincipalName",
	"msDS-SupportedEncryptionTypes", "lastLogonTimestamp",
}

var groupAttributes = []string{"cn", "description", "member", "memberOf"}

var domainAttributes = []string{
	"minPwdLength", "pwdHistoryLength", "maxPwdAge", "minPwdAge",
	"pwdProperties", "lockoutThreshold", "msDS-Behavior-Version",
}

// LDAPConfig configures the LDAP collector.
type LDAPConfig struct {
	URL                string
	BaseDN             string
	Domain             string
	BindDN             string
	BindPassword       string
	StartTLS           bool
	InsecureSkipVerify bool
	PageSize           uint32
	Timeout            time.Duration
	PrivilegedGroups   []string
}

// searcher is the part of *ldap.Conn the collector uses.
type searcher interface {
	SearchWithPaging(req *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)
}

type dialFunc func(ctx context.Context) (searcher, func(), error)

// LDAPCollector reads directory data with paged LDAP searches.
type LDAPCollector struct {
	cfg    LDAPConfig
	groups groupFilter
	dial   dialFunc
	log    zerolog.Logger
}

var _ Collector = (*LDAPCollector)(nil)

// NewLDAPCollector returns a collector for cfg. BaseDN must be set.
func NewLDAPCollector(cfg LDAPConfig, log zerolog.Logger) *LDAPCollector {
	if cfg.PageSize == 0 {
		cfg.PageSize = 500
	}
	if cfg.Domain == "" {
		cfg.Domain = DomainFromBaseDN(cfg.BaseDN)
	}
	c := &LDAPCollector{
		cfg:    cfg,
		groups: newGroupFilter(cfg.PrivilegedGroups),
		log:    log,
	}
	c.dial = c.connect
	return c
}

// Connect dials and binds without searching. The doctor command uses it as
// a credentials check.
func (c *LDAPCollector) Connect(ctx context.Context) error {
	_, closeFn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	closeFn()
	return nil
}

func (c *LDAPCollector) connect(ctx context.Context) (searcher, func(), error) {
	tlsCfg := &tls.Config{InsecureSkipVerify: c.cfg.InsecureSkipVerify}
	dialer := &net.Dialer{Timeout: c.cfg.Timeout}

	conn, err := ldap.DialURL(c.cfg.URL, ldap.DialWithDialer(dialer), ldap.DialWithTLSConfig(tlsCfg))
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	if c.cfg.Timeout > 0 {
		conn.SetTimeout(c.cfg.Timeout)
	}

	// Closing the connection aborts any search in flight.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	closeFn := func() {
		close(done)
		conn.Close()
	}

	if c.cfg.StartTLS {
		if err := conn.StartTLS(tlsCfg); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("starttls: %w", err)
		}
	}
	if c.cfg.BindDN != "" {
		if err := conn.Bind(c.cfg.BindDN, c.cfg.BindPassword); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("bind as %s: %w", c.cfg.BindDN, err)
		}
	}
	return conn, closeFn, nil
}

// Collect runs one search per object class and assembles DirectoryData.
func (c *LDAPCollector) Collect(ctx context.Context) (*models.DirectoryData, error) {
	start := time.Now()
	conn, closeFn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	search := func(filter string, attrs []string) ([]*ldap.Entry, error) {
		req := ldap.NewSearchRequest(
			c.cfg.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
			0, 0, false, filter, attrs, nil,
		)
		res, err := conn.SearchWithPaging(req, c.cfg.PageSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("search %s: %w", filter, err)
		}
		return res.Entries, nil
	}

	data := &models.DirectoryData{Domain: c.cfg.Domain}

	users, err := search(filterUsers, identityAttributes)
	if err != nil {
		return nil, err
	}
	for _, e := range users {
		data.Users = append(data.Users, c.identityFromEntry(e, models.IdentityUser))
	}

	msas, err := search(filterManagedAccounts, identityAttributes)
	if err != nil {
		return nil, err
	}
	for _, e := range msas {
		data.ServiceAccounts = append(data.ServiceAccounts, c.identityFromEntry(e, models.IdentityManagedServiceAccount))
	}

	computers, err := search(filterComputers, computerAttributes)
	if err != nil {
		return nil, err
	}
	for _, e := range computers {
		data.Computers = append(data.Computers, c.hostFromEntry(e))
	}

	groups, err := search(filterSecurityGroups, groupAttributes)
	if err != nil {
		return nil, err
	}
	for _, e := range groups {
		data.Groups = append(data.Groups, c.groupFromEntry(conn, e))
	}

	root := c.readRootDSE(conn)
	if dom := c.optional(conn, "domain object", c.cfg.BaseDN, ldap.ScopeBaseObject, filterDomain, domainAttributes); len(dom) > 0 {
		data.PasswordPolicy = c.policyFromEntry(dom[0])
		if v, ok := parseInt(dom[0].GetAttributeValue("msDS-Behavior-Version")); ok {
			level := int(v)
			root.levels.Domain = &level
		}
	}
	c.readInfrastructure(conn, root, data)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.log.Info().
		Int("users", len(data.Users)).
		Int("service_accounts", len(data.ServiceAccounts)).
		Int("computers", len(data.Computers)).
		Int("groups", len(data.Groups)).
		Int("trusts", len(data.Trusts)).
		Int("certificate_templates", len(data.CertificateTemplates)).
		Dur("elapsed", time.Since(start)).
		Msg("directory collected")

	return finish(data)
}

func (c *LDAPCollector) identityFromEntry(e *ldap.Entry, kind models.IdentityKind) models.IdentityRecord {
	sam := e.GetAttributeValue("sAMAccountName")
	log := c.log.With().Str("account", sam).Logger()

	uac := c.uac(e, log)
	computed := uacFlags(0)
	if v, ok := parseInt(e.GetAttributeValue("msDS-User-Account-Control-Computed")); ok {
		computed = uacFlags(v)
	}
	privileged, protected := c.groups.apply(e.GetAttributeValues("memberOf"))

	rec := models.IdentityRecord{
		SamAccountName:             sam,
		DisplayName:                e.GetAttributeValue("displayName"),
		Description:                e.GetAttributeValue("description"),
		DistinguishedName:          e.DN,
		Kind:                       kind,
		Enabled:                    !uac.has(uacAccountDisable),
		SupportedEncryptionTypes:   c.optionalInt(e, "msDS-SupportedEncryptionTypes", log),
		UseDESKeyOnly:              uac.has(uacUseDESKeyOnly),
		TrustedForDelegation:       uac.has(uacTrustedForDelegation),
		TrustedToAuthForDelegation: uac.has(uacTrustedToAuthForDelegation),
		SPNs:                       nonNil(e.GetAttributeValues("servicePrincipalName")),
		PasswordLastSet:            c.fileTime(e, "pwdLastSet", log),
		PasswordNeverExpires:       uac.has(uacDontExpirePassword),
		PasswordNotRequired:        uac.has(uacPasswordNotRequired),
		PasswordExpired:            computed.has(uacPasswordExpired) || uac.has(uacPasswordExpired),
		DoesNotRequirePreAuth:      uac.has(uacDontRequirePreAuth),
		MemberOf:                   privileged,
		ProtectedUser:              protected,
		AdminCount:                 e.GetAttributeValue("adminCount") == "1",
		LastLogon:                  c.fileTime(e, "lastLogonTimestamp", log),
	}
	return rec
}

func (c *LDAPCollector) hostFromEntry(e *ldap.Entry) models.HostRecord {
	sam := e.GetAttributeValue("sAMAccountName")
	log := c.log.With().Str("computer", sam).Logger()
	uac := c.uac(e, log)

	return models.HostRecord{
		SamAccountName:             sam,
		DNSHostName:                e.GetAttributeValue("dNSHostName"),
		Enabled:                    !uac.has(uacAccountDisable),
		OperatingSystem:            e.GetAttributeValue("operatingSystem"),
		OperatingSystemVersion:     e.GetAttributeValue("operatingSystemVersion"),
		TrustedForDelegation:       uac.has(uacTrustedForDelegation),
		TrustedToAuthForDelegation: uac.has(uacTrustedToAuthForDelegation),
		ConstrainedDelegation:      nonNil(e.GetAttributeValues("msDS-AllowedToDelegateTo")),
		SPNs:                       nonNil(e.GetAttributeValues("servicePrincipalName")),
		IsDomainController:         uac.has(uacServerTrustAccount),
		SupportedEncryptionTypes:   c.optionalInt(e, "msDS-SupportedEncryptionTypes", log),
		LastLogon:                  c.fileTime(e, "lastLogonTimestamp", log),
	}
}

func (c *LDAPCollector) groupFromEntry(conn searcher, e *ldap.Entry) models.GroupRecord {
	name := e.GetAttributeValue("cn")
	count := c.memberCount(conn, e)
	return models.GroupRecord{
		Name:              name,
		Description:       e.GetAttributeValue("description"),
		DistinguishedName: e.DN,
		MemberCount:       &count,
		Privileged:        c.groups.isPrivileged(name),
		ParentGroups:      nonNil(e.GetAttributeValues("memberOf")),
	}
}

// memberCount counts the member attribute. A large group comes back with
// "member;range=0-1499" instead; the rest is read one range at a time with
// base searches for "member;range=N-*" until a range ends in "*". A failed
// range read keeps the partial count.
func (c *LDAPCollector) memberCount(conn searcher, e *ldap.Entry) int {
	r, ranged := memberRange(e)
	if !ranged {
		return len(e.GetAttributeValues("member"))
	}
	count := len(r.values)
	for !r.last {
		req := ldap.NewSearchRequest(
			e.DN, ldap.ScopeBaseObject, ldap.NeverDerefAliases,
			1, 0, false, filterGroupRange,
			[]string{fmt.Sprintf("member;range=%d-*", r.next)}, nil,
		)
		res, err := conn.SearchWithPaging(req, c.cfg.PageSize)
		if err != nil || len(res.Entries) == 0 {
			c.log.Warn().Err(err).Str("group", e.DN).Int("counted", count).Msg("ranged member read incomplete")
			return count
		}
		prev := r.next
		r, ranged = memberRange(res.Entries[0])
		if !ranged {
			return count + len(res.Entries[0].GetAttributeValues("member"))
		}
		count += len(r.values)
		if !r.last && r.next <= prev {
			c.log.Warn().Str("group", e.DN).Int("counted", count).Msg("member range did not advance")
			return count
		}
	}
	return count
}

func (c *LDAPCollector) policyFromEntry(e *ldap.Entry) *models.PasswordPolicy {
	atoi := func(name string) int {
		v, _ := parseInt(e.GetAttributeValue(name))
		return int(v)
	}
	props := atoi("pwdProperties")
	p := &models.PasswordPolicy{
		MinPasswordLength:           atoi("minPwdLength"),
		PasswordHistoryCount:        atoi("pwdHistoryLength"),
		ComplexityEnabled:           props&pwdPropComplex != 0,
		ReversibleEncryptionEnabled: props&pwdPropStoreCleartext != 0,
		LockoutThreshold:            atoi("lockoutThreshold"),
	}
	p.MaxPasswordAgeDays, _ = intervalDays(e.GetAttributeValue("maxPwdAge"))
	if minAge, ok := intervalDays(e.GetAttributeValue("minPwdAge")); ok && minAge != nil {
		p.MinPasswordAgeDays = *minAge
	}
	return p
}

func (c *LDAPCollector) uac(e *ldap.Entry, log zerolog.Logger) uacFlags {
	raw := e.GetAttributeValue("userAccountControl")
	v, ok := parseInt(raw)
	if !ok && raw != "" {
		log.Debug().Str("value", raw).Msg("unparseable userAccountControl")
	}
	return uacFlags(v)
}

func (c *LDAPCollector) optionalInt(e *ldap.Entry, attr string, log zerolog.Logger) *int {
	raw := e.GetAttributeValue(attr)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Debug().Str("attribute", attr).Str("value", raw).Msg("unparseable integer attribute")
		return nil
	}
	return &v
}

func (c *LDAPCollector) fileTime(e *ldap.Entry, attr string, log zerolog.Logger) models.Timestamp {
	raw := e.GetAttributeValue(attr)
	ts, ok := parseFileTime(raw)
	if !ok && raw != "" {
		log.Debug().Str("attribute", attr).Str("value", raw).Msg("unparseable timestamp attribute")
	}
	return ts
}

// attrRange is one page of a ranged attribute.
type attrRange struct {
	values []string
	next   int
	last   bool
}

// memberRange finds a "member;range=<lo>-<hi>" attribute on e. A hi of "*"
// marks the last range.
func memberRange(e *ldap.Entry) (attrRange, bool) {
	const prefix = "member;range="
	for _, a := range e.Attributes {
		if len(a.Name) < len(prefix) || !strings.EqualFold(a.Name[:len(prefix)], prefix) {
			continue
		}
		_, hi, _ := strings.Cut(a.Name[len(prefix):], "-")
		end, err := strconv.Atoi(hi)
		if hi == "*" || err != nil {
			return attrRange{values: a.Values, last: true}, true
		}
		return attrRange{values: a.Values, next: end + 1}, true
	}
	return attrRange{}, false
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
