package directory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

var testPrivileged = []string{"Domain Admins", "Enterprise Admins", "Administrators"}

// fakeSearcher answers by "base|filter", falling back to filter alone.
type fakeSearcher struct {
	entries map[string][]*ldap.Entry
	err     map[string]error
	filters []string
	attrs   [][]string
}

func (f *fakeSearcher) SearchWithPaging(req *ldap.SearchRequest, _ uint32) (*ldap.SearchResult, error) {
	f.filters = append(f.filters, req.Filter)
	f.attrs = append(f.attrs, req.Attributes)
	key := req.BaseDN + "|" + req.Filter
	if err := f.err[key]; err != nil {
		return nil, err
	}
	if e, ok := f.entries[key]; ok {
		return &ldap.SearchResult{Entries: e}, nil
	}
	if err := f.err[req.Filter]; err != nil {
		return nil, err
	}
	return &ldap.SearchResult{Entries: f.entries[req.Filter]}, nil
}

func newTestCollector(s *fakeSearcher) (*LDAPCollector, *bool) {
	c := NewLDAPCollector(LDAPConfig{
		URL:              "ldap://dc01.corp.local",
		BaseDN:           "DC=corp,DC=local",
		PrivilegedGroups: testPrivileged,
	}, zerolog.Nop())
	closed := false
	c.dial = func(context.Context) (searcher, func(), error) {
		return s, func() { closed = true }, nil
	}
	return c, &closed
}

func userEntry(sam string, attrs map[string][]string) *ldap.Entry {
	attrs["sAMAccountName"] = []string{sam}
	return ldap.NewEntry("CN="+sam+",CN=Users,DC=corp,DC=local", attrs)
}

func TestLDAPCollector_Collect(t *testing.T) {
	s := &fakeSearcher{entries: map[string][]*ldap.Entry{
		filterUsers: {
			userEntry("alice", map[string][]string{
				"userAccountControl":            {"66048"}, // normal + dont expire
				"msDS-SupportedEncryptionTypes": {"4"},
				"pwdLastSet":                    {"133500000000000000"},
				"lastLogonTimestamp":            {"0"},
				"memberOf": {
					"CN=Domain Admins,CN=Users,DC=corp,DC=local",
					"CN=Protected Users,CN=Users,DC=corp,DC=local",
					"CN=Helpdesk,OU=Groups,DC=corp,DC=local",
				},
				"adminCount": {"1"},
			}),
			userEntry("svc_sql", map[string][]string{
				"userAccountControl":   {"524802"}, // disabled + trusted for delegation
				"servicePrincipalName": {"MSSQLSvc/sql01.corp.local:1433"},
				"pwdLastSet":           {"garbage"},
			}),
		},
		filterManagedAccounts: {
			ldap.NewEntry("CN=gmsa_web,CN=Managed Service Accounts,DC=corp,DC=local", map[string][]string{
				"sAMAccountName":     {"gmsa_web$"},
				"userAccountControl": {"4096"},
			}),
		},
		filterComputers: {
			ldap.NewEntry("CN=DC01,OU=Domain Controllers,DC=corp,DC=local", map[string][]string{
				"sAMAccountName":     {"DC01$"},
				"dNSHostName":        {"dc01.corp.local"},
				"userAccountControl": {"532480"}, // server trust + trusted for delegation
				"operatingSystem":    {"Windows Server 2022 Datacenter"},
			}),
			ldap.NewEntry("CN=WS01,OU=Workstations,DC=corp,DC=local", map[string][]string{
				"sAMAccountName":           {"WS01$"},
				"userAccountControl":       {"4096"},
				"msDS-AllowedToDelegateTo": {"cifs/fs01.corp.local"},
			}),
		},
		filterSecurityGroups: {
			ldap.NewEntry("CN=Domain Admins,CN=Users,DC=corp,DC=local", map[string][]string{
				"cn":     {"Domain Admins"},
				"member": {"CN=alice,CN=Users,DC=corp,DC=local", "CN=Administrator,CN=Users,DC=corp,DC=local"},
			}),
		},
		"(objectClass=domain)": {
			ldap.NewEntry("DC=corp,DC=local", map[string][]string{
				"minPwdLength":     {"7"},
				"pwdHistoryLength": {"24"},
				"maxPwdAge":        {"-36288000000000"},
				"minPwdAge":        {"-864000000000"},
				"pwdProperties":    {"1"},
				"lockoutThreshold": {"0"},
			}),
		},
	}}
	c, closed := newTestCollector(s)

	data, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.True(t, *closed, "connection must be closed")
	assert.Equal(t, "corp.local", data.Domain)

	require.Len(t, data.Users, 2)
	alice := data.Users[0]
	assert.True(t, alice.Enabled)
	assert.True(t, alice.PasswordNeverExpires)
	assert.Equal(t, []string{"Domain Admins"}, alice.MemberOf)
	assert.True(t, alice.ProtectedUser)
	assert.True(t, alice.AdminCount)
	assert.Equal(t, []string{"AES128"}, alice.EncryptionTypes)
	assert.True(t, alice.PasswordLastSet.Known())
	assert.False(t, alice.LastLogon.Known())
	assert.Equal(t, models.IdentityUser, alice.Kind)

	svc := data.Users[1]
	assert.False(t, svc.Enabled)
	assert.True(t, svc.TrustedForDelegation)
	assert.Equal(t, []string{"MSSQLSvc/sql01.corp.local:1433"}, svc.SPNs)
	assert.False(t, svc.PasswordLastSet.Known(), "malformed field is unknown, record kept")
	assert.Nil(t, svc.SupportedEncryptionTypes)
	assert.Equal(t, []string{"None"}, svc.EncryptionTypes)

	require.Len(t, data.ServiceAccounts, 1)
	assert.Equal(t, models.IdentityManagedServiceAccount, data.ServiceAccounts[0].Kind)

	require.Len(t, data.Computers, 2)
	assert.True(t, data.Computers[0].IsDomainController)
	assert.True(t, data.Computers[0].TrustedForDelegation)
	assert.False(t, data.Computers[1].IsDomainController)
	assert.Equal(t, []string{"cifs/fs01.corp.local"}, data.Computers[1].ConstrainedDelegation)

	require.Len(t, data.Groups, 1)
	require.NotNil(t, data.Groups[0].MemberCount)
	assert.Equal(t, 2, *data.Groups[0].MemberCount)
	assert.True(t, data.Groups[0].Privileged)
	assert.Equal(t, "CN=Domain Admins,CN=Users,DC=corp,DC=local", data.Groups[0].DistinguishedName)

	require.NotNil(t, data.PasswordPolicy)
	assert.Equal(t, 7, data.PasswordPolicy.MinPasswordLength)
	require.NotNil(t, data.PasswordPolicy.MaxPasswordAgeDays)
	assert.Equal(t, 42, *data.PasswordPolicy.MaxPasswordAgeDays)
	assert.Equal(t, 1, data.PasswordPolicy.MinPasswordAgeDays)
	assert.True(t, data.PasswordPolicy.ComplexityEnabled)
	assert.False(t, data.PasswordPolicy.ReversibleEncryptionEnabled)
}

func TestLDAPCollector_EmptyDirectoryIsFatal(t *testing.T) {
	c, _ := newTestCollector(&fakeSearcher{})
	_, err := c.Collect(context.Background())
	assert.ErrorIs(t, err, ErrNoDirectoryRecords)
}

func TestLDAPCollector_SearchError(t *testing.T) {
	boom := errors.New("size limit exceeded")
	c, closed := newTestCollector(&fakeSearcher{err: map[string]error{filterUsers: boom}})
	_, err := c.Collect(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, *closed)
}

func TestLDAPCollector_PolicyErrorIsNotFatal(t *testing.T) {
	s := &fakeSearcher{
		entries: map[string][]*ldap.Entry{filterUsers: {userEntry("bob", map[string][]string{})}},
		err:     map[string]error{"(objectClass=domain)": errors.New("insufficient access")},
	}
	c, _ := newTestCollector(s)
	data, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Nil(t, data.PasswordPolicy)
	assert.Len(t, data.Users, 1)
}

func TestParseFileTime(t *testing.T) {
	ts, ok := parseFileTime("116444736000000000")
	require.True(t, ok)
	assert.Equal(t, "1970-01-01T00:00:00Z", ts.String())

	ts, ok = parseFileTime("9223372036854775807")
	assert.True(t, ok)
	assert.False(t, ts.Known())

	_, ok = parseFileTime("yesterday")
	assert.False(t, ok)
}

func TestIntervalDays(t *testing.T) {
	d, ok := intervalDays("-9223372036854775808")
	assert.True(t, ok)
	assert.Nil(t, d)

	d, ok = intervalDays("-36288000000000")
	require.True(t, ok)
	require.NotNil(t, d)
	assert.Equal(t, 42, *d)
}

func TestGroupName(t *testing.T) {
	assert.Equal(t, "Domain Admins", groupName("CN=Domain Admins,CN=Users,DC=corp,DC=local"))
	assert.Equal(t, "Domain Admins", groupName("Domain Admins"))
	assert.Equal(t, "Smith, Ops", groupName(`CN=Smith\, Ops,OU=Groups,DC=corp,DC=local`))
}

func TestDomainFromBaseDN(t *testing.T) {
	assert.Equal(t, "corp.example.com", DomainFromBaseDN("DC=corp, DC=example,DC=com"))
	assert.Equal(t, "", DomainFromBaseDN("OU=Users"))
}

func writeDump(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ad.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDumpLoader_Collect(t *testing.T) {
	body := "\xEF\xBB\xBF" + `{
	  "Domain": "corp.local",
	  "Users": [
	    {
	      "SamAccountName": "alice",
	      "Enabled": true,
	      "PasswordNeverExpires": true,
	      "MemberOf": "CN=Domain Admins,CN=Users,DC=corp,DC=local",
	      "ServicePrincipalNames": "HTTP/web01.corp.local",
	      "msDS-SupportedEncryptionTypes": 10,
	      "PasswordLastSet": "/Date(1709289045000)/",
	      "LastLogonDate": "not-a-date"
	    },
	    {"SamAccountName": "Guest", "Enabled": "False", "MemberOf": null}
	  ],
	  "ServiceAccounts": {"SamAccountName": "gmsa_web$", "Enabled": true},
	  "Computers": [
	    {"SamAccountName": "DC01$", "DNSHostName": "dc01.corp.local", "Enabled": true, "PrimaryGroupID": 516},
	    {"SamAccountName": "WS01$", "IPv4Address": "10.0.0.5", "Enabled": true, "msDS-AllowedToDelegateTo": "cifs/fs01"}
	  ],
	  "SecurityGroups": [{"Name": "Domain Admins", "MemberCount": 3}],
	  "PasswordPolicy": {"MinPasswordLength": 8, "MaxPasswordAge": {"Days": 42, "TotalDays": 42.0}, "MinPasswordAge": "1.00:00:00", "ComplexityEnabled": true}
	}`
	l := NewDumpLoader(writeDump(t, body), "", testPrivileged, zerolog.Nop())

	data, err := l.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "corp.local", data.Domain)

	require.Len(t, data.Users, 2)
	alice := data.Users[0]
	assert.Equal(t, []string{"Domain Admins"}, alice.MemberOf)
	assert.Equal(t, []string{"HTTP/web01.corp.local"}, alice.SPNs)
	assert.Equal(t, []string{"RC4", "AES256"}, alice.EncryptionTypes)
	assert.Equal(t, "2024-03-01T10:30:45Z", alice.PasswordLastSet.String())
	assert.False(t, alice.LastLogon.Known())

	assert.False(t, data.Users[1].Enabled)
	assert.Empty(t, data.Users[1].MemberOf)

	require.Len(t, data.ServiceAccounts, 1)
	assert.Equal(t, models.IdentityManagedServiceAccount, data.ServiceAccounts[0].Kind)

	require.Len(t, data.Computers, 2)
	assert.True(t, data.Computers[0].IsDomainController)
	assert.Equal(t, "10.0.0.5", data.Computers[1].Target())
	assert.Equal(t, []string{"cifs/fs01"}, data.Computers[1].ConstrainedDelegation)

	assert.True(t, data.Groups[0].Privileged)
	require.NotNil(t, data.PasswordPolicy.MaxPasswordAgeDays)
	assert.Equal(t, 42, *data.PasswordPolicy.MaxPasswordAgeDays)
	assert.Equal(t, 1, data.PasswordPolicy.MinPasswordAgeDays)
}

func TestDumpLoader_Errors(t *testing.T) {
	_, err := NewDumpLoader(filepath.Join(t.TempDir(), "missing.json"), "", nil, zerolog.Nop()).Collect(context.Background())
	assert.Error(t, err)

	_, err = NewDumpLoader(writeDump(t, `{"Users": []}`), "corp.local", nil, zerolog.Nop()).Collect(context.Background())
	assert.ErrorIs(t, err, ErrNoDirectoryRecords)

	_, err = NewDumpLoader(writeDump(t, `{not json`), "", nil, zerolog.Nop()).Collect(context.Background())
	assert.Error(t, err)
}
