package engine

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
	"github.com/pankaj-dahiya-devops/adposture/internal/rules"
)

// ── Aggregate ────────────────────────────────────────────────────────────────

// TestAggregate_EmptyInputZeroesEveryCounter verifies that no counter is
// absent when its source collection is empty.
func TestAggregate_EmptyInputZeroesEveryCounter(t *testing.T) {
	snap := Aggregate(AggregateInput{
		GeneratedAt:      testNow,
		Directory:        &models.DirectoryData{},
		RuleIDs:          []string{rules.KerberoastableRuleID},
		PrivilegedGroups: []string{"Domain Admins"},
	})

	keys := append([]string{}, baseStatistics...)
	keys = append(keys, PrivilegedGroupStat("Domain Admins"), FindingsStat(rules.KerberoastableRuleID))
	for _, k := range keys {
		v, ok := snap.Statistics[k]
		if !ok {
			t.Errorf("Statistics[%q] absent", k)
			continue
		}
		if v != 0 {
			t.Errorf("Statistics[%q] = %d; want 0", k, v)
		}
	}

	for _, k := range []string{RiskKerberoasting, RiskDelegation, RiskEncryption, RiskNTLM, RiskPrivileged, RiskInactive} {
		if v, ok := snap.RiskScores[k]; !ok || v != 0 {
			t.Errorf("RiskScores[%q] = (%d, %v); want (0, true)", k, v, ok)
		}
	}
	if snap.OverallRisk.Score != 0 || snap.OverallRisk.Level != models.RiskLow {
		t.Errorf("OverallRisk = %+v; want 0 Low Risk", snap.OverallRisk)
	}
	if len(snap.Recommendations) != 1 || snap.Recommendations[0] != NoIssuesRecommendation {
		t.Errorf("Recommendations = %v; want the no-issues line", snap.Recommendations)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, key := range []string{"Users", "ServiceAccounts", "Computers", "ComputerSecurityStatus", "NTLMEvents", "FailedLogons", "Findings"} {
		if !strings.Contains(out, `"`+key+`":[]`) {
			t.Errorf("%s not serialised as [] in %s", key, out)
		}
	}
}

func TestAggregate_NilDirectory(t *testing.T) {
	snap := Aggregate(AggregateInput{GeneratedAt: testNow})
	if snap.Users == nil || snap.Statistics[StatTotalUsers] != 0 {
		t.Errorf("nil directory: Users=%v TotalUsers=%d", snap.Users, snap.Statistics[StatTotalUsers])
	}
}

func TestAggregate_Statistics(t *testing.T) {
	data := testDirectory()
	data.Users = append(data.Users, models.IdentityRecord{
		SamAccountName:       "old_admin",
		Enabled:              false,
		TrustedForDelegation: true,
		MemberOf:             []string{"Domain Admins", "Backup Operators"},
	})
	posture := []models.HostPostureRecord{
		models.UnreachablePosture("DC01", "dc01", ts(testNow)),
		{
			ComputerName:   "WS01",
			State:          models.ProbeCompleted,
			Antivirus:      models.AntivirusStatus{ProbeStatus: models.ProbeStatus{Online: true}, Installed: true},
			DiskEncryption: models.DiskEncryptionStatus{ProbeStatus: models.ProbeStatus{Online: true, Error: "access denied"}},
			PatchService:   models.PatchServiceStatus{ProbeStatus: models.ProbeStatus{Online: true}, AutoUpdateEnabled: true},
			Firewall:       models.FirewallStatus{ProbeStatus: models.ProbeStatus{Online: true}, Enabled: true},
		},
	}
	auth := rules.ClassifyAuthEvents(
		[]models.AuthEvent{{LogonType: 3}, {LogonType: 10, AuthenticationPackage: "NTLM V2"}},
		[]models.AuthEvent{{}, {}, {}},
	)

	snap := Aggregate(AggregateInput{
		GeneratedAt:      testNow,
		Directory:        data,
		Posture:          posture,
		AuthEvents:       &auth,
		PrivilegedGroups: rules.DefaultPrivilegedGroups,
	})

	want := map[string]int{
		StatTotalUsers:                  4,
		StatEnabledUsers:                3,
		StatDisabledUsers:               1,
		StatUsersWithSPNs:               1,
		StatUsersWithDelegation:         1,
		StatWeakEncryptionUsers:         1,
		StatTotalComputers:              3,
		StatEnabledComputers:            2,
		StatDisabledComputers:           1,
		StatComputersWithDelegation:     0,
		StatDomainControllers:           1,
		StatServiceAccounts:             3, // gmsa_web$, svc_sql, old_admin (delegation)
		StatManagedServiceAccounts:      1,
		StatNTLMEventCount:              2,
		StatFailedLogonCount:            3,
		StatHostsProbed:                 2,
		StatHostsOnline:                 1,
		StatHostsUnreachable:            1,
		StatHostsWithAntivirus:          1,
		StatHostsWithRealTimeProtection: 0,
		StatHostsWithDiskEncryption:     0,
		StatHostsWithFirewall:           1,
		StatHostsWithAutoUpdate:         1,

		PrivilegedGroupStat("Domain Admins"):    2,
		PrivilegedGroupStat("Backup Operators"): 1,
		PrivilegedGroupStat("Schema Admins"):    0,
	}
	for k, w := range want {
		if got := snap.Statistics[k]; got != w {
			t.Errorf("Statistics[%q] = %d; want %d", k, got, w)
		}
	}
}

// TestAggregate_ServiceAccountsNotDeduplicated verifies that an account
// present both as a managed account and as a heuristic match appears twice.
func TestAggregate_ServiceAccountsNotDeduplicated(t *testing.T) {
	dup := models.IdentityRecord{SamAccountName: "svc_app", Enabled: true}
	msa := dup
	msa.Kind = models.IdentityManagedServiceAccount
	snap := Aggregate(AggregateInput{
		GeneratedAt: testNow,
		Directory: &models.DirectoryData{
			Users:           []models.IdentityRecord{dup},
			ServiceAccounts: []models.IdentityRecord{msa},
		},
	})
	if len(snap.ServiceAccounts) != 2 {
		t.Fatalf("ServiceAccounts = %d; want 2", len(snap.ServiceAccounts))
	}
	if snap.ServiceAccounts[0].Kind != models.IdentityManagedServiceAccount {
		t.Error("managed accounts must be listed first")
	}
}

// ── risk ─────────────────────────────────────────────────────────────────────

func TestRiskScores(t *testing.T) {
	stale := ts(testNow.AddDate(0, 0, -400))
	users := []models.IdentityRecord{
		{SamAccountName: "a", SPNs: []string{"x/a"}, TrustedForDelegation: true, EncryptionTypes: []string{"RC4"}},
		{SamAccountName: "b", SPNs: []string{"x/b"}, MemberOf: []string{"Domain Admins"}, LastLogon: stale, PasswordLastSet: stale},
		{SamAccountName: "c", MemberOf: []string{"Domain Admins", "Protected Users"}},
	}
	snap := &models.Snapshot{
		GeneratedAt: ts(testNow),
		Users:       users,
		Statistics: map[string]int{
			StatUsersWithSPNs:           2,
			StatUsersWithDelegation:     1,
			StatComputersWithDelegation: 1,
			StatWeakEncryptionUsers:     1,
			StatNTLMEventCount:          80,
		},
	}

	got := riskScores(snap)
	want := map[string]int{
		RiskKerberoasting: 20,
		RiskDelegation:    35,
		RiskEncryption:    5,
		RiskNTLM:          100, // capped
		RiskPrivileged:    25,
		RiskInactive:      5,
	}
	for k, w := range want {
		if got[k] != w {
			t.Errorf("RiskScores[%q] = %d; want %d", k, got[k], w)
		}
	}
}

func TestOverallRisk_Bands(t *testing.T) {
	cases := []struct {
		total int
		score int
		level models.RiskLevel
	}{
		{0, 0, models.RiskLow},
		{299, 29, models.RiskLow},
		{300, 30, models.RiskMedium},
		{699, 69, models.RiskMedium},
		{700, 70, models.RiskHigh},
		{5000, 100, models.RiskHigh},
	}
	for _, tc := range cases {
		got := overallRisk(map[string]int{RiskKerberoasting: tc.total})
		if got.Score != tc.score || got.Level != tc.level {
			t.Errorf("overallRisk(%d) = %+v; want {%d %s}", tc.total, got, tc.score, tc.level)
		}
	}
}

// ── recommendations ──────────────────────────────────────────────────────────

func TestRecommendations(t *testing.T) {
	snap := &models.Snapshot{
		Users: []models.IdentityRecord{
			{SamAccountName: "krbtgt", PasswordLastSet: ts(testNow.AddDate(0, 0, -200))},
		},
		PasswordPolicy: &models.PasswordPolicy{MinPasswordLength: 7, ComplexityEnabled: true, LockoutThreshold: 0},
		HostPosture: []models.HostPostureRecord{
			{State: models.ProbeCompleted, Firewall: models.FirewallStatus{ProbeStatus: models.ProbeStatus{Online: true}}},
			models.UnreachablePosture("WS09", "ws09", ts(testNow)),
		},
		Statistics: map[string]int{
			StatUsersWithSPNs:    3,
			StatFailedLogonCount: 51,
		},
	}

	got := recommendations(snap, testNow)

	wantTopics := []string{"Kerberoasting", "krbtgt Password", "Password Policy", "Password Policy", "Firewall", "Failed Logons"}
	if len(got) != len(wantTopics) {
		t.Fatalf("got %d recommendations %v; want %d", len(got), got, len(wantTopics))
	}
	for i, topic := range wantTopics {
		if !strings.HasPrefix(got[i], topic+": ") {
			t.Errorf("recommendations[%d] = %q; want topic %q", i, got[i], topic)
		}
	}
	if !strings.Contains(got[0], "3 user accounts") {
		t.Errorf("Kerberoasting line = %q; want count 3", got[0])
	}
	if !strings.Contains(got[1], "200 days") {
		t.Errorf("krbtgt line = %q; want 200 days", got[1])
	}
}

func TestRecommendations_FailedLogonThresholdIsStrict(t *testing.T) {
	snap := &models.Snapshot{Statistics: map[string]int{StatFailedLogonCount: failedLogonAlert}}
	got := recommendations(snap, testNow)
	if len(got) != 1 || got[0] != NoIssuesRecommendation {
		t.Errorf("got %v; want the no-issues line at exactly %d failures", got, failedLogonAlert)
	}
}

func TestRecommendations_Infrastructure(t *testing.T) {
	no := false
	snap := &models.Snapshot{
		Trusts: []models.TrustRecord{
			models.NewTrustRecord("partner.example", models.TrustBidirectional, "Uplevel", models.TrustAttrForestTransitive|models.TrustAttrTreatAsExternal),
			models.NewTrustRecord("child.corp.local", models.TrustBidirectional, "Uplevel", models.TrustAttrWithinForest),
		},
		FunctionalLevels: &models.FunctionalLevels{Domain: intPtr(models.LevelWindows2008R2), Forest: intPtr(models.LevelWindows2016)},
		Signing:          &models.SigningPolicy{LDAPSigningRequired: &no, SMBServerSigningRequired: &no},
		CertificateAuthorities: []models.CertificateAuthority{
			{Name: "Old-CA", NotAfter: ts(testNow.AddDate(-1, 0, 0))},
			{Name: "Corp-CA", NotAfter: ts(testNow.AddDate(2, 0, 0))},
		},
		Statistics: map[string]int{
			StatEmptyGroups: 11,
			StatLargeGroups: 2,
			FindingsStat(rules.CertTemplateAutoEnrollRuleID): 1,
		},
	}

	got := recommendations(snap, testNow)

	wantTopics := []string{
		"Empty Groups", "Large Groups", "Trust Security", "Trust Security",
		"Domain Functional Level", "LDAP Signing", "SMB Signing",
		"Certificate Templates", "Certificate Authorities",
	}
	if len(got) != len(wantTopics) {
		t.Fatalf("got %d recommendations %v; want %d", len(got), got, len(wantTopics))
	}
	for i, topic := range wantTopics {
		if !strings.HasPrefix(got[i], topic+": ") {
			t.Errorf("recommendations[%d] = %q; want topic %q", i, got[i], topic)
		}
	}
	if !strings.Contains(got[2], "SID filtering is disabled for trust 'partner.example'") {
		t.Errorf("trust line = %q", got[2])
	}
	if !strings.Contains(got[4], "Windows2008R2Domain mode") {
		t.Errorf("functional level line = %q", got[4])
	}
	if !strings.Contains(got[8], "1 certificate authorities") {
		t.Errorf("CA line = %q; want one expired CA", got[8])
	}
}

func TestRecommendations_EmptyGroupsThresholdIsStrict(t *testing.T) {
	snap := &models.Snapshot{Statistics: map[string]int{StatEmptyGroups: rules.DefaultMaxEmptyGroups}}
	got := recommendations(snap, testNow)
	if len(got) != 1 || got[0] != NoIssuesRecommendation {
		t.Errorf("got %v; want the no-issues line at exactly %d empty groups", got, rules.DefaultMaxEmptyGroups)
	}
}

func TestAggregate_GroupAndInfrastructureStatistics(t *testing.T) {
	data := &models.DirectoryData{
		Computers: []models.HostRecord{
			{SamAccountName: "DC01$", IsDomainController: true},
			{SamAccountName: "WS01$"},
		},
		Groups: []models.GroupRecord{
			{Name: "Unused", MemberCount: intPtr(0)},
			{Name: "Unknown"},
			{Name: "All Staff", MemberCount: intPtr(1500), NestingDepth: 5},
			{Name: "Helpdesk", MemberCount: intPtr(12)},
		},
		Trusts:               []models.TrustRecord{{Name: "partner.example"}},
		CertificateTemplates: []models.CertificateTemplate{{Name: "User"}, {Name: "Machine"}},
	}

	snap := Aggregate(AggregateInput{GeneratedAt: testNow, Directory: data})

	want := map[string]int{
		StatTotalGroups:            4,
		StatEmptyGroups:            1,
		StatLargeGroups:            1,
		StatDeeplyNestedGroups:     1,
		StatTrusts:                 1,
		StatCertificateTemplates:   2,
		StatCertificateAuthorities: 0,
	}
	for k, v := range want {
		if got := snap.Statistics[k]; got != v {
			t.Errorf("Statistics[%q] = %d; want %d", k, got, v)
		}
	}
	if len(snap.DomainControllers) != 1 || snap.DomainControllers[0].SamAccountName != "DC01$" {
		t.Errorf("DomainControllers = %+v; want DC01$ only", snap.DomainControllers)
	}
	if snap.CertificateAuthorities == nil || snap.FineGrainedPolicies == nil {
		t.Error("infrastructure collections must be empty, not nil")
	}
}
