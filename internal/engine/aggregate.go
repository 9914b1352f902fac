package engine

import (
	"sort"
	"time"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
	"github.com/pankaj-dahiya-devops/adposture/internal/policy"
	"github.com/pankaj-dahiya-devops/adposture/internal/rules"
)

// Statistic keys. Per-group and per-rule counters are built with
// PrivilegedGroupStat and FindingsStat.
const (
	StatTotalUsers                  = "TotalUsers"
	StatEnabledUsers                = "EnabledUsers"
	StatDisabledUsers               = "DisabledUsers"
	StatUsersWithSPNs               = "UsersWithSPNs"
	StatUsersWithDelegation         = "UsersWithDelegation"
	StatWeakEncryptionUsers         = "WeakEncryptionUsers"
	StatTotalComputers              = "TotalComputers"
	StatEnabledComputers            = "EnabledComputers"
	StatDisabledComputers           = "DisabledComputers"
	StatComputersWithDelegation     = "ComputersWithDelegation"
	StatDomainControllers           = "DomainControllers"
	StatServiceAccounts             = "ServiceAccounts"
	StatManagedServiceAccounts      = "ManagedServiceAccounts"
	StatNTLMEventCount              = "NTLMEventCount"
	StatFailedLogonCount            = "FailedLogonCount"
	StatHostsProbed                 = "HostsProbed"
	StatHostsOnline                 = "HostsOnline"
	StatHostsUnreachable            = "HostsUnreachable"
	StatHostsWithAntivirus          = "HostsWithAntivirus"
	StatHostsWithRealTimeProtection = "HostsWithRealTimeProtection"
	StatHostsWithDiskEncryption     = "HostsWithDiskEncryption"
	StatHostsWithFirewall           = "HostsWithFirewall"
	StatHostsWithAutoUpdate         = "HostsWithAutoUpdate"
	StatTotalGroups                 = "TotalGroups"
	StatEmptyGroups                 = "EmptyGroups"
	StatLargeGroups                 = "LargeGroups"
	StatDeeplyNestedGroups          = "DeeplyNestedGroups"
	StatTrusts                      = "TrustRelationships"
	StatFineGrainedPolicies         = "FineGrainedPasswordPolicies"
	StatCertificateTemplates        = "CertificateTemplates"
	StatCertificateAuthorities      = "CertificateAuthorities"
)

var baseStatistics = []string{
	StatTotalUsers, StatEnabledUsers, StatDisabledUsers, StatUsersWithSPNs,
	StatUsersWithDelegation, StatWeakEncryptionUsers, StatTotalComputers,
	StatEnabledComputers, StatDisabledComputers, StatComputersWithDelegation,
	StatDomainControllers, StatServiceAccounts, StatManagedServiceAccounts,
	StatNTLMEventCount, StatFailedLogonCount, StatHostsProbed, StatHostsOnline,
	StatHostsUnreachable, StatHostsWithAntivirus, StatHostsWithRealTimeProtection,
	StatHostsWithDiskEncryption, StatHostsWithFirewall, StatHostsWithAutoUpdate,
	StatTotalGroups, StatEmptyGroups, StatLargeGroups, StatDeeplyNestedGroups,
	StatTrusts, StatFineGrainedPolicies, StatCertificateTemplates,
	StatCertificateAuthorities,
}

// PrivilegedGroupStat is the counter key for members of group.
func PrivilegedGroupStat(group string) string { return "PrivilegedGroup:" + group }

// FindingsStat is the counter key for findings raised by ruleID.
func FindingsStat(ruleID string) string { return "Findings:" + ruleID }

// AggregateInput is everything the aggregator merges.
type AggregateInput struct {
	SnapshotID       string
	GeneratedAt      time.Time
	Directory        *models.DirectoryData
	Posture          []models.HostPostureRecord
	AuthEvents       *rules.AuthEventSummary
	Findings         []models.Finding
	RuleIDs          []string
	PrivilegedGroups []string
}

// Aggregate builds the Snapshot. It is pure: the same input always yields
// the same snapshot, and every counter is present even when its source is
// empty.
func Aggregate(in AggregateInput) *models.Snapshot {
	data := in.Directory
	if data == nil {
		data = &models.DirectoryData{}
	}

	snap := &models.Snapshot{
		SnapshotID:     in.SnapshotID,
		GeneratedAt:    models.NewTimestamp(in.GeneratedAt),
		Domain:         data.Domain,
		Users:          data.Users,
		Computers:      data.Computers,
		Groups:         data.Groups,
		PasswordPolicy: data.PasswordPolicy,
		HostPosture:    in.Posture,
		Findings:       in.Findings,

		DomainControllers:      domainControllers(data.Computers),
		FineGrainedPolicies:    data.FineGrainedPolicies,
		Trusts:                 data.Trusts,
		FunctionalLevels:       data.FunctionalLevels,
		Signing:                data.Signing,
		CertificateTemplates:   data.CertificateTemplates,
		CertificateAuthorities: data.CertificateAuthorities,
	}
	snap.ServiceAccounts = serviceAccounts(data)
	if in.AuthEvents != nil {
		snap.NTLMEvents = in.AuthEvents.NTLMCandidates
		snap.FailedLogons = in.AuthEvents.FailedLogons
	}
	snap.Normalize()

	snap.Statistics = statistics(snap, in)
	snap.Summary = computeSummary(snap.Findings)
	snap.RiskScores = riskScores(snap)
	snap.OverallRisk = overallRisk(snap.RiskScores)
	snap.Recommendations = recommendations(snap, in.Now())
	return snap
}

// Now is the evaluation instant for age-based aggregates.
func (in AggregateInput) Now() time.Time {
	if in.GeneratedAt.IsZero() {
		return time.Now().UTC()
	}
	return in.GeneratedAt.UTC()
}

// domainControllers returns the computer records flagged as controllers,
// in directory order.
func domainControllers(computers []models.HostRecord) []models.HostRecord {
	var out []models.HostRecord
	for _, c := range computers {
		if c.IsDomainController {
			out = append(out, c)
		}
	}
	return out
}

// serviceAccounts lists managed accounts followed by heuristically detected
// ordinary accounts. An account found by both paths appears twice.
func serviceAccounts(data *models.DirectoryData) []models.IdentityRecord {
	out := make([]models.IdentityRecord, 0, len(data.ServiceAccounts))
	out = append(out, data.ServiceAccounts...)
	for _, u := range data.Users {
		if len(rules.ClassifyServiceAccount(u)) > 0 {
			out = append(out, u)
		}
	}
	return out
}

func statistics(snap *models.Snapshot, in AggregateInput) map[string]int {
	stats := make(map[string]int, len(baseStatistics)+len(in.PrivilegedGroups)+len(in.RuleIDs))
	for _, k := range baseStatistics {
		stats[k] = 0
	}
	for _, g := range in.PrivilegedGroups {
		stats[PrivilegedGroupStat(g)] = 0
	}
	for _, id := range in.RuleIDs {
		stats[FindingsStat(id)] = 0
	}

	stats[StatTotalUsers] = len(snap.Users)
	for _, u := range snap.Users {
		if u.Enabled {
			stats[StatEnabledUsers]++
		} else {
			stats[StatDisabledUsers]++
		}
		if len(u.SPNs) > 0 {
			stats[StatUsersWithSPNs]++
		}
		if u.HasDelegation() {
			stats[StatUsersWithDelegation]++
		}
		if rules.IsWeakEncryption(u) {
			stats[StatWeakEncryptionUsers]++
		}
	}
	countGroups := func(rec models.IdentityRecord) {
		for _, g := range in.PrivilegedGroups {
			if rec.InGroup(g) {
				stats[PrivilegedGroupStat(g)]++
			}
		}
	}
	for _, u := range snap.Users {
		countGroups(u)
	}
	// Heuristic service accounts are already counted as users.
	for _, sa := range snap.ServiceAccounts {
		if sa.Kind == models.IdentityManagedServiceAccount {
			countGroups(sa)
		}
	}

	stats[StatTotalComputers] = len(snap.Computers)
	for _, c := range snap.Computers {
		if c.Enabled {
			stats[StatEnabledComputers]++
		} else {
			stats[StatDisabledComputers]++
		}
		if c.IsDomainController {
			stats[StatDomainControllers]++
		} else if c.HasDelegation() {
			stats[StatComputersWithDelegation]++
		}
	}

	stats[StatServiceAccounts] = len(snap.ServiceAccounts)
	for _, sa := range snap.ServiceAccounts {
		if sa.Kind == models.IdentityManagedServiceAccount {
			stats[StatManagedServiceAccounts]++
		}
	}

	stats[StatTotalGroups] = len(snap.Groups)
	for _, g := range snap.Groups {
		switch {
		case g.Empty():
			stats[StatEmptyGroups]++
		case rules.IsLargeGroup(g, rules.DefaultLargeGroupMembers):
			stats[StatLargeGroups]++
		}
		if g.NestingDepth >= rules.DefaultMaxNestingDepth {
			stats[StatDeeplyNestedGroups]++
		}
	}
	stats[StatTrusts] = len(snap.Trusts)
	stats[StatFineGrainedPolicies] = len(snap.FineGrainedPolicies)
	stats[StatCertificateTemplates] = len(snap.CertificateTemplates)
	stats[StatCertificateAuthorities] = len(snap.CertificateAuthorities)

	stats[StatNTLMEventCount] = len(snap.NTLMEvents)
	if in.AuthEvents != nil {
		stats[StatFailedLogonCount] = in.AuthEvents.FailedLogonTotal
	}

	stats[StatHostsProbed] = len(snap.HostPosture)
	for _, h := range snap.HostPosture {
		if h.State == models.ProbeUnreachable {
			stats[StatHostsUnreachable]++
			continue
		}
		stats[StatHostsOnline]++
		if h.Antivirus.Succeeded() && h.Antivirus.Installed {
			stats[StatHostsWithAntivirus]++
		}
		if h.Antivirus.Succeeded() && h.Antivirus.RealTimeProtectionEnabled {
			stats[StatHostsWithRealTimeProtection]++
		}
		if h.DiskEncryption.Succeeded() && h.DiskEncryption.Enabled {
			stats[StatHostsWithDiskEncryption]++
		}
		if h.Firewall.Succeeded() && h.Firewall.Enabled {
			stats[StatHostsWithFirewall]++
		}
		if h.PatchService.Succeeded() && h.PatchService.AutoUpdateEnabled {
			stats[StatHostsWithAutoUpdate]++
		}
	}

	for _, f := range snap.Findings {
		stats[FindingsStat(f.RuleID)]++
	}
	return stats
}

// sortFindings sorts findings in place: severity descending (CRITICAL
// first), then rule ID, then subject.
func sortFindings(findings []models.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		ri := policy.SeverityRank(findings[i].Severity)
		rj := policy.SeverityRank(findings[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if findings[i].RuleID != findings[j].RuleID {
			return findings[i].RuleID < findings[j].RuleID
		}
		return findings[i].Subject < findings[j].Subject
	})
}

// computeSummary aggregates finding counts across all severity levels.
func computeSummary(findings []models.Finding) models.FindingSummary {
	var s models.FindingSummary
	s.TotalFindings = len(findings)
	for _, f := range findings {
		switch f.Severity {
		case models.SeverityCritical:
			s.CriticalFindings++
		case models.SeverityHigh:
			s.HighFindings++
		case models.SeverityMedium:
			s.MediumFindings++
		case models.SeverityLow:
			s.LowFindings++
		case models.SeverityInfo:
			s.InfoFindings++
		}
	}
	return s
}
