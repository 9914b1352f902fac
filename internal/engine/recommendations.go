package engine

import (
	"fmt"
	"time"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
	"github.com/pankaj-dahiya-devops/adposture/internal/rules"
)

// NoIssuesRecommendation is the single entry used when nothing applies.
const NoIssuesRecommendation = "No critical issues detected. Continue monitoring and maintain security best practices."

// failedLogonAlert is the failed-logon count above which brute force is
// suspected.
const failedLogonAlert = 50

// recommendations derives ordered remediation advice from the snapshot.
func recommendations(snap *models.Snapshot, now time.Time) []string {
	var out []string
	add := func(topic, format string, args ...any) {
		out = append(out, topic+": "+fmt.Sprintf(format, args...))
	}
	stats := snap.Statistics

	if n := stats[StatUsersWithSPNs]; n > 0 {
		add("Kerberoasting", "%d user accounts have SPNs. Move SPNs to managed service accounts (gMSA) or use Group Managed Service Accounts.", n)
	}
	if n := stats[StatUsersWithDelegation]; n > 0 {
		add("Delegation", "%d user accounts have delegation enabled. Review and disable unnecessary delegation. Prefer constrained delegation over unconstrained.", n)
	}
	if n := stats[StatComputersWithDelegation]; n > 0 {
		add("Computer Delegation", "%d non-DC computers have delegation. This is a high-risk configuration that should be reviewed.", n)
	}
	if n := stats[StatWeakEncryptionUsers]; n > 0 {
		add("Weak Encryption", "%d accounts support DES or RC4. Disable these encryption types via Group Policy and update account settings.", n)
	}
	if n := unprotectedDomainAdmins(snap.Users); n > 0 {
		add("Privileged Accounts", "%d Domain/Enterprise Admins are not in Protected Users group. Add them to reduce credential theft risk.", n)
	}

	inactive, oldPasswords := agedUsers(snap.Users, now)
	if inactive > 0 {
		add("Inactive Accounts", "%d accounts haven't logged in for %d+ days. Review and disable/remove if no longer needed.", inactive, rules.DefaultInactiveDays)
	}
	if oldPasswords > 0 {
		add("Password Age", "%d accounts have passwords older than %d days. Enforce password rotation policies.", oldPasswords, rules.DefaultStalePasswordDays)
	}
	if age, ok := krbtgtPasswordAge(snap.Users, now); ok && age > rules.DefaultKrbtgtMaxAgeDays {
		add("krbtgt Password", "krbtgt password is %d days old. Rotate krbtgt password (requires domain controller maintenance).", age)
	}

	if p := snap.PasswordPolicy; p != nil {
		if p.MinPasswordLength < rules.DefaultMinPasswordLength {
			add("Password Policy", "Minimum password length is %d. Consider increasing to %d+ characters for better security.", p.MinPasswordLength, rules.DefaultMinPasswordLength)
		}
		if p.ReversibleEncryptionEnabled {
			add("Password Policy", "Reversible encryption is enabled. This is a critical security risk - disable immediately.")
		}
		if !p.ComplexityEnabled {
			add("Password Policy", "Password complexity is disabled. Enable it to require mixed case, numbers, and special characters.")
		}
		if p.LockoutThreshold == 0 {
			add("Password Policy", "Account lockout threshold is not set. Configure lockout after 3-10 failed attempts.")
		}
	}

	if n := stats[StatEmptyGroups]; n > rules.DefaultMaxEmptyGroups {
		add("Empty Groups", "%d empty groups found. Review and remove unused groups to reduce attack surface.", n)
	}
	if n := stats[StatLargeGroups]; n > 0 {
		add("Large Groups", "%d groups have >%d members. Review for over-privileged access and implement least privilege.", n, rules.DefaultLargeGroupMembers)
	}
	if n := stats[StatDeeplyNestedGroups]; n > 0 {
		add("Nested Groups", "%d groups are nested %d or more levels deep. Flatten the hierarchy so effective membership stays auditable.", n, rules.DefaultMaxNestingDepth)
	}
	for _, t := range snap.Trusts {
		if t.IntraForest || t.Direction == models.TrustDisabled {
			continue
		}
		if !t.SIDFilteringEnabled {
			add("Trust Security", "SID filtering is disabled for trust '%s'. Enable SID filtering to prevent SID history attacks.", t.Name)
		}
		if !t.SelectiveAuthentication {
			add("Trust Security", "Selective authentication is disabled for trust '%s'. Enable it to restrict cross-trust access.", t.Name)
		}
	}
	if lv := snap.FunctionalLevels; lv != nil {
		if rules.IsLegacyFunctionalLevel(lv.Domain, rules.DefaultMinFunctionalLevel) {
			add("Domain Functional Level", "Domain is running in %sDomain mode. Consider upgrading to Windows Server 2016 or later for enhanced security features.", models.FunctionalLevelName(*lv.Domain))
		}
		if rules.IsLegacyFunctionalLevel(lv.Forest, rules.DefaultMinFunctionalLevel) {
			add("Forest Functional Level", "Forest is running in %sForest mode. Consider upgrading to Windows Server 2016 or later for enhanced security features.", models.FunctionalLevelName(*lv.Forest))
		}
	}
	if sp := snap.Signing; sp != nil {
		if isFalse(sp.LDAPSigningRequired) {
			add("LDAP Signing", "LDAP signing is not required. Enable LDAP signing to prevent man-in-the-middle attacks.")
		}
		if isFalse(sp.SMBClientSigningRequired) || isFalse(sp.SMBServerSigningRequired) {
			add("SMB Signing", "SMB client/server signing is not required. Enable SMB signing to prevent relay attacks.")
		}
	}
	if n := stats[FindingsStat(rules.CertTemplateAutoEnrollRuleID)]; n > 0 {
		add("Certificate Templates", "%d certificate templates allow auto-enrollment without manager approval. This is a security risk.", n)
	}
	expiredCAs := 0
	for _, ca := range snap.CertificateAuthorities {
		if ca.Expired(now) {
			expiredCAs++
		}
	}
	if expiredCAs > 0 {
		add("Certificate Authorities", "%d certificate authorities are expired. Renew or remove expired certificates.", expiredCAs)
	}
	if n := stats[FindingsStat(rules.WeakFineGrainedPolicyRuleID)]; n > 0 {
		add("Fine-Grained Password Policy", "%d password settings objects are below the domain baseline. Raise their length, complexity and lockout settings.", n)
	}

	var noAV, noEncryption, noFirewall, noUpdates int
	for _, h := range snap.HostPosture {
		if h.Antivirus.Succeeded() && !h.Antivirus.Installed {
			noAV++
		}
		if h.DiskEncryption.Succeeded() && !h.DiskEncryption.Enabled {
			noEncryption++
		}
		if h.Firewall.Succeeded() && !h.Firewall.Enabled {
			noFirewall++
		}
		if h.PatchService.Succeeded() && !h.PatchService.AutoUpdateEnabled {
			noUpdates++
		}
	}
	if noAV > 0 {
		add("Antivirus", "%d online computers do not have antivirus installed. Install and maintain antivirus on all systems.", noAV)
	}
	if noEncryption > 0 {
		add("BitLocker", "%d online computers do not have BitLocker enabled. Enable full disk encryption on all systems.", noEncryption)
	}
	if noFirewall > 0 {
		add("Firewall", "%d online computers have firewall disabled. Enable Windows Firewall on all systems.", noFirewall)
	}
	if noUpdates > 0 {
		add("Windows Update", "%d online computers are not running the Windows Update service. Re-enable automatic updates.", noUpdates)
	}

	if n := stats[FindingsStat(rules.OutdatedOSRuleID)]; n > 0 {
		add("Outdated Systems", "%d computers run an unsupported Windows release. Upgrade or isolate them.", n)
	}
	if n := stats[FindingsStat(rules.SuspiciousAccountRuleID)]; n > 0 {
		add("Suspicious Accounts", "%d accounts have security issues. Review and remediate immediately.", n)
	}
	if n := stats[StatFailedLogonCount]; n > failedLogonAlert {
		add("Failed Logons", "%d failed logon attempts detected. Investigate potential brute-force attacks.", n)
	}

	if len(out) == 0 {
		out = append(out, NoIssuesRecommendation)
	}
	return out
}

func isFalse(b *bool) bool { return b != nil && !*b }
