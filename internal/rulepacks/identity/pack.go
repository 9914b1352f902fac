// Package identity provides the identity audit rule pack.
// It groups every rule that evaluates user, service and computer accounts
// and the domain password policy into a single New() function that the
// engine wires into a DefaultRuleRegistry.
//
// Convention: every rule pack lives in internal/rulepacks/<domain>/pack.go
// and exposes a single New() func returning []rules.Rule.
package identity

import "github.com/pankaj-dahiya-devops/adposture/internal/rules"

// New returns the default identity audit rule pack.
func New() []rules.Rule {
	return []rules.Rule{
		rules.KrbtgtPasswordAgeRule{},      // CRITICAL: krbtgt password older than 180 days
		rules.AccountDelegationRule{},      // HIGH/CRITICAL: delegation on users or member servers
		rules.KerberoastableRule{},         // HIGH:     user account with SPNs
		rules.PrivilegedNotProtectedRule{}, // HIGH:     admin outside Protected Users
		rules.SuspiciousAccountRule{},      // HIGH:     password/pre-auth/logon anomalies
		rules.WeakPasswordPolicyRule{},     // HIGH:     default domain policy below baseline
		rules.WeakKerberosEncryptionRule{}, // MEDIUM:   DES or RC4 accepted
		rules.NTLMObservedRule{},           // MEDIUM:   NTLM-candidate logons in the window
		rules.FailedLogonVolumeRule{},      // MEDIUM:   failed logons above threshold
		rules.InactiveAccountRule{},        // LOW:      no logon for 90+ days
		rules.StalePasswordRule{},          // LOW:      password older than 365 days
		rules.ServiceAccountRule{},         // INFO:     service account inventory
	}
}
