// Package infrastructure provides the domain infrastructure rule pack:
// group hygiene, trusts, functional levels, signing and PKI.
package infrastructure

import "github.com/pankaj-dahiya-devops/adposture/internal/rules"

// New returns the default infrastructure audit rule pack.
func New() []rules.Rule {
	return []rules.Rule{
		rules.TrustSIDFilteringRule{},      // HIGH:        cross-forest trust honours SID history
		rules.LDAPSigningRule{},            // HIGH:        LDAP signing optional on the DC
		rules.SMBSigningRule{},             // HIGH:        SMB signing optional on the DC
		rules.TrustSelectiveAuthRule{},     // MEDIUM:      cross-forest trust without selective auth
		rules.CertTemplateAutoEnrollRule{}, // MEDIUM:      auto-enroll without manager approval
		rules.ExpiredCARule{},              // MEDIUM:      CA certificate expired
		rules.WeakFineGrainedPolicyRule{},  // MEDIUM:      password settings object below baseline
		rules.DeepGroupNestingRule{},       // MEDIUM/HIGH: group nesting 5+ levels deep
		rules.LegacyFunctionalLevelRule{},  // LOW/MEDIUM:  functional level below 2016
		rules.LargeGroupRule{},             // LOW/HIGH:    more than 1000 members
		rules.EmptyGroupsRule{},            // LOW:         more than 10 empty groups
	}
}
