// Package hosts provides the host posture rule pack: operating system
// support status plus the four probed capabilities.
package hosts

import "github.com/pankaj-dahiya-devops/adposture/internal/rules"

// New returns the default hosts audit rule pack.
func New() []rules.Rule {
	return []rules.Rule{
		rules.OutdatedOperatingSystemRule{},   // HIGH:   unsupported Windows release
		rules.NewAntivirusMissingRule(),       // HIGH:   no antivirus or real-time protection off
		rules.NewFirewallDisabledRule(),       // HIGH:   every firewall profile off
		rules.NewDiskEncryptionDisabledRule(), // MEDIUM: no protected volume
		rules.NewAutoUpdateStoppedRule(),      // MEDIUM: update service not running
	}
}
