package rules

import (
	"fmt"
	"strings"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

const (
	OutdatedOSRuleID        = "OUTDATED_OPERATING_SYSTEM"
	AntivirusMissingRuleID  = "HOST_ANTIVIRUS_MISSING"
	DiskEncryptionRuleID    = "HOST_DISK_ENCRYPTION_DISABLED"
	FirewallDisabledRuleID  = "HOST_FIREWALL_DISABLED"
	AutoUpdateStoppedRuleID = "HOST_AUTO_UPDATE_STOPPED"
)

// endOfLifeOS lists operating system name fragments past vendor support.
var endOfLifeOS = []string{
	"Windows 2000",
	"Windows XP",
	"Windows Vista",
	"Windows 7",
	"Windows 8",
	"Windows 10",
	"Windows Server 2003",
	"Windows Server 2008",
	"Windows Server 2012",
}

// IsEndOfLifeOS reports whether os names an unsupported Windows release.
func IsEndOfLifeOS(os string) bool {
	for _, eol := range endOfLifeOS {
		if strings.Contains(os, eol) {
			return true
		}
	}
	return false
}

// OutdatedOperatingSystemRule flags enabled computers running an
// unsupported Windows release.
type OutdatedOperatingSystemRule struct{}

func (r OutdatedOperatingSystemRule) ID() string   { return OutdatedOSRuleID }
func (r OutdatedOperatingSystemRule) Name() string { return "Outdated Operating System" }

func (r OutdatedOperatingSystemRule) Evaluate(ctx RuleContext) []models.Finding {
	if ctx.Directory == nil {
		return nil
	}
	now := ctx.Clock()
	var findings []models.Finding
	for _, c := range ctx.Directory.Computers {
		if !c.Enabled || !IsEndOfLifeOS(c.OperatingSystem) {
			continue
		}
		f := newFinding(r.ID(), c.ComputerName(), models.SubjectComputer, models.SeverityHigh, now)
		f.Reasons = []models.Reason{{RuleID: r.ID(), Text: strings.TrimSpace(c.OperatingSystem + " " + c.OperatingSystemVersion)}}
		f.Explanation = fmt.Sprintf("Computer %q runs %s, which no longer receives security updates.", c.ComputerName(), c.OperatingSystem)
		f.Recommendation = "Upgrade or isolate hosts running unsupported operating systems."
		findings = append(findings, f)
	}
	return findings
}

// postureRule evaluates one capability of every probed host. check returns
// the reasons to report; it is only called for capabilities that answered.
type postureRule struct {
	id, name       string
	severity       models.Severity
	status         func(models.HostPostureRecord) models.ProbeStatus
	check          func(models.HostPostureRecord) []models.Reason
	explanation    string
	recommendation string
}

func (r postureRule) ID() string   { return r.id }
func (r postureRule) Name() string { return r.name }

func (r postureRule) Evaluate(ctx RuleContext) []models.Finding {
	now := ctx.Clock()
	var findings []models.Finding
	for _, h := range ctx.Posture {
		if h.State != models.ProbeCompleted || !r.status(h).Succeeded() {
			continue
		}
		reasons := r.check(h)
		if len(reasons) == 0 {
			continue
		}
		f := newFinding(r.id, h.ComputerName, models.SubjectComputer, r.severity, now)
		f.Reasons = reasons
		f.Explanation = fmt.Sprintf(r.explanation, h.ComputerName)
		f.Recommendation = r.recommendation
		findings = append(findings, f)
	}
	return findings
}

// NewAntivirusMissingRule flags online hosts with no registered antivirus
// product or with real-time protection switched off.
func NewAntivirusMissingRule() Rule {
	return postureRule{
		id:       AntivirusMissingRuleID,
		name:     "Antivirus Missing Or Inactive",
		severity: models.SeverityHigh,
		status:   func(h models.HostPostureRecord) models.ProbeStatus { return h.Antivirus.ProbeStatus },
		check: func(h models.HostPostureRecord) []models.Reason {
			switch {
			case !h.Antivirus.Installed:
				return []models.Reason{{RuleID: AntivirusMissingRuleID, Text: "No antivirus product registered"}}
			case !h.Antivirus.RealTimeProtectionEnabled:
				return []models.Reason{{RuleID: "REALTIME_PROTECTION_OFF", Text: fmt.Sprintf("Real-time protection disabled (%s)", h.Antivirus.ProductName)}}
			}
			return nil
		},
		explanation:    "Host %q has no active antivirus protection.",
		recommendation: "Install and maintain antivirus with real-time protection on all systems.",
	}
}

// NewDiskEncryptionDisabledRule flags online hosts with no protected volume.
func NewDiskEncryptionDisabledRule() Rule {
	return postureRule{
		id:       DiskEncryptionRuleID,
		name:     "Disk Encryption Disabled",
		severity: models.SeverityMedium,
		status:   func(h models.HostPostureRecord) models.ProbeStatus { return h.DiskEncryption.ProbeStatus },
		check: func(h models.HostPostureRecord) []models.Reason {
			if h.DiskEncryption.Enabled {
				return nil
			}
			return []models.Reason{{RuleID: DiskEncryptionRuleID, Text: fmt.Sprintf("%d volume(s), none protected", len(h.DiskEncryption.Volumes))}}
		},
		explanation:    "Host %q has no encrypted volume.",
		recommendation: "Enable full disk encryption on all systems.",
	}
}

// NewFirewallDisabledRule flags online hosts with every firewall profile off.
func NewFirewallDisabledRule() Rule {
	return postureRule{
		id:       FirewallDisabledRuleID,
		name:     "Firewall Disabled",
		severity: models.SeverityHigh,
		status:   func(h models.HostPostureRecord) models.ProbeStatus { return h.Firewall.ProbeStatus },
		check: func(h models.HostPostureRecord) []models.Reason {
			if h.Firewall.Enabled {
				return nil
			}
			return []models.Reason{{RuleID: FirewallDisabledRuleID, Text: "All firewall profiles disabled"}}
		},
		explanation:    "Host %q has its firewall disabled.",
		recommendation: "Enable the host firewall on every profile.",
	}
}

// NewAutoUpdateStoppedRule flags online hosts whose update service is not
// running.
func NewAutoUpdateStoppedRule() Rule {
	return postureRule{
		id:       AutoUpdateStoppedRuleID,
		name:     "Automatic Updates Stopped",
		severity: models.SeverityMedium,
		status:   func(h models.HostPostureRecord) models.ProbeStatus { return h.PatchService.ProbeStatus },
		check: func(h models.HostPostureRecord) []models.Reason {
			if h.PatchService.AutoUpdateEnabled {
				return nil
			}
			state := h.PatchService.ServiceState
			if state == "" {
				state = "unknown"
			}
			return []models.Reason{{RuleID: AutoUpdateStoppedRuleID, Text: "Update service state: " + state}}
		},
		explanation:    "Host %q is not running its update service.",
		recommendation: "Start the Windows Update service and set it to automatic.",
	}
}
