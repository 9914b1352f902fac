package rules

import (
	"testing"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

func onlineHost(name string) models.HostPostureRecord {
	ok := models.ProbeStatus{Online: true, Protocol: "CIM"}
	return models.HostPostureRecord{
		ComputerName:   name,
		State:          models.ProbeCompleted,
		Antivirus:      models.AntivirusStatus{ProbeStatus: ok, Installed: true, RealTimeProtectionEnabled: true},
		DiskEncryption: models.DiskEncryptionStatus{ProbeStatus: ok, Enabled: true},
		PatchService:   models.PatchServiceStatus{ProbeStatus: ok, AutoUpdateEnabled: true, ServiceState: "Running"},
		Firewall:       models.FirewallStatus{ProbeStatus: ok, Enabled: true},
	}
}

func TestIsEndOfLifeOS(t *testing.T) {
	cases := map[string]bool{
		"Windows Server 2008 R2 Enterprise": true,
		"Windows 7 Professional":            true,
		"Windows 10 Enterprise":             true,
		"Windows 11 Enterprise":             false,
		"Windows Server 2022 Standard":      false,
		"":                                  false,
	}
	for os, want := range cases {
		if got := IsEndOfLifeOS(os); got != want {
			t.Errorf("IsEndOfLifeOS(%q): got %v; want %v", os, got, want)
		}
	}
}

func TestOutdatedOperatingSystemRule(t *testing.T) {
	ctx := identityCtx(nil, []models.HostRecord{
		{SamAccountName: "OLD01$", Enabled: true, OperatingSystem: "Windows Server 2012 R2 Standard"},
		{SamAccountName: "OLD02$", Enabled: false, OperatingSystem: "Windows XP Professional"},
		{SamAccountName: "NEW01$", Enabled: true, OperatingSystem: "Windows Server 2022 Standard"},
	})
	findings := OutdatedOperatingSystemRule{}.Evaluate(ctx)
	if len(findings) != 1 || findings[0].Subject != "OLD01" {
		t.Fatalf("want only OLD01, got %v", findings)
	}
}

func TestPostureRules_HealthyHostNoFindings(t *testing.T) {
	ctx := RuleContext{Now: testNow, Posture: []models.HostPostureRecord{onlineHost("WS01")}}
	for _, r := range []Rule{NewAntivirusMissingRule(), NewDiskEncryptionDisabledRule(), NewFirewallDisabledRule(), NewAutoUpdateStoppedRule()} {
		if findings := r.Evaluate(ctx); len(findings) != 0 {
			t.Errorf("%s: want 0 findings, got %d", r.ID(), len(findings))
		}
	}
}

func TestPostureRules_UnreachableAndFailedProbesSkipped(t *testing.T) {
	failed := onlineHost("WS02")
	failed.Firewall = models.FirewallStatus{ProbeStatus: models.ProbeStatus{Online: true, Error: "access denied"}}
	failed.Antivirus = models.AntivirusStatus{ProbeStatus: models.ProbeStatus{Online: true, Error: "namespace not found"}}

	ctx := RuleContext{Now: testNow, Posture: []models.HostPostureRecord{
		models.UnreachablePosture("WS01", "ws01", models.NewTimestamp(testNow)),
		failed,
	}}
	for _, r := range []Rule{NewAntivirusMissingRule(), NewDiskEncryptionDisabledRule(), NewFirewallDisabledRule(), NewAutoUpdateStoppedRule()} {
		if findings := r.Evaluate(ctx); len(findings) != 0 {
			t.Errorf("%s: want 0 findings for unreachable/failed probes, got %d", r.ID(), len(findings))
		}
	}
}

func TestPostureRules_Fire(t *testing.T) {
	h := onlineHost("WS03")
	h.Antivirus.RealTimeProtectionEnabled = false
	h.Antivirus.ProductName = "Defender"
	h.DiskEncryption.Enabled = false
	h.Firewall.Enabled = false
	h.PatchService.AutoUpdateEnabled = false
	h.PatchService.ServiceState = "Stopped"

	ctx := RuleContext{Now: testNow, Posture: []models.HostPostureRecord{h}}
	want := map[string]models.Severity{
		AntivirusMissingRuleID:  models.SeverityHigh,
		DiskEncryptionRuleID:    models.SeverityMedium,
		FirewallDisabledRuleID:  models.SeverityHigh,
		AutoUpdateStoppedRuleID: models.SeverityMedium,
	}
	for _, r := range []Rule{NewAntivirusMissingRule(), NewDiskEncryptionDisabledRule(), NewFirewallDisabledRule(), NewAutoUpdateStoppedRule()} {
		findings := r.Evaluate(ctx)
		if len(findings) != 1 {
			t.Errorf("%s: want 1 finding, got %d", r.ID(), len(findings))
			continue
		}
		if findings[0].Severity != want[r.ID()] {
			t.Errorf("%s severity: got %q; want %q", r.ID(), findings[0].Severity, want[r.ID()])
		}
		if findings[0].Subject != "WS03" {
			t.Errorf("%s subject: got %q", r.ID(), findings[0].Subject)
		}
	}
}

func TestAntivirusMissingRule_NotInstalledReason(t *testing.T) {
	h := onlineHost("WS04")
	h.Antivirus = models.AntivirusStatus{ProbeStatus: models.ProbeStatus{Online: true}}
	findings := NewAntivirusMissingRule().Evaluate(RuleContext{Now: testNow, Posture: []models.HostPostureRecord{h}})
	if len(findings) != 1 || !findings[0].HasReason("No antivirus product registered") {
		t.Fatalf("want not-installed reason, got %v", findings)
	}
}
