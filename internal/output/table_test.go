package output_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
	"github.com/pankaj-dahiya-devops/adposture/internal/output"
)

// ── helpers ───────────────────────────────────────────────────────────────────

func renderToString(findings []models.Finding, opts output.TableOptions) string {
	var buf bytes.Buffer
	output.RenderTable(&buf, findings, opts)
	return buf.String()
}

func oneFinding(overrides ...func(*models.Finding)) models.Finding {
	f := models.Finding{
		ID:          "KERBEROASTABLE_ACCOUNT-svc_sql",
		RuleID:      "KERBEROASTABLE_ACCOUNT",
		Subject:     "svc_sql",
		SubjectType: models.SubjectUser,
		Domain:      "identity",
		Severity:    models.SeverityHigh,
		Reasons:     []models.Reason{{RuleID: "KERBEROASTABLE_ACCOUNT", Text: "SPNs: MSSQLSvc/sql01:1433"}},
		Explanation: `User "svc_sql" has 1 SPN(s) and is exposed to Kerberoasting.`,
	}
	for _, fn := range overrides {
		fn(&f)
	}
	return f
}

// ── DOMAIN column ─────────────────────────────────────────────────────────────

func TestRenderTable_DomainColumn_WhenEnabled(t *testing.T) {
	out := renderToString([]models.Finding{oneFinding()}, output.TableOptions{
		IncludeDomain: true,
	})
	if !strings.Contains(out, "DOMAIN") {
		t.Errorf("expected DOMAIN column header in output\ngot:\n%s", out)
	}
	if !strings.Contains(out, "identity") {
		t.Errorf("expected domain value 'identity' in output\ngot:\n%s", out)
	}
}

func TestRenderTable_DomainColumn_WhenDisabled(t *testing.T) {
	out := renderToString([]models.Finding{oneFinding()}, output.TableOptions{
		IncludeDomain: false,
	})
	if strings.Contains(out, "DOMAIN") {
		t.Errorf("DOMAIN column must not appear when IncludeDomain=false\ngot:\n%s", out)
	}
}

// ── reasons ───────────────────────────────────────────────────────────────────

func TestRenderTable_Reasons_WhenEnabled(t *testing.T) {
	out := renderToString([]models.Finding{oneFinding()}, output.TableOptions{IncludeReasons: true})
	if !strings.Contains(out, "    - SPNs: MSSQLSvc/sql01:1433") {
		t.Errorf("expected indented reason line\ngot:\n%s", out)
	}
}

func TestRenderTable_Reasons_WhenDisabled(t *testing.T) {
	out := renderToString([]models.Finding{oneFinding()}, output.TableOptions{})
	if strings.Contains(out, "MSSQLSvc") {
		t.Errorf("reasons must not appear when IncludeReasons=false\ngot:\n%s", out)
	}
}

// ── message shortening ────────────────────────────────────────────────────────

func TestRenderTable_MessageIsTruncatedWhenTooLong(t *testing.T) {
	long := strings.Repeat("x", 100) // exceeds wMessage=60
	f := oneFinding(func(f *models.Finding) { f.Explanation = long })
	out := renderToString([]models.Finding{f}, output.TableOptions{})

	if strings.Contains(out, long) {
		t.Errorf("full 100-char message must not appear verbatim in output\ngot:\n%s", out)
	}
	if !strings.Contains(out, "...") {
		t.Errorf("truncated message must end with ellipsis\ngot:\n%s", out)
	}
}

func TestRenderTable_LongSubjectIsTruncated(t *testing.T) {
	f := oneFinding(func(f *models.Finding) { f.Subject = strings.Repeat("s", 40) })
	out := renderToString([]models.Finding{f}, output.TableOptions{})
	if strings.Contains(out, strings.Repeat("s", 40)) {
		t.Errorf("subject must be truncated to its column\ngot:\n%s", out)
	}
	if !strings.Contains(out, "…") {
		t.Errorf("truncated subject must end with a single-char ellipsis\ngot:\n%s", out)
	}
}

// ── empty findings ────────────────────────────────────────────────────────────

func TestRenderTable_EmptyFindings_PrintsNoFindings(t *testing.T) {
	out := renderToString(nil, output.TableOptions{})
	if !strings.Contains(out, "No findings.") {
		t.Errorf("expected 'No findings.' for empty slice\ngot:\n%s", out)
	}
	if strings.Contains(out, "SUBJECT") {
		t.Errorf("column headers must not appear for empty findings\ngot:\n%s", out)
	}
}

// ── color mode ────────────────────────────────────────────────────────────────

func TestRenderTable_ColoredFalse_NoAnsiCodes(t *testing.T) {
	out := renderToString([]models.Finding{oneFinding()}, output.TableOptions{
		Colored: false,
	})
	if strings.Contains(out, "\033[") {
		t.Errorf("no ANSI codes must appear when Colored=false\ngot (hex): %q", out)
	}
}

func TestRenderTable_ColoredTrue_HasAnsiCodes(t *testing.T) {
	out := renderToString([]models.Finding{oneFinding()}, output.TableOptions{
		Colored: true,
	})
	if !strings.Contains(out, "\033[") {
		t.Errorf("ANSI codes expected when Colored=true\ngot:\n%s", out)
	}
}

func TestColorSeverity_InfoIsNeverColored(t *testing.T) {
	if got := output.ColorSeverity(models.SeverityInfo, true); got != "INFO" {
		t.Errorf("got %q; want plain INFO", got)
	}
}

// ── ShortenMessage unit tests ─────────────────────────────────────────────────

func TestShortenMessage_ShortString_Unchanged(t *testing.T) {
	s := "hello"
	got := output.ShortenMessage(s, 80)
	if got != s {
		t.Errorf("got %q; want %q", got, s)
	}
}

func TestShortenMessage_TooLong_TruncatedWithEllipsis(t *testing.T) {
	s := strings.Repeat("a", 100)
	got := output.ShortenMessage(s, 80)
	if len([]rune(got)) != 80 {
		t.Errorf("truncated string should be 80 runes, got %d", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated string must end with '...', got %q", got)
	}
}

func TestShortenMessage_VerySmallMax_DoesNotPanic(t *testing.T) {
	got := output.ShortenMessage("hello world", 2)
	if got == "" {
		t.Error("ShortenMessage with tiny max must return non-empty string")
	}
}

// ── posture table ─────────────────────────────────────────────────────────────

func TestRenderPostureTable(t *testing.T) {
	records := []models.HostPostureRecord{
		models.UnreachablePosture("WS02", "ws02", models.NewTimestamp(time.Now())),
		{
			ComputerName:   "WS01",
			State:          models.ProbeCompleted,
			Antivirus:      models.AntivirusStatus{ProbeStatus: models.ProbeStatus{Online: true}, Installed: true},
			DiskEncryption: models.DiskEncryptionStatus{ProbeStatus: models.ProbeStatus{Online: true}},
			PatchService:   models.PatchServiceStatus{ProbeStatus: models.ProbeStatus{Online: true, Error: "timeout"}},
			Firewall:       models.FirewallStatus{ProbeStatus: models.ProbeStatus{Online: true}, Enabled: true},
		},
	}
	var buf bytes.Buffer
	output.RenderPostureTable(&buf, records)
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")

	if len(lines) != 4 {
		t.Fatalf("got %d lines; want header, separator and 2 rows\n%s", len(lines), buf.String())
	}
	if strings.Count(lines[2], "?") != 5 {
		t.Errorf("unreachable row must show ? for every capability: %q", lines[2])
	}
	fields := strings.Fields(lines[3])
	want := []string{"WS01", "COMPLETED", "yes", "no", "no", "yes", "?"}
	if strings.Join(fields, " ") != strings.Join(want, " ") {
		t.Errorf("row fields = %v; want %v", fields, want)
	}
}

func TestRenderPostureTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	output.RenderPostureTable(&buf, nil)
	if buf.String() != "No hosts probed.\n" {
		t.Errorf("got %q", buf.String())
	}
}

// ── summary ───────────────────────────────────────────────────────────────────

func TestRenderSummary(t *testing.T) {
	snap := &models.Snapshot{
		SnapshotID:      "s1",
		Domain:          "corp.local",
		OverallRisk:     models.OverallRisk{Score: 35, Level: models.RiskMedium},
		Summary:         models.FindingSummary{TotalFindings: 3, HighFindings: 2, InfoFindings: 1},
		RiskScores:      map[string]int{"ntlm": 10, "delegation": 15},
		Statistics:      map[string]int{"TotalUsers": 12, "EnabledUsers": 10},
		Recommendations: []string{"Kerberoasting: 2 user accounts have SPNs."},
	}
	var buf bytes.Buffer
	output.RenderSummary(&buf, snap, false)
	out := buf.String()

	for _, want := range []string{
		"Domain:       corp.local",
		"Overall risk: 35/100 (Medium Risk)",
		"3 total",
		"HIGH 2",
		"1. Kerberoasting: 2 user accounts have SPNs.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q\ngot:\n%s", want, out)
		}
	}
	if strings.Index(out, "delegation") > strings.Index(out, "ntlm") {
		t.Errorf("risk categories must be sorted\ngot:\n%s", out)
	}
	if strings.Index(out, "EnabledUsers") > strings.Index(out, "TotalUsers") {
		t.Errorf("statistics must be sorted\ngot:\n%s", out)
	}
}
