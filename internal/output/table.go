package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

// ANSI color codes for severity output (used when Colored=true).
const (
	ansiReset   = "\033[0m"
	ansiBoldRed = "\033[1;31m"
	ansiRed     = "\033[0;31m"
	ansiYellow  = "\033[0;33m"
	ansiBlue    = "\033[0;34m"
)

// TableOptions controls which columns RenderTable renders and how severity is coloured.
type TableOptions struct {
	// Colored wraps severity labels with ANSI codes. Default false (CI-safe).
	Colored bool

	// IncludeDomain adds a DOMAIN column.
	IncludeDomain bool

	// IncludeReasons appends each finding's fired reasons on indented lines.
	IncludeReasons bool
}

// ColorSeverity wraps a severity string with ANSI codes when colored is true.
// When colored is false the string is returned unchanged (CI-safe default).
func ColorSeverity(sev models.Severity, colored bool) string {
	s := string(sev)
	if !colored {
		return s
	}
	if code := severityColor(sev); code != "" {
		return code + s + ansiReset
	}
	return s
}

func severityColor(sev models.Severity) string {
	switch sev {
	case models.SeverityCritical:
		return ansiBoldRed
	case models.SeverityHigh:
		return ansiRed
	case models.SeverityMedium:
		return ansiYellow
	case models.SeverityLow:
		return ansiBlue
	}
	return ""
}

// ShortenMessage truncates msg to at most max runes, appending "..." when truncated.
// max is treated as at least 4 to guarantee space for the ellipsis.
func ShortenMessage(msg string, max int) string {
	if max < 4 {
		max = 4
	}
	runes := []rune(msg)
	if len(runes) <= max {
		return msg
	}
	return string(runes[:max-3]) + "..."
}

// severityCell returns the severity padded to width characters.
// When colored, ANSI codes wrap only the text; trailing padding spaces are plain
// so subsequent columns stay visually aligned regardless of terminal ANSI support.
func severityCell(sev models.Severity, width int, colored bool) string {
	text := string(sev)
	code := severityColor(sev)
	if !colored || code == "" {
		return fmt.Sprintf("%-*s", width, text)
	}
	spaces := max(width-len(text), 0)
	return code + text + ansiReset + strings.Repeat(" ", spaces)
}

// truncateField shortens s to at most max runes for ID/label columns.
// A single-char ellipsis replaces the last rune when truncation occurs.
func truncateField(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

// RenderTable writes a formatted findings table to w.
// Columns are dynamically selected based on opts; the separator line width is
// derived from the header row so all rows align correctly.
//
// Column order:
//
//	SUBJECT  TYPE  SEVERITY  [DOMAIN]  RULE  MESSAGE
func RenderTable(w io.Writer, findings []models.Finding, opts TableOptions) {
	if len(findings) == 0 {
		fmt.Fprintln(w, "No findings.")
		return
	}

	// Fixed column display widths.
	const (
		wSubject  = 24
		wType     = 15
		wSeverity = 10
		wDomain   = 10
		wRule     = 30
		wMessage  = 60
	)

	var hb strings.Builder
	hb.WriteString(fmt.Sprintf("%-*s", wSubject, "SUBJECT"))
	hb.WriteString(fmt.Sprintf("  %-*s", wType, "TYPE"))
	hb.WriteString(fmt.Sprintf("  %-*s", wSeverity, "SEVERITY"))
	if opts.IncludeDomain {
		hb.WriteString(fmt.Sprintf("  %-*s", wDomain, "DOMAIN"))
	}
	hb.WriteString(fmt.Sprintf("  %-*s", wRule, "RULE"))
	hb.WriteString(fmt.Sprintf("  %-*s", wMessage, "MESSAGE"))
	header := strings.TrimRight(hb.String(), " ")

	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for _, f := range findings {
		var rb strings.Builder
		rb.WriteString(fmt.Sprintf("%-*s", wSubject, truncateField(f.Subject, wSubject)))
		rb.WriteString(fmt.Sprintf("  %-*s", wType, truncateField(string(f.SubjectType), wType)))
		rb.WriteString("  " + severityCell(f.Severity, wSeverity, opts.Colored))
		if opts.IncludeDomain {
			rb.WriteString(fmt.Sprintf("  %-*s", wDomain, truncateField(f.Domain, wDomain)))
		}
		rb.WriteString(fmt.Sprintf("  %-*s", wRule, truncateField(f.RuleID, wRule)))
		rb.WriteString("  " + ShortenMessage(f.Explanation, wMessage))
		fmt.Fprintln(w, rb.String())

		if opts.IncludeReasons {
			for _, r := range f.Reasons {
				fmt.Fprintf(w, "    - %s\n", r.Text)
			}
		}
	}
}

// RenderPostureTable writes one row per probed host. Capabilities whose
// probe did not answer are shown as "?".
func RenderPostureTable(w io.Writer, records []models.HostPostureRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No hosts probed.")
		return
	}

	const (
		wHost  = 20
		wState = 12
		wCap   = 10
	)

	header := fmt.Sprintf("%-*s  %-*s  %-*s  %-*s  %-*s  %-*s  %s",
		wHost, "HOST", wState, "STATE", wCap, "ANTIVIRUS", wCap, "REALTIME",
		wCap, "BITLOCKER", wCap, "FIREWALL", "UPDATES")
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for _, h := range records {
		fmt.Fprintf(w, "%-*s  %-*s  %-*s  %-*s  %-*s  %-*s  %s\n",
			wHost, truncateField(h.ComputerName, wHost),
			wState, h.State,
			wCap, capabilityCell(h.Antivirus.ProbeStatus, h.Antivirus.Installed),
			wCap, capabilityCell(h.Antivirus.ProbeStatus, h.Antivirus.RealTimeProtectionEnabled),
			wCap, capabilityCell(h.DiskEncryption.ProbeStatus, h.DiskEncryption.Enabled),
			wCap, capabilityCell(h.Firewall.ProbeStatus, h.Firewall.Enabled),
			capabilityCell(h.PatchService.ProbeStatus, h.PatchService.AutoUpdateEnabled),
		)
	}
}

func capabilityCell(st models.ProbeStatus, ok bool) string {
	switch {
	case !st.Succeeded():
		return "?"
	case ok:
		return "yes"
	default:
		return "no"
	}
}

// RenderSummary writes the overall risk, finding counts, category scores,
// statistics and recommendations of snap.
func RenderSummary(w io.Writer, snap *models.Snapshot, colored bool) {
	fmt.Fprintf(w, "Domain:       %s\n", snap.Domain)
	fmt.Fprintf(w, "Snapshot:     %s\n", snap.SnapshotID)
	fmt.Fprintf(w, "Generated:    %s\n", snap.GeneratedAt)
	fmt.Fprintf(w, "Overall risk: %d/100 (%s)\n", snap.OverallRisk.Score, snap.OverallRisk.Level)

	s := snap.Summary
	fmt.Fprintf(w, "Findings:     %d total  %s %d  %s %d  %s %d  %s %d  %s %d\n",
		s.TotalFindings,
		ColorSeverity(models.SeverityCritical, colored), s.CriticalFindings,
		ColorSeverity(models.SeverityHigh, colored), s.HighFindings,
		ColorSeverity(models.SeverityMedium, colored), s.MediumFindings,
		ColorSeverity(models.SeverityLow, colored), s.LowFindings,
		ColorSeverity(models.SeverityInfo, colored), s.InfoFindings,
	)

	if len(snap.RiskScores) > 0 {
		fmt.Fprintln(w, "\nRisk by category:")
		for _, k := range sortedKeys(snap.RiskScores) {
			fmt.Fprintf(w, "  %-20s %d\n", k, snap.RiskScores[k])
		}
	}

	if len(snap.Statistics) > 0 {
		fmt.Fprintln(w, "\nStatistics:")
		for _, k := range sortedKeys(snap.Statistics) {
			fmt.Fprintf(w, "  %-45s %d\n", k, snap.Statistics[k])
		}
	}

	if len(snap.Recommendations) > 0 {
		fmt.Fprintln(w, "\nRecommendations:")
		for i, r := range snap.Recommendations {
			fmt.Fprintf(w, "  %d. %s\n", i+1, r)
		}
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
