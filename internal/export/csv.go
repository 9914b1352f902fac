package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

// CSVFiles writes flat tables for spreadsheet review:
// <Prefix>_users.csv, <Prefix>_computers.csv and, when hosts were probed,
// <Prefix>_posture.csv.
type CSVFiles struct {
	Prefix string
}

var (
	userColumns = []string{
		"SamAccountName", "DisplayName", "Enabled", "SPNs", "PasswordLastSet",
		"DaysSincePasswordChange", "PasswordNeverExpires", "EncryptionTypes",
		"TrustedForDelegation", "MemberOf", "DaysSinceLastLogon",
	}
	computerColumns = []string{
		"SamAccountName", "OperatingSystem", "Enabled", "SPNs",
		"TrustedForDelegation", "ConstrainedDelegation", "EncryptionTypes",
	}
	postureColumns = []string{
		"ComputerName", "Target", "State", "Antivirus", "RealTimeProtection",
		"DiskEncryption", "Firewall", "AutoUpdate", "Errors",
	}
)

func (c CSVFiles) Name() string { return "csv" }

// Paths returns the files Export writes for snap.
func (c CSVFiles) Paths(snap *models.Snapshot) []string {
	paths := []string{c.Prefix + "_users.csv", c.Prefix + "_computers.csv"}
	if len(snap.HostPosture) > 0 {
		paths = append(paths, c.Prefix+"_posture.csv")
	}
	return paths
}

func (c CSVFiles) Export(_ context.Context, snap *models.Snapshot) error {
	now := snap.GeneratedAt.Time
	if now.IsZero() {
		now = time.Now().UTC()
	}
	paths := c.Paths(snap)

	if err := writeCSV(paths[0], userColumns, userRows(snap.Users, now)); err != nil {
		return err
	}
	if err := writeCSV(paths[1], computerColumns, computerRows(snap.Computers)); err != nil {
		return err
	}
	if len(paths) > 2 {
		return writeCSV(paths[2], postureColumns, postureRows(snap.HostPosture))
	}
	return nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func userRows(users []models.IdentityRecord, now time.Time) [][]string {
	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{
			u.SamAccountName,
			u.DisplayName,
			strconv.FormatBool(u.Enabled),
			strings.Join(u.SPNs, "; "),
			u.PasswordLastSet.String(),
			daysSince(u.PasswordLastSet, now),
			strconv.FormatBool(u.PasswordNeverExpires),
			strings.Join(u.EncryptionTypes, ", "),
			strconv.FormatBool(u.TrustedForDelegation),
			strings.Join(u.MemberOf, ", "),
			daysSince(u.LastLogon, now),
		})
	}
	return rows
}

func computerRows(computers []models.HostRecord) [][]string {
	rows := make([][]string, 0, len(computers))
	for _, c := range computers {
		rows = append(rows, []string{
			c.SamAccountName,
			c.OperatingSystem,
			strconv.FormatBool(c.Enabled),
			strings.Join(c.SPNs, "; "),
			strconv.FormatBool(c.TrustedForDelegation),
			strings.Join(c.ConstrainedDelegation, "; "),
			strings.Join(c.EncryptionTypes, ", "),
		})
	}
	return rows
}

func postureRows(records []models.HostPostureRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, h := range records {
		var errs []string
		for _, e := range []struct {
			name string
			st   models.ProbeStatus
		}{
			{models.CapabilityAntivirus, h.Antivirus.ProbeStatus},
			{models.CapabilityDiskEncryption, h.DiskEncryption.ProbeStatus},
			{models.CapabilityPatchService, h.PatchService.ProbeStatus},
			{models.CapabilityFirewall, h.Firewall.ProbeStatus},
		} {
			if e.st.Failed() {
				errs = append(errs, e.name+": "+e.st.Error)
			}
		}
		rows = append(rows, []string{
			h.ComputerName,
			h.Target,
			string(h.State),
			capabilityCell(h.Antivirus.ProbeStatus, h.Antivirus.Installed),
			capabilityCell(h.Antivirus.ProbeStatus, h.Antivirus.RealTimeProtectionEnabled),
			capabilityCell(h.DiskEncryption.ProbeStatus, h.DiskEncryption.Enabled),
			capabilityCell(h.Firewall.ProbeStatus, h.Firewall.Enabled),
			capabilityCell(h.PatchService.ProbeStatus, h.PatchService.AutoUpdateEnabled),
			strings.Join(errs, "; "),
		})
	}
	return rows
}

// capabilityCell renders a boolean capability, or "unknown" when the probe
// did not answer.
func capabilityCell(st models.ProbeStatus, v bool) string {
	if !st.Succeeded() {
		return "unknown"
	}
	return strconv.FormatBool(v)
}

func daysSince(ts models.Timestamp, now time.Time) string {
	d, ok := ts.DaysSince(now)
	if !ok {
		return ""
	}
	return strconv.Itoa(d)
}
