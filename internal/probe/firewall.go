package probe

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/psjson"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/winrm"
)

const firewallNetSecurity = `$ErrorActionPreference = 'Stop'
ConvertTo-Json -Compress -InputObject @(Get-NetFirewallProfile | Select-Object Name, @{n='Enabled';e={$_.Enabled.ToString() -eq 'True'}})`

const firewallNetsh = `netsh advfirewall show allprofiles state`

type profileRow struct {
	Name    string      `json:"Name"`
	Enabled psjson.Bool `json:"Enabled"`
}

// probeFirewall enumerates firewall profiles over one session that is closed
// on every path.
func probeFirewall(ctx context.Context, exec winrm.Executor, host string) models.FirewallStatus {
	failed := func(err error) models.FirewallStatus {
		return models.FirewallStatus{ProbeStatus: models.ProbeStatus{Online: true, Error: err.Error()}}
	}

	sess, err := exec.OpenSession(ctx, host)
	if err != nil {
		return failed(fmt.Errorf("session: %w", err))
	}
	defer sess.Close()

	profiles, proto, err := withFallback(ctx,
		method[[]models.FirewallProfile]{ProtocolNetSecurity, func(ctx context.Context) ([]models.FirewallProfile, error) {
			out, err := sess.RunPowerShell(ctx, firewallNetSecurity)
			if err != nil {
				return nil, err
			}
			rows, err := psjson.DecodeList[profileRow]([]byte(out))
			if err != nil {
				return nil, err
			}
			if len(rows) == 0 {
				return nil, psjson.ErrEmptyResult
			}
			profiles := make([]models.FirewallProfile, len(rows))
			for i, r := range rows {
				profiles[i] = models.FirewallProfile{Name: r.Name, Enabled: bool(r.Enabled)}
			}
			return profiles, nil
		}},
		method[[]models.FirewallProfile]{ProtocolNetsh, func(ctx context.Context) ([]models.FirewallProfile, error) {
			out, err := sess.RunPowerShell(ctx, firewallNetsh)
			if err != nil {
				return nil, err
			}
			return parseNetshProfiles(out)
		}},
	)
	if err != nil {
		return failed(err)
	}

	status := models.FirewallStatus{
		ProbeStatus: models.ProbeStatus{Online: true, Protocol: proto},
		Profiles:    profiles,
	}
	for _, p := range profiles {
		if p.Enabled {
			status.Enabled = true
			break
		}
	}
	return status
}

// parseNetshProfiles reads "netsh advfirewall show allprofiles state":
//
//	Domain Profile Settings:
//	----------------------------------------------------------------------
//	State                                 ON
func parseNetshProfiles(out string) ([]models.FirewallProfile, error) {
	var profiles []models.FirewallProfile
	current := ""
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasSuffix(line, "Profile Settings:") {
			current = strings.TrimSpace(strings.TrimSuffix(line, "Profile Settings:"))
			continue
		}
		fields := strings.Fields(line)
		if current != "" && len(fields) == 2 && strings.EqualFold(fields[0], "State") {
			profiles = append(profiles, models.FirewallProfile{
				Name:    current,
				Enabled: strings.EqualFold(fields[1], "ON"),
			})
			current = ""
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("netsh: %w", psjson.ErrEmptyResult)
	}
	return profiles, nil
}
