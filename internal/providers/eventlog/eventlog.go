// Package eventlog reads logon events from a domain controller's Security
// log over WinRM.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/psjson"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/winrm"
)

// Security log event IDs.
const (
	EventLogonSuccess = 4624
	EventLogonFailure = 4625
)

// ErrAccessDenied marks a Security log the account may not read.
var ErrAccessDenied = errors.New("security log access denied")

// Source supplies logon events for one window. Each stream is returned
// independently: a failed stream comes back nil alongside a non-nil error
// while the other keeps its events.
type Source interface {
	Collect(ctx context.Context) (success, failed []models.AuthEvent, err error)
}

// Config selects the controller, the window and the per-stream caps.
type Config struct {
	DomainController string
	Lookback         time.Duration
	MaxSuccess       int
	MaxFailed        int
}

// WinRMSource runs Get-WinEvent on a domain controller.
type WinRMSource struct {
	exec winrm.Executor
	cfg  Config
	log  zerolog.Logger
}

var _ Source = (*WinRMSource)(nil)

// NewWinRMSource returns a Source that queries cfg.DomainController.
func NewWinRMSource(exec winrm.Executor, cfg Config, log zerolog.Logger) *WinRMSource {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 24 * time.Hour
	}
	if cfg.MaxSuccess <= 0 {
		cfg.MaxSuccess = 1000
	}
	if cfg.MaxFailed <= 0 {
		cfg.MaxFailed = 500
	}
	return &WinRMSource{exec: exec, cfg: cfg, log: log}
}

// Event data is read by field name from the event XML, so the same script
// serves 4624 and 4625 despite their different property layouts.
const eventScript = `$ErrorActionPreference = 'Stop'
try {
  $events = Get-WinEvent -FilterHashtable @{LogName='Security'; Id=%d; StartTime=(Get-Date).AddHours(-%d)} -MaxEvents %d
} catch {
  if ($_.Exception.Message -match 'No events were found') { $events = @() } else { throw }
}
$out = foreach ($e in $events) {
  $d = @{}
  ([xml]$e.ToXml()).Event.EventData.Data | ForEach-Object { $d[$_.Name] = $_.'#text' }
  [pscustomobject]@{
    TimeCreated = $e.TimeCreated.ToUniversalTime().ToString('o')
    LogonType = $d['LogonType']
    AuthenticationPackageName = $d['AuthenticationPackageName']
    TargetUserName = $d['TargetUserName']
    TargetDomainName = $d['TargetDomainName']
    IpAddress = $d['IpAddress']
    WorkstationName = $d['WorkstationName']
  }
}
ConvertTo-Json -Compress -InputObject @($out)`

type eventRow struct {
	TimeCreated               string     `json:"TimeCreated"`
	LogonType                 psjson.Int `json:"LogonType"`
	AuthenticationPackageName string     `json:"AuthenticationPackageName"`
	TargetUserName            string     `json:"TargetUserName"`
	TargetDomainName          string     `json:"TargetDomainName"`
	IPAddress                 string     `json:"IpAddress"`
	WorkstationName           string     `json:"WorkstationName"`
}

// Collect returns success and failure events, newest first. An unreadable
// log is reported as an error wrapping ErrAccessDenied where recognisable.
// The two queries are independent; when one fails the other's events are
// still returned and the errors are joined.
func (s *WinRMSource) Collect(ctx context.Context) ([]models.AuthEvent, []models.AuthEvent, error) {
	if s.cfg.DomainController == "" {
		return nil, nil, errors.New("no domain controller configured for event collection")
	}
	success, successErr := s.query(ctx, EventLogonSuccess, s.cfg.MaxSuccess)
	failed, failedErr := s.query(ctx, EventLogonFailure, s.cfg.MaxFailed)

	s.log.Info().
		Str("dc", s.cfg.DomainController).
		Int("success", len(success)).
		Int("failed", len(failed)).
		Bool("partial", successErr != nil || failedErr != nil).
		Msg("logon events collected")
	return success, failed, errors.Join(successErr, failedErr)
}

func (s *WinRMSource) query(ctx context.Context, id, limit int) ([]models.AuthEvent, error) {
	hours := int(math.Ceil(s.cfg.Lookback.Hours()))
	script := fmt.Sprintf(eventScript, id, hours, limit)

	out, err := s.exec.RunPowerShell(ctx, s.cfg.DomainController, script)
	if err != nil {
		if isAccessDenied(err) {
			return nil, fmt.Errorf("event %d: %w: %v", id, ErrAccessDenied, err)
		}
		return nil, fmt.Errorf("event %d: %w", id, err)
	}
	rows, err := psjson.DecodeList[eventRow]([]byte(out))
	if err != nil {
		return nil, fmt.Errorf("event %d: %w", id, err)
	}

	events := make([]models.AuthEvent, 0, len(rows))
	for _, r := range rows {
		ts, err := models.ParseTimestamp(r.TimeCreated)
		if err != nil {
			s.log.Debug().Str("value", r.TimeCreated).Msg("unparseable event time")
		}
		events = append(events, models.AuthEvent{
			TimeCreated:           ts,
			LogonType:             r.LogonType.Value,
			AuthenticationPackage: r.AuthenticationPackageName,
			AccountName:           r.TargetUserName,
			AccountDomain:         r.TargetDomainName,
			IPAddress:             r.IPAddress,
			WorkstationName:       r.WorkstationName,
		})
	}
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func isAccessDenied(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "access is denied") ||
		strings.Contains(msg, "access denied")
}
