package engine

import (
	"context"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

// ReportFormat controls the CLI output format.
type ReportFormat string

const (
	ReportFormatJSON  ReportFormat = "json"
	ReportFormatTable ReportFormat = "table"
)

// AuditOptions configures a single audit run.
// It is the sole input to Engine.RunAudit.
type AuditOptions struct {
	// SkipProbes disables the host posture pass; HostPosture stays empty.
	SkipProbes bool

	// SkipEvents disables Security log collection; the event collections
	// stay empty and their counters are 0.
	SkipEvents bool

	// ReportFormat controls how the CLI renders the returned snapshot.
	ReportFormat ReportFormat
}

// Engine is the central orchestration interface.
// It coordinates directory collection, event collection, host probing and
// rule evaluation, returning a fully populated Snapshot.
//
// Engine never talks to LDAP or WinRM directly; it delegates to the
// collector, event source and scheduler it was built with.
type Engine interface {
	RunAudit(ctx context.Context, opts AuditOptions) (*models.Snapshot, error)
}
