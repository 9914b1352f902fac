package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
	"github.com/pankaj-dahiya-devops/adposture/internal/policy"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/dcpolicy"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/directory"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/eventlog"
	"github.com/pankaj-dahiya-devops/adposture/internal/rules"
)

// HostScheduler probes a set of hosts. probe.Scheduler satisfies it.
type HostScheduler interface {
	Run(ctx context.Context, hosts []models.HostRecord) ([]models.HostPostureRecord, error)
}

// RulePack is the registry evaluated for one policy domain.
type RulePack struct {
	Domain   string
	Registry rules.RuleRegistry
}

// DefaultEngine is the production implementation of Engine.
// Collection happens in stages that each return a value; the Snapshot is
// assembled once at the end by Aggregate.
type DefaultEngine struct {
	directory  directory.Collector
	events     eventlog.Source
	signing    dcpolicy.Source
	scheduler  HostScheduler
	packs      []RulePack
	policy     *policy.PolicyConfig
	privileged []string
	log        zerolog.Logger

	now   func() time.Time
	newID func() string
}

// Option customises a DefaultEngine.
type Option func(*DefaultEngine)

// WithEventSource enables Security log collection.
func WithEventSource(src eventlog.Source) Option {
	return func(e *DefaultEngine) { e.events = src }
}

// WithSigningSource reads the controller's signing policy when the
// directory source did not supply one.
func WithSigningSource(src dcpolicy.Source) Option {
	return func(e *DefaultEngine) { e.signing = src }
}

// WithScheduler enables the host posture pass.
func WithScheduler(s HostScheduler) Option {
	return func(e *DefaultEngine) { e.scheduler = s }
}

// WithPolicy applies cfg to every pack's findings and threshold lookups.
func WithPolicy(cfg *policy.PolicyConfig) Option {
	return func(e *DefaultEngine) { e.policy = cfg }
}

// WithPrivilegedGroups overrides rules.DefaultPrivilegedGroups.
func WithPrivilegedGroups(groups []string) Option {
	return func(e *DefaultEngine) { e.privileged = groups }
}

// WithClock fixes the evaluation instant.
func WithClock(now func() time.Time) Option {
	return func(e *DefaultEngine) { e.now = now }
}

// NewDefaultEngine constructs a DefaultEngine over the directory collector
// and rule packs. Event collection and probing are off unless enabled with
// options.
func NewDefaultEngine(dir directory.Collector, packs []RulePack, log zerolog.Logger, opts ...Option) *DefaultEngine {
	e := &DefaultEngine{
		directory: dir,
		packs:     packs,
		log:       log,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
	for _, o := range opts {
		o(e)
	}
	if len(e.privileged) == 0 {
		e.privileged = rules.DefaultPrivilegedGroups
	}
	return e
}

// RunAudit implements Engine. Only a directory failure is fatal; event and
// probe problems are logged and leave their collections empty.
func (e *DefaultEngine) RunAudit(ctx context.Context, opts AuditOptions) (*models.Snapshot, error) {
	start := e.now()

	data, err := e.directory.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect directory: %w", err)
	}
	if data.RecordCount() == 0 {
		return nil, directory.ErrNoDirectoryRecords
	}

	e.readSigning(ctx, data)
	auth := e.collectEvents(ctx, opts)
	posture := e.probeHosts(ctx, data, opts)

	rctx := rules.RuleContext{
		Directory:        data,
		Posture:          posture,
		AuthEvents:       auth,
		PrivilegedGroups: e.privileged,
		Policy:           e.policy,
		Now:              start,
	}
	findings, ruleIDs := e.evaluate(rctx)

	snap := Aggregate(AggregateInput{
		SnapshotID:       e.newID(),
		GeneratedAt:      start,
		Directory:        data,
		Posture:          posture,
		AuthEvents:       auth,
		Findings:         findings,
		RuleIDs:          ruleIDs,
		PrivilegedGroups: e.privileged,
	})

	e.log.Info().
		Str("snapshot_id", snap.SnapshotID).
		Int("findings", snap.Summary.TotalFindings).
		Int("hosts", len(snap.HostPosture)).
		Int("risk_score", snap.OverallRisk.Score).
		Dur("elapsed", e.now().Sub(start)).
		Msg("audit complete")

	return snap, nil
}

// readSigning fills data.Signing from the controller. A failure leaves it
// nil and the signing rules silent.
func (e *DefaultEngine) readSigning(ctx context.Context, data *models.DirectoryData) {
	if e.signing == nil || data.Signing != nil {
		return
	}
	p, err := e.signing.Collect(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("signing policy unavailable; continuing without it")
		return
	}
	data.Signing = p
}

// collectEvents returns nil when the event source is off. A source error is
// logged; whatever events came back with it are still classified.
func (e *DefaultEngine) collectEvents(ctx context.Context, opts AuditOptions) *rules.AuthEventSummary {
	if e.events == nil || opts.SkipEvents {
		return nil
	}
	success, failed, err := e.events.Collect(ctx)
	if err != nil {
		ev := e.log.Warn().Err(err)
		if errors.Is(err, eventlog.ErrAccessDenied) {
			ev = ev.Str("hint", "the audit account needs Event Log Readers membership")
		}
		ev.Int("success", len(success)).
			Int("failed", len(failed)).
			Msg("authentication events incomplete; continuing with what was read")
	}
	summary := rules.ClassifyAuthEvents(success, failed)
	return &summary
}

func (e *DefaultEngine) probeHosts(ctx context.Context, data *models.DirectoryData, opts AuditOptions) []models.HostPostureRecord {
	if e.scheduler == nil || opts.SkipProbes {
		return nil
	}
	records, err := e.scheduler.Run(ctx, data.EnabledComputers())
	if err != nil {
		e.log.Warn().Err(err).Int("recorded", len(records)).Msg("host probing interrupted")
	}
	return records
}

// evaluate runs each pack, stamps the pack's domain on its findings and
// applies the policy for that domain.
func (e *DefaultEngine) evaluate(rctx rules.RuleContext) ([]models.Finding, []string) {
	var (
		findings []models.Finding
		ruleIDs  []string
	)
	for _, pack := range e.packs {
		ruleIDs = append(ruleIDs, pack.Registry.IDs()...)
		raw := pack.Registry.EvaluateAll(rctx)
		stampDomain(raw, pack.Domain)
		findings = append(findings, policy.ApplyPolicy(raw, pack.Domain, e.policy)...)
	}
	sortFindings(findings)
	return findings, ruleIDs
}

func stampDomain(findings []models.Finding, domain string) {
	for i := range findings {
		findings[i].Domain = domain
	}
}
