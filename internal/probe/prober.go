// Package probe determines the security posture of domain hosts over WinRM.
//
// Every host passes a TCP reachability gate first. Hosts that pass get four
// capability probes (antivirus, disk encryption, patch service, firewall),
// each with a primary and a fallback query. A capability failure is recorded
// on that capability only.
package probe

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
	"github.com/pankaj-dahiya-devops/adposture/internal/providers/winrm"
)

// HostProber produces one posture record per host.
type HostProber interface {
	Probe(ctx context.Context, host models.HostRecord) models.HostPostureRecord
}

// Prober is the WinRM-backed HostProber.
type Prober struct {
	exec  winrm.Executor
	reach Reachability
	now   func() time.Time
	log   zerolog.Logger
}

var _ HostProber = (*Prober)(nil)

// Option customises a Prober.
type Option func(*Prober)

// WithClock overrides the clock used for CompletedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Prober) { p.now = now }
}

// NewProber returns a Prober that gates on reach and queries through exec.
func NewProber(exec winrm.Executor, reach Reachability, log zerolog.Logger, opts ...Option) *Prober {
	p := &Prober{
		exec:  exec,
		reach: reach,
		now:   time.Now,
		log:   log,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Probe always returns a record. An unreachable host gets the offline shape
// and no capability probe is attempted.
func (p *Prober) Probe(ctx context.Context, host models.HostRecord) models.HostPostureRecord {
	name, target := host.ComputerName(), host.Target()
	log := p.log.With().Str("host", name).Str("target", target).Logger()

	if err := p.reach.Check(ctx, target); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Debug().Err(err).Msg("host failed reachability gate")
		}
		return models.UnreachablePosture(name, target, models.NewTimestamp(p.now()))
	}

	rec := models.HostPostureRecord{
		ComputerName: name,
		Target:       target,
		State:        models.ProbeCompleted,
	}

	// Each goroutine writes a distinct field; Wait publishes them.
	var g errgroup.Group
	g.Go(func() error {
		rec.Antivirus = probeAntivirus(ctx, p.exec, target)
		logCapability(log, models.CapabilityAntivirus, rec.Antivirus.ProbeStatus)
		return nil
	})
	g.Go(func() error {
		rec.DiskEncryption = probeDiskEncryption(ctx, p.exec, target)
		logCapability(log, models.CapabilityDiskEncryption, rec.DiskEncryption.ProbeStatus)
		return nil
	})
	g.Go(func() error {
		rec.PatchService = probePatchService(ctx, p.exec, target)
		logCapability(log, models.CapabilityPatchService, rec.PatchService.ProbeStatus)
		return nil
	})
	g.Go(func() error {
		rec.Firewall = probeFirewall(ctx, p.exec, target)
		logCapability(log, models.CapabilityFirewall, rec.Firewall.ProbeStatus)
		return nil
	})
	_ = g.Wait()

	rec.CompletedAt = models.NewTimestamp(p.now())
	return rec
}

func logCapability(log zerolog.Logger, capability string, st models.ProbeStatus) {
	if st.Failed() {
		log.Warn().Str("capability", capability).Str("error", st.Error).Msg("capability probe failed")
		return
	}
	log.Debug().Str("capability", capability).Str("protocol", st.Protocol).Msg("capability probed")
}
