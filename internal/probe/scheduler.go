package probe

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

// Scheduler defaults.
const (
	DefaultConcurrency = 10
	DefaultHostTimeout = 60 * time.Second
)

// SchedulerConfig bounds a probing pass.
type SchedulerConfig struct {
	// MaxHosts caps how many hosts are admitted; 0 admits all.
	MaxHosts int
	// Concurrency is the worker pool size.
	Concurrency int
	// HostTimeout bounds one host's whole pipeline.
	HostTimeout time.Duration
}

// Scheduler fans HostProber invocations out over a bounded pool.
type Scheduler struct {
	prober HostProber
	cfg    SchedulerConfig
	log    zerolog.Logger
}

// NewScheduler returns a Scheduler. Non-positive Concurrency and HostTimeout
// fall back to the package defaults.
func NewScheduler(prober HostProber, cfg SchedulerConfig, log zerolog.Logger) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.HostTimeout <= 0 {
		cfg.HostTimeout = DefaultHostTimeout
	}
	if cfg.MaxHosts < 0 {
		cfg.MaxHosts = 0
	}
	return &Scheduler{prober: prober, cfg: cfg, log: log}
}

// Admit returns the hosts a pass will probe: the first MaxHosts of hosts,
// in input order.
func (s *Scheduler) Admit(hosts []models.HostRecord) []models.HostRecord {
	if s.cfg.MaxHosts == 0 || len(hosts) <= s.cfg.MaxHosts {
		return hosts
	}
	return hosts[:s.cfg.MaxHosts]
}

type indexedRecord struct {
	index  int
	record models.HostPostureRecord
}

// Run probes the admitted hosts and returns their records in admission
// order. If ctx is cancelled, hosts not yet started are never admitted and
// hosts in flight contribute no record; Run then returns what completed
// together with ctx.Err().
func (s *Scheduler) Run(ctx context.Context, hosts []models.HostRecord) ([]models.HostPostureRecord, error) {
	admitted := s.Admit(hosts)
	if skipped := len(hosts) - len(admitted); skipped > 0 {
		s.log.Info().
			Int("max_hosts", s.cfg.MaxHosts).
			Int("skipped", skipped).
			Msg("host cap reached; remaining hosts not probed")
	}

	results := make(chan indexedRecord, len(admitted))
	collected := make(chan []indexedRecord, 1)
	go func() {
		var out []indexedRecord
		for r := range results {
			out = append(out, r)
		}
		collected <- out
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	start := time.Now()
	for i, host := range admitted {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			hctx, cancel := context.WithTimeout(gctx, s.cfg.HostTimeout)
			defer cancel()

			rec := s.prober.Probe(hctx, host)
			if ctx.Err() != nil {
				s.log.Debug().Str("host", host.ComputerName()).Msg("probe cancelled; record dropped")
				return nil
			}
			results <- indexedRecord{index: i, record: rec}
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	out := <-collected

	sort.Slice(out, func(a, b int) bool { return out[a].index < out[b].index })
	records := make([]models.HostPostureRecord, len(out))
	for i, r := range out {
		records[i] = r.record
	}

	s.log.Info().
		Int("admitted", len(admitted)).
		Int("recorded", len(records)).
		Dur("elapsed", time.Since(start)).
		Msg("host probing finished")

	return records, ctx.Err()
}
