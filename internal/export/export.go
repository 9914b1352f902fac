// Package export writes a finished Snapshot to its configured sinks: a JSON
// file, CSV tables, a SQLite history database, a NATS subject and an S3
// bucket. Sinks never modify the snapshot.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

// Exporter writes one snapshot to one destination.
type Exporter interface {
	// Name identifies the sink in logs and errors.
	Name() string

	// Export writes snap. It must not modify it.
	Export(ctx context.Context, snap *models.Snapshot) error
}

// Run hands snap to every exporter in order. A failing sink does not stop
// the others; the returned error joins every failure.
func Run(ctx context.Context, snap *models.Snapshot, exporters []Exporter, log zerolog.Logger) error {
	var errs []error
	for _, ex := range exporters {
		start := time.Now()
		if err := ex.Export(ctx, snap); err != nil {
			log.Error().Err(err).Str("sink", ex.Name()).Msg("export failed")
			errs = append(errs, fmt.Errorf("%s: %w", ex.Name(), err))
			continue
		}
		log.Info().Str("sink", ex.Name()).Dur("elapsed", time.Since(start)).Msg("snapshot exported")
	}
	return errors.Join(errs...)
}

// Summary is the compact form of a snapshot published to message buses and
// listed by the history store.
type Summary struct {
	SnapshotID  string                `json:"SnapshotID"`
	GeneratedAt models.Timestamp      `json:"GeneratedAt"`
	Domain      string                `json:"Domain"`
	OverallRisk models.OverallRisk    `json:"OverallRisk"`
	Findings    models.FindingSummary `json:"Summary"`
	Statistics  map[string]int        `json:"Statistics"`
}

// Summarize returns the Summary of snap.
func Summarize(snap *models.Snapshot) Summary {
	stats := snap.Statistics
	if stats == nil {
		stats = map[string]int{}
	}
	return Summary{
		SnapshotID:  snap.SnapshotID,
		GeneratedAt: snap.GeneratedAt,
		Domain:      snap.Domain,
		OverallRisk: snap.OverallRisk,
		Findings:    snap.Summary,
		Statistics:  stats,
	}
}
