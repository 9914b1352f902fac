package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

// ErrSnapshotNotFound is returned by SQLiteStore.Get for an unknown ID.
var ErrSnapshotNotFound = errors.New("snapshot not found")

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id                TEXT PRIMARY KEY,
	generated_at      TEXT    NOT NULL,
	domain            TEXT    NOT NULL,
	risk_score        INTEGER NOT NULL,
	risk_level        TEXT    NOT NULL,
	total_findings    INTEGER NOT NULL,
	critical_findings INTEGER NOT NULL,
	high_findings     INTEGER NOT NULL,
	data              JSON    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_generated_at ON snapshots(generated_at);

CREATE TABLE IF NOT EXISTS findings (
	snapshot_id TEXT NOT NULL,
	finding_id  TEXT NOT NULL,
	rule_id     TEXT NOT NULL,
	subject     TEXT NOT NULL,
	severity    TEXT NOT NULL,
	FOREIGN KEY (snapshot_id) REFERENCES snapshots(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_findings_snapshot ON findings(snapshot_id);
`

// HistoryEntry is one stored snapshot as listed by SQLiteStore.List.
type HistoryEntry struct {
	SnapshotID       string
	GeneratedAt      time.Time
	Domain           string
	RiskScore        int
	RiskLevel        models.RiskLevel
	TotalFindings    int
	CriticalFindings int
	HighFindings     int
}

// FindingRef identifies a finding across snapshots.
type FindingRef struct {
	ID       string
	RuleID   string
	Subject  string
	Severity models.Severity
}

// FindingDiff lists findings that appeared or disappeared between two
// snapshots.
type FindingDiff struct {
	Added    []FindingRef
	Resolved []FindingRef
}

// SQLiteStore keeps snapshot history in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenSQLite opens (creating if needed) the history database at path.
// ":memory:" opens a private in-memory database.
func OpenSQLite(ctx context.Context, path string, log zerolog.Logger) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := ensureDirectory(path); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database %s: %w", path, err)
	}
	// One connection: SQLite has a single writer and ":memory:" is per
	// connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect history database %s: %w", path, err)
	}

	s := &SQLiteStore{db: db, log: log.With().Str("component", "history").Logger()}
	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			s.log.Warn().Err(err).Msg("could not enable WAL mode")
		}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return s, nil
}

func ensureDirectory(path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Name() string { return "sqlite" }

// Export stores snap and its findings. Storing the same snapshot ID again
// replaces the earlier copy.
func (s *SQLiteStore) Export(ctx context.Context, snap *models.Snapshot) error {
	out := *snap
	out.Normalize()
	data, err := json.Marshal(&out)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM findings WHERE snapshot_id = ?`, snap.SnapshotID); err != nil {
		return fmt.Errorf("clear findings: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshots
			(id, generated_at, domain, risk_score, risk_level, total_findings, critical_findings, high_findings, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.SnapshotID,
		snap.GeneratedAt.UTC().Format(time.RFC3339),
		snap.Domain,
		snap.OverallRisk.Score,
		string(snap.OverallRisk.Level),
		snap.Summary.TotalFindings,
		snap.Summary.CriticalFindings,
		snap.Summary.HighFindings,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO findings (snapshot_id, finding_id, rule_id, subject, severity)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare findings insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range snap.Findings {
		if _, err := stmt.ExecContext(ctx, snap.SnapshotID, f.ID, f.RuleID, f.Subject, string(f.Severity)); err != nil {
			return fmt.Errorf("insert finding %s: %w", f.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.log.Debug().Str("snapshot_id", snap.SnapshotID).Int("findings", len(snap.Findings)).Msg("snapshot stored")
	return nil
}

// List returns up to limit stored snapshots, newest first. limit <= 0 means
// no limit.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, generated_at, domain, risk_score, risk_level, total_findings, critical_findings, high_findings
		FROM snapshots
		ORDER BY generated_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		var (
			e         HistoryEntry
			generated string
			level     string
		)
		if err := rows.Scan(&e.SnapshotID, &generated, &e.Domain, &e.RiskScore, &level,
			&e.TotalFindings, &e.CriticalFindings, &e.HighFindings); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		e.RiskLevel = models.RiskLevel(level)
		if t, err := time.Parse(time.RFC3339, generated); err == nil {
			e.GeneratedAt = t
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return entries, nil
}

// Get returns the stored snapshot with the given ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", id, err)
	}
	return DecodeSnapshot([]byte(data))
}

// Diff compares the findings of two stored snapshots by finding ID.
func (s *SQLiteStore) Diff(ctx context.Context, oldID, newID string) (FindingDiff, error) {
	var diff FindingDiff
	var err error
	if diff.Added, err = s.findingsOnlyIn(ctx, newID, oldID); err != nil {
		return FindingDiff{}, err
	}
	if diff.Resolved, err = s.findingsOnlyIn(ctx, oldID, newID); err != nil {
		return FindingDiff{}, err
	}
	return diff, nil
}

func (s *SQLiteStore) findingsOnlyIn(ctx context.Context, in, notIn string) ([]FindingRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT finding_id, rule_id, subject, severity FROM findings
		WHERE snapshot_id = ?
		  AND finding_id NOT IN (SELECT finding_id FROM findings WHERE snapshot_id = ?)
		ORDER BY rule_id, subject`, in, notIn)
	if err != nil {
		return nil, fmt.Errorf("diff findings: %w", err)
	}
	defer rows.Close()

	refs := []FindingRef{}
	for rows.Next() {
		var (
			r   FindingRef
			sev string
		)
		if err := rows.Scan(&r.ID, &r.RuleID, &r.Subject, &sev); err != nil {
			return nil, fmt.Errorf("scan finding row: %w", err)
		}
		r.Severity = models.Severity(sev)
		refs = append(refs, r)
	}
	return refs, rows.Err()
}
