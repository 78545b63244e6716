// Package store is the Postgres catalog behind the pipeline: sessions,
// runs, per-cluster stage checkpoints, idempotency claims, the artifact
// index, and the persisted stitch tables.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mohammad-safakhou/spikeline/config"
	"github.com/mohammad-safakhou/spikeline/internal/stitch"
)

type Store struct {
	DB *sql.DB
}

// Checkpoint statuses for per-cluster stage progress.
const (
	CheckpointStatusPending   = "pending"
	CheckpointStatusCompleted = "completed"
	CheckpointStatusFailed    = "failed"
)

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Checkpoint captures durable per-cluster progress for one stage.
type Checkpoint struct {
	SessionID   string
	Stage       string
	RecordingID string
	ClusterID   int64
	Status      string
	Fingerprint string
	Error       string
	UpdatedAt   time.Time
}

// Artifact is one entry of the artifact index.
type Artifact struct {
	SessionID   string
	RecordingID string
	ClusterID   int64 // -1 for recording-level artifacts
	Kind        string
	Path        string
	Fingerprint string
}

// BuildDSN constructs a Postgres DSN from configuration.
func BuildDSN(p config.PostgresConfig) (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres configuration incomplete: host/dbname required")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// Open connects to Postgres and pings it.
func Open(ctx context.Context, p config.PostgresConfig) (*Store, error) {
	dsn, err := BuildDSN(p)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

// EnsureSession upserts a session row and returns its id.
func (s *Store) EnsureSession(ctx context.Context, day, tower string, probe int, recordings []string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO sessions (day, tower, probe, recordings)
VALUES ($1, $2, $3, $4)
ON CONFLICT (day, tower, probe, recordings)
DO UPDATE SET day = EXCLUDED.day
RETURNING id`, day, tower, probe, pq.Array(recordings)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("ensure session: %w", err)
	}
	return id, nil
}

// CreateRun opens a run for one stage of a session, snapshotting the
// curation thresholds with it.
func (s *Store) CreateRun(ctx context.Context, sessionID, stage string, curation config.CurationConfig) (string, error) {
	snapshot, err := json.Marshal(curation)
	if err != nil {
		return "", err
	}
	var id string
	err = s.DB.QueryRowContext(ctx, `
INSERT INTO runs (session_id, stage, status, curation)
VALUES ($1, $2, $3, $4)
RETURNING id`, sessionID, stage, RunStatusRunning, snapshot).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

// FinishRun closes a run.
func (s *Store) FinishRun(ctx context.Context, runID, status string, errMsg *string) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE runs SET status = $2, error = $3, finished_at = now() WHERE id = $1`, runID, status, errMsg)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// ClaimIdempotency registers a processed work unit. It returns false when
// the key was already claimed.
func (s *Store) ClaimIdempotency(ctx context.Context, scope, key string) (bool, error) {
	var inserted bool
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO idempotency_keys (scope, key) VALUES ($1, $2)
ON CONFLICT DO NOTHING RETURNING true`, scope, key).Scan(&inserted)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim idempotency: %w", err)
	}
	return inserted, nil
}

// UpsertCheckpoint records per-cluster stage progress.
func (s *Store) UpsertCheckpoint(ctx context.Context, cp Checkpoint) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO checkpoints (session_id, stage, recording_id, cluster_id, status, fingerprint, error, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (session_id, stage, recording_id, cluster_id)
DO UPDATE SET status = EXCLUDED.status, fingerprint = EXCLUDED.fingerprint, error = EXCLUDED.error, updated_at = now()`,
		cp.SessionID, cp.Stage, cp.RecordingID, cp.ClusterID, cp.Status, cp.Fingerprint, cp.Error)
	if err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint loads one checkpoint.
func (s *Store) GetCheckpoint(ctx context.Context, sessionID, stage, recordingID string, clusterID int64) (Checkpoint, bool, error) {
	cp := Checkpoint{SessionID: sessionID, Stage: stage, RecordingID: recordingID, ClusterID: clusterID}
	err := s.DB.QueryRowContext(ctx, `
SELECT status, fingerprint, COALESCE(error, ''), updated_at
FROM checkpoints
WHERE session_id = $1 AND stage = $2 AND recording_id = $3 AND cluster_id = $4`,
		sessionID, stage, recordingID, clusterID).
		Scan(&cp.Status, &cp.Fingerprint, &cp.Error, &cp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, fmt.Errorf("get checkpoint: %w", err)
	}
	return cp, true, nil
}

// CompletedFingerprint reports whether a completed checkpoint with the given
// input fingerprint exists, in which case the stage skips the cluster.
func (s *Store) CompletedFingerprint(ctx context.Context, sessionID, stage, recordingID string, clusterID int64, fingerprint string) (bool, error) {
	cp, ok, err := s.GetCheckpoint(ctx, sessionID, stage, recordingID, clusterID)
	if err != nil || !ok {
		return false, err
	}
	return cp.Status == CheckpointStatusCompleted && cp.Fingerprint == fingerprint, nil
}

// RegisterArtifact records a produced artifact in the index.
func (s *Store) RegisterArtifact(ctx context.Context, a Artifact) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO artifacts (session_id, recording_id, cluster_id, kind, path, fingerprint, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (session_id, recording_id, cluster_id, kind)
DO UPDATE SET path = EXCLUDED.path, fingerprint = EXCLUDED.fingerprint, created_at = now()`,
		a.SessionID, a.RecordingID, a.ClusterID, a.Kind, a.Path, a.Fingerprint)
	if err != nil {
		return fmt.Errorf("register artifact: %w", err)
	}
	return nil
}

// SaveStitchTable persists a stitch table and its rows. Row entries follow
// the persisted convention: 1-indexed cluster ids, 0 for not-found.
func (s *Store) SaveStitchTable(ctx context.Context, sessionID string, scope string, table *stitch.Table) (string, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin stitch tx: %w", err)
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `
INSERT INTO stitch_tables (session_id, scope, recordings)
VALUES ($1, $2, $3) RETURNING id`, sessionID, scope, pq.Array(table.Recordings)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert stitch table: %w", err)
	}

	for i, row := range table.Rows {
		persisted := make([]int64, len(row))
		for j, v := range row {
			if v == stitch.NotFound {
				persisted[j] = 0
			} else {
				persisted[j] = v + 1
			}
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO stitch_rows (table_id, row_index, entries)
VALUES ($1, $2, $3)`, id, i, pq.Array(persisted)); err != nil {
			return "", fmt.Errorf("insert stitch row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit stitch tx: %w", err)
	}
	return id, nil
}
