package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/mohammad-safakhou/spikeline/config"
	"github.com/mohammad-safakhou/spikeline/internal/stitch"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{DB: db}, mock
}

func TestBuildDSN(t *testing.T) {
	dsn, err := BuildDSN(config.PostgresConfig{URL: "postgres://x/y"})
	if err != nil || dsn != "postgres://x/y" {
		t.Fatalf("url passthrough = %q %v", dsn, err)
	}

	dsn, err = BuildDSN(config.PostgresConfig{Host: "db", DBName: "spikes", User: "u", Password: "p"})
	if err != nil {
		t.Fatalf("BuildDSN: %v", err)
	}
	if dsn != "postgres://u:p@db:5432/spikes?sslmode=disable" {
		t.Fatalf("dsn = %q", dsn)
	}

	if _, err := BuildDSN(config.PostgresConfig{Host: "db"}); err == nil {
		t.Fatalf("expected error without dbname")
	}
}

func TestEnsureSession(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`INSERT INTO sessions`).
		WithArgs("240101", "towerA", 1, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sess-1"))

	id, err := s.EnsureSession(context.Background(), "240101", "towerA", 1, []string{"007", "009"})
	if err != nil {
		t.Fatalf("EnsureSession: %v", err)
	}
	if id != "sess-1" {
		t.Fatalf("id = %q", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestClaimIdempotency(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`INSERT INTO idempotency_keys`).
		WithArgs("isolation", "key-1").
		WillReturnRows(sqlmock.NewRows([]string{"true"}).AddRow(true))
	mock.ExpectQuery(`INSERT INTO idempotency_keys`).
		WithArgs("isolation", "key-1").
		WillReturnRows(sqlmock.NewRows([]string{"true"}))

	claimed, err := s.ClaimIdempotency(context.Background(), "isolation", "key-1")
	if err != nil || !claimed {
		t.Fatalf("first claim = %v %v", claimed, err)
	}
	claimed, err = s.ClaimIdempotency(context.Background(), "isolation", "key-1")
	if err != nil {
		t.Fatalf("second claim err: %v", err)
	}
	if claimed {
		t.Fatalf("second claim must report already-claimed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertAndGetCheckpoint(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO checkpoints`).
		WithArgs("sess-1", "isolation", "007", int64(3), CheckpointStatusCompleted, "fp", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpsertCheckpoint(context.Background(), Checkpoint{
		SessionID:   "sess-1",
		Stage:       "isolation",
		RecordingID: "007",
		ClusterID:   3,
		Status:      CheckpointStatusCompleted,
		Fingerprint: "fp",
	})
	if err != nil {
		t.Fatalf("UpsertCheckpoint: %v", err)
	}

	mock.ExpectQuery(`SELECT status, fingerprint`).
		WithArgs("sess-1", "isolation", "007", int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "fingerprint", "error", "updated_at"}).
			AddRow(CheckpointStatusCompleted, "fp", "oops", sampleTime()))

	cp, ok, err := s.GetCheckpoint(context.Background(), "sess-1", "isolation", "007", 3)
	if err != nil || !ok {
		t.Fatalf("GetCheckpoint = %v %v", ok, err)
	}
	if cp.Status != CheckpointStatusCompleted || cp.Fingerprint != "fp" || cp.Error != "oops" {
		t.Fatalf("checkpoint = %+v", cp)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func sampleTime() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func TestCompletedFingerprint(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"status", "fingerprint", "error", "updated_at"}).
		AddRow(CheckpointStatusCompleted, "fp", "", sampleTime())
	mock.ExpectQuery(`SELECT status, fingerprint`).
		WithArgs("sess-1", "isolation", "007", int64(3)).
		WillReturnRows(rows)

	ok, err := s.CompletedFingerprint(context.Background(), "sess-1", "isolation", "007", 3, "fp")
	if err != nil || !ok {
		t.Fatalf("CompletedFingerprint = %v %v", ok, err)
	}

	rows2 := sqlmock.NewRows([]string{"status", "fingerprint", "error", "updated_at"}).
		AddRow(CheckpointStatusCompleted, "other", "", sampleTime())
	mock.ExpectQuery(`SELECT status, fingerprint`).
		WithArgs("sess-1", "isolation", "007", int64(3)).
		WillReturnRows(rows2)

	ok, err = s.CompletedFingerprint(context.Background(), "sess-1", "isolation", "007", 3, "fp")
	if err != nil {
		t.Fatalf("CompletedFingerprint: %v", err)
	}
	if ok {
		t.Fatalf("fingerprint mismatch must not skip")
	}
}

func TestSaveStitchTable(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO stitch_tables`).
		WithArgs("sess-1", "Good", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("tbl-1"))
	mock.ExpectExec(`INSERT INTO stitch_rows`).
		WithArgs("tbl-1", 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	table := &stitch.Table{
		Recordings: []string{"007", "009"},
		Rows:       []stitch.Row{{2, stitch.NotFound}},
	}
	id, err := s.SaveStitchTable(context.Background(), "sess-1", "Good", table)
	if err != nil {
		t.Fatalf("SaveStitchTable: %v", err)
	}
	if id != "tbl-1" {
		t.Fatalf("id = %q", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateAndFinishRun(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`INSERT INTO runs`).
		WithArgs("sess-1", "extract", RunStatusRunning, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("run-1"))
	mock.ExpectExec(`UPDATE runs SET status`).
		WithArgs("run-1", RunStatusCompleted, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := s.CreateRun(context.Background(), "sess-1", "extract", config.CurationConfig{LRatioThreshold: 0.2})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := s.FinishRun(context.Background(), id, RunStatusCompleted, nil); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
