package history

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/developermelih/mk-proxy-generator/internal/model"
)

// setupTestDB creates a temporary history database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, dbFileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "nonexistent-db")
		opts := Options{
			CreateIfNotExists: false,
			EnableWAL:         true,
		}

		_, err := Open(dbDir, opts)
		if err == nil {
			t.Fatal("expected error when CreateIfNotExists=false and database does not exist")
		}
		if !strings.Contains(err.Error(), "not found") {
			t.Errorf("expected error to mention missing database, got %q", err.Error())
		}
	})

	t.Run("CreateIfNotExists=false opens an existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := t.TempDir()
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		_ = db.Close()

		db2, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen existing database: %v", err)
		}
		defer db2.Close()
	})
}

// TestRecordAndRecent tests the append and read-back cycle.
func TestRecordAndRecent(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	records := []model.RotationRecord{
		{InstanceID: 0, OldIP: "1.1.1.1", NewIP: "2.2.2.2", Country: "DE", Trigger: model.TriggerManual},
		{InstanceID: 1, OldIP: "2.2.2.2", NewIP: "3.3.3.3", Country: "NL", Trigger: model.TriggerScheduled},
		{InstanceID: 2, OldIP: "3.3.3.3", NewIP: "4.4.4.4", Country: "FR", Trigger: model.TriggerManual},
	}
	for _, rec := range records {
		if err := db.Record(ctx, rec); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := db.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Recent() returned %d records, want 3", len(got))
	}

	// Newest first.
	if got[0].InstanceID != 2 || got[0].NewIP != "4.4.4.4" {
		t.Errorf("newest record = %+v, want the last inserted", got[0])
	}
	if got[2].InstanceID != 0 || got[2].OldIP != "1.1.1.1" {
		t.Errorf("oldest record = %+v, want the first inserted", got[2])
	}
	if got[1].Trigger != model.TriggerScheduled {
		t.Errorf("trigger = %q, want %q", got[1].Trigger, model.TriggerScheduled)
	}
	if got[0].RotatedAt.IsZero() {
		t.Error("RotatedAt was not filled in")
	}
}

// TestRecentLimit tests that the limit caps the result set.
func TestRecentLimit(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rec := model.RotationRecord{
			InstanceID: i,
			NewIP:      "10.0.0.1",
			Trigger:    model.TriggerManual,
		}
		if err := db.Record(ctx, rec); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	got, err := db.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent(2) returned %d records, want 2", len(got))
	}
	if got[0].InstanceID != 4 || got[1].InstanceID != 3 {
		t.Errorf("Recent(2) = instances %d,%d, want 4,3", got[0].InstanceID, got[1].InstanceID)
	}
}

// TestRecentEmpty tests reading from a fresh database.
func TestRecentEmpty(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)

	got, err := db.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Recent() on empty database returned %d records", len(got))
	}
}

// TestCountByTrigger tests the per-trigger aggregate.
func TestCountByTrigger(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	triggers := []model.RotationTrigger{
		model.TriggerManual,
		model.TriggerManual,
		model.TriggerScheduled,
	}
	for i, trigger := range triggers {
		rec := model.RotationRecord{InstanceID: i, NewIP: "10.0.0.1", Trigger: trigger}
		if err := db.Record(ctx, rec); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	counts, err := db.CountByTrigger(ctx)
	if err != nil {
		t.Fatalf("CountByTrigger() error = %v", err)
	}
	if counts[model.TriggerManual] != 2 {
		t.Errorf("manual count = %d, want 2", counts[model.TriggerManual])
	}
	if counts[model.TriggerScheduled] != 1 {
		t.Errorf("scheduled count = %d, want 1", counts[model.TriggerScheduled])
	}
}

// TestRecordKeepsExplicitTimestamp tests that a caller-provided
// RotatedAt survives the round trip.
func TestRecordKeepsExplicitTimestamp(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()

	at := time.Date(2026, 2, 14, 10, 30, 0, 0, time.UTC)
	rec := model.RotationRecord{
		InstanceID: 0,
		NewIP:      "5.5.5.5",
		Trigger:    model.TriggerManual,
		RotatedAt:  at,
	}
	if err := db.Record(ctx, rec); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got, err := db.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Recent() returned %d records, want 1", len(got))
	}
	if !got[0].RotatedAt.Equal(at) {
		t.Errorf("RotatedAt = %v, want %v", got[0].RotatedAt, at)
	}
}
