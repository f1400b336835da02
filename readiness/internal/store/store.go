// CLAUDE:SUMMARY Durable per-doctor telemetry rows — sqlite upsert/get with JSON columns for surfaces and samples.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Schema creates the doctor profile table. Applied through dbopen on open.
const Schema = `
CREATE TABLE IF NOT EXISTS doctor_profiles (
	doctor_id  TEXT PRIMARY KEY,
	events     INTEGER NOT NULL DEFAULT 0,
	surfaces   TEXT NOT NULL DEFAULT '{}',
	samples    TEXT NOT NULL DEFAULT '[]',
	last_seen  INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL DEFAULT 0
);
`

// Row is the persisted shape of one doctor profile. Surfaces and Samples
// stay as JSON strings here; the scorer owns their decoded form.
type Row struct {
	DoctorID  string
	Events    int
	Surfaces  string // JSON: surface_id -> event count
	Samples   string // JSON: bounded ring of recent samples
	LastSeen  int64  // unix millis
	UpdatedAt int64
}

// Store wraps the profiles table.
type Store struct {
	DB *sql.DB
}

// New returns a Store over an opened database.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Get returns the row for a doctor, or nil when none exists yet.
func (s *Store) Get(ctx context.Context, doctorID string) (*Row, error) {
	r := &Row{}
	err := s.DB.QueryRowContext(ctx, `
		SELECT doctor_id, events, surfaces, samples, last_seen, updated_at
		FROM doctor_profiles WHERE doctor_id = ?`, doctorID).Scan(
		&r.DoctorID, &r.Events, &r.Surfaces, &r.Samples, &r.LastSeen, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get profile %s: %w", doctorID, err)
	}
	return r, nil
}

// Upsert writes the row, replacing any previous state for the doctor.
func (s *Store) Upsert(ctx context.Context, r *Row) error {
	r.UpdatedAt = time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO doctor_profiles (doctor_id, events, surfaces, samples, last_seen, updated_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(doctor_id) DO UPDATE SET
			events=excluded.events,
			surfaces=excluded.surfaces,
			samples=excluded.samples,
			last_seen=excluded.last_seen,
			updated_at=excluded.updated_at`,
		r.DoctorID, r.Events, r.Surfaces, r.Samples, r.LastSeen, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: upsert profile %s: %w", r.DoctorID, err)
	}
	return nil
}
