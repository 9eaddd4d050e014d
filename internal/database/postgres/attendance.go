package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/database"
)

const attendanceColumns = `id, person_id, person_kind, reference_code, display_name, day::text, session_id, check_in, check_out, status, method, confidence`

// AttendanceRepository provides PostgreSQL-backed attendance storage.
// The (person_kind, person_id, day) unique constraint makes check-in atomic
// and the conditional UPDATE makes check-out atomic.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new attendance repository
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner, extra ...any) (*database.AttendanceRecord, error) {
	var (
		rec       database.AttendanceRecord
		sessionID sql.NullInt64
		checkOut  sql.NullTime
	)
	dest := []any{
		&rec.ID, &rec.Person.PersonID, &rec.Person.Kind, &rec.ReferenceCode, &rec.DisplayName, &rec.Day, &sessionID,
		&rec.CheckIn, &checkOut, &rec.Status, &rec.Method, &rec.Confidence,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if sessionID.Valid {
		id := sessionID.Int64
		rec.SessionID = &id
	}
	if checkOut.Valid {
		t := checkOut.Time
		rec.CheckOut = &t
	}
	return &rec, nil
}

// LatestRecord returns the person's record for the day, or nil
func (r *AttendanceRepository) LatestRecord(ctx context.Context, person database.PersonKey, day string) (*database.AttendanceRecord, error) {
	query := `SELECT ` + attendanceColumns + `
		FROM attendance_records
		WHERE person_kind = $1 AND person_id = $2 AND day = $3
		ORDER BY check_in DESC
		LIMIT 1`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, person.Kind, person.PersonID, day))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest attendance record: %w", err)
	}
	return rec, nil
}

// CheckIn inserts an open record, returning ErrRecordExists on conflict
func (r *AttendanceRepository) CheckIn(ctx context.Context, rec database.AttendanceRecord) (*database.AttendanceRecord, error) {
	query := `
		INSERT INTO attendance_records (person_id, person_kind, reference_code, display_name, day, session_id, check_in, status, method, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (person_kind, person_id, day) DO NOTHING
		RETURNING ` + attendanceColumns

	stored, err := scanRecord(r.pool.QueryRow(ctx, query,
		rec.Person.PersonID, rec.Person.Kind, rec.ReferenceCode, rec.DisplayName, rec.Day, rec.SessionID,
		rec.CheckIn, rec.Status, rec.Method, rec.Confidence,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrRecordExists
	}
	if err != nil {
		return nil, fmt.Errorf("check in: %w", err)
	}
	return stored, nil
}

// CheckOut closes the open record, returning ErrNoOpenRecord when there is none
func (r *AttendanceRepository) CheckOut(ctx context.Context, person database.PersonKey, day string, at time.Time) (*database.AttendanceRecord, error) {
	query := `
		UPDATE attendance_records SET check_out = $4
		WHERE person_kind = $1 AND person_id = $2 AND day = $3 AND check_out IS NULL
		RETURNING ` + attendanceColumns

	stored, err := scanRecord(r.pool.QueryRow(ctx, query, person.Kind, person.PersonID, day, at))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNoOpenRecord
	}
	if err != nil {
		return nil, fmt.Errorf("check out: %w", err)
	}
	return stored, nil
}

// RecentActivity returns the day's records ordered by their last event.
// Identity comes from the record, falling back to persons for rows written
// before records carried it.
func (r *AttendanceRepository) RecentActivity(ctx context.Context, day string, limit int) ([]database.ActivityEntry, error) {
	query := `
		SELECT r.id, r.person_id, r.person_kind, r.reference_code, r.display_name, r.day::text, r.session_id,
		       r.check_in, r.check_out, r.status, r.method, r.confidence,
		       COALESCE(NULLIF(r.reference_code, ''), p.reference_code, ''),
		       COALESCE(NULLIF(r.display_name, ''), p.display_name, '')
		FROM attendance_records r
		LEFT JOIN persons p ON p.id = r.person_id AND p.kind = r.person_kind
		WHERE r.day = $1
		ORDER BY COALESCE(r.check_out, r.check_in) DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, day, limit)
	if err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	defer rows.Close()

	var out []database.ActivityEntry
	for rows.Next() {
		var entry database.ActivityEntry
		rec, err := scanRecord(rows, &entry.ReferenceCode, &entry.DisplayName)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		entry.Record = *rec
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return out, nil
}
