package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/database"
)

const recordColumns = `r.id, r.person_id, r.person_kind, r.reference_code, r.display_name, r.day, r.session_id, r.check_in_ms, r.check_out_ms, r.status, r.method, r.confidence`

// AttendanceStore keeps one record per person per day. Writes are
// serialized by the Worker, and the unique key guards check-in.
type AttendanceStore struct {
	db     *sql.DB
	writer *Worker
}

func NewAttendanceStore(db *sql.DB, writer *Worker) *AttendanceStore {
	return &AttendanceStore{db: db, writer: writer}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner, extra ...any) (*database.AttendanceRecord, error) {
	var (
		rec        database.AttendanceRecord
		kind       string
		sessionID  sql.NullInt64
		checkInMs  int64
		checkOutMs sql.NullInt64
	)
	dest := append([]any{
		&rec.ID, &rec.Person.PersonID, &kind, &rec.ReferenceCode, &rec.DisplayName, &rec.Day, &sessionID,
		&checkInMs, &checkOutMs, &rec.Status, &rec.Method, &rec.Confidence,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	rec.Person.Kind = database.PersonKind(kind)
	rec.CheckIn = fromMillis(checkInMs)
	if sessionID.Valid {
		id := sessionID.Int64
		rec.SessionID = &id
	}
	if checkOutMs.Valid {
		t := fromMillis(checkOutMs.Int64)
		rec.CheckOut = &t
	}
	return &rec, nil
}

func (s *AttendanceStore) LatestRecord(ctx context.Context, person database.PersonKey, day string) (*database.AttendanceRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, `
SELECT `+recordColumns+`
FROM attendance_records r
WHERE r.person_kind = ? AND r.person_id = ? AND r.day = ?
ORDER BY r.check_in_ms DESC
LIMIT 1;
`, string(person.Kind), person.PersonID, day))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LatestRecord: %w", err)
	}
	return rec, nil
}

func (s *AttendanceStore) CheckIn(ctx context.Context, rec database.AttendanceRecord) (*database.AttendanceRecord, error) {
	var sessionID any
	if rec.SessionID != nil {
		sessionID = *rec.SessionID
	}

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO attendance_records(person_id, person_kind, reference_code, display_name, day, session_id, check_in_ms, status, method, confidence)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(person_kind, person_id, day) DO NOTHING;
`,
			rec.Person.PersonID, string(rec.Person.Kind), rec.ReferenceCode, rec.DisplayName, rec.Day, sessionID,
			toMillis(rec.CheckIn), rec.Status, rec.Method, rec.Confidence,
		)
		if err != nil {
			return fmt.Errorf("CheckIn insert: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return database.ErrRecordExists
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("CheckIn id: %w", err)
		}
		rec.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	rec.CheckIn = fromMillis(toMillis(rec.CheckIn))
	rec.CheckOut = nil
	return &rec, nil
}

func (s *AttendanceStore) CheckOut(ctx context.Context, person database.PersonKey, day string, at time.Time) (*database.AttendanceRecord, error) {
	var stored *database.AttendanceRecord
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE attendance_records SET check_out_ms = ?
WHERE person_kind = ? AND person_id = ? AND day = ? AND check_out_ms IS NULL;
`, toMillis(at), string(person.Kind), person.PersonID, day)
		if err != nil {
			return fmt.Errorf("CheckOut update: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return database.ErrNoOpenRecord
		}

		stored, err = scanRecord(tx.QueryRowContext(ctx, `
SELECT `+recordColumns+`
FROM attendance_records r
WHERE r.person_kind = ? AND r.person_id = ? AND r.day = ?;
`, string(person.Kind), person.PersonID, day))
		if err != nil {
			return fmt.Errorf("CheckOut reload: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *AttendanceStore) RecentActivity(ctx context.Context, day string, limit int) ([]database.ActivityEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+recordColumns+`,
       COALESCE(NULLIF(r.reference_code, ''), p.reference_code, ''),
       COALESCE(NULLIF(r.display_name, ''), p.display_name, '')
FROM attendance_records r
LEFT JOIN persons p ON p.id = r.person_id AND p.kind = r.person_kind
WHERE r.day = ?
ORDER BY COALESCE(r.check_out_ms, r.check_in_ms) DESC, r.id DESC
LIMIT ?;
`, day, limit)
	if err != nil {
		return nil, fmt.Errorf("RecentActivity query: %w", err)
	}
	defer rows.Close()

	var out []database.ActivityEntry
	for rows.Next() {
		var entry database.ActivityEntry
		rec, err := scanRecord(rows, &entry.ReferenceCode, &entry.DisplayName)
		if err != nil {
			return nil, fmt.Errorf("RecentActivity scan: %w", err)
		}
		entry.Record = *rec
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("RecentActivity rows: %w", err)
	}
	return out, nil
}
