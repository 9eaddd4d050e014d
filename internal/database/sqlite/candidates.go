package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance-engine/internal/database"
)

// CandidateStore reads enrollments and links sensor ids to persons.
type CandidateStore struct {
	db     *sql.DB
	writer *Worker
}

func NewCandidateStore(db *sql.DB, writer *Worker) *CandidateStore {
	return &CandidateStore{db: db, writer: writer}
}

func (s *CandidateStore) ListCandidates(ctx context.Context, scope database.Scope) ([]database.EnrolledTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT p.id, p.kind, p.reference_code, p.display_name, p.option_id, p.year_level,
       p.fingerprint_id, sm.path
FROM persons p
JOIN person_samples sm ON sm.person_id = p.id
WHERE p.status = 'active'
  AND (p.kind = 'test' OR ((? = 0 OR p.option_id = ?) AND (? = '' OR p.year_level = ?)))
ORDER BY CASE p.kind WHEN 'regular' THEN 0 ELSE 1 END, p.id, sm.position;
`, scope.OptionID, scope.OptionID, scope.YearLevel, scope.YearLevel)
	if err != nil {
		return nil, fmt.Errorf("ListCandidates query: %w", err)
	}
	defer rows.Close()

	var out []database.EnrolledTemplate
	for rows.Next() {
		var (
			t    database.EnrolledTemplate
			kind string
			fp   sql.NullInt64
			path string
		)
		if err := rows.Scan(&t.PersonID, &kind, &t.ReferenceCode, &t.DisplayName, &t.OptionID, &t.YearLevel, &fp, &path); err != nil {
			return nil, fmt.Errorf("ListCandidates scan: %w", err)
		}
		t.Kind = database.PersonKind(kind)
		if n := len(out); n > 0 && out[n-1].Key() == t.Key() {
			out[n-1].Samples = append(out[n-1].Samples, path)
			continue
		}
		if fp.Valid {
			id := int(fp.Int64)
			t.FingerprintID = &id
		}
		t.Samples = []string{path}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListCandidates rows: %w", err)
	}
	return out, nil
}

func (s *CandidateStore) FindByFingerprint(ctx context.Context, fingerprintID int) (*database.EnrolledTemplate, error) {
	var (
		t    database.EnrolledTemplate
		kind string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, kind, reference_code, display_name, option_id, year_level
FROM persons
WHERE fingerprint_id = ? AND fingerprint_status = 'enrolled' AND status = 'active';
`, fingerprintID).Scan(&t.PersonID, &kind, &t.ReferenceCode, &t.DisplayName, &t.OptionID, &t.YearLevel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindByFingerprint: %w", err)
	}
	t.Kind = database.PersonKind(kind)
	id := fingerprintID
	t.FingerprintID = &id
	return &t, nil
}

func (s *CandidateStore) AssignFingerprint(ctx context.Context, person database.PersonKey, fingerprintID int) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE persons SET fingerprint_id = ?, fingerprint_status = 'enrolled'
WHERE id = ? AND kind = ?;
`, fingerprintID, person.PersonID, string(person.Kind))
		if err != nil {
			return fmt.Errorf("AssignFingerprint: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return database.ErrNotFound
		}
		return nil
	})
}
