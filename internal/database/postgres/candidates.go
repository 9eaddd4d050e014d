package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance-engine/internal/database"
)

// CandidateRepository provides PostgreSQL-backed access to enrolled templates
type CandidateRepository struct {
	pool *Pool
}

// NewCandidateRepository creates a new candidate repository
func NewCandidateRepository(pool *Pool) *CandidateRepository {
	return &CandidateRepository{pool: pool}
}

// ListCandidates returns active persons in scope with at least one sample.
// Test persons are listed in every scope.
func (r *CandidateRepository) ListCandidates(ctx context.Context, scope database.Scope) ([]database.EnrolledTemplate, error) {
	query := `
		SELECT p.id, p.kind, p.reference_code, p.display_name, p.option_id, p.year_level,
		       p.fingerprint_id, s.path
		FROM persons p
		JOIN person_samples s ON s.person_id = p.id
		WHERE p.status = 'active'
		  AND (p.kind = 'test' OR (($1 = 0 OR p.option_id = $1) AND ($2 = '' OR p.year_level = $2)))
		ORDER BY CASE p.kind WHEN 'regular' THEN 0 ELSE 1 END, p.id, s.position
	`

	rows, err := r.pool.Query(ctx, query, scope.OptionID, scope.YearLevel)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var out []database.EnrolledTemplate
	for rows.Next() {
		var (
			t    database.EnrolledTemplate
			fp   sql.NullInt32
			path string
		)
		if err := rows.Scan(&t.PersonID, &t.Kind, &t.ReferenceCode, &t.DisplayName, &t.OptionID, &t.YearLevel, &fp, &path); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if n := len(out); n > 0 && out[n-1].Key() == t.Key() {
			out[n-1].Samples = append(out[n-1].Samples, path)
			continue
		}
		if fp.Valid {
			id := int(fp.Int32)
			t.FingerprintID = &id
		}
		t.Samples = []string{path}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}

// FindByFingerprint returns the active person enrolled under the sensor id, or nil
func (r *CandidateRepository) FindByFingerprint(ctx context.Context, fingerprintID int) (*database.EnrolledTemplate, error) {
	query := `
		SELECT id, kind, reference_code, display_name, option_id, year_level
		FROM persons
		WHERE fingerprint_id = $1 AND fingerprint_status = 'enrolled' AND status = 'active'
	`

	var t database.EnrolledTemplate
	err := r.pool.QueryRow(ctx, query, fingerprintID).Scan(
		&t.PersonID, &t.Kind, &t.ReferenceCode, &t.DisplayName, &t.OptionID, &t.YearLevel,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by fingerprint: %w", err)
	}
	id := fingerprintID
	t.FingerprintID = &id
	return &t, nil
}

// AssignFingerprint stores the sensor id on the person and marks them enrolled
func (r *CandidateRepository) AssignFingerprint(ctx context.Context, person database.PersonKey, fingerprintID int) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE persons SET fingerprint_id = $1, fingerprint_status = 'enrolled'
		WHERE id = $2 AND kind = $3
	`, fingerprintID, person.PersonID, person.Kind)
	if err != nil {
		return fmt.Errorf("assign fingerprint: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return database.ErrNotFound
	}
	return nil
}
