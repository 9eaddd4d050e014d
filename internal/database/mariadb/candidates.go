package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance-engine/internal/database"
)

// Regular students keep their samples in the student_photos JSON document,
// test students in four fixed columns.
const candidatesQuery = `
	SELECT 'regular' AS kind, s.id, s.reg_no, CONCAT(u.first_name, ' ', u.last_name),
	       COALESCE(s.option_id, 0), COALESCE(s.year_level, ''), s.fingerprint_id,
	       s.student_photos, NULL, NULL, NULL, NULL
	FROM students s
	JOIN users u ON s.user_id = u.id
	WHERE s.status = 'active' AND s.student_photos IS NOT NULL
	  AND (? = 0 OR s.option_id = ?)
	  AND (? = '' OR s.year_level = ?)
	UNION ALL
	SELECT 'test' AS kind, t.id, t.reg_no, CONCAT(t.first_name, ' ', t.last_name),
	       0, '', NULL,
	       NULL, t.face_image_1, t.face_image_2, t.face_image_3, t.face_image_4
	FROM test_students t
	WHERE t.status = 'active'
	ORDER BY kind, id
`

// CandidateRepository reads enrollments from the students and test_students tables
type CandidateRepository struct {
	pool *Pool
}

// NewCandidateRepository creates a new legacy candidate repository
func NewCandidateRepository(pool *Pool) *CandidateRepository {
	return &CandidateRepository{pool: pool}
}

type studentPhotos struct {
	BiometricData struct {
		FaceImages []json.RawMessage `json:"face_images"`
	} `json:"biometric_data"`
}

type faceImage struct {
	ImagePath string `json:"image_path"`
}

// samplePaths extracts image paths from the student_photos document. Entries
// are either plain strings or objects carrying image_path.
func samplePaths(doc []byte) ([]string, error) {
	var photos studentPhotos
	if err := json.Unmarshal(doc, &photos); err != nil {
		return nil, fmt.Errorf("decode student_photos: %w", err)
	}

	var paths []string
	for _, raw := range photos.BiometricData.FaceImages {
		var path string
		if err := json.Unmarshal(raw, &path); err != nil {
			var obj faceImage
			if err := json.Unmarshal(raw, &obj); err != nil {
				continue
			}
			path = obj.ImagePath
		}
		if path != "" {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func nonEmpty(values ...sql.NullString) []string {
	var out []string
	for _, v := range values {
		if v.Valid && v.String != "" {
			out = append(out, v.String)
		}
	}
	return out
}

// ListCandidates returns active students in scope, regular before test.
// Test students carry no class and are listed regardless of scope.
func (r *CandidateRepository) ListCandidates(ctx context.Context, scope database.Scope) ([]database.EnrolledTemplate, error) {
	rows, err := r.pool.db.QueryContext(ctx, candidatesQuery,
		scope.OptionID, scope.OptionID, scope.YearLevel, scope.YearLevel)
	if err != nil {
		return nil, fmt.Errorf("list legacy candidates: %w", err)
	}
	defer rows.Close()

	var out []database.EnrolledTemplate
	for rows.Next() {
		var (
			t              database.EnrolledTemplate
			fp             sql.NullInt64
			photos         []byte
			f1, f2, f3, f4 sql.NullString
		)
		if err := rows.Scan(&t.Kind, &t.PersonID, &t.ReferenceCode, &t.DisplayName,
			&t.OptionID, &t.YearLevel, &fp, &photos, &f1, &f2, &f3, &f4); err != nil {
			return nil, fmt.Errorf("scan legacy candidate: %w", err)
		}

		if t.Kind == database.KindRegular {
			paths, err := samplePaths(photos)
			if err != nil {
				// skip malformed documents
				continue
			}
			t.Samples = paths
		} else {
			t.Samples = nonEmpty(f1, f2, f3, f4)
		}
		if len(t.Samples) == 0 {
			continue
		}
		if fp.Valid {
			id := int(fp.Int64)
			t.FingerprintID = &id
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate legacy candidates: %w", err)
	}
	return out, nil
}

// FindByFingerprint returns the active student enrolled under the sensor id, or nil
func (r *CandidateRepository) FindByFingerprint(ctx context.Context, fingerprintID int) (*database.EnrolledTemplate, error) {
	query := `
		SELECT s.id, s.reg_no, CONCAT(u.first_name, ' ', u.last_name),
		       COALESCE(s.option_id, 0), COALESCE(s.year_level, '')
		FROM students s
		JOIN users u ON s.user_id = u.id
		WHERE s.fingerprint_id = ? AND s.fingerprint_status = 'enrolled' AND s.status = 'active'
		LIMIT 1
	`

	t := database.EnrolledTemplate{Kind: database.KindRegular}
	err := r.pool.db.QueryRowContext(ctx, query, fingerprintID).Scan(
		&t.PersonID, &t.ReferenceCode, &t.DisplayName, &t.OptionID, &t.YearLevel,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find legacy student by fingerprint: %w", err)
	}
	id := fingerprintID
	t.FingerprintID = &id
	return &t, nil
}

// AssignFingerprint marks a regular student as enrolled on the sensor
func (r *CandidateRepository) AssignFingerprint(ctx context.Context, person database.PersonKey, fingerprintID int) error {
	if person.Kind != database.KindRegular {
		return fmt.Errorf("test students have no fingerprint column: %w", database.ErrNotFound)
	}
	result, err := r.pool.db.ExecContext(ctx, `
		UPDATE students SET fingerprint_id = ?, fingerprint_status = 'enrolled'
		WHERE id = ?
	`, fingerprintID, person.PersonID)
	if err != nil {
		return fmt.Errorf("assign legacy fingerprint: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// Attach replaces b's candidate source with the legacy reader over pool.
func Attach(b *database.Backend, pool *Pool) {
	repo := NewCandidateRepository(pool)
	b.Candidates = repo
	b.Assigner = repo
	b.OnClose(pool.Close)
}
