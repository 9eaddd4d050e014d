package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/database"
)

// RecognitionLogStore is the append-only recognition audit trail.
type RecognitionLogStore struct {
	db     *sql.DB
	writer *Worker
}

func NewRecognitionLogStore(db *sql.DB, writer *Worker) *RecognitionLogStore {
	return &RecognitionLogStore{db: db, writer: writer}
}

func (s *RecognitionLogStore) AppendRecognition(ctx context.Context, e database.RecognitionLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var matched int
	if e.Matched {
		matched = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO recognition_logs(
  request_id, sample_ref, sample_size, person_id, reference_code, person_kind,
  score, confidence, method, distance, matched, pixel_similarity, size_similarity, detail, created_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			e.RequestID, e.SampleRef, e.SampleSize, nullInt64(e.PersonID), e.ReferenceCode, string(e.PersonKind),
			e.Score, e.Confidence, e.Method, e.Distance, matched,
			nullFloat64(e.PixelSimilarity), nullFloat64(e.SizeSimilarity), e.Detail, toMillis(e.CreatedAt),
		); err != nil {
			return fmt.Errorf("AppendRecognition insert: %w", err)
		}
		return nil
	})
}

func (s *RecognitionLogStore) RecentRecognitions(ctx context.Context, limit int) ([]database.RecognitionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, request_id, sample_ref, sample_size, person_id, reference_code, person_kind,
       score, confidence, method, distance, matched, pixel_similarity, size_similarity, detail, created_at_ms
FROM recognition_logs
ORDER BY id DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("RecentRecognitions query: %w", err)
	}
	defer rows.Close()

	var out []database.RecognitionLogEntry
	for rows.Next() {
		var (
			e         database.RecognitionLogEntry
			kind      string
			personID  sql.NullInt64
			matched   int
			pixel     sql.NullFloat64
			size      sql.NullFloat64
			createdMs int64
		)
		if err := rows.Scan(
			&e.ID, &e.RequestID, &e.SampleRef, &e.SampleSize, &personID, &e.ReferenceCode, &kind,
			&e.Score, &e.Confidence, &e.Method, &e.Distance, &matched, &pixel, &size, &e.Detail, &createdMs,
		); err != nil {
			return nil, fmt.Errorf("RecentRecognitions scan: %w", err)
		}
		e.PersonKind = database.PersonKind(kind)
		e.Matched = matched != 0
		e.CreatedAt = fromMillis(createdMs)
		if personID.Valid {
			e.PersonID = &personID.Int64
		}
		if pixel.Valid {
			e.PixelSimilarity = &pixel.Float64
		}
		if size.Valid {
			e.SizeSimilarity = &size.Float64
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("RecentRecognitions rows: %w", err)
	}
	return out, nil
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullFloat64(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
