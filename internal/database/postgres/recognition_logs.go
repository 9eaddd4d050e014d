package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/attendance-engine/internal/database"
)

// RecognitionLogRepository appends and reads recognition audit rows
type RecognitionLogRepository struct {
	pool *Pool
}

// NewRecognitionLogRepository creates a new recognition log repository
func NewRecognitionLogRepository(pool *Pool) *RecognitionLogRepository {
	return &RecognitionLogRepository{pool: pool}
}

// AppendRecognition inserts one audit row
func (r *RecognitionLogRepository) AppendRecognition(ctx context.Context, e database.RecognitionLogEntry) error {
	query := `
		INSERT INTO recognition_logs (
			request_id, sample_ref, sample_size, person_id, reference_code, person_kind,
			score, confidence, method, distance, matched, pixel_similarity, size_similarity, detail
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.pool.Exec(ctx, query,
		e.RequestID, e.SampleRef, e.SampleSize, e.PersonID, e.ReferenceCode, string(e.PersonKind),
		e.Score, e.Confidence, e.Method, e.Distance, e.Matched, e.PixelSimilarity, e.SizeSimilarity, e.Detail,
	)
	if err != nil {
		return fmt.Errorf("append recognition log: %w", err)
	}
	return nil
}

// RecentRecognitions returns the newest rows first
func (r *RecognitionLogRepository) RecentRecognitions(ctx context.Context, limit int) ([]database.RecognitionLogEntry, error) {
	query := `
		SELECT id, request_id, sample_ref, sample_size, person_id, reference_code, person_kind,
		       score, confidence, method, distance, matched, pixel_similarity, size_similarity, detail, created_at
		FROM recognition_logs
		ORDER BY id DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("recent recognitions: %w", err)
	}
	defer rows.Close()

	var out []database.RecognitionLogEntry
	for rows.Next() {
		var (
			e        database.RecognitionLogEntry
			personID sql.NullInt64
			pixel    sql.NullFloat64
			size     sql.NullFloat64
		)
		if err := rows.Scan(
			&e.ID, &e.RequestID, &e.SampleRef, &e.SampleSize, &personID, &e.ReferenceCode, &e.PersonKind,
			&e.Score, &e.Confidence, &e.Method, &e.Distance, &e.Matched, &pixel, &size, &e.Detail, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan recognition log: %w", err)
		}
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
		return nil, fmt.Errorf("iterate recognition logs: %w", err)
	}
	return out, nil
}
