package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance-engine/internal/database"
)

// SessionRepository reads attendance sessions managed by the surrounding application
type SessionRepository struct {
	pool *Pool
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// GetSession retrieves a session by ID, returns nil if not found
func (r *SessionRepository) GetSession(ctx context.Context, id int64) (*database.AttendanceSession, error) {
	query := `
		SELECT id, day::text, option_id, year_level
		FROM attendance_sessions
		WHERE id = $1
	`

	var s database.AttendanceSession
	err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.Day, &s.OptionID, &s.YearLevel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}
