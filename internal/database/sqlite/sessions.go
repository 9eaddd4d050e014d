package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance-engine/internal/database"
)

type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) GetSession(ctx context.Context, id int64) (*database.AttendanceSession, error) {
	var sess database.AttendanceSession
	err := s.db.QueryRowContext(ctx, `
SELECT id, day, option_id, year_level FROM attendance_sessions WHERE id = ?;
`, id).Scan(&sess.ID, &sess.Day, &sess.OptionID, &sess.YearLevel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetSession: %w", err)
	}
	return &sess, nil
}
