package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/kozaktomas/attendance-engine/internal/database"
)

// openTestDB returns a migrated in-memory database unique to the test.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:test_%s?mode=memory&cache=shared&%s", name, dsnPragmas)

	conn, err := openDSN(context.Background(), dsn)
	if err != nil {
		t.Fatalf("openTestDB: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newTestWriter(t *testing.T, conn *sql.DB) *Worker {
	t.Helper()

	w := NewWorker(conn)
	t.Cleanup(w.Close)
	return w
}

func seedPerson(t *testing.T, conn *sql.DB, kind database.PersonKind, code string, optionID int64, samples ...string) int64 {
	t.Helper()

	res, err := conn.Exec(`INSERT INTO persons(kind, reference_code, display_name, option_id, year_level) VALUES (?, ?, ?, ?, 'L1');`,
		string(kind), code, "Person "+code, optionID)
	if err != nil {
		t.Fatalf("seedPerson: %v", err)
	}
	id, _ := res.LastInsertId()
	for i, path := range samples {
		if _, err := conn.Exec(`INSERT INTO person_samples(person_id, position, path) VALUES (?, ?, ?);`, id, i, path); err != nil {
			t.Fatalf("seedPerson sample: %v", err)
		}
	}
	return id
}
