package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/attendance-engine/internal/attendance"
	"github.com/kozaktomas/attendance-engine/internal/database"
)

func TestMigrate_Idempotent(t *testing.T) {
	conn := openTestDB(t)

	if err := Migrate(context.Background(), conn); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations;`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	ms, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	if n != len(ms) {
		t.Errorf("expected %d applied migrations, got %d", len(ms), n)
	}
}

func TestParseVersion(t *testing.T) {
	tests := map[string]int{
		"0001_init.sql":  1,
		"0012_extra.sql": 12,
		"0000_empty.sql": 0,
	}
	for name, want := range tests {
		got, err := parseVersion(name)
		if err != nil {
			t.Fatalf("parseVersion(%q): %v", name, err)
		}
		if got != want {
			t.Errorf("parseVersion(%q) = %d, want %d", name, got, want)
		}
	}

	if _, err := parseVersion("init.sql"); err == nil {
		t.Error("expected error for unnumbered file")
	}
}

func TestCandidateStore(t *testing.T) {
	conn := openTestDB(t)
	store := NewCandidateStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	testID := seedPerson(t, conn, database.KindTest, "T-1", 9, "/t/a.jpg") // test persons are in every scope
	regID := seedPerson(t, conn, database.KindRegular, "R-1", 1, "/r/a.jpg", "/r/b.jpg")
	seedPerson(t, conn, database.KindRegular, "R-2", 2, "/r/c.jpg")

	got, err := store.ListCandidates(ctx, database.Scope{OptionID: 1})
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].PersonID != regID || got[0].Kind != database.KindRegular || len(got[0].Samples) != 2 {
		t.Errorf("unexpected first candidate %+v", got[0])
	}
	if got[1].PersonID != testID || got[1].Kind != database.KindTest {
		t.Errorf("unexpected second candidate %+v", got[1])
	}

	all, err := store.ListCandidates(ctx, database.Scope{})
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 candidates for zero scope, got %d", len(all))
	}

	key := database.PersonKey{Kind: database.KindRegular, PersonID: regID}
	if err := store.AssignFingerprint(ctx, key, 5); err != nil {
		t.Fatalf("AssignFingerprint: %v", err)
	}
	found, err := store.FindByFingerprint(ctx, 5)
	if err != nil {
		t.Fatalf("FindByFingerprint: %v", err)
	}
	if found == nil || found.PersonID != regID || *found.FingerprintID != 5 {
		t.Errorf("unexpected fingerprint match %+v", found)
	}

	missing, err := store.FindByFingerprint(ctx, 6)
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for unknown id, got %+v, %v", missing, err)
	}

	err = store.AssignFingerprint(ctx, database.PersonKey{Kind: database.KindTest, PersonID: regID}, 9)
	if !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound for wrong kind, got %v", err)
	}
}

func TestSessionStore(t *testing.T) {
	conn := openTestDB(t)
	store := NewSessionStore(conn)
	ctx := context.Background()

	if _, err := conn.Exec(`INSERT INTO attendance_sessions(id, day, option_id, year_level) VALUES (3, '2026-03-02', 1, 'L1');`); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	sess, err := store.GetSession(ctx, 3)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess == nil || sess.Scope() != (database.Scope{OptionID: 1, YearLevel: "L1"}) {
		t.Errorf("unexpected session %+v", sess)
	}

	missing, err := store.GetSession(ctx, 4)
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for unknown session, got %+v, %v", missing, err)
	}
}

func TestAttendanceStore_Lifecycle(t *testing.T) {
	conn := openTestDB(t)
	store := NewAttendanceStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	id := seedPerson(t, conn, database.KindRegular, "R-1", 1, "/r/a.jpg")
	person := database.PersonKey{Kind: database.KindRegular, PersonID: id}
	day := "2026-03-02"
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	rec, err := store.LatestRecord(ctx, person, day)
	if err != nil || rec != nil {
		t.Fatalf("expected no record, got %+v, %v", rec, err)
	}

	in, err := store.CheckIn(ctx, database.AttendanceRecord{
		Person: person, Day: day, CheckIn: at, Status: database.StatusPresent, Method: "size_fallback", Confidence: 70,
	})
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if in.ID == 0 || !in.IsOpen() {
		t.Errorf("unexpected check-in record %+v", in)
	}

	_, err = store.CheckIn(ctx, database.AttendanceRecord{Person: person, Day: day, CheckIn: at, Status: database.StatusPresent})
	if !errors.Is(err, database.ErrRecordExists) {
		t.Errorf("expected ErrRecordExists, got %v", err)
	}

	out, err := store.CheckOut(ctx, person, day, at.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("CheckOut: %v", err)
	}
	if out.CheckOut == nil || !out.CheckOut.Equal(at.Add(90*time.Minute)) {
		t.Errorf("unexpected check-out %+v", out.CheckOut)
	}
	if out.Method != "size_fallback" || out.Confidence != 70 {
		t.Errorf("check-out changed check-in fields: %+v", out)
	}

	_, err = store.CheckOut(ctx, person, day, at.Add(2*time.Hour))
	if !errors.Is(err, database.ErrNoOpenRecord) {
		t.Errorf("expected ErrNoOpenRecord, got %v", err)
	}

	latest, err := store.LatestRecord(ctx, person, day)
	if err != nil {
		t.Fatalf("LatestRecord: %v", err)
	}
	if latest == nil || latest.IsOpen() {
		t.Errorf("expected closed record, got %+v", latest)
	}
}

func TestAttendanceStore_RecentActivity(t *testing.T) {
	conn := openTestDB(t)
	store := NewAttendanceStore(conn, newTestWriter(t, conn))
	ctx := context.Background()
	day := "2026-03-02"
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	first := database.PersonKey{Kind: database.KindRegular, PersonID: seedPerson(t, conn, database.KindRegular, "R-1", 1)}
	second := database.PersonKey{Kind: database.KindRegular, PersonID: seedPerson(t, conn, database.KindRegular, "R-2", 1)}

	for i, p := range []database.PersonKey{first, second} {
		if _, err := store.CheckIn(ctx, database.AttendanceRecord{
			Person: p, Day: day, CheckIn: base.Add(time.Duration(i) * time.Minute), Status: database.StatusPresent,
		}); err != nil {
			t.Fatalf("CheckIn: %v", err)
		}
	}
	// first person's check-out is now the newest event
	if _, err := store.CheckOut(ctx, first, day, base.Add(time.Hour)); err != nil {
		t.Fatalf("CheckOut: %v", err)
	}

	entries, err := store.RecentActivity(ctx, day, 10)
	if err != nil {
		t.Fatalf("RecentActivity: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ReferenceCode != "R-1" || entries[1].ReferenceCode != "R-2" {
		t.Errorf("unexpected order: %s, %s", entries[0].ReferenceCode, entries[1].ReferenceCode)
	}

	limited, err := store.RecentActivity(ctx, day, 1)
	if err != nil {
		t.Fatalf("RecentActivity: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 entry with limit, got %d", len(limited))
	}
}

func TestAttendanceStore_PersonOutsidePersonsTable(t *testing.T) {
	conn := openTestDB(t)
	store := NewAttendanceStore(conn, newTestWriter(t, conn))
	m := attendance.NewMachine(store, attendance.WithClock(func() time.Time {
		return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	}))
	ctx := context.Background()

	// ids from the legacy enrollment database have no persons row, and a
	// regular and a test student may share one
	regular := database.PersonKey{Kind: database.KindRegular, PersonID: 42}
	test := database.PersonKey{Kind: database.KindTest, PersonID: 42}

	for _, ev := range []attendance.Event{
		{Person: regular, ReferenceCode: "2024-0042", DisplayName: "Ana Núñez", Method: "face_recognition", Confidence: 97},
		{Person: test, ReferenceCode: "T-42", DisplayName: "Test Student", Method: "pixel_fallback", Confidence: 90},
	} {
		tr, err := m.Apply(ctx, ev, attendance.ModeAuto)
		if err != nil {
			t.Fatalf("Apply %+v: %v", ev.Person, err)
		}
		if tr.Action != attendance.ActionCheckIn {
			t.Errorf("expected check_in for %+v, got %s", ev.Person, tr.Action)
		}
	}

	entries, err := store.RecentActivity(ctx, "2026-03-02", 10)
	if err != nil {
		t.Fatalf("RecentActivity: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	codes := map[database.PersonKey]string{}
	for _, e := range entries {
		codes[e.Record.Person] = e.ReferenceCode + "/" + e.DisplayName
	}
	if codes[regular] != "2024-0042/Ana Núñez" || codes[test] != "T-42/Test Student" {
		t.Errorf("unexpected activity identities %v", codes)
	}
}

func TestAttendanceStore_ConcurrentCheckIn(t *testing.T) {
	conn := openTestDB(t)
	store := NewAttendanceStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	person := database.PersonKey{Kind: database.KindRegular, PersonID: seedPerson(t, conn, database.KindRegular, "R-1", 1)}
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		exists  int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CheckIn(ctx, database.AttendanceRecord{Person: person, Day: "2026-03-02", CheckIn: at, Status: database.StatusPresent})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, database.ErrRecordExists):
				exists++
			}
		}()
	}
	wg.Wait()

	if created != 1 || exists != 9 {
		t.Errorf("expected 1 created and 9 conflicts, got %d and %d", created, exists)
	}
}

func TestRecognitionLogStore(t *testing.T) {
	conn := openTestDB(t)
	store := NewRecognitionLogStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	personID := int64(4)
	size := 0.75
	entries := []database.RecognitionLogEntry{
		{RequestID: "a", SampleRef: "/r/1.jpg", Score: 0.2, Confidence: "low", Method: "size_fallback", Distance: 0.8, SizeSimilarity: &size},
		{RequestID: "a", SampleRef: "/r/2.jpg", PersonID: &personID, PersonKind: database.KindTest, Score: 0.9, Confidence: "high", Method: "pixel_fallback", Distance: 0.1, Matched: true},
	}
	for _, e := range entries {
		if err := store.AppendRecognition(ctx, e); err != nil {
			t.Fatalf("AppendRecognition: %v", err)
		}
	}

	got, err := store.RecentRecognitions(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRecognitions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].SampleRef != "/r/2.jpg" || !got[0].Matched || got[0].PersonID == nil || *got[0].PersonID != 4 {
		t.Errorf("unexpected newest row %+v", got[0])
	}
	if got[0].PersonKind != database.KindTest {
		t.Errorf("expected test kind, got %q", got[0].PersonKind)
	}
	if got[1].SizeSimilarity == nil || *got[1].SizeSimilarity != size || got[1].PersonID != nil {
		t.Errorf("unexpected oldest row %+v", got[1])
	}
	if got[1].CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestWorker_ContextCanceled(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error { return nil })
	if err == nil {
		// the job may win the race against the canceled context
		return
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWorker_DoAfterClose(t *testing.T) {
	conn := openTestDB(t)
	w := NewWorker(conn)

	var ran bool
	if err := w.Do(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		ran = true
		return nil
	}); err != nil || !ran {
		t.Fatalf("Do before Close: ran=%v err=%v", ran, err)
	}

	w.Close()
	w.Close()

	err := w.Do(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		t.Error("job ran after Close")
		return nil
	})
	if !errors.Is(err, ErrWorkerClosed) {
		t.Errorf("expected ErrWorkerClosed, got %v", err)
	}
}
