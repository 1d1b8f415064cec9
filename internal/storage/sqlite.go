package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"rotabot/internal/marker"
	"rotabot/internal/rotation"
	"rotabot/internal/schedule"
	logx "rotabot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const tsLayout = time.RFC3339Nano

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer; this also serializes per-row upserts.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, now: time.Now}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds())); err != nil {
		log.Warn("sqlite pragma failed", logx.String("pragma", "busy_timeout"), logx.Err(err))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store ready", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- overrides ----

func (s *sqliteStore) GetOverride(ctx context.Context, original schedule.Date) (schedule.Override, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT original_date, is_cancelled, moved_to, note, updated_at FROM overrides WHERE original_date = ?`,
		original.String())
	o, err := scanOverride(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.Override{}, false, nil
	}
	if err != nil {
		return schedule.Override{}, false, err
	}
	return o, true, nil
}

func (s *sqliteStore) OverridesMovedTo(ctx context.Context, target schedule.Date) ([]schedule.Override, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT original_date, is_cancelled, moved_to, note, updated_at FROM overrides
		 WHERE moved_to IS NOT NULL AND substr(moved_to, 1, 10) = ?
		 ORDER BY original_date`,
		target.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.Override
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpsertOverride(ctx context.Context, o schedule.Override) error {
	var moved any
	if o.MovedTo != nil {
		moved = o.MovedTo.String()
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO overrides(original_date, is_cancelled, moved_to, note, updated_at) VALUES(?,?,?,?,?)
		 ON CONFLICT(original_date) DO UPDATE SET
		   is_cancelled = excluded.is_cancelled,
		   moved_to = excluded.moved_to,
		   note = excluded.note,
		   updated_at = excluded.updated_at`,
		o.OriginalDate.String(), boolInt(o.Cancelled), moved, nullStr(o.Note), o.UpdatedAt.UTC().Format(tsLayout))
	return err
}

func (s *sqliteStore) DeleteOverride(ctx context.Context, original schedule.Date) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM overrides WHERE original_date = ?`, original.String())
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOverride(r rowScanner) (schedule.Override, error) {
	var (
		date      string
		cancelled int
		moved     sql.NullString
		note      sql.NullString
		updated   string
	)
	if err := r.Scan(&date, &cancelled, &moved, &note, &updated); err != nil {
		return schedule.Override{}, err
	}
	d, err := schedule.ParseDate(date)
	if err != nil {
		return schedule.Override{}, fmt.Errorf("override row %q: %w", date, err)
	}
	o := schedule.Override{OriginalDate: d, Cancelled: cancelled != 0, Note: note.String}
	if moved.Valid && strings.TrimSpace(moved.String) != "" {
		dt, err := schedule.ParseDateTime(moved.String)
		if err != nil {
			return schedule.Override{}, fmt.Errorf("override row %q: %w", date, err)
		}
		o.MovedTo = &dt
	}
	o.UpdatedAt, _ = time.Parse(tsLayout, updated)
	return o, nil
}

// ---- markers ----

func (s *sqliteStore) GetMarkers(ctx context.Context, occurrenceID string) (marker.Markers, bool, error) {
	var (
		m           = marker.Markers{OccurrenceID: occurrenceID}
		announced   int
		announcedAt sql.NullString
		advanced    int
		advancedAt  sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT announced, announced_at, advanced, advanced_at FROM markers WHERE occurrence_id = ?`,
		occurrenceID).Scan(&announced, &announcedAt, &advanced, &advancedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return marker.Markers{}, false, nil
	}
	if err != nil {
		return marker.Markers{}, false, err
	}
	m.Announced = announced != 0
	m.Advanced = advanced != 0
	m.AnnouncedAt = parseNullTime(announcedAt)
	m.AdvancedAt = parseNullTime(advancedAt)
	return m, true, nil
}

func (s *sqliteStore) SetAnnounced(ctx context.Context, occurrenceID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO markers(occurrence_id, announced, announced_at) VALUES(?, 1, ?)
		 ON CONFLICT(occurrence_id) DO UPDATE SET announced = 1, announced_at = excluded.announced_at`,
		occurrenceID, now.UTC().Format(tsLayout))
	return err
}

func (s *sqliteStore) SetAdvanced(ctx context.Context, occurrenceID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO markers(occurrence_id, advanced, advanced_at) VALUES(?, 1, ?)
		 ON CONFLICT(occurrence_id) DO UPDATE SET advanced = 1, advanced_at = excluded.advanced_at`,
		occurrenceID, now.UTC().Format(tsLayout))
	return err
}

// ---- rotations ----

func (s *sqliteStore) GetRotation(ctx context.Context, role rotation.Role) (rotation.State, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT json FROM rotations WHERE role = ?`, role.Key()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return rotation.State{}, nil
	}
	if err != nil {
		return rotation.State{}, err
	}
	var st rotation.State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return rotation.State{}, fmt.Errorf("rotation %s: %w", role.Key(), err)
	}
	return st, nil
}

func (s *sqliteStore) SaveRotation(ctx context.Context, role rotation.Role, st rotation.State) error {
	st = st.Normalized()
	if st.Members == nil {
		st.Members = []rotation.MemberID{}
	}
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rotations(role, json, updated_at) VALUES(?,?,?)
		 ON CONFLICT(role) DO UPDATE SET json = excluded.json, updated_at = excluded.updated_at`,
		role.Key(), string(b), s.now().UTC().Format(tsLayout))
	return err
}

// ---- members ----

func (s *sqliteStore) RememberMember(ctx context.Context, m rotation.Member) error {
	if m.ID == 0 {
		return nil
	}
	if m.SeenAt.IsZero() {
		m.SeenAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members(id, name, username, seen_at) VALUES(?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = COALESCE(excluded.name, members.name),
		   username = COALESCE(excluded.username, members.username),
		   seen_at = excluded.seen_at`,
		int64(m.ID), nullStr(m.Name), nullStr(m.Username), m.SeenAt.UTC().Format(tsLayout))
	return err
}

func (s *sqliteStore) LookupMember(ctx context.Context, id rotation.MemberID) (rotation.Member, bool, error) {
	var (
		name, username sql.NullString
		seen           string
	)
	err := s.db.QueryRowContext(ctx, `SELECT name, username, seen_at FROM members WHERE id = ?`, int64(id)).
		Scan(&name, &username, &seen)
	if errors.Is(err, sql.ErrNoRows) {
		return rotation.Member{}, false, nil
	}
	if err != nil {
		return rotation.Member{}, false, err
	}
	m := rotation.Member{ID: id, Name: name.String, Username: username.String}
	m.SeenAt, _ = time.Parse(tsLayout, seen)
	return m, true, nil
}

func parseNullTime(v sql.NullString) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	t, _ := time.Parse(tsLayout, v.String)
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
