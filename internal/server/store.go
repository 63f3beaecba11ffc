package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"shift_report/internal/catalog"
	"shift_report/internal/report"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique value is already taken.
	ErrDuplicate = errors.New("already exists")
	// ErrHasReports is returned when deleting a user who still owns reports.
	ErrHasReports = errors.New("user has reports")
)

// Store persists users, reports and catalogs in SQLite or Postgres.
type Store struct {
	db     *sql.DB
	driver string
}

// OpenStore connects to the database and creates the schema.
func OpenStore(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == "sqlite" {
		// one writer at a time avoids SQLITE_BUSY under concurrent requests
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// q rewrites ? placeholders to $n for Postgres.
func (s *Store) q(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) migrate(ctx context.Context) error {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == "postgres" {
		pk = "BIGSERIAL PRIMARY KEY"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id %s,
			username TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reports (
			id %s,
			user_id BIGINT NOT NULL,
			area TEXT NOT NULL,
			jornada TEXT NOT NULL,
			supervisor TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS report_members (
			id %s,
			report_id BIGINT NOT NULL,
			position INTEGER NOT NULL,
			worker_id TEXT NOT NULL,
			rut TEXT NOT NULL,
			nombre TEXT NOT NULL,
			cargo TEXT NOT NULL,
			tramo_id TEXT NOT NULL,
			activity_id TEXT NOT NULL,
			hora_inicio TEXT NOT NULL,
			hora_fin TEXT NOT NULL,
			tipo_asist TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS report_notes (
			id %s,
			report_id BIGINT NOT NULL,
			section TEXT NOT NULL,
			position INTEGER NOT NULL,
			descripcion TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS workers (
			id %s,
			rut TEXT NOT NULL,
			nombre TEXT NOT NULL,
			cargo TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tramos (
			id %s,
			nombre TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS activities (
			id %s,
			nombre TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(stmt, pk)); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_reports_user ON reports (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_report_members_report ON report_members (report_id)`,
		`CREATE INDEX IF NOT EXISTS idx_report_notes_report ON report_notes (report_id)`,
	}
	for _, stmt := range indexes {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// Users

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// CreateUser stores a user with an already hashed password.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash, role string) (int64, error) {
	if _, _, err := s.UserByUsername(ctx, username); err == nil {
		return 0, fmt.Errorf("user %q: %w", username, ErrDuplicate)
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	var id int64
	err := s.db.QueryRowContext(ctx, s.q("INSERT INTO users (username, password, role, created_at) VALUES (?, ?, ?, ?) RETURNING id"),
		username, passwordHash, role, time.Now().UnixMilli()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

// UserByUsername returns the user and its password hash.
func (s *Store) UserByUsername(ctx context.Context, username string) (User, string, error) {
	var (
		user User
		hash string
	)
	err := s.db.QueryRowContext(ctx, s.q("SELECT id, username, role, password FROM users WHERE username = ?"), username).
		Scan(&user.ID, &user.Username, &user.Role, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, "", ErrNotFound
	}
	if err != nil {
		return User{}, "", fmt.Errorf("query user: %w", err)
	}
	return user, hash, nil
}

func (s *Store) UserByID(ctx context.Context, id int64) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, s.q("SELECT id, username, role FROM users WHERE id = ?"), id).
		Scan(&user.ID, &user.Username, &user.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// ListUsers returns every user ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, username, role FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Username, &user.Role); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateUser changes a user's name and role. The password hash is only
// replaced when passwordHash is not empty.
func (s *Store) UpdateUser(ctx context.Context, user User, passwordHash string) error {
	if other, _, err := s.UserByUsername(ctx, user.Username); err == nil && other.ID != user.ID {
		return fmt.Errorf("user %q: %w", user.Username, ErrDuplicate)
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	var (
		res sql.Result
		err error
	)
	if passwordHash != "" {
		res, err = s.db.ExecContext(ctx, s.q("UPDATE users SET username = ?, role = ?, password = ? WHERE id = ?"),
			user.Username, user.Role, passwordHash, user.ID)
	} else {
		res, err = s.db.ExecContext(ctx, s.q("UPDATE users SET username = ?, role = ? WHERE id = ?"),
			user.Username, user.Role, user.ID)
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return affected(res)
}

// DeleteUser removes a user who owns no reports.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	var n int
	if err := s.db.QueryRowContext(ctx, s.q("SELECT COUNT(*) FROM reports WHERE user_id = ?"), id).Scan(&n); err != nil {
		return fmt.Errorf("count user reports: %w", err)
	}
	if n > 0 {
		return ErrHasReports
	}
	res, err := s.db.ExecContext(ctx, s.q("DELETE FROM users WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return affected(res)
}

// Reports

// CreateReport stores a submission with its team rows and notes in one
// transaction.
func (s *Store) CreateReport(ctx context.Context, userID int64, sub report.Submission, at time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var reportID int64
	err = tx.QueryRowContext(ctx, s.q(`
		INSERT INTO reports (user_id, area, jornada, supervisor, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`),
		userID, sub.Area, sub.Jornada, sub.Supervisor, at.UnixMilli()).Scan(&reportID)
	if err != nil {
		return 0, fmt.Errorf("insert report: %w", err)
	}

	for i, m := range sub.Team {
		_, err = tx.ExecContext(ctx, s.q(`
			INSERT INTO report_members (report_id, position, worker_id, rut, nombre, cargo,
			                            tramo_id, activity_id, hora_inicio, hora_fin, tipo_asist)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			reportID, i, m.WorkerID, m.RUT, m.Nombre, m.Cargo, m.TramoID, m.ActivityID, m.HoraInicio, m.HoraFin, m.TipoAsist)
		if err != nil {
			return 0, fmt.Errorf("insert team member: %w", err)
		}
	}

	for _, sec := range report.Sections {
		for i, e := range sub.Entries(sec) {
			_, err = tx.ExecContext(ctx, s.q(`
				INSERT INTO report_notes (report_id, section, position, descripcion)
				VALUES (?, ?, ?, ?)`),
				reportID, string(sec), i, e.Descripcion)
			if err != nil {
				return 0, fmt.Errorf("insert %s: %w", sec, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit report: %w", err)
	}
	return reportID, nil
}

// ListReports returns reports newest first. A nil userID lists everyone's.
func (s *Store) ListReports(ctx context.Context, userID *int64) ([]report.Report, error) {
	query := `
		SELECT r.id, r.user_id, u.username, r.area, r.jornada, r.supervisor, r.created_at
		FROM reports r
		JOIN users u ON r.user_id = u.id`
	var args []any
	if userID != nil {
		query += " WHERE r.user_id = ?"
		args = append(args, *userID)
	}
	query += " ORDER BY r.created_at DESC, r.id DESC"

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}

	reports := []report.Report{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	rows.Close()

	for i := range reports {
		if err := s.loadChildren(ctx, &reports[i]); err != nil {
			return nil, err
		}
	}
	return reports, nil
}

func (s *Store) GetReport(ctx context.Context, id int64) (report.Report, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT r.id, r.user_id, u.username, r.area, r.jornada, r.supervisor, r.created_at
		FROM reports r
		JOIN users u ON r.user_id = u.id
		WHERE r.id = ?`), id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return report.Report{}, ErrNotFound
	}
	if err != nil {
		return report.Report{}, err
	}
	if err := s.loadChildren(ctx, &r); err != nil {
		return report.Report{}, err
	}
	return r, nil
}

// ReportOwner returns the id of the user that submitted a report.
func (s *Store) ReportOwner(ctx context.Context, id int64) (int64, error) {
	var owner int64
	err := s.db.QueryRowContext(ctx, s.q("SELECT user_id FROM reports WHERE id = ?"), id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query report owner: %w", err)
	}
	return owner, nil
}

// DeleteReport removes a report and its child rows.
func (s *Store) DeleteReport(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.q("DELETE FROM report_members WHERE report_id = ?"), id); err != nil {
		return fmt.Errorf("delete team members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.q("DELETE FROM report_notes WHERE report_id = ?"), id); err != nil {
		return fmt.Errorf("delete notes: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.q("DELETE FROM reports WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (report.Report, error) {
	var (
		r         report.Report
		createdAt int64
	)
	err := row.Scan(&r.ID, &r.UserID, &r.Username, &r.Area, &r.Jornada, &r.Supervisor, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scan report: %w", err)
	}
	r.DateSubmitted = time.UnixMilli(createdAt).UTC()
	return r, nil
}

func (s *Store) loadChildren(ctx context.Context, r *report.Report) error {
	memberRows, err := s.db.QueryContext(ctx, s.q(`
		SELECT worker_id, rut, nombre, cargo, tramo_id, activity_id, hora_inicio, hora_fin, tipo_asist
		FROM report_members
		WHERE report_id = ?
		ORDER BY position`), r.ID)
	if err != nil {
		return fmt.Errorf("query team members: %w", err)
	}
	defer memberRows.Close()

	r.Team = []report.Member{}
	for memberRows.Next() {
		var m report.Member
		if err := memberRows.Scan(&m.WorkerID, &m.RUT, &m.Nombre, &m.Cargo, &m.TramoID, &m.ActivityID,
			&m.HoraInicio, &m.HoraFin, &m.TipoAsist); err != nil {
			return fmt.Errorf("scan team member: %w", err)
		}
		r.Team = append(r.Team, m)
	}
	if err := memberRows.Err(); err != nil {
		return fmt.Errorf("iterate team members: %w", err)
	}
	memberRows.Close()

	noteRows, err := s.db.QueryContext(ctx, s.q(`
		SELECT section, descripcion
		FROM report_notes
		WHERE report_id = ?
		ORDER BY section, position`), r.ID)
	if err != nil {
		return fmt.Errorf("query notes: %w", err)
	}
	defer noteRows.Close()

	notes := map[report.Section][]report.Entry{}
	for noteRows.Next() {
		var (
			section string
			e       report.Entry
		)
		if err := noteRows.Scan(&section, &e.Descripcion); err != nil {
			return fmt.Errorf("scan note: %w", err)
		}
		notes[report.Section(section)] = append(notes[report.Section(section)], e)
	}
	if err := noteRows.Err(); err != nil {
		return fmt.Errorf("iterate notes: %w", err)
	}

	for _, sec := range report.Sections {
		entries := notes[sec]
		if entries == nil {
			entries = []report.Entry{}
		}
		r.SetEntries(sec, entries)
	}
	return nil
}

// Catalogs

func (s *Store) ListWorkers(ctx context.Context) ([]catalog.Worker, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, rut, nombre, cargo FROM workers ORDER BY nombre, id")
	if err != nil {
		return nil, fmt.Errorf("query workers: %w", err)
	}
	defer rows.Close()

	workers := []catalog.Worker{}
	for rows.Next() {
		var (
			w  catalog.Worker
			id int64
		)
		if err := rows.Scan(&id, &w.RUT, &w.Nombre, &w.Cargo); err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		w.ID = catalog.FromInt(id)
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

func (s *Store) CreateWorker(ctx context.Context, w catalog.Worker) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, s.q("INSERT INTO workers (rut, nombre, cargo) VALUES (?, ?, ?) RETURNING id"),
		w.RUT, w.Nombre, w.Cargo).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert worker: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateWorker(ctx context.Context, id int64, w catalog.Worker) error {
	res, err := s.db.ExecContext(ctx, s.q("UPDATE workers SET rut = ?, nombre = ?, cargo = ? WHERE id = ?"),
		w.RUT, w.Nombre, w.Cargo, id)
	if err != nil {
		return fmt.Errorf("update worker: %w", err)
	}
	return affected(res)
}

// catalogTable maps the named catalogs to their tables. Table names are
// never taken from request input directly.
func catalogTable(kind catalog.Kind) (string, error) {
	switch kind {
	case catalog.KindWorkers:
		return "workers", nil
	case catalog.KindSegments:
		return "tramos", nil
	case catalog.KindActivities:
		return "activities", nil
	}
	return "", fmt.Errorf("unknown catalog %q", kind)
}

// ListNamed lists a tramos or activities catalog.
func (s *Store) ListNamed(ctx context.Context, kind catalog.Kind) ([]namedEntry, error) {
	table, err := catalogTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id, nombre FROM "+table+" ORDER BY nombre, id")
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	entries := []namedEntry{}
	for rows.Next() {
		var (
			e  namedEntry
			id int64
		)
		if err := rows.Scan(&id, &e.Nombre); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		e.ID = catalog.FromInt(id)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) CreateNamed(ctx context.Context, kind catalog.Kind, nombre string) (int64, error) {
	table, err := catalogTable(kind)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, s.q("INSERT INTO "+table+" (nombre) VALUES (?) RETURNING id"), nombre).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	return id, nil
}

func (s *Store) UpdateNamed(ctx context.Context, kind catalog.Kind, id int64, nombre string) error {
	table, err := catalogTable(kind)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.q("UPDATE "+table+" SET nombre = ? WHERE id = ?"), nombre, id)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return affected(res)
}

// DeleteCatalogEntry removes an entry from any of the three catalogs.
// Reports keep their copied values.
func (s *Store) DeleteCatalogEntry(ctx context.Context, kind catalog.Kind, id int64) error {
	table, err := catalogTable(kind)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.q("DELETE FROM "+table+" WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	return affected(res)
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
