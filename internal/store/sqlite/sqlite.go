// Package sqlite хранит заявки водителей в локальном файле SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"driver_bot/internal/driver"
	"driver_bot/internal/store"
	"driver_bot/internal/store/sqlite/migrations"
)

const driverColumns = `id, telegram_id, username, language, passport, license, tech_passport, phone, media,
	invited_by, invited_by_username, status, claimed_by, claimed_by_name, resolved_by, resolved_by_name,
	queue_chat_id, queue_message_id, created_at, updated_at`

// DriverStore хранит заявки в SQLite.
type DriverStore struct {
	db    *sql.DB
	clock func() time.Time
}

// Open открывает файл базы и применяет встроенные миграции.
func Open(path string) (*DriverStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Один писатель: транзакции Update выполняются строго по очереди.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &DriverStore{db: db, clock: time.Now}, nil
}

// Close закрывает файл базы.
func (s *DriverStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *DriverStore) Create(ctx context.Context, d driver.Driver) (driver.Driver, error) {
	d = driver.PrepareNew(d, s.clock())
	docs, err := store.EncodeDocuments(d)
	if err != nil {
		return driver.Driver{}, err
	}
	const query = `
		INSERT INTO drivers (` + driverColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query,
		d.ID, d.TelegramID, d.Username, d.Language, docs.Passport, docs.License, docs.TechPassport, d.Phone, docs.Media,
		d.InvitedBy, d.InvitedByUsername, string(d.Status), d.ClaimedBy, d.ClaimedByName, d.ResolvedBy, d.ResolvedByName,
		d.QueueChatID, d.QueueMessageID, toMillis(d.CreatedAt), toMillis(d.UpdatedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return driver.Driver{}, driver.ErrConflict
		}
		return driver.Driver{}, fmt.Errorf("insert driver: %w", err)
	}
	// Время хранится с точностью до миллисекунд.
	d.CreatedAt = fromMillis(toMillis(d.CreatedAt))
	d.UpdatedAt = d.CreatedAt
	return d, nil
}

func (s *DriverStore) Get(ctx context.Context, id string) (driver.Driver, error) {
	return scanDriver(s.db.QueryRowContext(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = ?`, id))
}

func (s *DriverStore) Update(ctx context.Context, id string, mutate driver.Mutator) (driver.Driver, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return driver.Driver{}, fmt.Errorf("begin driver update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanDriver(tx.QueryRowContext(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = ?`, id))
	if err != nil {
		return driver.Driver{}, err
	}
	next := current
	if current.Media != nil {
		next.Media = make(map[string]string, len(current.Media))
		for k, v := range current.Media {
			next.Media[k] = v
		}
	}
	if err := mutate(&next); err != nil {
		return driver.Driver{}, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = fromMillis(toMillis(s.clock()))

	docs, err := store.EncodeDocuments(next)
	if err != nil {
		return driver.Driver{}, err
	}
	const query = `
		UPDATE drivers SET
			telegram_id = ?, username = ?, language = ?, passport = ?, license = ?, tech_passport = ?,
			phone = ?, media = ?, invited_by = ?, invited_by_username = ?, status = ?,
			claimed_by = ?, claimed_by_name = ?, resolved_by = ?, resolved_by_name = ?,
			queue_chat_id = ?, queue_message_id = ?, updated_at = ?
		WHERE id = ?
	`
	if _, err := tx.ExecContext(ctx, query,
		next.TelegramID, next.Username, next.Language, docs.Passport, docs.License, docs.TechPassport,
		next.Phone, docs.Media, next.InvitedBy, next.InvitedByUsername, string(next.Status),
		next.ClaimedBy, next.ClaimedByName, next.ResolvedBy, next.ResolvedByName,
		next.QueueChatID, next.QueueMessageID, toMillis(next.UpdatedAt), next.ID,
	); err != nil {
		return driver.Driver{}, fmt.Errorf("update driver: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return driver.Driver{}, fmt.Errorf("commit driver update: %w", err)
	}
	return next, nil
}

func (s *DriverStore) Find(ctx context.Context, filter driver.Filter) ([]driver.Driver, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.InvitedBy != 0 {
		conditions = append(conditions, "invited_by = ?")
		args = append(args, filter.InvitedBy)
	}
	if filter.TelegramID != 0 {
		conditions = append(conditions, "telegram_id = ?")
		args = append(args, filter.TelegramID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	query := `SELECT ` + driverColumns + ` FROM drivers`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find drivers: %w", err)
	}
	defer rows.Close()
	var out []driver.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drivers: %w", err)
	}
	return out, nil
}

func (s *DriverStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM drivers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete driver: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete driver: %w", err)
	}
	if affected == 0 {
		return driver.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDriver(row scanner) (driver.Driver, error) {
	var (
		d                                      driver.Driver
		status                                 string
		passport, license, techPassport, media string
		createdAt, updatedAt                   int64
	)
	if err := row.Scan(
		&d.ID, &d.TelegramID, &d.Username, &d.Language, &passport, &license, &techPassport, &d.Phone, &media,
		&d.InvitedBy, &d.InvitedByUsername, &status, &d.ClaimedBy, &d.ClaimedByName, &d.ResolvedBy, &d.ResolvedByName,
		&d.QueueChatID, &d.QueueMessageID, &createdAt, &updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return driver.Driver{}, driver.ErrNotFound
		}
		return driver.Driver{}, fmt.Errorf("scan driver: %w", err)
	}
	d.Status = driver.Status(status)
	if err := store.DecodeDocuments(&d, []byte(passport), []byte(license), []byte(techPassport), []byte(media)); err != nil {
		return driver.Driver{}, err
	}
	d.CreatedAt = fromMillis(createdAt)
	d.UpdatedAt = fromMillis(updatedAt)
	return d, nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

const migrationTable = "schema_migrations"

// applyMigrations выполняет каждый файл миграции не более одного раза.
func applyMigrations(db *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var applied int
		if err := db.QueryRow(`SELECT COUNT(1) FROM `+migrationTable+` WHERE name = ?`, file).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if applied > 0 {
			continue
		}
		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		up := upSection(string(content))
		if strings.TrimSpace(up) == "" {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`,
			file, toMillis(time.Now()),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

func upSection(content string) string {
	const upMarker, downMarker = "-- +migrate Up", "-- +migrate Down"
	upIdx := strings.Index(content, upMarker)
	if upIdx == -1 {
		return content
	}
	rest := content[upIdx+len(upMarker):]
	if downIdx := strings.Index(rest, downMarker); downIdx != -1 {
		return rest[:downIdx]
	}
	return rest
}
