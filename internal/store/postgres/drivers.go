package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"driver_bot/internal/driver"
	"driver_bot/internal/store"
)

const driverColumns = `id, telegram_id, username, language, passport, license, tech_passport, phone, media,
	invited_by, invited_by_username, status, claimed_by, claimed_by_name, resolved_by, resolved_by_name,
	queue_chat_id, queue_message_id, created_at, updated_at`

// DriverStore хранит заявки водителей в Postgres.
type DriverStore struct {
	db    *sql.DB
	clock func() time.Time
}

// NewDriverStore создает новый DriverStore.
func NewDriverStore(db *sql.DB) *DriverStore {
	return &DriverStore{db: db, clock: time.Now}
}

func (s *DriverStore) Create(ctx context.Context, d driver.Driver) (driver.Driver, error) {
	d = driver.PrepareNew(d, s.clock())
	docs, err := store.EncodeDocuments(d)
	if err != nil {
		return driver.Driver{}, err
	}
	const query = `
		INSERT INTO drivers (` + driverColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	if _, err := s.db.ExecContext(ctx, query,
		d.ID, d.TelegramID, d.Username, d.Language, docs.Passport, docs.License, docs.TechPassport, d.Phone, docs.Media,
		d.InvitedBy, d.InvitedByUsername, string(d.Status), d.ClaimedBy, d.ClaimedByName, d.ResolvedBy, d.ResolvedByName,
		d.QueueChatID, d.QueueMessageID, d.CreatedAt, d.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return driver.Driver{}, driver.ErrConflict
		}
		return driver.Driver{}, fmt.Errorf("insert driver: %w", err)
	}
	return d, nil
}

func (s *DriverStore) Get(ctx context.Context, id string) (driver.Driver, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, id)
	return scanDriver(row)
}

// Update блокирует строку на время мутатора; ошибка мутатора откатывает транзакцию.
func (s *DriverStore) Update(ctx context.Context, id string, mutate driver.Mutator) (driver.Driver, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return driver.Driver{}, fmt.Errorf("begin driver update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanDriver(tx.QueryRowContext(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1 FOR UPDATE`, id))
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
	next.UpdatedAt = s.clock().UTC()

	docs, err := store.EncodeDocuments(next)
	if err != nil {
		return driver.Driver{}, err
	}
	const query = `
		UPDATE drivers SET
			telegram_id = $2, username = $3, language = $4, passport = $5, license = $6, tech_passport = $7,
			phone = $8, media = $9, invited_by = $10, invited_by_username = $11, status = $12,
			claimed_by = $13, claimed_by_name = $14, resolved_by = $15, resolved_by_name = $16,
			queue_chat_id = $17, queue_message_id = $18, updated_at = $19
		WHERE id = $1
	`
	if _, err := tx.ExecContext(ctx, query,
		next.ID, next.TelegramID, next.Username, next.Language, docs.Passport, docs.License, docs.TechPassport,
		next.Phone, docs.Media, next.InvitedBy, next.InvitedByUsername, string(next.Status),
		next.ClaimedBy, next.ClaimedByName, next.ResolvedBy, next.ResolvedByName,
		next.QueueChatID, next.QueueMessageID, next.UpdatedAt,
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
	add := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.InvitedBy != 0 {
		add("invited_by", filter.InvitedBy)
	}
	if filter.TelegramID != 0 {
		add("telegram_id", filter.TelegramID)
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM drivers WHERE id = $1`, id)
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
		passport, license, techPassport, media []byte
	)
	if err := row.Scan(
		&d.ID, &d.TelegramID, &d.Username, &d.Language, &passport, &license, &techPassport, &d.Phone, &media,
		&d.InvitedBy, &d.InvitedByUsername, &status, &d.ClaimedBy, &d.ClaimedByName, &d.ResolvedBy, &d.ResolvedByName,
		&d.QueueChatID, &d.QueueMessageID, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return driver.Driver{}, driver.ErrNotFound
		}
		return driver.Driver{}, fmt.Errorf("scan driver: %w", err)
	}
	d.Status = driver.Status(status)
	if err := store.DecodeDocuments(&d, passport, license, techPassport, media); err != nil {
		return driver.Driver{}, err
	}
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return d, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
