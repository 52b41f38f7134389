package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite3 "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"robotcfe.app/cloud/models"
)

var (
	// ErrAlreadyExists is returned by CreateLicense when a record for the
	// email is already present. Callers treat it as a successful no-op so
	// redelivered checkout events never fail the webhook.
	ErrAlreadyExists = errors.New("license already exists")

	// ErrNotFound is returned by RenewLicense and SuspendLicense when no
	// record exists for the email.
	ErrNotFound = errors.New("license not found")
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store interface {
	// CreateLicense inserts a new active record. Returns ErrAlreadyExists
	// without touching the existing record when the email is taken.
	CreateLicense(ctx context.Context, license *models.License) error

	// RenewLicense extends expiry by one year anchored on whichever is
	// later, the current expiry or now, reactivates a suspended record and
	// stamps the renewal time. Returns the new expiry.
	RenewLicense(ctx context.Context, email string, now time.Time) (time.Time, error)

	// SuspendLicense marks the record suspended, leaving expiry untouched.
	SuspendLicense(ctx context.Context, email string) error

	// GetLicense returns the record for the email, or nil when none exists.
	GetLicense(ctx context.Context, email string) (*models.License, error)

	Close() error
}

// NormalizeEmail folds an email address to its canonical lookup form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// renewalAnchor picks the point a renewal extends from: the current expiry
// when it is still in the future, otherwise now. A lapsed record never
// double-stacks the missed period.
func renewalAnchor(currentExpiry, now time.Time) time.Time {
	if currentExpiry.After(now) {
		return currentExpiry
	}
	return now
}

// MemoryStore keeps records in a map, serialized by one mutex. Used in
// tests and as the reference implementation for SQLiteStore's semantics.
type MemoryStore struct {
	mu       sync.Mutex
	Licenses map[string]models.License
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Licenses: make(map[string]models.License),
	}
}

func (m *MemoryStore) CreateLicense(ctx context.Context, license *models.License) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := NormalizeEmail(license.Email)
	if _, exists := m.Licenses[email]; exists {
		return ErrAlreadyExists
	}

	record := *license
	record.Email = email
	record.Status = models.StatusActive
	m.Licenses[email] = record
	return nil
}

func (m *MemoryStore) RenewLicense(ctx context.Context, email string, now time.Time) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, exists := m.Licenses[NormalizeEmail(email)]
	if !exists {
		return time.Time{}, ErrNotFound
	}

	record.ExpiresAt = renewalAnchor(record.ExpiresAt, now).AddDate(1, 0, 0)
	record.Status = models.StatusActive
	renewedAt := now
	record.LastRenewalAt = &renewedAt
	record.UpdatedAt = now
	m.Licenses[record.Email] = record

	return record.ExpiresAt, nil
}

func (m *MemoryStore) SuspendLicense(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, exists := m.Licenses[NormalizeEmail(email)]
	if !exists {
		return ErrNotFound
	}

	record.Status = models.StatusSuspended
	record.UpdatedAt = time.Now().UTC()
	m.Licenses[record.Email] = record
	return nil
}

func (m *MemoryStore) GetLicense(ctx context.Context, email string) (*models.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, exists := m.Licenses[NormalizeEmail(email)]
	if !exists {
		return nil, nil
	}
	return &record, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens the database and applies pending migrations. Safe to
// call on every startup; migrations are idempotent.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		db:   db,
		path: path,
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	driver, err := migratesqlite3.WithInstance(s.db, &migratesqlite3.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

func (s *SQLiteStore) CreateLicense(ctx context.Context, license *models.License) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	email := NormalizeEmail(license.Email)

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT id FROM licenses WHERE email = ?`, email).Scan(&existing)
	if err == nil {
		return ErrAlreadyExists
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check existing license: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO licenses (id, email, status, expires_at, created_at, stripe_customer_id, stripe_subscription_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		license.ID,
		email,
		models.StatusActive,
		license.ExpiresAt.UTC(),
		license.CreatedAt.UTC(),
		license.StripeCustomerID,
		license.StripeSubscriptionID,
		license.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert license: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) RenewLicense(ctx context.Context, email string, now time.Time) (time.Time, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	normalized := NormalizeEmail(email)

	var currentExpiry time.Time
	err = tx.QueryRowContext(ctx, `SELECT expires_at FROM licenses WHERE email = ?`, normalized).Scan(&currentExpiry)
	if err == sql.ErrNoRows {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read current expiry: %w", err)
	}

	newExpiry := renewalAnchor(currentExpiry, now).AddDate(1, 0, 0)

	_, err = tx.ExecContext(ctx, `
		UPDATE licenses
		SET expires_at = ?, status = ?, last_renewal_at = ?, updated_at = ?
		WHERE email = ?`,
		newExpiry.UTC(),
		models.StatusActive,
		now.UTC(),
		now.UTC(),
		normalized,
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to update license: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("failed to commit renewal: %w", err)
	}

	return newExpiry, nil
}

func (s *SQLiteStore) SuspendLicense(ctx context.Context, email string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE licenses
		SET status = ?, updated_at = ?
		WHERE email = ?`,
		models.StatusSuspended,
		time.Now().UTC(),
		NormalizeEmail(email),
	)
	if err != nil {
		return fmt.Errorf("failed to suspend license: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *SQLiteStore) GetLicense(ctx context.Context, email string) (*models.License, error) {
	query := `SELECT id, email, status, expires_at, created_at, last_renewal_at, stripe_customer_id, stripe_subscription_id, updated_at FROM licenses WHERE email = ?`

	var license models.License
	var lastRenewal sql.NullTime
	err := s.db.QueryRowContext(ctx, query, NormalizeEmail(email)).Scan(
		&license.ID,
		&license.Email,
		&license.Status,
		&license.ExpiresAt,
		&license.CreatedAt,
		&lastRenewal,
		&license.StripeCustomerID,
		&license.StripeSubscriptionID,
		&license.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lastRenewal.Valid {
		license.LastRenewalAt = &lastRenewal.Time
	}

	return &license, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
