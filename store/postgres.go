package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/microplat/authcore/store/migrations"
)

// PostgresStore implements Store over DBTX (satisfied by *sql.DB or
// *sql.Tx).
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore constructs a store bound to the given DBTX.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

const refreshTokenColumns = `token, user_id, user_email, expires_at, ip_address, user_agent,
		device_fingerprint, revoked, revoked_at, revocation_reason, usage_count,
		last_used_at, deleted, deleted_at, version, created_at`

func (s *PostgresStore) Create(ctx context.Context, rec *RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (token, user_id, user_email, expires_at,
			ip_address, user_agent, device_fingerprint, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.Token, rec.UserID, rec.UserEmail, rec.ExpiresAt,
		rec.IPAddress, rec.UserAgent, rec.DeviceFingerprint, rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) FindActive(ctx context.Context, token string) (*RefreshToken, error) {
	query := `
		SELECT ` + refreshTokenColumns + `
		FROM refresh_tokens
		WHERE token = $1 AND deleted = FALSE
	`
	rec := &RefreshToken{}
	err := s.db.QueryRowContext(ctx, query, token).Scan(
		&rec.Token, &rec.UserID, &rec.UserEmail, &rec.ExpiresAt,
		&rec.IPAddress, &rec.UserAgent, &rec.DeviceFingerprint,
		&rec.Revoked, &rec.RevokedAt, &rec.RevocationReason,
		&rec.UsageCount, &rec.LastUsedAt, &rec.Deleted, &rec.DeletedAt,
		&rec.Version, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rec, nil
}

// Revoke transitions a live row to revoked. The revoked = FALSE guard makes
// the operation idempotent: only the call that performed the transition
// sees an affected row.
func (s *PostgresStore) Revoke(ctx context.Context, token, reason string, at time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2, revocation_reason = $3, version = version + 1
		WHERE token = $1 AND revoked = FALSE AND deleted = FALSE
	`
	res, err := s.db.ExecContext(ctx, query, token, at, reason)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return affected, nil
}

func (s *PostgresStore) RevokeAllForUser(ctx context.Context, userID int64, reason string, at time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2, revocation_reason = $3, version = version + 1
		WHERE user_id = $1 AND revoked = FALSE AND deleted = FALSE
	`
	res, err := s.db.ExecContext(ctx, query, userID, at, reason)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return affected, nil
}

// IncrementUsage is a single atomic UPDATE; concurrent refreshes serialize
// on the row and never lose counts.
func (s *PostgresStore) IncrementUsage(ctx context.Context, token string, at time.Time) error {
	query := `
		UPDATE refresh_tokens
		SET usage_count = usage_count + 1, last_used_at = $2, version = version + 1
		WHERE token = $1 AND deleted = FALSE
	`
	res, err := s.db.ExecContext(ctx, query, token, at)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountActiveForUser(ctx context.Context, userID int64, now time.Time) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked = FALSE AND deleted = FALSE AND expires_at > $2
	`
	var count int64
	if err := s.db.QueryRowContext(ctx, query, userID, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return count, nil
}

func (s *PostgresStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE expires_at < $1
	`
	res, err := s.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return affected, nil
}
