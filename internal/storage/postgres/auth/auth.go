package authstorage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/zanzhit/securecam/internal/domain/errs"
	"github.com/zanzhit/securecam/internal/domain/models"
	"github.com/zanzhit/securecam/internal/storage/postgres"
)

const (
	refreshColumns = "id, token, user_id, expires_at, issued_at, device_info"
	patColumns     = "id, user_id, name, expires_at, created_at"
)

type AuthStorage struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *AuthStorage {
	return &AuthStorage{db: db}
}

func (s *AuthStorage) SaveRefreshToken(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	const op = "storage.postgres.auth.SaveRefreshToken"

	query := fmt.Sprintf("INSERT INTO %s (token, user_id, expires_at, device_info) VALUES ($1, $2, $3, $4) RETURNING %s",
		postgres.RefreshTokensTable, refreshColumns)

	var saved models.RefreshToken
	err := postgres.Retry(ctx, func() error {
		return s.db.GetContext(ctx, &saved, query, token.Token, token.UserID, token.ExpiresAt, token.DeviceInfo)
	})
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, postgres.MapError(err, errs.ErrUserNotFound, errs.ErrConflict))
	}

	return saved, nil
}

// RotateRefreshToken replaces the row holding token with a new one built by
// issue from the old row. The delete is the serialization point: of two
// concurrent rotations of the same token only one finds the row.
// The new row keeps the old expiry.
func (s *AuthStorage) RotateRefreshToken(
	ctx context.Context,
	token string,
	now time.Time,
	issue func(old models.RefreshToken) (string, error),
) (models.RefreshToken, error) {
	const op = "storage.postgres.auth.RotateRefreshToken"

	var rotated models.RefreshToken

	err := postgres.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var old models.RefreshToken

		query := fmt.Sprintf("DELETE FROM %s WHERE token = $1 RETURNING %s", postgres.RefreshTokensTable, refreshColumns)
		if err := tx.GetContext(ctx, &old, query, token); err != nil {
			return postgres.MapError(err, errs.ErrRefreshTokenInvalid, nil)
		}

		if !old.ExpiresAt.After(now) {
			return errs.ErrRefreshTokenInvalid
		}

		next, err := issue(old)
		if err != nil {
			return err
		}

		query = fmt.Sprintf("INSERT INTO %s (token, user_id, expires_at, device_info) VALUES ($1, $2, $3, $4) RETURNING %s",
			postgres.RefreshTokensTable, refreshColumns)

		return tx.GetContext(ctx, &rotated, query, next, old.UserID, old.ExpiresAt, old.DeviceInfo)
	})
	if err != nil {
		return models.RefreshToken{}, fmt.Errorf("%s: %w", op, err)
	}

	return rotated, nil
}

// DeleteRefreshToken removes the session only if it belongs to userID.
func (s *AuthStorage) DeleteRefreshToken(ctx context.Context, token string, userID int64) error {
	const op = "storage.postgres.auth.DeleteRefreshToken"

	query := fmt.Sprintf("DELETE FROM %s WHERE token = $1 AND user_id = $2", postgres.RefreshTokensTable)

	n, err := s.exec(ctx, query, token, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if n == 0 {
		return fmt.Errorf("%s: %w", op, errs.ErrRefreshTokenInvalid)
	}

	return nil
}

func (s *AuthStorage) DeleteUserRefreshTokens(ctx context.Context, userID int64) (int64, error) {
	const op = "storage.postgres.auth.DeleteUserRefreshTokens"

	query := fmt.Sprintf("DELETE FROM %s WHERE user_id = $1", postgres.RefreshTokensTable)

	n, err := s.exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

// DeleteExpired removes refresh tokens and access token records that expired before now.
func (s *AuthStorage) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgres.auth.DeleteExpired"

	var total int64

	for _, table := range []string{postgres.RefreshTokensTable, postgres.AccessTokensTable} {
		query := fmt.Sprintf("DELETE FROM %s WHERE expires_at <= $1", table)

		n, err := s.exec(ctx, query, now)
		if err != nil {
			return total, fmt.Errorf("%s: %w", op, err)
		}

		total += n
	}

	return total, nil
}

func (s *AuthStorage) SavePAT(ctx context.Context, pat models.PersonalAccessToken) (models.PersonalAccessToken, error) {
	const op = "storage.postgres.auth.SavePAT"

	query := fmt.Sprintf("INSERT INTO %s (id, user_id, name, expires_at) VALUES ($1, $2, $3, $4) RETURNING %s",
		postgres.AccessTokensTable, patColumns)

	var saved models.PersonalAccessToken
	err := postgres.Retry(ctx, func() error {
		return s.db.GetContext(ctx, &saved, query, pat.ID, pat.UserID, pat.Name, pat.ExpiresAt)
	})
	if err != nil {
		return models.PersonalAccessToken{}, fmt.Errorf("%s: %w", op, postgres.MapError(err, errs.ErrUserNotFound, errs.ErrConflict))
	}

	return saved, nil
}

func (s *AuthStorage) PAT(ctx context.Context, id string) (models.PersonalAccessToken, error) {
	const op = "storage.postgres.auth.PAT"

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", patColumns, postgres.AccessTokensTable)

	var pat models.PersonalAccessToken
	err := postgres.Retry(ctx, func() error {
		return s.db.GetContext(ctx, &pat, query, id)
	})
	if err != nil {
		return models.PersonalAccessToken{}, fmt.Errorf("%s: %w", op, postgres.MapError(err, errs.ErrTokenNotFound, nil))
	}

	return pat, nil
}

func (s *AuthStorage) PATs(ctx context.Context, userID int64) ([]models.PersonalAccessToken, error) {
	const op = "storage.postgres.auth.PATs"

	query := fmt.Sprintf("SELECT %s FROM %s WHERE user_id = $1 ORDER BY created_at", patColumns, postgres.AccessTokensTable)

	pats := []models.PersonalAccessToken{}
	err := postgres.Retry(ctx, func() error {
		pats = pats[:0]
		return s.db.SelectContext(ctx, &pats, query, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return pats, nil
}

func (s *AuthStorage) DeletePAT(ctx context.Context, id string) error {
	const op = "storage.postgres.auth.DeletePAT"

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", postgres.AccessTokensTable)

	n, err := s.exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if n == 0 {
		return fmt.Errorf("%s: %w", op, errs.ErrTokenNotFound)
	}

	return nil
}

func (s *AuthStorage) exec(ctx context.Context, query string, args ...any) (int64, error) {
	var affected int64

	err := postgres.Retry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})

	return affected, err
}
