package userstorage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/zanzhit/securecam/internal/domain/errs"
	"github.com/zanzhit/securecam/internal/domain/models"
	"github.com/zanzhit/securecam/internal/storage/postgres"
)

const userColumns = "id, email, password_hash, is_admin, registered_at"

type UserStorage struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *UserStorage {
	return &UserStorage{db: db}
}

// SaveUser inserts a user. With firstUserAdmin the table is locked so that
// exactly one concurrent registration can observe the table empty and become admin.
func (s *UserStorage) SaveUser(ctx context.Context, email, passwordHash string, firstUserAdmin bool) (models.User, error) {
	const op = "storage.postgres.users.SaveUser"

	var user models.User

	err := postgres.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		isAdmin := false

		if firstUserAdmin {
			lock := fmt.Sprintf("LOCK TABLE %s IN SHARE ROW EXCLUSIVE MODE", postgres.UsersTable)
			if _, err := tx.ExecContext(ctx, lock); err != nil {
				return err
			}

			query := fmt.Sprintf("SELECT NOT EXISTS (SELECT 1 FROM %s)", postgres.UsersTable)
			if err := tx.GetContext(ctx, &isAdmin, query); err != nil {
				return err
			}
		}

		query := fmt.Sprintf("INSERT INTO %s (email, password_hash, is_admin) VALUES ($1, $2, $3) RETURNING %s",
			postgres.UsersTable, userColumns)

		return tx.GetContext(ctx, &user, query, email, passwordHash, isAdmin)
	})
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, postgres.MapError(err, errs.ErrUserNotFound, errs.ErrUserExists))
	}

	return user, nil
}

func (s *UserStorage) User(ctx context.Context, ref models.UserRef) (models.User, error) {
	const op = "storage.postgres.users.User"

	column, arg := "email", any(ref.Email)
	if ref.IsID() {
		column, arg = "id", ref.ID
	}

	var user models.User
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", userColumns, postgres.UsersTable, column)

	err := postgres.Retry(ctx, func() error {
		return s.db.GetContext(ctx, &user, query, arg)
	})
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, postgres.MapError(err, errs.ErrUserNotFound, nil))
	}

	return user, nil
}

func (s *UserStorage) Users(ctx context.Context, filter models.UserFilter, page models.Page) ([]models.User, error) {
	const op = "storage.postgres.users.Users"

	var where postgres.Where
	if filter.IDs != nil {
		where.Add("id = ANY(?)", pq.Array(filter.IDs))
	}
	if filter.Email != "" {
		where.Add("email ILIKE ?", postgres.Like(filter.Email))
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY id LIMIT %s OFFSET %s",
		userColumns, postgres.UsersTable, where.String(), where.Arg(page.Limit()), where.Arg(page.Offset()))

	users := []models.User{}

	err := postgres.Retry(ctx, func() error {
		users = users[:0]
		return s.db.SelectContext(ctx, &users, query, where.Args()...)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return users, nil
}

// UpdateUser changes the non-nil fields and returns the stored user.
func (s *UserStorage) UpdateUser(ctx context.Context, id int64, email, passwordHash *string, isAdmin *bool) (models.User, error) {
	const op = "storage.postgres.users.UpdateUser"

	var set postgres.Assignments
	if email != nil {
		set.Set("email", *email)
	}
	if passwordHash != nil {
		set.Set("password_hash", *passwordHash)
	}
	if isAdmin != nil {
		set.Set("is_admin", *isAdmin)
	}

	if set.Empty() {
		return s.User(ctx, models.ByID(id))
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s RETURNING %s",
		postgres.UsersTable, set.String(), set.Arg(id), userColumns)

	var user models.User

	err := postgres.Retry(ctx, func() error {
		return s.db.GetContext(ctx, &user, query, set.Args()...)
	})
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, postgres.MapError(err, errs.ErrUserNotFound, errs.ErrUserExists))
	}

	return user, nil
}

// DeleteUser removes the user; refresh tokens, tokens and subscriptions cascade.
func (s *UserStorage) DeleteUser(ctx context.Context, id int64) error {
	const op = "storage.postgres.users.DeleteUser"

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", postgres.UsersTable)

	var res sql.Result
	err := postgres.Retry(ctx, func() (err error) {
		res, err = s.db.ExecContext(ctx, query, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", op, errs.ErrUserNotFound)
	}

	return nil
}
