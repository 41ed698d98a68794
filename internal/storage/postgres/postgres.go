package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/zanzhit/securecam/internal/config"
	"github.com/zanzhit/securecam/internal/domain/errs"
)

const (
	UsersTable          = "users"
	CamerasTable        = "cameras"
	SubscriptionsTable  = "camera_subscriptions"
	VideosTable         = "videos"
	VideoUsersTable     = "video_users"
	RefreshTokensTable  = "refresh_tokens"
	AccessTokensTable   = "personal_access_tokens"
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

const maxRetries = 3

// RetryInterval is the first backoff delay between attempts on a transient failure.
var RetryInterval = 100 * time.Millisecond

func New(cfg config.DB) (*sqlx.DB, error) {
	const op = "storage.postgres.New"

	db, err := sqlx.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	err = Retry(context.Background(), db.Ping)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return db, nil
}

func DSN(cfg config.DB) string {
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.DBName, cfg.Password, cfg.SSLMode)
}

// Retry runs fn until it succeeds, fails with a non-transient error or runs
// out of attempts. Exhausted transient failures wrap errs.ErrServiceUnavailable.
func Retry(ctx context.Context, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInterval

	err := backoff.Retry(func() error {
		err := fn()
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx))

	if err != nil && IsTransient(err) {
		return fmt.Errorf("%w: %w", errs.ErrServiceUnavailable, err)
	}

	return err
}

// WithTx runs fn in a transaction, retrying the whole unit on transient failures.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	return Retry(ctx, func() (err error) {
		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}

		defer func() {
			if p := recover(); p != nil {
				_ = tx.Rollback()
				panic(p)
			}
			if err != nil {
				_ = tx.Rollback()
			}
		}()

		if err = fn(tx); err != nil {
			return err
		}

		return tx.Commit()
	})
}

func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return strings.HasPrefix(code, "08") || code == "40001" || code == "57P01"
	}

	return false
}

// MapError translates driver errors into domain errors. A missing row and a
// foreign key violation become notFound, a unique violation becomes conflict.
func MapError(err, notFound, conflict error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case uniqueViolation:
			if conflict != nil {
				return conflict
			}
			return errs.ErrConflict
		case foreignKeyViolation:
			if notFound != nil {
				return notFound
			}
			return errs.ErrNotFound
		}
	}

	return err
}

// Assignments collects the SET list of an UPDATE statement.
type Assignments struct {
	parts []string
	args  []any
}

func (a *Assignments) Set(column string, value any) {
	a.args = append(a.args, value)
	a.parts = append(a.parts, fmt.Sprintf("%s = $%d", column, len(a.args)))
}

func (a *Assignments) Empty() bool { return len(a.parts) == 0 }

func (a *Assignments) String() string { return strings.Join(a.parts, ", ") }

// Arg appends a trailing argument and returns its placeholder.
func (a *Assignments) Arg(value any) string {
	a.args = append(a.args, value)
	return fmt.Sprintf("$%d", len(a.args))
}

func (a *Assignments) Args() []any { return a.args }

// Where collects the conditions of a list query.
type Where struct {
	conds []string
	args  []any
}

func (w *Where) Add(cond string, args ...any) {
	for _, arg := range args {
		w.args = append(w.args, arg)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w *Where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// Arg appends a trailing argument and returns its placeholder.
func (w *Where) Arg(value any) string {
	w.args = append(w.args, value)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *Where) Args() []any { return w.args }

// Like escapes s for a substring ILIKE match.
func Like(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
