package subscriptionstorage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/zanzhit/securecam/internal/domain/errs"
	"github.com/zanzhit/securecam/internal/domain/models"
	"github.com/zanzhit/securecam/internal/domain/reconcile"
	"github.com/zanzhit/securecam/internal/storage/postgres"
)

const subscriptionColumns = "user_id, camera_id, registered_at"

type SubscriptionStorage struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *SubscriptionStorage {
	return &SubscriptionStorage{db: db}
}

// side describes one end of the user-camera relation.
type side struct {
	table    string
	column   string
	notFound error
	missing  func(ids []int64) error
}

var (
	userSide = side{
		table:    postgres.UsersTable,
		column:   "user_id",
		notFound: errs.ErrUserNotFound,
		missing:  func(ids []int64) error { return &errs.MissingUsersError{IDs: ids} },
	}
	cameraSide = side{
		table:    postgres.CamerasTable,
		column:   "camera_id",
		notFound: errs.ErrCameraNotFound,
		missing:  func(ids []int64) error { return &errs.MissingCamerasError{IDs: ids} },
	}
)

// SetUserCameras makes the user's subscriptions equal desired. Every camera id
// that does not exist fails the whole call.
func (s *SubscriptionStorage) SetUserCameras(ctx context.Context, userID int64, desired []int64) (models.SubscriptionChanges, error) {
	const op = "storage.postgres.subscriptions.SetUserCameras"

	changes, err := s.reconcile(ctx, userSide, cameraSide, userID, desired)
	if err != nil {
		return models.SubscriptionChanges{}, fmt.Errorf("%s: %w", op, err)
	}

	return changes, nil
}

// SetCameraUsers makes the camera's subscribers equal desired.
func (s *SubscriptionStorage) SetCameraUsers(ctx context.Context, cameraID int64, desired []int64) (models.SubscriptionChanges, error) {
	const op = "storage.postgres.subscriptions.SetCameraUsers"

	changes, err := s.reconcile(ctx, cameraSide, userSide, cameraID, desired)
	if err != nil {
		return models.SubscriptionChanges{}, fmt.Errorf("%s: %w", op, err)
	}

	return changes, nil
}

// reconcile locks the owner row, so concurrent reconciliations of the same
// owner run one after another.
func (s *SubscriptionStorage) reconcile(ctx context.Context, owner, other side, ownerID int64, desired []int64) (models.SubscriptionChanges, error) {
	var changes models.SubscriptionChanges

	err := postgres.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		changes = models.SubscriptionChanges{Created: []models.Subscription{}, Deleted: []models.Subscription{}}

		var locked int64
		query := fmt.Sprintf("SELECT id FROM %s WHERE id = $1 FOR UPDATE", owner.table)
		if err := tx.GetContext(ctx, &locked, query, ownerID); err != nil {
			return postgres.MapError(err, owner.notFound, nil)
		}

		var current []int64
		query = fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1", other.column, postgres.SubscriptionsTable, owner.column)
		if err := tx.SelectContext(ctx, &current, query, ownerID); err != nil {
			return err
		}

		add, remove := reconcile.Diff(current, desired)

		if len(add) > 0 {
			var existing []int64
			query = fmt.Sprintf("SELECT id FROM %s WHERE id = ANY($1) FOR SHARE", other.table)
			if err := tx.SelectContext(ctx, &existing, query, pq.Array(add)); err != nil {
				return err
			}

			if missing := reconcile.Missing(add, existing); len(missing) > 0 {
				return other.missing(missing)
			}
		}

		if len(remove) > 0 {
			query = fmt.Sprintf("DELETE FROM %s WHERE %s = $1 AND %s = ANY($2) RETURNING %s",
				postgres.SubscriptionsTable, owner.column, other.column, subscriptionColumns)
			if err := tx.SelectContext(ctx, &changes.Deleted, query, ownerID, pq.Array(remove)); err != nil {
				return err
			}
		}

		if len(add) > 0 {
			query = fmt.Sprintf(`INSERT INTO %s (%s, %s) SELECT $1, unnest($2::bigint[])
				ON CONFLICT DO NOTHING RETURNING %s`,
				postgres.SubscriptionsTable, owner.column, other.column, subscriptionColumns)
			if err := tx.SelectContext(ctx, &changes.Created, query, ownerID, pq.Array(add)); err != nil {
				return postgres.MapError(err, other.notFound, nil)
			}
		}

		return nil
	})
	if err != nil {
		return models.SubscriptionChanges{}, err
	}

	return changes, nil
}

// Subscribe links the user to the camera. An existing link is returned as is.
func (s *SubscriptionStorage) Subscribe(ctx context.Context, userID, cameraID int64) (models.Subscription, error) {
	const op = "storage.postgres.subscriptions.Subscribe"

	var sub models.Subscription

	err := postgres.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		query := fmt.Sprintf(`INSERT INTO %s (user_id, camera_id) VALUES ($1, $2)
			ON CONFLICT (user_id, camera_id) DO UPDATE SET user_id = EXCLUDED.user_id RETURNING %s`,
			postgres.SubscriptionsTable, subscriptionColumns)

		return tx.GetContext(ctx, &sub, query, userID, cameraID)
	})
	if err != nil {
		return models.Subscription{}, fmt.Errorf("%s: %w", op, foreignKeyError(err))
	}

	return sub, nil
}

func (s *SubscriptionStorage) Unsubscribe(ctx context.Context, userID, cameraID int64) error {
	const op = "storage.postgres.subscriptions.Unsubscribe"

	query := fmt.Sprintf("DELETE FROM %s WHERE user_id = $1 AND camera_id = $2", postgres.SubscriptionsTable)

	var affected int64
	err := postgres.Retry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, query, userID, cameraID)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if affected == 0 {
		return fmt.Errorf("%s: %w", op, errs.ErrSubscriptionNotFound)
	}

	return nil
}

func (s *SubscriptionStorage) UserSubscriptions(ctx context.Context, userID int64) ([]models.Subscription, error) {
	const op = "storage.postgres.subscriptions.UserSubscriptions"

	subs, err := s.list(ctx, "user_id", userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return subs, nil
}

func (s *SubscriptionStorage) CameraSubscribers(ctx context.Context, cameraID int64) ([]models.Subscription, error) {
	const op = "storage.postgres.subscriptions.CameraSubscribers"

	subs, err := s.list(ctx, "camera_id", cameraID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return subs, nil
}

// UserCameraIDs returns the ids of the cameras the user is subscribed to.
func (s *SubscriptionStorage) UserCameraIDs(ctx context.Context, userID int64) ([]int64, error) {
	const op = "storage.postgres.subscriptions.UserCameraIDs"

	query := fmt.Sprintf("SELECT camera_id FROM %s WHERE user_id = $1 ORDER BY camera_id", postgres.SubscriptionsTable)

	ids := []int64{}
	err := postgres.Retry(ctx, func() error {
		ids = ids[:0]
		return s.db.SelectContext(ctx, &ids, query, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return ids, nil
}

func (s *SubscriptionStorage) list(ctx context.Context, column string, id int64) ([]models.Subscription, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 ORDER BY user_id, camera_id",
		subscriptionColumns, postgres.SubscriptionsTable, column)

	subs := []models.Subscription{}
	err := postgres.Retry(ctx, func() error {
		subs = subs[:0]
		return s.db.SelectContext(ctx, &subs, query, id)
	})

	return subs, err
}

// foreignKeyError tells a missing user from a missing camera by the violated constraint.
func foreignKeyError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == "23503" {
		if strings.Contains(pqErr.Constraint, "camera") {
			return errs.ErrCameraNotFound
		}
		return errs.ErrUserNotFound
	}

	return err
}
