package subscriptionservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zanzhit/securecam/internal/domain/errs"
	"github.com/zanzhit/securecam/internal/domain/models"
	"github.com/zanzhit/securecam/internal/domain/policy"
	"github.com/zanzhit/securecam/internal/domain/reconcile"
	"github.com/zanzhit/securecam/internal/lib/sl"
)

type SubscriptionService struct {
	log     *slog.Logger
	storage SubscriptionStorage
}

type SubscriptionStorage interface {
	SetUserCameras(ctx context.Context, userID int64, desired []int64) (models.SubscriptionChanges, error)
	SetCameraUsers(ctx context.Context, cameraID int64, desired []int64) (models.SubscriptionChanges, error)
	Subscribe(ctx context.Context, userID, cameraID int64) (models.Subscription, error)
	Unsubscribe(ctx context.Context, userID, cameraID int64) error
	UserSubscriptions(ctx context.Context, userID int64) ([]models.Subscription, error)
	CameraSubscribers(ctx context.Context, cameraID int64) ([]models.Subscription, error)
}

func New(log *slog.Logger, storage SubscriptionStorage) *SubscriptionService {
	return &SubscriptionService{
		log:     log,
		storage: storage,
	}
}

// SetSubscriptions makes the user's subscriptions equal desired in one
// transaction. Unknown camera ids fail the call and are all reported.
func (s *SubscriptionService) SetSubscriptions(ctx context.Context, caller policy.Caller, userID int64, desired []int64) (models.SubscriptionChanges, error) {
	const op = "service.subscriptions.SetSubscriptions"

	log := s.log.With(
		slog.String("op", op),
		slog.Int64("user_id", userID),
	)

	if err := authorize(caller, userID, nil, policy.ActionCreate); err != nil {
		return models.SubscriptionChanges{}, fmt.Errorf("%s: %w", op, err)
	}

	changes, err := s.storage.SetUserCameras(ctx, userID, reconcile.Unique(desired))
	if err != nil {
		s.logFailure(log, err)

		return models.SubscriptionChanges{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("subscriptions reconciled",
		slog.Int("created", len(changes.Created)),
		slog.Int("deleted", len(changes.Deleted)),
	)

	return changes, nil
}

// SetSubscribers makes the camera's subscribers equal desired. Admin only.
func (s *SubscriptionService) SetSubscribers(ctx context.Context, caller policy.Caller, cameraID int64, desired []int64) (models.SubscriptionChanges, error) {
	const op = "service.subscriptions.SetSubscribers"

	log := s.log.With(
		slog.String("op", op),
		slog.Int64("camera_id", cameraID),
	)

	if err := authorize(caller, 0, &cameraID, policy.ActionCreate); err != nil {
		return models.SubscriptionChanges{}, fmt.Errorf("%s: %w", op, err)
	}

	changes, err := s.storage.SetCameraUsers(ctx, cameraID, reconcile.Unique(desired))
	if err != nil {
		s.logFailure(log, err)

		return models.SubscriptionChanges{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("subscribers reconciled",
		slog.Int("created", len(changes.Created)),
		slog.Int("deleted", len(changes.Deleted)),
	)

	return changes, nil
}

func (s *SubscriptionService) Subscribe(ctx context.Context, caller policy.Caller, userID, cameraID int64) (models.Subscription, error) {
	const op = "service.subscriptions.Subscribe"

	if err := authorize(caller, userID, &cameraID, policy.ActionCreate); err != nil {
		return models.Subscription{}, fmt.Errorf("%s: %w", op, err)
	}

	sub, err := s.storage.Subscribe(ctx, userID, cameraID)
	if err != nil {
		return models.Subscription{}, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("subscribed", slog.String("op", op), slog.Int64("user_id", userID), slog.Int64("camera_id", cameraID))

	return sub, nil
}

func (s *SubscriptionService) Unsubscribe(ctx context.Context, caller policy.Caller, userID, cameraID int64) error {
	const op = "service.subscriptions.Unsubscribe"

	if err := authorize(caller, userID, &cameraID, policy.ActionDelete); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.Unsubscribe(ctx, userID, cameraID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("unsubscribed", slog.String("op", op), slog.Int64("user_id", userID), slog.Int64("camera_id", cameraID))

	return nil
}

func (s *SubscriptionService) UserSubscriptions(ctx context.Context, caller policy.Caller, userID int64) ([]models.Subscription, error) {
	const op = "service.subscriptions.UserSubscriptions"

	if err := authorize(caller, userID, nil, policy.ActionRead); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	subs, err := s.storage.UserSubscriptions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return subs, nil
}

// CameraSubscribers lists who watches the camera. Admin only.
func (s *SubscriptionService) CameraSubscribers(ctx context.Context, caller policy.Caller, cameraID int64) ([]models.Subscription, error) {
	const op = "service.subscriptions.CameraSubscribers"

	if err := authorize(caller, 0, &cameraID, policy.ActionRead); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	subs, err := s.storage.CameraSubscribers(ctx, cameraID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return subs, nil
}

func (s *SubscriptionService) logFailure(log *slog.Logger, err error) {
	var missingCameras *errs.MissingCamerasError
	var missingUsers *errs.MissingUsersError

	switch {
	case errors.As(err, &missingCameras):
		log.Warn("reconciliation rejected", slog.Any("missing_cameras", missingCameras.IDs))
	case errors.As(err, &missingUsers):
		log.Warn("reconciliation rejected", slog.Any("missing_users", missingUsers.IDs))
	case errors.Is(err, errs.ErrNotFound):
		log.Warn("reconciliation target not found")
	default:
		log.Error("failed to reconcile", sl.Err(err))
	}
}

func authorize(caller policy.Caller, userID int64, cameraID *int64, action policy.Action) error {
	return policy.Authorize(caller, policy.KindSubscription, policy.Resource{UserID: userID, CameraID: cameraID}, action)
}
