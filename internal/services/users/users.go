package userservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/zanzhit/securecam/internal/domain/errs"
	"github.com/zanzhit/securecam/internal/domain/models"
	"github.com/zanzhit/securecam/internal/domain/policy"
	"github.com/zanzhit/securecam/internal/lib/sl"
)

type UserService struct {
	log            *slog.Logger
	firstUserAdmin bool
	hasher         PasswordHasher
	storage        UserStorage
}

type PasswordHasher interface {
	HashNew(password string) (string, error)
}

type UserStorage interface {
	SaveUser(ctx context.Context, email, passwordHash string, firstUserAdmin bool) (models.User, error)
	User(ctx context.Context, ref models.UserRef) (models.User, error)
	Users(ctx context.Context, filter models.UserFilter, page models.Page) ([]models.User, error)
	UpdateUser(ctx context.Context, id int64, email, passwordHash *string, isAdmin *bool) (models.User, error)
	DeleteUser(ctx context.Context, id int64) error
}

func New(log *slog.Logger, firstUserAdmin bool, hasher PasswordHasher, storage UserStorage) *UserService {
	return &UserService{
		log:            log,
		firstUserAdmin: firstUserAdmin,
		hasher:         hasher,
		storage:        storage,
	}
}

// Register creates a user. The first user ever created becomes an admin
// when that is enabled.
func (s *UserService) Register(ctx context.Context, email, password string) (models.User, error) {
	const op = "service.users.Register"

	log := s.log.With(
		slog.String("op", op),
		slog.String("email", email),
	)

	log.Info("registering user")

	hash, err := s.hasher.HashNew(password)
	if err != nil {
		log.Error("failed to hash password", sl.Err(err))

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.storage.SaveUser(ctx, email, hash, s.firstUserAdmin)
	if err != nil {
		if errors.Is(err, errs.ErrConflict) {
			log.Warn("user already exists")
		} else {
			log.Error("failed to save user", sl.Err(err))
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.Int64("user_id", user.ID), slog.Bool("is_admin", user.IsAdmin))

	return user, nil
}

// User resolves ref into a user the caller may read. Unknown and forbidden
// users are told apart only for admins.
func (s *UserService) User(ctx context.Context, caller policy.Caller, ref models.UserRef) (models.User, error) {
	const op = "service.users.User"

	user, err := s.storage.User(ctx, ref)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) && !caller.IsAdmin {
			return models.User{}, fmt.Errorf("%s: %w", op, errs.ErrForbidden)
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := policy.Authorize(caller, policy.KindUser, policy.User(user.ID), policy.ActionRead); err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// Users lists users. Non-admins only ever see themselves.
func (s *UserService) Users(ctx context.Context, caller policy.Caller, filter models.UserFilter, page models.Page) ([]models.User, error) {
	const op = "service.users.Users"

	if !caller.IsAdmin {
		if filter.IDs != nil && !slices.Contains(filter.IDs, caller.ID) {
			return []models.User{}, nil
		}
		filter.IDs = []int64{caller.ID}
	}

	users, err := s.storage.Users(ctx, filter, page)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return policy.Filter(caller, policy.KindUser, users, func(u models.User) policy.Resource {
		return policy.User(u.ID)
	}), nil
}

// Update changes email, password or admin flag. Only admins may touch the admin flag.
func (s *UserService) Update(ctx context.Context, caller policy.Caller, ref models.UserRef, upd models.UserUpdate) (models.User, error) {
	const op = "service.users.Update"

	log := s.log.With(
		slog.String("op", op),
		slog.String("user", ref.String()),
		slog.Int64("caller_id", caller.ID),
	)

	target, err := s.User(ctx, caller, ref)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := policy.Authorize(caller, policy.KindUser, policy.User(target.ID), policy.ActionUpdate); err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if upd.IsAdmin != nil && !caller.IsAdmin {
		log.Warn("non-admin tried to change admin flag")

		return models.User{}, fmt.Errorf("%s: %w: only admins may change is_admin", op, errs.ErrForbidden)
	}

	var hash *string
	if upd.Password != nil {
		h, err := s.hasher.HashNew(*upd.Password)
		if err != nil {
			log.Error("failed to hash password", sl.Err(err))

			return models.User{}, fmt.Errorf("%s: %w", op, err)
		}
		hash = &h
	}

	user, err := s.storage.UpdateUser(ctx, target.ID, upd.Email, hash, upd.IsAdmin)
	if err != nil {
		log.Error("failed to update user", sl.Err(err))

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user updated")

	return user, nil
}

// Delete removes the user with their sessions, tokens and subscriptions.
func (s *UserService) Delete(ctx context.Context, caller policy.Caller, ref models.UserRef) (models.User, error) {
	const op = "service.users.Delete"

	log := s.log.With(
		slog.String("op", op),
		slog.String("user", ref.String()),
		slog.Int64("caller_id", caller.ID),
	)

	target, err := s.User(ctx, caller, ref)
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := policy.Authorize(caller, policy.KindUser, policy.User(target.ID), policy.ActionDelete); err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.DeleteUser(ctx, target.ID); err != nil {
		log.Error("failed to delete user", sl.Err(err))

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user deleted", slog.Int64("user_id", target.ID))

	return target, nil
}
