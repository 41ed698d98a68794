package cameraservice

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

type CameraService struct {
	log     *slog.Logger
	storage CameraStorage
	blobs   BlobDeleter
	agent   AgentRunner
}

type CameraStorage interface {
	SaveCamera(ctx context.Context, cam models.Camera) (models.Camera, error)
	Camera(ctx context.Context, id int64) (models.Camera, error)
	Cameras(ctx context.Context, filter models.CameraFilter, page models.Page) ([]models.Camera, error)
	UpdateCamera(ctx context.Context, id int64, upd models.CameraUpdate) (models.Camera, error)
	DeleteCamera(ctx context.Context, id int64) ([]string, error)
}

type BlobDeleter interface {
	Delete(ctx context.Context, path string) error
}

type AgentRunner interface {
	Run(ctx context.Context, cam models.Camera, action models.CameraAction, seconds int) error
}

func New(log *slog.Logger, storage CameraStorage, blobs BlobDeleter, agent AgentRunner) *CameraService {
	return &CameraService{
		log:     log,
		storage: storage,
		blobs:   blobs,
		agent:   agent,
	}
}

func (s *CameraService) SaveCamera(ctx context.Context, caller policy.Caller, cam models.Camera) (models.Camera, error) {
	const op = "service.cameras.SaveCamera"

	log := s.log.With(
		slog.String("op", op),
		slog.String("host_address", cam.HostAddress),
	)

	if err := policy.Authorize(caller, policy.KindCamera, policy.Resource{}, policy.ActionCreate); err != nil {
		return models.Camera{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("save camera")

	cam, err := s.storage.SaveCamera(ctx, cam)
	if err != nil {
		if errors.Is(err, errs.ErrConflict) {
			log.Warn("camera already exists")
		} else {
			log.Error("failed to save camera", sl.Err(err))
		}

		return models.Camera{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("camera saved", slog.Int64("camera_id", cam.ID))

	return cam, nil
}

// Camera is visible to admins and subscribers. Other callers get ErrForbidden
// whether or not the camera exists.
func (s *CameraService) Camera(ctx context.Context, caller policy.Caller, id int64) (models.Camera, error) {
	const op = "service.cameras.Camera"

	if err := policy.Authorize(caller, policy.KindCamera, policy.Camera(id), policy.ActionRead); err != nil {
		return models.Camera{}, fmt.Errorf("%s: %w", op, err)
	}

	cam, err := s.storage.Camera(ctx, id)
	if err != nil {
		return models.Camera{}, fmt.Errorf("%s: %w", op, err)
	}

	return cam, nil
}

// Cameras lists the cameras the caller may see. A non-admin without
// subscriptions gets an empty list.
func (s *CameraService) Cameras(ctx context.Context, caller policy.Caller, filter models.CameraFilter, page models.Page) ([]models.Camera, error) {
	const op = "service.cameras.Cameras"

	if !caller.IsAdmin {
		filter.IDs = visible(caller, filter.IDs)
		if len(filter.IDs) == 0 {
			return []models.Camera{}, nil
		}
	}

	cams, err := s.storage.Cameras(ctx, filter, page)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return policy.Filter(caller, policy.KindCamera, cams, func(c models.Camera) policy.Resource {
		return policy.Camera(c.ID)
	}), nil
}

func (s *CameraService) UpdateCamera(ctx context.Context, caller policy.Caller, id int64, upd models.CameraUpdate) (models.Camera, error) {
	const op = "service.cameras.UpdateCamera"

	log := s.log.With(
		slog.String("op", op),
		slog.Int64("camera_id", id),
	)

	if err := policy.Authorize(caller, policy.KindCamera, policy.Camera(id), policy.ActionUpdate); err != nil {
		return models.Camera{}, fmt.Errorf("%s: %w", op, err)
	}

	cam, err := s.storage.UpdateCamera(ctx, id, upd)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) && !errors.Is(err, errs.ErrConflict) {
			log.Error("failed to update camera", sl.Err(err))
		}

		return models.Camera{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("camera updated")

	return cam, nil
}

// DeleteCamera removes the camera with its subscriptions and videos. Video
// files that cannot be removed are logged and left behind.
func (s *CameraService) DeleteCamera(ctx context.Context, caller policy.Caller, id int64) (models.Camera, error) {
	const op = "service.cameras.DeleteCamera"

	log := s.log.With(
		slog.String("op", op),
		slog.Int64("camera_id", id),
	)

	if err := policy.Authorize(caller, policy.KindCamera, policy.Camera(id), policy.ActionDelete); err != nil {
		return models.Camera{}, fmt.Errorf("%s: %w", op, err)
	}

	cam, err := s.storage.Camera(ctx, id)
	if err != nil {
		return models.Camera{}, fmt.Errorf("%s: %w", op, err)
	}

	paths, err := s.storage.DeleteCamera(ctx, id)
	if err != nil {
		log.Error("failed to delete camera", sl.Err(err))

		return models.Camera{}, fmt.Errorf("%s: %w", op, err)
	}

	for _, path := range paths {
		if err := s.blobs.Delete(ctx, path); err != nil {
			log.Warn("failed to delete video file", slog.String("path", path), sl.Err(err))
		}
	}

	log.Info("camera deleted", slog.Int("videos", len(paths)))

	return cam, nil
}

// RunAction forwards a command to the camera's agent. Admin only.
func (s *CameraService) RunAction(ctx context.Context, caller policy.Caller, id int64, action models.CameraAction, seconds int) error {
	const op = "service.cameras.RunAction"

	log := s.log.With(
		slog.String("op", op),
		slog.Int64("camera_id", id),
		slog.String("action", string(action)),
	)

	if err := policy.Authorize(caller, policy.KindCamera, policy.Camera(id), policy.ActionUpdate); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !action.Valid() {
		return fmt.Errorf("%s: %w: unknown action %q", op, errs.ErrInvalidArgument, action)
	}
	if seconds < 0 {
		return fmt.Errorf("%s: %w: time_s cannot be negative", op, errs.ErrInvalidArgument)
	}

	cam, err := s.storage.Camera(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.agent.Run(ctx, cam, action, seconds); err != nil {
		log.Error("camera agent call failed", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("camera action sent", slog.Int("time_s", seconds))

	return nil
}

// visible narrows requested ids to the caller's subscriptions. nil requested means all of them.
func visible(caller policy.Caller, requested []int64) []int64 {
	if requested == nil {
		return slices.Clone(caller.CameraIDs)
	}

	out := make([]int64, 0, len(requested))
	for _, id := range requested {
		if caller.Subscribed(id) {
			out = append(out, id)
		}
	}

	return out
}
