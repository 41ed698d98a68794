package videoservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/zanzhit/securecam/internal/domain/errs"
	"github.com/zanzhit/securecam/internal/domain/models"
	"github.com/zanzhit/securecam/internal/domain/policy"
	"github.com/zanzhit/securecam/internal/domain/reconcile"
	"github.com/zanzhit/securecam/internal/lib/sl"
)

type VideoService struct {
	log           *slog.Logger
	storage       VideoStorage
	cameras       CameraProvider
	subscriptions SubscriptionProvider
	blobs         BlobStorage
	events        EventPublisher
}

type VideoStorage interface {
	SaveVideo(ctx context.Context, video models.Video) (models.Video, error)
	Video(ctx context.Context, id int64) (models.Video, error)
	Videos(ctx context.Context, filter models.VideoFilter, page models.Page) ([]models.Video, error)
	UpdateVideo(ctx context.Context, id int64, upd models.VideoUpdate, move func(from, to string) error) (models.Video, error)
	DeleteVideo(ctx context.Context, id int64) (string, error)
}

type CameraProvider interface {
	Camera(ctx context.Context, id int64) (models.Camera, error)
}

type SubscriptionProvider interface {
	UserCameraIDs(ctx context.Context, userID int64) ([]int64, error)
	CameraSubscribers(ctx context.Context, cameraID int64) ([]models.Subscription, error)
}

type BlobStorage interface {
	Write(ctx context.Context, path string, r io.Reader, size int64) error
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

type EventPublisher interface {
	PublishVideoUploaded(ctx context.Context, event models.VideoUploaded) error
}

func New(
	log *slog.Logger,
	storage VideoStorage,
	cameras CameraProvider,
	subscriptions SubscriptionProvider,
	blobs BlobStorage,
) *VideoService {
	return &VideoService{
		log:           log,
		storage:       storage,
		cameras:       cameras,
		subscriptions: subscriptions,
		blobs:         blobs,
	}
}

// WithEvents publishes an event for every stored upload.
func (s *VideoService) WithEvents(events EventPublisher) *VideoService {
	s.events = events
	return s
}

// Upload stores the row and the file together. If the file cannot be written
// the row is removed again.
func (s *VideoService) Upload(ctx context.Context, caller policy.Caller, meta models.VideoUpload, body io.Reader) (models.Video, error) {
	const op = "service.videos.Upload"

	log := s.log.With(
		slog.String("op", op),
		slog.Int64("camera_id", meta.CameraID),
		slog.String("file_name", meta.FileName),
	)

	if !strings.Contains(meta.ContentType, "video") {
		log.Info("rejected upload", slog.String("content_type", meta.ContentType))

		return models.Video{}, fmt.Errorf("%s: %w", op, errs.ErrNotAVideo)
	}

	cameraID := meta.CameraID
	res := policy.Resource{CameraID: &cameraID}
	if err := policy.Authorize(caller, policy.KindVideo, res, policy.ActionCreate); err != nil {
		return models.Video{}, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.cameras.Camera(ctx, cameraID); err != nil {
		return models.Video{}, fmt.Errorf("%s: %w", op, err)
	}

	video, err := s.storage.SaveVideo(ctx, models.Video{
		FileName: meta.FileName,
		CameraID: &cameraID,
		BlobPath: models.BlobPath(cameraID, meta.FileName),
	})
	if err != nil {
		if !errors.Is(err, errs.ErrConflict) && !errors.Is(err, errs.ErrNotFound) {
			log.Error("failed to save video", sl.Err(err))
		}

		return models.Video{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.blobs.Write(ctx, video.BlobPath, body, meta.Size); err != nil {
		log.Error("failed to write video file", sl.Err(err))

		if _, derr := s.storage.DeleteVideo(context.WithoutCancel(ctx), video.ID); derr != nil {
			log.Error("failed to remove video row after write failure", sl.Err(derr))
		}

		return models.Video{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("video uploaded", slog.Int64("video_id", video.ID))

	s.publish(ctx, log, video)

	return video, nil
}

func (s *VideoService) publish(ctx context.Context, log *slog.Logger, video models.Video) {
	if s.events == nil {
		return
	}

	subs, err := s.subscriptions.CameraSubscribers(ctx, *video.CameraID)
	if err != nil {
		log.Warn("failed to load subscribers for event", sl.Err(err))
		return
	}

	userIDs := make([]int64, 0, len(subs))
	for _, sub := range subs {
		userIDs = append(userIDs, sub.UserID)
	}

	event := models.VideoUploaded{
		VideoID:     video.ID,
		CameraID:    *video.CameraID,
		FileName:    video.FileName,
		Subscribers: userIDs,
		UploadedAt:  video.UploadedAt,
	}
	if event.UploadedAt.IsZero() {
		event.UploadedAt = time.Now()
	}

	if err := s.events.PublishVideoUploaded(ctx, event); err != nil {
		log.Warn("failed to publish video event", sl.Err(err))
	}
}

func (s *VideoService) Video(ctx context.Context, caller policy.Caller, id int64) (models.Video, error) {
	const op = "service.videos.Video"

	video, err := s.storage.Video(ctx, id)
	if err != nil {
		return models.Video{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := policy.Authorize(caller, policy.KindVideo, policy.Video(video), policy.ActionRead); err != nil {
		return models.Video{}, fmt.Errorf("%s: %w", op, err)
	}

	return video, nil
}

// Videos lists what the caller may see: videos of subscribed cameras and
// orphaned videos linked to the caller.
func (s *VideoService) Videos(ctx context.Context, caller policy.Caller, filter models.VideoFilter, page models.Page) ([]models.Video, error) {
	const op = "service.videos.Videos"

	if !caller.IsAdmin {
		if filter.CameraIDs == nil {
			filter.CameraIDs = caller.CameraIDs
			filter.UserID = caller.ID
		} else {
			filter.CameraIDs = subscribed(caller, filter.CameraIDs)
			filter.UserID = 0
			if len(filter.CameraIDs) == 0 {
				return []models.Video{}, nil
			}
		}
	}

	videos, err := s.storage.Videos(ctx, filter, page)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return policy.Filter(caller, policy.KindVideo, videos, policy.Video), nil
}

// UserVideos lists the videos a user has access to through subscriptions and links.
func (s *VideoService) UserVideos(ctx context.Context, caller policy.Caller, userID int64, page models.Page) ([]models.Video, error) {
	const op = "service.videos.UserVideos"

	if err := policy.Authorize(caller, policy.KindUser, policy.User(userID), policy.ActionRead); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cameraIDs, err := s.subscriptions.UserCameraIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cameraIDs == nil {
		cameraIDs = []int64{}
	}

	videos, err := s.storage.Videos(ctx, models.VideoFilter{CameraIDs: cameraIDs, UserID: userID}, page)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return videos, nil
}

// Open returns the video and its content. The caller closes the reader.
func (s *VideoService) Open(ctx context.Context, caller policy.Caller, id int64) (models.Video, io.ReadCloser, error) {
	const op = "service.videos.Open"

	video, err := s.Video(ctx, caller, id)
	if err != nil {
		return models.Video{}, nil, fmt.Errorf("%s: %w", op, err)
	}

	rc, err := s.blobs.Open(ctx, video.BlobPath)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			s.log.Error("video file is missing", slog.String("op", op), slog.Int64("video_id", id))

			return models.Video{}, nil, fmt.Errorf("%s: %w", op, errs.ErrVideoNotFound)
		}
		return models.Video{}, nil, fmt.Errorf("%s: %w", op, err)
	}

	return video, rc, nil
}

// UpdateVideo renames, moves or detaches a video. User links may only be set
// on a video that is orphaned after the update.
func (s *VideoService) UpdateVideo(ctx context.Context, caller policy.Caller, id int64, upd models.VideoUpdate) (models.Video, error) {
	const op = "service.videos.UpdateVideo"

	log := s.log.With(
		slog.String("op", op),
		slog.Int64("video_id", id),
	)

	current, err := s.storage.Video(ctx, id)
	if err != nil {
		return models.Video{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := policy.Authorize(caller, policy.KindVideo, policy.Video(current), policy.ActionUpdate); err != nil {
		return models.Video{}, fmt.Errorf("%s: %w", op, err)
	}

	orphaned := current.Orphaned()
	if upd.CameraID != nil {
		orphaned = *upd.CameraID == 0
	}

	if upd.UserIDs != nil {
		if !orphaned {
			return models.Video{}, fmt.Errorf("%s: %w: user_ids can only be set on videos without a camera", op, errs.ErrInvalidArgument)
		}
		upd.UserIDs = reconcile.Unique(upd.UserIDs)
	}

	if upd.CameraID != nil && *upd.CameraID != 0 {
		if _, err := s.cameras.Camera(ctx, *upd.CameraID); err != nil {
			return models.Video{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	var moved, copied string

	video, err := s.storage.UpdateVideo(ctx, id, upd, func(from, to string) error {
		if err := s.copyBlob(ctx, from, to); err != nil {
			return err
		}
		moved, copied = from, to
		return nil
	})
	if err != nil {
		if copied != "" {
			log.Warn("video file copied for a failed update", slog.String("path", copied))
		}
		if !errors.Is(err, errs.ErrNotFound) && !errors.Is(err, errs.ErrConflict) {
			log.Error("failed to update video", sl.Err(err))
		}

		return models.Video{}, fmt.Errorf("%s: %w", op, err)
	}

	if moved != "" && moved != video.BlobPath {
		if err := s.blobs.Delete(ctx, moved); err != nil {
			log.Warn("failed to delete old video file", slog.String("path", moved), sl.Err(err))
		}
	}

	log.Info("video updated", slog.String("path", video.BlobPath))

	return video, nil
}

// DeleteVideo removes the row, then the file. A file that cannot be removed is logged.
func (s *VideoService) DeleteVideo(ctx context.Context, caller policy.Caller, id int64) (models.Video, error) {
	const op = "service.videos.DeleteVideo"

	log := s.log.With(
		slog.String("op", op),
		slog.Int64("video_id", id),
	)

	video, err := s.storage.Video(ctx, id)
	if err != nil {
		return models.Video{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := policy.Authorize(caller, policy.KindVideo, policy.Video(video), policy.ActionDelete); err != nil {
		return models.Video{}, fmt.Errorf("%s: %w", op, err)
	}

	path, err := s.storage.DeleteVideo(ctx, id)
	if err != nil {
		return models.Video{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.blobs.Delete(ctx, path); err != nil {
		log.Warn("failed to delete video file", slog.String("path", path), sl.Err(err))
	}

	log.Info("video deleted")

	return video, nil
}

func (s *VideoService) copyBlob(ctx context.Context, from, to string) error {
	rc, err := s.blobs.Open(ctx, from)
	if err != nil {
		return err
	}
	defer rc.Close()

	return s.blobs.Write(ctx, to, rc, -1)
}

func subscribed(caller policy.Caller, requested []int64) []int64 {
	out := make([]int64, 0, len(requested))
	for _, id := range requested {
		if caller.Subscribed(id) {
			out = append(out, id)
		}
	}

	return out
}
