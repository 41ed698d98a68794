package videostorage

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

const videoColumns = "id, file_name, camera_id, blob_path, uploaded_at"

type VideoStorage struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *VideoStorage {
	return &VideoStorage{
		db: db,
	}
}

func (s *VideoStorage) SaveVideo(ctx context.Context, video models.Video) (models.Video, error) {
	const op = "storage.postgres.videos.SaveVideo"

	query := fmt.Sprintf(`INSERT INTO %s (file_name, camera_id, blob_path) VALUES ($1, $2, $3) RETURNING %s`,
		postgres.VideosTable, videoColumns)

	err := postgres.Retry(ctx, func() error {
		return s.db.QueryRowxContext(ctx, query, video.FileName, video.CameraID, video.BlobPath).StructScan(&video)
	})
	if err != nil {
		return models.Video{}, fmt.Errorf("%s: %w", op, postgres.MapError(err, errs.ErrCameraNotFound, errs.ErrVideoExists))
	}

	return video, nil
}

func (s *VideoStorage) Video(ctx context.Context, id int64) (models.Video, error) {
	const op = "storage.postgres.videos.Video"

	var video models.Video
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", videoColumns, postgres.VideosTable)

	err := postgres.Retry(ctx, func() error {
		return s.db.GetContext(ctx, &video, query, id)
	})
	if err != nil {
		return models.Video{}, fmt.Errorf("%s: %w", op, postgres.MapError(err, errs.ErrVideoNotFound, nil))
	}

	videos := []models.Video{video}
	if err := s.attachUsers(ctx, s.db, videos); err != nil {
		return models.Video{}, fmt.Errorf("%s: %w", op, err)
	}

	return videos[0], nil
}

// Videos lists videos. When both CameraIDs and UserID are set a video
// matches if it belongs to one of the cameras or is linked to the user.
func (s *VideoStorage) Videos(ctx context.Context, filter models.VideoFilter, page models.Page) ([]models.Video, error) {
	const op = "storage.postgres.videos.Videos"

	var where postgres.Where
	if filter.IDs != nil {
		where.Add("id = ANY(?)", pq.Array(filter.IDs))
	}
	if filter.FileName != "" {
		where.Add("file_name ILIKE ?", postgres.Like(filter.FileName))
	}

	linked := fmt.Sprintf("id IN (SELECT video_id FROM %s WHERE user_id = ?)", postgres.VideoUsersTable)
	switch {
	case filter.CameraIDs != nil && filter.UserID != 0:
		where.Add("(camera_id = ANY(?) OR "+linked+")", pq.Array(filter.CameraIDs), filter.UserID)
	case filter.CameraIDs != nil:
		where.Add("camera_id = ANY(?)", pq.Array(filter.CameraIDs))
	case filter.UserID != 0:
		where.Add(linked, filter.UserID)
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY id LIMIT %s OFFSET %s",
		videoColumns, postgres.VideosTable, where.String(), where.Arg(page.Limit()), where.Arg(page.Offset()))

	videos := []models.Video{}

	err := postgres.Retry(ctx, func() error {
		videos = videos[:0]
		if err := s.db.SelectContext(ctx, &videos, query, where.Args()...); err != nil {
			return err
		}
		return s.attachUsers(ctx, s.db, videos)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return videos, nil
}

// UpdateVideo applies the change set in one transaction. A camera id of 0
// detaches the video. Attaching to a camera drops the user links. When the
// file name or camera changes, blob_path follows and move copies the file
// inside the transaction, so a failed copy leaves the row unchanged.
func (s *VideoStorage) UpdateVideo(ctx context.Context, id int64, upd models.VideoUpdate, move func(from, to string) error) (models.Video, error) {
	const op = "storage.postgres.videos.UpdateVideo"

	var video models.Video

	err := postgres.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var set postgres.Assignments
		if upd.FileName != nil {
			set.Set("file_name", *upd.FileName)
		}
		if upd.CameraID != nil {
			set.Set("camera_id", sql.NullInt64{Int64: *upd.CameraID, Valid: *upd.CameraID != 0})
		}

		var query string
		if set.Empty() {
			query = fmt.Sprintf("SELECT %s FROM %s WHERE id = %s FOR UPDATE", videoColumns, postgres.VideosTable, set.Arg(id))
		} else {
			query = fmt.Sprintf("UPDATE %s SET %s WHERE id = %s RETURNING %s",
				postgres.VideosTable, set.String(), set.Arg(id), videoColumns)
		}

		if err := tx.GetContext(ctx, &video, query, set.Args()...); err != nil {
			return postgres.MapError(err, errs.ErrVideoNotFound, errs.ErrVideoExists)
		}

		if target := models.VideoBlobPath(video); target != video.BlobPath {
			query = fmt.Sprintf("UPDATE %s SET blob_path = $1 WHERE id = $2", postgres.VideosTable)
			if _, err := tx.ExecContext(ctx, query, target, id); err != nil {
				return postgres.MapError(err, errs.ErrVideoNotFound, errs.ErrVideoExists)
			}

			if move != nil {
				if err := move(video.BlobPath, target); err != nil {
					return err
				}
			}
			video.BlobPath = target
		}

		if !video.Orphaned() || upd.UserIDs != nil {
			query = fmt.Sprintf("DELETE FROM %s WHERE video_id = $1", postgres.VideoUsersTable)
			if _, err := tx.ExecContext(ctx, query, id); err != nil {
				return err
			}
		}

		if video.Orphaned() && len(upd.UserIDs) > 0 {
			query = fmt.Sprintf(`INSERT INTO %s (video_id, user_id) SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`,
				postgres.VideoUsersTable)
			if _, err := tx.ExecContext(ctx, query, id, pq.Array(upd.UserIDs)); err != nil {
				return postgres.MapError(err, errs.ErrUserNotFound, nil)
			}
		}

		videos := []models.Video{video}
		if err := s.attachUsers(ctx, tx, videos); err != nil {
			return err
		}
		video = videos[0]

		return nil
	})
	if err != nil {
		return models.Video{}, fmt.Errorf("%s: %w", op, err)
	}

	return video, nil
}

// DeleteVideo removes the row and returns its blob path.
func (s *VideoStorage) DeleteVideo(ctx context.Context, id int64) (string, error) {
	const op = "storage.postgres.videos.DeleteVideo"

	var path string
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1 RETURNING blob_path", postgres.VideosTable)

	err := postgres.Retry(ctx, func() error {
		return s.db.GetContext(ctx, &path, query, id)
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, postgres.MapError(err, errs.ErrVideoNotFound, nil))
	}

	return path, nil
}

// attachUsers loads the user links of the orphaned videos in place.
func (s *VideoStorage) attachUsers(ctx context.Context, q sqlx.QueryerContext, videos []models.Video) error {
	index := make(map[int64]int)
	ids := make([]int64, 0)
	for i, v := range videos {
		if v.Orphaned() {
			index[v.ID] = i
			ids = append(ids, v.ID)
		}
	}

	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf("SELECT video_id, user_id FROM %s WHERE video_id = ANY($1) ORDER BY user_id", postgres.VideoUsersTable)

	rows, err := q.QueryxContext(ctx, query, pq.Array(ids))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var videoID, userID int64
		if err := rows.Scan(&videoID, &userID); err != nil {
			return err
		}

		i := index[videoID]
		videos[i].UserIDs = append(videos[i].UserIDs, userID)
	}

	return rows.Err()
}
