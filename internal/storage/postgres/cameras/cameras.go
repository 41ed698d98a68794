package camerastorage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/zanzhit/securecam/internal/domain/errs"
	"github.com/zanzhit/securecam/internal/domain/models"
	"github.com/zanzhit/securecam/internal/storage/postgres"
)

const cameraColumns = "id, host_address, name, auth_key, mac_address, registered_at"

type CameraStorage struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *CameraStorage {
	return &CameraStorage{
		db: db,
	}
}

func (s *CameraStorage) SaveCamera(ctx context.Context, cam models.Camera) (models.Camera, error) {
	const op = "storage.postgres.cameras.SaveCamera"

	query := fmt.Sprintf(`INSERT INTO %s (host_address, name, auth_key, mac_address) VALUES ($1, $2, $3, $4) RETURNING %s`,
		postgres.CamerasTable, cameraColumns)

	err := postgres.Retry(ctx, func() error {
		return s.db.QueryRowxContext(ctx, query, cam.HostAddress, cam.Name, cam.AuthKey, cam.MACAddress).StructScan(&cam)
	})
	if err != nil {
		return cam, fmt.Errorf("%s: %w", op, postgres.MapError(err, errs.ErrCameraNotFound, errs.ErrCameraAlreadyExists))
	}

	return cam, nil
}

func (s *CameraStorage) Camera(ctx context.Context, id int64) (models.Camera, error) {
	const op = "storage.postgres.cameras.Camera"

	var cam models.Camera
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", cameraColumns, postgres.CamerasTable)

	err := postgres.Retry(ctx, func() error {
		return s.db.GetContext(ctx, &cam, query, id)
	})
	if err != nil {
		return models.Camera{}, fmt.Errorf("%s: %w", op, postgres.MapError(err, errs.ErrCameraNotFound, nil))
	}

	return cam, nil
}

func (s *CameraStorage) Cameras(ctx context.Context, filter models.CameraFilter, page models.Page) ([]models.Camera, error) {
	const op = "storage.postgres.cameras.Cameras"

	var where postgres.Where
	if filter.IDs != nil {
		where.Add("id = ANY(?)", pq.Array(filter.IDs))
	}
	if filter.Name != "" {
		where.Add("name ILIKE ?", postgres.Like(filter.Name))
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY id LIMIT %s OFFSET %s",
		cameraColumns, postgres.CamerasTable, where.String(), where.Arg(page.Limit()), where.Arg(page.Offset()))

	cams := []models.Camera{}

	err := postgres.Retry(ctx, func() error {
		cams = cams[:0]
		return s.db.SelectContext(ctx, &cams, query, where.Args()...)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return cams, nil
}

func (s *CameraStorage) UpdateCamera(ctx context.Context, id int64, upd models.CameraUpdate) (models.Camera, error) {
	const op = "storage.postgres.cameras.UpdateCamera"

	var set postgres.Assignments
	if upd.HostAddress != nil {
		set.Set("host_address", *upd.HostAddress)
	}
	if upd.Name != nil {
		set.Set("name", *upd.Name)
	}
	if upd.AuthKey != nil {
		set.Set("auth_key", *upd.AuthKey)
	}
	if upd.MACAddress != nil {
		set.Set("mac_address", *upd.MACAddress)
	}

	if set.Empty() {
		return s.Camera(ctx, id)
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s RETURNING %s",
		postgres.CamerasTable, set.String(), set.Arg(id), cameraColumns)

	var cam models.Camera

	err := postgres.Retry(ctx, func() error {
		return s.db.GetContext(ctx, &cam, query, set.Args()...)
	})
	if err != nil {
		return models.Camera{}, fmt.Errorf("%s: %w", op, postgres.MapError(err, errs.ErrCameraNotFound, errs.ErrCameraAlreadyExists))
	}

	return cam, nil
}

// DeleteCamera removes the camera together with its subscriptions and videos
// and returns the blob paths of the deleted videos.
func (s *CameraStorage) DeleteCamera(ctx context.Context, id int64) ([]string, error) {
	const op = "storage.postgres.cameras.DeleteCamera"

	var paths []string

	err := postgres.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		paths = nil

		query := fmt.Sprintf("SELECT blob_path FROM %s WHERE camera_id = $1", postgres.VideosTable)
		if err := tx.SelectContext(ctx, &paths, query, id); err != nil {
			return err
		}

		query = fmt.Sprintf("DELETE FROM %s WHERE id = $1", postgres.CamerasTable)
		res, err := tx.ExecContext(ctx, query, id)
		if err != nil {
			return err
		}

		if n, _ := res.RowsAffected(); n == 0 {
			return errs.ErrCameraNotFound
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return paths, nil
}
