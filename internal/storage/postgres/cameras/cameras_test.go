package camerastorage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/zanzhit/securecam/internal/domain/errs"
	"github.com/zanzhit/securecam/internal/domain/models"
)

var cameraRowColumns = []string{"id", "host_address", "name", "auth_key", "mac_address", "registered_at"}

func newMock(t *testing.T) (*CameraStorage, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return New(sqlx.NewDb(db, "postgres")), mock
}

func cameraRow(id int64, name string) *sqlmock.Rows {
	return sqlmock.NewRows(cameraRowColumns).
		AddRow(id, "10.0.0.5", name, "key", "aa:bb:cc:dd:ee:ff", time.Now())
}

func TestSaveCamera(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`INSERT INTO cameras \(host_address, name, auth_key, mac_address\)`).
		WithArgs("10.0.0.5", "front", "key", "aa:bb:cc:dd:ee:ff").
		WillReturnRows(cameraRow(1, "front"))

	cam, err := s.SaveCamera(context.Background(), models.Camera{
		HostAddress: "10.0.0.5",
		Name:        "front",
		AuthKey:     "key",
		MACAddress:  "aa:bb:cc:dd:ee:ff",
	})
	if err != nil {
		t.Fatalf("SaveCamera() error = %v", err)
	}
	if cam.ID != 1 || cam.RegisteredAt.IsZero() {
		t.Errorf("SaveCamera() = %+v", cam)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSaveCameraDuplicate(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`INSERT INTO cameras`).WillReturnError(&pq.Error{Code: "23505"})

	_, err := s.SaveCamera(context.Background(), models.Camera{Name: "front"})
	if !errors.Is(err, errs.ErrCameraAlreadyExists) {
		t.Errorf("SaveCamera() error = %v, want ErrCameraAlreadyExists", err)
	}
}

func TestCameraNotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`SELECT .* FROM cameras WHERE id = \$1`).
		WithArgs(9).
		WillReturnRows(sqlmock.NewRows(cameraRowColumns))

	_, err := s.Camera(context.Background(), 9)
	if !errors.Is(err, errs.ErrCameraNotFound) {
		t.Errorf("Camera() error = %v, want ErrCameraNotFound", err)
	}
}

func TestCamerasFilterAndPage(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`SELECT .* FROM cameras WHERE id = ANY\(\$1\) AND name ILIKE \$2 ORDER BY id LIMIT \$3 OFFSET \$4`).
		WithArgs(sqlmock.AnyArg(), `%fr\_nt%`, 10, 20).
		WillReturnRows(cameraRow(3, "fr_nt"))

	cams, err := s.Cameras(context.Background(),
		models.CameraFilter{IDs: []int64{3, 4}, Name: "fr_nt"},
		models.Page{Index: 2, Size: 10},
	)
	if err != nil {
		t.Fatalf("Cameras() error = %v", err)
	}
	if len(cams) != 1 || cams[0].ID != 3 {
		t.Errorf("Cameras() = %+v", cams)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCamerasEmpty(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`SELECT .* FROM cameras ORDER BY id LIMIT \$1 OFFSET \$2`).
		WithArgs(100, 0).
		WillReturnRows(sqlmock.NewRows(cameraRowColumns))

	cams, err := s.Cameras(context.Background(), models.CameraFilter{}, models.DefaultPage())
	if err != nil {
		t.Fatalf("Cameras() error = %v", err)
	}
	if cams == nil || len(cams) != 0 {
		t.Errorf("Cameras() = %#v, want empty non-nil slice", cams)
	}
}

func TestUpdateCamera(t *testing.T) {
	s, mock := newMock(t)
	name := "back"

	mock.ExpectQuery(`UPDATE cameras SET name = \$1 WHERE id = \$2 RETURNING`).
		WithArgs("back", 1).
		WillReturnRows(cameraRow(1, "back"))

	cam, err := s.UpdateCamera(context.Background(), 1, models.CameraUpdate{Name: &name})
	if err != nil {
		t.Fatalf("UpdateCamera() error = %v", err)
	}
	if cam.Name != "back" {
		t.Errorf("UpdateCamera() = %+v", cam)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateCameraNoChanges(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectQuery(`SELECT .* FROM cameras WHERE id = \$1`).
		WithArgs(1).
		WillReturnRows(cameraRow(1, "front"))

	if _, err := s.UpdateCamera(context.Background(), 1, models.CameraUpdate{}); err != nil {
		t.Fatalf("UpdateCamera() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeleteCamera(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT blob_path FROM videos WHERE camera_id = \$1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"blob_path"}).AddRow("1/a.mp4").AddRow("1/b.mp4"))
	mock.ExpectExec(`DELETE FROM cameras WHERE id = \$1`).
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	paths, err := s.DeleteCamera(context.Background(), 1)
	if err != nil {
		t.Fatalf("DeleteCamera() error = %v", err)
	}
	if len(paths) != 2 || paths[0] != "1/a.mp4" {
		t.Errorf("DeleteCamera() = %v", paths)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeleteCameraNotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT blob_path FROM videos`).
		WillReturnRows(sqlmock.NewRows([]string{"blob_path"}))
	mock.ExpectExec(`DELETE FROM cameras`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := s.DeleteCamera(context.Background(), 9)
	if !errors.Is(err, errs.ErrCameraNotFound) {
		t.Errorf("DeleteCamera() error = %v, want ErrCameraNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
