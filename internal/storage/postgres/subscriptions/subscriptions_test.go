package subscriptionstorage

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/zanzhit/securecam/internal/domain/errs"
)

var subRowColumns = []string{"user_id", "camera_id", "registered_at"}

func newMock(t *testing.T) (*SubscriptionStorage, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestSetUserCameras(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectQuery(`SELECT camera_id FROM camera_subscriptions WHERE user_id = \$1`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"camera_id"}).AddRow(1).AddRow(2))
	mock.ExpectQuery(`SELECT id FROM cameras WHERE id = ANY\(\$1\) FOR SHARE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))
	mock.ExpectQuery(`DELETE FROM camera_subscriptions WHERE user_id = \$1 AND camera_id = ANY\(\$2\) RETURNING`).
		WillReturnRows(sqlmock.NewRows(subRowColumns).AddRow(5, 1, now))
	mock.ExpectQuery(`INSERT INTO camera_subscriptions \(user_id, camera_id\)`).
		WillReturnRows(sqlmock.NewRows(subRowColumns).AddRow(5, 3, now))
	mock.ExpectCommit()

	changes, err := s.SetUserCameras(context.Background(), 5, []int64{2, 3})
	if err != nil {
		t.Fatalf("SetUserCameras() error = %v", err)
	}

	if len(changes.Created) != 1 || changes.Created[0].CameraID != 3 {
		t.Errorf("Created = %+v, want camera 3", changes.Created)
	}
	if len(changes.Deleted) != 1 || changes.Deleted[0].CameraID != 1 {
		t.Errorf("Deleted = %+v, want camera 1", changes.Deleted)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSetUserCamerasNoChanges(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM users WHERE id = \$1 FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectQuery(`SELECT camera_id FROM camera_subscriptions`).
		WillReturnRows(sqlmock.NewRows([]string{"camera_id"}).AddRow(2))
	mock.ExpectCommit()

	changes, err := s.SetUserCameras(context.Background(), 5, []int64{2})
	if err != nil {
		t.Fatalf("SetUserCameras() error = %v", err)
	}
	if !changes.Empty() {
		t.Errorf("SetUserCameras() = %+v, want no changes", changes)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSetUserCamerasMissing(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM users WHERE id = \$1 FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectQuery(`SELECT camera_id FROM camera_subscriptions`).
		WillReturnRows(sqlmock.NewRows([]string{"camera_id"}))
	mock.ExpectQuery(`SELECT id FROM cameras WHERE id = ANY\(\$1\) FOR SHARE`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectRollback()

	_, err := s.SetUserCameras(context.Background(), 5, []int64{2, 7, 9})

	var missing *errs.MissingCamerasError
	if !errors.As(err, &missing) {
		t.Fatalf("SetUserCameras() error = %v, want MissingCamerasError", err)
	}
	if !slices.Equal(missing.IDs, []int64{7, 9}) {
		t.Errorf("missing = %v, want [7 9]", missing.IDs)
	}
	if !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("error %v does not unwrap to ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSetCameraUsersUnknownCamera(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM cameras WHERE id = \$1 FOR UPDATE`).
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := s.SetCameraUsers(context.Background(), 4, []int64{1})
	if !errors.Is(err, errs.ErrCameraNotFound) {
		t.Errorf("SetCameraUsers() error = %v, want ErrCameraNotFound", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectExec(`DELETE FROM camera_subscriptions WHERE user_id = \$1 AND camera_id = \$2`).
		WithArgs(1, 2).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.Unsubscribe(context.Background(), 1, 2); !errors.Is(err, errs.ErrSubscriptionNotFound) {
		t.Errorf("Unsubscribe() error = %v, want ErrSubscriptionNotFound", err)
	}
}
