package subscriptionservice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/zanzhit/securecam/internal/domain/errs"
	"github.com/zanzhit/securecam/internal/domain/models"
	"github.com/zanzhit/securecam/internal/domain/policy"
	"github.com/zanzhit/securecam/internal/domain/reconcile"
)

type pair struct{ user, camera int64 }

type fakeStorage struct {
	users   []int64
	cameras []int64
	links   map[pair]bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		users:   []int64{1, 2, 3},
		cameras: []int64{10, 11, 12},
		links:   map[pair]bool{},
	}
}

func (f *fakeStorage) current(byUser bool, id int64) []int64 {
	var ids []int64
	for p := range f.links {
		if byUser && p.user == id {
			ids = append(ids, p.camera)
		}
		if !byUser && p.camera == id {
			ids = append(ids, p.user)
		}
	}
	return ids
}

func (f *fakeStorage) apply(byUser bool, owner int64, desired, existing []int64, missing func([]int64) error) (models.SubscriptionChanges, error) {
	add, remove := reconcile.Diff(f.current(byUser, owner), desired)
	if m := reconcile.Missing(add, existing); len(m) > 0 {
		return models.SubscriptionChanges{}, missing(m)
	}

	changes := models.SubscriptionChanges{Created: []models.Subscription{}, Deleted: []models.Subscription{}}
	key := func(other int64) pair {
		if byUser {
			return pair{owner, other}
		}
		return pair{other, owner}
	}

	for _, id := range remove {
		k := key(id)
		delete(f.links, k)
		changes.Deleted = append(changes.Deleted, models.Subscription{UserID: k.user, CameraID: k.camera})
	}
	for _, id := range add {
		k := key(id)
		f.links[k] = true
		changes.Created = append(changes.Created, models.Subscription{UserID: k.user, CameraID: k.camera})
	}

	return changes, nil
}

func (f *fakeStorage) SetUserCameras(_ context.Context, userID int64, desired []int64) (models.SubscriptionChanges, error) {
	if !slices.Contains(f.users, userID) {
		return models.SubscriptionChanges{}, errs.ErrUserNotFound
	}
	return f.apply(true, userID, desired, f.cameras, func(ids []int64) error { return &errs.MissingCamerasError{IDs: ids} })
}

func (f *fakeStorage) SetCameraUsers(_ context.Context, cameraID int64, desired []int64) (models.SubscriptionChanges, error) {
	if !slices.Contains(f.cameras, cameraID) {
		return models.SubscriptionChanges{}, errs.ErrCameraNotFound
	}
	return f.apply(false, cameraID, desired, f.users, func(ids []int64) error { return &errs.MissingUsersError{IDs: ids} })
}

func (f *fakeStorage) Subscribe(_ context.Context, userID, cameraID int64) (models.Subscription, error) {
	if !slices.Contains(f.cameras, cameraID) {
		return models.Subscription{}, errs.ErrCameraNotFound
	}
	f.links[pair{userID, cameraID}] = true
	return models.Subscription{UserID: userID, CameraID: cameraID}, nil
}

func (f *fakeStorage) Unsubscribe(_ context.Context, userID, cameraID int64) error {
	k := pair{userID, cameraID}
	if !f.links[k] {
		return errs.ErrSubscriptionNotFound
	}
	delete(f.links, k)
	return nil
}

func (f *fakeStorage) UserSubscriptions(_ context.Context, userID int64) ([]models.Subscription, error) {
	subs := []models.Subscription{}
	for _, id := range f.current(true, userID) {
		subs = append(subs, models.Subscription{UserID: userID, CameraID: id})
	}
	return subs, nil
}

func (f *fakeStorage) CameraSubscribers(_ context.Context, cameraID int64) ([]models.Subscription, error) {
	subs := []models.Subscription{}
	for _, id := range f.current(false, cameraID) {
		subs = append(subs, models.Subscription{UserID: id, CameraID: cameraID})
	}
	return subs, nil
}

var (
	admin = policy.Caller{ID: 1, IsAdmin: true}
	carol = policy.Caller{ID: 3}
)

func newService() (*SubscriptionService, *fakeStorage) {
	storage := newFakeStorage()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(log, storage), storage
}

func cameraIDs(subs []models.Subscription) []int64 {
	ids := make([]int64, 0, len(subs))
	for _, s := range subs {
		ids = append(ids, s.CameraID)
	}
	slices.Sort(ids)
	return ids
}

func TestSetSubscriptions(t *testing.T) {
	svc, storage := newService()
	ctx := context.Background()

	changes, err := svc.SetSubscriptions(ctx, carol, carol.ID, []int64{10, 11, 11})
	if err != nil {
		t.Fatalf("SetSubscriptions() error = %v", err)
	}
	if got := cameraIDs(changes.Created); !slices.Equal(got, []int64{10, 11}) || len(changes.Deleted) != 0 {
		t.Errorf("changes = %+v", changes)
	}

	again, err := svc.SetSubscriptions(ctx, carol, carol.ID, []int64{11, 10})
	if err != nil {
		t.Fatalf("SetSubscriptions() error = %v", err)
	}
	if !again.Empty() {
		t.Errorf("second SetSubscriptions() = %+v, want no changes", again)
	}

	changes, err = svc.SetSubscriptions(ctx, carol, carol.ID, []int64{11, 12})
	if err != nil {
		t.Fatalf("SetSubscriptions() error = %v", err)
	}
	if !slices.Equal(cameraIDs(changes.Created), []int64{12}) || !slices.Equal(cameraIDs(changes.Deleted), []int64{10}) {
		t.Errorf("changes = %+v", changes)
	}

	if got := storage.current(true, carol.ID); !slices.Equal(reconcile.Unique(got), []int64{11, 12}) {
		t.Errorf("stored cameras = %v, want [11 12]", got)
	}
}

func TestSetSubscriptionsMissingCameras(t *testing.T) {
	svc, storage := newService()
	ctx := context.Background()

	if _, err := svc.SetSubscriptions(ctx, carol, carol.ID, []int64{10}); err != nil {
		t.Fatalf("SetSubscriptions() error = %v", err)
	}

	_, err := svc.SetSubscriptions(ctx, carol, carol.ID, []int64{11, 98, 99})

	var missing *errs.MissingCamerasError
	if !errors.As(err, &missing) {
		t.Fatalf("SetSubscriptions() error = %v, want MissingCamerasError", err)
	}
	if !slices.Equal(missing.IDs, []int64{98, 99}) {
		t.Errorf("missing ids = %v, want [98 99]", missing.IDs)
	}
	if !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("error %v does not unwrap to ErrNotFound", err)
	}

	if got := storage.current(true, carol.ID); !slices.Equal(got, []int64{10}) {
		t.Errorf("stored cameras after failure = %v, want unchanged [10]", got)
	}
}

func TestSetSubscriptionsAccess(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	if _, err := svc.SetSubscriptions(ctx, carol, 2, []int64{10}); !errors.Is(err, errs.ErrForbidden) {
		t.Errorf("SetSubscriptions() for another user error = %v, want ErrForbidden", err)
	}

	if _, err := svc.SetSubscriptions(ctx, admin, 2, []int64{10}); err != nil {
		t.Errorf("SetSubscriptions() by admin error = %v", err)
	}

	if _, err := svc.SetSubscriptions(ctx, admin, 42, []int64{10}); !errors.Is(err, errs.ErrUserNotFound) {
		t.Errorf("SetSubscriptions() for unknown user error = %v, want ErrUserNotFound", err)
	}
}

func TestSetSubscribers(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	if _, err := svc.SetSubscribers(ctx, carol, 10, []int64{3}); !errors.Is(err, errs.ErrForbidden) {
		t.Errorf("SetSubscribers() by user error = %v, want ErrForbidden", err)
	}

	changes, err := svc.SetSubscribers(ctx, admin, 10, []int64{2, 3})
	if err != nil || len(changes.Created) != 2 {
		t.Fatalf("SetSubscribers() = %+v, %v", changes, err)
	}

	_, err = svc.SetSubscribers(ctx, admin, 10, []int64{7})
	var missing *errs.MissingUsersError
	if !errors.As(err, &missing) || !slices.Equal(missing.IDs, []int64{7}) {
		t.Errorf("SetSubscribers() error = %v, want MissingUsersError{7}", err)
	}

	subs, err := svc.CameraSubscribers(ctx, admin, 10)
	if err != nil || len(subs) != 2 {
		t.Errorf("CameraSubscribers() = %v, %v", subs, err)
	}
	if _, err := svc.CameraSubscribers(ctx, carol, 10); !errors.Is(err, errs.ErrForbidden) {
		t.Errorf("CameraSubscribers() by user error = %v, want ErrForbidden", err)
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	if _, err := svc.Subscribe(ctx, carol, carol.ID, 10); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if _, err := svc.Subscribe(ctx, carol, 2, 10); !errors.Is(err, errs.ErrForbidden) {
		t.Errorf("Subscribe() for another user error = %v, want ErrForbidden", err)
	}
	if _, err := svc.Subscribe(ctx, carol, carol.ID, 99); !errors.Is(err, errs.ErrCameraNotFound) {
		t.Errorf("Subscribe() unknown camera error = %v, want ErrCameraNotFound", err)
	}

	subs, err := svc.UserSubscriptions(ctx, carol, carol.ID)
	if err != nil || !slices.Equal(cameraIDs(subs), []int64{10}) {
		t.Errorf("UserSubscriptions() = %v, %v", subs, err)
	}

	if err := svc.Unsubscribe(ctx, carol, carol.ID, 10); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if err := svc.Unsubscribe(ctx, carol, carol.ID, 10); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("second Unsubscribe() error = %v, want ErrNotFound", err)
	}
}
