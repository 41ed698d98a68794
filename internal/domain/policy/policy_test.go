package policy

import (
	"errors"
	"testing"

	"github.com/zanzhit/securecam/internal/domain/errs"
	"github.com/zanzhit/securecam/internal/domain/models"
)

func ptr[T any](v T) *T { return &v }

func TestCanAccess(t *testing.T) {
	admin := Caller{ID: 1, IsAdmin: true}
	alice := Caller{ID: 2, CameraIDs: []int64{10, 11}}
	bob := Caller{ID: 3}

	boundVideo := models.Video{ID: 100, CameraID: ptr(int64(10))}
	otherVideo := models.Video{ID: 101, CameraID: ptr(int64(12))}
	orphan := models.Video{ID: 102, UserIDs: []int64{3}}

	tests := []struct {
		name   string
		caller Caller
		kind   Kind
		res    Resource
		action Action
		want   bool
	}{
		{name: "admin deletes camera", caller: admin, kind: KindCamera, res: Camera(99), action: ActionDelete, want: true},
		{name: "admin updates other user", caller: admin, kind: KindUser, res: User(2), action: ActionUpdate, want: true},
		{name: "admin reads orphan", caller: admin, kind: KindVideo, res: Video(orphan), action: ActionRead, want: true},

		{name: "self read", caller: alice, kind: KindUser, res: User(2), action: ActionRead, want: true},
		{name: "self update", caller: alice, kind: KindUser, res: User(2), action: ActionUpdate, want: true},
		{name: "self delete", caller: alice, kind: KindUser, res: User(2), action: ActionDelete, want: true},
		{name: "other user read", caller: alice, kind: KindUser, res: User(3), action: ActionRead, want: false},

		{name: "subscribed camera read", caller: alice, kind: KindCamera, res: Camera(10), action: ActionRead, want: true},
		{name: "subscribed camera update", caller: alice, kind: KindCamera, res: Camera(10), action: ActionUpdate, want: false},
		{name: "subscribed camera create", caller: alice, kind: KindCamera, res: Camera(10), action: ActionCreate, want: false},
		{name: "unsubscribed camera read", caller: alice, kind: KindCamera, res: Camera(12), action: ActionRead, want: false},

		{name: "video of subscribed camera", caller: alice, kind: KindVideo, res: Video(boundVideo), action: ActionRead, want: true},
		{name: "upload to subscribed camera", caller: alice, kind: KindVideo, res: Video(boundVideo), action: ActionCreate, want: true},
		{name: "delete video of subscribed camera", caller: alice, kind: KindVideo, res: Video(boundVideo), action: ActionDelete, want: false},
		{name: "video of other camera", caller: alice, kind: KindVideo, res: Video(otherVideo), action: ActionRead, want: false},
		{name: "orphan linked user", caller: bob, kind: KindVideo, res: Video(orphan), action: ActionRead, want: true},
		{name: "orphan linked user update", caller: bob, kind: KindVideo, res: Video(orphan), action: ActionUpdate, want: false},
		{name: "orphan unlinked user", caller: alice, kind: KindVideo, res: Video(orphan), action: ActionRead, want: false},

		{name: "own subscription create", caller: bob, kind: KindSubscription, res: Subscription(3, 12), action: ActionCreate, want: true},
		{name: "own subscription delete", caller: bob, kind: KindSubscription, res: Subscription(3, 12), action: ActionDelete, want: true},
		{name: "other subscription create", caller: bob, kind: KindSubscription, res: Subscription(2, 12), action: ActionCreate, want: false},

		{name: "unknown kind", caller: alice, kind: Kind("zone"), res: Resource{ID: 2}, action: ActionRead, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAccess(tt.caller, tt.kind, tt.res, tt.action); got != tt.want {
				t.Errorf("CanAccess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthorize(t *testing.T) {
	err := Authorize(Caller{ID: 2}, KindCamera, Camera(1), ActionRead)
	if !errors.Is(err, errs.ErrForbidden) {
		t.Errorf("Authorize() error = %v, want ErrForbidden", err)
	}

	if err := Authorize(Caller{ID: 2, CameraIDs: []int64{1}}, KindCamera, Camera(1), ActionRead); err != nil {
		t.Errorf("Authorize() error = %v, want nil", err)
	}
}

func TestFilterCameras(t *testing.T) {
	cameras := []models.Camera{{ID: 1, Name: "frontdoor"}, {ID: 2, Name: "backyard"}}
	byID := func(c models.Camera) Resource { return Camera(c.ID) }

	unsubscribed := Caller{ID: 5}
	if got := Filter(unsubscribed, KindCamera, cameras, byID); len(got) != 0 {
		t.Errorf("Filter() without subscriptions = %v, want empty", got)
	}

	subscribed := Caller{ID: 5, CameraIDs: []int64{1}}
	got := Filter(subscribed, KindCamera, cameras, byID)
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("Filter() after subscribing = %v, want [camera 1]", got)
	}

	admin := Caller{ID: 1, IsAdmin: true}
	if got := Filter(admin, KindCamera, cameras, byID); len(got) != 2 {
		t.Errorf("Filter() for admin = %v, want all", got)
	}
}

func TestFromPrincipal(t *testing.T) {
	c := FromPrincipal(models.Principal{
		User:      models.User{ID: 7, IsAdmin: true},
		CameraIDs: []int64{3},
	})

	if c.ID != 7 || !c.IsAdmin || !c.Subscribed(3) || c.Subscribed(4) {
		t.Errorf("FromPrincipal() = %+v", c)
	}
}
