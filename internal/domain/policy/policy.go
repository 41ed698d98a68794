// Package policy decides whether a caller may perform an action on a resource.
//
// Rules are evaluated in order and the first match wins:
//  1. admins may do anything;
//  2. users may read, update and delete their own user record;
//  3. cameras and camera-bound videos are readable by subscribers of the camera,
//     and subscribers may upload videos for it; orphaned videos are readable by
//     their linked users;
//  4. users may read, create and delete their own subscriptions;
//  5. everything else is forbidden.
package policy

import (
	"fmt"
	"slices"

	"github.com/zanzhit/securecam/internal/domain/errs"
	"github.com/zanzhit/securecam/internal/domain/models"
)

type Kind string

const (
	KindUser         Kind = "user"
	KindCamera       Kind = "camera"
	KindVideo        Kind = "video"
	KindSubscription Kind = "subscription"
)

type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

type Caller struct {
	ID        int64
	IsAdmin   bool
	CameraIDs []int64
}

func FromPrincipal(p models.Principal) Caller {
	return Caller{
		ID:        p.User.ID,
		IsAdmin:   p.User.IsAdmin,
		CameraIDs: p.CameraIDs,
	}
}

func (c Caller) Subscribed(cameraID int64) bool {
	return slices.Contains(c.CameraIDs, cameraID)
}

// Resource carries the ownership facts of the target. Which fields matter
// depends on the kind.
type Resource struct {
	ID       int64
	UserID   int64
	CameraID *int64
	UserIDs  []int64
}

func User(id int64) Resource { return Resource{ID: id, UserID: id} }

func Camera(id int64) Resource { return Resource{ID: id, CameraID: &id} }

func Video(v models.Video) Resource {
	return Resource{ID: v.ID, CameraID: v.CameraID, UserIDs: v.UserIDs}
}

func Subscription(userID, cameraID int64) Resource {
	return Resource{UserID: userID, CameraID: &cameraID}
}

func CanAccess(c Caller, kind Kind, res Resource, action Action) bool {
	if c.IsAdmin {
		return true
	}

	switch kind {
	case KindUser:
		return res.ID == c.ID && action != ActionCreate

	case KindCamera:
		return action == ActionRead && res.CameraID != nil && c.Subscribed(*res.CameraID)

	case KindVideo:
		if res.CameraID != nil {
			return (action == ActionRead || action == ActionCreate) && c.Subscribed(*res.CameraID)
		}
		return action == ActionRead && slices.Contains(res.UserIDs, c.ID)

	case KindSubscription:
		return res.UserID == c.ID
	}

	return false
}

// Authorize is CanAccess returning errs.ErrForbidden on denial.
func Authorize(c Caller, kind Kind, res Resource, action Action) error {
	if !CanAccess(c, kind, res, action) {
		return fmt.Errorf("%w: cannot %s %s", errs.ErrForbidden, action, kind)
	}

	return nil
}

// Filter keeps the items the caller may read.
func Filter[T any](c Caller, kind Kind, items []T, resource func(T) Resource) []T {
	if c.IsAdmin {
		return items
	}

	out := make([]T, 0, len(items))
	for _, item := range items {
		if CanAccess(c, kind, resource(item), ActionRead) {
			out = append(out, item)
		}
	}

	return out
}
