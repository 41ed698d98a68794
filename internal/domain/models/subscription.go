package models

import "time"

type Subscription struct {
	UserID       int64     `json:"user_id" db:"user_id"`
	CameraID     int64     `json:"camera_id" db:"camera_id"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`
}

// SubscriptionChanges is the net result of a reconciliation.
type SubscriptionChanges struct {
	Created []Subscription `json:"created"`
	Deleted []Subscription `json:"deleted"`
}

func (c SubscriptionChanges) Empty() bool {
	return len(c.Created) == 0 && len(c.Deleted) == 0
}
