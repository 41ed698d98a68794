package models

import "time"

type Camera struct {
	ID           int64     `json:"id" db:"id"`
	HostAddress  string    `json:"host_address" db:"host_address" validate:"required,host_address"`
	Name         string    `json:"name" db:"name" validate:"required,camera_name"`
	AuthKey      string    `json:"auth_key" db:"auth_key" validate:"required"`
	MACAddress   string    `json:"mac_address" db:"mac_address" validate:"required,mac_address"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`
}

type CameraUpdate struct {
	HostAddress *string `json:"host_address" validate:"omitempty,host_address"`
	Name        *string `json:"name" validate:"omitempty,camera_name"`
	AuthKey     *string `json:"auth_key" validate:"omitempty,min=1"`
	MACAddress  *string `json:"mac_address" validate:"omitempty,mac_address"`
}

type CameraFilter struct {
	IDs  []int64
	Name string
}

// CameraAction is a command forwarded to the device agent of a camera.
type CameraAction string

const (
	ActionRecord  CameraAction = "record"
	ActionEnable  CameraAction = "enable"
	ActionDisable CameraAction = "disable"
)

func (a CameraAction) Valid() bool {
	switch a {
	case ActionRecord, ActionEnable, ActionDisable:
		return true
	}

	return false
}
