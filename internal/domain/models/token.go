package models

import "time"

type RefreshToken struct {
	ID         int64     `db:"id"`
	Token      string    `db:"token"`
	UserID     int64     `db:"user_id"`
	ExpiresAt  time.Time `db:"expires_at"`
	IssuedAt   time.Time `db:"issued_at"`
	DeviceInfo *string   `db:"device_info"`
}

type PersonalAccessToken struct {
	ID        string    `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

// Principal is the authenticated caller of a request.
type Principal struct {
	User      User
	CameraIDs []int64
}
