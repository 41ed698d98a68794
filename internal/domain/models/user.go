package models

import (
	"strconv"
	"time"
)

type User struct {
	ID           int64     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	IsAdmin      bool      `json:"is_admin" db:"is_admin"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`
}

type UserUpdate struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,password"`
	IsAdmin  *bool   `json:"is_admin"`
}

type UserFilter struct {
	IDs   []int64
	Email string
}

// UserRef points at a user either by id or by email. Exactly one of the two is set.
type UserRef struct {
	ID    int64
	Email string
}

func ByID(id int64) UserRef { return UserRef{ID: id} }

func ByEmail(email string) UserRef { return UserRef{Email: email} }

func (r UserRef) IsID() bool { return r.ID > 0 }

func (r UserRef) Matches(u User) bool {
	if r.IsID() {
		return u.ID == r.ID
	}

	return u.Email == r.Email
}

func (r UserRef) String() string {
	if r.IsID() {
		return strconv.FormatInt(r.ID, 10)
	}

	return r.Email
}
