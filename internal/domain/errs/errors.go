package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrServiceUnavailable   = errors.New("service unavailable")
	ErrInvalidToken         = fmt.Errorf("invalid token: %w", ErrUnauthorized)
	ErrHashing              = errors.New("hashing failed")
)

var (
	ErrInvalidCredentials  = fmt.Errorf("incorrect username or password: %w", ErrUnauthorized)
	ErrRefreshTokenInvalid = fmt.Errorf("invalid or expired refresh token: %w", ErrUnauthorized)
	ErrUserExists          = fmt.Errorf("user already exists: %w", ErrConflict)
	ErrUserNotFound        = fmt.Errorf("user %w", ErrNotFound)

	ErrCameraAlreadyExists  = fmt.Errorf("camera already exists: %w", ErrConflict)
	ErrCameraNotFound       = fmt.Errorf("camera %w", ErrNotFound)
	ErrCameraIsNotAvailable = fmt.Errorf("camera is not available: %w", ErrServiceUnavailable)

	ErrVideoExists   = fmt.Errorf("video already exists: %w", ErrConflict)
	ErrVideoNotFound = fmt.Errorf("video %w", ErrNotFound)
	ErrNotAVideo     = fmt.Errorf("file uploaded is not a video: %w", ErrUnsupportedMediaType)

	ErrSubscriptionNotFound = fmt.Errorf("subscription %w", ErrNotFound)
	ErrTokenNotFound        = fmt.Errorf("personal access token %w", ErrNotFound)
)

// MissingCamerasError lists every camera id that does not exist.
type MissingCamerasError struct {
	IDs []int64
}

func (e *MissingCamerasError) Error() string {
	return "cameras not found: " + joinIDs(e.IDs)
}

func (e *MissingCamerasError) Unwrap() error { return ErrCameraNotFound }

// MissingUsersError lists every user id that does not exist.
type MissingUsersError struct {
	IDs []int64
}

func (e *MissingUsersError) Error() string {
	return "users not found: " + joinIDs(e.IDs)
}

func (e *MissingUsersError) Unwrap() error { return ErrUserNotFound }

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}

	return strings.Join(parts, ", ")
}
