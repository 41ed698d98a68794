package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/zanzhit/securecam/internal/domain/errs"
	"github.com/zanzhit/securecam/internal/lib/api/response"
)

func Error(w http.ResponseWriter, r *http.Request, statusCode int, err response.Response) {
	render.Status(r, statusCode)
	render.JSON(w, r, err)
}

// Status maps a domain error to the HTTP status reported to the client.
func Status(err error) int {
	switch {
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, errs.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, errs.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}

// ServiceError writes err with its mapped status. Internal errors never leak
// their text, only the request id.
func ServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := Status(err)
	reqID := middleware.GetReqID(r.Context())

	if status == http.StatusInternalServerError {
		Error(w, r, status, response.Error("internal error", reqID))
		return
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}

	Error(w, r, status, response.Error(message(err), reqID))
}

// message returns the innermost domain message, without the op chain.
func message(err error) string {
	var missingCameras *errs.MissingCamerasError
	var missingUsers *errs.MissingUsersError

	switch {
	case errors.As(err, &missingCameras):
		return missingCameras.Error()
	case errors.As(err, &missingUsers):
		return missingUsers.Error()
	}

	for _, known := range []error{
		errs.ErrInvalidCredentials,
		errs.ErrRefreshTokenInvalid,
		errs.ErrInvalidToken,
		errs.ErrUserExists,
		errs.ErrUserNotFound,
		errs.ErrCameraAlreadyExists,
		errs.ErrCameraNotFound,
		errs.ErrCameraIsNotAvailable,
		errs.ErrVideoExists,
		errs.ErrVideoNotFound,
		errs.ErrNotAVideo,
		errs.ErrSubscriptionNotFound,
		errs.ErrTokenNotFound,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}

	for _, class := range []error{
		errs.ErrInvalidArgument,
		errs.ErrValidation,
		errs.ErrUnauthorized,
		errs.ErrForbidden,
		errs.ErrNotFound,
		errs.ErrConflict,
		errs.ErrUnsupportedMediaType,
		errs.ErrServiceUnavailable,
	} {
		if errors.Is(err, class) {
			return detail(err, class)
		}
	}

	return "internal error"
}

// detail keeps the text after the class sentinel, e.g. "forbidden: cannot update camera".
func detail(err, class error) string {
	text := err.Error()
	marker := class.Error()

	if i := strings.Index(text, marker); i >= 0 {
		return text[i:]
	}

	return marker
}
