package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/zanzhit/securecam/internal/domain/errs"
	"github.com/zanzhit/securecam/internal/domain/models"
	"github.com/zanzhit/securecam/internal/lib/api/response"
	"github.com/zanzhit/securecam/internal/lib/sl"
	"github.com/zanzhit/securecam/internal/lib/validate"
)

// Decode reads a JSON body into v and validates it. On failure the response
// is already written and false is returned.
func Decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, v *validator.Validate, req any) bool {
	err := render.DecodeJSON(r.Body, req)
	if err != nil {
		if errors.Is(err, io.EOF) {
			log.Error("request body is empty")

			Error(w, r, http.StatusBadRequest, response.Error("empty request", middleware.GetReqID(r.Context())))

			return false
		}

		log.Error("failed to decode request body", sl.Err(err))

		Error(w, r, http.StatusBadRequest, response.Error("failed to decode request", middleware.GetReqID(r.Context())))

		return false
	}

	return Validate(w, r, log, v, req)
}

func Validate(w http.ResponseWriter, r *http.Request, log *slog.Logger, v *validator.Validate, req any) bool {
	if err := v.Struct(req); err != nil {
		var validateErr validator.ValidationErrors
		if !errors.As(err, &validateErr) {
			log.Error("failed to validate request", sl.Err(err))

			Error(w, r, http.StatusBadRequest, response.Error("invalid request", middleware.GetReqID(r.Context())))

			return false
		}

		log.Info("invalid request", sl.Err(err))

		resp := response.ValidationError(validateErr)
		resp.RequestID = middleware.GetReqID(r.Context())
		Error(w, r, http.StatusBadRequest, resp)

		return false
	}

	return true
}

// Page reads page_index and page_size from the query.
func Page(r *http.Request) (models.Page, error) {
	page := models.DefaultPage()
	q := r.URL.Query()

	if s := q.Get("page_index"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return models.Page{}, fmt.Errorf("%w: page_index must be a non-negative integer", errs.ErrValidation)
		}
		page.Index = n
	}

	if s := q.Get("page_size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > models.MaxPageSize {
			return models.Page{}, fmt.Errorf("%w: page_size must be between 1 and %d", errs.ErrValidation, models.MaxPageSize)
		}
		page.Size = n
	}

	return page, nil
}

// ID parses a positive integer URL parameter.
func ID(r *http.Request, key string) (int64, error) {
	s := chi.URLParam(r, key)

	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errs.ErrValidation, key)
	}

	return id, nil
}

// IDs reads a list of ids from a query parameter given either repeated or
// comma separated. A missing parameter yields nil.
func IDs(r *http.Request, key string) ([]int64, error) {
	values, ok := r.URL.Query()[key]
	if !ok {
		return nil, nil
	}

	ids := []int64{}
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}

			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id < 1 {
				return nil, fmt.Errorf("%w: %s must hold positive integers", errs.ErrValidation, key)
			}
			ids = append(ids, id)
		}
	}

	return ids, nil
}

// UserRef resolves the id-or-email URL parameter.
func UserRef(r *http.Request, key string) (models.UserRef, error) {
	s := chi.URLParam(r, key)

	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		if id < 1 {
			return models.UserRef{}, fmt.Errorf("%w: %s must be a positive id or an email", errs.ErrValidation, key)
		}
		return models.ByID(id), nil
	}

	if !validate.Email(s) {
		return models.UserRef{}, fmt.Errorf("%w: %s must be a positive id or an email", errs.ErrValidation, key)
	}

	return models.ByEmail(s), nil
}

// NonNil keeps empty lists rendered as [] rather than null.
func NonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}

	return items
}
