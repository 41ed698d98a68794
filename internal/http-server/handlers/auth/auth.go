package authhandler

import (
	"context"
	"log/slog"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/zanzhit/securecam/internal/domain/models"
	"github.com/zanzhit/securecam/internal/domain/policy"
	"github.com/zanzhit/securecam/internal/http-server/handlers"
	authmiddleware "github.com/zanzhit/securecam/internal/http-server/middleware/auth"
	"github.com/zanzhit/securecam/internal/lib/api/response"
	"github.com/zanzhit/securecam/internal/lib/sl"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type PATRequest struct {
	Name string `json:"name" validate:"max=100"`
	// Minutes of lifetime. Missing means the access token lifetime, 0 never expires.
	Lifetime *int `json:"lifetime_minutes" validate:"omitempty,min=0"`
}

type PATResponse struct {
	models.TokenPair
	Token models.PersonalAccessToken `json:"token"`
}

type AuthHandler struct {
	log       *slog.Logger
	sessions  Sessions
	validator *validator.Validate
}

type Sessions interface {
	Login(ctx context.Context, email, password string, deviceInfo *string) (models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error)
	IssuePAT(ctx context.Context, userID int64, name string, minutes *int) (models.TokenPair, models.PersonalAccessToken, error)
	PATs(ctx context.Context, userID int64) ([]models.PersonalAccessToken, error)
	RevokePAT(ctx context.Context, caller policy.Caller, id string) error
	Logout(ctx context.Context, refreshToken string, userID int64) error
	LogoutAll(ctx context.Context, userID int64) (int64, error)
}

func New(
	log *slog.Logger,
	sessions Sessions,
	validator *validator.Validate,
) *AuthHandler {
	return &AuthHandler{
		log:       log,
		sessions:  sessions,
		validator: validator,
	}
}

// Login accepts an OAuth2 password form (username, password) or the same
// fields as JSON.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.Login"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req LoginRequest
	if isForm(r) {
		if err := r.ParseForm(); err != nil {
			log.Error("failed to parse form", sl.Err(err))

			handlers.Error(w, r, http.StatusBadRequest, response.Error("failed to decode request", middleware.GetReqID(r.Context())))

			return
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")

		if !handlers.Validate(w, r, log, h.validator, &req) {
			return
		}
	} else if !handlers.Decode(w, r, log, h.validator, &req) {
		return
	}

	var device *string
	if ua := r.UserAgent(); ua != "" {
		device = &ua
	}

	pair, err := h.sessions.Login(r.Context(), req.Username, req.Password, device)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	render.JSON(w, r, pair)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.Refresh"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	token, ok := h.refreshToken(w, r, log)
	if !ok {
		return
	}

	pair, err := h.sessions.Refresh(r.Context(), token)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	render.JSON(w, r, pair)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.Logout"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	token, ok := h.refreshToken(w, r, log)
	if !ok {
		return
	}

	caller := authmiddleware.Caller(r)
	if err := h.sessions.Logout(r.Context(), token, caller.ID); err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.LogoutAll"

	caller := authmiddleware.Caller(r)

	n, err := h.sessions.LogoutAll(r.Context(), caller.ID)
	if err != nil {
		h.log.Error("failed to revoke sessions",
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			sl.Err(err),
		)

		handlers.ServiceError(w, r, err)

		return
	}

	render.JSON(w, r, map[string]int64{"revoked": n})
}

func (h *AuthHandler) IssuePAT(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.IssuePAT"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req PATRequest
	if r.ContentLength != 0 {
		if !handlers.Decode(w, r, log, h.validator, &req) {
			return
		}
	}

	caller := authmiddleware.Caller(r)

	pair, pat, err := h.sessions.IssuePAT(r.Context(), caller.ID, req.Name, req.Lifetime)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, PATResponse{TokenPair: pair, Token: pat})
}

func (h *AuthHandler) PATs(w http.ResponseWriter, r *http.Request) {
	caller := authmiddleware.Caller(r)

	pats, err := h.sessions.PATs(r.Context(), caller.ID)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	if pats == nil {
		pats = []models.PersonalAccessToken{}
	}

	render.JSON(w, r, pats)
}

func (h *AuthHandler) RevokePAT(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.RevokePAT(r.Context(), authmiddleware.Caller(r), chi.URLParam(r, "id")); err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// refreshToken reads refresh_token from a form or a JSON body.
func (h *AuthHandler) refreshToken(w http.ResponseWriter, r *http.Request, log *slog.Logger) (string, bool) {
	var req RefreshRequest

	if isForm(r) {
		if err := r.ParseForm(); err != nil {
			log.Error("failed to parse form", sl.Err(err))

			handlers.Error(w, r, http.StatusBadRequest, response.Error("failed to decode request", middleware.GetReqID(r.Context())))

			return "", false
		}
		req.RefreshToken = r.PostForm.Get("refresh_token")

		return req.RefreshToken, handlers.Validate(w, r, log, h.validator, &req)
	}

	if !handlers.Decode(w, r, log, h.validator, &req) {
		return "", false
	}

	return req.RefreshToken, true
}

func isForm(r *http.Request) bool {
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}

	return ct == "application/x-www-form-urlencoded" || ct == "multipart/form-data"
}
