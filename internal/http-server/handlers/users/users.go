package usershandler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/zanzhit/securecam/internal/domain/models"
	"github.com/zanzhit/securecam/internal/domain/policy"
	"github.com/zanzhit/securecam/internal/http-server/handlers"
	authmiddleware "github.com/zanzhit/securecam/internal/http-server/middleware/auth"
	"github.com/zanzhit/securecam/internal/lib/api/response"
)

const refParam = "id_or_email"

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,password"`
}

type SubscriptionsRequest struct {
	CameraIDs []int64 `json:"camera_ids" validate:"required,dive,min=1"`
}

type UserHandler struct {
	log           *slog.Logger
	users         Users
	subscriptions Subscriptions
	videos        Videos
	validator     *validator.Validate
}

type Users interface {
	Register(ctx context.Context, email, password string) (models.User, error)
	User(ctx context.Context, caller policy.Caller, ref models.UserRef) (models.User, error)
	Users(ctx context.Context, caller policy.Caller, filter models.UserFilter, page models.Page) ([]models.User, error)
	Update(ctx context.Context, caller policy.Caller, ref models.UserRef, upd models.UserUpdate) (models.User, error)
	Delete(ctx context.Context, caller policy.Caller, ref models.UserRef) (models.User, error)
}

type Subscriptions interface {
	SetSubscriptions(ctx context.Context, caller policy.Caller, userID int64, desired []int64) (models.SubscriptionChanges, error)
	Subscribe(ctx context.Context, caller policy.Caller, userID, cameraID int64) (models.Subscription, error)
	Unsubscribe(ctx context.Context, caller policy.Caller, userID, cameraID int64) error
	UserSubscriptions(ctx context.Context, caller policy.Caller, userID int64) ([]models.Subscription, error)
}

type Videos interface {
	UserVideos(ctx context.Context, caller policy.Caller, userID int64, page models.Page) ([]models.Video, error)
}

func New(
	log *slog.Logger,
	users Users,
	subscriptions Subscriptions,
	videos Videos,
	validator *validator.Validate,
) *UserHandler {
	return &UserHandler{
		log:           log,
		users:         users,
		subscriptions: subscriptions,
		videos:        videos,
		validator:     validator,
	}
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.Register"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req RegisterRequest
	if !handlers.Decode(w, r, log, h.validator, &req) {
		return
	}

	user, err := h.users.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, user)
}

// Me returns the authenticated user.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := authmiddleware.PrincipalFrom(r.Context())
	if !ok {
		handlers.Error(w, r, http.StatusUnauthorized, response.Error("not authenticated", middleware.GetReqID(r.Context())))

		return
	}

	render.JSON(w, r, principal.User)
}

func (h *UserHandler) User(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolve(w, r)
	if !ok {
		return
	}

	render.JSON(w, r, user)
}

func (h *UserHandler) Users(w http.ResponseWriter, r *http.Request) {
	page, err := handlers.Page(r)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	ids, err := handlers.IDs(r, "ids")
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	filter := models.UserFilter{IDs: ids, Email: r.URL.Query().Get("email")}

	users, err := h.users.Users(r.Context(), authmiddleware.Caller(r), filter, page)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	render.JSON(w, r, response.List[models.User]{Items: handlers.NonNil(users), PageIndex: page.Index, PageSize: page.Size})
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.Update"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	ref, err := handlers.UserRef(r, refParam)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	var req models.UserUpdate
	if !handlers.Decode(w, r, log, h.validator, &req) {
		return
	}

	user, err := h.users.Update(r.Context(), authmiddleware.Caller(r), ref, req)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	render.JSON(w, r, user)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ref, err := handlers.UserRef(r, refParam)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	user, err := h.users.Delete(r.Context(), authmiddleware.Caller(r), ref)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	render.JSON(w, r, user)
}

func (h *UserHandler) Subscriptions(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolve(w, r)
	if !ok {
		return
	}

	subs, err := h.subscriptions.UserSubscriptions(r.Context(), authmiddleware.Caller(r), user.ID)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	render.JSON(w, r, handlers.NonNil(subs))
}

// SetSubscriptions replaces the set of cameras the user is subscribed to.
func (h *UserHandler) SetSubscriptions(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.users.SetSubscriptions"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	user, ok := h.resolve(w, r)
	if !ok {
		return
	}

	var req SubscriptionsRequest
	if !handlers.Decode(w, r, log, h.validator, &req) {
		return
	}

	changes, err := h.subscriptions.SetSubscriptions(r.Context(), authmiddleware.Caller(r), user.ID, req.CameraIDs)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	changes.Created = handlers.NonNil(changes.Created)
	changes.Deleted = handlers.NonNil(changes.Deleted)

	render.JSON(w, r, changes)
}

func (h *UserHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	user, cameraID, ok := h.subscriptionTarget(w, r)
	if !ok {
		return
	}

	sub, err := h.subscriptions.Subscribe(r.Context(), authmiddleware.Caller(r), user.ID, cameraID)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, sub)
}

func (h *UserHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	user, cameraID, ok := h.subscriptionTarget(w, r)
	if !ok {
		return
	}

	if err := h.subscriptions.Unsubscribe(r.Context(), authmiddleware.Caller(r), user.ID, cameraID); err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) Videos(w http.ResponseWriter, r *http.Request) {
	page, err := handlers.Page(r)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	user, ok := h.resolve(w, r)
	if !ok {
		return
	}

	videos, err := h.videos.UserVideos(r.Context(), authmiddleware.Caller(r), user.ID, page)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	render.JSON(w, r, response.List[models.Video]{Items: handlers.NonNil(videos), PageIndex: page.Index, PageSize: page.Size})
}

// resolve turns the id-or-email path parameter into a user the caller may read.
func (h *UserHandler) resolve(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	ref, err := handlers.UserRef(r, refParam)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return models.User{}, false
	}

	user, err := h.users.User(r.Context(), authmiddleware.Caller(r), ref)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return models.User{}, false
	}

	return user, true
}

func (h *UserHandler) subscriptionTarget(w http.ResponseWriter, r *http.Request) (models.User, int64, bool) {
	cameraID, err := handlers.ID(r, "camera_id")
	if err != nil {
		handlers.ServiceError(w, r, err)

		return models.User{}, 0, false
	}

	user, ok := h.resolve(w, r)
	if !ok {
		return models.User{}, 0, false
	}

	return user, cameraID, true
}
