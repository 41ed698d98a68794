package camerashandler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/zanzhit/securecam/internal/domain/errs"
	"github.com/zanzhit/securecam/internal/domain/models"
	"github.com/zanzhit/securecam/internal/domain/policy"
	"github.com/zanzhit/securecam/internal/http-server/handlers"
	authmiddleware "github.com/zanzhit/securecam/internal/http-server/middleware/auth"
	"github.com/zanzhit/securecam/internal/lib/api/response"
	"github.com/zanzhit/securecam/internal/lib/sl"
)

type SubscribersRequest struct {
	UserIDs []int64 `json:"user_ids" validate:"required,dive,min=1"`
}

type CameraHandler struct {
	log           *slog.Logger
	camera        Camera
	subscriptions Subscriptions
	validator     *validator.Validate
}

type Camera interface {
	SaveCamera(ctx context.Context, caller policy.Caller, cam models.Camera) (models.Camera, error)
	Camera(ctx context.Context, caller policy.Caller, id int64) (models.Camera, error)
	Cameras(ctx context.Context, caller policy.Caller, filter models.CameraFilter, page models.Page) ([]models.Camera, error)
	UpdateCamera(ctx context.Context, caller policy.Caller, id int64, upd models.CameraUpdate) (models.Camera, error)
	DeleteCamera(ctx context.Context, caller policy.Caller, id int64) (models.Camera, error)
	RunAction(ctx context.Context, caller policy.Caller, id int64, action models.CameraAction, seconds int) error
}

type Subscriptions interface {
	SetSubscribers(ctx context.Context, caller policy.Caller, cameraID int64, desired []int64) (models.SubscriptionChanges, error)
	CameraSubscribers(ctx context.Context, caller policy.Caller, cameraID int64) ([]models.Subscription, error)
}

func New(
	log *slog.Logger,
	camera Camera,
	subscriptions Subscriptions,
	validator *validator.Validate,
) *CameraHandler {
	return &CameraHandler{
		log:           log,
		camera:        camera,
		subscriptions: subscriptions,
		validator:     validator,
	}
}

func (h *CameraHandler) SaveCamera(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.cameras.SaveCamera"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.Camera
	if !handlers.Decode(w, r, log, h.validator, &req) {
		return
	}

	cam, err := h.camera.SaveCamera(r.Context(), authmiddleware.Caller(r), req)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, cam)
}

func (h *CameraHandler) Camera(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.ID(r, "id")
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	caller := authmiddleware.Caller(r)

	cam, err := h.camera.Camera(r.Context(), caller, id)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	render.JSON(w, r, redact(caller, cam))
}

func (h *CameraHandler) Cameras(w http.ResponseWriter, r *http.Request) {
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

	caller := authmiddleware.Caller(r)

	cams, err := h.camera.Cameras(r.Context(), caller, models.CameraFilter{IDs: ids, Name: r.URL.Query().Get("name")}, page)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	items := make([]models.Camera, 0, len(cams))
	for _, cam := range cams {
		items = append(items, redact(caller, cam))
	}

	render.JSON(w, r, response.List[models.Camera]{Items: items, PageIndex: page.Index, PageSize: page.Size})
}

func (h *CameraHandler) UpdateCamera(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.cameras.UpdateCamera"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, err := handlers.ID(r, "id")
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	var req models.CameraUpdate
	if !handlers.Decode(w, r, log, h.validator, &req) {
		return
	}

	cam, err := h.camera.UpdateCamera(r.Context(), authmiddleware.Caller(r), id, req)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	render.JSON(w, r, cam)
}

func (h *CameraHandler) DeleteCamera(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.ID(r, "id")
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	cam, err := h.camera.DeleteCamera(r.Context(), authmiddleware.Caller(r), id)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	render.JSON(w, r, cam)
}

// RunAction forwards record, enable or disable to the device agent.
// time_s is optional and defaults to the agent's own duration.
func (h *CameraHandler) RunAction(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.cameras.RunAction"

	id, err := handlers.ID(r, "id")
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	action := models.CameraAction(chi.URLParam(r, "action"))
	if !action.Valid() {
		handlers.ServiceError(w, r, fmt.Errorf("%w: unknown action %q", errs.ErrValidation, action))

		return
	}

	seconds := 0
	if s := r.URL.Query().Get("time_s"); s != "" {
		seconds, err = strconv.Atoi(s)
		if err != nil || seconds < 0 {
			handlers.ServiceError(w, r, fmt.Errorf("%w: time_s must be a non-negative integer", errs.ErrValidation))

			return
		}
	}

	if err := h.camera.RunAction(r.Context(), authmiddleware.Caller(r), id, action, seconds); err != nil {
		h.log.Warn("camera action failed",
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Int64("camera_id", id),
			slog.String("action", string(action)),
			sl.Err(err),
		)

		handlers.ServiceError(w, r, err)

		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{"status": "accepted"})
}

func (h *CameraHandler) Subscribers(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.ID(r, "id")
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	subs, err := h.subscriptions.CameraSubscribers(r.Context(), authmiddleware.Caller(r), id)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	render.JSON(w, r, handlers.NonNil(subs))
}

// SetSubscribers replaces the set of users subscribed to the camera.
func (h *CameraHandler) SetSubscribers(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.cameras.SetSubscribers"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, err := handlers.ID(r, "id")
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	var req SubscribersRequest
	if !handlers.Decode(w, r, log, h.validator, &req) {
		return
	}

	changes, err := h.subscriptions.SetSubscribers(r.Context(), authmiddleware.Caller(r), id, req.UserIDs)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	changes.Created = handlers.NonNil(changes.Created)
	changes.Deleted = handlers.NonNil(changes.Deleted)

	render.JSON(w, r, changes)
}

// redact hides the agent key from everyone but admins.
func redact(caller policy.Caller, cam models.Camera) models.Camera {
	if !caller.IsAdmin {
		cam.AuthKey = ""
	}

	return cam
}
