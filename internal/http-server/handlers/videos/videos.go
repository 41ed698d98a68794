package videoshandler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"

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

// Uploads above this size are spooled to disk by the multipart parser.
const maxMemory = 32 << 20

type VideoHandler struct {
	log       *slog.Logger
	videos    Videos
	validator *validator.Validate
}

type Videos interface {
	Upload(ctx context.Context, caller policy.Caller, meta models.VideoUpload, body io.Reader) (models.Video, error)
	Video(ctx context.Context, caller policy.Caller, id int64) (models.Video, error)
	Videos(ctx context.Context, caller policy.Caller, filter models.VideoFilter, page models.Page) ([]models.Video, error)
	Open(ctx context.Context, caller policy.Caller, id int64) (models.Video, io.ReadCloser, error)
	UpdateVideo(ctx context.Context, caller policy.Caller, id int64, upd models.VideoUpdate) (models.Video, error)
	DeleteVideo(ctx context.Context, caller policy.Caller, id int64) (models.Video, error)
}

func New(log *slog.Logger, videos Videos, validator *validator.Validate) *VideoHandler {
	return &VideoHandler{
		log:       log,
		videos:    videos,
		validator: validator,
	}
}

// Upload takes a multipart form with file_name, camera_id and file. file_name
// falls back to the name of the uploaded part.
func (h *VideoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.videos.Upload"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		log.Info("failed to parse multipart form", sl.Err(err))

		handlers.Error(w, r, http.StatusBadRequest, response.Error("expected a multipart form", middleware.GetReqID(r.Context())))

		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			log.Warn("failed to remove multipart temp files", sl.Err(err))
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		handlers.Error(w, r, http.StatusBadRequest, response.Error("field file is a required field", middleware.GetReqID(r.Context())))

		return
	}
	defer file.Close()

	meta := models.VideoUpload{
		FileName:    r.FormValue("file_name"),
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
	}
	if meta.FileName == "" {
		meta.FileName = header.Filename
	}

	if s := r.FormValue("camera_id"); s != "" {
		meta.CameraID, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			handlers.ServiceError(w, r, fmt.Errorf("%w: camera_id must be an integer", errs.ErrValidation))

			return
		}
	}

	if !handlers.Validate(w, r, log, h.validator, &meta) {
		return
	}

	video, err := h.videos.Upload(r.Context(), authmiddleware.Caller(r), meta, file)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, video)
}

func (h *VideoHandler) Video(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.ID(r, "id")
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	video, err := h.videos.Video(r.Context(), authmiddleware.Caller(r), id)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	render.JSON(w, r, video)
}

func (h *VideoHandler) Videos(w http.ResponseWriter, r *http.Request) {
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

	cameraIDs, err := handlers.IDs(r, "camera_ids")
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	filter := models.VideoFilter{
		IDs:       ids,
		FileName:  r.URL.Query().Get("file_name"),
		CameraIDs: cameraIDs,
	}

	videos, err := h.videos.Videos(r.Context(), authmiddleware.Caller(r), filter, page)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	render.JSON(w, r, response.List[models.Video]{Items: handlers.NonNil(videos), PageIndex: page.Index, PageSize: page.Size})
}

// File streams the stored video.
func (h *VideoHandler) File(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.videos.File"

	id, err := handlers.ID(r, "id")
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	video, rc, err := h.videos.Open(r.Context(), authmiddleware.Caller(r), id)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(video.FileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": video.FileName}))

	if _, err := io.Copy(w, rc); err != nil {
		h.log.Warn("failed to stream video",
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Int64("video_id", id),
			sl.Err(err),
		)
	}
}

func (h *VideoHandler) UpdateVideo(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.videos.UpdateVideo"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, err := handlers.ID(r, "id")
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	var req models.VideoUpdate
	if !handlers.Decode(w, r, log, h.validator, &req) {
		return
	}

	video, err := h.videos.UpdateVideo(r.Context(), authmiddleware.Caller(r), id, req)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	render.JSON(w, r, video)
}

func (h *VideoHandler) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	id, err := handlers.ID(r, "id")
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	video, err := h.videos.DeleteVideo(r.Context(), authmiddleware.Caller(r), id)
	if err != nil {
		handlers.ServiceError(w, r, err)

		return
	}

	render.JSON(w, r, video)
}
