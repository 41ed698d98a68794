package models

import (
	"strconv"
	"time"
)

type Video struct {
	ID         int64     `json:"id" db:"id"`
	FileName   string    `json:"file_name" db:"file_name"`
	CameraID   *int64    `json:"camera_id" db:"camera_id"`
	BlobPath   string    `json:"-" db:"blob_path"`
	UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"`
	UserIDs    []int64   `json:"user_ids,omitempty" db:"-"`
}

// Orphaned videos have no camera and are visible through their user links only.
func (v Video) Orphaned() bool { return v.CameraID == nil }

type VideoUpdate struct {
	FileName *string `json:"file_name" validate:"omitempty,file_name"`
	// CameraID 0 detaches the video from its camera.
	CameraID *int64  `json:"camera_id" validate:"omitempty,min=0"`
	UserIDs  []int64 `json:"user_ids" validate:"omitempty,dive,min=1"`
}

type VideoFilter struct {
	IDs       []int64
	FileName  string
	CameraIDs []int64
	// UserID limits the result to videos linked to the user (orphaned videos).
	UserID int64
}

// VideoUploaded is published after a video has been stored.
type VideoUploaded struct {
	VideoID     int64     `json:"video_id"`
	CameraID    int64     `json:"camera_id"`
	FileName    string    `json:"file_name"`
	Subscribers []int64   `json:"subscribers"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// VideoUpload describes an uploaded file. The content itself is streamed separately.
type VideoUpload struct {
	FileName    string `json:"file_name" validate:"required,file_name"`
	CameraID    int64  `json:"camera_id" validate:"required,min=1"`
	ContentType string `json:"-"`
	Size        int64  `json:"-"`
}

func BlobPath(cameraID int64, fileName string) string {
	return strconv.FormatInt(cameraID, 10) + "/" + fileName
}

// VideoBlobPath is where the file of a stored video lives. Videos without a
// camera are keyed by id so they never collide with camera uploads.
func VideoBlobPath(v Video) string {
	if v.CameraID == nil {
		return "orphaned/" + strconv.FormatInt(v.ID, 10) + "_" + v.FileName
	}

	return BlobPath(*v.CameraID, v.FileName)
}
