// Package uploader sends finished recordings to the server.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/zanzhit/securecam/internal/lib/sl"
)

const contentType = "video/mp4"

type Uploader struct {
	log        *slog.Logger
	client     *http.Client
	endpoint   string
	token      string
	cameraID   int64
	maxElapsed time.Duration
}

type Option func(*Uploader)

func WithHTTPClient(c *http.Client) Option {
	return func(u *Uploader) { u.client = c }
}

// WithMaxElapsed bounds the time spent retrying one upload.
func WithMaxElapsed(d time.Duration) Option {
	return func(u *Uploader) { u.maxElapsed = d }
}

func New(log *slog.Logger, serverURL, token string, cameraID int64, timeout time.Duration, opts ...Option) *Uploader {
	u := &Uploader{
		log:        log,
		client:     &http.Client{Timeout: timeout},
		endpoint:   serverURL + "/videos",
		token:      token,
		cameraID:   cameraID,
		maxElapsed: 5 * time.Minute,
	}

	for _, opt := range opts {
		opt(u)
	}

	return u
}

// Upload posts the file as a multipart video upload. Transport failures and
// 5xx answers are retried with backoff, anything else is final.
func (u *Uploader) Upload(ctx context.Context, path string) error {
	const op = "agent.uploader.Upload"

	log := u.log.With(
		slog.String("op", op),
		slog.String("file", path),
	)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = u.maxElapsed

	err := backoff.RetryNotify(func() error {
		return u.post(ctx, path)
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		log.Warn("upload failed, retrying", slog.Duration("wait", wait), sl.Err(err))
	})
	if err != nil {
		log.Error("upload failed", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("video uploaded")

	return nil
}

// UploadAndRemove uploads the file and deletes it once the server has it.
func (u *Uploader) UploadAndRemove(ctx context.Context, path string) error {
	if err := u.Upload(ctx, path); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		u.log.Warn("failed to remove uploaded file", slog.String("file", path), sl.Err(err))
	}

	return nil
}

func (u *Uploader) post(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return backoff.Permanent(err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeForm(mw, f, filepath.Base(path), u.cameraID))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, pr)
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+u.token)

	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("server answered %s", resp.Status)
	}

	return backoff.Permanent(&RejectedError{Status: resp.StatusCode})
}

// RejectedError is a final non-success answer of the server.
type RejectedError struct {
	Status int
}

func (e *RejectedError) Error() string {
	return "upload rejected with status " + strconv.Itoa(e.Status)
}

func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}

func writeForm(mw *multipart.Writer, r io.Reader, fileName string, cameraID int64) error {
	if err := mw.WriteField("file_name", fileName); err != nil {
		return err
	}
	if err := mw.WriteField("camera_id", strconv.FormatInt(cameraID, 10)); err != nil {
		return err
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}

	if _, err := io.Copy(part, r); err != nil {
		return err
	}

	return mw.Close()
}
