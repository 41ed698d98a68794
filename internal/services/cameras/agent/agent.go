// Package agentclient forwards camera actions to the agent running on the camera device.
package agentclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/zanzhit/securecam/internal/domain/errs"
	"github.com/zanzhit/securecam/internal/domain/models"
)

const (
	KeyHeader = "X-Camera-Key"

	tripAfter = 3
)

type Client struct {
	log      *slog.Logger
	http     *http.Client
	port     string
	scheme   string
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
	settings gobreaker.Settings
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Tests use it to reach an httptest server.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithOpenTimeout sets how long a tripped breaker stays open.
func WithOpenTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.settings.Timeout = d }
}

func New(log *slog.Logger, port string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		log:      log,
		http:     &http.Client{Timeout: timeout},
		port:     port,
		scheme:   "http",
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
		settings: gobreaker.Settings{
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= tripAfter
			},
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.settings.OnStateChange = func(name string, from, to gobreaker.State) {
		c.log.Warn("camera agent breaker state changed",
			slog.String("host", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	}

	return c
}

// Run posts the action to the camera agent. An unreachable agent, an open
// breaker or a 5xx answer is reported as errs.ErrCameraIsNotAvailable.
func (c *Client) Run(ctx context.Context, cam models.Camera, action models.CameraAction, seconds int) error {
	const op = "service.cameras.agent.Run"

	endpoint := url.URL{
		Scheme:   c.scheme,
		Host:     net.JoinHostPort(cam.HostAddress, c.port),
		Path:     "/run/" + string(action),
		RawQuery: url.Values{"time_s": []string{strconv.Itoa(seconds)}}.Encode(),
	}

	_, err := c.breaker(cam.HostAddress).Execute(func() (struct{}, error) {
		return struct{}{}, c.post(ctx, endpoint.String(), cam.AuthKey)
	})
	if err != nil {
		var rejected *rejectedError
		if errors.As(err, &rejected) {
			return fmt.Errorf("%s: %w", op, rejected.err)
		}
		return fmt.Errorf("%s: %w: %w", op, errs.ErrCameraIsNotAvailable, err)
	}

	return nil
}

func (c *Client) breaker(host string) *gobreaker.CircuitBreaker[struct{}] {
	c.mu.Lock()
	defer c.mu.Unlock()

	cb, ok := c.breakers[host]
	if !ok {
		settings := c.settings
		settings.Name = host
		settings.IsSuccessful = func(err error) bool {
			var rejected *rejectedError
			return err == nil || errors.As(err, &rejected)
		}
		cb = gobreaker.NewCircuitBreaker[struct{}](settings)
		c.breakers[host] = cb
	}

	return cb
}

// rejectedError is a 4xx answer: the agent is up but refused the request.
// It does not count against the breaker.
type rejectedError struct {
	err error
}

func (e *rejectedError) Error() string { return e.err.Error() }

func (c *Client) post(ctx context.Context, endpoint, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set(KeyHeader, key)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &rejectedError{err: fmt.Errorf("%w: agent rejected the auth key", errs.ErrCameraIsNotAvailable)}
	case resp.StatusCode < 500:
		return &rejectedError{err: fmt.Errorf("%w: agent answered %d: %s", errs.ErrInvalidArgument, resp.StatusCode, body)}
	}

	return fmt.Errorf("agent answered %d: %s", resp.StatusCode, body)
}
