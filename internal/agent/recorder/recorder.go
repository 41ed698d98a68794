// Package recorder runs the capture command of the camera device.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v3"

	"github.com/zanzhit/securecam/internal/lib/sl"
)

var ErrRecordingNotFound = errors.New("recording not found")

type Recording struct {
	ID        string        `json:"id"`
	Path      string        `json:"file"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// DoneFunc receives every recording whose command exited cleanly.
type DoneFunc func(ctx context.Context, rec Recording)

type Recorder struct {
	log      *slog.Logger
	command  []string
	dir      string
	done     DoneFunc
	mu       sync.Mutex
	commands map[string]*exec.Cmd
	wg       sync.WaitGroup
}

// New splits command into the program and its leading arguments. Duration
// and output are appended as "-t <ms> -o <file>".
func New(log *slog.Logger, command, dir string, done DoneFunc) (*Recorder, error) {
	const op = "agent.recorder.New"

	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%s: record command is empty", op)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Recorder{
		log:      log,
		command:  parts,
		dir:      dir,
		done:     done,
		commands: make(map[string]*exec.Cmd),
	}, nil
}

func (r *Recorder) Record(d time.Duration) (Recording, error) {
	const op = "agent.recorder.Record"

	now := time.Now()
	rec := Recording{
		ID:        shortuuid.New(),
		StartedAt: now,
		Duration:  d,
	}
	rec.Path = filepath.Join(r.dir, fmt.Sprintf("%s_%s.mp4", now.Format("2006-01-02_15-04-05"), rec.ID))

	log := r.log.With(
		slog.String("op", op),
		slog.String("record_id", rec.ID),
	)

	args := append(slices.Clone(r.command[1:]), []string{"-t", strconv.FormatInt(d.Milliseconds(), 10), "-o", rec.Path}...)

	cmd := exec.Command(r.command[0], args...)
	if err := cmd.Start(); err != nil {
		log.Error("failed to start recording", sl.Err(err))

		return Recording{}, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	r.commands[rec.ID] = cmd
	r.mu.Unlock()

	r.wg.Add(1)
	go r.wait(log, cmd, rec)

	log.Info("recording started", slog.Duration("duration", d))

	return rec, nil
}

func (r *Recorder) wait(log *slog.Logger, cmd *exec.Cmd, rec Recording) {
	defer r.wg.Done()

	err := cmd.Wait()

	r.mu.Lock()
	delete(r.commands, rec.ID)
	r.mu.Unlock()

	if err != nil {
		log.Error("recording failed", sl.Err(err))
		return
	}

	log.Info("recording finished")

	if r.done != nil {
		r.done(context.Background(), rec)
	}
}

// Stop kills a running recording. Its file is kept but not handed on.
func (r *Recorder) Stop(id string) error {
	const op = "agent.recorder.Stop"

	r.mu.Lock()
	cmd, ok := r.commands[id]
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s: %w", op, ErrRecordingNotFound)
	}

	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Running returns the ids of recordings in progress.
func (r *Recorder) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.commands))
	for id := range r.commands {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids
}

// Wait blocks until every started recording has exited and been handed on.
func (r *Recorder) Wait() {
	r.wg.Wait()
}
