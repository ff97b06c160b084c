package workers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/aatumaykin/clusterd/internal/bus"
)

// Serve is the main loop of a worker. It reads jobs from r, one JSON object
// per line, executes each with ex and writes the resulting messages to w.
// It returns nil when r reaches EOF.
func Serve(ctx context.Context, r io.Reader, w io.Writer, ex *Executor) error {
	dec := bus.NewDecoder(r)
	enc := bus.NewEncoder(w)
	publish := func(msg bus.Message) error { return enc.Encode(msg) }

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var job Job
		if err := dec.Decode(&job); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read job: %w", err)
		}

		if err := ex.Execute(ctx, job, publish); err != nil {
			return err
		}
	}
}

// LogPath returns the log file of the worker with the given pid started at now.
func LogPath(dir string, pid int, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%d.log", now.Format("200601021504"), pid))
}
