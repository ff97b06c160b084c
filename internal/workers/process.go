package workers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aatumaykin/clusterd/internal/bus"
	"github.com/aatumaykin/clusterd/internal/commands"
	"github.com/aatumaykin/clusterd/internal/logger"
)

var errTerminated = errors.New("worker terminated")

// Process is a running worker.
type Process interface {
	// Pid identifies the worker.
	Pid() int
	// Send hands a job to the worker.
	Send(job Job) error
	// Receive blocks until the worker emits a message. It returns an error
	// once the worker is gone.
	Receive() (bus.Message, error)
	// Terminate stops the worker without waiting for the current job.
	Terminate() error
	// Close asks the worker to exit after its current job and waits up to
	// timeout before terminating it.
	Close(timeout time.Duration) error
}

// Spawner starts worker processes.
type Spawner interface {
	Spawn(ctx context.Context) (Process, error)
}

// ExecSpawner starts workers as child processes of the daemon binary.
type ExecSpawner struct {
	Path   string
	Args   []string
	Env    []string
	Logger *logger.Logger
}

// Spawn starts a new worker process.
func (s *ExecSpawner) Spawn(ctx context.Context) (Process, error) {
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	cmd := exec.Command(s.Path, s.Args...)
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("failed to start worker %s: %w", s.Path, err)
	}
	// the child holds its own copies
	stdinR.Close()
	stdoutW.Close()

	p := &execProcess{
		cmd:    cmd,
		stdin:  stdinW,
		stdout: stdoutR,
		enc:    bus.NewEncoder(stdinW),
		dec:    bus.NewDecoder(stdoutR),
		exited: make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()

	if s.Logger != nil {
		s.Logger.Debug("worker process started", logger.Field{Key: "pid", Value: p.Pid()})
	}
	return p, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	stdin   *os.File
	stdout  *os.File
	enc     *bus.Encoder
	dec     *bus.Decoder
	exited  chan struct{}
	waitErr error

	closeOnce sync.Once
}

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

func (p *execProcess) Send(job Job) error { return p.enc.Encode(job) }

func (p *execProcess) Receive() (bus.Message, error) {
	var msg bus.Message
	if err := p.dec.Decode(&msg); err != nil {
		return bus.Message{}, err
	}
	return msg, nil
}

func (p *execProcess) Terminate() error {
	select {
	case <-p.exited:
		return nil
	default:
	}
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

func (p *execProcess) Close(timeout time.Duration) error {
	var err error
	p.closeOnce.Do(func() {
		p.stdin.Close()

		select {
		case <-p.exited:
		case <-time.After(timeout):
			_ = p.cmd.Process.Kill()
			<-p.exited
		}
		p.stdout.Close()

		var exitErr *exec.ExitError
		if p.waitErr != nil && !errors.As(p.waitErr, &exitErr) {
			err = p.waitErr
		}
	})
	return err
}

// InProcessSpawner runs workers as goroutines connected through in-memory
// pipes. Terminating such a worker cuts its pipes; the command itself keeps
// running until it returns.
type InProcessSpawner struct {
	Registry *commands.Registry
	Logger   *logger.Logger
}

// Spawn starts a new in-process worker.
func (s *InProcessSpawner) Spawn(ctx context.Context) (Process, error) {
	jobR, jobW := io.Pipe()
	msgR, msgW := io.Pipe()

	p := &inProcess{
		jobR: jobR,
		jobW: jobW,
		msgR: msgR,
		enc:  bus.NewEncoder(jobW),
		dec:  bus.NewDecoder(msgR),
		done: make(chan struct{}),
	}

	executor := NewExecutor(s.Registry, s.Logger, os.Getpid())
	go func() {
		defer close(p.done)
		err := Serve(context.WithoutCancel(ctx), jobR, msgW, executor)
		msgW.CloseWithError(err)
	}()
	return p, nil
}

type inProcess struct {
	terminated atomic.Bool

	jobR *io.PipeReader
	jobW *io.PipeWriter
	msgR *io.PipeReader
	enc  *bus.Encoder
	dec  *bus.Decoder
	done chan struct{}
}

func (p *inProcess) Pid() int { return os.Getpid() }

func (p *inProcess) Send(job Job) error { return p.enc.Encode(job) }

func (p *inProcess) Receive() (bus.Message, error) {
	var msg bus.Message
	if err := p.dec.Decode(&msg); err != nil {
		return bus.Message{}, err
	}
	return msg, nil
}

func (p *inProcess) Terminate() error {
	p.terminated.Store(true)
	p.jobR.CloseWithError(errTerminated)
	p.msgR.CloseWithError(errTerminated)
	return nil
}

func (p *inProcess) Close(timeout time.Duration) error {
	p.jobW.Close()
	if p.terminated.Load() {
		return nil
	}
	select {
	case <-p.done:
	case <-time.After(timeout):
		p.Terminate()
	}
	return nil
}
