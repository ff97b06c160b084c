package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/aatumaykin/clusterd/internal/logger"
)

var (
	ErrChannelClosed  = errors.New("message channel is closed")
	ErrAlreadyStarted = errors.New("message channel is already started")
	ErrNotStarted     = errors.New("message channel is not started")
)

// Channel is a multi-producer, single-consumer FIFO of worker messages.
// Producers block while the channel is full, so a message is never dropped.
// Messages from one producer are received in the order they were published.
type Channel struct {
	mu      sync.RWMutex
	logger  *logger.Logger
	started bool
	done    chan struct{}

	ch chan Message
}

// New creates a new Channel with the specified capacity.
func New(capacity int, log *logger.Logger) *Channel {
	if capacity <= 0 {
		capacity = 1
	}
	return &Channel{
		logger: log,
		ch:     make(chan Message, capacity),
	}
}

// Start opens the channel for publishing.
func (c *Channel) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}

	c.done = make(chan struct{})
	c.started = true

	c.logger.Info("message channel started", logger.Field{Key: "capacity", Value: cap(c.ch)})
	return nil
}

// Stop closes the channel for publishing and releases blocked producers.
// Messages already queued can still be received.
func (c *Channel) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return ErrNotStarted
	}

	close(c.done)
	c.started = false

	c.logger.Info("message channel stopped", logger.Field{Key: "pending", Value: len(c.ch)})
	return nil
}

// Publish enqueues msg, waiting for room if the channel is full.
func (c *Channel) Publish(ctx context.Context, msg Message) error {
	c.mu.RLock()
	if !c.started {
		c.mu.RUnlock()
		return ErrNotStarted
	}
	done := c.done
	c.mu.RUnlock()

	select {
	case c.ch <- msg:
		return nil
	default:
	}

	c.logger.DebugCtx(ctx, "message channel full, waiting",
		logger.Field{Key: "task_id", Value: msg.TaskID},
		logger.Field{Key: "capacity", Value: cap(c.ch)})

	select {
	case c.ch <- msg:
		return nil
	case <-done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryReceive returns the next message without blocking.
// Only one goroutine may receive.
func (c *Channel) TryReceive() (Message, bool) {
	select {
	case msg := <-c.ch:
		return msg, true
	default:
		return Message{}, false
	}
}

// Len returns a snapshot of the number of queued messages.
func (c *Channel) Len() int {
	return len(c.ch)
}

// Cap returns the channel capacity.
func (c *Channel) Cap() int {
	return cap(c.ch)
}

// IsStarted returns true if the channel accepts messages.
func (c *Channel) IsStarted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}
