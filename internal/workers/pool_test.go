package workers

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/clusterd/internal/bus"
	"github.com/aatumaykin/clusterd/internal/commands"
	"github.com/aatumaykin/clusterd/internal/retry"
)

// blocking returns a command that waits until release is closed.
func blocking(release <-chan struct{}) commands.Func {
	return func(_ *commands.Env, _ map[string]any) (any, error) {
		<-release
		return "released", nil
	}
}

func newTestPool(t *testing.T, cfg Config, spawner Spawner) (*WorkerPool, *bus.Channel) {
	t.Helper()
	log := createTestLogger(t)

	channel := bus.New(100, log)
	require.NoError(t, channel.Start())

	if cfg.SpawnRetry.MaxAttempts == 0 {
		cfg.SpawnRetry = retry.Config{MaxAttempts: 2, InitialBackoff: time.Millisecond}
	}
	cfg.StopTimeout = time.Second

	pool := NewPool(cfg, spawner, channel, log)
	pool.Start()
	t.Cleanup(func() {
		pool.Stop()
		_ = channel.Stop()
	})
	return pool, channel
}

// collector drains a channel and groups messages per task.
type collector struct {
	mu     sync.Mutex
	byTask map[string][]bus.Message
}

func (c *collector) drain(ch *bus.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byTask == nil {
		c.byTask = map[string][]bus.Message{}
	}
	for {
		msg, ok := ch.TryReceive()
		if !ok {
			return
		}
		c.byTask[msg.TaskID] = append(c.byTask[msg.TaskID], msg)
	}
}

func (c *collector) has(taskID string, typ bus.MessageType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.byTask[taskID] {
		if m.Type == typ {
			return true
		}
	}
	return false
}

func (c *collector) messages(taskID string) []bus.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bus.Message(nil), c.byTask[taskID]...)
}

func (c *collector) waitFor(t *testing.T, ch *bus.Channel, taskID string, typ bus.MessageType) {
	t.Helper()
	require.Eventually(t, func() bool {
		c.drain(ch)
		return c.has(taskID, typ)
	}, 5*time.Second, 5*time.Millisecond, "no %s message for %s", typ, taskID)
}

func TestPool_ExecutesJobs(t *testing.T) {
	spawner := &InProcessSpawner{Registry: testRegistry(t, nil), Logger: createTestLogger(t)}
	pool, ch := newTestPool(t, Config{Size: 2, MaxTasksPerWorker: 10}, spawner)

	require.NoError(t, pool.Submit(job("a", commands.ClusterStatus, nil)))
	require.NoError(t, pool.Submit(job("b", commands.NodeAdd, nil)))

	c := &collector{}
	c.waitFor(t, ch, "a", bus.MessageFinished)
	c.waitFor(t, ch, "b", bus.MessageFinished)

	var types []bus.MessageType
	for _, m := range c.messages("a") {
		types = append(types, m.Type)
	}
	assert.Equal(t, []bus.MessageType{
		bus.MessageExecuted, bus.MessageReport, bus.MessageReport, bus.MessageFinished,
	}, types)

	assert.Eventually(t, func() bool {
		m := pool.Metrics()
		return m.JobsCompleted == 2 && m.Busy == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2), pool.Metrics().JobsSubmitted)
	assert.Equal(t, 2, pool.WorkerCount())

	pids := pool.Pids()
	require.NotEmpty(t, pids)
	for _, pid := range pids {
		assert.Equal(t, os.Getpid(), pid)
	}
}

func TestPool_RecyclesWorkers(t *testing.T) {
	spawner := &InProcessSpawner{Registry: testRegistry(t, nil), Logger: createTestLogger(t)}
	pool, ch := newTestPool(t, Config{Size: 1, MaxTasksPerWorker: 2}, spawner)

	ids := []string{"j1", "j2", "j3", "j4", "j5"}
	for _, id := range ids {
		require.NoError(t, pool.Submit(job(id, commands.Echo, nil)))
	}

	c := &collector{}
	for _, id := range ids {
		c.waitFor(t, ch, id, bus.MessageFinished)
	}

	assert.Eventually(t, func() bool {
		m := pool.Metrics()
		return m.WorkersSpawned == 3 && m.WorkersRecycled == 2
	}, time.Second, 5*time.Millisecond)
}

func TestPool_Cancel(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	registry := testRegistry(t, map[commands.Name]commands.Func{
		commands.NodeAdd: blocking(release),
	})
	spawner := &InProcessSpawner{Registry: registry, Logger: createTestLogger(t)}
	pool, ch := newTestPool(t, Config{Size: 1, MaxTasksPerWorker: 10}, spawner)

	require.NoError(t, pool.Submit(job("running", commands.NodeAdd, nil)))
	c := &collector{}
	c.waitFor(t, ch, "running", bus.MessageExecuted)

	require.NoError(t, pool.Submit(job("queued", commands.Echo, nil)))
	assert.Equal(t, 1, pool.QueueSize())

	assert.Equal(t, CancelPending, pool.Cancel("queued"))
	assert.Equal(t, CancelRunning, pool.Cancel("running"))
	assert.Equal(t, CancelNotFound, pool.Cancel("unknown"))
	assert.Equal(t, 0, pool.QueueSize())

	// the slot gets a fresh worker for the next job
	require.NoError(t, pool.Submit(job("after", commands.Echo, nil)))
	c.waitFor(t, ch, "after", bus.MessageFinished)

	assert.False(t, c.has("queued", bus.MessageExecuted))
	assert.False(t, c.has("running", bus.MessageFinished))

	m := pool.Metrics()
	assert.Equal(t, uint64(2), m.JobsCancelled)
	assert.Equal(t, uint64(2), m.WorkersSpawned)
	assert.Equal(t, uint64(0), m.JobsLost)
}

type deadProcess struct{}

func (deadProcess) Pid() int                          { return 99 }
func (deadProcess) Send(Job) error                    { return nil }
func (deadProcess) Receive() (bus.Message, error)     { return bus.Message{}, io.EOF }
func (deadProcess) Terminate() error                  { return nil }
func (deadProcess) Close(timeout time.Duration) error { return nil }

type spawnerFunc func(ctx context.Context) (Process, error)

func (f spawnerFunc) Spawn(ctx context.Context) (Process, error) { return f(ctx) }

func TestPool_WorkerDiesMidJob(t *testing.T) {
	spawner := spawnerFunc(func(context.Context) (Process, error) { return deadProcess{}, nil })
	pool, ch := newTestPool(t, Config{Size: 1}, spawner)

	require.NoError(t, pool.Submit(job("t1", commands.Echo, nil)))

	c := &collector{}
	c.waitFor(t, ch, "t1", bus.MessageFinished)

	msgs := c.messages("t1")
	f, err := bus.DecodeFinished(msgs[len(msgs)-1])
	require.NoError(t, err)
	assert.Equal(t, bus.OutcomeUnhandledException, f.Outcome)
	assert.Eventually(t, func() bool { return pool.Metrics().WorkersRecycled == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), pool.Metrics().JobsLost)
}

func TestPool_SpawnFailure(t *testing.T) {
	attempts := 0
	var mu sync.Mutex
	spawner := spawnerFunc(func(context.Context) (Process, error) {
		mu.Lock()
		attempts++
		mu.Unlock()
		return nil, errors.New("exec format error")
	})
	pool, ch := newTestPool(t, Config{Size: 1, SpawnRetry: retry.Config{MaxAttempts: 3, InitialBackoff: time.Millisecond}}, spawner)

	require.NoError(t, pool.Submit(job("t1", commands.Echo, nil)))

	c := &collector{}
	c.waitFor(t, ch, "t1", bus.MessageFinished)

	mu.Lock()
	assert.Equal(t, 3, attempts)
	mu.Unlock()
	assert.Equal(t, uint64(1), pool.Metrics().JobsLost)
}

// countingProcess records what the pool does with it.
type countingProcess struct {
	mu     sync.Mutex
	sent   int
	closed int
}

func (p *countingProcess) Pid() int { return 77 }

func (p *countingProcess) Send(Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent++
	return nil
}

func (p *countingProcess) Receive() (bus.Message, error) { return bus.Message{}, io.EOF }
func (p *countingProcess) Terminate() error              { return nil }

func (p *countingProcess) Close(time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func TestPool_StopDuringSpawn(t *testing.T) {
	proc := &countingProcess{}
	entered := make(chan struct{})
	gate := make(chan struct{})
	spawner := spawnerFunc(func(context.Context) (Process, error) {
		close(entered)
		<-gate
		return proc, nil
	})
	pool, _ := newTestPool(t, Config{Size: 1}, spawner)

	require.NoError(t, pool.Submit(job("t1", commands.Echo, nil)))
	<-entered

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()
	require.Eventually(t, pool.isClosed, time.Second, time.Millisecond)
	close(gate)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.Equal(t, 0, proc.sent, "job must not reach a worker started after Stop")
	assert.Equal(t, 1, proc.closed)
	assert.Equal(t, uint64(0), pool.Metrics().JobsLost)
}

func TestPool_SubmitAfterStop(t *testing.T) {
	spawner := &InProcessSpawner{Registry: testRegistry(t, nil), Logger: createTestLogger(t)}
	pool, _ := newTestPool(t, Config{Size: 1}, spawner)

	pool.Stop()
	assert.ErrorIs(t, pool.Submit(job("t1", commands.Echo, nil)), ErrPoolClosed)
	// second Stop is a no-op
	pool.Stop()
}

func TestPool_PrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	prom := InitPrometheusMetrics("clusterd_test", reg)

	spawner := &InProcessSpawner{Registry: testRegistry(t, nil), Logger: createTestLogger(t)}
	pool, ch := newTestPool(t, Config{Size: 1, MaxTasksPerWorker: 1, Prometheus: prom}, spawner)

	require.NoError(t, pool.Submit(job("t1", commands.Echo, nil)))
	c := &collector{}
	c.waitFor(t, ch, "t1", bus.MessageFinished)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(prom.workersRecycled) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(prom.workersSpawned))
	assert.Equal(t, float64(1), testutil.ToFloat64(prom.jobsTotal.WithLabelValues("completed")))
}
