// Package cmdq serializes command execution per connection handle. Several
// independent panels share one physical connection; the transport beneath
// them gives no sequencing guarantee, so the queue provides the explicit
// one: per handle, exactly one command is in flight at any instant, and
// submission order equals execution order. Distinct handles are independent.
package cmdq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"

	"redisdeck/internal/logger"
	"redisdeck/internal/transport"
)

// ErrTimeout marks commands that exceeded their time budget. The slot is
// released immediately so the next command proceeds, but the underlying
// call is not cancelled server-side; its eventual result is discarded.
var ErrTimeout = errors.New("cmdq: command timed out")

// Result is one command outcome.
type Result struct {
	Value any
	Err   error
}

// Queue is an arena of per-handle FIFO serializers over a Transport.
type Queue struct {
	transport transport.Transport
	timeout   time.Duration

	mu    sync.Mutex
	lanes map[string]*lane
}

type lane struct {
	mu       sync.Mutex
	pending  *queue.Queue
	draining bool
}

type job struct {
	run func()
}

// New creates a queue with the given default per-command timeout.
func New(t transport.Transport, timeout time.Duration) *Queue {
	return &Queue{
		transport: t,
		timeout:   timeout,
		lanes:     make(map[string]*lane),
	}
}

func (q *Queue) lane(handle string) *lane {
	q.mu.Lock()
	defer q.mu.Unlock()
	ln, ok := q.lanes[handle]
	if !ok {
		ln = &lane{pending: queue.New()}
		q.lanes[handle] = ln
	}
	return ln
}

// submit appends a job to the handle's lane and starts a drain worker if
// none is running. The worker pops jobs strictly in FIFO order and runs
// them one at a time; that is the whole serialization guarantee.
func (q *Queue) submit(handle string, j *job) {
	ln := q.lane(handle)
	ln.mu.Lock()
	ln.pending.Add(j)
	if !ln.draining {
		ln.draining = true
		go q.drain(ln)
	}
	ln.mu.Unlock()
}

func (q *Queue) drain(ln *lane) {
	for {
		ln.mu.Lock()
		if ln.pending.Length() == 0 {
			ln.draining = false
			ln.mu.Unlock()
			return
		}
		j := ln.pending.Remove().(*job)
		ln.mu.Unlock()
		j.run()
	}
}

// Enqueue submits one command for the handle and blocks until it completes,
// times out, or ctx is done. An abandoned command still occupies its slot
// until it finishes or times out; its result is discarded.
func (q *Queue) Enqueue(ctx context.Context, handle string, command string, args ...any) (any, error) {
	return q.EnqueueTimeout(ctx, handle, q.timeout, command, args...)
}

// EnqueueTimeout is Enqueue with an explicit per-command timeout.
func (q *Queue) EnqueueTimeout(ctx context.Context, handle string, timeout time.Duration, command string, args ...any) (any, error) {
	done := make(chan Result, 1)
	q.submit(handle, &job{run: func() {
		value, err := q.execute(ctx, handle, timeout, command, args...)
		done <- Result{Value: value, Err: err}
	}})

	select {
	case res := <-done:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// execute performs one round trip within the slot, bounded by timeout. The
// transport call itself is detached from caller cancellation so abandoning
// the wait never tears down a shared connection mid-command.
func (q *Queue) execute(ctx context.Context, handle string, timeout time.Duration, command string, args ...any) (any, error) {
	resCh := make(chan Result, 1)
	go func() {
		value, err := q.transport.Execute(context.WithoutCancel(ctx), handle, command, args...)
		resCh <- Result{Value: value, Err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-resCh:
		return res.Value, res.Err
	case <-timer.C:
		logger.Warn().
			Str("handle", handle).
			Str("command", command).
			Dur("timeout", timeout).
			Msg("command timed out, releasing slot")
		return nil, fmt.Errorf("%s exceeded %v: %w", command, timeout, ErrTimeout)
	}
}
