package cmdq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redisdeck/internal/transport"
)

// fakeTransport scripts transport behavior per command and records every
// execution with its handle, so tests can assert ordering and exclusivity.
type fakeTransport struct {
	mu       sync.Mutex
	executed []string
	inFlight map[string]int32
	overlap  atomic.Bool

	delay   time.Duration
	gate    chan struct{}
	replies map[string]any
	errs    map[string]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inFlight: make(map[string]int32),
		replies:  make(map[string]any),
		errs:     make(map[string]error),
	}
}

func (f *fakeTransport) Execute(ctx context.Context, handle, command string, args ...any) (any, error) {
	f.mu.Lock()
	f.inFlight[handle]++
	if f.inFlight[handle] > 1 {
		f.overlap.Store(true)
	}
	f.executed = append(f.executed, command)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil && command == "BLOCK" {
		<-gate
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.inFlight[handle]--
	reply := f.replies[command]
	err := f.errs[command]
	f.mu.Unlock()
	return reply, err
}

func (f *fakeTransport) Reconnect(ctx context.Context, desc transport.Descriptor) (string, error) {
	return "reconnected-" + desc.Name, nil
}

func (f *fakeTransport) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.executed))
	copy(out, f.executed)
	return out
}

func TestEnqueueReturnsReply(t *testing.T) {
	ft := newFakeTransport()
	ft.replies["PING"] = "PONG"
	q := New(ft, time.Second)

	value, err := q.Enqueue(context.Background(), "h1", "PING")
	require.NoError(t, err)
	assert.Equal(t, "PONG", value)
}

func TestOneCommandInFlightPerHandle(t *testing.T) {
	ft := newFakeTransport()
	ft.delay = 5 * time.Millisecond
	q := New(ft, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := q.Enqueue(context.Background(), "h1", fmt.Sprintf("CMD%d", n))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.False(t, ft.overlap.Load(), "two commands overlapped on one handle")
	assert.Len(t, ft.commands(), 20)
}

func TestHandlesRunIndependently(t *testing.T) {
	ft := newFakeTransport()
	ft.gate = make(chan struct{})
	q := New(ft, time.Second)

	blocked := make(chan struct{})
	go func() {
		q.Enqueue(context.Background(), "h1", "BLOCK")
		close(blocked)
	}()

	// While h1 is stuck, h2 must still execute.
	_, err := q.Enqueue(context.Background(), "h2", "PING")
	require.NoError(t, err)

	close(ft.gate)
	<-blocked
}

func TestExecutionFollowsSubmissionOrder(t *testing.T) {
	ft := newFakeTransport()
	ft.gate = make(chan struct{})
	q := New(ft, time.Second)

	results := make(chan struct{}, 4)
	go func() {
		q.Enqueue(context.Background(), "h1", "BLOCK")
		results <- struct{}{}
	}()
	time.Sleep(20 * time.Millisecond)

	// Queue three more behind the blocked slot, with enough stagger that
	// their submission order is deterministic.
	for _, name := range []string{"FIRST", "SECOND", "THIRD"} {
		name := name
		go func() {
			q.Enqueue(context.Background(), "h1", name)
			results <- struct{}{}
		}()
		time.Sleep(20 * time.Millisecond)
	}

	close(ft.gate)
	for i := 0; i < 4; i++ {
		<-results
	}
	assert.Equal(t, []string{"BLOCK", "FIRST", "SECOND", "THIRD"}, ft.commands())
}

func TestTimeoutReleasesSlot(t *testing.T) {
	ft := newFakeTransport()
	ft.gate = make(chan struct{})
	q := New(ft, 30*time.Millisecond)
	defer close(ft.gate)

	start := time.Now()
	_, err := q.Enqueue(context.Background(), "h1", "BLOCK")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)

	// The slot must be free immediately, even though the blocked call is
	// still running underneath.
	ft.mu.Lock()
	ft.replies["PING"] = "PONG"
	ft.mu.Unlock()
	value, err := q.Enqueue(context.Background(), "h1", "PING")
	require.NoError(t, err)
	assert.Equal(t, "PONG", value)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestTransportErrorPropagates(t *testing.T) {
	ft := newFakeTransport()
	wantErr := errors.New("boom")
	ft.errs["GET"] = wantErr
	q := New(ft, time.Second)

	_, err := q.Enqueue(context.Background(), "h1", "GET", "k")
	assert.ErrorIs(t, err, wantErr)
}

func TestEnqueueAbandonedOnContextCancel(t *testing.T) {
	ft := newFakeTransport()
	ft.gate = make(chan struct{})
	q := New(ft, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Enqueue(ctx, "h1", "BLOCK")
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	err := <-errCh
	assert.ErrorIs(t, err, context.Canceled)
	close(ft.gate)
}
