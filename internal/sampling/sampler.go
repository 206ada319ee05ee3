// Package sampling polls server status on a timer into bounded sliding
// windows and computes call rates from the collected counters.
package sampling

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"redisdeck/internal/logger"
)

// Executor runs one command on behalf of the sampler, already bound to a
// connection.
type Executor interface {
	Do(ctx context.Context, command string, args ...any) (any, error)
}

// trackedFields are the INFO counters and gauges sampled on every tick.
var trackedFields = []string{
	"connected_clients",
	"used_memory",
	"total_commands_processed",
	"instantaneous_ops_per_sec",
	"total_net_input_bytes",
	"total_net_output_bytes",
	"keyspace_hits",
	"keyspace_misses",
}

// Sampler periodically fetches server status for one connection and
// appends each tracked metric to its window. Per-command windows are
// created lazily the first time a command shows up in commandstats.
//
// Ticks never overlap: if a tick is still running when the next one is
// due, the overdue tick is skipped entirely rather than queued, which
// bounds the load this engine can put on a slow server.
type Sampler struct {
	exec       Executor
	interval   time.Duration
	windowSize int
	now        func() time.Time

	inFlight atomic.Bool

	mu       sync.Mutex
	stopped  bool
	cancel   context.CancelFunc
	metrics  map[string]*Window
	commands map[string]*Window
}

// NewSampler creates a sampler; Start begins polling.
func NewSampler(exec Executor, interval time.Duration, windowSize int) *Sampler {
	return &Sampler{
		exec:       exec,
		interval:   interval,
		windowSize: windowSize,
		now:        time.Now,
		metrics:    make(map[string]*Window),
		commands:   make(map[string]*Window),
	}
}

// Start begins recurring polling until Stop is called or ctx is done.
func (s *Sampler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	s.stopped = false
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.run(ctx)
}

func (s *Sampler) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// First sample immediately so consumers have data before one full
	// interval elapses.
	s.tick(ctx)
	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels the timer. An in-flight tick is allowed to finish but its
// result is discarded.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Sampler) tick(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		logger.Debug().Msg("previous sampling tick still running, skipping")
		return
	}
	defer s.inFlight.Store(false)

	info, err := s.fetch(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("sampling tick failed")
		return
	}
	s.record(info)
}

func (s *Sampler) fetch(ctx context.Context) (ServerInfo, error) {
	reply, err := s.exec.Do(ctx, "INFO", "all")
	if err != nil {
		return nil, err
	}
	text, ok := reply.(string)
	if !ok {
		if raw, isBytes := reply.([]byte); isBytes {
			text = string(raw)
		} else {
			return nil, fmt.Errorf("unexpected INFO reply type %T", reply)
		}
	}
	return ParseInfo(text), nil
}

func (s *Sampler) record(info ServerInfo) {
	at := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		// Sampling was stopped while this tick was in flight.
		return
	}

	for _, field := range trackedFields {
		value, ok := info.NumericField(field)
		if !ok {
			continue
		}
		window, exists := s.metrics[field]
		if !exists {
			window = NewWindow(s.windowSize)
			s.metrics[field] = window
		}
		window.Append(Sample{At: at, Value: value})
	}

	for name, calls := range info.CommandCalls() {
		window, exists := s.commands[name]
		if !exists {
			window = NewWindow(s.windowSize)
			s.commands[name] = window
		}
		window.Append(Sample{At: at, Value: calls})
	}
}

// Metric returns the window contents for one tracked field.
func (s *Sampler) Metric(field string) []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	window, ok := s.metrics[field]
	if !ok {
		return nil
	}
	return window.Samples()
}

// MetricRate returns the per-second rate of a tracked counter.
func (s *Sampler) MetricRate(field string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	window, ok := s.metrics[field]
	if !ok {
		return 0
	}
	return window.Rate()
}

// CommandNames lists every command observed so far.
func (s *Sampler) CommandNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	return names
}

// CommandRate returns the calls-per-second rate for one command, computed
// from its two newest samples.
func (s *Sampler) CommandRate(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	window, ok := s.commands[name]
	if !ok {
		return 0
	}
	return window.Rate()
}

// Command returns the raw call-counter window for one command.
func (s *Sampler) Command(name string) []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	window, ok := s.commands[name]
	if !ok {
		return nil
	}
	return window.Samples()
}
