// Package client ties the coordination core together behind one facade:
// registry, per-handle command queue, cursor scanner, and sampling engine,
// all sharing pooled connections. The UI panels (key browser, CLI,
// server-info dashboard, slow-log viewer) consume this package only.
package client

import (
	"context"
	"fmt"
	"time"

	"redisdeck/internal/cmdq"
	"redisdeck/internal/config"
	"redisdeck/internal/logger"
	"redisdeck/internal/sampling"
	"redisdeck/internal/scan"
	"redisdeck/internal/session"
	"redisdeck/internal/transport"
)

// Conn is the pool collaborator the deck drives: command execution plus
// connection lifecycle.
type Conn interface {
	transport.Transport
	Connect(ctx context.Context, desc transport.Descriptor) (string, error)
	Release(handle string)
}

// Options tunes the deck. Zero values fall back to the config defaults.
type Options struct {
	CommandTimeout  time.Duration
	ScanPageSize    int
	FallbackMaxKeys int
	SampleInterval  time.Duration
	SampleWindow    int
	ScopeGrace      time.Duration
}

func (o *Options) applyDefaults() {
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = config.DefaultCommandTimeout
	}
	if o.ScanPageSize <= 0 {
		o.ScanPageSize = config.DefaultScanPageSize
	}
	if o.FallbackMaxKeys <= 0 {
		o.FallbackMaxKeys = config.DefaultFallbackMaxKeys
	}
	if o.SampleInterval <= 0 {
		o.SampleInterval = config.DefaultSampleInterval
	}
	if o.SampleWindow <= 0 {
		o.SampleWindow = config.DefaultSampleWindow
	}
	if o.ScopeGrace <= 0 {
		o.ScopeGrace = config.DefaultScopeLockGrace
	}
}

// OptionsFromConfig maps a loaded config onto deck options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		CommandTimeout:  cfg.CommandTimeout(),
		ScanPageSize:    cfg.Scan.PageSize,
		FallbackMaxKeys: cfg.Scan.FallbackMaxKeys,
		SampleInterval:  cfg.SampleInterval(),
		SampleWindow:    cfg.Sampling.WindowSize,
		ScopeGrace:      cfg.ScopeLockGrace(),
	}
}

// Deck is the shared core all panels operate through.
type Deck struct {
	pool     Conn
	queue    *cmdq.Queue
	registry *session.Registry
	opts     Options
}

// NewDeck creates a deck over the pool.
func NewDeck(pool Conn, opts Options) *Deck {
	opts.applyDefaults()
	return &Deck{
		pool:     pool,
		queue:    cmdq.New(pool, opts.CommandTimeout),
		registry: session.NewRegistry(),
		opts:     opts,
	}
}

// Open connects a logical descriptor and registers it, returning the
// connection ID panels use from then on.
func (d *Deck) Open(ctx context.Context, desc transport.Descriptor) (string, error) {
	handle, err := d.pool.Connect(ctx, desc)
	if err != nil {
		return "", err
	}
	return d.registry.Register(desc, handle), nil
}

// Close releases the physical connection behind a connection ID.
func (d *Deck) Close(id string) {
	entry, err := d.registry.Lookup(id)
	if err == nil {
		d.pool.Release(entry.Handle)
	}
	d.registry.Unregister(id)
}

// CurrentDB returns the last verified database index for the connection.
func (d *Deck) CurrentDB(id string) (int, error) {
	entry, err := d.registry.Lookup(id)
	if err != nil {
		return 0, err
	}
	return entry.DB, nil
}

// Registry exposes the session registry for passive scope consumers.
func (d *Deck) Registry() *session.Registry {
	return d.registry
}

// Do runs one command through the connection's serializer. A stale-handle
// failure triggers exactly one reconnect-and-resubmit cycle using the
// logical descriptor; any further failure propagates unchanged.
func (d *Deck) Do(ctx context.Context, id string, command string, args ...any) (any, error) {
	entry, err := d.registry.Lookup(id)
	if err != nil {
		return nil, err
	}

	value, err := d.queue.Enqueue(ctx, entry.Handle, command, args...)
	if !transport.IsStale(err) {
		return value, err
	}

	handle, rcErr := d.reconnect(ctx, id, entry)
	if rcErr != nil {
		return nil, rcErr
	}
	return d.queue.Enqueue(ctx, handle, command, args...)
}

// Batch runs ordered steps as one indivisible unit on the connection's
// serializer. The reconnect-and-resubmit cycle applies only when the very
// first step failed stale: nothing has executed server-side yet, so the
// whole batch can be resubmitted without repeating committed steps.
func (d *Deck) Batch(ctx context.Context, id string, steps []cmdq.Step) (cmdq.BatchResult, error) {
	entry, err := d.registry.Lookup(id)
	if err != nil {
		return cmdq.BatchResult{}, err
	}

	result, err := d.queue.RunBatch(ctx, entry.Handle, steps)
	if err == nil || len(result.Steps) != 1 || !transport.IsStale(result.Steps[0].Err) {
		return result, err
	}

	handle, rcErr := d.reconnect(ctx, id, entry)
	if rcErr != nil {
		return result, err
	}
	return d.queue.RunBatch(ctx, handle, steps)
}

func (d *Deck) reconnect(ctx context.Context, id string, entry session.Entry) (string, error) {
	logger.Warn().
		Str("connection", entry.Descriptor.Name).
		Msg("stale handle, running reconnect-and-resubmit cycle")

	handle, err := d.pool.Reconnect(ctx, entry.Descriptor)
	if err != nil {
		return "", fmt.Errorf("reconnect of %q failed: %w", entry.Descriptor.Name, err)
	}
	if err := d.registry.Rebind(id, handle); err != nil {
		return "", err
	}
	return handle, nil
}

// Scanner starts a key listing for the pattern on this connection.
func (d *Deck) Scanner(id string, pattern string) *scan.Scanner {
	exec := &boundExec{deck: d, id: id}
	return scan.NewScanner(exec, pattern, d.opts.ScanPageSize, d.opts.FallbackMaxKeys)
}

// Sampler creates a sampling engine for this connection using the
// configured interval and window size.
func (d *Deck) Sampler(id string) *sampling.Sampler {
	exec := &boundExec{deck: d, id: id}
	return sampling.NewSampler(exec, d.opts.SampleInterval, d.opts.SampleWindow)
}

// ServerInfo fetches and parses the full server status once.
func (d *Deck) ServerInfo(ctx context.Context, id string) (sampling.ServerInfo, error) {
	reply, err := d.Do(ctx, id, "INFO", "all")
	if err != nil {
		return nil, err
	}
	text, ok := reply.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected INFO reply type %T", reply)
	}
	return sampling.ParseInfo(text), nil
}

// boundExec adapts the deck to the per-connection Executor shape the
// scanner and sampler consume.
type boundExec struct {
	deck *Deck
	id   string
}

func (b *boundExec) Do(ctx context.Context, command string, args ...any) (any, error) {
	return b.deck.Do(ctx, b.id, command, args...)
}
