package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"redisdeck/internal/logger"
)

// Pool adapts pooled go-redis clients to the Transport interface. Each
// physical connection gets an opaque handle; a reconnect invalidates the
// old handle and issues a new one for the same descriptor.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*redis.Client
	descs   map[string]Descriptor
}

// NewPool creates an empty connection pool.
func NewPool() *Pool {
	return &Pool{
		clients: make(map[string]*redis.Client),
		descs:   make(map[string]Descriptor),
	}
}

// Connect dials a new physical connection for the descriptor and returns
// its handle. The connection is verified with a ping before the handle is
// handed out.
func (p *Pool) Connect(ctx context.Context, desc Descriptor) (string, error) {
	if desc.URL == "" {
		return "", fmt.Errorf("descriptor %q has no URL", desc.Name)
	}

	opts, err := redis.ParseURL(desc.URL)
	if err != nil {
		return "", fmt.Errorf("failed to parse URL for %q: %w", desc.Name, err)
	}
	if desc.DB > 0 {
		opts.DB = desc.DB
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return "", fmt.Errorf("failed to connect to %q: %w", desc.Name, err)
	}

	handle := uuid.NewString()
	p.mu.Lock()
	p.clients[handle] = client
	p.descs[handle] = desc
	p.mu.Unlock()

	logger.Info().
		Str("connection", desc.Name).
		Str("handle", handle).
		Msg("connected")

	return handle, nil
}

// Execute runs one command round trip on the handle. A handle that no
// longer maps to a live client yields an ErrStaleHandle-classified error.
// A nil reply (redis.Nil) is returned as a nil result, not an error.
func (p *Pool) Execute(ctx context.Context, handle string, command string, args ...any) (any, error) {
	p.mu.Lock()
	client, ok := p.clients[handle]
	p.mu.Unlock()
	if !ok {
		return nil, staleErrorf("no pool entry for handle %s", handle)
	}

	cmdArgs := make([]any, 0, len(args)+1)
	cmdArgs = append(cmdArgs, command)
	cmdArgs = append(cmdArgs, args...)

	result, err := client.Do(ctx, cmdArgs...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, classify(command, err)
	}
	return result, nil
}

// Reconnect closes whatever client the descriptor previously had and dials
// a fresh one, returning the new handle.
func (p *Pool) Reconnect(ctx context.Context, desc Descriptor) (string, error) {
	p.mu.Lock()
	for handle, d := range p.descs {
		if d.Name == desc.Name {
			if client, ok := p.clients[handle]; ok {
				client.Close()
			}
			delete(p.clients, handle)
			delete(p.descs, handle)
		}
	}
	p.mu.Unlock()

	logger.Warn().Str("connection", desc.Name).Msg("reconnecting")
	return p.Connect(ctx, desc)
}

// Release closes the connection behind a handle and forgets it.
func (p *Pool) Release(handle string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if client, ok := p.clients[handle]; ok {
		client.Close()
	}
	delete(p.clients, handle)
	delete(p.descs, handle)
}

// Close releases every connection in the pool.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for handle, client := range p.clients {
		client.Close()
		delete(p.clients, handle)
		delete(p.descs, handle)
	}
}

// classify maps driver errors into the core's taxonomy. Closed clients,
// pool acquire timeouts, and dead sockets all mean the handle is stale and
// worth one reconnect cycle; anything else passes through wrapped.
func classify(command string, err error) error {
	switch {
	case errors.Is(err, redis.ErrClosed):
		return staleErrorf("%s: client closed", command)
	case errors.Is(err, redis.ErrPoolTimeout):
		return staleErrorf("%s: pool acquire timeout", command)
	case errors.Is(err, io.EOF):
		return staleErrorf("%s: connection lost", command)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return staleErrorf("%s: %v", command, netErr)
	}
	return fmt.Errorf("%s failed: %w", command, err)
}
