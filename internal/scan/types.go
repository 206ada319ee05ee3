package scan

import (
	"context"
	"sync"

	"redisdeck/internal/logger"
)

// TypeUnknown is stored for keys whose classification failed. Failures are
// never retried and never surfaced; an unlabeled key in a browser is fine.
const TypeUnknown = "unknown"

// KeyRecord is one listed key with its resolved type label, if any.
type KeyRecord struct {
	Key  string
	Type string
}

// TypeResolver classifies keys in the background, bounded to at most
// `limit` concurrent outstanding resolutions. A key is classified at most
// once per listing; Reset starts a new listing generation and results from
// the old one are dropped.
type TypeResolver struct {
	exec  Executor
	limit int
	sem   chan struct{}

	mu      sync.Mutex
	gen     int
	cache   map[string]string
	pending map[string]bool
}

// NewTypeResolver creates a resolver with the given concurrency bound.
func NewTypeResolver(exec Executor, limit int) *TypeResolver {
	if limit < 1 {
		limit = 1
	}
	return &TypeResolver{
		exec:    exec,
		limit:   limit,
		sem:     make(chan struct{}, limit),
		cache:   make(map[string]string),
		pending: make(map[string]bool),
	}
}

// ResolvePage kicks off classification for every not-yet-seen key of a
// freshly appended page and returns immediately. The fan-out is detached:
// it never blocks or delays the scanner.
func (r *TypeResolver) ResolvePage(keys []string) {
	r.mu.Lock()
	gen := r.gen
	var todo []string
	for _, key := range keys {
		if _, done := r.cache[key]; done {
			continue
		}
		if r.pending[key] {
			continue
		}
		r.pending[key] = true
		todo = append(todo, key)
	}
	r.mu.Unlock()

	for _, key := range todo {
		go r.resolve(gen, key)
	}
}

func (r *TypeResolver) resolve(gen int, key string) {
	r.sem <- struct{}{}
	defer func() { <-r.sem }()

	label := TypeUnknown
	reply, err := r.exec.Do(context.Background(), "TYPE", key)
	if err != nil {
		logger.Debug().Str("key", key).Err(err).Msg("type classification failed")
	} else if s, convErr := toString(reply); convErr == nil {
		label = s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		// Listing was reset while this resolution was in flight.
		return
	}
	delete(r.pending, key)
	r.cache[key] = label
}

// TypeOf returns the cached label for a key, if resolution has finished.
func (r *TypeResolver) TypeOf(key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	label, ok := r.cache[key]
	return label, ok
}

// Reset drops the cache for a new listing.
func (r *TypeResolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.cache = make(map[string]string)
	r.pending = make(map[string]bool)
}
