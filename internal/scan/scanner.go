// Package scan enumerates an unbounded key space with resumable
// cursor-based pagination, plus best-effort background type
// classification of the keys found.
package scan

import (
	"context"
	"fmt"
	"sync"

	"redisdeck/internal/logger"
)

// Executor runs one command on behalf of the scanner, already bound to a
// connection. The client facade provides one backed by the command queue.
type Executor interface {
	Do(ctx context.Context, command string, args ...any) (any, error)
}

// State of one key listing.
type State int

const (
	// Idle means no page has been fetched for the current pattern.
	Idle State = iota
	// Paging means at least one page was fetched and more remain.
	Paging
	// Exhausted is terminal until the pattern changes.
	Exhausted
)

// Scanner accumulates pages of keys for one pattern. The cursor token "0"
// is overloaded by the protocol: it means "not started" before the first
// call and "no more pages" afterwards. The one ambiguous case, a first
// page that is empty AND final, is resolved by falling back exactly once
// to a bounded direct enumeration; that ambiguity never reaches callers.
type Scanner struct {
	exec        Executor
	resolver    *TypeResolver
	pattern     string
	pageSize    int
	fallbackMax int

	mu     sync.Mutex
	state  State
	cursor string
	keys   []string
}

// NewScanner creates a scanner for the pattern. fallbackMax bounds how
// many keys the direct-enumeration fallback may take.
func NewScanner(exec Executor, pattern string, pageSize, fallbackMax int) *Scanner {
	return &Scanner{
		exec:        exec,
		resolver:    NewTypeResolver(exec, pageSize),
		pattern:     pattern,
		pageSize:    pageSize,
		fallbackMax: fallbackMax,
		cursor:      "0",
	}
}

// Next fetches the next page and appends it to the accumulated listing.
// Returns the page just fetched. On an exhausted listing it returns nil
// without touching the transport. Duplicate keys across pages are kept;
// the protocol may legitimately return them.
func (s *Scanner) Next(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Exhausted {
		return nil, nil
	}
	fresh := s.state == Idle

	reply, err := s.exec.Do(ctx, "SCAN", s.cursor, "MATCH", s.pattern, "COUNT", s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("scan page failed: %w", err)
	}
	next, page, err := parseScanReply(reply)
	if err != nil {
		return nil, err
	}

	if next == "0" && fresh && len(page) == 0 {
		// Ambiguous: either the key space is empty or the first-page
		// protocol quirk. Resolve once via direct enumeration.
		page, err = s.fallback(ctx)
		if err != nil {
			return nil, err
		}
		s.state = Exhausted
	} else if next == "0" {
		s.state = Exhausted
	} else {
		s.state = Paging
		s.cursor = next
	}

	s.keys = append(s.keys, page...)
	s.resolver.ResolvePage(page)
	return page, nil
}

func (s *Scanner) fallback(ctx context.Context) ([]string, error) {
	logger.Debug().Str("pattern", s.pattern).Msg("ambiguous first page, falling back to direct enumeration")
	reply, err := s.exec.Do(ctx, "KEYS", s.pattern)
	if err != nil {
		return nil, fmt.Errorf("fallback enumeration failed: %w", err)
	}
	keys, err := toStrings(reply)
	if err != nil {
		return nil, err
	}
	if len(keys) > s.fallbackMax {
		keys = keys[:s.fallbackMax]
	}
	return keys, nil
}

// Reset discards the accumulated listing and restarts at the beginning
// with a new pattern, re-enabling the first-page fallback.
func (s *Scanner) Reset(pattern string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pattern = pattern
	s.state = Idle
	s.cursor = "0"
	s.keys = nil
	s.resolver.Reset()
}

// HasMore reports whether another Next call could yield keys.
func (s *Scanner) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != Exhausted
}

// CurrentState returns the listing's state machine position.
func (s *Scanner) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Keys returns the accumulated listing in arrival order.
func (s *Scanner) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Records returns the accumulated listing with whatever type labels have
// been resolved so far. Unresolved keys carry an empty label.
func (s *Scanner) Records() []KeyRecord {
	s.mu.Lock()
	keys := make([]string, len(s.keys))
	copy(keys, s.keys)
	s.mu.Unlock()

	records := make([]KeyRecord, len(keys))
	for i, key := range keys {
		label, _ := s.resolver.TypeOf(key)
		records[i] = KeyRecord{Key: key, Type: label}
	}
	return records
}
