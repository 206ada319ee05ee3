package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteOnUnknownHandleIsStale(t *testing.T) {
	pool := NewPool()
	_, err := pool.Execute(context.Background(), "never-issued", "PING")
	require.Error(t, err)
	assert.True(t, IsStale(err))
}

func TestConnectRejectsEmptyURL(t *testing.T) {
	pool := NewPool()
	_, err := pool.Connect(context.Background(), Descriptor{Name: "broken"})
	assert.Error(t, err)
}

func TestConnectRejectsBadURL(t *testing.T) {
	pool := NewPool()
	_, err := pool.Connect(context.Background(), Descriptor{Name: "broken", URL: "://not-a-url"})
	assert.Error(t, err)
}

func TestClassifyStaleErrors(t *testing.T) {
	for _, err := range []error{
		redis.ErrClosed,
		redis.ErrPoolTimeout,
		io.EOF,
		&net.OpError{Op: "read", Err: errors.New("connection reset by peer")},
	} {
		classified := classify("GET", err)
		assert.True(t, IsStale(classified), "%v should classify as stale", err)
	}
}

func TestClassifyKeepsCommandErrors(t *testing.T) {
	wrongType := errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")
	classified := classify("LPUSH", wrongType)
	assert.False(t, IsStale(classified))
	assert.ErrorIs(t, classified, wrongType)
}

func TestIsStaleOnNil(t *testing.T) {
	assert.False(t, IsStale(nil))
}
