package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlowLogParsesEntries(t *testing.T) {
	pool := newFakePool()
	pool.replies["SLOWLOG"] = []any{
		[]any{
			int64(14), int64(1693000000), int64(12000),
			[]any{"KEYS", "*"},
			"127.0.0.1:58000", "browser",
		},
		[]any{
			int64(13), int64(1692999990), int64(8000),
			[]any{"HGETALL", "big:hash"},
		},
	}
	deck := newTestDeck(pool)
	id := openConn(t, deck)

	entries, err := deck.SlowLog(context.Background(), id, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, int64(14), entries[0].ID)
	assert.Equal(t, time.Unix(1693000000, 0), entries[0].Time)
	assert.Equal(t, 12*time.Millisecond, entries[0].Duration)
	assert.Equal(t, []string{"KEYS", "*"}, entries[0].Args)
	assert.Equal(t, "127.0.0.1:58000", entries[0].ClientAddr)
	assert.Equal(t, "browser", entries[0].ClientName)

	// Older servers omit client address and name.
	assert.Empty(t, entries[1].ClientAddr)
	assert.Empty(t, entries[1].ClientName)
}

func TestSlowLogEmpty(t *testing.T) {
	pool := newFakePool()
	pool.replies["SLOWLOG"] = []any{}
	deck := newTestDeck(pool)
	id := openConn(t, deck)

	entries, err := deck.SlowLog(context.Background(), id, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSlowLogRejectsMalformedRow(t *testing.T) {
	pool := newFakePool()
	pool.replies["SLOWLOG"] = []any{"not-a-row"}
	deck := newTestDeck(pool)
	id := openConn(t, deck)

	_, err := deck.SlowLog(context.Background(), id, 10)
	assert.Error(t, err)
}
