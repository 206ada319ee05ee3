package sampling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleInfo = "# Server\r\n" +
	"redis_version:7.2.4\r\n" +
	"uptime_in_seconds:3600\r\n" +
	"\r\n" +
	"# Clients\r\n" +
	"connected_clients:4\r\n" +
	"\r\n" +
	"# Stats\r\n" +
	"total_commands_processed:1234\r\n" +
	"instantaneous_ops_per_sec:17\r\n" +
	"\r\n" +
	"# Commandstats\r\n" +
	"cmdstat_get:calls=21,usec=175,usec_per_call=8.33\r\n" +
	"cmdstat_set:calls=9,usec=90,usec_per_call=10.00\r\n" +
	"garbage line without separator\r\n"

func TestParseInfoSections(t *testing.T) {
	info := ParseInfo(sampleInfo)

	v, ok := info.Field("redis_version")
	require.True(t, ok)
	assert.Equal(t, "7.2.4", v)

	assert.Equal(t, "4", info["clients"]["connected_clients"])

	n, ok := info.NumericField("total_commands_processed")
	require.True(t, ok)
	assert.Equal(t, 1234.0, n)
}

func TestParseInfoSkipsMalformedLines(t *testing.T) {
	info := ParseInfo(sampleInfo)
	_, ok := info.Field("garbage line without separator")
	assert.False(t, ok)
}

func TestNumericFieldRejectsNonNumbers(t *testing.T) {
	info := ParseInfo(sampleInfo)
	_, ok := info.NumericField("redis_version")
	assert.False(t, ok)
	_, ok = info.NumericField("does_not_exist")
	assert.False(t, ok)
}

func TestCommandCalls(t *testing.T) {
	info := ParseInfo(sampleInfo)
	calls := info.CommandCalls()
	assert.Equal(t, 21.0, calls["get"])
	assert.Equal(t, 9.0, calls["set"])
	assert.Len(t, calls, 2)
}

func TestCommandCallsWithoutSection(t *testing.T) {
	info := ParseInfo("# Server\r\nredis_version:7.2.4\r\n")
	assert.Empty(t, info.CommandCalls())
}
