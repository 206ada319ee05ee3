package client

import (
	"context"
	"fmt"
	"time"
)

// SlowLogEntry is one parsed slow-log record.
type SlowLogEntry struct {
	ID         int64
	Time       time.Time
	Duration   time.Duration
	Args       []string
	ClientAddr string
	ClientName string
}

// SlowLog fetches up to max entries of the server's slow log through the
// connection's serializer.
func (d *Deck) SlowLog(ctx context.Context, id string, max int) ([]SlowLogEntry, error) {
	reply, err := d.Do(ctx, id, "SLOWLOG", "GET", max)
	if err != nil {
		return nil, err
	}
	rows, ok := reply.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected SLOWLOG reply type %T", reply)
	}

	entries := make([]SlowLogEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := parseSlowLogEntry(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// parseSlowLogEntry unpacks one slow-log row: id, unix timestamp,
// duration in microseconds, the command with its arguments, and on newer
// servers the client address and name.
func parseSlowLogEntry(row any) (SlowLogEntry, error) {
	fields, ok := row.([]any)
	if !ok || len(fields) < 4 {
		return SlowLogEntry{}, fmt.Errorf("unexpected slowlog row shape: %T", row)
	}

	id, err := asInt64(fields[0])
	if err != nil {
		return SlowLogEntry{}, fmt.Errorf("bad slowlog id: %w", err)
	}
	ts, err := asInt64(fields[1])
	if err != nil {
		return SlowLogEntry{}, fmt.Errorf("bad slowlog timestamp: %w", err)
	}
	micros, err := asInt64(fields[2])
	if err != nil {
		return SlowLogEntry{}, fmt.Errorf("bad slowlog duration: %w", err)
	}

	args, ok := fields[3].([]any)
	if !ok {
		return SlowLogEntry{}, fmt.Errorf("bad slowlog command args: %T", fields[3])
	}
	command := make([]string, 0, len(args))
	for _, arg := range args {
		command = append(command, fmt.Sprint(arg))
	}

	entry := SlowLogEntry{
		ID:       id,
		Time:     time.Unix(ts, 0),
		Duration: time.Duration(micros) * time.Microsecond,
		Args:     command,
	}
	if len(fields) > 4 {
		entry.ClientAddr = fmt.Sprint(fields[4])
	}
	if len(fields) > 5 {
		entry.ClientName = fmt.Sprint(fields[5])
	}
	return entry, nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}
