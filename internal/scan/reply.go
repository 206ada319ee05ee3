package scan

import (
	"fmt"
	"strconv"
)

// parseScanReply unpacks the two-element [cursor, keys] array a SCAN round
// trip yields. The cursor arrives as a string or an integer depending on
// the protocol version in play.
func parseScanReply(reply any) (cursor string, keys []string, err error) {
	parts, ok := reply.([]any)
	if !ok || len(parts) != 2 {
		return "", nil, fmt.Errorf("unexpected scan reply shape: %T", reply)
	}
	cursor, err = toString(parts[0])
	if err != nil {
		return "", nil, fmt.Errorf("bad scan cursor: %w", err)
	}
	keys, err = toStrings(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("bad scan key list: %w", err)
	}
	return cursor, keys, nil
}

func toString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func toStrings(v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", v)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, err := toString(item)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
