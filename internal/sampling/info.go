package sampling

import (
	"bufio"
	"strconv"
	"strings"
)

// ServerInfo is the parsed form of an INFO reply: section name (lowercase)
// to field map.
type ServerInfo map[string]map[string]string

// ParseInfo parses the bulk text an INFO round trip yields. Lines look like
//
//	# Server
//	redis_version:7.2.4
//
// Unknown or malformed lines are skipped; this parser never fails.
func ParseInfo(text string) ServerInfo {
	info := make(ServerInfo)
	section := "default"

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			section = strings.ToLower(strings.TrimSpace(line[1:]))
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields, exists := info[section]
		if !exists {
			fields = make(map[string]string)
			info[section] = fields
		}
		fields[key] = value
	}
	return info
}

// Field looks a field up across all sections.
func (i ServerInfo) Field(name string) (string, bool) {
	for _, fields := range i {
		if v, ok := fields[name]; ok {
			return v, true
		}
	}
	return "", false
}

// NumericField returns a field parsed as float64.
func (i ServerInfo) NumericField(name string) (float64, bool) {
	raw, ok := i.Field(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// CommandCalls extracts per-command call counters from the commandstats
// section. Entries look like
//
//	cmdstat_get:calls=21,usec=175,usec_per_call=8.33
//
// and are returned as {"get": 21, ...}.
func (i ServerInfo) CommandCalls() map[string]float64 {
	calls := make(map[string]float64)
	stats, ok := i["commandstats"]
	if !ok {
		return calls
	}
	for key, value := range stats {
		name, found := strings.CutPrefix(key, "cmdstat_")
		if !found {
			continue
		}
		for _, pair := range strings.Split(value, ",") {
			k, v, ok := strings.Cut(pair, "=")
			if !ok || k != "calls" {
				continue
			}
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				calls[name] = n
			}
		}
	}
	return calls
}
