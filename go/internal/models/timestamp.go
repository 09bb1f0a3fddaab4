package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// layouts without a zone are read as local time, like a browser does
var localLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp is a server time that decodes from RFC 3339, a SQL-style
// "2006-01-02 15:04:05" string or epoch milliseconds. Anything else decodes to
// the zero time instead of failing the surrounding payload.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.Time = parseTimestamp(bytes.TrimSpace(data))
	return nil
}

func parseTimestamp(data []byte) time.Time {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return time.Time{}
	}

	if data[0] != '"' {
		ms, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return time.Time{}
		}
		return time.UnixMilli(int64(ms))
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return time.Time{}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts
	}
	for _, layout := range localLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ts
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms)
	}
	return time.Time{}
}
