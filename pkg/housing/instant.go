package housing

import (
	"encoding/json"
	"time"
)

// ToInstant normalizes the date representations that appear in stored
// documents to a single instant. Listing and alert dates have historically
// been written as native timestamps, epoch-second numbers, RFC 3339 strings,
// and {seconds,nanos} wrapper maps; every one of them enters the matcher
// through this adapter, so the matcher never branches on representation.
// The second return value is false when no usable instant is present.
func ToInstant(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v.UTC(), true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return ToInstant(*v)
	case string:
		if v == "" {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			if t.IsZero() {
				return time.Time{}, false
			}
			return t.UTC(), true
		}
		if t, err := time.Parse("2006-01-02", v); err == nil {
			return t.UTC(), true
		}
		return time.Time{}, false
	case int:
		return epochSeconds(int64(v))
	case int64:
		return epochSeconds(v)
	case float64:
		if v == 0 {
			return time.Time{}, false
		}
		sec := int64(v)
		nsec := int64((v - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec).UTC(), true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return ToInstant(f)
		}
		return time.Time{}, false
	case map[string]any:
		// Timestamp wrapper objects: {"seconds": ..., "nanos": ...} and the
		// {"_seconds": ..., "_nanoseconds": ...} form emitted by JSON exports.
		for _, key := range []string{"seconds", "_seconds"} {
			if sec, ok := v[key]; ok {
				return ToInstant(sec)
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func epochSeconds(sec int64) (time.Time, bool) {
	if sec == 0 {
		return time.Time{}, false
	}
	return time.Unix(sec, 0).UTC(), true
}
