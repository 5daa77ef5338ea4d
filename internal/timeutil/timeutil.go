// Package timeutil normalizes the heterogeneous timestamp and timezone
// representations the calendar feed and the document store produce into
// UTC millisecond instants and concrete IANA display zones.
package timeutil

import (
	"strings"
	"time"
)

// FallbackZone is the hard fallback display zone used when every candidate
// in the priority chain is UTC, empty or unloadable. Feeds that declare
// bare UTC rarely reflect the athletes' actual local time, so UTC is never
// taken at face value for display.
const FallbackZone = "Europe/Paris"

// ResolveDisplayZone picks the IANA zone used to render a training to a
// human. Priority: the occurrence's own zone, then the feed header zone,
// then the team default, then FallbackZone. UTC-equivalent candidates are
// skipped at every step.
func ResolveDisplayZone(eventZone, headerZone, teamDefault string) string {
	for _, cand := range []string{eventZone, headerZone, teamDefault} {
		if z, ok := concreteZone(cand); ok {
			return z
		}
	}
	return FallbackZone
}

// concreteZone validates a candidate: non-empty, loadable, not a UTC marker.
func concreteZone(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || IsUTCName(name) {
		return "", false
	}
	if _, err := time.LoadLocation(name); err != nil {
		return "", false
	}
	return name, true
}

// IsUTCName reports whether a zone name is a spelling of bare UTC.
func IsUTCName(name string) bool {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "UTC", "Z", "GMT", "ETC/UTC", "ETC/GMT", "UCT", "ZULU":
		return true
	}
	return false
}

// feed timestamp layouts, tried in order
var (
	utcLayouts = []string{
		"20060102T150405Z",
		"2006-01-02T15:04:05Z",
	}
	wallLayouts = []string{
		"20060102T150405",
		"2006-01-02T15:04:05",
	}
)

// ToUTCMillis parses a feed timestamp into UTC milliseconds.
//
// A value carrying an explicit UTC marker is interpreted literally as UTC.
// Otherwise the wall-clock digits are interpreted in zoneHint and converted.
// Date-only values and any unparseable input return ok=false; callers must
// skip the occurrence rather than fabricate a time.
func ToUTCMillis(raw, zoneHint string, explicitUTC bool) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}

	if explicitUTC || strings.HasSuffix(raw, "Z") {
		for _, layout := range utcLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t.UnixMilli(), true
			}
		}
		return 0, false
	}

	// Date-only means an all-day entry; no concrete instant exists.
	if !strings.Contains(raw, "T") {
		return 0, false
	}

	loc := time.UTC
	if z, ok := concreteZone(zoneHint); ok {
		loc, _ = time.LoadLocation(z)
	}
	for _, layout := range wallLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

// CoerceMillis converts a store-read timestamp value of unknown shape
// (time.Time, epoch millis, RFC3339 or compact ISO string, date-only
// string) into UTC milliseconds.
func CoerceMillis(v any) (int64, bool) {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return 0, false
		}
		return x.UnixMilli(), true
	case int64:
		if x <= 0 {
			return 0, false
		}
		return x, true
	case int:
		return CoerceMillis(int64(x))
	case float64:
		return CoerceMillis(int64(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UnixMilli(), true
		}
		if ms, ok := ToUTCMillis(s, "", false); ok {
			return ms, true
		}
		// Calendar-date-only: midnight UTC is the best single instant.
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return t.UnixMilli(), true
		}
		if t, err := time.Parse("20060102", s); err == nil {
			return t.UnixMilli(), true
		}
		return 0, false
	}
	return 0, false
}
