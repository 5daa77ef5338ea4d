package ics

import (
	"bytes"
	"errors"
	"regexp"
	"strings"

	ical "github.com/arran4/golang-ical"

	"trainsync/internal/log"
)

// parsedEvent is the raw representation of a VEVENT before recurrence
// expansion and timestamp normalization. Timestamps are kept as the feed's
// literal strings so the normalization layer decides how to interpret
// them; the parser never guesses.
type parsedEvent struct {
	UID string

	Summary     string
	Description string
	Location    string

	RawStart string
	RawEnd   string
	// StartZone / EndZone carry the TZID parameter attached to the
	// timestamp, if any.
	StartZone string
	EndZone   string
	// StartUTC / EndUTC are true when the value carries the explicit Z
	// suffix and must be read literally as UTC.
	StartUTC bool
	EndUTC   bool

	AllDay bool

	RawRRule     string
	RawExDates   []string
	RecurrenceID string
	IsOverride   bool
}

// parsedFeed is the outcome of parsing one ICS payload.
type parsedFeed struct {
	// HeaderZone is the document-level default timezone (X-WR-TIMEZONE
	// or a top-level VTIMEZONE TZID). Empty when the feed declares none;
	// absence is not an error.
	HeaderZone string
	Events     []parsedEvent
}

var (
	headerZoneRe  = regexp.MustCompile(`(?m)^X-WR-TIMEZONE:\s*(.+?)\s*$`)
	vtimezoneIDRe = regexp.MustCompile(`(?m)^TZID:\s*(.+?)\s*$`)
)

// parseFeed parses a single ICS payload. Individual malformed VEVENTs are
// logged and skipped; only an unparseable document is fatal.
func parseFeed(body []byte) (*parsedFeed, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty feed body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	feed := &parsedFeed{
		HeaderZone: headerTimezone(cal, body),
	}

	for _, ve := range cal.Events() {
		ev, perr := parseVEvent(ve)
		if perr != nil {
			log.Warn("skipping malformed vevent", "reason", perr)
			continue
		}
		feed.Events = append(feed.Events, ev)
	}

	return feed, nil
}

// headerTimezone extracts the feed-level default zone, preferring the
// parsed X-WR-TIMEZONE property and falling back to a regex scan of the
// raw text (some producers emit properties the library drops).
func headerTimezone(cal *ical.Calendar, body []byte) string {
	for _, p := range cal.CalendarProperties {
		if strings.EqualFold(p.IANAToken, "X-WR-TIMEZONE") && p.Value != "" {
			return strings.TrimSpace(p.Value)
		}
	}
	if m := headerZoneRe.FindSubmatch(body); len(m) == 2 {
		return string(bytes.TrimSpace(m[1]))
	}
	if m := vtimezoneIDRe.FindSubmatch(body); len(m) == 2 {
		return string(bytes.TrimSpace(m[1]))
	}
	return ""
}

func parseVEvent(ve *ical.VEvent) (parsedEvent, error) {
	var out parsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil || dtStart.Value == "" {
		return out, errors.New("missing DTSTART")
	}
	out.RawStart = dtStart.Value
	out.StartZone = tzidParam(dtStart)
	out.StartUTC = strings.HasSuffix(dtStart.Value, "Z")
	out.AllDay = isDateOnly(dtStart)

	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		out.RawEnd = dtEnd.Value
		out.EndZone = tzidParam(dtEnd)
		out.EndUTC = strings.HasSuffix(dtEnd.Value, "Z")
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				out.RawExDates = append(out.RawExDates, part)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil && p.Value != "" {
		out.RecurrenceID = p.Value
		out.IsOverride = true
	}

	return out, nil
}

// tzidParam returns the TZID parameter of a date property, if present.
func tzidParam(p *ical.IANAProperty) string {
	if p.ICalParameters == nil {
		return ""
	}
	if tzs, ok := p.ICalParameters["TZID"]; ok && len(tzs) > 0 {
		return strings.TrimSpace(tzs[0])
	}
	return ""
}

// isDateOnly detects an all-day value: VALUE=DATE or no time component.
func isDateOnly(p *ical.IANAProperty) bool {
	if p.ICalParameters != nil {
		if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			return true
		}
	}
	return !strings.Contains(p.Value, "T")
}
