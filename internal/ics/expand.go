package ics

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"trainsync/internal/log"
	"trainsync/internal/timeutil"
)

const defaultMaxOccurrencesPerEvent = 1000

// Occurrence is one concrete instance of a (possibly recurring) feed event
// with resolved UTC instants. All-day entries are surfaced with AllDay set
// so callers can exclude them from the model.
type Occurrence struct {
	UID         string
	Summary     string
	Description string
	Location    string

	// EventZone is the zone declared on the occurrence itself: the TZID
	// parameter, "UTC" for an explicit Z suffix, or empty for a floating
	// time. Kept for diagnostics and display-zone resolution.
	EventZone string

	AllDay bool

	StartMillis int64
	EndMillis   int64
}

// Result is the outcome of expanding one feed over a bounded window.
type Result struct {
	// HeaderZone is the feed's document-level default timezone, if any.
	HeaderZone  string
	Occurrences []Occurrence
	// Errors records per-event resolution failures; the expansion
	// continues past them.
	Errors []string
	// Truncated lists UIDs whose recurrence hit the per-event cap.
	Truncated []string
}

// Expander turns feed text into concrete occurrences within a time window.
// The interface keeps the parsing/recurrence stack swappable without
// touching normalization or merge logic.
type Expander interface {
	Expand(feedText string, windowStart, windowEnd time.Time, defaultZone string) (*Result, error)
}

// RRuleExpander is the production Expander built on golang-ical and
// rrule-go.
type RRuleExpander struct {
	// MaxPerEvent caps occurrences produced by one recurring event to
	// bound cost on pathological rules. Zero means the default cap.
	MaxPerEvent int
}

func (e *RRuleExpander) cap() int {
	if e.MaxPerEvent > 0 {
		return e.MaxPerEvent
	}
	return defaultMaxOccurrencesPerEvent
}

// Expand parses and expands feedText. A document-level parse failure is
// fatal; everything narrower is isolated into Result.Errors.
func (e *RRuleExpander) Expand(feedText string, windowStart, windowEnd time.Time, defaultZone string) (*Result, error) {
	feed, err := parseFeed([]byte(feedText))
	if err != nil {
		return nil, err
	}

	res := &Result{HeaderZone: feed.HeaderZone}

	bases := make([]parsedEvent, 0, len(feed.Events))
	overridesByUID := make(map[string][]parsedEvent)
	for _, ev := range feed.Events {
		if ev.IsOverride {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			bases = append(bases, ev)
		}
	}

	for _, ev := range bases {
		e.expandEvent(ev, overridesByUID[ev.UID], feed.HeaderZone, defaultZone, windowStart, windowEnd, res)
	}

	return res, nil
}

// parseZoneFor picks the zone used to interpret wall-clock digits:
// the occurrence's own hint first, then the feed header, then the team
// default. Distinct from display-zone resolution, which refuses UTC.
func parseZoneFor(own, header, teamDefault string) string {
	for _, z := range []string{own, header, teamDefault} {
		if z != "" {
			return z
		}
	}
	return ""
}

func (ev parsedEvent) eventZone() string {
	if ev.StartZone != "" {
		return ev.StartZone
	}
	if ev.StartUTC {
		return "UTC"
	}
	return ""
}

func (e *RRuleExpander) expandEvent(ev parsedEvent, overrides []parsedEvent, headerZone, defaultZone string, windowStart, windowEnd time.Time, res *Result) {
	if ev.AllDay {
		// Date-only entries never produce a concrete end instant; they
		// are excluded from the model entirely.
		log.Debug("skipping all-day event", "uid", ev.UID)
		return
	}

	startHint := parseZoneFor(ev.StartZone, headerZone, defaultZone)
	startMillis, ok := timeutil.ToUTCMillis(ev.RawStart, startHint, ev.StartUTC)
	if !ok {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: unresolvable start %q", ev.UID, ev.RawStart))
		return
	}

	endHint := parseZoneFor(ev.EndZone, headerZone, defaultZone)
	if ev.EndZone == "" {
		endHint = startHint
	}
	endMillis, ok := timeutil.ToUTCMillis(ev.RawEnd, endHint, ev.EndUTC)
	if !ok {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: unresolvable end %q", ev.UID, ev.RawEnd))
		return
	}

	if startMillis >= endMillis {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: start is not before end", ev.UID))
		return
	}

	if ev.RawRRule == "" {
		if startMillis > windowEnd.UnixMilli() || endMillis < windowStart.UnixMilli() {
			return
		}
		res.Occurrences = append(res.Occurrences, e.makeOccurrence(ev, overrides, startHint, headerZone, defaultZone, startMillis, endMillis, res))
		return
	}

	e.expandRecurring(ev, overrides, startHint, headerZone, defaultZone, startMillis, endMillis, windowStart, windowEnd, res)
}

func (e *RRuleExpander) expandRecurring(ev parsedEvent, overrides []parsedEvent, startHint, headerZone, defaultZone string, startMillis, endMillis int64, windowStart, windowEnd time.Time, res *Result) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: bad RRULE %q: %v", ev.UID, ev.RawRRule, err))
		return
	}

	loc := locationFor(startHint)
	dtstart := time.UnixMilli(startMillis).In(loc)
	r.DTStart(dtstart)

	var set rrule.Set
	set.RRule(r)

	for _, raw := range ev.RawExDates {
		exMillis, ok := timeutil.ToUTCMillis(raw, startHint, false)
		if !ok {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: unresolvable EXDATE %q", ev.UID, raw))
			continue
		}
		set.ExDate(time.UnixMilli(exMillis).In(loc))
	}

	occTimes := set.Between(windowStart.In(loc), windowEnd.In(loc), true)
	if len(occTimes) > e.cap() {
		occTimes = occTimes[:e.cap()]
		res.Truncated = append(res.Truncated, ev.UID)
		log.Warn("recurrence expansion truncated", "uid", ev.UID, "cap", e.cap())
	}

	duration := endMillis - startMillis
	for _, occStart := range occTimes {
		occStartMillis := occStart.UnixMilli()
		res.Occurrences = append(res.Occurrences,
			e.makeOccurrence(ev, overrides, startHint, headerZone, defaultZone, occStartMillis, occStartMillis+duration, res))
	}
}

// makeOccurrence builds one occurrence, applying a RECURRENCE-ID override
// whose instant matches the occurrence start exactly.
func (e *RRuleExpander) makeOccurrence(ev parsedEvent, overrides []parsedEvent, startHint, headerZone, defaultZone string, startMillis, endMillis int64, res *Result) Occurrence {
	src := ev
	for _, ov := range overrides {
		hint := parseZoneFor(ov.StartZone, headerZone, defaultZone)
		ridMillis, ok := timeutil.ToUTCMillis(ov.RecurrenceID, hint, false)
		if !ok || ridMillis != startMillis {
			continue
		}
		ovStart, okS := timeutil.ToUTCMillis(ov.RawStart, hint, ov.StartUTC)
		ovEnd, okE := timeutil.ToUTCMillis(ov.RawEnd, hint, ov.EndUTC)
		if okS && okE && ovStart < ovEnd {
			src = ov
			startMillis = ovStart
			endMillis = ovEnd
		} else {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: unresolvable override for %s", ov.UID, ov.RecurrenceID))
		}
		break
	}

	return Occurrence{
		UID:         src.UID,
		Summary:     src.Summary,
		Description: src.Description,
		Location:    src.Location,
		EventZone:   src.eventZone(),
		StartMillis: startMillis,
		EndMillis:   endMillis,
	}
}

func locationFor(zone string) *time.Location {
	if zone == "" || timeutil.IsUTCName(zone) {
		return time.UTC
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.UTC
	}
	return loc
}
