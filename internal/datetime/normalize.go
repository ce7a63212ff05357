package datetime

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var ErrUnparseable = errors.New("unparseable date")

var (
	isoDatePattern   = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	slashDatePattern = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	dashDatePattern  = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`)
	clockPattern     = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)
)

var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
}

var combinedLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"2/1/2006 15:04",
	"02-01-2006 15:04",
}

var genericLayouts = []string{
	"2006/01/02",
	"2006/1/2",
	"20060102",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"Mon, 02 Jan 2006",
	"Mon Jan 2 2006",
	time.RFC1123,
	time.RFC1123Z,
	time.RFC850,
}

type Clock struct {
	Hour   int
	Minute int
	Second int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

// ParseClock accepts HH:MM or HH:MM:SS.
func ParseClock(value string) (Clock, bool) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return Clock{}, false
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	second := 0
	if m[3] != "" {
		second, _ = strconv.Atoi(m[3])
	}
	if hour > 23 || minute > 59 || second > 59 {
		return Clock{}, false
	}
	return Clock{Hour: hour, Minute: minute, Second: second}, true
}

// Normalizer turns the date and time cells of an import row into absolute
// timestamps. Zone-less input is read in Location.
type Normalizer struct {
	Location     *time.Location
	DefaultClock Clock
}

func NewNormalizer(loc *time.Location, defaultClock Clock) Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return Normalizer{Location: loc, DefaultClock: defaultClock}
}

func (n Normalizer) location() *time.Location {
	if n.Location == nil {
		return time.UTC
	}
	return n.Location
}

// Normalize combines a date cell and an optional time-of-day cell. A date
// cell that already carries a time ignores the clock cell. A missing or
// malformed clock falls back to DefaultClock.
func (n Normalizer) Normalize(date, clock string) (time.Time, error) {
	raw := strings.TrimSpace(date)
	if raw == "" {
		return time.Time{}, ErrUnparseable
	}

	if hasTimeComponent(raw) {
		if t, ok := n.parseCombined(raw); ok {
			return t, nil
		}
	}

	year, month, day, ok := n.parseDate(raw)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseable, raw)
	}

	c, ok := ParseClock(clock)
	if !ok {
		c = n.DefaultClock
	}
	return time.Date(year, month, day, c.Hour, c.Minute, c.Second, 0, n.location()), nil
}

// Date parses a date-only cell to midnight in Location.
func (n Normalizer) Date(value string) (time.Time, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return time.Time{}, ErrUnparseable
	}
	if hasTimeComponent(raw) {
		if t, ok := n.parseCombined(raw); ok {
			t = t.In(n.location())
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, n.location()), nil
		}
	}
	year, month, day, ok := n.parseDate(raw)
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseable, raw)
	}
	return time.Date(year, month, day, 0, 0, 0, 0, n.location()), nil
}

// End resolves an end timestamp relative to start. Absent or unparseable
// input yields start + 1h; a clock without a date lands on start's day.
func (n Normalizer) End(start time.Time, date, clock string) time.Time {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)

	if date == "" {
		c, ok := ParseClock(clock)
		if !ok {
			return start.Add(time.Hour)
		}
		local := start.In(n.location())
		return time.Date(local.Year(), local.Month(), local.Day(), c.Hour, c.Minute, c.Second, 0, n.location())
	}

	if clock == "" && !hasTimeComponent(date) {
		year, month, day, ok := n.parseDate(date)
		if !ok {
			return start.Add(time.Hour)
		}
		// a bare end date keeps the start's time of day
		local := start.In(n.location())
		end := time.Date(year, month, day, local.Hour(), local.Minute(), local.Second(), 0, n.location())
		if !end.After(start) {
			return start.Add(time.Hour)
		}
		return end
	}

	end, err := n.Normalize(date, clock)
	if err != nil {
		return start.Add(time.Hour)
	}
	return end
}

func hasTimeComponent(value string) bool {
	if strings.Contains(value, "T") {
		return true
	}
	return strings.Contains(value, " ") && strings.Contains(value, ":")
}

func (n Normalizer) parseCombined(raw string) (time.Time, bool) {
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	for _, layout := range combinedLayouts {
		if t, err := time.ParseInLocation(layout, raw, n.location()); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (n Normalizer) parseDate(raw string) (int, time.Month, int, bool) {
	if m := isoDatePattern.FindStringSubmatch(raw); m != nil {
		return buildDate(m[1], m[2], m[3])
	}
	if m := slashDatePattern.FindStringSubmatch(raw); m != nil {
		return buildDate(m[3], m[2], m[1])
	}
	if m := dashDatePattern.FindStringSubmatch(raw); m != nil {
		return buildDate(m[3], m[2], m[1])
	}
	for _, layout := range genericLayouts {
		if t, err := time.ParseInLocation(layout, raw, n.location()); err == nil {
			return t.Year(), t.Month(), t.Day(), true
		}
	}
	return 0, 0, 0, false
}

func buildDate(yearText, monthText, dayText string) (int, time.Month, int, bool) {
	year, err := strconv.Atoi(yearText)
	if err != nil {
		return 0, 0, 0, false
	}
	month, err := strconv.Atoi(monthText)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, 0, false
	}
	day, err := strconv.Atoi(dayText)
	if err != nil || day < 1 {
		return 0, 0, 0, false
	}
	check := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if check.Day() != day || int(check.Month()) != month {
		return 0, 0, 0, false
	}
	return year, time.Month(month), day, true
}
