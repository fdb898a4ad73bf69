package clock

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"
)

// Zone is the timezone the STAR feeds and their riders live in.
const Zone = "Europe/Paris"

var ErrMalformedTimestamp = errors.New("malformed feed timestamp")

// TimestampError reports a feed timestamp that could not be parsed.
type TimestampError struct {
	Value string
	Err   error
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("parsing timestamp %q: %v", e.Value, e.Err)
}

func (e *TimestampError) Unwrap() []error {
	return []error{ErrMalformedTimestamp, e.Err}
}

// Clock produces "now" for the aggregation components.
type Clock interface {
	Now() time.Time
}

type systemClock struct {
	loc *time.Location
}

func (c systemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

type fixedClock struct {
	t time.Time
}

func (c fixedClock) Now() time.Time {
	return c.t
}

// Location returns the Europe/Paris location. The tz database is embedded,
// so this only fails on a corrupt binary.
func Location() *time.Location {
	loc, err := time.LoadLocation(Zone)
	if err != nil {
		panic(fmt.Sprintf("loading %s: %v", Zone, err))
	}
	return loc
}

// Paris returns the wall clock in Europe/Paris.
func Paris() Clock {
	return systemClock{loc: Location()}
}

// Fixed returns a clock frozen at t, converted to Europe/Paris.
func Fixed(t time.Time) Clock {
	return fixedClock{t: t.In(Location())}
}

var feedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// ParseFeedTimestamp parses an offset-aware (or naive) feed timestamp and
// converts it to Paris wall-clock time. Naive values are taken as Paris time.
func ParseFeedTimestamp(s string) (time.Time, error) {
	loc := Location()
	var lastErr error
	for i, layout := range feedLayouts {
		var t time.Time
		var err error
		if i == 0 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, loc)
		}
		if err == nil {
			return t.In(loc), nil
		}
		lastErr = err
	}
	return time.Time{}, &TimestampError{Value: s, Err: lastErr}
}

// IsFuture reports whether t is strictly after now.
func IsFuture(t, now time.Time) bool {
	return t.After(now)
}

// HHMM formats t as two-digit hours and minutes.
func HHMM(t time.Time) string {
	return t.Format("15:04")
}
