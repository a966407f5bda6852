package askrouter

import "time"

// DayKey identifies one calendar day in the configured timezone, formatted
// as ISO-8601 (2006-01-02). Every place that reads or writes usage derives
// the day through DayOf so call sites cannot drift on the boundary.
type DayKey string

// DayOf returns the DayKey for t in loc.
func DayOf(t time.Time, loc *time.Location) DayKey {
	return DayKey(t.In(loc).Format("2006-01-02"))
}

// Before reports whether d is an earlier day than other.
// Lexicographic comparison is correct for ISO-8601 dates.
func (d DayKey) Before(other DayKey) bool {
	return string(d) < string(other)
}

// Time parses the key back into the midnight instant in loc.
func (d DayKey) Time(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", string(d), loc)
}

func (d DayKey) String() string { return string(d) }
