package domain

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// GranuleDuration bounds the time span covered by one input file. CALIPSO
// granules cover half an orbit, a little under 50 minutes.
const GranuleDuration = time.Hour

// FormatTimestamp encodes t (in UTC) as yyyydddhhmm.
func FormatTimestamp(t time.Time) int64 {
	t = t.UTC()
	return int64(t.Year())*10_000_000 + int64(t.YearDay())*10_000 + int64(t.Hour())*100 + int64(t.Minute())
}

// ParseTimestamp decodes a yyyydddhhmm value.
func ParseTimestamp(ts int64) (time.Time, error) {
	year := ts / 10_000_000
	doy := ts / 10_000 % 1000
	hour := ts / 100 % 100
	minute := ts % 100
	if year < 1900 || doy < 1 || doy > 366 || hour > 23 || minute > 59 {
		return time.Time{}, fmt.Errorf("invalid timestamp %d", ts)
	}
	t := time.Date(int(year), time.January, 1, int(hour), int(minute), 0, 0, time.UTC).AddDate(0, 0, int(doy)-1)
	if t.Year() != int(year) {
		return time.Time{}, fmt.Errorf("invalid timestamp %d: day %d past end of year", ts, doy)
	}
	return t, nil
}

// ProfileUTCTime converts a CALIPSO Profile_UTC_Time value (yymmdd.ffffffff,
// the fraction being the elapsed fraction of the UTC day) to a time.
func ProfileUTCTime(v float64) (time.Time, error) {
	if v <= 0 || math.IsNaN(v) {
		return time.Time{}, fmt.Errorf("invalid profile time %v", v)
	}
	whole, frac := math.Modf(v)
	ymd := int(whole)
	yy, mm, dd := ymd/10000, ymd/100%100, ymd%100
	if mm < 1 || mm > 12 || dd < 1 || dd > 31 {
		return time.Time{}, fmt.Errorf("invalid profile time %v", v)
	}
	day := time.Date(2000+yy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)
	return day.Add(time.Duration(frac * float64(24*time.Hour))), nil
}

var fileTimePattern = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})T(\d{2})-(\d{2})-(\d{2})Z`)

// ParseFileTime extracts the granule start time embedded in a CALIPSO file
// name, e.g. CAL_LID_L2_05kmAPro-Standard-V4-20.2006-07-03T00-22-49ZN.hdf.
func ParseFileTime(name string) (time.Time, error) {
	m := fileTimePattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, fmt.Errorf("no timestamp in file name %q", name)
	}
	var v [6]int
	for i := range v {
		v[i], _ = strconv.Atoi(m[i+1])
	}
	t := time.Date(v[0], time.Month(v[1]), v[2], v[3], v[4], v[5], 0, time.UTC)
	if t.Month() != time.Month(v[1]) || t.Day() != v[2] {
		return time.Time{}, fmt.Errorf("invalid timestamp in file name %q", name)
	}
	return t, nil
}

// TimeRange is a half-open UTC interval [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// NewTimeRange parses a YYYYMMDDHH start and spans the given number of hours.
func NewTimeRange(start string, hours int) (TimeRange, error) {
	t, err := time.Parse("2006010215", start)
	if err != nil {
		return TimeRange{}, fmt.Errorf("parse timestamp %q: %w", start, err)
	}
	if hours < 1 {
		return TimeRange{}, fmt.Errorf("invalid hours %d", hours)
	}
	return TimeRange{Start: t, End: t.Add(time.Duration(hours) * time.Hour)}, nil
}

// OverlapsGranule reports whether a granule starting at t can hold
// profiles inside the range.
func (r TimeRange) OverlapsGranule(t time.Time) bool {
	return t.Before(r.End) && t.Add(GranuleDuration).After(r.Start)
}

// FirstStamp and LastStamp bound the range in yyyydddhhmm, both inclusive.
func (r TimeRange) FirstStamp() int64 { return FormatTimestamp(r.Start) }
func (r TimeRange) LastStamp() int64  { return FormatTimestamp(r.End.Add(-time.Minute)) }
