// Package daterange resolves named and explicit date ranges into concrete
// calendar bounds and classifies how likely their data is to still change.
package daterange

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrRangeRequired = errors.New("date range is required")
	ErrUnknownBucket = errors.New("unknown date range")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidRange  = errors.New("start date is after end date")
)

// Bucket is a named relative range such as "thisMonth".
type Bucket string

const (
	Today       Bucket = "today"
	Yesterday   Bucket = "yesterday"
	ThisWeek    Bucket = "thisWeek"
	LastWeek    Bucket = "lastWeek"
	Last7Days   Bucket = "last7Days"
	Last30Days  Bucket = "last30Days"
	ThisMonth   Bucket = "thisMonth"
	LastMonth   Bucket = "lastMonth"
	ThisQuarter Bucket = "thisQuarter"
	LastQuarter Bucket = "lastQuarter"
	ThisYear    Bucket = "thisYear"
	LastYear    Bucket = "lastYear"

	// Custom marks an explicit start/end pair.
	Custom Bucket = "custom"
)

var buckets = []Bucket{
	Today, Yesterday, ThisWeek, LastWeek, Last7Days, Last30Days,
	ThisMonth, LastMonth, ThisQuarter, LastQuarter, ThisYear, LastYear,
}

// Buckets lists every named bucket.
func Buckets() []Bucket {
	return append([]Bucket(nil), buckets...)
}

// ParseBucket accepts bucket names case-insensitively.
func ParseBucket(name string) (Bucket, error) {
	for _, b := range buckets {
		if strings.EqualFold(string(b), name) {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBucket, name)
}

// Descriptor is a resolved range. Start and End are inclusive calendar days
// at midnight in the location of the "now" used to resolve them.
type Descriptor struct {
	Bucket Bucket
	Start  time.Time
	End    time.Time
}

// IsCustom reports whether the range came from an explicit start/end pair.
func (d Descriptor) IsCustom() bool {
	return d.Bucket == Custom
}

// Label is the bucket name, or "start..end" for custom ranges.
func (d Descriptor) Label() string {
	if d.IsCustom() {
		return d.Start.Format(time.DateOnly) + ".." + d.End.Format(time.DateOnly)
	}
	return string(d.Bucket)
}

// Days returns the number of calendar days covered.
func (d Descriptor) Days() int {
	return daysBetween(d.Start, d.End) + 1
}

// Named resolves bucket relative to now.
func Named(bucket Bucket, now time.Time) (Descriptor, error) {
	today := Day(now)
	year, month, _ := today.Date()
	loc := today.Location()
	quarterStart := time.Month((int(month)-1)/3*3 + 1)

	var start, end time.Time
	switch bucket {
	case Today:
		start, end = today, today
	case Yesterday:
		start = today.AddDate(0, 0, -1)
		end = start
	case ThisWeek, Last7Days:
		start, end = today.AddDate(0, 0, -6), today
	case LastWeek:
		start, end = today.AddDate(0, 0, -13), today.AddDate(0, 0, -7)
	case Last30Days:
		start, end = today.AddDate(0, 0, -29), today
	case ThisMonth:
		start, end = time.Date(year, month, 1, 0, 0, 0, 0, loc), today
	case LastMonth:
		first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
		start, end = first.AddDate(0, -1, 0), first.AddDate(0, 0, -1)
	case ThisQuarter:
		start, end = time.Date(year, quarterStart, 1, 0, 0, 0, 0, loc), today
	case LastQuarter:
		first := time.Date(year, quarterStart, 1, 0, 0, 0, 0, loc)
		start, end = first.AddDate(0, -3, 0), first.AddDate(0, 0, -1)
	case ThisYear:
		start, end = time.Date(year, 1, 1, 0, 0, 0, 0, loc), today
	case LastYear:
		start, end = time.Date(year-1, 1, 1, 0, 0, 0, 0, loc), time.Date(year-1, 12, 31, 0, 0, 0, 0, loc)
	default:
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownBucket, bucket)
	}

	return Descriptor{Bucket: bucket, Start: start, End: end}, nil
}

// Explicit builds a custom descriptor; start must not be after end.
func Explicit(start, end time.Time) (Descriptor, error) {
	start, end = Day(start), Day(end)
	if start.After(end) {
		return Descriptor{}, fmt.Errorf("%w: %s > %s", ErrInvalidRange,
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return Descriptor{Bucket: Custom, Start: start, End: end}, nil
}

// Parse resolves request parameters. An explicit startDate/endDate pair wins
// over the range name; dates are read as YYYY-MM-DD in now's location.
func Parse(rangeName, startDate, endDate string, now time.Time) (Descriptor, error) {
	if startDate != "" || endDate != "" {
		if startDate == "" || endDate == "" {
			return Descriptor{}, fmt.Errorf("%w: startDate and endDate must be given together", ErrRangeRequired)
		}
		start, err := parseDate(startDate, now.Location())
		if err != nil {
			return Descriptor{}, err
		}
		end, err := parseDate(endDate, now.Location())
		if err != nil {
			return Descriptor{}, err
		}
		return Explicit(start, end)
	}

	if rangeName == "" {
		return Descriptor{}, ErrRangeRequired
	}
	bucket, err := ParseBucket(rangeName)
	if err != nil {
		return Descriptor{}, err
	}
	return Named(bucket, now)
}

// parseDate accepts YYYY-MM-DD or a full RFC3339 timestamp. Timestamps
// keep the calendar date they were written with.
func parseDate(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(time.DateOnly, value, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// daysBetween counts calendar days from a to b, ignoring DST shifts.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
