// Package gpstime converts between standard UTC time.Time values and the
// GPS time scale used to timestamp join and session events against GPS
// epoch. GPS time does not observe leap seconds; it has run a fixed 19
// seconds behind TAI since its epoch and has drifted further from UTC by
// one second each time
// the IERS has inserted a UTC leap second.
package gpstime

import "time"

// gpsEpochTime is midnight UTC on 6 January 1980, the origin of the GPS
// time scale.
var gpsEpochTime = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// leapSeconds lists the UTC instant each leap second took effect, paired
// with the cumulative TAI-UTC offset (in seconds) that applies from that
// instant onward. The first entry, 1980-01-06, anchors the table at the
// GPS epoch itself where TAI-UTC was 19s; every subsequent entry is a leap
// second insertion.
var leapSeconds = []struct {
	Time   time.Time
	Offset int
}{
	{time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC), 19},
	{time.Date(1981, time.July, 1, 0, 0, 0, 0, time.UTC), 20},
	{time.Date(1982, time.July, 1, 0, 0, 0, 0, time.UTC), 21},
	{time.Date(1983, time.July, 1, 0, 0, 0, 0, time.UTC), 22},
	{time.Date(1985, time.July, 1, 0, 0, 0, 0, time.UTC), 23},
	{time.Date(1988, time.January, 1, 0, 0, 0, 0, time.UTC), 24},
	{time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC), 25},
	{time.Date(1991, time.January, 1, 0, 0, 0, 0, time.UTC), 26},
	{time.Date(1992, time.July, 1, 0, 0, 0, 0, time.UTC), 27},
	{time.Date(1993, time.July, 1, 0, 0, 0, 0, time.UTC), 28},
	{time.Date(1994, time.July, 1, 0, 0, 0, 0, time.UTC), 29},
	{time.Date(1996, time.January, 1, 0, 0, 0, 0, time.UTC), 30},
	{time.Date(1997, time.July, 1, 0, 0, 0, 0, time.UTC), 31},
	{time.Date(1999, time.January, 1, 0, 0, 0, 0, time.UTC), 32},
	{time.Date(2006, time.January, 1, 0, 0, 0, 0, time.UTC), 33},
	{time.Date(2009, time.January, 1, 0, 0, 0, 0, time.UTC), 34},
	{time.Date(2012, time.July, 1, 0, 0, 0, 0, time.UTC), 35},
	{time.Date(2015, time.July, 1, 0, 0, 0, 0, time.UTC), 36},
	{time.Date(2017, time.January, 1, 0, 0, 0, 0, time.UTC), 37},
}

// gpsEpochOffset is the TAI-UTC offset in effect at the GPS epoch itself;
// GPS time runs this many seconds behind TAI permanently, so the leap
// seconds accrued *since* the epoch are (offset(t) - gpsEpochOffset).
const gpsEpochOffset = 19

// Time represents an instant on the GPS time scale. It wraps time.Time so
// that the normal time package can still format and compare it; only
// TimeSinceGPSEpoch and NewTimeFromTimeSinceGPSEpoch know about the leap
// second correction.
type Time time.Time

// TimeSinceGPSEpoch returns the duration elapsed on the GPS time scale
// since 1980-01-06T00:00:00 UTC.
func (t Time) TimeSinceGPSEpoch() time.Duration {
	utc := time.Time(t)
	elapsed := utc.Sub(gpsEpochTime)
	return elapsed + time.Duration(leapSecondsSinceEpoch(utc))*time.Second
}

// NewTimeFromTimeSinceGPSEpoch builds a Time from a duration elapsed since
// the GPS epoch, inverting TimeSinceGPSEpoch.
func NewTimeFromTimeSinceGPSEpoch(d time.Duration) Time {
	approx := gpsEpochTime.Add(d)
	leap := leapSecondsSinceEpoch(approx)
	utc := gpsEpochTime.Add(d - time.Duration(leap)*time.Second)

	// A leap second inserted between approx and the corrected utc shifts
	// the offset by one; re-resolve against the corrected instant once to
	// settle that boundary case.
	if corrected := leapSecondsSinceEpoch(utc); corrected != leap {
		utc = gpsEpochTime.Add(d - time.Duration(corrected)*time.Second)
	}
	return Time(utc)
}

// leapSecondsSinceEpoch returns how many leap seconds have been inserted
// between the GPS epoch and t.
func leapSecondsSinceEpoch(t time.Time) int {
	offset := gpsEpochOffset
	for _, ls := range leapSeconds {
		if t.Before(ls.Time) {
			break
		}
		offset = ls.Offset
	}
	return offset - gpsEpochOffset
}
