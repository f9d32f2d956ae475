package content

import (
	"math"
	"strconv"
	"time"
)

// DurationMinutes returns the rounded number of minutes between start and
// end, or "" when either is missing or end precedes start.
func DurationMinutes(start, end *time.Time) string {
	if start == nil || end == nil {
		return ""
	}
	ms := end.Sub(*start).Milliseconds()
	if ms < 0 {
		return ""
	}
	return strconv.FormatInt(int64(math.Round(float64(ms)/60000)), 10)
}
