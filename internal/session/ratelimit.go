package session

import (
	"regexp"
	"strconv"
	"time"
)

var (
	resetDatedRe = regexp.MustCompile(`resets (Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec) (\d{1,2}), (\d{1,2})(am|pm) \(UTC\)`)
	resetTimeRe  = regexp.MustCompile(`resets (\d{1,2})(am|pm) \(UTC\)`)
)

var monthIndex = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// ParseResetTime scans backend output for a usage-limit reset notice and
// resolves it to the next matching UTC instant strictly after now. The
// time-only form ("resets 7pm (UTC)") rolls forward one day when the hour has
// already passed; the dated form ("resets Jan 15, 7pm (UTC)") rolls forward
// one year. Arbitrary non-matching text yields no result and never an error.
func ParseResetTime(text string, now time.Time) (time.Time, bool) {
	now = now.UTC()

	if m := resetDatedRe.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[2])
		at := time.Date(now.Year(), monthIndex[m[1]], day, clockHour(m[3], m[4]), 0, 0, 0, time.UTC)
		if !at.After(now) {
			at = at.AddDate(1, 0, 0)
		}
		return at, true
	}

	if m := resetTimeRe.FindStringSubmatch(text); m != nil {
		at := time.Date(now.Year(), now.Month(), now.Day(), clockHour(m[1], m[2]), 0, 0, 0, time.UTC)
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return at, true
	}

	return time.Time{}, false
}

func clockHour(hour, meridiem string) int {
	n, _ := strconv.Atoi(hour)
	n %= 12
	if meridiem == "pm" {
		n += 12
	}
	return n
}
