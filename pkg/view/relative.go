package view

import (
	"fmt"
	"math"
	"time"
)

const (
	minutesInDay       = 1440
	minutesInMonth     = 43200
	minutesInTwoMonths = 86400
)

// RelativeTime describes the distance between t and now in words, e.g.
// "about 3 hours ago" or "in 2 days".
func RelativeTime(t, now time.Time) string {
	if t.After(now) {
		return "in " + distance(now, t)
	}
	return distance(t, now) + " ago"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return fmt.Sprintf(many, n)
}

// distance words the gap between earlier and later.
func distance(earlier, later time.Time) string {
	seconds := math.Trunc(later.Sub(earlier).Seconds())
	minutes := int(math.Round(seconds / 60))

	switch {
	case minutes == 0:
		return "less than a minute"
	case minutes < 45:
		return plural(minutes, "1 minute", "%d minutes")
	case minutes < 90:
		return "about 1 hour"
	case minutes < minutesInDay:
		return plural(int(math.Round(float64(minutes)/60)), "about 1 hour", "about %d hours")
	case minutes < 2520:
		return "1 day"
	case minutes < minutesInMonth:
		return plural(int(math.Round(float64(minutes)/minutesInDay)), "1 day", "%d days")
	case minutes < minutesInTwoMonths:
		return plural(int(math.Round(float64(minutes)/minutesInMonth)), "about 1 month", "about %d months")
	}

	months := monthsBetween(earlier, later)
	if months < 12 {
		return plural(int(math.Round(float64(minutes)/minutesInMonth)), "1 month", "%d months")
	}

	years := months / 12
	switch rem := months % 12; {
	case rem < 3:
		return plural(years, "about 1 year", "about %d years")
	case rem < 9:
		return plural(years, "over 1 year", "over %d years")
	default:
		return fmt.Sprintf("almost %d years", years+1)
	}
}

// monthsBetween counts the full calendar months from earlier to later.
func monthsBetween(earlier, later time.Time) int {
	later = later.In(earlier.Location())
	months := (later.Year()-earlier.Year())*12 + int(later.Month()-earlier.Month())
	if months > 0 && earlier.AddDate(0, months, 0).After(later) {
		months--
	}
	return months
}
