package helpers

import (
	"strings"
	"time"
)

// DayMonthYearLayouts accept user-typed dates such as 31.12.2000 or 1.2.2000.
var DayMonthYearLayouts = []string{
	"02.01.2006",
	"2.1.2006",
}

// ISODateLayouts accept machine dates such as 2000-12-31.
var ISODateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
}

// ParseDate tries each layout in order and returns the date at midnight UTC.
// With no layouts given, day.month.year forms are tried.
func ParseDate(input string, layouts ...string) (time.Time, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, false
	}
	if len(layouts) == 0 {
		layouts = DayMonthYearLayouts
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
