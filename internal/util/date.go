package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"2/1/2006",
	"02.01.2006",
	"2 January 2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2006",
	"Jan 2006",
	"2006-01",
	"2006 Jan",
	"2006 Jan 2",
	"01-02-06",
	time.RFC3339,
}

// ParseDate parses a publication date as typed into the extraction form. A bare
// year and an Excel serial day number are accepted alongside the usual layouts.
func ParseDate(input string) (*time.Time, error) {
	value := NormalizeSpaces(input)
	if IsMissing(value) {
		return nil, nil
	}

	if len(value) == 4 {
		if year, err := strconv.Atoi(value); err == nil && year > 1800 && year < 2200 {
			t := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
			return &t, nil
		}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}

	if serial, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && serial > 20000 && serial < 80000 {
		t := time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC).AddDate(0, 0, int(serial))
		return &t, nil
	}

	return nil, fmt.Errorf("unparseable date %q", input)
}
