package news

import (
	"baypd-scraper/internal/components/chrono"
	"baypd-scraper/lib/upstream"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const report_news_items = "news.items"

var errNoURL = upstream.Formatf("no url found for news item")

var usShortDate = regexp.MustCompile(`^\s*\d+/\d+/\d+\s*$`)

// plausibleYears is how far a parsed date may be from the current year.
const plausibleYears = 5

func yearsApart(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// ParseDatetime parses a free-form date, placing it in the clock's location
// when the text names no zone. Truncated years ("6/1/202") are completed and
// a date a century off is moved into this one. Dates more than five years
// from the clock's year are rejected.
func ParseDatetime(value string, clock chrono.API) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty date")
	}
	if usShortDate.MatchString(value) && strings.HasSuffix(value, "/202") {
		value += "0"
	}

	parsed, err := dateparse.ParseIn(value, clock.Location())
	if err != nil {
		return time.Time{}, upstream.Formatf("unknown date format %q: %v", value, err)
	}

	current := clock.Now().Year()
	if yearsApart(current, parsed.Year()) > plausibleYears {
		shifted := parsed.AddDate(100, 0, 0)
		if yearsApart(current, shifted.Year()) > plausibleYears {
			return time.Time{}, upstream.Formatf("unknown date format %q", value)
		}
		parsed = shifted
	}
	return parsed, nil
}
