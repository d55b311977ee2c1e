// Package record defines the Unified County Record every county adapter produces,
// along with the helpers adapters share to fill it in.
package record

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Unknown marks a numeric field the county does not publish.
const Unknown = -1

// Date is a calendar date formatted YYYY-MM-DD. ISO dates compare correctly as strings.
type Date string

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	return Date(t.Format(time.DateOnly))
}

// ParseDate parses value with layout into a Date.
func ParseDate(layout, value string) (Date, error) {
	t, err := time.Parse(layout, value)
	if err != nil {
		return "", err
	}
	return DateOf(t), nil
}

// DateFromEpochMillis converts a unix timestamp in milliseconds to the calendar date in loc.
func DateFromEpochMillis(ms int64, loc *time.Location) Date {
	return DateOf(time.UnixMilli(ms).In(loc))
}

// Time returns the date as midnight UTC.
func (d Date) Time() (time.Time, error) {
	return time.Parse(time.DateOnly, string(d))
}

func (d Date) String() string {
	return string(d)
}

// FormatTime formats an update time as ISO-8601 with a timezone.
func FormatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

type CaseEntry struct {
	Date       Date `json:"date"`
	Cases      int  `json:"cases"`
	CumulCases int  `json:"cumul_cases"`
}

type DeathEntry struct {
	Date        Date `json:"date"`
	Deaths      int  `json:"deaths"`
	CumulDeaths int  `json:"cumul_deaths"`
}

type TestEntry struct {
	Date       Date `json:"date"`
	Tests      int  `json:"tests"`
	Positive   int  `json:"positive"`
	Negative   int  `json:"negative"`
	Pending    int  `json:"pending"`
	CumulTests int  `json:"cumul_tests"`
	CumulPos   int  `json:"cumul_pos"`
	CumulNeg   int  `json:"cumul_neg"`
	CumulPend  int  `json:"cumul_pend"`
	// Positivity is the published positivity rate in percent, when tests are
	// estimated from it.
	Positivity *float64 `json:"positivity,omitempty"`
}

// NewCaseEntry returns an entry with every count Unknown.
func NewCaseEntry(date Date) CaseEntry {
	return CaseEntry{Date: date, Cases: Unknown, CumulCases: Unknown}
}

// NewDeathEntry returns an entry with every count Unknown.
func NewDeathEntry(date Date) DeathEntry {
	return DeathEntry{Date: date, Deaths: Unknown, CumulDeaths: Unknown}
}

// NewTestEntry returns an entry with every count Unknown.
func NewTestEntry(date Date) TestEntry {
	return TestEntry{
		Date:       date,
		Tests:      Unknown,
		Positive:   Unknown,
		Negative:   Unknown,
		Pending:    Unknown,
		CumulTests: Unknown,
		CumulPos:   Unknown,
		CumulNeg:   Unknown,
		CumulPend:  Unknown,
	}
}

func (e CaseEntry) EntryDate() Date { return e.Date }
func (e DeathEntry) EntryDate() Date { return e.Date }
func (e TestEntry) EntryDate() Date { return e.Date }

type Series struct {
	Cases  []CaseEntry  `json:"cases"`
	Deaths []DeathEntry `json:"deaths"`
	Tests  []TestEntry  `json:"tests"`
}

type AgeGroup struct {
	Group    string `json:"group"`
	RawCount Count  `json:"raw_count"`
}

// Totals is a cumulative demographic breakdown of cases or deaths. Sections a
// county does not publish are left nil.
type Totals struct {
	Gender              map[string]Count `json:"gender,omitempty"`
	AgeGroup            []AgeGroup       `json:"age_group,omitempty"`
	RaceEth             map[string]Count `json:"race_eth,omitempty"`
	Ethnicity           map[string]Count `json:"ethnicity,omitempty"`
	TransmissionCat     map[string]Count `json:"transmission_cat,omitempty"`
	TransmissionCatOrig map[string]Count `json:"transmission_cat_orig,omitempty"`
	UnderlyingCond      map[string]Count `json:"underlying_cond,omitempty"`
}

type TestTotals struct {
	Tests map[string]Count `json:"tests"`
}

// County is the Unified County Record.
type County struct {
	Name           string      `json:"name"`
	UpdateTime     string      `json:"update_time"`
	SourceURL      string      `json:"source_url"`
	MetaFromSource string      `json:"meta_from_source"`
	MetaFromBaypd  string      `json:"meta_from_baypd"`
	Series         Series      `json:"series"`
	CaseTotals     Totals      `json:"case_totals"`
	DeathTotals    Totals      `json:"death_totals"`
	TestTotals     *TestTotals `json:"tests_totals,omitempty"`
}

// AppendNotes adds notes to MetaFromBaypd, separated by blank lines.
func (c *County) AppendNotes(notes ...string) {
	for _, note := range notes {
		if note == "" {
			continue
		}
		if c.MetaFromBaypd != "" {
			c.MetaFromBaypd += "\n\n"
		}
		c.MetaFromBaypd += note
	}
}

// PlaceholderFields lists the totals holding a suppressed value, as dotted
// paths like "case_totals.race_eth.Other", sorted.
func (c County) PlaceholderFields() []string {
	var out []string
	c.CaseTotals.placeholders("case_totals", &out)
	c.DeathTotals.placeholders("death_totals", &out)
	if c.TestTotals != nil {
		collectPlaceholders("tests_totals.tests", c.TestTotals.Tests, &out)
	}
	sort.Strings(out)
	return out
}

// NotePlaceholders appends a note naming every suppressed total, if any.
func (c *County) NotePlaceholders() {
	fields := c.PlaceholderFields()
	if len(fields) == 0 {
		return
	}
	c.AppendNotes(fmt.Sprintf(
		"Some counts are suppressed by the county and are reported as published: %s.",
		strings.Join(fields, ", "),
	))
}

func (t Totals) placeholders(prefix string, out *[]string) {
	collectPlaceholders(prefix+".gender", t.Gender, out)
	collectPlaceholders(prefix+".race_eth", t.RaceEth, out)
	collectPlaceholders(prefix+".ethnicity", t.Ethnicity, out)
	collectPlaceholders(prefix+".transmission_cat", t.TransmissionCat, out)
	collectPlaceholders(prefix+".transmission_cat_orig", t.TransmissionCatOrig, out)
	collectPlaceholders(prefix+".underlying_cond", t.UnderlyingCond, out)
	for _, group := range t.AgeGroup {
		if group.RawCount.IsPlaceholder() {
			*out = append(*out, fmt.Sprintf("%s.age_group.%s (%s)", prefix, group.Group, group.RawCount))
		}
	}
}

func collectPlaceholders(prefix string, counts map[string]Count, out *[]string) {
	for label, count := range counts {
		if count.IsPlaceholder() {
			*out = append(*out, fmt.Sprintf("%s.%s (%s)", prefix, label, count))
		}
	}
}
