package record

import (
	"baypd-scraper/lib/upstream"
	"fmt"
	"time"
)

// Validate checks a record against the Unified County Record schema: required
// fields, ISO dates in strictly ascending order, canonical race and ethnicity
// labels and complete gender breakdowns.
func Validate(c County) error {
	if c.Name == "" {
		return upstream.Formatf("record has no name")
	}
	if c.SourceURL == "" {
		return upstream.Formatf("record has no source_url")
	}
	if _, err := time.Parse(time.RFC3339, c.UpdateTime); err != nil {
		return upstream.Formatf("update_time %q is not an ISO-8601 datetime with timezone", c.UpdateTime)
	}

	if err := validateDates("cases", c.Series.Cases); err != nil {
		return err
	}
	if err := validateDates("deaths", c.Series.Deaths); err != nil {
		return err
	}
	if err := validateDates("tests", c.Series.Tests); err != nil {
		return err
	}

	if err := validateTotals("case_totals", c.CaseTotals); err != nil {
		return err
	}
	if err := validateTotals("death_totals", c.DeathTotals); err != nil {
		return err
	}
	return nil
}

func validateDates[E dated](name string, entries []E) error {
	for i, e := range entries {
		date := e.EntryDate()
		if _, err := date.Time(); err != nil {
			return upstream.Formatf("series.%s[%d]: date %q is not an ISO date", name, i, date)
		}
		if i > 0 && entries[i-1].EntryDate() >= date {
			return upstream.Formatf(
				"series.%s[%d]: date %s does not come after %s",
				name, i, date, entries[i-1].EntryDate(),
			)
		}
	}
	return nil
}

func validateTotals(name string, totals Totals) error {
	for label := range totals.RaceEth {
		if !IsRaceEthLabel(label) {
			return upstream.Formatf("%s.race_eth: %q is not a canonical label", name, label)
		}
	}
	for label := range totals.Ethnicity {
		if !IsRaceEthLabel(label) {
			return upstream.Formatf("%s.ethnicity: %q is not a canonical label", name, label)
		}
	}
	if totals.Gender != nil {
		if err := RequireGender(totals.Gender, name); err != nil {
			return err
		}
	}
	for i, group := range totals.AgeGroup {
		if group.Group == "" {
			return fmt.Errorf("%s.age_group[%d]: %w", name, i, upstream.Formatf("empty group"))
		}
	}
	return nil
}
