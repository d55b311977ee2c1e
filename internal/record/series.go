package record

import (
	"baypd-scraper/lib/upstream"
	"fmt"
	"sort"
)

type dated interface {
	EntryDate() Date
}

// SortByDate sorts entries ascending by date, keeping the order of equal dates.
func SortByDate[E dated](entries []E) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].EntryDate() < entries[j].EntryDate()
	})
}

// accumulate fills cumul from a running sum of daily, starting at base.
// An Unknown daily value leaves the cumulative Unknown from then on.
func accumulate[E any](entries []E, base int, daily func(*E) *int, cumul func(*E) *int) {
	total := base
	for i := range entries {
		d := *daily(&entries[i])
		if d == Unknown || total == Unknown {
			total = Unknown
		} else {
			total += d
		}
		*cumul(&entries[i]) = total
	}
}

// difference fills daily with the first difference of cumul, 0 on the first day.
func difference[E any](entries []E, cumul func(*E) *int, daily func(*E) *int) {
	for i := range entries {
		if i == 0 {
			*daily(&entries[i]) = 0
			continue
		}
		prev, cur := *cumul(&entries[i-1]), *cumul(&entries[i])
		if prev == Unknown || cur == Unknown {
			*daily(&entries[i]) = Unknown
			continue
		}
		*daily(&entries[i]) = cur - prev
	}
}

func casesOf(e *CaseEntry) *int { return &e.Cases }
func cumulCasesOf(e *CaseEntry) *int { return &e.CumulCases }
func deathsOf(e *DeathEntry) *int { return &e.Deaths }
func cumulDeathsOf(e *DeathEntry) *int { return &e.CumulDeaths }

// AccumulateCases derives cumulative cases from daily cases.
func AccumulateCases(entries []CaseEntry) {
	accumulate(entries, 0, casesOf, cumulCasesOf)
}

// AccumulateDeaths derives cumulative deaths from daily deaths.
func AccumulateDeaths(entries []DeathEntry) {
	accumulate(entries, 0, deathsOf, cumulDeathsOf)
}

// DifferenceCases derives daily cases from cumulative cases, with 0 on the first day.
func DifferenceCases(entries []CaseEntry) {
	difference(entries, cumulCasesOf, casesOf)
}

// DifferenceDeaths derives daily deaths from cumulative deaths, with 0 on the first day.
func DifferenceDeaths(entries []DeathEntry) {
	difference(entries, cumulDeathsOf, deathsOf)
}

// AccumulateTests derives every cumulative test column from its daily column.
func AccumulateTests(entries []TestEntry) {
	accumulate(entries, 0, func(e *TestEntry) *int { return &e.Tests }, func(e *TestEntry) *int { return &e.CumulTests })
	accumulate(entries, 0, func(e *TestEntry) *int { return &e.Positive }, func(e *TestEntry) *int { return &e.CumulPos })
	accumulate(entries, 0, func(e *TestEntry) *int { return &e.Negative }, func(e *TestEntry) *int { return &e.CumulNeg })
	accumulate(entries, 0, func(e *TestEntry) *int { return &e.Pending }, func(e *TestEntry) *int { return &e.CumulPend })
}

// DifferenceTests derives daily total tests from cumulative total tests.
func DifferenceTests(entries []TestEntry) {
	difference(entries, func(e *TestEntry) *int { return &e.CumulTests }, func(e *TestEntry) *int { return &e.Tests })
}

// Joined is one date of a daily series joined with its cumulative series.
type Joined struct {
	Date  Date
	Daily int
	Cumul int
}

// JoinDailyCumulative joins two series keyed by date. The key sets must be
// identical. The result is sorted by date.
func JoinDailyCumulative(daily, cumul map[Date]int) ([]Joined, error) {
	dailyKeys := make([]string, 0, len(daily))
	for d := range daily {
		dailyKeys = append(dailyKeys, string(d))
	}
	cumulKeys := make([]string, 0, len(cumul))
	for d := range cumul {
		cumulKeys = append(cumulKeys, string(d))
	}
	if err := AssertEqualSets(dailyKeys, cumulKeys, "daily and cumulative dates"); err != nil {
		return nil, err
	}

	joined := make([]Joined, 0, len(daily))
	for d, value := range daily {
		joined = append(joined, Joined{Date: d, Daily: value, Cumul: cumul[d]})
	}
	sort.Slice(joined, func(i, j int) bool { return joined[i].Date < joined[j].Date })
	return joined, nil
}

// EstimatePositive splits a test count into positives and negatives from a
// positivity rate given in percent.
func EstimatePositive(tests int, ratePercent float64) (positive, negative int) {
	_, positive, negative = EstimateFromTotal(float64(tests), ratePercent)
	return positive, negative
}

// EstimateFromTotal is EstimatePositive for a fractional test total, such as
// a rolling average. Only the outputs are rounded.
func EstimateFromTotal(total float64, ratePercent float64) (tests, positive, negative int) {
	tests = RoundHalfUp(total)
	positive = RoundHalfUp(total * ratePercent / 100)
	return tests, positive, tests - positive
}

type cumulativePair[E any] struct {
	name  string
	daily func(*E) *int
	cumul func(*E) *int
}

func checkPairs[E dated](entries []E, pairs []cumulativePair[E]) error {
	for i := 1; i < len(entries); i++ {
		prev, cur := &entries[i-1], &entries[i]
		for _, p := range pairs {
			d, c, pc := *p.daily(cur), *p.cumul(cur), *p.cumul(prev)
			if d == Unknown || c == Unknown || pc == Unknown {
				continue
			}
			if c != pc+d {
				return upstream.Formatf(
					"%s on %s: cumulative %d does not equal %d + %d",
					p.name, (*cur).EntryDate(), c, pc, d,
				)
			}
		}
	}
	return nil
}

// CheckCumulative verifies cumul[i] == cumul[i-1] + daily[i] for every series
// column pair where both values are known.
func CheckCumulative(series Series) error {
	err := checkPairs(series.Cases, []cumulativePair[CaseEntry]{
		{"cases", casesOf, cumulCasesOf},
	})
	if err != nil {
		return fmt.Errorf("cases: %w", err)
	}
	err = checkPairs(series.Deaths, []cumulativePair[DeathEntry]{
		{"deaths", deathsOf, cumulDeathsOf},
	})
	if err != nil {
		return fmt.Errorf("deaths: %w", err)
	}
	err = checkPairs(series.Tests, []cumulativePair[TestEntry]{
		{"tests", func(e *TestEntry) *int { return &e.Tests }, func(e *TestEntry) *int { return &e.CumulTests }},
		{"positive", func(e *TestEntry) *int { return &e.Positive }, func(e *TestEntry) *int { return &e.CumulPos }},
		{"negative", func(e *TestEntry) *int { return &e.Negative }, func(e *TestEntry) *int { return &e.CumulNeg }},
		{"pending", func(e *TestEntry) *int { return &e.Pending }, func(e *TestEntry) *int { return &e.CumulPend }},
	})
	if err != nil {
		return fmt.Errorf("tests: %w", err)
	}
	return nil
}
