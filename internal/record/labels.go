package record

import (
	"baypd-scraper/lib/upstream"
	"slices"
	"sort"
	"strings"
)

const (
	LatinxOrHispanic = "Latinx_or_Hispanic"
	Asian            = "Asian"
	AfricanAmer      = "African_Amer"
	White            = "White"
	PacificIslander  = "Pacific_Islander"
	NativeAmer       = "Native_Amer"
	MultipleRace     = "Multiple_Race"
	Other            = "Other"
	UnknownRace      = "Unknown"
)

// RaceEthLabels is the canonical race and ethnicity label set.
var RaceEthLabels = []string{
	LatinxOrHispanic,
	Asian,
	AfricanAmer,
	White,
	PacificIslander,
	NativeAmer,
	MultipleRace,
	Other,
	UnknownRace,
}

// IsRaceEthLabel reports whether label is one of RaceEthLabels.
func IsRaceEthLabel(label string) bool {
	return slices.Contains(RaceEthLabels, label)
}

// NewRaceEth returns a race and ethnicity breakdown with every label Unknown.
func NewRaceEth() map[string]Count {
	out := make(map[string]Count, len(RaceEthLabels))
	for _, label := range RaceEthLabels {
		out[label] = N(Unknown)
	}
	return out
}

// NewGender returns a gender breakdown with male and female Unknown.
func NewGender() map[string]Count {
	return map[string]Count{"male": N(Unknown), "female": N(Unknown)}
}

// AssertEqualSets fails with a *FormatError when observed does not contain
// exactly the labels in expected. Duplicates in observed are ignored.
func AssertEqualSets(expected []string, observed []string, description string) error {
	want := make(map[string]bool, len(expected))
	for _, label := range expected {
		want[label] = true
	}
	got := make(map[string]bool, len(observed))
	for _, label := range observed {
		got[label] = true
	}

	var missing, extra []string
	for label := range want {
		if !got[label] {
			missing = append(missing, label)
		}
	}
	for label := range got {
		if !want[label] {
			extra = append(extra, label)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sort.Strings(missing)
	sort.Strings(extra)

	if description == "" {
		description = "labels"
	}
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing "+quoteAll(missing))
	}
	if len(extra) > 0 {
		parts = append(parts, "unexpected "+quoteAll(extra))
	}
	return upstream.Formatf("%s do not match: %s", description, strings.Join(parts, ", "))
}

// AssertKeys is AssertEqualSets over the keys of mapping.
func AssertKeys[V any](mapping map[string]V, observed []string, description string) error {
	expected := make([]string, 0, len(mapping))
	for k := range mapping {
		expected = append(expected, k)
	}
	return AssertEqualSets(expected, observed, description)
}

// RequireGender fails unless both male and female are present.
func RequireGender(gender map[string]Count, description string) error {
	_, male := gender["male"]
	_, female := gender["female"]
	if male && female {
		return nil
	}
	keys := make([]string, 0, len(gender))
	for k := range gender {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return upstream.Formatf("missing explicit male/female gender categories for %s, got: %s", description, quoteAll(keys))
}

func quoteAll(labels []string) string {
	quoted := make([]string, len(labels))
	for i, l := range labels {
		quoted[i] = "\"" + l + "\""
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// AssertKnown fails with a *FormatError when observed holds a label mapping
// has no entry for. Unlike AssertKeys, labels may be missing from observed.
func AssertKnown[V any](mapping map[string]V, observed []string, description string) error {
	var known []string
	for _, label := range observed {
		if _, ok := mapping[label]; ok {
			known = append(known, label)
		}
	}
	return AssertEqualSets(known, observed, description)
}
