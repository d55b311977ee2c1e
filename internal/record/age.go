package record

import (
	"math"
	"regexp"
	"sort"
	"strconv"
)

var leadingNumber = regexp.MustCompile(`^\D*?(\d+)`)

func ageKey(group string) int {
	match := leadingNumber.FindStringSubmatch(group)
	if match == nil {
		return math.MaxInt
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return math.MaxInt
	}
	return n
}

// SortAgeGroups orders groups by the first age in their label ("0-9" before
// "10-19"). Groups without a number, like "Unknown", go last.
func SortAgeGroups(groups []AgeGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		return ageKey(groups[i].Group) < ageKey(groups[j].Group)
	})
}
