package powerbi

import "fmt"

// Column is a column reference expression.
func Column(source, property string) map[string]any {
	return map[string]any{
		"Expression": map[string]any{
			"SourceRef": map[string]any{"Source": source},
		},
		"Property": property,
	}
}

// ColumnSelect selects a column of `entity` as-is.
func ColumnSelect(source, entity, property string) map[string]any {
	return map[string]any{
		"Column": Column(source, property),
		"Name":   fmt.Sprintf("%s.%s", entity, property),
	}
}

// Aggregation selects an aggregated column, `function` only names the
// selection (ex. CountNotNull, Sum) and does not change the aggregation code.
func Aggregation(source, entity, function, property string) map[string]any {
	return map[string]any{
		"Aggregation": map[string]any{
			"Expression": map[string]any{"Column": Column(source, property)},
			"Function":   0,
		},
		"Name": fmt.Sprintf("%s(%s.%s)", function, entity, property),
	}
}

// Measure selects a measure defined in the report.
func Measure(source, entity, property string) map[string]any {
	return map[string]any{
		"Measure": map[string]any{
			"Expression": map[string]any{
				"SourceRef": map[string]any{"Source": source},
			},
			"Property": property,
		},
		"Name": fmt.Sprintf("%s.%s", entity, property),
	}
}

func projections(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func binding(columns int, primary map[string]any) map[string]any {
	return map[string]any{
		"Primary": map[string]any{
			"Groupings": []any{
				map[string]any{"Projections": projections(columns)},
			},
		},
		"DataReduction": map[string]any{
			"DataVolume": 4,
			"Primary":    primary,
		},
		"Version": 1,
	}
}

// WindowBinding returns up to `count` rows of `columns` projections.
func WindowBinding(columns, count int) map[string]any {
	return binding(columns, map[string]any{
		"Window": map[string]any{"Count": count},
	})
}

// BinnedLineSampleBinding is the binding line charts use.
func BinnedLineSampleBinding(columns int) map[string]any {
	return binding(columns, map[string]any{
		"BinnedLineSample": map[string]any{},
	})
}

func SampleBinding(columns int) map[string]any {
	return binding(columns, map[string]any{
		"Sample": map[string]any{},
	})
}

// OrderBy sorts ascending by a column.
func OrderBy(source, property string) []any {
	return []any{
		map[string]any{
			"Direction":  1,
			"Expression": map[string]any{"Column": Column(source, property)},
		},
	}
}
