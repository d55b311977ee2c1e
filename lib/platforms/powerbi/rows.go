package powerbi

import (
	"baypd-scraper/lib/upstream"
	"encoding/json"
	"fmt"
	"math/bits"
	"strconv"
)

// Row is a compressed row. When R is non-zero, bit k of it means column k
// repeats the previous row's value and C holds the remaining columns.
type Row struct {
	C []any
	R uint64
}

func rowFromJSON(obj map[string]any) (Row, error) {
	var row Row
	if c, ok := obj["C"]; ok {
		list, ok := c.([]any)
		if !ok {
			return row, upstream.Formatf("powerbi row C is %T", c)
		}
		row.C = list
	}
	if r, ok := obj["R"]; ok {
		mask, err := toUint(r)
		if err != nil {
			return row, upstream.Formatf("powerbi row R: %s", err)
		}
		row.R = mask
	}
	return row, nil
}

func toUint(v any) (uint64, error) {
	switch n := v.(type) {
	case json.Number:
		return strconv.ParseUint(n.String(), 10, 64)
	case float64:
		return uint64(n), nil
	case int:
		return uint64(n), nil
	case uint64:
		return n, nil
	}
	return 0, fmt.Errorf("unexpected %T", v)
}

// DecodeRows expands compressed rows into full rows. Positions flagged in R
// come from the previous row, C fills the rest in order, and columns past the
// end of C that the previous row has are carried over from it.
func DecodeRows(rows []Row) ([][]any, error) {
	out := make([][]any, 0, len(rows))
	var previous []any
	for i, row := range rows {
		width := len(row.C) + bits.OnesCount64(row.R)
		if len(previous) > width {
			width = len(previous)
		}

		decoded := make([]any, 0, width)
		next := 0
		for k := 0; k < width; k++ {
			repeated := k < 64 && row.R&(1<<uint(k)) != 0
			switch {
			case repeated:
				if k >= len(previous) {
					return nil, upstream.Formatf("powerbi row %d repeats column %d of a row that does not have it", i, k)
				}
				decoded = append(decoded, previous[k])
			case next < len(row.C):
				decoded = append(decoded, row.C[next])
				next++
			case k < len(previous):
				decoded = append(decoded, previous[k])
			}
		}
		out = append(out, decoded)
		previous = decoded
	}
	return out, nil
}

// EncodeRows compresses full rows the way the backend does, used to build fixtures.
func EncodeRows(rows [][]any) []Row {
	out := make([]Row, len(rows))
	var previous []any
	for i, row := range rows {
		var encoded Row
		for k, value := range row {
			if k < len(previous) && k < 64 && previous[k] == value {
				encoded.R |= 1 << uint(k)
				continue
			}
			encoded.C = append(encoded.C, value)
		}
		out[i] = encoded
		previous = row
	}
	return out
}

// CompleteRows keeps the rows that have exactly `width` columns, none of them null.
func CompleteRows(rows [][]any, width int) [][]any {
	out := make([][]any, 0, len(rows))
rows:
	for _, row := range rows {
		if len(row) != width {
			continue
		}
		for _, value := range row {
			if value == nil {
				continue rows
			}
		}
		out = append(out, row)
	}
	return out
}
