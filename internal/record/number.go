package record

import (
	"baypd-scraper/lib/upstream"
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Count is a published total. Most counts are plain integers, but some counties
// suppress small numbers behind a placeholder such as "<10", which is kept
// verbatim in Placeholder.
type Count struct {
	Value       int
	Placeholder string
}

// N returns an integer count.
func N(value int) Count {
	return Count{Value: value}
}

// Counts converts an integer map to a map of counts.
func Counts(values map[string]int) map[string]Count {
	out := make(map[string]Count, len(values))
	for k, v := range values {
		out[k] = N(v)
	}
	return out
}

// IsPlaceholder reports whether the count is a suppressed value.
func (c Count) IsPlaceholder() bool {
	return c.Placeholder != ""
}

// Add sums two counts. Suppressed values cannot be added.
func (c Count) Add(other Count) (Count, error) {
	if c.IsPlaceholder() || other.IsPlaceholder() {
		return Count{}, upstream.Formatf("cannot add suppressed count %q to %q", other, c)
	}
	return N(c.Value + other.Value), nil
}

func (c Count) String() string {
	if c.IsPlaceholder() {
		return c.Placeholder
	}
	return strconv.Itoa(c.Value)
}

func (c Count) MarshalJSON() ([]byte, error) {
	if c.IsPlaceholder() {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(c.Placeholder); err != nil {
			return nil, err
		}
		return bytes.TrimRight(buf.Bytes(), "\n"), nil
	}
	return []byte(strconv.Itoa(c.Value)), nil
}

func (c *Count) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(data, []byte(`"`)) {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		parsed, err := ParseCount(text)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}
	var value int
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*c = N(value)
	return nil
}

// ParseCount parses a count as printed on a dashboard. Thousands separators are
// removed, a lone dash means zero and values starting with "<" are kept as
// placeholders.
func ParseCount(text string) (Count, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "<") {
		return Count{Placeholder: text}, nil
	}
	if text == "-" {
		return N(0), nil
	}
	value, err := ParseInt(text)
	if err != nil {
		return Count{}, err
	}
	return N(value), nil
}

// ParseInt parses an integer with optional thousands separators.
func ParseInt(text string) (int, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	value, err := strconv.Atoi(cleaned)
	if err != nil {
		f, ferr := strconv.ParseFloat(cleaned, 64)
		if ferr != nil || f != math.Trunc(f) {
			return 0, upstream.Formatf("not an integer: %q", text)
		}
		return int(f), nil
	}
	return value, nil
}

// ToFloat coerces a decoded JSON value to float64. Large values sometimes
// arrive as strings.
func ToFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(v), ",", ""), 64)
		if err != nil {
			return 0, upstream.Formatf("not a number: %q", v)
		}
		return f, nil
	case nil:
		return 0, upstream.Formatf("unexpected null number")
	default:
		return 0, upstream.Formatf("unexpected %T where a number was expected", value)
	}
}

// ToInt coerces a decoded JSON value to int, truncating fractions.
func ToInt(value any) (int, error) {
	if n, ok := value.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return int(i), nil
		}
	}
	if s, ok := value.(string); ok {
		if i, err := ParseInt(s); err == nil {
			return i, nil
		}
	}
	f, err := ToFloat(value)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// IntOrUnknown is ToInt with null mapped to Unknown.
func IntOrUnknown(value any) (int, error) {
	if value == nil {
		return Unknown, nil
	}
	return ToInt(value)
}

// Field coerces row[key] to int, failing when the key is absent.
func Field(row map[string]any, key string) (int, error) {
	value, ok := row[key]
	if !ok {
		return 0, upstream.Formatf("missing field %q", key)
	}
	n, err := ToInt(value)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", key, err)
	}
	return n, nil
}

// CountOf coerces a decoded JSON value to a Count. Strings go through
// ParseCount so suppressed values survive.
func CountOf(value any) (Count, error) {
	if s, ok := value.(string); ok {
		return ParseCount(s)
	}
	n, err := ToInt(value)
	if err != nil {
		return Count{}, err
	}
	return N(n), nil
}

// CountOrUnknown is CountOf with null mapped to Unknown.
func CountOrUnknown(value any) (Count, error) {
	if value == nil {
		return N(Unknown), nil
	}
	return CountOf(value)
}

// CountField coerces row[key] to a Count, failing when the key is absent.
func CountField(row map[string]any, key string) (Count, error) {
	value, ok := row[key]
	if !ok {
		return Count{}, upstream.Formatf("missing field %q", key)
	}
	c, err := CountOf(value)
	if err != nil {
		return Count{}, fmt.Errorf("field %q: %w", key, err)
	}
	return c, nil
}

// RoundHalfUp rounds to the nearest integer, with halves rounded away from zero.
func RoundHalfUp(value float64) int {
	return int(math.Round(value))
}
