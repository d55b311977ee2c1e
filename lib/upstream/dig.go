package upstream

import (
	"fmt"
	"strings"
)

func formatPath(path []any) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, ".")
}

// Dig walks decoded JSON along `path`, where string elements index objects and
// int elements index arrays. A missing step is a *FormatError naming the path.
func Dig(value any, path ...any) (any, error) {
	current := value
	for i, step := range path {
		switch key := step.(type) {
		case string:
			obj, ok := current.(map[string]any)
			if !ok {
				return nil, Formatf("expected object at %s", formatPath(path[:i]))
			}
			next, ok := obj[key]
			if !ok {
				return nil, Formatf("missing key %s", formatPath(path[:i+1]))
			}
			current = next
		case int:
			list, ok := current.([]any)
			if !ok {
				return nil, Formatf("expected array at %s", formatPath(path[:i]))
			}
			if key < 0 || key >= len(list) {
				return nil, Formatf("index out of range at %s", formatPath(path[:i+1]))
			}
			current = list[key]
		default:
			panic(fmt.Sprintf("invalid path element %T", step))
		}
	}
	return current, nil
}

// DigAs is Dig with a type assertion on the result.
func DigAs[T any](value any, path ...any) (T, error) {
	var out T
	found, err := Dig(value, path...)
	if err != nil {
		return out, err
	}
	out, ok := found.(T)
	if !ok {
		return out, Formatf("unexpected %T at %s", found, formatPath(path))
	}
	return out, nil
}
