package upstream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDig(t *testing.T) {
	var doc any
	require.NoError(t, json.Unmarshal([]byte(`{"results":[{"result":{"data":{"rows":[1,2,3]}}}]}`), &doc))

	rows, err := DigAs[[]any](doc, "results", 0, "result", "data", "rows")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	_, err = Dig(doc, "results", 1, "result")
	require.True(t, IsFormatError(err))
	require.EqualError(t, err, "format error: index out of range at results.1")

	_, err = Dig(doc, "results", 0, "missing")
	require.EqualError(t, err, "format error: missing key results.0.missing")

	_, err = DigAs[string](doc, "results", 0, "result")
	require.True(t, IsFormatError(err))
}
