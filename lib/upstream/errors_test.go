package upstream

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	formatErr := fmt.Errorf("cases: %w", Formatf("unknown label %q", "Klingon"))
	require.True(t, IsFormatError(formatErr))
	require.False(t, IsBadRequest(formatErr))
	require.Equal(t, `cases: format error: unknown label "Klingon"`, formatErr.Error())

	badReq := fmt.Errorf("fetch: %w", &BadRequest{Status: 400, URL: "https://example.com", Message: "no such column"})
	require.True(t, IsBadRequest(badReq))
	require.False(t, IsFormatError(badReq))
	require.Equal(t, "fetch: bad request: 400 no such column (https://example.com)", badReq.Error())

	inline := &BadRequest{URL: "https://example.com", Message: "CKAN API Error: nope"}
	require.Equal(t, "bad request: CKAN API Error: nope (https://example.com)", inline.Error())
}
