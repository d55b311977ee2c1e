package chrono

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMidnightIn(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	cases := []struct {
		in     time.Time
		expect time.Time
	}{
		{
			in:     time.Date(2020, time.July, 4, 15, 30, 0, 0, la),
			expect: time.Date(2020, time.July, 4, 0, 0, 0, 0, la),
		},
		{
			in:     time.Date(2021, time.January, 1, 0, 0, 0, 0, time.UTC),
			expect: time.Date(2021, time.January, 1, 0, 0, 0, 0, la),
		},
	}

	for _, test := range cases {
		require.Equal(t, test.expect, MidnightIn(test.in, la))
	}
}

func TestStandardImplUsesLocation(t *testing.T) {
	clock, err := NewStandardImpl()
	require.NoError(t, err)
	require.Equal(t, "America/Los_Angeles", clock.Location().String())
	require.Equal(t, clock.Location(), clock.Now().Location())
}
