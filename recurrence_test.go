package finledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustUTC(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04:05Z", s)
	if err != nil {
		panic(err)
	}
	return t
}

// S2 from spec.md §8.
func TestNextOccurrenceOneShot(t *testing.T) {
	start := mustUTC("2020-01-01T00:00:00Z")

	next, err := NextOccurrence("", start, nil)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.True(t, next.Equal(start))

	next, err = NextOccurrence("", start, &start)
	require.NoError(t, err)
	assert.Nil(t, next)
}

// S3 from spec.md §8.
func TestNextOccurrenceMonthlyRent(t *testing.T) {
	start := mustUTC("2020-01-15T00:00:00Z")
	rangeEnd := mustUTC("2020-04-30T00:00:00Z")

	var got []time.Time
	var previous *time.Time
	for len(got) < 12 {
		next, err := NextOccurrence("freq=MONTHLY;interval=1", start, previous)
		require.NoError(t, err)
		if next == nil || next.After(rangeEnd) {
			break
		}
		got = append(got, *next)
		previous = next
	}

	want := []time.Time{
		mustUTC("2020-01-15T00:00:00Z"),
		mustUTC("2020-02-15T00:00:00Z"),
		mustUTC("2020-03-15T00:00:00Z"),
		mustUTC("2020-04-15T00:00:00Z"),
	}
	require.Len(t, got, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(got[i]), "index %d: want %v got %v", i, want[i], got[i])
	}
}

// Universal property 3: monotonicity.
func TestNextOccurrenceMonotonic(t *testing.T) {
	start := mustUTC("2020-01-01T00:00:00Z")
	var previous *time.Time
	var last time.Time
	for i := 0; i < 20; i++ {
		next, err := NextOccurrence("freq=WEEKLY;interval=2", start, previous)
		require.NoError(t, err)
		require.NotNil(t, next)
		if i > 0 {
			assert.True(t, next.After(last), "occurrence %d did not increase", i)
		}
		last = *next
		previous = next
	}
}

func TestNextOccurrenceFirstFridayOfMonth(t *testing.T) {
	start := mustUTC("2021-01-01T00:00:00Z")
	next, err := NextOccurrence("freq=MONTHLY;byweekday=1FR", start, nil)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, time.Friday, next.Weekday())
	assert.LessOrEqual(t, next.Day(), 7)
}

func TestNextOccurrenceMalformedRuleDegradesGracefully(t *testing.T) {
	start := mustUTC("2020-01-01T00:00:00Z")
	next, err := NextOccurrence("freq=NOT_A_FREQ", start, nil)
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestNextOccurrenceUntilInclusive(t *testing.T) {
	start := mustUTC("2020-01-01T00:00:00Z")
	rule := "freq=DAILY;interval=1;until=2020-01-03T00:00:00Z"

	d1, err := NextOccurrence(rule, start, nil)
	require.NoError(t, err)
	require.NotNil(t, d1)
	d2, err := NextOccurrence(rule, start, d1)
	require.NoError(t, err)
	require.NotNil(t, d2)
	d3, err := NextOccurrence(rule, start, d2)
	require.NoError(t, err)
	require.NotNil(t, d3)
	assert.True(t, d3.Equal(mustUTC("2020-01-03T00:00:00Z")))

	d4, err := NextOccurrence(rule, start, d3)
	require.NoError(t, err)
	assert.Nil(t, d4)
}
