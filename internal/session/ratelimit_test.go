package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResetTimeSameDay(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 10, 15, 0, 0, 0, time.UTC)
	at, ok := ParseResetTime("usage limit reached|resets 7pm (UTC)", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, time.March, 10, 19, 0, 0, 0, time.UTC), at)
}

func TestParseResetTimeRollsToNextDay(t *testing.T) {
	t.Parallel()

	// 7pm has already passed, so the window ends at 7pm tomorrow.
	now := time.Date(2026, time.March, 10, 21, 0, 0, 0, time.UTC)
	at, ok := ParseResetTime("resets 7pm (UTC)", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, time.March, 11, 19, 0, 0, 0, time.UTC), at)
}

func TestParseResetTimeExactHourRollsForward(t *testing.T) {
	t.Parallel()

	// "strictly after now": at exactly 7pm the notice means tomorrow.
	now := time.Date(2026, time.March, 10, 19, 0, 0, 0, time.UTC)
	at, ok := ParseResetTime("resets 7pm (UTC)", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, time.March, 11, 19, 0, 0, 0, time.UTC), at)
}

func TestParseResetTimeMidnightAndNoon(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 10, 1, 0, 0, 0, time.UTC)
	at, ok := ParseResetTime("resets 12pm (UTC)", now)
	require.True(t, ok)
	assert.Equal(t, 12, at.Hour())

	at, ok = ParseResetTime("resets 12am (UTC)", now)
	require.True(t, ok)
	assert.Equal(t, 0, at.Hour())
	assert.Equal(t, 11, at.Day())
}

func TestParseResetTimeDatedForm(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	at, ok := ParseResetTime("resets Mar 15, 7pm (UTC)", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, time.March, 15, 19, 0, 0, 0, time.UTC), at)
}

func TestParseResetTimeDatedFormRollsToNextYear(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	at, ok := ParseResetTime("resets Jan 15, 7pm (UTC)", now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2027, time.January, 15, 19, 0, 0, 0, time.UTC), at)
}

func TestParseResetTimeNoMatch(t *testing.T) {
	t.Parallel()

	_, ok := ParseResetTime("everything is fine", time.Now())
	assert.False(t, ok)

	_, ok = ParseResetTime("resets sometime soon", time.Now())
	assert.False(t, ok)
}
