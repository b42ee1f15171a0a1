package resolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveToday(t *testing.T) {
	r := NewResolver(time.UTC)
	now := time.Date(2022, 10, 18, 14, 30, 0, 0, time.UTC)
	resolved, err := r.Resolve("https://upstream.example.com/data?start-date={today}&end-date={today}", now)
	require.NoError(t, err)
	require.Equal(t, "https://upstream.example.com/data?start-date=2022-10-18&end-date=2022-10-18", resolved)
}

func TestResolveDaysAgo(t *testing.T) {
	r := NewResolver(time.UTC)
	now := time.Date(2022, 10, 18, 14, 30, 0, 0, time.UTC)
	resolved, err := r.Resolve("https://upstream.example.com/data?start-date={7daysago}&end-date={1daysago}", now)
	require.NoError(t, err)
	require.Equal(t, "https://upstream.example.com/data?start-date=2022-10-11&end-date=2022-10-17", resolved)
}

func TestResolveCrossesMonthBoundary(t *testing.T) {
	r := NewResolver(time.UTC)
	now := time.Date(2022, 3, 2, 1, 0, 0, 0, time.UTC)
	resolved, err := r.Resolve("start-date={5daysago}", now)
	require.NoError(t, err)
	require.Equal(t, "start-date=2022-02-25", resolved)
}

func TestResolveIsDeterministicAcrossCalendarDay(t *testing.T) {
	r := NewResolver(time.UTC)
	template := "start-date={3daysago}&end-date={today}"
	earlyMorning := time.Date(2022, 10, 18, 0, 1, 0, 0, time.UTC)
	lateNight := time.Date(2022, 10, 18, 23, 59, 0, 0, time.UTC)
	resolvedEarly, err := r.Resolve(template, earlyMorning)
	require.NoError(t, err)
	resolvedLate, err := r.Resolve(template, lateNight)
	require.NoError(t, err)
	require.Equal(t, resolvedEarly, resolvedLate)
}

func TestResolveUsesConfiguredTimezone(t *testing.T) {
	losAngeles, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	r := NewResolver(losAngeles)
	// 02:00 UTC on Oct 19 is still Oct 18 in Los Angeles
	now := time.Date(2022, 10, 19, 2, 0, 0, 0, time.UTC)
	resolved, err := r.Resolve("end-date={today}", now)
	require.NoError(t, err)
	require.Equal(t, "end-date=2022-10-18", resolved)
}

func TestResolveNilLocationDefaultsToUTC(t *testing.T) {
	r := NewResolver(nil)
	now := time.Date(2022, 10, 18, 12, 0, 0, 0, time.UTC)
	resolved, err := r.Resolve("{today}", now)
	require.NoError(t, err)
	require.Equal(t, "2022-10-18", resolved)
}

func TestResolveMalformedPlaceholder(t *testing.T) {
	r := NewResolver(time.UTC)
	now := time.Date(2022, 10, 18, 12, 0, 0, 0, time.UTC)
	for _, template := range []string{
		"start-date={yesterday}",
		"start-date={daysago}",
		"start-date={-1daysago}",
		"start-date={7daysback}",
		"start-date={}",
	} {
		_, err := r.Resolve(template, now)
		var templateErr *TemplateError
		require.ErrorAs(t, err, &templateErr, "expected a TemplateError for %#v", template)
	}
}

func TestResolveStrayBrace(t *testing.T) {
	r := NewResolver(time.UTC)
	now := time.Date(2022, 10, 18, 12, 0, 0, 0, time.UTC)
	_, err := r.Resolve("start-date={today}&end-date=}", now)
	var templateErr *TemplateError
	require.ErrorAs(t, err, &templateErr)
}

func TestResolveNoPlaceholders(t *testing.T) {
	r := NewResolver(time.UTC)
	now := time.Date(2022, 10, 18, 12, 0, 0, 0, time.UTC)
	resolved, err := r.Resolve("https://upstream.example.com/data?start-date=2022-01-01", now)
	require.NoError(t, err)
	require.Equal(t, "https://upstream.example.com/data?start-date=2022-01-01", resolved)
}

func TestValidateTemplate(t *testing.T) {
	r := NewResolver(time.UTC)
	require.NoError(t, r.ValidateTemplate("https://upstream.example.com/data?start-date={30daysago}&end-date={today}"))
	require.Error(t, r.ValidateTemplate("https://upstream.example.com/data?start-date={lastweek}"))
}
