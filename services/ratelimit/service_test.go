package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailgate/mailgate/internal/models"
)

type fakeLogCounter struct {
	sendTimes []time.Time
	err       error
}

func (f *fakeLogCounter) CountSince(_ context.Context, _ string, since time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	var count int64
	for _, t := range f.sendTimes {
		if !t.Before(since) {
			count++
		}
	}
	return count, nil
}

func testDomain(hourly, daily int) *models.Domain {
	return &models.Domain{
		ID:          "dom_test12345678",
		Domain:      "acme.example.com",
		HourlyLimit: hourly,
		DailyLimit:  daily,
	}
}

func repeatTimes(t time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = t
	}
	return out
}

func TestCheck_AllowsUnderBothLimits(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	counter := &fakeLogCounter{sendTimes: repeatTimes(now.Add(-10*time.Minute), 3)}
	svc := NewService(counter)

	result, err := svc.Check(context.Background(), testDomain(10, 100), now)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Empty(t, result.Reason)
	assert.Equal(t, int64(7), result.HourlyRemaining)
	assert.Equal(t, int64(97), result.DailyRemaining)
}

func TestCheck_DeniesWhenHourlyLimitReached(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	counter := &fakeLogCounter{sendTimes: repeatTimes(now.Add(-5*time.Minute), 5)}
	svc := NewService(counter)

	result, err := svc.Check(context.Background(), testDomain(5, 1000), now)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, ReasonHourlyLimitExceeded, result.Reason)
	assert.Equal(t, 5, result.Limit)
	assert.Equal(t, int64(5), result.Current)
}

func TestCheck_HourlyWindowIsTrailing(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	// All sends happened earlier today but more than an hour ago, so the
	// hourly window is clear while the daily count is at the limit.
	counter := &fakeLogCounter{sendTimes: repeatTimes(now.Add(-2*time.Hour), 5)}
	svc := NewService(counter)

	result, err := svc.Check(context.Background(), testDomain(5, 5), now)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, ReasonDailyLimitExceeded, result.Reason)
	assert.Equal(t, 5, result.Limit)
}

func TestCheck_DailyWindowResetsAtUTCMidnight(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 30, 0, 0, time.UTC)
	// Yesterday's sends fall outside the daily window but the most recent
	// one is still inside the trailing hour.
	counter := &fakeLogCounter{sendTimes: repeatTimes(now.Add(-40*time.Minute), 3)}
	svc := NewService(counter)

	result, err := svc.Check(context.Background(), testDomain(100, 3), now)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, int64(3), result.DailyRemaining)
}

func TestCheck_HourlyEvaluatedBeforeDaily(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)
	counter := &fakeLogCounter{sendTimes: repeatTimes(now.Add(-time.Minute), 10)}
	svc := NewService(counter)

	// Both windows are exhausted; the hourly reason wins.
	result, err := svc.Check(context.Background(), testDomain(10, 10), now)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, ReasonHourlyLimitExceeded, result.Reason)
}

func TestCheck_PropagatesRepositoryError(t *testing.T) {
	counter := &fakeLogCounter{err: errors.New("connection refused")}
	svc := NewService(counter)

	result, err := svc.Check(context.Background(), testDomain(10, 100), time.Now().UTC())
	require.Error(t, err)
	assert.Nil(t, result)
}
