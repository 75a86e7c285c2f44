package renewal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/subtrack_server/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCompute_DerivedFromFrequency(t *testing.T) {
	start := date(2024, 1, 1)
	now := date(2023, 12, 1)

	tests := []struct {
		frequency string
		want      time.Time
	}{
		{model.FrequencyDaily, date(2024, 1, 2)},
		{model.FrequencyWeekly, date(2024, 1, 8)},
		{model.FrequencyMonthly, date(2024, 1, 31)},
		{model.FrequencyYearly, date(2024, 12, 31)}, // 2024 is a leap year
	}

	for _, tt := range tests {
		t.Run(tt.frequency, func(t *testing.T) {
			res, err := Compute(Input{StartDate: start, Frequency: tt.frequency}, now)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(res.RenewalDate), "got %s", res.RenewalDate)
			assert.Equal(t, model.SubscriptionStatusActive, res.Status)
		})
	}
}

func TestCompute_FixedIntervalMatchesDays(t *testing.T) {
	starts := []time.Time{date(2023, 2, 28), date(2024, 2, 29), date(2025, 12, 31)}
	now := date(2000, 1, 1)

	for _, start := range starts {
		for freq := range intervalDays {
			days, ok := IntervalDays(freq)
			require.True(t, ok)

			res, err := Compute(Input{StartDate: start, Frequency: freq}, now)
			require.NoError(t, err)
			assert.True(t, start.AddDate(0, 0, days).Equal(res.RenewalDate))
		}
	}
}

func TestCompute_ExplicitRenewalDate(t *testing.T) {
	start := date(2024, 1, 1)
	explicit := date(2024, 3, 15)

	res, err := Compute(Input{
		StartDate:   start,
		Frequency:   model.FrequencyMonthly,
		RenewalDate: &explicit,
	}, date(2024, 1, 2))

	require.NoError(t, err)
	assert.True(t, explicit.Equal(res.RenewalDate))
}

func TestCompute_ExplicitWithoutFrequency(t *testing.T) {
	start := date(2024, 1, 1)
	explicit := date(2024, 2, 1)

	res, err := Compute(Input{StartDate: start, RenewalDate: &explicit}, date(2024, 1, 2))
	require.NoError(t, err)
	assert.True(t, explicit.Equal(res.RenewalDate))
}

func TestCompute_ExplicitNotAfterStart(t *testing.T) {
	start := date(2024, 1, 10)

	cases := map[string]time.Time{
		"equal to start":   start,
		"before start":     date(2024, 1, 9),
		"far before start": date(2020, 1, 1),
	}

	for name, explicit := range cases {
		t.Run(name, func(t *testing.T) {
			explicit := explicit
			_, err := Compute(Input{StartDate: start, Frequency: model.FrequencyDaily, RenewalDate: &explicit}, date(2024, 1, 1))

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, "renewal_date", vErr.Field)
		})
	}
}

func TestCompute_MissingFrequency(t *testing.T) {
	_, err := Compute(Input{StartDate: date(2024, 1, 1)}, date(2024, 1, 1))

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "frequency", vErr.Field)
}

func TestCompute_UnknownFrequency(t *testing.T) {
	_, err := Compute(Input{StartDate: date(2024, 1, 1), Frequency: "hourly"}, date(2024, 1, 1))

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Contains(t, vErr.Error(), "hourly")
}

func TestCompute_ExpiredOverridesStatus(t *testing.T) {
	start := date(2024, 1, 1)

	statuses := []string{
		model.SubscriptionStatusActive,
		model.SubscriptionStatusInactive,
		model.SubscriptionStatusCanceled,
		model.SubscriptionStatusPending,
		"",
	}

	for _, status := range statuses {
		t.Run("from_"+status, func(t *testing.T) {
			res, err := Compute(Input{StartDate: start, Frequency: model.FrequencyWeekly, Status: status}, date(2024, 6, 1))
			require.NoError(t, err)
			assert.Equal(t, model.SubscriptionStatusExpired, res.Status)
		})
	}
}

func TestCompute_RenewalEqualToNowIsExpired(t *testing.T) {
	start := date(2024, 1, 1)
	now := date(2024, 1, 8)

	res, err := Compute(Input{StartDate: start, Frequency: model.FrequencyWeekly}, now)
	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusExpired, res.Status)
}

func TestCompute_KeepsStatusWhenInFuture(t *testing.T) {
	res, err := Compute(Input{
		StartDate: date(2024, 1, 1),
		Frequency: model.FrequencyYearly,
		Status:    model.SubscriptionStatusCanceled,
	}, date(2024, 2, 1))

	require.NoError(t, err)
	assert.Equal(t, model.SubscriptionStatusCanceled, res.Status)
}
