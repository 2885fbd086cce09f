package ratelimit

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"

	"github.com/mailgate/mailgate/internal/models"
	"github.com/mailgate/mailgate/internal/tracing"
	"github.com/mailgate/mailgate/internal/utils"
)

const (
	ReasonHourlyLimitExceeded = "hourly limit exceeded"
	ReasonDailyLimitExceeded  = "daily limit exceeded"
)

// Result is the outcome of a rate-limit check. When denied, Limit and
// Current describe the window that tripped; when allowed, the remaining
// capacities are populated for both windows.
type Result struct {
	Allowed         bool   `json:"allowed"`
	Reason          string `json:"reason,omitempty"`
	Limit           int    `json:"limit,omitempty"`
	Current         int64  `json:"current,omitempty"`
	HourlyRemaining int64  `json:"hourlyRemaining"`
	DailyRemaining  int64  `json:"dailyRemaining"`
}

// LogCounter is the slice of the log repository the limiter needs.
type LogCounter interface {
	CountSince(ctx context.Context, domainID string, since time.Time) (int64, error)
}

// Service evaluates a domain's send history against its hourly and daily
// quotas. The hourly window is the trailing hour; the daily window runs
// from UTC start-of-day to now. The check is advisory: counts are read
// without locking, so two concurrent sends near a boundary can both pass.
type Service struct {
	logCounter LogCounter
}

func NewService(logCounter LogCounter) *Service {
	return &Service{logCounter: logCounter}
}

// Check evaluates the hourly window first; the daily window is only
// consulted when the hourly one still has capacity.
func (s *Service) Check(ctx context.Context, domain *models.Domain, now time.Time) (*Result, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RateLimitService.Check")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagDomain(span, domain.Domain)

	hourlyCount, err := s.logCounter.CountSince(ctx, domain.ID, now.Add(-time.Hour))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if hourlyCount >= int64(domain.HourlyLimit) {
		span.LogFields(tracingLog.String("result.denied", ReasonHourlyLimitExceeded))
		return &Result{
			Allowed: false,
			Reason:  ReasonHourlyLimitExceeded,
			Limit:   domain.HourlyLimit,
			Current: hourlyCount,
		}, nil
	}

	dailyCount, err := s.logCounter.CountSince(ctx, domain.ID, utils.StartOfDayUTC(now))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if dailyCount >= int64(domain.DailyLimit) {
		span.LogFields(tracingLog.String("result.denied", ReasonDailyLimitExceeded))
		return &Result{
			Allowed: false,
			Reason:  ReasonDailyLimitExceeded,
			Limit:   domain.DailyLimit,
			Current: dailyCount,
		}, nil
	}

	return &Result{
		Allowed:         true,
		HourlyRemaining: int64(domain.HourlyLimit) - hourlyCount,
		DailyRemaining:  int64(domain.DailyLimit) - dailyCount,
	}, nil
}
