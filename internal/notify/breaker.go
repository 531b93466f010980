package notify

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/farellandr/eventhub/internal/logging"
	"github.com/farellandr/eventhub/internal/metrics"
	"github.com/farellandr/eventhub/internal/models"
)

type BreakerSettings struct {
	// MinRequests is the number of attempts in Interval before the failure
	// ratio is considered.
	MinRequests  uint32
	FailureRatio float64
	Interval     time.Duration
	Timeout      time.Duration
}

func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:  10,
		FailureRatio: 0.6,
		Interval:     time.Minute,
		Timeout:      2 * time.Minute,
	}
}

var errUnsuccessful = errors.New("delivery unsuccessful")

// BreakerChannel stops calling a failing transport for a while. Rejected
// sends come back as unsuccessful results like any other failure.
type BreakerChannel struct {
	next Channel
	cb   *gobreaker.CircuitBreaker[Result]
}

func NewBreakerChannel(next Channel, settings BreakerSettings) *BreakerChannel {
	name := string(next.Name())
	metrics.BreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))

	cb := gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= settings.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("channel", name).Str("from", from.String()).Str("to", to.String()).
				Msg("delivery channel breaker state changed")
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	return &BreakerChannel{next: next, cb: cb}
}

func (c *BreakerChannel) Name() models.NotificationChannel { return c.next.Name() }

func (c *BreakerChannel) Send(ctx context.Context, delivery Delivery) Result {
	result, err := c.cb.Execute(func() (Result, error) {
		r := c.next.Send(ctx, delivery)
		if !r.Success {
			return r, errUnsuccessful
		}
		return r, nil
	})
	switch {
	case err == nil:
		return result
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return Result{Error: "channel " + string(c.next.Name()) + " unavailable: " + err.Error()}
	}
	return result
}

func (c *BreakerChannel) State() gobreaker.State {
	return c.cb.State()
}
