// Package delivery contains the pure retry policy for webhook deliveries.
package delivery

import (
	"time"

	"github.com/target/mmk-analysis-api/internal/domain/model"
)

const (
	// BaseDelay is the delay after the first failed attempt.
	BaseDelay = time.Second
	// MaxDelay caps the delay between attempts.
	MaxDelay = 16 * time.Second
)

// Backoff returns the delay before the next attempt after `attempts` failures
// (1-based): min(BaseDelay·2^(attempts-1), MaxDelay).
func Backoff(attempts int) time.Duration {
	if attempts < 1 {
		return 0
	}
	d := BaseDelay
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= MaxDelay {
			return MaxDelay
		}
	}
	return d
}

// Decision is the state a delivery moves to after an attempt.
type Decision struct {
	Status        model.DeliveryStatus
	Attempts      int
	NextAttemptAt *time.Time
}

// Succeeded is the terminal decision after a 2xx response.
func Succeeded(prevAttempts int) Decision {
	return Decision{Status: model.DeliveryStatusSuccess, Attempts: prevAttempts + 1}
}

// Failed computes the decision after a failed attempt made at now. Once
// model.MaxDeliveryAttempts is reached the delivery is terminally failed and
// no further attempt is scheduled.
func Failed(prevAttempts int, now time.Time) Decision {
	attempts := prevAttempts + 1
	if attempts >= model.MaxDeliveryAttempts {
		return Decision{Status: model.DeliveryStatusFailed, Attempts: model.MaxDeliveryAttempts}
	}
	next := now.Add(Backoff(attempts))
	return Decision{Status: model.DeliveryStatusRetrying, Attempts: attempts, NextAttemptAt: &next}
}
