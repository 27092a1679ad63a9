package reconciler

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryDelay grows exponentially with the attempt count so a flapping
// gateway is not hammered. Attempts are already persisted on the queue
// row, so the schedule is recomputed instead of carried in memory.
func retryDelay(attempts int) time.Duration {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 30 * time.Second
	expo.RandomizationFactor = 0.2
	expo.Multiplier = 2
	expo.MaxInterval = time.Hour
	expo.MaxElapsedTime = 0
	expo.Reset()

	delay := expo.NextBackOff()
	for i := 1; i < attempts; i++ {
		delay = expo.NextBackOff()
	}
	return delay
}
