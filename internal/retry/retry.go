package retry

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sealmart/sealmart/internal/fault"
)

// Do runs fn up to len(delays)+1 times, sleeping the next configured delay
// between attempts. The schedule is explicit per call site, not exponential:
// each external dependency class carries its own expected recovery profile.
// Non-retryable faults short-circuit immediately. The last error is returned
// wrapped with the label once the schedule is exhausted.
func Do(ctx context.Context, label string, delays []time.Duration, fn func(ctx context.Context) error) error {
	var lastErr error
	attempts := len(delays) + 1

	for i := 0; i < attempts; i++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !fault.IsRetryable(lastErr) {
			return errors.Wrap(lastErr, label)
		}
		if i == attempts-1 {
			break
		}

		logrus.WithFields(logrus.Fields{
			"label":   label,
			"attempt": i + 1,
			"delay":   delays[i].String(),
		}).Warnf("retrying after error: %v", lastErr)

		select {
		case <-time.After(delays[i]):
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), label)
		}
	}

	return errors.Wrapf(lastErr, "%s: retries exhausted after %d attempts", label, attempts)
}
