package retry

import (
	"context"
	"time"
)

// PollUntil calls probe up to attempts times, sleeping interval between calls, and
// returns the first value for which probe reports ready. On exhaustion it returns the
// zero value, false and the last probe error (if any).
func PollUntil[T any](
	ctx context.Context,
	attempts int,
	interval time.Duration,
	sleep SleepFunc,
	probe func(ctx context.Context, attempt int) (T, bool, error),
) (T, bool, error) {
	var zero T
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, ok, err := probe(ctx, attempt)
		if err == nil && ok {
			return v, true, nil
		}
		lastErr = err

		if attempt < attempts {
			if serr := sleep(ctx, interval); serr != nil {
				return zero, false, serr
			}
		}
	}
	return zero, false, lastErr
}
