package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleep struct {
	waits []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func TestExponential_MatchesCallbackSchedule(t *testing.T) {
	backoff := Exponential(1, time.Second, 16*time.Second)

	got := []time.Duration{}
	for n := 1; n <= 7; n++ {
		got = append(got, backoff(n))
	}
	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 16 * time.Second, 16 * time.Second,
	}, got)
}

func TestPolicy_Do_ExhaustsAttempts(t *testing.T) {
	rec := &recordingSleep{}
	policy := NewPolicy(5, Exponential(1, time.Second, 16*time.Second)).WithSleep(rec.sleep)

	calls := 0
	attempts, err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("status 500")
	})

	require.Error(t, err)
	assert.Equal(t, 5, attempts)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, rec.waits)
	for i := 1; i < len(rec.waits); i++ {
		assert.Greater(t, rec.waits[i], rec.waits[i-1])
	}
}

func TestPolicy_Do_StopsOnSuccess(t *testing.T) {
	rec := &recordingSleep{}
	policy := NewPolicy(5, Exponential(1, time.Second, 16*time.Second)).WithSleep(rec.sleep)

	calls := 0
	attempts, err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("status 502")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Len(t, rec.waits, 2)
}

func TestPolicy_Do_NonRetryable(t *testing.T) {
	permanent := errors.New("bad url")
	policy := NewPolicy(5, Exponential(1, time.Second, 16*time.Second)).WithSleep((&recordingSleep{}).sleep)
	policy.Retryable = func(err error) bool { return !errors.Is(err, permanent) }

	attempts, err := policy.Do(context.Background(), func(context.Context) error { return permanent })
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestPollUntil_ReadyOnThirdProbe(t *testing.T) {
	rec := &recordingSleep{}
	url, ok, err := PollUntil(context.Background(), 10, 5*time.Second, rec.sleep,
		func(_ context.Context, attempt int) (string, bool, error) {
			if attempt < 3 {
				return "", false, nil
			}
			return "https://octo.github.io/demo/", true, nil
		})

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://octo.github.io/demo/", url)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, rec.waits)
}

func TestPollUntil_Exhausted(t *testing.T) {
	rec := &recordingSleep{}
	probes := 0
	_, ok, err := PollUntil(context.Background(), 10, 5*time.Second, rec.sleep,
		func(context.Context, int) (string, bool, error) {
			probes++
			return "", false, errors.New("404")
		})

	assert.False(t, ok)
	assert.EqualError(t, err, "404")
	assert.Equal(t, 10, probes)
	assert.Len(t, rec.waits, 9)
}

func TestSleep_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
