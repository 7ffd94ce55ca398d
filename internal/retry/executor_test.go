package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestDoStopsAfterMaxRetriesPlusOne(t *testing.T) {
	for _, maxRetries := range []int{0, 1, 3, 5} {
		t.Run(fmt.Sprintf("retries=%d", maxRetries), func(t *testing.T) {
			rec := &recordingSleeper{}
			p := DefaultPolicy()
			p.MaxRetries = maxRetries
			exec := New(p, WithSleeper(rec.sleep))

			calls := 0
			_, err := Do(context.Background(), exec, func(context.Context) (string, error) {
				calls++
				return "", Newf(KindServer, "upstream unavailable")
			})

			require.Error(t, err)
			assert.Equal(t, maxRetries+1, calls)
			assert.Equal(t, maxRetries+1, AttemptsOf(err))
			assert.Len(t, rec.delays, maxRetries)
			assert.Contains(t, err.Error(), "upstream unavailable")
		})
	}
}

func TestExecuteRunsMaxRetriesPlusOne(t *testing.T) {
	calls := 0
	_, err := Execute(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, Newf(KindServer, "unavailable")
	}, 2, time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, AttemptsOf(err))

	calls = 0
	got, err := Execute(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", Newf(KindTimeout, "slow")
		}
		return "ok", nil
	}, 2, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
}

func TestDoFatalErrorRunsOnce(t *testing.T) {
	rec := &recordingSleeper{}
	exec := New(Policy{MaxRetries: 4, InitialDelay: time.Second}, WithSleeper(rec.sleep))

	calls := 0
	_, err := Do(context.Background(), exec, func(context.Context) (int, error) {
		calls++
		return 0, Fatal(KindPolicy, errors.New("blocked: SAFETY"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, AttemptsOf(err))
	assert.Empty(t, rec.delays)
	assert.Equal(t, KindPolicy, KindOf(err))
}

func TestDoUnclassifiedErrorIsFatal(t *testing.T) {
	exec := New(Policy{MaxRetries: 3}, WithSleeper((&recordingSleeper{}).sleep))
	calls := 0
	_, err := Do(context.Background(), exec, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("bad request body")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoReturnsValueAfterTransientFailures(t *testing.T) {
	exec := New(Policy{MaxRetries: 3, InitialDelay: time.Millisecond}, WithSleeper((&recordingSleeper{}).sleep))
	calls := 0
	got, err := Do(context.Background(), exec, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", Newf(KindMissingPayload, "no image in response")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestBackoffIsNonDecreasingAndCapped(t *testing.T) {
	rec := &recordingSleeper{}
	exec := New(Policy{
		MaxRetries:   12,
		InitialDelay: time.Second,
		Multiplier:   1.5,
		MaxDelay:     30 * time.Second,
	}, WithSleeper(rec.sleep))

	_, _ = Do(context.Background(), exec, func(context.Context) (int, error) {
		return 0, Newf(KindServer, "503")
	})

	require.Len(t, rec.delays, 12)
	assert.Equal(t, time.Second, rec.delays[0])
	assert.Equal(t, 1500*time.Millisecond, rec.delays[1])
	for i := 1; i < len(rec.delays); i++ {
		assert.GreaterOrEqual(t, rec.delays[i], rec.delays[i-1], "delay %d shrank", i)
		assert.LessOrEqual(t, rec.delays[i], 30*time.Second)
	}
	assert.Equal(t, 30*time.Second, rec.delays[len(rec.delays)-1])
}

func TestRetryAfterOverridesComputedDelay(t *testing.T) {
	rec := &recordingSleeper{}
	exec := New(Policy{MaxRetries: 2, InitialDelay: time.Second}, WithSleeper(rec.sleep))

	calls := 0
	_, err := Do(context.Background(), exec, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, FromStatus(429, "quota", "7")
		}
		return 0, Newf(KindServer, "still failing")
	})

	require.Error(t, err)
	require.Len(t, rec.delays, 2)
	assert.Equal(t, 7*time.Second, rec.delays[0])
	assert.Equal(t, 1500*time.Millisecond, rec.delays[1])
}

func TestNetworkErrorsUseSteeperSchedule(t *testing.T) {
	rec := &recordingSleeper{}
	exec := New(Policy{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		Multiplier:        1.5,
		NetworkMultiplier: 2,
	}, WithSleeper(rec.sleep))

	_, _ = Do(context.Background(), exec, func(context.Context) (int, error) {
		return 0, fmt.Errorf("dial: %w", syscall.ECONNRESET)
	})

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.delays)
}

func TestDoStopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := New(Policy{MaxRetries: 5, InitialDelay: time.Second}, WithSleeper(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	calls := 0
	_, err := Do(ctx, exec, func(context.Context) (int, error) {
		calls++
		return 0, Newf(KindTimeout, "deadline")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestObserverSeesEveryFailedAttempt(t *testing.T) {
	var seen []Attempt
	exec := New(Policy{MaxRetries: 2, InitialDelay: 10 * time.Millisecond},
		WithSleeper((&recordingSleeper{}).sleep),
		WithObserver(func(a Attempt) { seen = append(seen, a) }))

	_, _ = Do(context.Background(), exec, func(context.Context) (int, error) {
		return 0, Newf(KindRateLimited, "slow down")
	})

	require.Len(t, seen, 3)
	for i, a := range seen {
		assert.Equal(t, i+1, a.Number)
		assert.Equal(t, KindRateLimited, a.Err.Kind)
		assert.False(t, a.StartedAt.IsZero())
	}
	assert.Zero(t, seen[2].Delay)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"canceled", context.Canceled, KindCanceled},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), KindNetwork},
		{"dns", &net.DNSError{Err: "no such host", Name: "api.example"}, KindNetwork},
		{"status 503", FromStatus(503, "unavailable", ""), KindServer},
		{"status 429", FromStatus(429, "quota", ""), KindRateLimited},
		{"status 401", FromStatus(401, "bad key", ""), KindAuth},
		{"status 400", FromStatus(400, "bad body", ""), KindBadInput},
		{"plain", errors.New("boom"), KindFatal},
		{"wrapped classified", fmt.Errorf("call: %w", Newf(KindMissingPayload, "empty")), KindMissingPayload},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err).Kind)
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, 3*time.Second, ParseRetryAfter("3", now))
	assert.Equal(t, 1500*time.Millisecond, ParseRetryAfter("1.5s", now))
	assert.Equal(t, 10*time.Second, ParseRetryAfter(now.Add(10*time.Second).Format(http.TimeFormat), now))
	assert.Zero(t, ParseRetryAfter("", now))
	assert.Zero(t, ParseRetryAfter("soon", now))
}
