package retry

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	defaultMaxRetries   = 2
	defaultInitialDelay = time.Second
	defaultMultiplier   = 1.5
	defaultMaxDelay     = 30 * time.Second
)

// Policy bounds an execution. Total attempts are MaxRetries+1.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	// NetworkMultiplier is the growth factor applied to timeout and network
	// failures. Zero reuses Multiplier.
	NetworkMultiplier float64
}

// DefaultPolicy returns three attempts growing by 1.5 from one second, capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   defaultMaxRetries,
		InitialDelay: defaultInitialDelay,
		Multiplier:   defaultMultiplier,
		MaxDelay:     defaultMaxDelay,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = defaultMultiplier
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.NetworkMultiplier < 1 {
		p.NetworkMultiplier = p.Multiplier
	}
	return p
}

// Attempt records one failed invocation. Delay is the wait before the next
// attempt and is zero for the final one.
type Attempt struct {
	Number    int
	StartedAt time.Time
	Err       *Error
	Delay     time.Duration
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Executor runs operations with bounded retries. It holds no per-call state
// and is safe for concurrent use.
type Executor struct {
	name     string
	policy   Policy
	sleep    Sleeper
	logger   zerolog.Logger
	observer func(Attempt)
}

// Option customises an Executor.
type Option func(*Executor)

// WithName labels log lines.
func WithName(name string) Option { return func(e *Executor) { e.name = name } }

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option { return func(e *Executor) { e.logger = logger } }

// WithSleeper replaces the wall-clock sleeper.
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) {
		if s != nil {
			e.sleep = s
		}
	}
}

// WithObserver is called after every failed attempt.
func WithObserver(fn func(Attempt)) Option { return func(e *Executor) { e.observer = fn } }

// New builds an Executor for the policy.
func New(policy Policy, opts ...Option) *Executor {
	e := &Executor{
		name:   "retry",
		policy: policy.normalized(),
		sleep:  sleepContext,
		logger: zerolog.New(io.Discard),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the normalized policy.
func (e *Executor) Policy() Policy { return e.policy }

// Do runs op until it succeeds, fails with a non-retryable error, exhausts
// the policy, or ctx is done. Any failure is returned as a *Failure whose Err
// is the last classified error.
func Do[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if e == nil {
		e = New(DefaultPolicy())
	}
	generic := e.schedule(e.policy.Multiplier)
	network := e.schedule(e.policy.NetworkMultiplier)
	total := e.policy.MaxRetries + 1

	for attempt := 1; attempt <= total; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, &Failure{Attempts: attempt - 1, Err: Classify(err)}
		}
		started := time.Now()
		val, err := op(ctx)
		if err == nil {
			return val, nil
		}
		last := Classify(err)
		rec := Attempt{Number: attempt, StartedAt: started, Err: last}
		if !last.Kind.Retryable() || attempt == total {
			e.notify(rec)
			e.logger.Warn().
				Str("executor", e.name).
				Int("attempts", attempt).
				Str("kind", string(last.Kind)).
				Err(last).
				Msg("giving up")
			return zero, &Failure{Attempts: attempt, Err: last}
		}

		sched := generic
		if last.Kind.NetworkClass() {
			sched = network
		}
		delay := sched.NextBackOff()
		if last.RetryAfter > 0 {
			delay = last.RetryAfter
		}
		rec.Delay = delay
		e.notify(rec)
		e.logger.Debug().
			Str("executor", e.name).
			Int("attempt", attempt).
			Str("kind", string(last.Kind)).
			Dur("delay", delay).
			Err(last).
			Msg("retrying")

		if err := e.sleep(ctx, delay); err != nil {
			return zero, &Failure{Attempts: attempt, Err: Classify(err)}
		}
	}
	return zero, &Failure{Attempts: total, Err: Newf(KindFatal, "retry loop exited without result")}
}

// Execute runs op with the default growth and cap, maxRetries retries and the
// given initial delay.
func Execute[T any](ctx context.Context, op func(context.Context) (T, error), maxRetries int, initialDelay time.Duration) (T, error) {
	p := DefaultPolicy()
	p.MaxRetries = maxRetries
	p.InitialDelay = initialDelay
	return Do(ctx, New(p), op)
}

func (e *Executor) schedule(multiplier float64) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.policy.InitialDelay
	b.Multiplier = multiplier
	b.MaxInterval = e.policy.MaxDelay
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (e *Executor) notify(a Attempt) {
	if e.observer != nil {
		e.observer(a)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
