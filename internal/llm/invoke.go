package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"qaforge/internal/providers"
)

const (
	DefaultAttempts = 4

	maxWait      = 60 * time.Second
	maxBackoff   = 20.0
	pollInterval = 500 * time.Millisecond
)

var retryHint = regexp.MustCompile(`(?i)retry(?:_delay)?[^0-9]*([0-9]+(?:\.[0-9]+)?)`)

// CallRecord describes one provider call made by Invoke.
type CallRecord struct {
	Operation string
	Provider  providers.ProviderInfo
	Attempt   int
	Latency   time.Duration
	Err       error
}

// Observer receives every provider call outcome, e.g. for auditing.
type Observer interface {
	ObserveCall(ctx context.Context, rec CallRecord)
}

type Options struct {
	Attempts     int
	ShouldCancel func() bool
	Logger       *zap.Logger
	Observer     Observer

	sleep func(ctx context.Context, d time.Duration)
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.sleep == nil {
		o.sleep = sleepCtx
	}
	return o
}

// Cancelled reports whether the caller asked to stop or ctx is done.
func (o Options) Cancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return o.ShouldCancel != nil && o.ShouldCancel()
}

// Invoke calls the model with retries. A cancelled call returns "" and a nil
// error; callers are expected to notice cancellation on their own.
func Invoke(ctx context.Context, client providers.LLMProvider, req providers.GenerateRequest, opts Options) (string, error) {
	opts = opts.withDefaults()
	var lastErr error
	for attempt := 0; attempt < opts.Attempts; attempt++ {
		if opts.Cancelled(ctx) {
			return "", nil
		}
		start := time.Now()
		resp, info, err := client.Generate(ctx, req)
		if opts.Observer != nil {
			opts.Observer.ObserveCall(ctx, CallRecord{
				Operation: req.Operation,
				Provider:  info,
				Attempt:   attempt + 1,
				Latency:   time.Since(start),
				Err:       err,
			})
		}
		if err == nil {
			if resp.Structured != nil {
				raw, err := json.Marshal(resp.Structured)
				if err != nil {
					return "", fmt.Errorf("encode structured response: %w", err)
				}
				return string(raw), nil
			}
			return resp.Text, nil
		}
		lastErr = err
		opts.Logger.Warn("llm invoke failed",
			zap.String("operation", req.Operation),
			zap.String("provider", info.Name),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		if providers.ClassifyError(err) == providers.ErrorFatal {
			if opts.Cancelled(ctx) {
				return "", nil
			}
			return "", fmt.Errorf("%w: %w", ErrFatalProvider, err)
		}
		if opts.Cancelled(ctx) {
			return "", nil
		}
		if wait := retryWait(err, attempt); wait > 0 {
			opts.pause(ctx, wait)
		}
	}
	if opts.Cancelled(ctx) {
		return "", nil
	}
	return "", fmt.Errorf("%w after %d attempts: %w", ErrInvokeExhausted, opts.Attempts, lastErr)
}

// retryWait prefers a delay hinted in the error text, then exponential
// backoff for transient failures.
func retryWait(err error, attempt int) time.Duration {
	msg := err.Error()
	var secs float64
	if m := retryHint.FindStringSubmatch(msg); m != nil {
		secs, _ = strconv.ParseFloat(m[1], 64)
	}
	if secs == 0 && isTransient(err) {
		secs = math.Min(math.Pow(2, float64(attempt+1)), maxBackoff)
	}
	return min(time.Duration(secs*float64(time.Second)), maxWait)
}

func isTransient(err error) bool {
	lowered := strings.ToLower(err.Error())
	for _, sig := range []string{"network connection lost", " 502", "code 502"} {
		if strings.Contains(lowered, sig) {
			return true
		}
	}
	return providers.ClassifyError(err).Retryable()
}

// pause sleeps for d in short slices so cancellation is noticed quickly.
func (o Options) pause(ctx context.Context, d time.Duration) {
	for d > 0 {
		if o.Cancelled(ctx) {
			return
		}
		step := min(d, pollInterval)
		o.sleep(ctx, step)
		d -= step
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
