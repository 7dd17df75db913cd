package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"qaforge/internal/providers"
)

type scriptedClient struct {
	errs  []error
	resp  providers.GenerateResponse
	calls int
}

func (s *scriptedClient) Generate(ctx context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	s.calls++
	if s.calls <= len(s.errs) {
		return providers.GenerateResponse{}, providers.ProviderInfo{Name: "scripted"}, s.errs[s.calls-1]
	}
	return s.resp, providers.ProviderInfo{Name: "scripted"}, nil
}

type sleepRecorder struct {
	total  time.Duration
	slices []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) {
	r.total += d
	r.slices = append(r.slices, d)
}

type callCounter struct{ recs []CallRecord }

func (c *callCounter) ObserveCall(_ context.Context, rec CallRecord) { c.recs = append(c.recs, rec) }

func TestInvokeHonorsRetryDelayHint(t *testing.T) {
	hint := errors.New("429 Resource exhausted, retry_delay: 2")
	client := &scriptedClient{errs: []error{hint, hint}, resp: providers.GenerateResponse{Text: "ok"}}
	rec := &sleepRecorder{}
	obs := &callCounter{}

	out, err := Invoke(context.Background(), client, providers.GenerateRequest{Prompt: "p"}, Options{sleep: rec.sleep, Observer: obs})
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, 3, client.calls)
	require.Equal(t, 4*time.Second, rec.total)
	for _, s := range rec.slices {
		require.LessOrEqual(t, s, 500*time.Millisecond)
	}
	require.Len(t, obs.recs, 3)
	require.Equal(t, 3, obs.recs[2].Attempt)
	require.NoError(t, obs.recs[2].Err)
}

func TestInvokeExponentialBackoffForTransient(t *testing.T) {
	client := &scriptedClient{
		errs: []error{errors.New("network connection lost"), errors.New("upstream code 502")},
		resp: providers.GenerateResponse{Text: "ok"},
	}
	rec := &sleepRecorder{}
	_, err := Invoke(context.Background(), client, providers.GenerateRequest{}, Options{sleep: rec.sleep})
	require.NoError(t, err)
	require.Equal(t, 2*time.Second+4*time.Second, rec.total)
}

func TestInvokeStopsOnFatal(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("Insufficient credits")}}
	rec := &sleepRecorder{}
	_, err := Invoke(context.Background(), client, providers.GenerateRequest{}, Options{sleep: rec.sleep})
	require.ErrorIs(t, err, ErrFatalProvider)
	require.Equal(t, 1, client.calls)
	require.Zero(t, rec.total)
}

func TestInvokeExhausted(t *testing.T) {
	boom := errors.New("bad request")
	client := &scriptedClient{errs: []error{boom, boom, boom}}
	_, err := Invoke(context.Background(), client, providers.GenerateRequest{}, Options{Attempts: 3, sleep: (&sleepRecorder{}).sleep})
	require.ErrorIs(t, err, ErrInvokeExhausted)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, client.calls)
}

func TestInvokeCancelledBeforeCall(t *testing.T) {
	client := &scriptedClient{resp: providers.GenerateResponse{Text: "ok"}}
	out, err := Invoke(context.Background(), client, providers.GenerateRequest{}, Options{ShouldCancel: func() bool { return true }})
	require.NoError(t, err)
	require.Empty(t, out)
	require.Zero(t, client.calls)
}

func TestInvokeCancelDuringBackoff(t *testing.T) {
	hint := errors.New("retry in 30 seconds")
	client := &scriptedClient{errs: []error{hint, hint}, resp: providers.GenerateResponse{Text: "ok"}}
	rec := &sleepRecorder{}
	cancel := func() bool { return rec.total >= time.Second }

	out, err := Invoke(context.Background(), client, providers.GenerateRequest{}, Options{ShouldCancel: cancel, sleep: rec.sleep})
	require.NoError(t, err)
	require.Empty(t, out)
	require.Equal(t, 1, client.calls)
	require.Equal(t, time.Second, rec.total)
}

func TestInvokeSerializesStructured(t *testing.T) {
	client := &scriptedClient{resp: providers.GenerateResponse{Structured: map[string]any{"items": []any{"a"}}}}
	out, err := Invoke(context.Background(), client, providers.GenerateRequest{}, Options{})
	require.NoError(t, err)
	require.JSONEq(t, `{"items":["a"]}`, out)
}

func TestRetryWaitCapped(t *testing.T) {
	require.Equal(t, 60*time.Second, retryWait(errors.New("retry after 600"), 0))
	require.Equal(t, 1500*time.Millisecond, retryWait(errors.New("Retry: 1.5s"), 0))
	require.Equal(t, 16*time.Second, retryWait(errors.New("503 unavailable"), 3))
	require.Equal(t, 20*time.Second, retryWait(errors.New("503 unavailable"), 6))
	require.Zero(t, retryWait(errors.New("invalid argument"), 0))
}
