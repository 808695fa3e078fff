//go:build !integration

package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cv-evaluation-service/internal/domain"
	"cv-evaluation-service/internal/domain/ports/adapter"
)

type scriptedClient struct {
	calls   int
	results []error
	out     string
}

func (s *scriptedClient) Complete(ctx context.Context, p adapter.Prompt, opts adapter.CompleteOptions) (string, error) {
	err := s.results[s.calls]
	s.calls++
	if err != nil {
		return "", err
	}
	return s.out, nil
}

func transientErr() error {
	return &adapter.ProviderError{Transient: true, Status: 503, Err: errors.New("upstream 503")}
}

func newTestRetryClient(inner adapter.LLMClient, attempts int, base, max time.Duration) (*RetryClient, *[]time.Duration) {
	log := zerolog.Nop()
	c := NewRetryClient(inner, "test", "test-model", attempts, base, max, &log)
	var sleeps []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return c, &sleeps
}

func TestRetryClient_TransientThenSuccess(t *testing.T) {
	inner := &scriptedClient{results: []error{transientErr(), transientErr(), nil}, out: "ok"}
	client, sleeps := newTestRetryClient(inner, 3, 100*time.Millisecond, time.Second)

	out, err := client.Complete(context.Background(), adapter.Prompt{User: "hi"}, adapter.CompleteOptions{})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if out != "ok" {
		t.Errorf("expected scripted output, got %q", out)
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", inner.calls)
	}
	if len(*sleeps) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %d", len(*sleeps))
	}
	// Delays are non-decreasing and never exceed the cap, jitter included.
	base := 100 * time.Millisecond
	capDelay := time.Second
	var prev time.Duration
	for i, d := range *sleeps {
		if d < prev {
			t.Errorf("backoff decreased at sleep %d: %v after %v", i, d, prev)
		}
		if d > capDelay {
			t.Errorf("sleep %d of %v exceeds cap %v", i, d, capDelay)
		}
		prev = d
	}
	if (*sleeps)[0] < base {
		t.Errorf("first backoff %v below base delay %v", (*sleeps)[0], base)
	}
}

func TestRetryClient_JitterNeverExceedsCap(t *testing.T) {
	// With base == cap every backoff is already at the ceiling, so any
	// jitter added on top would push the sleep past the configured cap.
	inner := &scriptedClient{results: []error{
		transientErr(), transientErr(), transientErr(), transientErr(), nil,
	}, out: "ok"}
	capDelay := time.Second
	client, sleeps := newTestRetryClient(inner, 5, capDelay, capDelay)

	if _, err := client.Complete(context.Background(), adapter.Prompt{User: "hi"}, adapter.CompleteOptions{}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(*sleeps) != 4 {
		t.Fatalf("expected 4 backoff sleeps, got %d", len(*sleeps))
	}
	for i, d := range *sleeps {
		if d != capDelay {
			t.Errorf("sleep %d = %v, want exactly the cap %v", i, d, capDelay)
		}
	}
}

func TestRetryClient_PermanentFailsImmediately(t *testing.T) {
	permanent := &adapter.ProviderError{Transient: false, Status: 401, Err: errors.New("bad key")}
	inner := &scriptedClient{results: []error{permanent}}
	client, sleeps := newTestRetryClient(inner, 3, 10*time.Millisecond, time.Second)

	_, err := client.Complete(context.Background(), adapter.Prompt{User: "hi"}, adapter.CompleteOptions{})
	if err == nil {
		t.Fatal("expected error")
	}
	var exhausted *domain.LLMExhaustedError
	if errors.As(err, &exhausted) {
		t.Fatal("permanent failure must not be reported as exhaustion")
	}
	if inner.calls != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", inner.calls)
	}
	if len(*sleeps) != 0 {
		t.Errorf("expected no backoff for a permanent failure, got %d sleeps", len(*sleeps))
	}
}

func TestRetryClient_Exhaustion(t *testing.T) {
	inner := &scriptedClient{results: []error{transientErr(), transientErr(), transientErr()}}
	client, _ := newTestRetryClient(inner, 3, 10*time.Millisecond, time.Second)

	_, err := client.Complete(context.Background(), adapter.Prompt{User: "hi"}, adapter.CompleteOptions{})
	var exhausted *domain.LLMExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected LLMExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("expected 3 attempts recorded, got %d", exhausted.Attempts)
	}
	if exhausted.LastErr == nil {
		t.Error("expected last error to be carried")
	}
	if inner.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", inner.calls)
	}
}

func TestRetryClient_BackoffCancellable(t *testing.T) {
	inner := &scriptedClient{results: []error{transientErr(), transientErr(), nil}, out: "ok"}
	log := zerolog.Nop()
	client := NewRetryClient(inner, "test", "test-model", 3, time.Hour, time.Hour, &log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := client.Complete(ctx, adapter.Prompt{User: "hi"}, adapter.CompleteOptions{})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond) // let the first attempt fail and the backoff start
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("backoff sleep ignored cancellation")
	}
	if inner.calls != 1 {
		t.Errorf("expected no further attempts after cancellation, got %d", inner.calls)
	}
}
