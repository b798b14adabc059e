package resilience

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/kbukum/devreload/errors"
)

var fast = Backoff{Initial: time.Millisecond, Max: 2 * time.Millisecond}

func TestRetry_FirstAttemptWins(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), RetryConfig{Backoff: fast}, func() (string, error) {
		calls++
		return "page", nil
	})
	if err != nil || got != "page" {
		t.Fatalf("got (%q, %v)", got, err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_Attempts(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
		failFor     int
		wantCalls   int
		wantErr     bool
	}{
		{"default gives up after three", 0, 10, 3, true},
		{"configured limit", 5, 10, 5, true},
		{"success before limit", 5, 2, 3, false},
		{"unlimited until success", Unlimited, 7, 8, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			_, err := Retry(context.Background(), RetryConfig{MaxAttempts: tc.maxAttempts, Backoff: fast},
				func() (int, error) {
					calls++
					if calls <= tc.failFor {
						return 0, stderrors.New("dev server restarting")
					}
					return calls, nil
				})
			if (err != nil) != tc.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if calls != tc.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tc.wantCalls)
			}
		})
	}
}

func TestRetry_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := Retry(ctx, RetryConfig{MaxAttempts: Unlimited, Backoff: Backoff{Initial: 5 * time.Millisecond}},
		func() (struct{}, error) { return struct{}{}, stderrors.New("down") })
	if !stderrors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestRetry_CanceledBeforeFirstCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := Retry(ctx, RetryConfig{}, func() (int, error) {
		called = true
		return 0, nil
	})
	if called {
		t.Error("fn must not run on a done context")
	}
	if !stderrors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRetry_AppErrorsRetriedOnlyWhenRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{"connection failure", errors.ConnectionFailed("dev server"), 3},
		{"unavailable", errors.ServiceUnavailable("dev server"), 3},
		{"protocol", errors.Protocol("unexpected status 404"), 1},
		{"invalid input", errors.InvalidInput("page_url", "bad"), 1},
		{"context canceled", context.Canceled, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			_, err := Retry(context.Background(), RetryConfig{Backoff: fast}, func() (int, error) {
				calls++
				return 0, tc.err
			})
			if !stderrors.Is(err, tc.err) {
				t.Errorf("err = %v, want %v", err, tc.err)
			}
			if calls != tc.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tc.wantCalls)
			}
		})
	}
}

func TestRetry_CustomRetryIf(t *testing.T) {
	transient := stderrors.New("transient")
	calls := 0
	_, err := Retry(context.Background(), RetryConfig{
		Backoff: fast,
		RetryIf: func(err error) bool { return stderrors.Is(err, transient) },
	}, func() (int, error) {
		calls++
		if calls == 1 {
			return 0, transient
		}
		return 0, stderrors.New("fatal")
	})
	if calls != 2 || err == nil || err.Error() != "fatal" {
		t.Errorf("calls = %d, err = %v", calls, err)
	}
}

func TestRetry_OnRetry(t *testing.T) {
	var failures []int
	var delays []time.Duration
	_, _ = Retry(context.Background(), RetryConfig{
		Backoff: Backoff{Initial: time.Millisecond, Max: time.Second},
		OnRetry: func(failure int, err error, delay time.Duration) {
			failures = append(failures, failure)
			delays = append(delays, delay)
		},
	}, func() (int, error) { return 0, stderrors.New("down") })

	if len(failures) != 2 || failures[0] != 1 || failures[1] != 2 {
		t.Fatalf("OnRetry failures = %v, want [1 2]", failures)
	}
	if delays[0] != time.Millisecond || delays[1] != 2*time.Millisecond {
		t.Errorf("delays = %v", delays)
	}
}

func TestSleep(t *testing.T) {
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Sleep: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !stderrors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
