package cluster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emrlift/emrlift/internal/errdefs"
	"github.com/emrlift/emrlift/internal/logging"
)

func TestPoll_Done(t *testing.T) {
	calls := 0
	err := poll(context.Background(), logging.Discard(), "test", "j-1", time.Millisecond, 5, func(context.Context) (bool, string, error) {
		calls++
		return calls == 3, "PENDING", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestPoll_Timeout(t *testing.T) {
	calls := 0
	err := poll(context.Background(), logging.Discard(), "test", "j-1", time.Millisecond, 4, func(context.Context) (bool, string, error) {
		calls++
		return false, "STARTING", nil
	})

	var te *errdefs.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if calls != 4 || te.Attempts != 4 {
		t.Errorf("calls=%d attempts=%d, want 4", calls, te.Attempts)
	}
	if te.Detail != "STARTING" || te.Op != "test" {
		t.Errorf("timeout = %+v", te)
	}
}

func TestPoll_ErrorStopsImmediately(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := poll(context.Background(), logging.Discard(), "test", "j-1", time.Millisecond, 5, func(context.Context) (bool, string, error) {
		calls++
		return false, "", boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the check error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPoll_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := poll(ctx, logging.Discard(), "test", "j-1", time.Hour, 5, func(context.Context) (bool, string, error) {
		cancel()
		return false, "STARTING", nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSleep_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := sleep(context.Background(), 0); err != nil {
		t.Fatal(err)
	}
}

func TestWaitPolicyFrom(t *testing.T) {
	p := DefaultWaitPolicy()
	if p.RunningInterval <= 0 || p.RunningMaxPolls <= 0 || p.ResizeMaxPolls <= 0 {
		t.Errorf("default policy not populated: %+v", p)
	}
}
