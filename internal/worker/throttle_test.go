package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestThrottle(t *testing.T, perMinute int) *SendThrottle {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSendThrottle(client, perMinute)
}

func TestWaitAllowsUnderLimit(t *testing.T) {
	th := newTestThrottle(t, 10)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := th.Wait(ctx, "c1"); err != nil {
			t.Fatalf("send %d should be allowed: %v", i+1, err)
		}
	}
}

func TestWaitBlocksOverLimitUntilCancel(t *testing.T) {
	th := newTestThrottle(t, 2)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := th.Wait(ctx, "c1"); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	}

	// The third send must block until the window rolls; cancel instead.
	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	err := th.Wait(blocked, "c1")
	if err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded while throttled, got %v", err)
	}
}

func TestWaitTracksCampaignsIndependently(t *testing.T) {
	th := newTestThrottle(t, 1)
	ctx := context.Background()

	if err := th.Wait(ctx, "c1"); err != nil {
		t.Fatalf("Wait c1 failed: %v", err)
	}
	// A different campaign has its own counter.
	if err := th.Wait(ctx, "c2"); err != nil {
		t.Fatalf("Wait c2 failed: %v", err)
	}
}
