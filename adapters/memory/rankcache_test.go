package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/artpar/tokenrank/adapters/memory"
)

func TestRankCache_IncrWindow(t *testing.T) {
	ctx := context.Background()
	cache := memory.NewRankCache()

	if err := cache.IncrWindow(ctx, "all_time", "dev", 100); err != nil {
		t.Fatalf("IncrWindow: %v", err)
	}
	if err := cache.IncrWindow(ctx, "all_time", "dev", 50); err != nil {
		t.Fatalf("IncrWindow: %v", err)
	}
	if err := cache.IncrWindow(ctx, "daily:2024-01-01", "dev", 100); err != nil {
		t.Fatalf("IncrWindow: %v", err)
	}

	if got := cache.WindowScore("all_time", "dev"); got != 150 {
		t.Errorf("all_time score = %d, want 150", got)
	}
	if got := cache.WindowScore("daily:2024-01-01", "dev"); got != 100 {
		t.Errorf("daily score = %d, want 100", got)
	}
	if got := cache.WindowScore("all_time", "other"); got != 0 {
		t.Errorf("unknown member score = %d, want 0", got)
	}
}

// TestRankCache_ConcurrentThroughput exercises the peak-throughput
// contract: two events of 500 and 700 tokens landing in the same second
// must accumulate to at least 1200 in that bucket.
func TestRankCache_ConcurrentThroughput(t *testing.T) {
	ctx := context.Background()
	cache := memory.NewRankCache()
	const second = int64(1700000000)

	var wg sync.WaitGroup
	for _, tokens := range []int64{500, 700} {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			if _, err := cache.IncrThroughput(ctx, second, n, time.Minute); err != nil {
				t.Errorf("IncrThroughput: %v", err)
			}
		}(tokens)
	}
	wg.Wait()

	total, err := cache.IncrThroughput(ctx, second, 0, time.Minute)
	if err != nil {
		t.Fatalf("IncrThroughput: %v", err)
	}
	if total < 1200 {
		t.Errorf("bucket total = %d, want >= 1200", total)
	}
}

func TestRankCache_ThroughputExpiry(t *testing.T) {
	ctx := context.Background()
	cache := memory.NewRankCache()

	if _, err := cache.IncrThroughput(ctx, 1000, 500, time.Minute); err != nil {
		t.Fatalf("IncrThroughput: %v", err)
	}

	// A write 61 seconds later reclaims the old bucket; re-touching second
	// 1000 afterwards starts from zero.
	if _, err := cache.IncrThroughput(ctx, 1061, 10, time.Minute); err != nil {
		t.Fatalf("IncrThroughput: %v", err)
	}
	got, err := cache.IncrThroughput(ctx, 1000, 5, time.Minute)
	if err != nil {
		t.Fatalf("IncrThroughput: %v", err)
	}
	if got != 5 {
		t.Errorf("reclaimed bucket total = %d, want 5", got)
	}
}

func TestRankCache_Peak(t *testing.T) {
	ctx := context.Background()
	cache := memory.NewRankCache()

	peak, err := cache.Peak(ctx)
	if err != nil {
		t.Fatalf("Peak: %v", err)
	}
	if peak != 0 {
		t.Errorf("initial peak = %d, want 0", peak)
	}

	if err := cache.SetPeak(ctx, 1200); err != nil {
		t.Fatalf("SetPeak: %v", err)
	}
	if peak, _ = cache.Peak(ctx); peak != 1200 {
		t.Errorf("peak = %d, want 1200", peak)
	}
}

func TestRankCache_MemberTotal(t *testing.T) {
	ctx := context.Background()
	cache := memory.NewRankCache()

	cache.IncrMemberTotal(ctx, "dev", 70)
	cache.IncrMemberTotal(ctx, "dev", 30)

	if got := cache.MemberTotal("dev"); got != 100 {
		t.Errorf("MemberTotal = %d, want 100", got)
	}
}
