package dedup

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// newTestRedisIndex connects to REDIS_ADDR (default localhost:6379) and skips
// the test when no server answers. Every test gets its own key.
func newTestRedisIndex(t *testing.T, ttl time.Duration) *RedisIndex {
	t.Helper()

	addr := cmp.Or(os.Getenv("REDIS_ADDR"), "localhost:6379")
	key := fmt.Sprintf("newsbot:test:%s:%d", t.Name(), time.Now().UnixNano())

	idx, err := NewRedisIndex(RedisConfig{Addr: addr, Key: key}, ttl)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", addr, err)
	}

	t.Cleanup(func() {
		idx.client.Del(context.Background(), key)
		idx.Close()
	})
	return idx
}

func TestRedisIndex_MatchOrAdd(t *testing.T) {
	ctx := context.Background()
	idx := newTestRedisIndex(t, time.Hour)

	fp := Compute("Rates Rise", storyBody)
	near := Compute("Rates Rise", storyBody+" Markets")

	m, err := idx.MatchOrAdd(ctx, fp, "feed-a", MatchOptions{Threshold: 3})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if m.Duplicate() {
		t.Errorf("Expected first item to be new, got %s", m.Kind)
	}

	m, _ = idx.MatchOrAdd(ctx, fp, "feed-b", MatchOptions{Threshold: 3})
	if m.Kind != ExactMatch || !m.CrossSource || m.SourceID != "feed-a" {
		t.Errorf("Expected cross-source exact match against feed-a, got %+v", m)
	}

	m, _ = idx.MatchOrAdd(ctx, near, "feed-a", MatchOptions{Threshold: 3})
	if m.Kind != NearMatch {
		t.Errorf("Expected near match within the same feed, got %s", m.Kind)
	}

	if n, err := idx.Len(ctx); err != nil || n != 1 {
		t.Errorf("Expected 1 entry, got %d (err %v)", n, err)
	}

	m, _ = idx.MatchOrAdd(ctx, near, "feed-c", MatchOptions{Threshold: 3})
	if m.Duplicate() {
		t.Errorf("Expected near copy from another feed to pass without cross-source dedup, got %s", m.Kind)
	}
	if n, _ := idx.Len(ctx); n != 2 {
		t.Errorf("Expected 2 entries, got %d", n)
	}
}

func TestRedisIndex_ConcurrentMatchOrAdd(t *testing.T) {
	ctx := context.Background()
	idx := newTestRedisIndex(t, time.Hour)
	fp := Compute("Rates Rise", storyBody)

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := idx.MatchOrAdd(ctx, fp, fmt.Sprintf("feed-%d", i), MatchOptions{CrossSource: true, Threshold: 3})
			if err != nil {
				t.Errorf("Expected no error, got: %v", err)
				return
			}
			if !m.Duplicate() {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	if n := accepted.Load(); n != 1 {
		t.Errorf("Expected exactly one caller to accept the story, got %d", n)
	}
}

func TestRedisIndex_Prune(t *testing.T) {
	ctx := context.Background()
	idx := newTestRedisIndex(t, time.Hour)
	now := time.Now()
	idx.now = func() time.Time { return now }
	opts := MatchOptions{Threshold: 3}

	old := Compute("old", storyBody)
	idx.MatchOrAdd(ctx, old, "feed", opts)

	now = now.Add(45 * time.Minute)
	idx.MatchOrAdd(ctx, Compute("fresh", "something else entirely"), "feed", opts)

	now = now.Add(30 * time.Minute)
	removed, err := idx.Prune(ctx)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed entry, got %d", removed)
	}
	if n, _ := idx.Len(ctx); n != 1 {
		t.Errorf("Expected 1 remaining entry, got %d", n)
	}
}
