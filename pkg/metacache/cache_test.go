// ABOUTME: Tests for the read-through metadata cache
// ABOUTME: Verifies miss/hit semantics, failure handling and single-flight

package metacache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	fail  bool
	delay time.Duration
}

func (f *fakeFetcher) FetchMetadata(ctx context.Context, collection string) (*Entry, error) {
	f.mu.Lock()
	f.calls++
	fail := f.fail
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if fail {
		return nil, errors.New("connection refused")
	}
	return &Entry{
		Collection: collection,
		Schema:     map[string]string{"_id": "objectId", "status": "string"},
		Indexes:    []IndexInfo{{Name: "_id_", Keys: []IndexKey{{Field: "_id", Spec: "1"}}}},
		FetchedAt:  time.Now(),
	}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestGetMissThenHit(t *testing.T) {
	fetcher := &fakeFetcher{}
	cache := New(fetcher)
	ctx := context.Background()

	first, err := cache.Get(ctx, "orders")
	if err != nil {
		t.Fatalf("First get failed: %v", err)
	}

	second, err := cache.Get(ctx, "orders")
	if err != nil {
		t.Fatalf("Second get failed: %v", err)
	}

	if first != second {
		t.Error("Repeated gets must return the identical entry")
	}
	if fetcher.callCount() != 1 {
		t.Errorf("Expected exactly 1 fetch, got %d", fetcher.callCount())
	}

	stats := cache.Stats()
	if stats.Misses != 1 || stats.Hits != 1 {
		t.Errorf("Expected 1 miss and 1 hit, got %d/%d", stats.Misses, stats.Hits)
	}
}

func TestGetDistinctCollections(t *testing.T) {
	fetcher := &fakeFetcher{}
	cache := New(fetcher)
	ctx := context.Background()

	if _, err := cache.Get(ctx, "orders"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := cache.Get(ctx, "users"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if fetcher.callCount() != 2 {
		t.Errorf("Expected 2 fetches for 2 collections, got %d", fetcher.callCount())
	}
	if cache.Len() != 2 {
		t.Errorf("Expected 2 cached entries, got %d", cache.Len())
	}
}

func TestGetFetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{fail: true}
	cache := New(fetcher)
	ctx := context.Background()

	_, err := cache.Get(ctx, "orders")
	if !errors.Is(err, ErrMetadataUnavailable) {
		t.Fatalf("Expected ErrMetadataUnavailable, got %v", err)
	}
	if cache.Len() != 0 {
		t.Error("Failed fetches must not be cached")
	}

	// The collection stays fetchable once the backend recovers
	fetcher.mu.Lock()
	fetcher.fail = false
	fetcher.mu.Unlock()

	entry, err := cache.Get(ctx, "orders")
	if err != nil {
		t.Fatalf("Get after recovery failed: %v", err)
	}
	if entry.Collection != "orders" {
		t.Errorf("Expected entry for orders, got %s", entry.Collection)
	}
}

func TestGetSingleFlight(t *testing.T) {
	fetcher := &fakeFetcher{delay: 50 * time.Millisecond}
	cache := New(fetcher)
	ctx := context.Background()

	const callers = 10
	var wg sync.WaitGroup
	var failures atomic.Int32
	entries := make([]*Entry, callers)

	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := cache.Get(ctx, "orders")
			if err != nil {
				failures.Add(1)
				return
			}
			entries[i] = entry
		}()
	}
	wg.Wait()

	if failures.Load() != 0 {
		t.Fatalf("%d concurrent gets failed", failures.Load())
	}
	if fetcher.callCount() != 1 {
		t.Errorf("Concurrent first gets must coalesce into 1 fetch, got %d", fetcher.callCount())
	}
	for i := 1; i < callers; i++ {
		if entries[i] != entries[0] {
			t.Fatal("All concurrent callers must observe the same entry")
		}
	}
}

func TestEntryImmutableAcrossGets(t *testing.T) {
	fetcher := &fakeFetcher{}
	cache := New(fetcher)
	ctx := context.Background()

	first, err := cache.Get(ctx, "orders")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	fetchedAt := first.FetchedAt

	time.Sleep(5 * time.Millisecond)
	second, err := cache.Get(ctx, "orders")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if !second.FetchedAt.Equal(fetchedAt) {
		t.Error("Cached entry must keep its original fetch timestamp")
	}
}
