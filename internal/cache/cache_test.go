package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCache_GetPut(t *testing.T) {
	c := New[string, int](10, time.Minute)

	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss on empty cache")
	}

	c.Put("a", 42)
	v, ok := c.Get("a")
	if !ok || v != 42 {
		t.Fatalf("Get(a) = %d, %v; want 42, true", v, ok)
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	c := New[string, int](10, 10*time.Millisecond)
	c.Put("a", 1)

	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected hit before TTL")
	}

	time.Sleep(15 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected miss after TTL expiry")
	}
}

func TestCache_PutTTL(t *testing.T) {
	c := New[string, int](10, time.Hour)
	c.PutTTL("short", 1, 10*time.Millisecond)
	c.PutTTL("long", 2, time.Hour)

	time.Sleep(15 * time.Millisecond)

	if _, ok := c.Get("short"); ok {
		t.Fatal("expected miss for short TTL")
	}
	if v, ok := c.Get("long"); !ok || v != 2 {
		t.Fatal("expected hit for long TTL")
	}
}

func TestCache_LRUEviction(t *testing.T) {
	c := New[string, int](3, time.Minute)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	// Touch "a" so "b" becomes the eviction candidate.
	c.Get("a")
	c.Put("d", 4)

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected 'b' to be evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := c.Get(k); !ok {
			t.Fatalf("expected %q to survive", k)
		}
	}
}

func TestCache_PutReplacesExisting(t *testing.T) {
	c := New[string, int](10, time.Minute)
	c.Put("a", 1)
	c.Put("a", 2)

	v, ok := c.Get("a")
	if !ok || v != 2 {
		t.Fatalf("Get(a) = %d, %v; want 2, true", v, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d; want 1", c.Len())
	}
}

func TestCache_Delete(t *testing.T) {
	c := New[string, int](10, time.Minute)
	c.Put("a", 1)
	c.Put("b", 2)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected 'a' to be gone")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatal("expected 'b' to survive")
	}
}

func TestCache_DeleteWhere(t *testing.T) {
	c := New[string, int](10, time.Minute)
	c.Put("t1:s1", 1)
	c.Put("t1:s2", 2)
	c.Put("t2:s1", 3)

	c.DeleteWhere(func(k string) bool { return strings.HasPrefix(k, "t1:") })

	if _, ok := c.Get("t1:s1"); ok {
		t.Fatal("expected t1:s1 to be gone")
	}
	if _, ok := c.Get("t1:s2"); ok {
		t.Fatal("expected t1:s2 to be gone")
	}
	if _, ok := c.Get("t2:s1"); !ok {
		t.Fatal("expected t2:s1 to survive")
	}
}

func TestCache_RemoveExpired(t *testing.T) {
	c := New[string, int](10, time.Minute)
	c.PutTTL("dead1", 1, 5*time.Millisecond)
	c.PutTTL("dead2", 2, 5*time.Millisecond)
	c.Put("alive", 3)

	time.Sleep(10 * time.Millisecond)

	if n := c.RemoveExpired(); n != 2 {
		t.Fatalf("RemoveExpired() = %d; want 2", n)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d; want 1", c.Len())
	}
	if s := c.Stats(); s.Expired != 2 {
		t.Fatalf("Expired = %d; want 2", s.Expired)
	}
}

func TestCache_GetOrLoad(t *testing.T) {
	c := New[string, int](10, time.Minute)
	loads := 0
	loader := func(context.Context) (int, error) {
		loads++
		return 42, nil
	}

	v, err := c.GetOrLoad(context.Background(), "a", loader)
	if err != nil || v != 42 {
		t.Fatalf("GetOrLoad = %d, %v; want 42, nil", v, err)
	}
	v, err = c.GetOrLoad(context.Background(), "a", loader)
	if err != nil || v != 42 {
		t.Fatalf("GetOrLoad = %d, %v; want 42, nil", v, err)
	}
	if loads != 1 {
		t.Fatalf("loads = %d; want 1", loads)
	}
}

func TestCache_GetOrLoad_ErrorNotCached(t *testing.T) {
	c := New[string, int](10, time.Minute)
	errLoad := errors.New("load failed")

	_, err := c.GetOrLoad(context.Background(), "a", func(context.Context) (int, error) {
		return 0, errLoad
	})
	if !errors.Is(err, errLoad) {
		t.Fatalf("err = %v; want %v", err, errLoad)
	}
	if c.Len() != 0 {
		t.Fatal("error result must not be cached")
	}
}

func TestCache_GetOrLoad_Coalesced(t *testing.T) {
	c := New[string, int](10, time.Minute)
	var loadCount atomic.Int32
	loader := func(context.Context) (int, error) {
		loadCount.Add(1)
		time.Sleep(50 * time.Millisecond)
		return 99, nil
	}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "key", loader)
			if err != nil || v != 99 {
				t.Errorf("GetOrLoad = %d, %v; want 99, nil", v, err)
			}
		}()
	}
	wg.Wait()

	if n := loadCount.Load(); n != 1 {
		t.Fatalf("load count = %d; want 1", n)
	}
}

func TestCache_GetOrLoad_WaiterHonorsContext(t *testing.T) {
	c := New[string, int](10, time.Minute)
	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_, _ = c.GetOrLoad(context.Background(), "key", func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.GetOrLoad(ctx, "key", func(context.Context) (int, error) {
		t.Error("waiter must not run the loader")
		return 0, nil
	})
	close(release)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v; want context.DeadlineExceeded", err)
	}
}

func TestCache_Stats(t *testing.T) {
	c := New[string, int](3, time.Minute)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a")
	c.Get("missing")

	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Fatalf("stats = %+v; want 1 hit, 1 miss", s)
	}
	if s.Entries != 2 {
		t.Fatalf("Entries = %d; want 2", s.Entries)
	}
	if s.HitRate != 0.5 {
		t.Fatalf("HitRate = %f; want 0.5", s.HitRate)
	}

	c.Put("c", 3)
	c.Put("d", 4)
	if s := c.Stats(); s.Evictions != 1 {
		t.Fatalf("Evictions = %d; want 1", s.Evictions)
	}
}
