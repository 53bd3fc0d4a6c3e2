package lru

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

type evictLog struct {
	mu   sync.Mutex
	keys []string
}

func (l *evictLog) record(key string, _ int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
}

func (l *evictLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.keys...)
}

func TestGetPut(t *testing.T) {
	c := New[string, int](2, nil)

	c.Put("a", 1)
	c.Put("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("expected a=1, got %v %v", v, ok)
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Fatalf("expected b=2, got %v %v", v, ok)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss")
	}
}

func TestEvictionCallsHook(t *testing.T) {
	var log evictLog
	c := New[string, int](2, log.record)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // b is now least recently used

	if !c.Put("c", 3) {
		t.Fatal("expected eviction")
	}
	if got := log.all(); len(got) != 1 || got[0] != "b" {
		t.Fatalf("expected b evicted, got %v", got)
	}
	if _, ok := c.Get("b"); ok {
		t.Fatal("b should be gone")
	}
}

func TestPutExistingDoesNotEvict(t *testing.T) {
	var log evictLog
	c := New[string, int](2, log.record)

	c.Put("a", 1)
	c.Put("b", 2)
	if c.Put("a", 10) {
		t.Fatal("update should not evict")
	}
	if v, _ := c.Get("a"); v != 10 {
		t.Fatalf("expected a=10, got %d", v)
	}
	if len(log.all()) != 0 {
		t.Fatal("hook must not run on update")
	}
}

func TestGetOrAdd(t *testing.T) {
	c := New[string, int](2, nil)
	calls := 0
	create := func() (int, error) {
		calls++
		return 42, nil
	}

	v, found, err := c.GetOrAdd("a", create)
	if err != nil || found || v != 42 {
		t.Fatalf("first GetOrAdd: v=%d found=%v err=%v", v, found, err)
	}
	v, found, err = c.GetOrAdd("a", create)
	if err != nil || !found || v != 42 {
		t.Fatalf("second GetOrAdd: v=%d found=%v err=%v", v, found, err)
	}
	if calls != 1 {
		t.Fatalf("create called %d times", calls)
	}
}

func TestGetOrAddError(t *testing.T) {
	c := New[string, int](2, nil)
	boom := errors.New("boom")

	_, _, err := c.GetOrAdd("a", func() (int, error) { return 0, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if c.Len() != 0 {
		t.Fatal("failed create must not insert")
	}
}

func TestRemoveAndPurge(t *testing.T) {
	var log evictLog
	c := New[string, int](3, log.record)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	if !c.Remove("b") {
		t.Fatal("expected b removed")
	}
	if c.Remove("b") {
		t.Fatal("second remove should report false")
	}

	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Len())
	}
	got := log.all()
	if len(got) != 3 || got[0] != "b" || got[1] != "c" || got[2] != "a" {
		t.Fatalf("unexpected eviction order %v", got)
	}
}

func TestKeysAndValuesOrder(t *testing.T) {
	c := New[string, int](3, nil)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)
	c.Get("a")

	keys := c.Keys()
	if fmt.Sprint(keys) != "[a c b]" {
		t.Fatalf("unexpected key order %v", keys)
	}
	vals := c.Values()
	if fmt.Sprint(vals) != "[1 3 2]" {
		t.Fatalf("unexpected value order %v", vals)
	}
}

func TestHookMayReenterCache(t *testing.T) {
	var c *Cache[string, int]
	c = New[string, int](1, func(string, int) {
		_ = c.Len()
	})
	c.Put("a", 1)
	c.Put("b", 2)
	if c.Len() != 1 {
		t.Fatalf("expected len 1, got %d", c.Len())
	}
}

func TestNewPanicsOnZeroSize(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	New[string, int](0, nil)
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int, int](64, nil)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				k := (g*500 + i) % 128
				c.Put(k, i)
				c.Get(k)
				_, _, _ = c.GetOrAdd(k+1, func() (int, error) { return i, nil })
			}
		}(g)
	}
	wg.Wait()
	if c.Len() > 64 {
		t.Fatalf("cache exceeded size: %d", c.Len())
	}
}
