package kvstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

func TestMemoryBasicOps(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || value != "v1" {
		t.Fatalf("unexpected get result value=%q ok=%v err=%v", value, ok, err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatalf("expected key gone after delete")
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("deleting absent key should not error: %v", err)
	}
}

func TestMemoryCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	// empty expected creates only when absent
	won, err := store.CompareAndSwap(ctx, "k", "", "v1")
	if err != nil || !won {
		t.Fatalf("expected create to win, got won=%v err=%v", won, err)
	}
	won, err = store.CompareAndSwap(ctx, "k", "", "v2")
	if err != nil || won {
		t.Fatalf("create against existing key should lose, got won=%v err=%v", won, err)
	}

	won, err = store.CompareAndSwap(ctx, "k", "v1", "v2")
	if err != nil || !won {
		t.Fatalf("matching swap should win, got won=%v err=%v", won, err)
	}
	won, err = store.CompareAndSwap(ctx, "k", "v1", "v3")
	if err != nil || won {
		t.Fatalf("stale swap should lose, got won=%v err=%v", won, err)
	}

	// empty next deletes on success
	won, err = store.CompareAndSwap(ctx, "k", "v2", "")
	if err != nil || !won {
		t.Fatalf("cas-delete should win, got won=%v err=%v", won, err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatalf("expected key gone after cas-delete")
	}
}

func TestMemoryCompareAndSwapSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	if err := store.Set(ctx, "counter", "0"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	const racers = 32
	var wg sync.WaitGroup
	wins := make(chan int, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			won, err := store.CompareAndSwap(ctx, "counter", "0", fmt.Sprintf("%d", id+1))
			if err != nil {
				t.Errorf("cas failed: %v", err)
				return
			}
			if won {
				wins <- id
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners int
	for range wins {
		winners++
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestRedisStoreGetSetDelete(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	store, err := NewRedis(fake)
	if err != nil {
		t.Fatalf("new redis store: %v", err)
	}

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if fake.data["lp:kv:k"] != "v1" {
		t.Fatalf("expected namespaced key, have %v", fake.data)
	}
	value, ok, err := store.Get(ctx, "k")
	if err != nil || !ok || value != "v1" {
		t.Fatalf("unexpected get result value=%q ok=%v err=%v", value, ok, err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatalf("expected key gone after delete")
	}
}

func TestRedisStoreCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	store, _ := NewRedis(fake)

	won, err := store.CompareAndSwap(ctx, "k", "", "v1")
	if err != nil || !won {
		t.Fatalf("expected create to win, got won=%v err=%v", won, err)
	}
	won, err = store.CompareAndSwap(ctx, "k", "stale", "v2")
	if err != nil || won {
		t.Fatalf("stale swap should lose, got won=%v err=%v", won, err)
	}
	won, err = store.CompareAndSwap(ctx, "k", "v1", "")
	if err != nil || !won {
		t.Fatalf("cas-delete should win, got won=%v err=%v", won, err)
	}
	if _, exists := fake.data["lp:kv:k"]; exists {
		t.Fatalf("expected key gone after cas-delete")
	}
}

// fakeRedis mirrors the CAS script semantics in Go so the Redis-backed
// store can be exercised without a server.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return value, nil
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = fmt.Sprint(value)
	return nil
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeRedis) Eval(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current := f.data[keys[0]]
	expected := fmt.Sprint(args[0])
	next := fmt.Sprint(args[1])
	if current != expected {
		return int64(0), nil
	}
	if next == "" {
		delete(f.data, keys[0])
	} else {
		f.data[keys[0]] = next
	}
	return int64(1), nil
}

func (f *fakeRedis) KVKey(name string) string {
	return strings.Join([]string{"lp", "kv", name}, ":")
}
