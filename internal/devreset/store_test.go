package devreset

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_PutGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Put(ctx, "Ops@Example.com", "tok-1", time.Now().UTC().Add(5*time.Minute))

	tok, ok := store.Get(ctx, " ops@example.com ")
	if !ok {
		t.Fatal("Get should find the token case-insensitively")
	}
	if tok != "tok-1" {
		t.Errorf("token = %q, want tok-1", tok)
	}
}

func TestMemoryStore_PutReplaces(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	exp := time.Now().UTC().Add(time.Minute)

	store.Put(ctx, "a@example.com", "old", exp)
	store.Put(ctx, "a@example.com", "new", exp)

	if tok, _ := store.Get(ctx, "a@example.com"); tok != "new" {
		t.Errorf("token = %q, want new", tok)
	}
}

func TestMemoryStore_Get_Missing(t *testing.T) {
	store := NewMemoryStore()
	if tok, ok := store.Get(context.Background(), "nobody@example.com"); ok || tok != "" {
		t.Errorf("Get = %q, %v; want empty, false", tok, ok)
	}
}

func TestMemoryStore_Get_Expired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Put(ctx, "a@example.com", "tok", time.Now().UTC().Add(-time.Minute))

	if _, ok := store.Get(ctx, "a@example.com"); ok {
		t.Error("expired token should not be returned")
	}
	store.mu.RLock()
	_, still := store.m["a@example.com"]
	store.mu.RUnlock()
	if still {
		t.Error("expired entry should be removed")
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	exp := time.Now().UTC().Add(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Put(ctx, "a@example.com", "tok", exp)
			store.Get(ctx, "a@example.com")
		}()
	}
	wg.Wait()
}
