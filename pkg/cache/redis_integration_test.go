//go:build integration

package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sall0568/cinescope-client/internal/testutil"
)

// Two stores on the same Redis behave as one shared cache.
func TestRedisStore_SharedBetweenStores(t *testing.T) {
	client := testutil.StartRedis(t)
	ctx := context.Background()

	writer := NewRedisStore(client, time.Minute)
	reader := NewRedisStore(client, time.Minute)

	writer.Set(ctx, "/tmdb/movie/603?language=fr-FR", json.RawMessage(`{"id":603}`))

	got, ok := reader.Get(ctx, "/tmdb/movie/603?language=fr-FR")
	if !ok {
		t.Fatal("reader should see writer's entry")
	}
	if string(got) != `{"id":603}` {
		t.Errorf("Get() = %s", got)
	}

	other := NewRedisStore(client, time.Minute, WithKeyPrefix("other:"))
	if _, ok := other.Get(ctx, "/tmdb/movie/603?language=fr-FR"); ok {
		t.Error("a different prefix must not see the entry")
	}

	reader.Clear(ctx)
	if _, ok := writer.Get(ctx, "/tmdb/movie/603?language=fr-FR"); ok {
		t.Error("Clear should be visible to every store on the prefix")
	}
}

func TestRedisStore_NativeExpiry(t *testing.T) {
	client := testutil.StartRedis(t)
	ctx := context.Background()

	store := NewRedisStore(client, time.Second)
	store.Set(ctx, "k", json.RawMessage(`1`))

	time.Sleep(1500 * time.Millisecond)

	if _, ok := store.Get(ctx, "k"); ok {
		t.Error("entry should have expired in Redis")
	}
}
