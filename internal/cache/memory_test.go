package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock shared by the store tests
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var roleExpiration = Expiration{Absolute: time.Hour, Sliding: 30 * time.Minute}

func setupMemoryStore(t *testing.T) (*MemoryStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	store := NewMemoryStore(0)
	store.now = clock.Now
	t.Cleanup(func() { store.Close() })
	return store, clock
}

func TestMemoryStore_GetSet(t *testing.T) {
	ctx := context.Background()
	store, _ := setupMemoryStore(t)

	_, ok, err := store.Get(ctx, "role:id:1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "role:id:1", []byte("admin"), roleExpiration))

	value, ok, err := store.Get(ctx, "role:id:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("admin"), value)
}

func TestMemoryStore_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	store, _ := setupMemoryStore(t)

	original := []byte("admin")
	require.NoError(t, store.Set(ctx, "k", original, roleExpiration))
	original[0] = 'X'

	value, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("admin"), value)

	value[0] = 'Y'
	again, _, _ := store.Get(ctx, "k")
	assert.Equal(t, []byte("admin"), again)
}

func TestMemoryStore_SlidingExpiration(t *testing.T) {
	ctx := context.Background()
	store, clock := setupMemoryStore(t)
	require.NoError(t, store.Set(ctx, "k", []byte("v"), roleExpiration))

	t.Run("reads renew the window", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			clock.Advance(15 * time.Minute)
			_, ok, err := store.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok, "read %d", i)
		}
	})

	t.Run("idle entry expires", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "idle", []byte("v"), roleExpiration))
		clock.Advance(30 * time.Minute)
		_, ok, err := store.Get(ctx, "idle")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMemoryStore_AbsoluteExpiration(t *testing.T) {
	ctx := context.Background()
	store, clock := setupMemoryStore(t)
	require.NoError(t, store.Set(ctx, "k", []byte("v"), roleExpiration))

	// Keep the entry warm; the absolute bound still ends it after one hour
	for elapsed := 10 * time.Minute; elapsed < time.Hour; elapsed += 10 * time.Minute {
		clock.Advance(10 * time.Minute)
		_, ok, _ := store.Get(ctx, "k")
		require.True(t, ok, "entry should live at %s", elapsed)
	}

	clock.Advance(10 * time.Minute)
	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_NoExpiration(t *testing.T) {
	ctx := context.Background()
	store, clock := setupMemoryStore(t)
	require.NoError(t, store.Set(ctx, "k", []byte("v"), Expiration{}))

	clock.Advance(24 * 365 * time.Hour)
	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_Remove(t *testing.T) {
	ctx := context.Background()
	store, _ := setupMemoryStore(t)

	require.NoError(t, store.Set(ctx, "role:id:1", []byte("a"), roleExpiration))
	require.NoError(t, store.Set(ctx, "role:name:admin", []byte("a"), roleExpiration))
	require.NoError(t, store.Set(ctx, "role:all", []byte("[]"), roleExpiration))

	require.NoError(t, store.Remove(ctx, "role:id:1", "role:name:admin", "missing"))

	_, ok, _ := store.Get(ctx, "role:id:1")
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, "role:name:admin")
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, "role:all")
	assert.True(t, ok)
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	store, clock := setupMemoryStore(t)

	require.NoError(t, store.Set(ctx, "short", []byte("v"), Expiration{Absolute: time.Minute}))
	require.NoError(t, store.Set(ctx, "long", []byte("v"), roleExpiration))

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	store, _ := setupMemoryStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, store.Set(ctx, "k", []byte("v"), roleExpiration), context.Canceled)
}

func TestMemoryStore_Close(t *testing.T) {
	store := NewMemoryStore(time.Millisecond)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Millisecond)
	defer store.Close()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("role:id:%d", i%10)
				switch (w + i) % 3 {
				case 0:
					_ = store.Set(ctx, key, []byte(key), roleExpiration)
				case 1:
					if value, ok, _ := store.Get(ctx, key); ok {
						assert.Equal(t, key, string(value))
					}
				default:
					_ = store.Remove(ctx, key)
				}
			}
		}(w)
	}
	wg.Wait()
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	store, _ := setupMemoryStore(t)

	type view struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}

	require.NoError(t, SetJSON(ctx, store, "role:id:1", view{ID: 1, Name: "Admin"}, roleExpiration))

	got, ok, err := GetJSON[view](ctx, store, "role:id:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, view{ID: 1, Name: "Admin"}, got)

	_, ok, err = GetJSON[view](ctx, store, "role:id:2")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "broken", []byte("{"), roleExpiration))
	_, ok, err = GetJSON[view](ctx, store, "broken")
	assert.Error(t, err)
	assert.False(t, ok)
}
