package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/analyticbot/apiclient/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := New()
	s.now = clock.Now
	return s, clock
}

func TestStoreGetSetDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	_, err := s.Get(ctx, storage.KeyAuthToken)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.Set(ctx, storage.KeyAuthToken, []byte("jwt-1"), 0))
	got, err := s.Get(ctx, storage.KeyAuthToken)
	require.NoError(t, err)
	assert.Equal(t, []byte("jwt-1"), got)

	require.NoError(t, s.Delete(ctx, storage.KeyAuthToken))
	require.NoError(t, s.Delete(ctx, storage.KeyAuthToken))
	_, err = s.Get(ctx, storage.KeyAuthToken)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	value := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", value, 0))
	value[0] = 'x'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	got[1] = 'y'
	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestStoreTTL(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore()

	require.NoError(t, s.Set(ctx, "short", []byte("v"), time.Minute))
	require.NoError(t, s.Set(ctx, "forever", []byte("v"), 0))
	assert.Equal(t, 2, s.Len())

	clock.Advance(59 * time.Second)
	_, err := s.Get(ctx, "short")
	require.NoError(t, err)

	clock.Advance(time.Second)
	_, err = s.Get(ctx, "short")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 1, s.Len())

	assert.ErrorIs(t, s.Set(ctx, "bad", []byte("v"), -time.Second), storage.ErrInvalidTTL)
}

func TestStoreClose(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()
	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))

	require.NoError(t, s.Health(ctx))
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), storage.ErrClosed)
	assert.ErrorIs(t, s.Health(ctx), storage.ErrClosed)

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrClosed)
	assert.ErrorIs(t, s.Set(ctx, "k", nil, 0), storage.ErrClosed)
	assert.ErrorIs(t, s.Delete(ctx, "k"), storage.ErrClosed)
}

func TestStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := string(rune('a' + i))
			for range 50 {
				_ = s.Set(ctx, key, []byte(key), time.Minute)
				_, _ = s.Get(ctx, key)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, s.Len())
}
