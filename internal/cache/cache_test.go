package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/flightfinder/internal/cache"
)

type coords struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func newTestRedisStore(t *testing.T, ttl time.Duration) (*cache.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return cache.NewRedisStore(client, "geocode", ttl), mr
}

// ---- RedisStore ----

func TestRedisStore_SetAndGetJSON(t *testing.T) {
	s, _ := newTestRedisStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, cache.SetJSON(ctx, s, "paris", coords{Lat: 48.8566, Lon: 2.3522}))

	got, err := cache.GetJSON[coords](ctx, s, "paris")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 48.8566, got.Lat)
	assert.Equal(t, 2.3522, got.Lon)
}

func TestRedisStore_Get_Miss(t *testing.T) {
	s, _ := newTestRedisStore(t, time.Hour)

	got, err := cache.GetJSON[coords](context.Background(), s, "nowhere")
	require.NoError(t, err)
	assert.Nil(t, got, "cache miss should return nil, nil")
}

func TestRedisStore_KeysArePrefixed(t *testing.T) {
	s, mr := newTestRedisStore(t, 0)
	require.NoError(t, s.Set(context.Background(), "tokyo", []byte(`{}`)))

	assert.True(t, mr.Exists("geocode:tokyo"))
}

func TestRedisStore_Delete(t *testing.T) {
	s, _ := newTestRedisStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "paris", []byte(`{"lat":1}`)))
	require.NoError(t, s.Delete(ctx, "paris"))

	got, err := s.Get(ctx, "paris")
	require.NoError(t, err)
	assert.Nil(t, got, "entry should be gone after delete")
}

func TestRedisStore_Delete_NonExistent(t *testing.T) {
	s, _ := newTestRedisStore(t, time.Hour)
	require.NoError(t, s.Delete(context.Background(), "ghost"))
}

func TestRedisStore_Set_NilValue(t *testing.T) {
	s, mr := newTestRedisStore(t, time.Hour)
	require.NoError(t, s.Set(context.Background(), "paris", nil))
	assert.False(t, mr.Exists("geocode:paris"))
}

func TestRedisStore_TTL(t *testing.T) {
	s, mr := newTestRedisStore(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "paris", []byte(`{}`)))
	mr.FastForward(2 * time.Hour)

	got, err := s.Get(ctx, "paris")
	require.NoError(t, err)
	assert.Nil(t, got, "entry should be expired after TTL")
}

func TestRedisStore_ZeroTTLPersists(t *testing.T) {
	s, mr := newTestRedisStore(t, 0)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "paris", []byte(`{}`)))
	mr.FastForward(48 * time.Hour)

	got, err := s.Get(ctx, "paris")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestGetJSON_BadPayload(t *testing.T) {
	s, _ := newTestRedisStore(t, time.Hour)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "paris", []byte("not-json")))

	_, err := cache.GetJSON[coords](ctx, s, "paris")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshaling")
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := cache.Connect(context.Background(), "not-a-url")
	require.Error(t, err)
}

func TestConnect_UnreachableServer(t *testing.T) {
	_, err := cache.Connect(context.Background(), "redis://localhost:19999")
	require.Error(t, err)
}

// ---- MemoryStore ----

func TestMemoryStore_SetAndGet(t *testing.T) {
	s := cache.NewMemoryStore(0, 0)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := cache.NewMemoryStore(0, 0)
	ctx := context.Background()

	in := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", in))
	in[0] = 'z'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestMemoryStore_EvictsOldest(t *testing.T) {
	s := cache.NewMemoryStore(0, 2)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", []byte("1")))
	require.NoError(t, s.Set(ctx, "b", []byte("2")))
	require.NoError(t, s.Set(ctx, "a", []byte("3")))
	require.NoError(t, s.Set(ctx, "c", []byte("4")))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got, "oldest key should be evicted")
	assert.Equal(t, 2, s.Len())
}

func TestMemoryStore_TTL(t *testing.T) {
	s := cache.NewMemoryStore(10*time.Millisecond, 0)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	time.Sleep(20 * time.Millisecond)

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_Reset(t *testing.T) {
	s := cache.NewMemoryStore(0, 0)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", []byte("v")))

	s.Reset()
	assert.Equal(t, 0, s.Len())
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "new york", cache.NormalizeKey("  New   York "))
}
