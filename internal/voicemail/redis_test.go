package voicemail

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, ttl), mr
}

func TestRedisStore_RoundTripAndIndexes(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t, time.Hour)
	created := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Put(ctx, Snapshot{Token: "A", CallerNumber: "+79000000001", DurationSeconds: 42, PressedKey: "1", CreatedAt: created}))
	require.NoError(t, s.Put(ctx, Snapshot{Token: "B", CallerNumber: "+79000000002", PressedKey: "2", CreatedAt: created.Add(time.Minute)}))

	a, ok, err := s.Get(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Snapshot{Token: "A", CallerNumber: "+79000000001", DurationSeconds: 42, PressedKey: "1", CreatedAt: created}, a)

	latest, ok, err := s.Latest(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "B", latest.Token)

	byCaller, ok, err := s.FindByCaller(ctx, "+79000000001")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A", byCaller.Token)

	_, ok, err = s.FindByCaller(ctx, "+79000000003")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.Get(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_UpdatesApplyOnlyToStoredTokens(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Hour)
	require.NoError(t, s.Put(ctx, Snapshot{Token: "A", CallerNumber: "+79000000001", PressedKey: "0"}))
	require.NoError(t, s.Put(ctx, Snapshot{Token: "B", CallerNumber: "+79000000002"}))

	ok, err := s.UpdateRecordingURL(ctx, "A", "https://rec/a.mp3")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.UpdatePressedKey(ctx, "A", "3")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UpdateRecordingURL(ctx, "unknown", "https://rec/x.mp3")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.UpdatePressedKey(ctx, "unknown", "5")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(snapKey("unknown")), "an update must not create a snapshot")

	a, _, _ := s.Get(ctx, "A")
	assert.Equal(t, "https://rec/a.mp3", a.RecordingURL)
	assert.Equal(t, "3", a.PressedKey)
	assert.Equal(t, "+79000000001", a.CallerNumber)

	latest, _, _ := s.Latest(ctx)
	assert.Equal(t, "B", latest.Token)
}

func TestRedisStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Hour)
	require.NoError(t, s.Put(ctx, Snapshot{Token: "A", CallerNumber: "+79000000001"}))

	mr.FastForward(2 * time.Hour)

	_, ok, err := s.Get(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, _ = s.Latest(ctx)
	assert.False(t, ok)
	_, ok, _ = s.FindByCaller(ctx, "+79000000001")
	assert.False(t, ok)
	ok, _ = s.UpdateRecordingURL(ctx, "A", "u")
	assert.False(t, ok)
}

func TestRedisStore_TakeExpired(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t, 3*time.Hour)
	base := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Put(ctx, Snapshot{Token: "old", CallerNumber: "+79000000001", CreatedAt: base.Add(-time.Hour)}))
	require.NoError(t, s.Put(ctx, Snapshot{Token: "done", CreatedAt: base.Add(-time.Hour)}))
	require.NoError(t, s.Put(ctx, Snapshot{Token: "new", CreatedAt: base}))
	require.NoError(t, s.Resolve(ctx, "done"))

	got, err := s.TakeExpired(ctx, base.Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "old", got[0].Token)
	assert.Equal(t, "+79000000001", got[0].CallerNumber)

	again, err := s.TakeExpired(ctx, base.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, again)

	done, ok, _ := s.Get(ctx, "done")
	require.True(t, ok)
	assert.True(t, done.Resolved)
}

func TestRedisStore_PendingOutlivesSnapshot(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Hour)
	base := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(ctx, Snapshot{Token: "A", CallerNumber: "+79000000001", CreatedAt: base}))

	mr.FastForward(2 * time.Hour)

	got, err := s.TakeExpired(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Snapshot{Token: "A"}, got[0])
}

func TestRedisStore_PutKeepsResolved(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t, time.Hour)
	created := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(ctx, Snapshot{Token: "A", CreatedAt: created}))
	require.NoError(t, s.Resolve(ctx, "A"))
	require.NoError(t, s.Put(ctx, Snapshot{Token: "A", CallerNumber: "+79000000001", CreatedAt: created}))

	a, _, _ := s.Get(ctx, "A")
	assert.True(t, a.Resolved)
	assert.Equal(t, "+79000000001", a.CallerNumber)
	expired, err := s.TakeExpired(ctx, created.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestRedisStore_PutResolvedSnapshot(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t, time.Hour)
	created := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(ctx, Snapshot{Token: "A", CreatedAt: created, Resolved: true}))

	a, _, _ := s.Get(ctx, "A")
	assert.True(t, a.Resolved)
	expired, err := s.TakeExpired(ctx, created.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestRedisStore_MessageKeys(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Hour)

	_, ok, err := s.MessageKey(ctx, "<m1@mail>")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.RememberMessage(ctx, "<m1@mail>", "entry:T1"))
	key, ok, err := s.MessageKey(ctx, "<m1@mail>")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "entry:T1", key)

	mr.FastForward(2 * time.Hour)
	_, ok, err = s.MessageKey(ctx, "<m1@mail>")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_UnmatchedIsTakenOnceOldestFirst(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisStore(t, 24*time.Hour)
	base := time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)
	caller := "+79000000001"

	require.NoError(t, s.AddUnmatched(ctx, caller, "mail:b", base.Add(-10*time.Minute)))
	require.NoError(t, s.AddUnmatched(ctx, caller, "mail:a", base.Add(-20*time.Minute)))
	require.NoError(t, s.AddUnmatched(ctx, caller, "mail:old", base.Add(-3*time.Hour)))
	require.NoError(t, s.AddUnmatched(ctx, caller, "mail:a", base.Add(-20*time.Minute)))

	since := base.Add(-time.Hour)
	key, ok, err := s.TakeUnmatched(ctx, caller, since)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "mail:a", key)
	key, ok, err = s.TakeUnmatched(ctx, caller, since)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "mail:b", key)
	_, ok, err = s.TakeUnmatched(ctx, caller, since)
	require.NoError(t, err)
	assert.False(t, ok, "the remaining mark is older than since")
	_, ok, err = s.TakeUnmatched(ctx, "+79000000002", since)
	require.NoError(t, err)
	assert.False(t, ok)
}
