package utility

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGetDelete(t *testing.T) {
	ctx := context.Background()
	svc := newMemoryCacheService(time.Hour)
	defer svc.Stop()

	v, err := svc.Get(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, v, "不存在的键返回空字符串")

	require.NoError(t, svc.Set(ctx, "json", []byte(`{"a":1}`), 0))
	require.NoError(t, svc.Set(ctx, "num", 42, 0))

	v, _ = svc.Get(ctx, "json")
	require.Equal(t, `{"a":1}`, v)
	v, _ = svc.Get(ctx, "num")
	require.Equal(t, "42", v)

	require.NoError(t, svc.Delete(ctx, "json", "num"))
	v, _ = svc.Get(ctx, "json")
	require.Empty(t, v)
}

func TestMemoryCacheExpiration(t *testing.T) {
	ctx := context.Background()
	svc := newMemoryCacheService(time.Hour)
	defer svc.Stop()

	now := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.Set(ctx, "k", "v", 10*time.Minute))
	require.NoError(t, svc.Set(ctx, "forever", "v", 0))

	now = now.Add(9 * time.Minute)
	v, _ := svc.Get(ctx, "k")
	require.Equal(t, "v", v)

	now = now.Add(2 * time.Minute)
	v, _ = svc.Get(ctx, "k")
	require.Empty(t, v, "过期后应读不到")

	svc.purge()
	v, _ = svc.Get(ctx, "forever")
	require.Equal(t, "v", v)
}

func TestCacheFactoryFallsBackToMemory(t *testing.T) {
	svc := NewCacheServiceWithFallback(nil)
	require.Equal(t, CacheTypeMemory, GetCacheServiceType(svc))
	svc.(*memoryCacheService).Stop()
}
