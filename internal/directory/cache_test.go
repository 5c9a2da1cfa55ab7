package directory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/orrn/remoteprint/internal/config"
	"github.com/orrn/remoteprint/internal/core"
)

type countingDirectory struct {
	printers map[int64]*core.Printer
	calls    int
}

func (d *countingDirectory) Get(_ context.Context, id int64) (*core.Printer, error) {
	d.calls++
	p, ok := d.printers[id]
	if !ok {
		return nil, ErrPrinterNotFound
	}
	return core.NewPrinter(p.ID, p.Name, p.Online, p.Capabilities), nil
}

func newTestCache(t *testing.T, inner core.PrinterDirectory) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCache(inner, client, time.Minute, WithCacheLogger(zaptest.NewLogger(t))), mr
}

func TestCache_ReadsThroughOnce(t *testing.T) {
	ctx := context.Background()
	inner := &countingDirectory{printers: map[int64]*core.Printer{
		1: core.NewPrinter(1, "lab", true, labCaps()),
	}}
	cache, mr := newTestCache(t, inner)

	p, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "lab", p.Name)

	p, err = cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, labCaps(), p.Capabilities)
	assert.Equal(t, 1, inner.calls)

	assert.True(t, mr.Exists("remoteprint:printer:1"))
	assert.Equal(t, time.Minute, mr.TTL("remoteprint:printer:1"))

	mr.FastForward(2 * time.Minute)
	_, err = cache.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	inner := &countingDirectory{printers: map[int64]*core.Printer{
		2: core.NewPrinter(2, "lab", true, labCaps()),
	}}
	cache, _ := newTestCache(t, inner)

	_, err := cache.Get(ctx, 2)
	require.NoError(t, err)

	inner.printers[2] = core.NewPrinter(2, "lab", false, labCaps())
	require.NoError(t, cache.Invalidate(ctx, 2))

	p, err := cache.Get(ctx, 2)
	require.NoError(t, err)
	assert.False(t, p.IsOnline())
}

func TestCache_MissingPrinterIsNotCached(t *testing.T) {
	ctx := context.Background()
	inner := &countingDirectory{printers: map[int64]*core.Printer{}}
	cache, mr := newTestCache(t, inner)

	_, err := cache.Get(ctx, 3)
	assert.ErrorIs(t, err, ErrPrinterNotFound)
	assert.False(t, mr.Exists("remoteprint:printer:3"))
}

func TestCache_FallsThroughWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	inner := &countingDirectory{printers: map[int64]*core.Printer{
		4: core.NewPrinter(4, "lab", true, labCaps()),
	}}
	cache, mr := newTestCache(t, inner)
	mr.Close()

	p, err := cache.Get(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "lab", p.Name)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	client.Close()

	mr.Close()
	_, err = NewRedisClient(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	assert.Error(t, err)
}

func TestCache_RefreshDropsStaleSnapshot(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{printers: map[int64]*core.Printer{}}
	m := NewManager(openTestDB(t), config.PrintersConfig{},
		WithStatusSource(source), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, m.Add(ctx, core.NewPrinter(60, "dock", true, labCaps())))

	cache, mr := newTestCache(t, m)
	m.AddInvalidator(cache)

	p, err := cache.Get(ctx, 60)
	require.NoError(t, err)
	require.True(t, p.IsOnline())
	require.True(t, mr.Exists(cacheKey(60)))

	source.set(core.NewPrinter(60, "dock", false, labCaps()))
	m.Refresh(ctx)
	assert.False(t, mr.Exists(cacheKey(60)))

	p, err = cache.Get(ctx, 60)
	require.NoError(t, err)
	assert.False(t, p.IsOnline())

	_, err = core.NewService(cache, nil, nil).NewJob().SetPrinter(ctx, core.PrinterID(60))
	assert.ErrorIs(t, err, core.ErrPrinterOffline)
}

func TestCache_LostSourceDropsSnapshot(t *testing.T) {
	ctx := context.Background()
	source := &fakeSource{printers: map[int64]*core.Printer{}}
	m := NewManager(openTestDB(t), config.PrintersConfig{},
		WithStatusSource(source), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, m.Add(ctx, core.NewPrinter(61, "annex", true, labCaps())))

	cache, _ := newTestCache(t, m)
	m.AddInvalidator(cache)
	_, err := cache.Get(ctx, 61)
	require.NoError(t, err)

	// the source does not know printer 61, so refresh marks it offline
	m.Refresh(ctx)

	p, err := cache.Get(ctx, 61)
	require.NoError(t, err)
	assert.False(t, p.IsOnline())
}

func TestManager_LoadDropsSnapshotsFromEarlierRuns(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	m := NewManager(conn, config.PrintersConfig{})
	require.NoError(t, m.Add(ctx, core.NewPrinter(62, "loft", true, labCaps())))

	cache, mr := newTestCache(t, m)
	_, err := cache.Get(ctx, 62)
	require.NoError(t, err)
	require.True(t, mr.Exists(cacheKey(62)))

	restarted := NewManager(conn, config.PrintersConfig{})
	restarted.AddInvalidator(cache)
	require.NoError(t, restarted.Load(ctx))
	assert.False(t, mr.Exists(cacheKey(62)))
}
