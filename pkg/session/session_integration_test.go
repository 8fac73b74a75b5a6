//go:build integration

package session

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sall0568/cinescope-client/internal/testutil"
	"github.com/sall0568/cinescope-client/pkg/config"
)

// TestSharedRedisCache runs two sessions against one redis: the second
// session is served from the entry the first one stored.
func TestSharedRedisCache(t *testing.T) {
	rc := testutil.StartRedis(t)

	f := newFixture(t)
	f.cfg.Cache.Backend = config.BackendRedis
	f.cfg.Liveness.Enabled = false
	f.upstream.SetResponse("/api/tmdb/tv/1399", testutil.NewOKResponse(`{"id":1399,"name":"Game of Thrones"}`))

	first := f.open(t, WithRedisClient(rc))
	require.NoError(t, first.Start())

	ctx := context.Background()
	show, err := first.Catalog().TV.Details(ctx, 1399)
	require.NoError(t, err)
	assert.Equal(t, "Game of Thrones", show.Name)

	second, err := New(f.cfg, zerolog.Nop(), WithScheduler(testutil.NewManualScheduler()), WithRedisClient(rc))
	require.NoError(t, err)
	defer second.Close()

	again, err := second.Catalog().TV.Details(ctx, 1399)
	require.NoError(t, err)
	assert.Equal(t, show, again)
	assert.Equal(t, 1, f.upstream.PathCount("/api/tmdb/tv/1399"))

	stats := second.Store().Stats(ctx)
	assert.Equal(t, []string{"/tmdb/tv/1399?language=fr-FR"}, stats.Keys)

	// Closing a session does not close a redis client it was handed.
	require.NoError(t, first.Close())
	require.NoError(t, rc.Ping(ctx).Err())
}
