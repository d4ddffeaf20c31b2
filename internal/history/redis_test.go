package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisBuffer(t *testing.T, max int) (*RedisBuffer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisBuffer(client, max, time.Hour), mr
}

func TestRedisBuffer_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	b, mr := newRedisBuffer(t, 3)

	for i := 1; i <= 4; i++ {
		require.NoError(t, b.Append(ctx, "avito:1:2", Turn{Role: RoleClient, Text: fmt.Sprint(i)}))
	}

	w, err := b.Window(ctx, "avito:1:2")
	require.NoError(t, err)
	require.Len(t, w, 3)
	assert.Equal(t, "2", w[0].Text)
	assert.Equal(t, "4", w[2].Text)

	assert.True(t, mr.TTL(redisKey("avito:1:2")) > 0)
}

func TestRedisBuffer_ReplaceAndClear(t *testing.T) {
	ctx := context.Background()
	b, _ := newRedisBuffer(t, 2)

	require.NoError(t, b.Replace(ctx, "c1", []Turn{{RoleClient, "a"}, {RoleAssistant, "b"}, {RoleClient, "c"}}))
	require.NoError(t, b.Append(ctx, "c2", Turn{Role: RoleClient, Text: "hi"}))

	w, err := b.Window(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []Turn{{RoleAssistant, "b"}, {RoleClient, "c"}}, w)

	n, err := b.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, b.Clear(ctx, "c1"))
	w, err = b.Window(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, w)

	n, _ = b.Active(ctx)
	assert.Equal(t, 1, n)
}

func TestRedisBuffer_ActiveDropsExpiredWindows(t *testing.T) {
	ctx := context.Background()
	b, mr := newRedisBuffer(t, 4)

	require.NoError(t, b.Append(ctx, "avito:1:2", Turn{Role: RoleClient, Text: "старый"}))
	mr.FastForward(2 * time.Hour)
	require.NoError(t, b.Append(ctx, "telegram:7", Turn{Role: RoleClient, Text: "свежий"}))

	n, err := b.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	members, err := mr.Members(redisActiveKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"telegram:7"}, members)
}
