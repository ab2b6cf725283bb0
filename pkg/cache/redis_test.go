package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	t.Run("host port", func(t *testing.T) {
		client, err := Connect(ctx, mr.Addr())
		require.NoError(t, err)
		defer client.Close()
		assert.NoError(t, client.Set(ctx, KeyPrefix+"k", "v", 0).Err())
	})

	t.Run("url", func(t *testing.T) {
		client, err := Connect(ctx, "redis://"+mr.Addr()+"/0")
		require.NoError(t, err)
		defer client.Close()
		got, err := client.Get(ctx, KeyPrefix+"k").Result()
		require.NoError(t, err)
		assert.Equal(t, "v", got)
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := Connect(ctx, "redis://user@[::1")
		assert.Error(t, err)
	})

	t.Run("unreachable", func(t *testing.T) {
		_, err := Connect(ctx, "127.0.0.1:1")
		assert.Error(t, err)
	})
}
