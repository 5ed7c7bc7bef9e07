package provision_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/elastic-orchestrator/internal/provision"
)

func TestLedger(t *testing.T) {
	ledgers := map[string]func(t *testing.T) provision.Ledger{
		"memory": func(t *testing.T) provision.Ledger {
			return provision.NewMemoryLedger()
		},
		"redis": func(t *testing.T) provision.Ledger {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { client.Close() })
			return provision.NewRedisLedger(client, "")
		},
	}

	for name, newLedger := range ledgers {
		t.Run(name, func(t *testing.T) {
			ledger := newLedger(t)
			ctx := context.Background()

			added, err := ledger.Add(ctx, "shop/cart", "req-1")
			require.NoError(t, err)
			assert.True(t, added)

			added, err = ledger.Add(ctx, "shop/cart", "req-1")
			require.NoError(t, err)
			assert.False(t, added, "a request id is recorded at most once")

			_, err = ledger.Add(ctx, "shop/cart", "req-2")
			require.NoError(t, err)
			_, err = ledger.Add(ctx, "shop/web", "req-3")
			require.NoError(t, err)

			count, err := ledger.Count(ctx, "shop/cart")
			require.NoError(t, err)
			assert.Equal(t, 2, count)

			removed, err := ledger.Remove(ctx, "shop/cart", "req-1")
			require.NoError(t, err)
			assert.True(t, removed)

			removed, err = ledger.Remove(ctx, "shop/cart", "req-1")
			require.NoError(t, err)
			assert.False(t, removed)

			require.NoError(t, ledger.Clear(ctx, "shop/cart"))
			count, err = ledger.Count(ctx, "shop/cart")
			require.NoError(t, err)
			assert.Equal(t, 0, count)

			count, err = ledger.Count(ctx, "shop/web")
			require.NoError(t, err)
			assert.Equal(t, 1, count)
		})
	}
}

func TestRedisLedger_SharedAcrossClients(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	first := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer first.Close()
	second := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer second.Close()

	a := provision.NewRedisLedger(first, "test:")
	b := provision.NewRedisLedger(second, "test:")

	added, err := a.Add(ctx, "shop/cart", "req-1")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = b.Add(ctx, "shop/cart", "req-1")
	require.NoError(t, err)
	assert.False(t, added)

	count, err := b.Count(ctx, "shop/cart")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.True(t, mr.Exists("test:shop/cart"))
}

func TestRedisLedger_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	ledger := provision.NewRedisLedger(client, "")

	mr.Close()

	_, err := ledger.Count(context.Background(), "shop/cart")
	assert.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := provision.NewRedisClient(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	client.Close()

	mr.Close()
	_, err = provision.NewRedisClient(context.Background(), mr.Addr(), "", 0)
	assert.Error(t, err)
}
