package session

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *RedisRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisRepository(rdb, "signon-test")
}

func TestRedis_GetMissingKeyReturnsNil(t *testing.T) {
	repo := setupRedis(t)

	v, err := repo.Get(context.Background(), KeyUsername)
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestRedis_UpdateSetDeleteGet(t *testing.T) {
	repo := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, repo.Update(ctx, func(ctx context.Context, b Batch) error {
		if err := b.Set(ctx, KeyUsername, []byte("alice")); err != nil {
			return err
		}
		return b.Set(ctx, KeySessionToken, []byte("tok1"))
	}))

	u, err := repo.Get(ctx, KeyUsername)
	require.NoError(t, err)
	require.Equal(t, []byte("alice"), u)

	require.NoError(t, repo.Update(ctx, func(ctx context.Context, b Batch) error {
		return b.Delete(ctx, KeySessionToken)
	}))

	tok, err := repo.Get(ctx, KeySessionToken)
	require.NoError(t, err)
	require.Nil(t, tok)
}

func TestRedis_UpdateFnErrorAppliesNothing(t *testing.T) {
	repo := setupRedis(t)
	ctx := context.Background()

	err := repo.Update(ctx, func(ctx context.Context, b Batch) error {
		require.NoError(t, b.Set(ctx, KeyUsername, []byte("alice")))
		return errors.New("boom")
	})
	require.Error(t, err)

	v, err := repo.Get(ctx, KeyUsername)
	require.NoError(t, err)
	require.Nil(t, v, "batch must not reach redis when fn fails")
}

func TestRedis_ClearRemovesAllFields(t *testing.T) {
	repo := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, repo.Update(ctx, func(ctx context.Context, b Batch) error {
		for _, k := range []string{KeyUsername, KeySessionToken, KeyCredentials, KeyLocalCredentialID} {
			if err := b.Set(ctx, k, []byte("x")); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, repo.Clear(ctx))

	for _, k := range []string{KeyUsername, KeySessionToken, KeyCredentials, KeyLocalCredentialID} {
		v, err := repo.Get(ctx, k)
		require.NoError(t, err)
		require.Nil(t, v)
	}
}
