package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRepository stores session fields as individual redis keys under a
// common prefix. Atomic updates buffer the batch and flush it through a
// MULTI/EXEC pipeline, so a failed or cancelled update applies nothing.
type RedisRepository struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisRepository(rdb *redis.Client, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "signon"
	}
	return &RedisRepository{rdb: rdb, prefix: prefix}
}

func (r *RedisRepository) key(field string) string {
	return r.prefix + ":" + field
}

func (r *RedisRepository) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session[%s]: %w", key, err)
	}
	return value, nil
}

func (r *RedisRepository) Update(ctx context.Context, fn func(ctx context.Context, b Batch) error) error {
	b := &redisBatch{}
	if err := fn(ctx, b); err != nil {
		return err
	}
	if len(b.ops) == 0 {
		return nil
	}

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range b.ops {
			if op.del {
				pipe.Del(ctx, r.key(op.key))
			} else {
				pipe.Set(ctx, r.key(op.key), op.value, 0)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

func (r *RedisRepository) Clear(ctx context.Context) error {
	keys := []string{
		r.key(KeyUsername),
		r.key(KeySessionToken),
		r.key(KeyCredentials),
		r.key(KeyLocalCredentialID),
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

type redisOp struct {
	key   string
	value []byte
	del   bool
}

// redisBatch records operations; nothing reaches redis until the pipeline
// in Update flushes them.
type redisBatch struct {
	ops []redisOp
}

func (b *redisBatch) Set(_ context.Context, key string, value []byte) error {
	b.ops = append(b.ops, redisOp{key: key, value: append([]byte(nil), value...)})
	return nil
}

func (b *redisBatch) Delete(_ context.Context, key string) error {
	b.ops = append(b.ops, redisOp{key: key, del: true})
	return nil
}
