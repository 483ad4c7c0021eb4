package blockio

import (
	"context"
	"errors"
	"fmt"

	blocks "github.com/ipfs/go-block-format"
	cid "github.com/ipfs/go-cid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "oplog:block:"

// RedisStore keeps blocks in Redis, letting several replicas on one host
// share a block cache. Pins are tracked in a companion set.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client. The caller owns the client's
// lifecycle.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Put(ctx context.Context, b blocks.Block) error {
	err := r.client.SetNX(ctx, redisKeyPrefix+b.Cid().KeyString(), b.RawData(), 0).Err()
	if err != nil {
		return fmt.Errorf("put block: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, c cid.Cid) (blocks.Block, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+c.KeyString()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrBlockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get block: %w", err)
	}
	return blocks.NewBlockWithCid(data, c)
}

func (r *RedisStore) Pin(ctx context.Context, c cid.Cid) error {
	if err := r.client.SAdd(ctx, redisKeyPrefix+"pins", c.KeyString()).Err(); err != nil {
		return fmt.Errorf("pin block: %w", err)
	}
	return nil
}
