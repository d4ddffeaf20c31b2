package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "intake:history:"
	redisActiveKey = "intake:history:active"
)

// RedisBuffer shares the window between processes. Each client is a list
// trimmed with LTRIM after every push.
type RedisBuffer struct {
	rdb *redis.Client
	max int64
	ttl time.Duration
}

func NewRedisBuffer(rdb *redis.Client, max int, ttl time.Duration) *RedisBuffer {
	return &RedisBuffer{rdb: rdb, max: int64(max), ttl: ttl}
}

func redisKey(clientID string) string {
	return redisKeyPrefix + clientID
}

func (b *RedisBuffer) Append(ctx context.Context, clientID string, turn Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return errors.Wrap(err, "history: marshal turn")
	}

	key := redisKey(clientID)
	pipe := b.rdb.TxPipeline()
	pipe.RPush(ctx, key, data)
	if b.max > 0 {
		pipe.LTrim(ctx, key, -b.max, -1)
	}
	if b.ttl > 0 {
		pipe.Expire(ctx, key, b.ttl)
	}
	pipe.SAdd(ctx, redisActiveKey, clientID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "history: append")
	}
	return nil
}

func (b *RedisBuffer) Window(ctx context.Context, clientID string) ([]Turn, error) {
	raw, err := b.rdb.LRange(ctx, redisKey(clientID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Turn{}, nil
		}
		return nil, errors.Wrap(err, "history: window")
	}

	out := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (b *RedisBuffer) Replace(ctx context.Context, clientID string, turns []Turn) error {
	turns = Trim(turns, int(b.max))
	key := redisKey(clientID)

	pipe := b.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(turns) == 0 {
		pipe.SRem(ctx, redisActiveKey, clientID)
	} else {
		values := make([]any, 0, len(turns))
		for _, t := range turns {
			data, err := json.Marshal(t)
			if err != nil {
				return errors.Wrap(err, "history: marshal turn")
			}
			values = append(values, data)
		}
		pipe.RPush(ctx, key, values...)
		if b.ttl > 0 {
			pipe.Expire(ctx, key, b.ttl)
		}
		pipe.SAdd(ctx, redisActiveKey, clientID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "history: replace")
	}
	return nil
}

func (b *RedisBuffer) Clear(ctx context.Context, clientID string) error {
	pipe := b.rdb.TxPipeline()
	pipe.Del(ctx, redisKey(clientID))
	pipe.SRem(ctx, redisActiveKey, clientID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "history: clear")
	}
	return nil
}

// Active counts clients whose window still exists. Ids whose list expired
// are removed from the active set on the way.
func (b *RedisBuffer) Active(ctx context.Context) (int, error) {
	ids, err := b.rdb.SMembers(ctx, redisActiveKey).Result()
	if err != nil {
		return 0, errors.Wrap(err, "history: active")
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := b.rdb.Pipeline()
	exists := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		exists[i] = pipe.Exists(ctx, redisKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errors.Wrap(err, "history: active")
	}

	var stale []any
	for i, cmd := range exists {
		if cmd.Val() == 0 {
			stale = append(stale, ids[i])
		}
	}
	if len(stale) > 0 {
		if err := b.rdb.SRem(ctx, redisActiveKey, stale...).Err(); err != nil {
			return 0, errors.Wrap(err, "history: prune active")
		}
	}
	return len(ids) - len(stale), nil
}
