// internal/pipeline/registry_redis.go
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "pages-deployer/internal/common/errors"
	"pages-deployer/internal/common/retry"
	"pages-deployer/internal/models"
)

const (
	redisLockPrefix   = "pages-deployer:lock:"
	redisRecordPrefix = "pages-deployer:repo:"
)

// unlockScript deletes the lock only while it still holds our token.
const unlockScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) end return 0`

// RedisRegistry shares identities and locks between processes.
type RedisRegistry struct {
	client   redis.Cmdable
	lockTTL  time.Duration
	lockPoll time.Duration
	sleep    retry.SleepFunc
}

func NewRedisRegistry(client redis.Cmdable, lockTTL, lockPoll time.Duration) *RedisRegistry {
	return &RedisRegistry{client: client, lockTTL: lockTTL, lockPoll: lockPoll, sleep: retry.Sleep}
}

// Lock spins on SET NX PX until acquired or ctx ends. The TTL bounds how long a crashed
// holder can block an identity.
func (r *RedisRegistry) Lock(ctx context.Context, identity string) (func(), error) {
	key := redisLockPrefix + identity
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.lockTTL).Result()
		if err != nil {
			return nil, apperrors.NewRegistryUnavailableError(err)
		}
		if ok {
			return func() {
				// Background context: release even when the run's context is done.
				_ = r.client.Eval(context.Background(), unlockScript, []string{key}, token).Err()
			}, nil
		}
		if err := r.sleep(ctx, r.lockPoll); err != nil {
			return nil, err
		}
	}
}

func (r *RedisRegistry) Get(ctx context.Context, identity string) (*models.PublishedRepo, error) {
	raw, err := r.client.Get(ctx, redisRecordPrefix+identity).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewRegistryUnavailableError(err)
	}

	var repo models.PublishedRepo
	if err := json.Unmarshal(raw, &repo); err != nil {
		return nil, fmt.Errorf("decode registry record %s: %w", identity, err)
	}
	return &repo, nil
}

func (r *RedisRegistry) PutIfAbsent(ctx context.Context, identity string, repo models.PublishedRepo) (bool, error) {
	raw, err := json.Marshal(repo)
	if err != nil {
		return false, fmt.Errorf("encode registry record: %w", err)
	}
	ok, err := r.client.SetNX(ctx, redisRecordPrefix+identity, raw, 0).Result()
	if err != nil {
		return false, apperrors.NewRegistryUnavailableError(err)
	}
	return ok, nil
}
