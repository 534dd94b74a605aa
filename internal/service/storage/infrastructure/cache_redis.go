package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"shopflow/internal/pkg/logger"
	"shopflow/internal/pkg/metrics"
	"shopflow/internal/pkg/redis"
	"shopflow/internal/service/storage/domain"
)

const (
	setStockScriptName   = "stock_cache_set"
	evictStockScriptName = "stock_cache_evict"

	// 代数要比任何一次回源活得久
	stockGenerationTTL = 24 * time.Hour
)

// RedisStockCache 是库存读缓存 (cache-aside)。同一商品的并发回源会被 singleflight 合并。
// 不存在的商品不缓存，避免新建商品后仍被判定为缺货。
// 每个商品有一个代数，Evict 时加一；回源结果只有在代数没变时才写回，
// 回源期间提交的修改不会被旧值覆盖。
type RedisStockCache struct {
	redisClient *redis.Client
	ttl         time.Duration
	group       singleflight.Group
}

func NewRedisStockCache(redisClient *redis.Client, ttl time.Duration) (*RedisStockCache, error) {
	if err := redisClient.LoadScriptFromContent(setStockScriptName, setStockScript); err != nil {
		return nil, err
	}
	if err := redisClient.LoadScriptFromContent(evictStockScriptName, evictStockScript); err != nil {
		return nil, err
	}
	return &RedisStockCache{redisClient: redisClient, ttl: ttl}, nil
}

func stockCacheKey(productID string) string {
	return fmt.Sprintf("storage:stock:{%s}", productID)
}

func stockGenerationKey(productID string) string {
	return fmt.Sprintf("storage:stock:gen:{%s}", productID)
}

func (c *RedisStockCache) Get(ctx context.Context, productID string, load func(ctx context.Context) (*domain.StorageRecord, error)) (*domain.StorageRecord, error) {
	key := stockCacheKey(productID)

	data, err := c.redisClient.GetClient().Get(ctx, key).Bytes()
	if err == nil {
		var record domain.StorageRecord
		if err := json.Unmarshal(data, &record); err == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return &record, nil
		}
	} else if err != goredis.Nil {
		// 缓存不可用时直接回源
		logger.Ctx(ctx).Warn().Err(err).Str("product_id", productID).Msg("stock cache read failed")
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	v, err, _ := c.group.Do(productID, func() (interface{}, error) {
		// 先读代数再回源
		gen, genErr := c.generation(ctx, productID)
		record, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if genErr != nil {
			logger.Ctx(ctx).Warn().Err(genErr).Str("product_id", productID).Msg("stock cache generation read failed, skipping write")
			return record, nil
		}
		c.store(ctx, productID, gen, record)
		return record, nil
	})
	if err != nil {
		return nil, err
	}
	record := *v.(*domain.StorageRecord)
	return &record, nil
}

func (c *RedisStockCache) generation(ctx context.Context, productID string) (string, error) {
	gen, err := c.redisClient.GetClient().Get(ctx, stockGenerationKey(productID)).Result()
	if err == goredis.Nil {
		return "0", nil
	}
	return gen, err
}

func (c *RedisStockCache) store(ctx context.Context, productID, gen string, record *domain.StorageRecord) {
	payload, err := json.Marshal(record)
	if err != nil {
		return
	}
	written, err := c.redisClient.RunScript(ctx, setStockScriptName,
		[]string{stockCacheKey(productID), stockGenerationKey(productID)},
		gen, payload, c.ttl.Milliseconds())
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("product_id", productID).Msg("stock cache write failed")
		return
	}
	if n, _ := written.(int64); n == 0 {
		metrics.CacheLookups.WithLabelValues("stale").Inc()
	}
}

func (c *RedisStockCache) Evict(ctx context.Context, productIDs ...string) {
	// 集群模式下多 key 会跨 slot，逐个商品执行
	for _, id := range productIDs {
		_, err := c.redisClient.RunScript(ctx, evictStockScriptName,
			[]string{stockCacheKey(id), stockGenerationKey(id)},
			stockGenerationTTL.Milliseconds())
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("product_id", id).Msg("stock cache evict failed")
		}
	}
}

var setStockScript = `
-- KEYS[1]: 缓存值, KEYS[2]: 代数
-- ARGV[1]: 回源前读到的代数, ARGV[2]: 值, ARGV[3]: 过期毫秒, <= 0 表示不过期
local gen = redis.call('get', KEYS[2]) or '0'
if gen ~= ARGV[1] then
    return 0
end
local ttl = tonumber(ARGV[3])
if ttl and ttl > 0 then
    redis.call('set', KEYS[1], ARGV[2], 'PX', ttl)
else
    redis.call('set', KEYS[1], ARGV[2])
end
return 1
`

var evictStockScript = `
-- KEYS[1]: 缓存值, KEYS[2]: 代数
-- ARGV[1]: 代数的过期毫秒
redis.call('del', KEYS[1])
redis.call('incr', KEYS[2])
redis.call('pexpire', KEYS[2], ARGV[1])
return 1
`
