package infrastructure

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"shopflow/internal/pkg/redis"
	"shopflow/internal/service/storage/domain"
)

const (
	addBackorderScriptName    = "backorder_add"
	removeBackorderScriptName = "backorder_remove"
)

// RedisBackorderRepository 用 Redis 有序集合保存每个商品的等待客户，score 是登记序号
type RedisBackorderRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewRedisBackorderRepository 加载脚本并创建仓储。ttl 为等待记录的保留时间。
func NewRedisBackorderRepository(redisClient *redis.Client, ttl time.Duration) (*RedisBackorderRepository, error) {
	if err := redisClient.LoadScriptFromContent(addBackorderScriptName, addBackorderScript); err != nil {
		return nil, fmt.Errorf("failed to load backorder script: %w", err)
	}
	if err := redisClient.LoadScriptFromContent(removeBackorderScriptName, removeBackorderScript); err != nil {
		return nil, fmt.Errorf("failed to load backorder script: %w", err)
	}
	return &RedisBackorderRepository{redisClient: redisClient, ttl: ttl}, nil
}

func backorderKey(productID string) string {
	return fmt.Sprintf("storage:waiting:{%s}", productID)
}

func backorderSeqKey(productID string) string {
	return fmt.Sprintf("storage:waiting:seq:{%s}", productID)
}

func (r *RedisBackorderRepository) Add(ctx context.Context, productID, customerID string) error {
	_, err := r.redisClient.RunScript(ctx, addBackorderScriptName,
		[]string{backorderKey(productID), backorderSeqKey(productID)}, customerID, int64(r.ttl/time.Second))
	if err != nil {
		return fmt.Errorf("failed to add backorder for %s: %w", productID, err)
	}
	return nil
}

func (r *RedisBackorderRepository) Members(ctx context.Context, productID string) ([]domain.Backorder, error) {
	entries, err := r.redisClient.GetClient().ZRangeWithScores(ctx, backorderKey(productID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read backorders of %s: %w", productID, err)
	}
	members := make([]domain.Backorder, 0, len(entries))
	for _, e := range entries {
		id, ok := e.Member.(string)
		if !ok {
			continue
		}
		members = append(members, domain.Backorder{CustomerID: id, Seq: int64(e.Score)})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].CustomerID < members[j].CustomerID })
	return members, nil
}

func (r *RedisBackorderRepository) Remove(ctx context.Context, productID string, notified ...domain.Backorder) error {
	if len(notified) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(notified)*2)
	for _, b := range notified {
		args = append(args, b.CustomerID, strconv.FormatInt(b.Seq, 10))
	}
	if _, err := r.redisClient.RunScript(ctx, removeBackorderScriptName, []string{backorderKey(productID)}, args...); err != nil {
		return fmt.Errorf("failed to remove backorders of %s: %w", productID, err)
	}
	return nil
}

var addBackorderScript = `
-- KEYS[1]: 等待集合, 例如 storage:waiting:{product_123}
-- KEYS[2]: 登记序号
-- ARGV[1]: 客户 ID
-- ARGV[2]: 过期秒数, <= 0 表示不过期
local seq = redis.call('incr', KEYS[2])
local added = redis.call('zadd', KEYS[1], seq, ARGV[1])
local ttl = tonumber(ARGV[2])
if ttl and ttl > 0 then
    redis.call('expire', KEYS[1], ttl)
end
return added
`

var removeBackorderScript = `
-- KEYS[1]: 等待集合
-- ARGV: 客户 ID 与读取时的序号, 成对出现
local removed = 0
for i = 1, #ARGV, 2 do
    local score = redis.call('zscore', KEYS[1], ARGV[i])
    if score and tonumber(score) == tonumber(ARGV[i + 1]) then
        removed = removed + redis.call('zrem', KEYS[1], ARGV[i])
    end
end
return removed
`
