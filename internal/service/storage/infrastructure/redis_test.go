package infrastructure

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"shopflow/internal/pkg/redis"
	"shopflow/internal/service/storage/domain"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisBackorderRepository(t *testing.T) {
	mr, client := newMiniRedis(t)
	repo, err := NewRedisBackorderRepository(client, time.Hour)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	ctx := context.Background()

	// 同一客户重复登记不会覆盖其他客户
	for _, c := range []string{"c2", "c1", "c2"} {
		if err := repo.Add(ctx, "p1", c); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}
	members, _ := repo.Members(ctx, "p1")
	if len(members) != 2 || members[0].CustomerID != "c1" || members[1].CustomerID != "c2" {
		t.Fatalf("Expected [c1 c2], got %v", members)
	}
	if ttl := mr.TTL(backorderKey("p1")); ttl <= 0 {
		t.Errorf("Expected a ttl on the backorder set, got %s", ttl)
	}

	if err := repo.Remove(ctx, "p1", members[0]); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	members, _ = repo.Members(ctx, "p1")
	if len(members) != 1 || members[0].CustomerID != "c2" {
		t.Errorf("Expected [c2], got %v", members)
	}
}

func TestRedisBackorderRemoveKeepsReRegisteredCustomer(t *testing.T) {
	_, client := newMiniRedis(t)
	repo, err := NewRedisBackorderRepository(client, time.Hour)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	testRemoveKeepsReRegisteredCustomer(t, repo)
}

func TestMemoryBackorderRepository(t *testing.T) {
	repo := NewMemoryBackorderRepository()
	ctx := context.Background()
	_ = repo.Add(ctx, "p1", "c1")
	_ = repo.Add(ctx, "p1", "c2")
	read, _ := repo.Members(ctx, "p1")
	_ = repo.Remove(ctx, "p1", read...)

	members, _ := repo.Members(ctx, "p1")
	if len(members) != 0 {
		t.Errorf("Expected no members, got %v", members)
	}
}

func TestMemoryBackorderRemoveKeepsReRegisteredCustomer(t *testing.T) {
	testRemoveKeepsReRegisteredCustomer(t, NewMemoryBackorderRepository())
}

func testRemoveKeepsReRegisteredCustomer(t *testing.T, repo domain.BackorderRepository) {
	t.Helper()
	ctx := context.Background()
	for _, c := range []string{"c1", "c2"} {
		if err := repo.Add(ctx, "p1", c); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}
	read, err := repo.Members(ctx, "p1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// c1 在读取之后又登记了一次
	if err := repo.Add(ctx, "p1", "c1"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := repo.Remove(ctx, "p1", read...); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	members, _ := repo.Members(ctx, "p1")
	if len(members) != 1 || members[0].CustomerID != "c1" {
		t.Errorf("Expected [c1], got %v", members)
	}
}

func TestRedisStockCache(t *testing.T) {
	_, client := newMiniRedis(t)
	cache, err := NewRedisStockCache(client, time.Minute)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	ctx := context.Background()

	loads := 0
	load := func(context.Context) (*domain.StorageRecord, error) {
		loads++
		return &domain.StorageRecord{ProductID: "p1", Quantity: 3}, nil
	}

	for i := 0; i < 3; i++ {
		record, err := cache.Get(ctx, "p1", load)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if record.Quantity != 3 {
			t.Errorf("Expected quantity 3, got %d", record.Quantity)
		}
	}
	if loads != 1 {
		t.Errorf("Expected 1 load, got %d", loads)
	}

	cache.Evict(ctx, "p1")
	if _, err := cache.Get(ctx, "p1", load); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if loads != 2 {
		t.Errorf("Expected reload after evict, got %d loads", loads)
	}
}

func TestRedisStockCacheDoesNotCacheMissing(t *testing.T) {
	_, client := newMiniRedis(t)
	cache, err := NewRedisStockCache(client, time.Minute)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	loads := 0
	load := func(context.Context) (*domain.StorageRecord, error) {
		loads++
		return nil, domain.ErrProductNotFound
	}
	for i := 0; i < 2; i++ {
		if _, err := cache.Get(context.Background(), "ghost", load); !errors.Is(err, domain.ErrProductNotFound) {
			t.Fatalf("Expected ErrProductNotFound, got %v", err)
		}
	}
	if loads != 2 {
		t.Errorf("Expected every lookup of a missing product to hit the repository, got %d", loads)
	}
}

func TestRedisStockCacheSkipsWriteWhenEvictedDuringLoad(t *testing.T) {
	mr, client := newMiniRedis(t)
	cache, err := NewRedisStockCache(client, time.Minute)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	ctx := context.Background()

	quantity := 0
	loads := 0
	load := func(context.Context) (*domain.StorageRecord, error) {
		loads++
		record := &domain.StorageRecord{ProductID: "p", Quantity: quantity}
		if loads == 1 {
			// 读库之后、写缓存之前有一次补货提交
			quantity = 5
			cache.Evict(ctx, "p")
		}
		return record, nil
	}

	first, err := cache.Get(ctx, "p", load)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if first.Quantity != 0 {
		t.Errorf("Expected the in-flight read to see 0, got %d", first.Quantity)
	}
	if mr.Exists(stockCacheKey("p")) {
		t.Fatalf("Expected the stale value not to be cached")
	}

	second, err := cache.Get(ctx, "p", load)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if second.Quantity != 5 || loads != 2 {
		t.Errorf("Expected a reload returning 5, got %d after %d loads", second.Quantity, loads)
	}
	if !mr.Exists(stockCacheKey("p")) {
		t.Errorf("Expected the fresh value to be cached")
	}
}
