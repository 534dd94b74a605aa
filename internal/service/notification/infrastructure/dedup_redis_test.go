package infrastructure

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"shopflow/internal/pkg/redis"
)

func TestRedisDeduplicator(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	defer client.Close()

	d := NewRedisDeduplicator(client, time.Minute)
	ctx := context.Background()

	first, err := d.FirstSeen(ctx, "e-1")
	if err != nil || !first {
		t.Fatalf("Expected first sighting, got %v %v", first, err)
	}
	again, err := d.FirstSeen(ctx, "e-1")
	if err != nil || again {
		t.Errorf("Expected duplicate, got %v %v", again, err)
	}

	mr.FastForward(2 * time.Minute)
	if first, _ := d.FirstSeen(ctx, "e-1"); !first {
		t.Errorf("Expected event to be forgotten after ttl")
	}
}
