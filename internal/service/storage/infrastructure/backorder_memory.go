package infrastructure

import (
	"context"
	"sort"
	"sync"

	"shopflow/internal/service/storage/domain"
)

// MemoryBackorderRepository 是进程内实现，未配置 Redis 时使用
type MemoryBackorderRepository struct {
	mu      sync.Mutex
	seq     int64
	waiting map[string]map[string]int64
}

func NewMemoryBackorderRepository() *MemoryBackorderRepository {
	return &MemoryBackorderRepository{waiting: make(map[string]map[string]int64)}
}

func (r *MemoryBackorderRepository) Add(_ context.Context, productID, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.waiting[productID]
	if !ok {
		set = make(map[string]int64)
		r.waiting[productID] = set
	}
	r.seq++
	set[customerID] = r.seq
	return nil
}

func (r *MemoryBackorderRepository) Members(_ context.Context, productID string) ([]domain.Backorder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := make([]domain.Backorder, 0, len(r.waiting[productID]))
	for id, seq := range r.waiting[productID] {
		members = append(members, domain.Backorder{CustomerID: id, Seq: seq})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].CustomerID < members[j].CustomerID })
	return members, nil
}

func (r *MemoryBackorderRepository) Remove(_ context.Context, productID string, notified ...domain.Backorder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.waiting[productID]
	for _, b := range notified {
		if seq, ok := set[b.CustomerID]; ok && seq == b.Seq {
			delete(set, b.CustomerID)
		}
	}
	if len(set) == 0 {
		delete(r.waiting, productID)
	}
	return nil
}
