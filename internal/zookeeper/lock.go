// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-zookeeper/zk"
)

const (
	lockRoot = "/distributed_locks" // 所有分布式锁的根节点
)

// DistributedLock 基于临时顺序节点的分布式锁
type DistributedLock struct {
	conn     *Conn
	path     string // 例如 /distributed_locks/low-stock-scan
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建锁实例，必要时创建根节点和锁节点
func NewDistributedLock(conn *Conn, resourceID string) (*DistributedLock, error) {
	lockPath := lockRoot + "/" + resourceID
	for _, p := range []string{lockRoot, lockPath} {
		_, err := conn.Create(p, []byte(""), 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return nil, fmt.Errorf("failed to create lock node %s: %w", p, err)
		}
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

// TryLock 尝试获取锁，不等待。拿不到时清理自己创建的节点并返回 false。
func (l *DistributedLock) TryLock() (bool, error) {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return false, fmt.Errorf("failed to create sequential node: %w", err)
	}

	children, _, err := l.conn.Children(l.path)
	if err != nil {
		_ = l.conn.Delete(nodePath, -1)
		return false, fmt.Errorf("failed to get children nodes: %w", err)
	}
	// protected 节点名带 GUID 前缀，按序号排序
	sort.Slice(children, func(i, j int) bool { return sequenceOf(children[i]) < sequenceOf(children[j]) })

	myNodeName := strings.TrimPrefix(nodePath, l.path+"/")
	if len(children) > 0 && children[0] == myNodeName {
		l.lockNode = nodePath
		return true, nil
	}

	if err := l.conn.Delete(nodePath, -1); err != nil && !errors.Is(err, zk.ErrNoNode) {
		return false, fmt.Errorf("failed to delete lock node: %w", err)
	}
	return false, nil
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	l.lockNode = ""
	return nil
}

// RunOnce 在持有锁的前提下执行 fn，并把 token 记到锁节点上。
// 同一个 token 只会被执行一次，之后拿到锁的副本会直接跳过。
func (l *DistributedLock) RunOnce(ctx context.Context, token string, fn func(ctx context.Context) error) (bool, error) {
	acquired, err := l.TryLock()
	if err != nil || !acquired {
		return false, err
	}
	defer l.Unlock()

	data, stat, err := l.conn.Get(l.path)
	if err != nil {
		return false, fmt.Errorf("failed to read lock marker: %w", err)
	}
	if string(data) == token {
		return false, nil
	}

	if err := fn(ctx); err != nil {
		return true, err
	}
	if _, err := l.conn.Set(l.path, []byte(token), stat.Version); err != nil {
		return true, fmt.Errorf("failed to write lock marker: %w", err)
	}
	return true, nil
}

// sequenceOf 取出节点名末尾的 10 位序号
func sequenceOf(node string) string {
	if len(node) < 10 {
		return node
	}
	return node[len(node)-10:]
}
