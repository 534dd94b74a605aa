// internal/zookeeper/conn.go
package zookeeper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-zookeeper/zk"
	"shopflow/internal/pkg/logger"
)

// Conn 是 zk.Conn 的薄包装
type Conn struct {
	*zk.Conn
}

// Connect 连接 ZooKeeper 集群并等待会话建立
func Connect(servers []string, sessionTimeout time.Duration) (*Conn, error) {
	conn, events, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}

	timeout := time.After(sessionTimeout)
	for {
		select {
		case ev := <-events:
			if ev.State == zk.StateHasSession {
				logger.Ctx(context.Background()).Info().Strs("servers", servers).Msg("✅ connected to ZooKeeper")
				go drainEvents(events)
				return &Conn{Conn: conn}, nil
			}
		case <-timeout:
			conn.Close()
			return nil, fmt.Errorf("timed out waiting for zookeeper session")
		}
	}
}

func drainEvents(events <-chan zk.Event) {
	for ev := range events {
		if ev.State == zk.StateExpired || ev.State == zk.StateDisconnected {
			logger.Ctx(context.Background()).Warn().Str("state", ev.State.String()).Msg("zookeeper session state changed")
		}
	}
}
