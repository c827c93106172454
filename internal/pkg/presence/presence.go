// Package presence 维护玩家在线状态注册表。
// 遭遇创建时会读取双方的在线快照写入审计字段。
package presence

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL 心跳过期时间。客户端网关每次收到心跳都会刷新。
const DefaultTTL = 2 * time.Minute

// Tracker 在线状态注册表接口
type Tracker interface {
	// MarkOnline 标记玩家在线，刷新过期时间
	MarkOnline(ctx context.Context, playerID string) error

	// MarkOffline 标记玩家离线
	MarkOffline(ctx context.Context, playerID string) error

	// IsOnline 查询玩家是否在线；查询失败时返回 false（降级，不阻断业务）
	IsOnline(ctx context.Context, playerID string) bool
}

// MemoryTracker 进程内在线状态注册表。
// 共享可变状态由读写锁保护，替代原实现中的静态单例。
type MemoryTracker struct {
	ttl   time.Duration
	clock func() time.Time
	mu    sync.RWMutex
	seen  map[string]time.Time
}

// NewMemoryTracker 创建进程内注册表
func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryTracker{
		ttl:   ttl,
		clock: time.Now,
		seen:  make(map[string]time.Time),
	}
}

func (t *MemoryTracker) MarkOnline(_ context.Context, playerID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen[playerID] = t.clock().Add(t.ttl)
	return nil
}

func (t *MemoryTracker) MarkOffline(_ context.Context, playerID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.seen, playerID)
	return nil
}

func (t *MemoryTracker) IsOnline(_ context.Context, playerID string) bool {
	t.mu.RLock()
	expiresAt, ok := t.seen[playerID]
	t.mu.RUnlock()

	if !ok {
		return false
	}
	if t.clock().After(expiresAt) {
		t.mu.Lock()
		delete(t.seen, playerID)
		t.mu.Unlock()
		return false
	}
	return true
}
