package interfaces

import (
	"context"
	"time"

	"github.com/aarondl/sqlboiler/v4/boil"

	"taklaci-self/internal/entity"
)

// SessionRepository 放飞会话仓储接口
type SessionRepository interface {
	// Create 创建放飞会话
	Create(ctx context.Context, session *entity.FlightSession) error

	// GetByID 根据ID获取会话
	GetByID(ctx context.Context, sessionID string) (*entity.FlightSession, error)

	// GetActiveByPlayerID 获取玩家当前进行中的会话，没有时返回 nil
	GetActiveByPlayerID(ctx context.Context, playerID string) (*entity.FlightSession, error)

	// GetAllActive 获取所有进行中的会话
	GetAllActive(ctx context.Context) ([]*entity.FlightSession, error)

	// GetExpired 获取已到期但仍标记为进行中的会话
	GetExpired(ctx context.Context, now time.Time) ([]*entity.FlightSession, error)

	// GetHistoryByPlayerID 获取玩家历史会话，按开始时间倒序
	GetHistoryByPlayerID(ctx context.Context, playerID string, limit int) ([]*entity.FlightSession, error)

	// Update 更新会话（execer 为 nil 时使用默认连接）
	Update(ctx context.Context, execer boil.ContextExecutor, session *entity.FlightSession) error
}
