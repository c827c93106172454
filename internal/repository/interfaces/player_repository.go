package interfaces

import (
	"context"

	"github.com/aarondl/sqlboiler/v4/boil"

	"taklaci-self/internal/entity"
)

// PlayerRepository 玩家仓储接口
type PlayerRepository interface {
	// Create 创建玩家
	Create(ctx context.Context, player *entity.Player) error

	// GetByID 根据ID获取玩家
	GetByID(ctx context.Context, playerID string) (*entity.Player, error)

	// Update 更新玩家（execer 为 nil 时使用默认连接）
	Update(ctx context.Context, execer boil.ContextExecutor, player *entity.Player) error
}
