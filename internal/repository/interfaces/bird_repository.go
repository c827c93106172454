package interfaces

import (
	"context"

	"github.com/aarondl/sqlboiler/v4/boil"

	"taklaci-self/internal/entity"
)

// BirdRepository 鸽子仓储接口
type BirdRepository interface {
	// Create 创建鸽子
	Create(ctx context.Context, bird *entity.Bird) error

	// GetByID 根据ID获取鸽子
	GetByID(ctx context.Context, birdID string) (*entity.Bird, error)

	// GetByIDs 批量获取鸽子
	GetByIDs(ctx context.Context, birdIDs []string) ([]*entity.Bird, error)

	// GetByOwnerID 获取玩家名下的鸽子列表
	GetByOwnerID(ctx context.Context, ownerID string) ([]*entity.Bird, error)

	// Update 更新鸽子（execer 为 nil 时使用默认连接）
	Update(ctx context.Context, execer boil.ContextExecutor, bird *entity.Bird) error
}
