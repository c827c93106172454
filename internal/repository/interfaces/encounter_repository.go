package interfaces

import (
	"context"
	"time"

	"github.com/aarondl/sqlboiler/v4/boil"

	"taklaci-self/internal/entity"
)

// EncounterRepository 遭遇仓储接口
type EncounterRepository interface {
	// CreateIfAbsent 创建遭遇；同一会话对已存在未终结遭遇时返回
	// CodeEncounterPairActive 错误，由调用方决定忽略还是上报
	CreateIfAbsent(ctx context.Context, encounter *entity.Encounter) error

	// GetByID 根据ID获取遭遇
	GetByID(ctx context.Context, encounterID string) (*entity.Encounter, error)

	// GetActiveByPairKey 查找会话对当前未终结的遭遇，没有时返回 nil
	GetActiveByPairKey(ctx context.Context, pairKey string) (*entity.Encounter, error)

	// ClaimPending 原子地把遭遇从 Pending 置为 InProgress。
	// 遭遇已不在 Pending 状态（被并发的结算或取消抢先）时返回 false，
	// 调用方应放弃本次结算并重新读取当前状态
	ClaimPending(ctx context.Context, encounterID string) (bool, error)

	// GetPendingBefore 获取在截止时间之前创建且仍未结算的遭遇
	GetPendingBefore(ctx context.Context, cutoff time.Time) ([]*entity.Encounter, error)

	// GetActiveByPlayerID 获取玩家参与的未终结遭遇
	GetActiveByPlayerID(ctx context.Context, playerID string) ([]*entity.Encounter, error)

	// GetHistoryByPlayerID 获取玩家遭遇历史，按创建时间倒序
	GetHistoryByPlayerID(ctx context.Context, playerID string, limit int) ([]*entity.Encounter, error)

	// Update 更新遭遇（execer 为 nil 时使用默认连接）
	Update(ctx context.Context, execer boil.ContextExecutor, encounter *entity.Encounter) error
}
