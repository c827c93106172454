package interfaces

import (
	"context"

	"github.com/aarondl/sqlboiler/v4/boil"
)

// TxManager 事务管理接口。
// 回调返回错误时回滚，否则提交；回调内的仓储操作需使用传入的 execer。
type TxManager interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, execer boil.ContextExecutor) error) error
}
