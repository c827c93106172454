package impl

import (
	"context"
	"database/sql"

	"github.com/aarondl/sqlboiler/v4/boil"
	"github.com/friendsofgo/errors"

	"taklaci-self/internal/repository/interfaces"
)

type txManagerImpl struct {
	db *sql.DB
}

// NewTxManager 创建基于数据库事务的事务管理器
func NewTxManager(db *sql.DB) interfaces.TxManager {
	return &txManagerImpl{db: db}
}

// WithinTransaction 在单个数据库事务中执行回调
func (m *txManagerImpl) WithinTransaction(ctx context.Context, fn func(ctx context.Context, execer boil.ContextExecutor) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "开启事务失败")
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "回滚事务失败: %v", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "提交事务失败")
	}
	return nil
}
