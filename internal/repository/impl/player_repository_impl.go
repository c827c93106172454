package impl

import (
	"context"
	"database/sql"

	"github.com/aarondl/sqlboiler/v4/boil"
	"github.com/aarondl/sqlboiler/v4/queries"
	"github.com/friendsofgo/errors"

	"taklaci-self/internal/entity"
	"taklaci-self/internal/pkg/xerrors"
	"taklaci-self/internal/repository/interfaces"
)

type playerRepositoryImpl struct {
	db *sql.DB
}

// NewPlayerRepository 创建玩家仓储实例
func NewPlayerRepository(db *sql.DB) interfaces.PlayerRepository {
	return &playerRepositoryImpl{db: db}
}

const playerColumns = `id, username, coins,
	total_encounters_won, total_encounters_lost, total_birds_lost, total_birds_looted,
	level, experience, coop_capacity, created_at, updated_at`

// Create 创建玩家
func (r *playerRepositoryImpl) Create(ctx context.Context, player *entity.Player) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO players (`+playerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		player.ID, player.Username, player.Coins,
		player.TotalEncountersWon, player.TotalEncountersLost,
		player.TotalBirdsLost, player.TotalBirdsLooted,
		player.Level, player.Experience, player.CoopCapacity,
		player.CreatedAt, player.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "创建玩家失败")
	}
	return nil
}

// GetByID 根据ID获取玩家
func (r *playerRepositoryImpl) GetByID(ctx context.Context, playerID string) (*entity.Player, error) {
	var player entity.Player
	err := queries.Raw(`SELECT `+playerColumns+` FROM players WHERE id = $1`, playerID).
		Bind(ctx, r.db, &player)

	if err == sql.ErrNoRows {
		return nil, xerrors.NewPlayerNotFoundError(playerID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "查询玩家失败")
	}

	return &player, nil
}

// Update 更新玩家
func (r *playerRepositoryImpl) Update(ctx context.Context, execer boil.ContextExecutor, player *entity.Player) error {
	if execer == nil {
		execer = r.db
	}

	_, err := execer.ExecContext(ctx, `
		UPDATE players SET
			username = $2, coins = $3,
			total_encounters_won = $4, total_encounters_lost = $5,
			total_birds_lost = $6, total_birds_looted = $7,
			level = $8, experience = $9, coop_capacity = $10, updated_at = $11
		WHERE id = $1`,
		player.ID, player.Username, player.Coins,
		player.TotalEncountersWon, player.TotalEncountersLost,
		player.TotalBirdsLost, player.TotalBirdsLooted,
		player.Level, player.Experience, player.CoopCapacity,
		player.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "更新玩家失败")
	}
	return nil
}
