package impl

import (
	"context"
	"database/sql"

	"github.com/aarondl/sqlboiler/v4/boil"
	"github.com/aarondl/sqlboiler/v4/queries"
	"github.com/friendsofgo/errors"
	"github.com/lib/pq"

	"taklaci-self/internal/entity"
	"taklaci-self/internal/pkg/xerrors"
	"taklaci-self/internal/repository/interfaces"
)

type birdRepositoryImpl struct {
	db *sql.DB
}

// NewBirdRepository 创建鸽子仓储实例
func NewBirdRepository(db *sql.DB) interfaces.BirdRepository {
	return &birdRepositoryImpl{db: db}
}

const birdColumns = `id, name, owner_id, state, rarity, element,
	leadership, loyalty, speed, genetic_dominance,
	health, max_health, stamina, max_stamina, created_at, updated_at`

// Create 创建鸽子
func (r *birdRepositoryImpl) Create(ctx context.Context, bird *entity.Bird) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO birds (`+birdColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		bird.ID, bird.Name, bird.OwnerID, bird.State, bird.Rarity, bird.Element,
		bird.Leadership, bird.Loyalty, bird.Speed, bird.GeneticDominance,
		bird.Health, bird.MaxHealth, bird.Stamina, bird.MaxStamina,
		bird.CreatedAt, bird.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "创建鸽子失败")
	}
	return nil
}

// GetByID 根据ID获取鸽子
func (r *birdRepositoryImpl) GetByID(ctx context.Context, birdID string) (*entity.Bird, error) {
	var bird entity.Bird
	err := queries.Raw(`SELECT `+birdColumns+` FROM birds WHERE id = $1`, birdID).
		Bind(ctx, r.db, &bird)

	if err == sql.ErrNoRows {
		return nil, xerrors.NewBirdNotFoundError(birdID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "查询鸽子失败")
	}

	return &bird, nil
}

// GetByIDs 批量获取鸽子
func (r *birdRepositoryImpl) GetByIDs(ctx context.Context, birdIDs []string) ([]*entity.Bird, error) {
	if len(birdIDs) == 0 {
		return nil, nil
	}

	var birds []*entity.Bird
	err := queries.Raw(`SELECT `+birdColumns+` FROM birds WHERE id = ANY($1)`,
		pq.Array(birdIDs)).
		Bind(ctx, r.db, &birds)
	if err != nil {
		return nil, errors.Wrap(err, "批量查询鸽子失败")
	}

	return birds, nil
}

// GetByOwnerID 获取玩家名下的鸽子列表
func (r *birdRepositoryImpl) GetByOwnerID(ctx context.Context, ownerID string) ([]*entity.Bird, error) {
	var birds []*entity.Bird
	err := queries.Raw(`SELECT `+birdColumns+` FROM birds WHERE owner_id = $1 ORDER BY created_at`,
		ownerID).
		Bind(ctx, r.db, &birds)
	if err != nil {
		return nil, errors.Wrap(err, "查询玩家鸽子列表失败")
	}

	return birds, nil
}

// Update 更新鸽子
func (r *birdRepositoryImpl) Update(ctx context.Context, execer boil.ContextExecutor, bird *entity.Bird) error {
	if execer == nil {
		execer = r.db
	}

	_, err := execer.ExecContext(ctx, `
		UPDATE birds SET
			name = $2, owner_id = $3, state = $4,
			leadership = $5, loyalty = $6, speed = $7, genetic_dominance = $8,
			health = $9, stamina = $10, updated_at = $11
		WHERE id = $1`,
		bird.ID, bird.Name, bird.OwnerID, bird.State,
		bird.Leadership, bird.Loyalty, bird.Speed, bird.GeneticDominance,
		bird.Health, bird.Stamina, bird.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "更新鸽子失败")
	}
	return nil
}
