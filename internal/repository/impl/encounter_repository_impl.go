package impl

import (
	"context"
	"database/sql"
	"time"

	"github.com/aarondl/sqlboiler/v4/boil"
	"github.com/aarondl/sqlboiler/v4/queries"
	"github.com/friendsofgo/errors"
	"github.com/lib/pq"

	"taklaci-self/internal/entity"
	"taklaci-self/internal/pkg/xerrors"
	"taklaci-self/internal/repository/interfaces"
)

// Postgres unique_violation
const pqUniqueViolation = "23505"

type encounterRepositoryImpl struct {
	db *sql.DB
}

// NewEncounterRepository 创建遭遇仓储实例
func NewEncounterRepository(db *sql.DB) interfaces.EncounterRepository {
	return &encounterRepositoryImpl{db: db}
}

const encounterColumns = `id, pair_key,
	initiator_session_id, target_session_id, initiator_player_id, target_player_id,
	state, winner_player_id, looted_bird_ids, coins_looted,
	initiator_power, target_power, random_roll,
	initiator_was_online, target_was_online,
	created_at, resolved_at, updated_at`

// CreateIfAbsent 创建遭遇。
// 依赖 pair_key 上的部分唯一索引（state IN (0, 1)）拦截同一会话对的
// 并发重复创建，冲突时返回 CodeEncounterPairActive。
func (r *encounterRepositoryImpl) CreateIfAbsent(ctx context.Context, encounter *entity.Encounter) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO encounters (`+encounterColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		encounter.ID, encounter.PairKey,
		encounter.InitiatorSessionID, encounter.TargetSessionID,
		encounter.InitiatorPlayerID, encounter.TargetPlayerID,
		encounter.State, encounter.WinnerPlayerID,
		encounter.LootedBirdIDs, encounter.CoinsLooted,
		encounter.InitiatorPower, encounter.TargetPower, encounter.RandomRoll,
		encounter.InitiatorWasOnline, encounter.TargetWasOnline,
		encounter.CreatedAt, encounter.ResolvedAt, encounter.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return xerrors.FromCode(xerrors.CodeEncounterPairActive)
		}
		return errors.Wrap(err, "创建遭遇失败")
	}
	return nil
}

// GetByID 根据ID获取遭遇
func (r *encounterRepositoryImpl) GetByID(ctx context.Context, encounterID string) (*entity.Encounter, error) {
	var encounter entity.Encounter
	err := queries.Raw(`SELECT `+encounterColumns+` FROM encounters WHERE id = $1`, encounterID).
		Bind(ctx, r.db, &encounter)

	if err == sql.ErrNoRows {
		return nil, xerrors.NewEncounterNotFoundError(encounterID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "查询遭遇失败")
	}

	return &encounter, nil
}

// GetActiveByPairKey 查找会话对当前未终结的遭遇
func (r *encounterRepositoryImpl) GetActiveByPairKey(ctx context.Context, pairKey string) (*entity.Encounter, error) {
	var encounter entity.Encounter
	err := queries.Raw(`SELECT `+encounterColumns+` FROM encounters
		WHERE pair_key = $1 AND state IN ($2, $3)
		ORDER BY created_at DESC LIMIT 1`,
		pairKey, entity.EncounterStatePending, entity.EncounterStateInProgress).
		Bind(ctx, r.db, &encounter)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "查询会话对遭遇失败")
	}

	return &encounter, nil
}

// ClaimPending 以条件更新抢占结算权。
// WHERE state = pending 保证同一遭遇的并发结算只有一方能抢到。
func (r *encounterRepositoryImpl) ClaimPending(ctx context.Context, encounterID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE encounters SET state = $2, updated_at = $3
		WHERE id = $1 AND state = $4`,
		encounterID, entity.EncounterStateInProgress, time.Now().UTC(),
		entity.EncounterStatePending,
	)
	if err != nil {
		return false, errors.Wrap(err, "抢占遭遇结算失败")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "读取抢占结果失败")
	}
	return affected > 0, nil
}

// GetPendingBefore 获取在截止时间之前创建且仍未结算的遭遇
func (r *encounterRepositoryImpl) GetPendingBefore(ctx context.Context, cutoff time.Time) ([]*entity.Encounter, error) {
	var encounters []*entity.Encounter
	err := queries.Raw(`SELECT `+encounterColumns+` FROM encounters
		WHERE state = $1 AND created_at <= $2 ORDER BY created_at`,
		entity.EncounterStatePending, cutoff).
		Bind(ctx, r.db, &encounters)
	if err != nil {
		return nil, errors.Wrap(err, "查询待结算遭遇失败")
	}

	return encounters, nil
}

// GetActiveByPlayerID 获取玩家参与的未终结遭遇
func (r *encounterRepositoryImpl) GetActiveByPlayerID(ctx context.Context, playerID string) ([]*entity.Encounter, error) {
	var encounters []*entity.Encounter
	err := queries.Raw(`SELECT `+encounterColumns+` FROM encounters
		WHERE (initiator_player_id = $1 OR target_player_id = $1)
		  AND state IN ($2, $3)
		ORDER BY created_at DESC`,
		playerID, entity.EncounterStatePending, entity.EncounterStateInProgress).
		Bind(ctx, r.db, &encounters)
	if err != nil {
		return nil, errors.Wrap(err, "查询玩家未终结遭遇失败")
	}

	return encounters, nil
}

// GetHistoryByPlayerID 获取玩家遭遇历史
func (r *encounterRepositoryImpl) GetHistoryByPlayerID(ctx context.Context, playerID string, limit int) ([]*entity.Encounter, error) {
	if limit <= 0 {
		limit = 20
	}

	var encounters []*entity.Encounter
	err := queries.Raw(`SELECT `+encounterColumns+` FROM encounters
		WHERE initiator_player_id = $1 OR target_player_id = $1
		ORDER BY created_at DESC LIMIT $2`, playerID, limit).
		Bind(ctx, r.db, &encounters)
	if err != nil {
		return nil, errors.Wrap(err, "查询遭遇历史失败")
	}

	return encounters, nil
}

// Update 更新遭遇
func (r *encounterRepositoryImpl) Update(ctx context.Context, execer boil.ContextExecutor, encounter *entity.Encounter) error {
	if execer == nil {
		execer = r.db
	}

	_, err := execer.ExecContext(ctx, `
		UPDATE encounters SET
			state = $2, winner_player_id = $3, looted_bird_ids = $4, coins_looted = $5,
			initiator_power = $6, target_power = $7, random_roll = $8,
			resolved_at = $9, updated_at = $10
		WHERE id = $1`,
		encounter.ID, encounter.State, encounter.WinnerPlayerID,
		encounter.LootedBirdIDs, encounter.CoinsLooted,
		encounter.InitiatorPower, encounter.TargetPower, encounter.RandomRoll,
		encounter.ResolvedAt, encounter.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "更新遭遇失败")
	}
	return nil
}
