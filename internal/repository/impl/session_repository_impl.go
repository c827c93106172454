package impl

import (
	"context"
	"database/sql"
	"time"

	"github.com/aarondl/sqlboiler/v4/boil"
	"github.com/aarondl/sqlboiler/v4/queries"
	"github.com/friendsofgo/errors"

	"taklaci-self/internal/entity"
	"taklaci-self/internal/pkg/xerrors"
	"taklaci-self/internal/repository/interfaces"
)

type sessionRepositoryImpl struct {
	db *sql.DB
}

// NewSessionRepository 创建放飞会话仓储实例
func NewSessionRepository(db *sql.DB) interfaces.SessionRepository {
	return &sessionRepositoryImpl{db: db}
}

const sessionColumns = `id, player_id, bird_ids, latitude, longitude, altitude,
	started_at, ended_at, duration_minutes, is_active, encounters_count, updated_at`

// Create 创建放飞会话
func (r *sessionRepositoryImpl) Create(ctx context.Context, session *entity.FlightSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO flight_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		session.ID, session.PlayerID, session.BirdIDs,
		session.Latitude, session.Longitude, session.Altitude,
		session.StartedAt, session.EndedAt, session.DurationMinutes,
		session.IsActive, session.EncountersCount, session.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "创建放飞会话失败")
	}
	return nil
}

// GetByID 根据ID获取会话
func (r *sessionRepositoryImpl) GetByID(ctx context.Context, sessionID string) (*entity.FlightSession, error) {
	var session entity.FlightSession
	err := queries.Raw(`SELECT `+sessionColumns+` FROM flight_sessions WHERE id = $1`, sessionID).
		Bind(ctx, r.db, &session)

	if err == sql.ErrNoRows {
		return nil, xerrors.NewSessionNotFoundError(sessionID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "查询放飞会话失败")
	}

	return &session, nil
}

// GetActiveByPlayerID 获取玩家当前进行中的会话
func (r *sessionRepositoryImpl) GetActiveByPlayerID(ctx context.Context, playerID string) (*entity.FlightSession, error) {
	var session entity.FlightSession
	err := queries.Raw(`SELECT `+sessionColumns+` FROM flight_sessions
		WHERE player_id = $1 AND is_active = TRUE
		ORDER BY started_at DESC LIMIT 1`, playerID).
		Bind(ctx, r.db, &session)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "查询进行中会话失败")
	}

	return &session, nil
}

// GetAllActive 获取所有进行中的会话
func (r *sessionRepositoryImpl) GetAllActive(ctx context.Context) ([]*entity.FlightSession, error) {
	var sessions []*entity.FlightSession
	err := queries.Raw(`SELECT ` + sessionColumns + ` FROM flight_sessions
		WHERE is_active = TRUE ORDER BY started_at`).
		Bind(ctx, r.db, &sessions)
	if err != nil {
		return nil, errors.Wrap(err, "查询进行中会话列表失败")
	}

	return sessions, nil
}

// GetExpired 获取已到期但仍标记为进行中的会话
func (r *sessionRepositoryImpl) GetExpired(ctx context.Context, now time.Time) ([]*entity.FlightSession, error) {
	var sessions []*entity.FlightSession
	err := queries.Raw(`SELECT `+sessionColumns+` FROM flight_sessions
		WHERE is_active = TRUE
		  AND started_at + duration_minutes * INTERVAL '1 minute' <= $1`, now).
		Bind(ctx, r.db, &sessions)
	if err != nil {
		return nil, errors.Wrap(err, "查询到期会话失败")
	}

	return sessions, nil
}

// GetHistoryByPlayerID 获取玩家历史会话
func (r *sessionRepositoryImpl) GetHistoryByPlayerID(ctx context.Context, playerID string, limit int) ([]*entity.FlightSession, error) {
	if limit <= 0 {
		limit = 20
	}

	var sessions []*entity.FlightSession
	err := queries.Raw(`SELECT `+sessionColumns+` FROM flight_sessions
		WHERE player_id = $1 ORDER BY started_at DESC LIMIT $2`, playerID, limit).
		Bind(ctx, r.db, &sessions)
	if err != nil {
		return nil, errors.Wrap(err, "查询会话历史失败")
	}

	return sessions, nil
}

// Update 更新会话
func (r *sessionRepositoryImpl) Update(ctx context.Context, execer boil.ContextExecutor, session *entity.FlightSession) error {
	if execer == nil {
		execer = r.db
	}

	_, err := execer.ExecContext(ctx, `
		UPDATE flight_sessions SET
			latitude = $2, longitude = $3, altitude = $4,
			ended_at = $5, is_active = $6, encounters_count = $7, updated_at = $8
		WHERE id = $1`,
		session.ID, session.Latitude, session.Longitude, session.Altitude,
		session.EndedAt, session.IsActive, session.EncountersCount, session.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "更新放飞会话失败")
	}
	return nil
}
