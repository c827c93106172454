package service

import (
	"context"
	"time"

	"taklaci-self/internal/combat"
	"taklaci-self/internal/entity"
	"taklaci-self/internal/geo"
	"taklaci-self/internal/pkg/log"
	"taklaci-self/internal/pkg/metrics"
	"taklaci-self/internal/pkg/notify"
	"taklaci-self/internal/pkg/presence"
	"taklaci-self/internal/pkg/xerrors"
	"taklaci-self/internal/repository/interfaces"
)

const (
	// 放飞时长限制（分钟）
	MinFlightDurationMinutes = 1
	MaxFlightDurationMinutes = 720

	// 附近空域的默认搜索半径（米）
	DefaultNearbyRangeMeters = 500.0

	// 结束原因
	EndReasonManual  = "manual"
	EndReasonExpired = "expired"
)

// FlightService 放飞会话服务
type FlightService struct {
	sessionRepo interfaces.SessionRepository
	birdRepo    interfaces.BirdRepository
	playerRepo  interfaces.PlayerRepository
	notifier    notify.Notifier
	presence    presence.Tracker
	metrics     *metrics.AirspaceMetrics
	logger      log.Logger
}

// NewFlightService 创建放飞会话服务
func NewFlightService(
	sessionRepo interfaces.SessionRepository,
	birdRepo interfaces.BirdRepository,
	playerRepo interfaces.PlayerRepository,
	notifier notify.Notifier,
	tracker presence.Tracker,
	airspaceMetrics *metrics.AirspaceMetrics,
	logger log.Logger,
) *FlightService {
	return &FlightService{
		sessionRepo: sessionRepo,
		birdRepo:    birdRepo,
		playerRepo:  playerRepo,
		notifier:    notifier,
		presence:    tracker,
		metrics:     airspaceMetrics,
		logger:      logger,
	}
}

// StartFlightRequest 开始放飞请求
type StartFlightRequest struct {
	PlayerID        string
	BirdIDs         []string
	Latitude        float64
	Longitude       float64
	DurationMinutes int
}

// StartFlight 开始放飞。
// 校验顺序：玩家存在、无进行中会话、鸽群非空、每只鸽子归属与状态。
// 全部通过后才落库并置鸽子为飞行中。
func (s *FlightService) StartFlight(ctx context.Context, req *StartFlightRequest) (*entity.FlightSession, error) {
	if req.DurationMinutes < MinFlightDurationMinutes || req.DurationMinutes > MaxFlightDurationMinutes {
		return nil, xerrors.NewValidationError("duration_minutes", "放飞时长超出允许范围")
	}
	if len(req.BirdIDs) == 0 {
		return nil, xerrors.FromCode(xerrors.CodeEmptyFlock)
	}

	if _, err := s.playerRepo.GetByID(ctx, req.PlayerID); err != nil {
		return nil, err
	}

	active, err := s.sessionRepo.GetActiveByPlayerID(ctx, req.PlayerID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, xerrors.FromCode(xerrors.CodeAlreadyFlying).
			WithMetadata("session_id", active.ID)
	}

	birds, err := s.birdRepo.GetByIDs(ctx, req.BirdIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*entity.Bird, len(birds))
	for _, bird := range birds {
		byID[bird.ID] = bird
	}

	for _, birdID := range req.BirdIDs {
		bird, ok := byID[birdID]
		if !ok {
			return nil, xerrors.NewBirdNotFoundError(birdID)
		}
		if bird.OwnerID != req.PlayerID {
			return nil, xerrors.FromCode(xerrors.CodeBirdWrongOwner).
				WithMetadata("bird_id", birdID)
		}
		if bird.Stamina < entity.FlightStaminaThreshold {
			return nil, xerrors.FromCode(xerrors.CodeInsufficientStamina).
				WithMetadata("bird_id", birdID)
		}
		if !bird.IsReadyForFlight() {
			return nil, xerrors.NewBirdNotReadyError(birdID, bird.State.String())
		}
	}

	session := entity.NewFlightSession(req.PlayerID, req.BirdIDs, req.Latitude, req.Longitude, req.DurationMinutes)
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	for _, birdID := range req.BirdIDs {
		bird := byID[birdID]
		bird.StartFlying()
		if err := s.birdRepo.Update(ctx, nil, bird); err != nil {
			return nil, err
		}
	}

	if err := s.presence.MarkOnline(ctx, req.PlayerID); err != nil {
		s.logger.Warn("标记玩家在线失败", "player_id", req.PlayerID, "error", err)
	}

	s.metrics.RecordFlightStarted()
	log.LogBusinessEvent(ctx, "flight_started", "flight_session", session.ID, map[string]interface{}{
		"player_id":  req.PlayerID,
		"bird_count": len(req.BirdIDs),
		"duration":   req.DurationMinutes,
	})

	s.notifier.Send(ctx, req.PlayerID, notify.EventFlightStarted, &FlightStartedEvent{
		SessionID:       session.ID,
		PlayerID:        session.PlayerID,
		Latitude:        session.Latitude,
		Longitude:       session.Longitude,
		BirdCount:       len(session.BirdIDs),
		DurationMinutes: session.DurationMinutes,
		StartedAt:       session.StartedAt,
	})

	return session, nil
}

// EndFlight 手动结束放飞
func (s *FlightService) EndFlight(ctx context.Context, playerID, sessionID string) (*entity.FlightSession, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.PlayerID != playerID {
		return nil, xerrors.FromCode(xerrors.CodeOperationNotAllowed)
	}
	if !session.IsActive {
		return nil, xerrors.FromCode(xerrors.CodeSessionInactive)
	}

	if err := s.endSession(ctx, session, EndReasonManual); err != nil {
		return nil, err
	}
	return session, nil
}

// UpdatePositionRequest 位置更新请求
type UpdatePositionRequest struct {
	PlayerID  string
	SessionID string
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// UpdatePosition 更新放飞位置
func (s *FlightService) UpdatePosition(ctx context.Context, req *UpdatePositionRequest) (*entity.FlightSession, error) {
	session, err := s.sessionRepo.GetByID(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.PlayerID != req.PlayerID {
		return nil, xerrors.FromCode(xerrors.CodeOperationNotAllowed)
	}
	if !session.IsActive {
		return nil, xerrors.FromCode(xerrors.CodeSessionInactive)
	}

	session.UpdatePosition(req.Latitude, req.Longitude, req.Altitude)
	if err := s.sessionRepo.Update(ctx, nil, session); err != nil {
		return nil, err
	}

	if err := s.presence.MarkOnline(ctx, req.PlayerID); err != nil {
		s.logger.Warn("标记玩家在线失败", "player_id", req.PlayerID, "error", err)
	}

	s.notifier.Send(ctx, session.PlayerID, notify.EventPositionUpdated, &PositionUpdatedEvent{
		SessionID: session.ID,
		PlayerID:  session.PlayerID,
		Latitude:  session.Latitude,
		Longitude: session.Longitude,
		Altitude:  session.Altitude,
	})

	return session, nil
}

// GetActiveFlight 获取玩家当前进行中的会话，没有时返回 nil
func (s *FlightService) GetActiveFlight(ctx context.Context, playerID string) (*entity.FlightSession, error) {
	return s.sessionRepo.GetActiveByPlayerID(ctx, playerID)
}

// GetFlightHistory 获取玩家历史会话
func (s *FlightService) GetFlightHistory(ctx context.Context, playerID string, limit int) ([]*entity.FlightSession, error) {
	return s.sessionRepo.GetHistoryByPlayerID(ctx, playerID, limit)
}

// GetPlayerBirds 获取玩家名下的全部鸽子（含飞行中与巢中）
func (s *FlightService) GetPlayerBirds(ctx context.Context, playerID string) ([]*entity.Bird, error) {
	if _, err := s.playerRepo.GetByID(ctx, playerID); err != nil {
		return nil, err
	}
	return s.birdRepo.GetByOwnerID(ctx, playerID)
}

// GoOffline 将玩家标记为离线。
// 网关在客户端断开或显式登出时调用；放飞会话不受影响
func (s *FlightService) GoOffline(ctx context.Context, playerID string) error {
	return s.presence.MarkOffline(ctx, playerID)
}

// NearbyFlight 附近空域条目
type NearbyFlight struct {
	Session        *entity.FlightSession `json:"session"`
	DistanceMeters float64               `json:"distance_meters"`
	FlockPower     int                   `json:"flock_power"`
}

// NearbyFlights 获取指定会话附近的其他玩家会话。
// rangeMeters 非正时使用默认半径。
func (s *FlightService) NearbyFlights(ctx context.Context, sessionID string, rangeMeters float64) ([]*NearbyFlight, error) {
	if rangeMeters <= 0 {
		rangeMeters = DefaultNearbyRangeMeters
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	active, err := s.sessionRepo.GetAllActive(ctx)
	if err != nil {
		return nil, err
	}

	var nearby []*NearbyFlight
	for _, other := range active {
		if other.ID == session.ID || other.PlayerID == session.PlayerID {
			continue
		}
		distance := geo.HaversineMeters(session.Latitude, session.Longitude, other.Latitude, other.Longitude)
		if distance > rangeMeters {
			continue
		}

		birds, err := s.ownedSessionBirds(ctx, other)
		if err != nil {
			return nil, err
		}
		nearby = append(nearby, &NearbyFlight{
			Session:        other,
			DistanceMeters: distance,
			FlockPower:     combat.FlockPower(birds),
		})
	}

	return nearby, nil
}

// ExpireCompletedFlights 结束所有已到期的会话，返回处理数量。
// 单个会话失败不会中断其余会话的处理。
func (s *FlightService) ExpireCompletedFlights(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.sessionRepo.GetExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	ended := 0
	for _, session := range expired {
		if err := s.endSession(ctx, session, EndReasonExpired); err != nil {
			s.logger.Error("结束到期会话失败", err, "session_id", session.ID)
			continue
		}
		ended++
	}
	return ended, nil
}

// endSession 结束会话并让仍属于该玩家的鸽子归巢扣体力
func (s *FlightService) endSession(ctx context.Context, session *entity.FlightSession, reason string) error {
	now := time.Now()
	session.End(now)
	if err := s.sessionRepo.Update(ctx, nil, session); err != nil {
		return err
	}

	// 被掠夺的鸽子已换主归巢，这里只处理仍属于会话玩家且在飞的
	birds, err := s.birdRepo.GetByIDs(ctx, session.BirdIDs)
	if err != nil {
		return err
	}
	for _, bird := range birds {
		if bird.OwnerID != session.PlayerID || bird.State != entity.BirdStateFlying {
			continue
		}
		bird.ReturnToCoop()
		bird.ConsumeStamina(entity.FlightStaminaCost)
		if err := s.birdRepo.Update(ctx, nil, bird); err != nil {
			return err
		}
	}

	s.metrics.RecordFlightEnded(reason)
	log.LogBusinessEvent(ctx, "flight_ended", "flight_session", session.ID, map[string]interface{}{
		"player_id":  session.PlayerID,
		"reason":     reason,
		"encounters": session.EncountersCount,
	})

	s.notifier.Send(ctx, session.PlayerID, notify.EventFlightEnded, &FlightEndedEvent{
		SessionID:       session.ID,
		PlayerID:        session.PlayerID,
		Reason:          reason,
		EncountersCount: session.EncountersCount,
		EndedAt:         now,
	})

	return nil
}

// ownedSessionBirds 返回会话中仍属于会话玩家的鸽子
func (s *FlightService) ownedSessionBirds(ctx context.Context, session *entity.FlightSession) ([]*entity.Bird, error) {
	birds, err := s.birdRepo.GetByIDs(ctx, session.BirdIDs)
	if err != nil {
		return nil, err
	}

	owned := birds[:0]
	for _, bird := range birds {
		if bird.OwnerID == session.PlayerID {
			owned = append(owned, bird)
		}
	}
	return owned, nil
}
