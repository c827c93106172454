package service

import (
	"context"
	"time"

	"github.com/aarondl/sqlboiler/v4/boil"

	"taklaci-self/internal/combat"
	"taklaci-self/internal/entity"
	"taklaci-self/internal/pkg/log"
	"taklaci-self/internal/pkg/metrics"
	"taklaci-self/internal/pkg/notify"
	"taklaci-self/internal/pkg/presence"
	"taklaci-self/internal/pkg/xerrors"
	"taklaci-self/internal/repository/interfaces"
)

// EncounterTimeout 遭遇创建后多久自动结算
const EncounterTimeout = 30 * time.Second

// 取消原因
const (
	CancelReasonSessionEnded = "session_ended"
	CancelReasonManual       = "manual"
)

// EncounterService 遭遇服务：创建、结算、取消与查询
type EncounterService struct {
	encounterRepo interfaces.EncounterRepository
	sessionRepo   interfaces.SessionRepository
	birdRepo      interfaces.BirdRepository
	playerRepo    interfaces.PlayerRepository
	txManager     interfaces.TxManager
	calculator    *combat.Calculator
	notifier      notify.Notifier
	presence      presence.Tracker
	metrics       *metrics.AirspaceMetrics
	logger        log.Logger
}

// NewEncounterService 创建遭遇服务
func NewEncounterService(
	encounterRepo interfaces.EncounterRepository,
	sessionRepo interfaces.SessionRepository,
	birdRepo interfaces.BirdRepository,
	playerRepo interfaces.PlayerRepository,
	txManager interfaces.TxManager,
	calculator *combat.Calculator,
	notifier notify.Notifier,
	tracker presence.Tracker,
	airspaceMetrics *metrics.AirspaceMetrics,
	logger log.Logger,
) *EncounterService {
	return &EncounterService{
		encounterRepo: encounterRepo,
		sessionRepo:   sessionRepo,
		birdRepo:      birdRepo,
		playerRepo:    playerRepo,
		txManager:     txManager,
		calculator:    calculator,
		notifier:      notifier,
		presence:      tracker,
		metrics:       airspaceMetrics,
		logger:        logger,
	}
}

// CreateEncounter 为两个会话创建遭遇并通知双方。
// 同一会话对已有未终结遭遇时返回 CodeEncounterPairActive，
// 检测循环的并发竞争中输掉的一方会拿到该错误，直接忽略即可。
func (s *EncounterService) CreateEncounter(ctx context.Context, initiator, target *entity.FlightSession) (*entity.Encounter, error) {
	initiatorOnline := s.presence.IsOnline(ctx, initiator.PlayerID)
	targetOnline := s.presence.IsOnline(ctx, target.PlayerID)

	encounter := entity.NewEncounter(initiator, target, initiatorOnline, targetOnline)
	if err := s.encounterRepo.CreateIfAbsent(ctx, encounter); err != nil {
		return nil, err
	}

	initiator.RecordEncounter()
	target.RecordEncounter()
	if err := s.sessionRepo.Update(ctx, nil, initiator); err != nil {
		s.logger.Error("更新发起方会话遭遇计数失败", err, "session_id", initiator.ID)
	}
	if err := s.sessionRepo.Update(ctx, nil, target); err != nil {
		s.logger.Error("更新目标方会话遭遇计数失败", err, "session_id", target.ID)
	}

	initiatorPower, targetPower := s.sessionPowers(ctx, initiator, target)

	s.metrics.RecordEncounterEvent("detected")
	log.LogBusinessEvent(ctx, "encounter_detected", "encounter", encounter.ID, map[string]interface{}{
		"initiator_player": initiator.PlayerID,
		"target_player":    target.PlayerID,
	})

	deadline := encounter.CreatedAt.Add(EncounterTimeout)
	s.notifier.Send(ctx, initiator.PlayerID, notify.EventEncounterDetected, &EncounterDetectedEvent{
		EncounterID: encounter.ID,
		SessionID:   initiator.ID,
		OwnPower:    initiatorPower,
		Opponent: FlockSummary{
			PlayerID:  target.PlayerID,
			BirdCount: len(target.BirdIDs),
			Power:     targetPower,
		},
		ResolveDeadline: deadline,
	})
	s.notifier.Send(ctx, target.PlayerID, notify.EventEncounterDetected, &EncounterDetectedEvent{
		EncounterID: encounter.ID,
		SessionID:   target.ID,
		OwnPower:    targetPower,
		Opponent: FlockSummary{
			PlayerID:  initiator.PlayerID,
			BirdCount: len(initiator.BirdIDs),
			Power:     initiatorPower,
		},
		ResolveDeadline: deadline,
	})

	return encounter, nil
}

// ResolveEncounter 结算遭遇。
// 幂等：已终结的遭遇原样返回。结算前先原子抢占 Pending → InProgress，
// 并发的结算调用（手动结算撞上检测循环）只有一方能抢到，
// 输掉抢占的一方直接返回当前状态，不会重掷胜负。
// 任一会话已结束时遭遇被取消。整个战利品转移流程在单个事务内完成。
func (s *EncounterService) ResolveEncounter(ctx context.Context, encounterID string) (*entity.Encounter, error) {
	encounter, err := s.encounterRepo.GetByID(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	if encounter.State.IsTerminal() {
		return encounter, nil
	}

	claimed, err := s.encounterRepo.ClaimPending(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return s.encounterRepo.GetByID(ctx, encounterID)
	}
	encounter.SetInProgress()

	initiatorSession, targetSession, err := s.loadSessions(ctx, encounter)
	if err != nil || initiatorSession == nil || targetSession == nil ||
		!initiatorSession.IsActive || !targetSession.IsActive {
		return s.cancelEncounter(ctx, encounter, CancelReasonSessionEnded)
	}

	initiatorBirds, err := s.sessionBirds(ctx, initiatorSession)
	if err != nil {
		return nil, err
	}
	targetBirds, err := s.sessionBirds(ctx, targetSession)
	if err != nil {
		return nil, err
	}

	initiatorPower := combat.FlockPower(initiatorBirds)
	targetPower := combat.FlockPower(targetBirds)

	winnerID, roll := s.calculator.DetermineWinner(
		encounter.InitiatorPlayerID, initiatorPower,
		encounter.TargetPlayerID, targetPower,
	)

	loserID := encounter.TargetPlayerID
	winnerPower, loserPower := initiatorPower, targetPower
	loserBirds := targetBirds
	if winnerID == encounter.TargetPlayerID {
		loserID = encounter.InitiatorPlayerID
		winnerPower, loserPower = targetPower, initiatorPower
		loserBirds = initiatorBirds
	}

	winner, err := s.playerRepo.GetByID(ctx, winnerID)
	if err != nil {
		return nil, err
	}
	loser, err := s.playerRepo.GetByID(ctx, loserID)
	if err != nil {
		return nil, err
	}

	birdsLostCount := combat.BirdsLost(len(loserBirds), winnerPower, loserPower)
	lostBirds := combat.SelectBirdsToLose(loserBirds, birdsLostCount)

	// 金币奖励全额发给胜者，不从败者余额扣除
	coinsLooted := combat.CoinsReward(loserPower, loser.Level, winner.Level)

	lootedIDs := make([]string, 0, len(lostBirds))
	for _, bird := range lostBirds {
		lootedIDs = append(lootedIDs, bird.ID)
	}

	now := time.Now()
	encounter.SetCombatTrace(initiatorPower, targetPower, roll)
	encounter.Resolve(winnerID, lootedIDs, coinsLooted, now)

	winner.AddCoins(coinsLooted)
	winner.AddExperience(combat.ExperienceReward(loserPower, true))
	loser.AddExperience(combat.ExperienceReward(loserPower, false))
	winner.RecordEncounterWin()
	loser.RecordEncounterLoss()
	for range lostBirds {
		winner.RecordBirdLooted()
		loser.RecordBirdLost()
	}

	err = s.txManager.WithinTransaction(ctx, func(ctx context.Context, execer boil.ContextExecutor) error {
		for _, bird := range lostBirds {
			bird.TransferOwnership(winnerID)
			bird.ReturnToCoop()
			if err := s.birdRepo.Update(ctx, execer, bird); err != nil {
				return err
			}
		}
		if err := s.playerRepo.Update(ctx, execer, winner); err != nil {
			return err
		}
		if err := s.playerRepo.Update(ctx, execer, loser); err != nil {
			return err
		}
		return s.encounterRepo.Update(ctx, execer, encounter)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordEncounterEvent("resolved")
	log.LogBusinessEvent(ctx, "encounter_resolved", "encounter", encounter.ID, map[string]interface{}{
		"winner":       winnerID,
		"coins_looted": coinsLooted,
		"birds_looted": len(lootedIDs),
		"random_roll":  roll,
	})

	result := &EncounterResultEvent{
		EncounterID:    encounter.ID,
		WinnerPlayerID: winnerID,
		CoinsLooted:    coinsLooted,
		LootedBirdIDs:  lootedIDs,
		InitiatorPower: initiatorPower,
		TargetPower:    targetPower,
	}
	for _, playerID := range []string{encounter.InitiatorPlayerID, encounter.TargetPlayerID} {
		event := *result
		event.Won = playerID == winnerID
		s.notifier.Send(ctx, playerID, notify.EventEncounterResult, &event)
	}

	return encounter, nil
}

// CancelEncounter 手动取消遭遇。
// 只有等待中的遭遇可取消，其余状态原样返回。
// 取消同样走 Pending 抢占，撞上正在进行的结算时放弃取消。
func (s *EncounterService) CancelEncounter(ctx context.Context, encounterID string) (*entity.Encounter, error) {
	encounter, err := s.encounterRepo.GetByID(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	if encounter.State != entity.EncounterStatePending {
		return encounter, nil
	}

	claimed, err := s.encounterRepo.ClaimPending(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return s.encounterRepo.GetByID(ctx, encounterID)
	}
	return s.cancelEncounter(ctx, encounter, CancelReasonManual)
}

// ResolveTimedOutEncounters 结算所有超时的等待中遭遇，返回处理数量
func (s *EncounterService) ResolveTimedOutEncounters(ctx context.Context, now time.Time) (int, error) {
	pending, err := s.encounterRepo.GetPendingBefore(ctx, now.Add(-EncounterTimeout))
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, encounter := range pending {
		if _, err := s.ResolveEncounter(ctx, encounter.ID); err != nil {
			s.logger.Error("结算超时遭遇失败", err, "encounter_id", encounter.ID)
			continue
		}
		resolved++
	}
	return resolved, nil
}

// EncounterPreview 遭遇预览（不掷点、不落库）
type EncounterPreview struct {
	EncounterID        string  `json:"encounter_id,omitempty"`
	InitiatorPower     int     `json:"initiator_power"`
	TargetPower        int     `json:"target_power"`
	InitiatorWinChance float64 `json:"initiator_win_chance"`
	TargetWinChance    float64 `json:"target_win_chance"`
}

// PreviewEncounter 按双方当前鸽群计算战力与胜率
func (s *EncounterService) PreviewEncounter(ctx context.Context, encounterID string) (*EncounterPreview, error) {
	encounter, err := s.encounterRepo.GetByID(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	if encounter.State.IsTerminal() {
		return nil, xerrors.FromCode(xerrors.CodeEncounterNotPending)
	}

	initiatorSession, targetSession, err := s.loadSessions(ctx, encounter)
	if err != nil {
		return nil, err
	}

	preview := s.previewSessions(ctx, initiatorSession, targetSession)
	preview.EncounterID = encounter.ID
	return preview, nil
}

// PreviewMatchup 推演任意两个会话的假想对局，不要求存在遭遇。
// 只读查询，不掷点、不落库
func (s *EncounterService) PreviewMatchup(ctx context.Context, sessionID, opponentSessionID string) (*EncounterPreview, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	opponent, err := s.sessionRepo.GetByID(ctx, opponentSessionID)
	if err != nil {
		return nil, err
	}
	if session.PlayerID == opponent.PlayerID {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "不能与自己的会话推演对局")
	}

	return s.previewSessions(ctx, session, opponent), nil
}

func (s *EncounterService) previewSessions(ctx context.Context, initiator, target *entity.FlightSession) *EncounterPreview {
	initiatorPower, targetPower := s.sessionPowers(ctx, initiator, target)
	chance1, chance2 := combat.WinChances(initiatorPower, targetPower)

	return &EncounterPreview{
		InitiatorPower:     initiatorPower,
		TargetPower:        targetPower,
		InitiatorWinChance: chance1,
		TargetWinChance:    chance2,
	}
}

// GetEncounter 获取单个遭遇
func (s *EncounterService) GetEncounter(ctx context.Context, encounterID string) (*entity.Encounter, error) {
	return s.encounterRepo.GetByID(ctx, encounterID)
}

// GetActiveEncounters 获取玩家参与的未终结遭遇
func (s *EncounterService) GetActiveEncounters(ctx context.Context, playerID string) ([]*entity.Encounter, error) {
	return s.encounterRepo.GetActiveByPlayerID(ctx, playerID)
}

// GetEncounterHistory 获取玩家遭遇历史
func (s *EncounterService) GetEncounterHistory(ctx context.Context, playerID string, limit int) ([]*entity.Encounter, error) {
	return s.encounterRepo.GetHistoryByPlayerID(ctx, playerID, limit)
}

// PlayerStats 玩家战绩
type PlayerStats struct {
	PlayerID            string `json:"player_id"`
	Level               int    `json:"level"`
	Experience          int    `json:"experience"`
	Coins               int    `json:"coins"`
	CoopCapacity        int    `json:"coop_capacity"`
	TotalEncountersWon  int    `json:"total_encounters_won"`
	TotalEncountersLost int    `json:"total_encounters_lost"`
	TotalBirdsLooted    int    `json:"total_birds_looted"`
	TotalBirdsLost      int    `json:"total_birds_lost"`
	Online              bool   `json:"online"`
}

// GetPlayerStats 获取玩家战绩与在线状态
func (s *EncounterService) GetPlayerStats(ctx context.Context, playerID string) (*PlayerStats, error) {
	player, err := s.playerRepo.GetByID(ctx, playerID)
	if err != nil {
		return nil, err
	}

	return &PlayerStats{
		PlayerID:            player.ID,
		Level:               player.Level,
		Experience:          player.Experience,
		Coins:               player.Coins,
		CoopCapacity:        player.CoopCapacity,
		TotalEncountersWon:  player.TotalEncountersWon,
		TotalEncountersLost: player.TotalEncountersLost,
		TotalBirdsLooted:    player.TotalBirdsLooted,
		TotalBirdsLost:      player.TotalBirdsLost,
		Online:              s.presence.IsOnline(ctx, playerID),
	}, nil
}

func (s *EncounterService) cancelEncounter(ctx context.Context, encounter *entity.Encounter, reason string) (*entity.Encounter, error) {
	encounter.Cancel(time.Now())
	if err := s.encounterRepo.Update(ctx, nil, encounter); err != nil {
		return nil, err
	}

	s.metrics.RecordEncounterEvent("cancelled")
	log.LogBusinessEvent(ctx, "encounter_cancelled", "encounter", encounter.ID, map[string]interface{}{
		"reason": reason,
	})

	event := &EncounterCancelledEvent{EncounterID: encounter.ID, Reason: reason}
	s.notifier.Send(ctx, encounter.InitiatorPlayerID, notify.EventEncounterResult, event)
	s.notifier.Send(ctx, encounter.TargetPlayerID, notify.EventEncounterResult, event)

	return encounter, nil
}

func (s *EncounterService) loadSessions(ctx context.Context, encounter *entity.Encounter) (*entity.FlightSession, *entity.FlightSession, error) {
	initiatorSession, err := s.sessionRepo.GetByID(ctx, encounter.InitiatorSessionID)
	if err != nil {
		return nil, nil, err
	}
	targetSession, err := s.sessionRepo.GetByID(ctx, encounter.TargetSessionID)
	if err != nil {
		return nil, nil, err
	}
	return initiatorSession, targetSession, nil
}

// sessionBirds 返回会话中仍属于会话玩家的鸽子
func (s *EncounterService) sessionBirds(ctx context.Context, session *entity.FlightSession) ([]*entity.Bird, error) {
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

// sessionPowers 计算双方当前战力，查询失败按 0 处理
func (s *EncounterService) sessionPowers(ctx context.Context, initiator, target *entity.FlightSession) (int, int) {
	initiatorPower, targetPower := 0, 0
	if birds, err := s.sessionBirds(ctx, initiator); err == nil {
		initiatorPower = combat.FlockPower(birds)
	}
	if birds, err := s.sessionBirds(ctx, target); err == nil {
		targetPower = combat.FlockPower(birds)
	}
	return initiatorPower, targetPower
}
