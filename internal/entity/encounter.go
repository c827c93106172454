package entity

import (
	"strings"
	"time"

	"github.com/aarondl/null/v8"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// EncounterState 遭遇生命周期状态
type EncounterState int16

const (
	EncounterStatePending EncounterState = iota
	EncounterStateInProgress
	EncounterStateResolved
	EncounterStateCancelled
)

func (s EncounterState) String() string {
	switch s {
	case EncounterStatePending:
		return "pending"
	case EncounterStateInProgress:
		return "in_progress"
	case EncounterStateResolved:
		return "resolved"
	case EncounterStateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal Resolved 与 Cancelled 为终态，不允许再转移
func (s EncounterState) IsTerminal() bool {
	return s == EncounterStateResolved || s == EncounterStateCancelled
}

// Encounter 遭遇实体。记录永不删除，作为审计与历史查询的数据源。
//
// PairKey 是无序会话对的规范化键（按字典序拼接），配合
// "state IN (pending, in_progress)" 上的部分唯一索引保证同一对会话
// 至多存在一条进行中的遭遇。
type Encounter struct {
	ID      string `boil:"id" json:"id"`
	PairKey string `boil:"pair_key" json:"-"`

	InitiatorSessionID string `boil:"initiator_session_id" json:"initiator_session_id"`
	TargetSessionID    string `boil:"target_session_id" json:"target_session_id"`
	InitiatorPlayerID  string `boil:"initiator_player_id" json:"initiator_player_id"`
	TargetPlayerID     string `boil:"target_player_id" json:"target_player_id"`

	// 战斗状态
	State          EncounterState `boil:"state" json:"state"`
	WinnerPlayerID null.String    `boil:"winner_player_id" json:"winner_player_id,omitempty"`

	// 结算结果
	LootedBirdIDs pq.StringArray `boil:"looted_bird_ids" json:"looted_bird_ids"`
	CoinsLooted   int            `boil:"coins_looted" json:"coins_looted"`

	// 战斗过程留痕
	InitiatorPower int `boil:"initiator_power" json:"initiator_power"`
	TargetPower    int `boil:"target_power" json:"target_power"`
	RandomRoll     int `boil:"random_roll" json:"random_roll"`

	// 创建时的在线快照，仅作审计元数据，结算逻辑不读取
	InitiatorWasOnline bool `boil:"initiator_was_online" json:"initiator_was_online"`
	TargetWasOnline    bool `boil:"target_was_online" json:"target_was_online"`

	CreatedAt  time.Time `boil:"created_at" json:"created_at"`
	ResolvedAt null.Time `boil:"resolved_at" json:"resolved_at,omitempty"`
	UpdatedAt  null.Time `boil:"updated_at" json:"updated_at,omitempty"`
}

// TableName 返回表名
func (Encounter) TableName() string {
	return "encounters"
}

// SessionPairKey 计算无序会话对的规范化键
func SessionPairKey(sessionID1, sessionID2 string) string {
	if strings.Compare(sessionID1, sessionID2) < 0 {
		return sessionID1 + ":" + sessionID2
	}
	return sessionID2 + ":" + sessionID1
}

// NewEncounter 创建 Pending 状态的遭遇
func NewEncounter(initiatorSession, targetSession *FlightSession, initiatorOnline, targetOnline bool) *Encounter {
	return &Encounter{
		ID:                 uuid.NewString(),
		PairKey:            SessionPairKey(initiatorSession.ID, targetSession.ID),
		InitiatorSessionID: initiatorSession.ID,
		TargetSessionID:    targetSession.ID,
		InitiatorPlayerID:  initiatorSession.PlayerID,
		TargetPlayerID:     targetSession.PlayerID,
		State:              EncounterStatePending,
		InitiatorWasOnline: initiatorOnline,
		TargetWasOnline:    targetOnline,
		CreatedAt:          time.Now().UTC(),
	}
}

// SetInProgress 进入结算中状态
func (e *Encounter) SetInProgress() {
	e.State = EncounterStateInProgress
	e.touch()
}

// SetCombatTrace 记录双方战力与随机掷点
func (e *Encounter) SetCombatTrace(initiatorPower, targetPower, roll int) {
	e.InitiatorPower = initiatorPower
	e.TargetPower = targetPower
	e.RandomRoll = roll
	e.touch()
}

// Resolve 进入终态 Resolved 并写入结算结果
func (e *Encounter) Resolve(winnerPlayerID string, lootedBirdIDs []string, coinsLooted int, now time.Time) {
	e.State = EncounterStateResolved
	e.WinnerPlayerID = null.StringFrom(winnerPlayerID)
	e.LootedBirdIDs = append(pq.StringArray{}, lootedBirdIDs...)
	e.CoinsLooted = coinsLooted
	e.ResolvedAt = null.TimeFrom(now.UTC())
	e.touch()
}

// Cancel 进入终态 Cancelled
func (e *Encounter) Cancel(now time.Time) {
	e.State = EncounterStateCancelled
	e.ResolvedAt = null.TimeFrom(now.UTC())
	e.touch()
}

// IsTimedOut 判断创建后是否已超过响应窗口
func (e *Encounter) IsTimedOut(now time.Time, timeout time.Duration) bool {
	return !now.Before(e.CreatedAt.Add(timeout))
}

// InvolvesPlayer 判断玩家是否参与本次遭遇
func (e *Encounter) InvolvesPlayer(playerID string) bool {
	return e.InitiatorPlayerID == playerID || e.TargetPlayerID == playerID
}

func (e *Encounter) touch() {
	e.UpdatedAt = null.TimeFrom(time.Now().UTC())
}
