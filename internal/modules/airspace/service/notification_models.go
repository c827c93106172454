package service

import "time"

// FlightStartedEvent 放飞开始通知
type FlightStartedEvent struct {
	SessionID       string    `json:"session_id"`
	PlayerID        string    `json:"player_id"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	BirdCount       int       `json:"bird_count"`
	DurationMinutes int       `json:"duration_minutes"`
	StartedAt       time.Time `json:"started_at"`
}

// FlightEndedEvent 放飞结束通知
type FlightEndedEvent struct {
	SessionID       string    `json:"session_id"`
	PlayerID        string    `json:"player_id"`
	Reason          string    `json:"reason"` // manual|expired
	EncountersCount int       `json:"encounters_count"`
	EndedAt         time.Time `json:"ended_at"`
}

// PositionUpdatedEvent 位置更新通知
type PositionUpdatedEvent struct {
	SessionID string  `json:"session_id"`
	PlayerID  string  `json:"player_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// FlockSummary 对手鸽群概要（不暴露详细属性）
type FlockSummary struct {
	PlayerID  string `json:"player_id"`
	BirdCount int    `json:"bird_count"`
	Power     int    `json:"power"`
}

// EncounterDetectedEvent 遭遇检测通知，发给双方
type EncounterDetectedEvent struct {
	EncounterID     string       `json:"encounter_id"`
	SessionID       string       `json:"session_id"`
	OwnPower        int          `json:"own_power"`
	Opponent        FlockSummary `json:"opponent"`
	ResolveDeadline time.Time    `json:"resolve_deadline"`
}

// EncounterResultEvent 遭遇结算通知，发给双方
type EncounterResultEvent struct {
	EncounterID    string   `json:"encounter_id"`
	WinnerPlayerID string   `json:"winner_player_id"`
	Won            bool     `json:"won"`
	CoinsLooted    int      `json:"coins_looted"`
	LootedBirdIDs  []string `json:"looted_bird_ids,omitempty"`
	InitiatorPower int      `json:"initiator_power"`
	TargetPower    int      `json:"target_power"`
}

// EncounterCancelledEvent 遭遇取消通知
type EncounterCancelledEvent struct {
	EncounterID string `json:"encounter_id"`
	Reason      string `json:"reason"`
}
