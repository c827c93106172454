package entity

import (
	"time"

	"github.com/aarondl/null/v8"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// FlightSession 飞行会话实体。
// 一名玩家同一时间至多一条 is_active=true 的记录；结束后保留为历史。
type FlightSession struct {
	ID       string         `boil:"id" json:"id"`
	PlayerID string         `boil:"player_id" json:"player_id"`
	BirdIDs  pq.StringArray `boil:"bird_ids" json:"bird_ids"`

	// 空域位置（遭遇探测用）
	Latitude  float64 `boil:"latitude" json:"latitude"`
	Longitude float64 `boil:"longitude" json:"longitude"`
	Altitude  float64 `boil:"altitude" json:"altitude"`

	// 飞行计时
	StartedAt       time.Time     `boil:"started_at" json:"started_at"`
	EndedAt         null.Time     `boil:"ended_at" json:"ended_at,omitempty"`
	DurationMinutes int           `boil:"duration_minutes" json:"duration_minutes"`

	// 飞行状态
	IsActive        bool `boil:"is_active" json:"is_active"`
	EncountersCount int  `boil:"encounters_count" json:"encounters_count"`

	UpdatedAt null.Time `boil:"updated_at" json:"updated_at,omitempty"`
}

// TableName 返回表名
func (FlightSession) TableName() string {
	return "flight_sessions"
}

// DefaultAltitude 起飞时的初始高度（米）
const DefaultAltitude = 100

// NewFlightSession 创建新的飞行会话
func NewFlightSession(playerID string, birdIDs []string, latitude, longitude float64, durationMinutes int) *FlightSession {
	return &FlightSession{
		ID:              uuid.NewString(),
		PlayerID:        playerID,
		BirdIDs:         append(pq.StringArray{}, birdIDs...),
		Latitude:        latitude,
		Longitude:       longitude,
		Altitude:        DefaultAltitude,
		StartedAt:       time.Now().UTC(),
		DurationMinutes: durationMinutes,
		IsActive:        true,
		EncountersCount: 0,
	}
}

// Duration 飞行时长
func (s *FlightSession) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// EndsAt 计划结束时间
func (s *FlightSession) EndsAt() time.Time {
	return s.StartedAt.Add(s.Duration())
}

// IsExpired 判断是否已超过计划时长
func (s *FlightSession) IsExpired(now time.Time) bool {
	return now.After(s.EndsAt())
}

// UpdatePosition 更新空域位置
func (s *FlightSession) UpdatePosition(latitude, longitude, altitude float64) {
	s.Latitude = latitude
	s.Longitude = longitude
	s.Altitude = altitude
	s.touch()
}

// RecordEncounter 记录一次遭遇，计数单调递增
func (s *FlightSession) RecordEncounter() {
	s.EncountersCount++
	s.touch()
}

// End 结束飞行。IsActive 只会翻转一次。
func (s *FlightSession) End(now time.Time) {
	s.IsActive = false
	s.EndedAt = null.TimeFrom(now.UTC())
	s.touch()
}

func (s *FlightSession) touch() {
	s.UpdatedAt = null.TimeFrom(time.Now().UTC())
}
