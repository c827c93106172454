package notify

import (
	"context"
)

// 推送事件名。客户端按事件名分发到对应的 UI 回调。
const (
	EventFlightStarted     = "FlightStarted"
	EventFlightEnded       = "FlightEnded"
	EventPositionUpdated   = "PositionUpdated"
	EventEncounterDetected = "EncounterDetected"
	EventEncounterResult   = "EncounterResult"
)

// Notifier 向玩家推送事件的出站端口。
// 推送是 fire-and-forget 语义：实现不得阻塞调用方，失败只记录日志。
type Notifier interface {
	Send(ctx context.Context, playerID string, event string, payload interface{})
}

// NoopNotifier 空实现，用于推送通道未配置时的降级
type NoopNotifier struct{}

func (NoopNotifier) Send(ctx context.Context, playerID string, event string, payload interface{}) {}
