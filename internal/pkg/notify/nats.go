package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"taklaci-self/internal/pkg/log"
	"taklaci-self/internal/pkg/metrics"
)

// SubjectPrefix 玩家事件的 NATS subject 前缀。
// 完整 subject 形如 airspace.player.<player_id>.<event>，
// 网关侧按玩家订阅 airspace.player.<player_id>.> 即可收到全部事件。
const SubjectPrefix = "airspace.player"

// NatsNotifier 基于 NATS 的推送实现
type NatsNotifier struct {
	conn    *nats.Conn
	logger  log.Logger
	metrics *metrics.AirspaceMetrics
}

// NewNatsNotifier 创建 NATS 推送器。conn 为 nil 时返回降级的空实现。
func NewNatsNotifier(conn *nats.Conn, logger log.Logger) Notifier {
	if conn == nil {
		return NoopNotifier{}
	}
	if logger == nil {
		logger = log.GetLogger()
	}
	return &NatsNotifier{
		conn:    conn,
		logger:  logger.With("component", "nats_notifier"),
		metrics: metrics.DefaultAirspaceMetrics,
	}
}

// Send 发布玩家事件。NATS Publish 本身是异步写入缓冲，不会阻塞业务路径；
// 序列化或发布失败只记录日志，不向调用方传播。
func (n *NatsNotifier) Send(ctx context.Context, playerID string, event string, payload interface{}) {
	subject := fmt.Sprintf("%s.%s.%s", SubjectPrefix, playerID, event)

	data, err := json.Marshal(payload)
	if err != nil {
		n.logger.ErrorContext(ctx, "推送事件序列化失败", log.Any("error", err),
			log.String("event", event),
			log.String("player_id", playerID))
		return
	}

	if err := n.conn.Publish(subject, data); err != nil {
		n.logger.WarnContext(ctx, "推送事件发布失败",
			log.Any("error", err),
			log.String("subject", subject))
		return
	}

	n.metrics.RecordNotification(event)
}
