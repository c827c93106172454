package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"taklaci-self/internal/pkg/log"
)

const keyPrefix = "presence:player:"

// RedisTracker 基于 Redis 的在线状态注册表，多实例部署时共享
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
	logger log.Logger
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisTracker 创建 Redis 注册表并验证连接
func NewRedisTracker(cfg RedisConfig, ttl time.Duration, logger log.Logger) (*RedisTracker, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redis 连接失败: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.GetLogger()
	}

	return &RedisTracker{
		client: rdb,
		ttl:    ttl,
		logger: logger.With("component", "presence_redis"),
	}, nil
}

func (t *RedisTracker) MarkOnline(ctx context.Context, playerID string) error {
	return t.client.Set(ctx, keyPrefix+playerID, "1", t.ttl).Err()
}

func (t *RedisTracker) MarkOffline(ctx context.Context, playerID string) error {
	return t.client.Del(ctx, keyPrefix+playerID).Err()
}

// IsOnline 查询在线状态。Redis 故障时降级为离线，不阻断遭遇创建。
func (t *RedisTracker) IsOnline(ctx context.Context, playerID string) bool {
	n, err := t.client.Exists(ctx, keyPrefix+playerID).Result()
	if err != nil {
		t.logger.WarnContext(ctx, "在线状态查询失败，按离线处理",
			log.Any("error", err),
			log.String("player_id", playerID))
		return false
	}
	return n > 0
}

// Close 关闭底层连接
func (t *RedisTracker) Close() error {
	return t.client.Close()
}
