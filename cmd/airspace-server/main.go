package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"taklaci-self/internal/modules/airspace"
	"taklaci-self/internal/pkg/config"
	"taklaci-self/internal/pkg/log"
	"taklaci-self/internal/pkg/presence"
)

// @title           Taklaci Airspace API
// @version         1.0
// @description     异步对战鸽子游戏的空域服务：放飞、遭遇检测与结算

// @host      localhost
// @BasePath  /api/v1

func main() {
	fmt.Println("==============================================")
	fmt.Println("  Taklaci Airspace Server")
	fmt.Println("  Version: 1.0.0")
	fmt.Println("==============================================")
	fmt.Println()

	environment := config.GetEnvOrDefault("ENVIRONMENT", "development")
	logLevel := slog.LevelInfo
	if environment == "development" {
		logLevel = slog.LevelDebug
	}
	log.Init(logLevel, environment)
	logger := log.GetLogger()

	// 1. 数据库
	dbURL := config.MustGetEnv("TAKLACI_DATABASE_URL")
	db, err := airspace.OpenDatabase(dbURL)
	if err != nil {
		logger.Error("数据库初始化失败", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("数据库连接成功")

	// 2. NATS（可选，未配置时推送降级为空实现）
	var natsConn *nats.Conn
	natsAddr := config.GetEnvOrDefault("NATS_ADDRESS", "")
	if natsAddr != "" {
		if !strings.Contains(natsAddr, "://") {
			natsAddr = "nats://" + natsAddr
		}
		natsConn, err = nats.Connect(natsAddr,
			nats.MaxReconnects(10),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			logger.Error("NATS 连接失败，推送将被禁用", err, "addr", natsAddr)
			natsConn = nil
		} else {
			defer natsConn.Close()
			logger.Info("NATS 连接成功", "addr", natsAddr)
		}
	} else {
		logger.Warn("未配置 NATS_ADDRESS，推送将被禁用")
	}

	// 3. Redis 在线状态（可选，未配置时使用进程内跟踪）
	var tracker presence.Tracker
	redisHost := config.GetEnvOrDefault("REDIS_HOST", "")
	if redisHost != "" {
		redisTracker, err := presence.NewRedisTracker(presence.RedisConfig{
			Host:     redisHost,
			Port:     config.GetEnvInt("REDIS_PORT", 6379),
			Password: config.GetEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       config.GetEnvInt("REDIS_DB", 0),
		}, presence.DefaultTTL, logger)
		if err != nil {
			logger.Error("Redis 连接失败，改用进程内在线状态", err)
		} else {
			defer redisTracker.Close()
			tracker = redisTracker
			logger.Info("Redis 在线状态已启用", "host", redisHost)
		}
	}

	// 4. 组装并启动模块
	module := airspace.NewModule(db, natsConn, tracker)

	addr := config.GetEnvOrDefault("HTTP_ADDR", ":8080")
	go func() {
		if err := module.Start(addr); err != nil {
			logger.Error("HTTP 服务退出", err)
		}
	}()

	// 5. 等待退出信号后优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("收到退出信号，开始优雅关闭")

	shutdownTimeout := config.GetEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := module.Shutdown(ctx); err != nil {
		logger.Error("优雅关闭失败", err)
		os.Exit(1)
	}
	logger.Info("服务已退出")
}
