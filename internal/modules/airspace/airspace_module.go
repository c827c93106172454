// Package airspace 组装空域模块：HTTP 服务、定时任务与依赖注入。
package airspace

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "taklaci-self/internal/middleware"
	"taklaci-self/internal/modules/airspace/handler"
	"taklaci-self/internal/modules/airspace/service"
	"taklaci-self/internal/modules/airspace/tasks"
	"taklaci-self/internal/pkg/config"
	"taklaci-self/internal/pkg/log"
	"taklaci-self/internal/pkg/metrics"
	"taklaci-self/internal/pkg/notify"
	"taklaci-self/internal/pkg/presence"
	"taklaci-self/internal/pkg/response"
	"taklaci-self/internal/pkg/validator"
)

// Module 空域模块
type Module struct {
	db               *sql.DB
	natsConn         *nats.Conn
	tracker          presence.Tracker
	httpServer       *echo.Echo
	serviceContainer *service.ServiceContainer
	flightHandler    *handler.FlightHandler
	encounterHandler *handler.EncounterHandler
	detectionTask    *tasks.EncounterDetectionTask
	expirationTask   *tasks.FlightExpirationTask
	respWriter       response.Writer
	logger           log.Logger
}

// NewModule 创建空域模块。
// natsConn 与 tracker 都是可选依赖：前者为 nil 时推送降级为空实现，
// 后者为 nil 时使用进程内的在线状态跟踪。
func NewModule(db *sql.DB, natsConn *nats.Conn, tracker presence.Tracker) *Module {
	logger := log.GetLogger()

	if tracker == nil {
		tracker = presence.NewMemoryTracker(presence.DefaultTTL)
	}

	m := &Module{
		db:       db,
		natsConn: natsConn,
		tracker:  tracker,
		logger:   logger,
	}

	// 1. Response writer
	environment := config.GetEnvOrDefault("ENVIRONMENT", "development")
	m.respWriter = response.NewResponseHandler(logger, environment)

	// 2. Services
	notifier := notify.NewNatsNotifier(natsConn, logger)
	m.serviceContainer = service.NewServiceContainer(
		db, notifier, tracker, metrics.DefaultAirspaceMetrics, logger,
	)

	// 3. Handlers
	m.flightHandler = handler.NewFlightHandler(m.serviceContainer.FlightService, m.respWriter)
	m.encounterHandler = handler.NewEncounterHandler(m.serviceContainer.EncounterService, m.respWriter)

	// 4. Cron tasks
	m.detectionTask = tasks.NewEncounterDetectionTask(
		m.serviceContainer.SessionRepo(),
		m.serviceContainer.EncounterService,
		metrics.DefaultAirspaceMetrics,
		logger,
	)
	m.expirationTask = tasks.NewFlightExpirationTask(m.serviceContainer.FlightService, logger)

	// 5. HTTP server
	m.initHTTPServer(environment)
	m.setupRoutes()

	return m
}

// initHTTPServer 初始化 HTTP 服务与中间件链
func (m *Module) initHTTPServer(environment string) {
	m.httpServer = echo.New()
	m.httpServer.HideBanner = true
	m.httpServer.HidePort = true
	m.httpServer.Validator = validator.New()

	// 中间件顺序：日志 -> 恢复 -> 错误 -> CORS
	m.httpServer.Use(custommiddleware.LoggingMiddleware(m.logger))
	m.httpServer.Use(custommiddleware.RecoveryMiddleware(m.respWriter, m.logger))
	m.httpServer.Use(custommiddleware.ErrorMiddleware(m.respWriter, m.logger))
	m.httpServer.Use(echomiddleware.CORS())

	m.logger.Info("HTTP 中间件已配置", "environment", environment)
}

// setupRoutes 注册路由
func (m *Module) setupRoutes() {
	// 运维端点不走身份中间件
	m.httpServer.GET("/health", func(c echo.Context) error {
		return response.EchoOK(c, m.respWriter, map[string]string{"status": "ok"})
	})
	m.httpServer.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := m.httpServer.Group("/api/v1")
	airspace := v1.Group("/airspace")
	airspace.Use(custommiddleware.PlayerIdentityMiddleware(m.respWriter, m.logger))
	{
		flights := airspace.Group("/flights")
		{
			flights.POST("", m.flightHandler.StartFlight)                  // 开始放飞
			flights.GET("/active", m.flightHandler.GetActiveFlight)        // 查询当前放飞
			flights.GET("/history", m.flightHandler.GetFlightHistory)      // 查询放飞历史
			flights.POST("/:id/end", m.flightHandler.EndFlight)            // 结束放飞
			flights.PUT("/:id/position", m.flightHandler.UpdatePosition)   // 更新位置
			flights.GET("/:id/nearby", m.flightHandler.GetNearbyFlights)   // 查询附近空域
			flights.GET("/:id/matchup", m.encounterHandler.PreviewMatchup) // 推演假想对局
		}

		encounters := airspace.Group("/encounters")
		{
			encounters.GET("/active", m.encounterHandler.GetActiveEncounters)    // 查询进行中的遭遇
			encounters.GET("/history", m.encounterHandler.GetEncounterHistory)   // 查询遭遇历史
			encounters.GET("/:id", m.encounterHandler.GetEncounter)              // 查询遭遇
			encounters.GET("/:id/preview", m.encounterHandler.PreviewEncounter)  // 预览遭遇
			encounters.POST("/:id/resolve", m.encounterHandler.ResolveEncounter) // 立即结算
			encounters.POST("/:id/cancel", m.encounterHandler.CancelEncounter)   // 取消遭遇
		}

		players := airspace.Group("/players")
		{
			players.GET("/me/stats", m.encounterHandler.GetPlayerStats) // 查询玩家战绩
			players.GET("/me/birds", m.flightHandler.GetPlayerBirds)    // 查询名下鸽子
			players.POST("/me/offline", m.flightHandler.GoOffline)      // 标记离线
		}
	}
}

// Start 启动定时任务并阻塞运行 HTTP 服务
func (m *Module) Start(addr string) error {
	m.detectionTask.Start()
	m.expirationTask.Start()

	m.logger.Info("空域模块启动", "addr", addr)
	return m.httpServer.Start(addr)
}

// Shutdown 优雅关闭：先停定时任务，再停 HTTP 服务
func (m *Module) Shutdown(ctx context.Context) error {
	m.detectionTask.Stop()
	m.expirationTask.Stop()

	if err := m.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("关闭 HTTP 服务失败: %w", err)
	}
	return nil
}

// OpenDatabase 打开并验证数据库连接，同时设置连接池参数
func OpenDatabase(dbURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连通性检查失败: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
