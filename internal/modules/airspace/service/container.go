package service

import (
	"database/sql"

	"taklaci-self/internal/combat"
	"taklaci-self/internal/pkg/log"
	"taklaci-self/internal/pkg/metrics"
	"taklaci-self/internal/pkg/notify"
	"taklaci-self/internal/pkg/presence"
	"taklaci-self/internal/repository/impl"
	"taklaci-self/internal/repository/interfaces"
)

// ServiceContainer 空域服务容器 - 统一管理 Repository 和 Service
// 目的：避免重复创建 Repository，简化依赖注入
type ServiceContainer struct {
	birdRepo      interfaces.BirdRepository
	playerRepo    interfaces.PlayerRepository
	sessionRepo   interfaces.SessionRepository
	encounterRepo interfaces.EncounterRepository
	txManager     interfaces.TxManager

	FlightService    *FlightService
	EncounterService *EncounterService
}

// NewServiceContainer 创建服务容器（Postgres 仓储）
func NewServiceContainer(
	db *sql.DB,
	notifier notify.Notifier,
	tracker presence.Tracker,
	airspaceMetrics *metrics.AirspaceMetrics,
	logger log.Logger,
) *ServiceContainer {
	c := &ServiceContainer{
		birdRepo:      impl.NewBirdRepository(db),
		playerRepo:    impl.NewPlayerRepository(db),
		sessionRepo:   impl.NewSessionRepository(db),
		encounterRepo: impl.NewEncounterRepository(db),
		txManager:     impl.NewTxManager(db),
	}

	c.FlightService = NewFlightService(
		c.sessionRepo, c.birdRepo, c.playerRepo,
		notifier, tracker, airspaceMetrics, logger,
	)
	c.EncounterService = NewEncounterService(
		c.encounterRepo, c.sessionRepo, c.birdRepo, c.playerRepo,
		c.txManager, combat.NewCalculator(),
		notifier, tracker, airspaceMetrics, logger,
	)

	return c
}

// SessionRepo 获取会话仓储（供定时任务等模块内组件复用）
func (c *ServiceContainer) SessionRepo() interfaces.SessionRepository {
	return c.sessionRepo
}

// EncounterRepo 获取遭遇仓储
func (c *ServiceContainer) EncounterRepo() interfaces.EncounterRepository {
	return c.encounterRepo
}
