package tasks

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"taklaci-self/internal/entity"
	"taklaci-self/internal/geo"
	"taklaci-self/internal/modules/airspace/service"
	"taklaci-self/internal/pkg/log"
	"taklaci-self/internal/pkg/metrics"
	"taklaci-self/internal/pkg/xerrors"
	"taklaci-self/internal/repository/interfaces"
)

const (
	// DetectionRangeMeters 遭遇检测半径（米）
	DetectionRangeMeters = 500.0

	// 检测循环间隔
	detectionSchedule = "@every 5s"
)

// EncounterDetectionTask 遭遇检测任务。
// 周期扫描所有进行中的会话，给进入检测半径的不同玩家会话对
// 创建遭遇，随后结算已超时的遭遇。
type EncounterDetectionTask struct {
	sessionRepo      interfaces.SessionRepository
	encounterService *service.EncounterService
	metrics          *metrics.AirspaceMetrics
	logger           log.Logger
	cron             *cron.Cron
}

// NewEncounterDetectionTask 创建遭遇检测任务实例
func NewEncounterDetectionTask(
	sessionRepo interfaces.SessionRepository,
	encounterService *service.EncounterService,
	airspaceMetrics *metrics.AirspaceMetrics,
	logger log.Logger,
) *EncounterDetectionTask {
	return &EncounterDetectionTask{
		sessionRepo:      sessionRepo,
		encounterService: encounterService,
		metrics:          airspaceMetrics,
		logger:           logger,
	}
}

// Start 启动定时任务
func (t *EncounterDetectionTask) Start() {
	t.cron = cron.New(cron.WithSeconds(), cron.WithChain(
		// 上一轮还没扫完时跳过本轮，避免堆积
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))

	_, err := t.cron.AddFunc(detectionSchedule, t.runOnce)
	if err != nil {
		t.logger.Error("【定时任务】添加遭遇检测任务失败", err)
		return
	}

	t.cron.Start()
	t.logger.Info("【定时任务】遭遇检测已启动", "schedule", detectionSchedule, "range_meters", DetectionRangeMeters)
}

// runOnce 执行一轮检测与超时结算
func (t *EncounterDetectionTask) runOnce() {
	ctx := context.Background()
	started := time.Now()

	if err := t.detectEncounters(ctx); err != nil {
		t.logger.Error("【定时任务】遭遇检测失败", err)
	}

	resolved, err := t.encounterService.ResolveTimedOutEncounters(ctx, time.Now())
	if err != nil {
		t.logger.Error("【定时任务】超时遭遇结算失败", err)
	} else if resolved > 0 {
		t.logger.Info("【定时任务】超时遭遇已结算", "count", resolved)
	}

	t.metrics.RecordDetectionTick(time.Since(started))
}

// detectEncounters 扫描一轮空域并为满足条件的会话对创建遭遇
func (t *EncounterDetectionTask) detectEncounters(ctx context.Context) error {
	sessions, err := t.sessionRepo.GetAllActive(ctx)
	if err != nil {
		return err
	}

	// 本轮已处理过的会话对，避免同一轮内重复创建
	seen := make(map[string]struct{})

	for i := 0; i < len(sessions); i++ {
		for j := i + 1; j < len(sessions); j++ {
			a, b := sessions[i], sessions[j]
			if a.PlayerID == b.PlayerID {
				continue
			}
			if !geo.WithinRange(a.Latitude, a.Longitude, b.Latitude, b.Longitude, DetectionRangeMeters) {
				continue
			}

			pairKey := entity.SessionPairKey(a.ID, b.ID)
			if _, ok := seen[pairKey]; ok {
				continue
			}
			seen[pairKey] = struct{}{}

			if _, err := t.encounterService.CreateEncounter(ctx, a, b); err != nil {
				// 会话对已有未终结遭遇属于正常情况
				if xerrors.CodeOf(err) == xerrors.CodeEncounterPairActive {
					continue
				}
				t.logger.Error("【定时任务】创建遭遇失败", err,
					"session_a", a.ID, "session_b", b.ID)
			}
		}
	}

	return nil
}

// Stop 停止定时任务（优雅关闭）
func (t *EncounterDetectionTask) Stop() {
	if t.cron != nil {
		t.logger.Info("【定时任务】正在停止遭遇检测...")
		ctx := t.cron.Stop()
		<-ctx.Done()
		t.logger.Info("【定时任务】遭遇检测已停止")
	}
}
