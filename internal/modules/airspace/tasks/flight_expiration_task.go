package tasks

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"taklaci-self/internal/modules/airspace/service"
	"taklaci-self/internal/pkg/log"
)

// 到期检查间隔
const expirationSchedule = "@every 30s"

// FlightExpirationTask 放飞到期任务。
// 周期结束所有已飞满时长的会话，让鸽子归巢。
type FlightExpirationTask struct {
	flightService *service.FlightService
	logger        log.Logger
	cron          *cron.Cron
}

// NewFlightExpirationTask 创建放飞到期任务实例
func NewFlightExpirationTask(flightService *service.FlightService, logger log.Logger) *FlightExpirationTask {
	return &FlightExpirationTask{
		flightService: flightService,
		logger:        logger,
	}
}

// Start 启动定时任务
func (t *FlightExpirationTask) Start() {
	t.cron = cron.New(cron.WithSeconds(), cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))

	_, err := t.cron.AddFunc(expirationSchedule, t.runOnce)
	if err != nil {
		t.logger.Error("【定时任务】添加放飞到期任务失败", err)
		return
	}

	t.cron.Start()
	t.logger.Info("【定时任务】放飞到期检查已启动", "schedule", expirationSchedule)
}

func (t *FlightExpirationTask) runOnce() {
	ctx := context.Background()

	ended, err := t.flightService.ExpireCompletedFlights(ctx, time.Now())
	if err != nil {
		t.logger.Error("【定时任务】放飞到期检查失败", err)
		return
	}
	if ended > 0 {
		t.logger.Info("【定时任务】到期会话已结束", "count", ended)
	}
}

// Stop 停止定时任务（优雅关闭）
func (t *FlightExpirationTask) Stop() {
	if t.cron != nil {
		t.logger.Info("【定时任务】正在停止放飞到期检查...")
		ctx := t.cron.Stop()
		<-ctx.Done()
		t.logger.Info("【定时任务】放飞到期检查已停止")
	}
}
