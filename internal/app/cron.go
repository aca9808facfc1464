package app

import (
	"context"
	"time"

	"github.com/yapper-space/core/internal/modules/autocomment"
	pkgcron "github.com/yapper-space/core/internal/pkg/cron"
	"go.uber.org/zap"
)

const taskCleanupJob = "auto-comment-task-cleanup"

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, batches *autocomment.Service, logger *zap.Logger) {
	cronLogger := logger.Named("CronService")

	sched.Register(pkgcron.Job{
		Name:        taskCleanupJob,
		Description: "Drop finished auto-comment tasks older than 7 days",
		Interval:    time.Hour,
		Fn: func(ctx context.Context) error {
			n, err := batches.Cleanup(ctx)
			if err != nil {
				cronLogger.Warn("auto-comment task cleanup failed", zap.Error(err))
				return err
			}
			if n > 0 {
				cronLogger.Info("auto-comment tasks cleaned up", zap.Int("deleted", n))
			}
			return nil
		},
	})
}
