// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"

	"github.com/wakeupmh/pdf-rag/internal/common/config"
	"github.com/wakeupmh/pdf-rag/internal/common/logger"
)

// StartWorker opens a job worker for taskType, or returns nil when the
// worker is disabled in config.
func StartWorker(client zbc.Client, taskType string, wcfg config.WorkerConfig, handler worker.JobHandler, log logger.Logger) worker.JobWorker {
	if !wcfg.Enabled {
		log.Info("worker disabled", map[string]interface{}{"taskType": taskType})
		return nil
	}

	jobWorker := client.NewJobWorker().
		JobType(taskType).
		Handler(recoverHandler(taskType, handler, log)).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	log.Info("worker started", map[string]interface{}{
		"taskType":      taskType,
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeout_ms":    wcfg.Timeout,
	})
	return jobWorker
}

// recoverHandler keeps one bad job from taking the poller down. The job is
// left to time out and be retried by the broker.
func recoverHandler(taskType string, handler worker.JobHandler, log logger.Logger) worker.JobHandler {
	return func(client worker.JobClient, job entities.Job) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("job handler panicked", map[string]interface{}{
					"taskType": taskType,
					"jobKey":   job.GetKey(),
					"panic":    r,
				})
			}
		}()
		handler(client, job)
	}
}
