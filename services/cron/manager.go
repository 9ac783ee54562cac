package cron

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sahilchouksey/learnhub-api/model"
	"github.com/sahilchouksey/learnhub-api/services"
	"github.com/sahilchouksey/learnhub-api/utils/auth"
	"gorm.io/gorm"
)

// Job names, also used as cron_job_logs.job_name
const (
	JobExpireStalePayments = "expire_stale_payments"
	JobRetryDeadLetters    = "retry_notification_dead_letters"
	JobCleanupOldData      = "cleanup_old_data"
)

// Deps are the services the scheduled jobs operate on
type Deps struct {
	Payments      *services.PaymentService
	Dispatcher    *services.NotificationDispatcher
	Notifications *services.NotificationService
	Blacklist     *auth.BlacklistService
	PendingTTL    time.Duration // Pending payments older than this are expired
}

// CronManager manages all scheduled cron jobs
type CronManager struct {
	cron *cron.Cron
	db   *gorm.DB
	deps Deps
}

// NewCronManager creates a new cron manager
func NewCronManager(db *gorm.DB, deps Deps) *CronManager {
	if deps.PendingTTL <= 0 {
		deps.PendingTTL = 24 * time.Hour
	}

	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &CronManager{
		cron: c,
		db:   db,
		deps: deps,
	}
}

// Start starts all cron jobs
func (m *CronManager) Start() error {
	log.Println("Starting cron jobs...")

	if err := m.registerJobs(); err != nil {
		return err
	}

	m.cron.Start()

	log.Println("Cron jobs started successfully")
	return nil
}

// Stop stops all cron jobs and waits for running ones
func (m *CronManager) Stop() {
	log.Println("Stopping cron jobs...")
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Println("Cron jobs stopped")
}

// registerJobs registers all cron jobs with their schedules
func (m *CronManager) registerJobs() error {
	jobs := []struct {
		spec string
		name string
		fn   func(context.Context) (string, error)
	}{
		// Every 15 minutes
		{"0 */15 * * * *", JobExpireStalePayments, m.ExpireStalePayments},
		// Every 5 minutes
		{"0 */5 * * * *", JobRetryDeadLetters, m.RetryDeadLetters},
		// Daily at 2 AM
		{"0 0 2 * * *", JobCleanupOldData, m.CleanupOldData},
	}

	for _, job := range jobs {
		job := job
		if _, err := m.cron.AddFunc(job.spec, func() {
			m.Run(job.name, 10*time.Minute, job.fn)
		}); err != nil {
			return fmt.Errorf("failed to register %s: %w", job.name, err)
		}
	}

	log.Println("All cron jobs registered successfully")
	return nil
}

// Run executes a job once and records it in cron_job_logs
func (m *CronManager) Run(jobName string, timeout time.Duration, fn func(context.Context) (string, error)) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	entry := m.logJobStart(jobName)
	message, err := fn(ctx)
	if err != nil {
		m.logJobError(entry, err)
		return err
	}
	m.logJobComplete(entry, message)
	return nil
}

// logJobStart logs the start of a cron job
func (m *CronManager) logJobStart(jobName string) *model.CronJobLog {
	log.Printf("[CRON] Starting job: %s at %s", jobName, time.Now().Format(time.RFC3339))

	entry := &model.CronJobLog{
		JobName:   jobName,
		Status:    model.CronJobRunning,
		StartedAt: time.Now(),
		Metadata:  []byte("{}"),
	}
	if err := m.db.Create(entry).Error; err != nil {
		log.Printf("[CRON] Failed to record start of %s: %v", jobName, err)
	}
	return entry
}

// logJobComplete logs successful completion of a cron job
func (m *CronManager) logJobComplete(entry *model.CronJobLog, message string) {
	log.Printf("[CRON] Completed job: %s - %s", entry.JobName, message)
	m.finish(entry, map[string]interface{}{
		"status":  model.CronJobCompleted,
		"message": message,
	})
}

// logJobError logs a cron job error
func (m *CronManager) logJobError(entry *model.CronJobLog, err error) {
	log.Printf("[CRON] Error in job: %s - %v", entry.JobName, err)
	m.finish(entry, map[string]interface{}{
		"status":    model.CronJobFailed,
		"error_msg": err.Error(),
	})
}

func (m *CronManager) finish(entry *model.CronJobLog, updates map[string]interface{}) {
	if entry.ID == 0 {
		return
	}

	now := time.Now()
	updates["completed_at"] = &now
	updates["duration"] = now.Sub(entry.StartedAt).Milliseconds()

	if err := m.db.Model(&model.CronJobLog{}).Where("id = ?", entry.ID).Updates(updates).Error; err != nil {
		log.Printf("[CRON] Failed to record end of %s: %v", entry.JobName, err)
	}
}
