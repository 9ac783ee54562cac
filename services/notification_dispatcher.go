package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sahilchouksey/learnhub-api/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NotificationKind names the state change a task reports
type NotificationKind string

const (
	NotifyPaymentCompleted    NotificationKind = "payment.completed"
	NotifyEnrollmentConfirmed NotificationKind = "enrollment.confirmed"
)

// allSinks marks a dead letter that never reached any sink (queue full or stopped)
const allSinks = "*"

// maxDeadLetterAttempts is the total delivery count after which a dead letter is abandoned
const maxDeadLetterAttempts = 10

// NotificationTask is one side-effect request, delivered to every sink
type NotificationTask struct {
	ID            string                        `json:"id"`
	Kind          NotificationKind              `json:"kind"`
	UserID        uint                          `json:"user_id"`
	UserEmail     string                        `json:"user_email,omitempty"`
	UserName      string                        `json:"user_name,omitempty"`
	CourseID      uint                          `json:"course_id"`
	CourseTitle   string                        `json:"course_title"`
	InstructorID  uint                          `json:"instructor_id"`
	EnrollmentID  uint                          `json:"enrollment_id"`
	PaymentStatus model.EnrollmentPaymentStatus `json:"payment_status"`
	OrderID       string                        `json:"order_id,omitempty"`
	PaymentID     string                        `json:"payment_id,omitempty"`
	Receipt       string                        `json:"receipt,omitempty"`
	Amount        int64                         `json:"amount,omitempty"` // Minor units
	Currency      string                        `json:"currency,omitempty"`
	OccurredAt    time.Time                     `json:"occurred_at"`
}

// NotificationSink delivers tasks to one channel (in-app, email, archive, event stream)
type NotificationSink interface {
	Name() string
	Deliver(ctx context.Context, task NotificationTask) error
}

// Notifier accepts tasks without blocking the caller
type Notifier interface {
	Enqueue(task NotificationTask)
}

// DispatcherConfig tunes the worker pool and retry policy
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	Backoff     time.Duration // Multiplied by the attempt number
	Timeout     time.Duration // Per delivery attempt
}

func (c *DispatcherConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff < 0 {
		c.Backoff = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// NotificationDispatcher runs notification side-effects on a bounded worker pool.
// Failures never propagate to the request that enqueued the task; they end up in the
// notification_dead_letters table instead.
type NotificationDispatcher struct {
	db    *gorm.DB
	cfg   DispatcherConfig
	sinks []NotificationSink
	queue chan NotificationTask

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewNotificationDispatcher creates a dispatcher. Call Start before tasks are processed.
func NewNotificationDispatcher(db *gorm.DB, cfg DispatcherConfig, sinks ...NotificationSink) *NotificationDispatcher {
	cfg.applyDefaults()
	return &NotificationDispatcher{
		db:    db,
		cfg:   cfg,
		sinks: sinks,
		queue: make(chan NotificationTask, cfg.QueueSize),
	}
}

// Sinks returns the registered sink names
func (d *NotificationDispatcher) Sinks() []string {
	names := make([]string, 0, len(d.sinks))
	for _, s := range d.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Start launches the workers
func (d *NotificationDispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started || d.closed {
		return
	}
	d.started = true

	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}

	log.Printf("[NOTIFY] dispatcher started with %d workers and sinks %v", d.cfg.Workers, d.Sinks())
}

// Stop stops accepting tasks and waits for queued ones to finish. If ctx expires first,
// in-flight deliveries are cancelled.
func (d *NotificationDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		// Nobody will drain the queue, keep the tasks
		for task := range d.queue {
			d.deadLetter(task, allSinks, 0, errors.New("dispatcher stopped before start"))
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		log.Println("[NOTIFY] dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// Enqueue schedules a task. It never blocks: when the queue is full or the dispatcher is
// stopped the task goes straight to the dead-letter log.
func (d *NotificationDispatcher) Enqueue(task NotificationTask) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.OccurredAt.IsZero() {
		task.OccurredAt = time.Now()
	}

	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		d.deadLetter(task, allSinks, 0, errors.New("dispatcher stopped"))
		return
	}

	select {
	case d.queue <- task:
		d.mu.RUnlock()
	default:
		d.mu.RUnlock()
		d.deadLetter(task, allSinks, 0, errors.New("notification queue full"))
	}
}

func (d *NotificationDispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for task := range d.queue {
		d.process(ctx, task)
	}
}

func (d *NotificationDispatcher) process(ctx context.Context, task NotificationTask) {
	for _, sink := range d.sinks {
		attempts, err := d.deliverWithRetry(ctx, sink, task)
		if err != nil {
			d.deadLetter(task, sink.Name(), attempts, err)
		}
	}
}

func (d *NotificationDispatcher) deliverWithRetry(ctx context.Context, sink NotificationSink, task NotificationTask) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		lastErr = d.deliverOnce(ctx, sink, task)
		if lastErr == nil {
			return attempt, nil
		}

		if attempt == d.cfg.MaxAttempts {
			return attempt, lastErr
		}

		select {
		case <-ctx.Done():
			return attempt, fmt.Errorf("%w (after %v)", lastErr, ctx.Err())
		case <-time.After(d.cfg.Backoff * time.Duration(attempt)):
		}
	}
	return d.cfg.MaxAttempts, lastErr
}

// deliverOnce runs a single attempt with its own timeout. A panicking sink counts as a failure.
func (d *NotificationDispatcher) deliverOnce(ctx context.Context, sink NotificationSink, task NotificationTask) (err error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink %s panicked: %v", sink.Name(), r)
		}
	}()

	return sink.Deliver(ctx, task)
}

// deadLetter persists a failed delivery. It only logs on storage failure so callers are
// never affected.
func (d *NotificationDispatcher) deadLetter(task NotificationTask, sink string, attempts int, cause error) {
	log.Printf("[NOTIFY] dead-lettered task %s (%s) for sink %s after %d attempts: %v",
		task.ID, task.Kind, sink, attempts, cause)

	payload, err := json.Marshal(task)
	if err != nil {
		log.Printf("[NOTIFY] failed to marshal task %s: %v", task.ID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	letter := model.NotificationDeadLetter{
		TaskID:    task.ID,
		Kind:      string(task.Kind),
		Sink:      sink,
		Payload:   datatypes.JSON(payload),
		Attempts:  attempts,
		LastError: cause.Error(),
		Status:    model.DeadLetterPending,
	}
	if err := d.db.WithContext(ctx).Create(&letter).Error; err != nil {
		log.Printf("[NOTIFY] failed to persist dead letter for task %s: %v", task.ID, err)
	}
}

// RetryResult summarizes a RetryDeadLetters run
type RetryResult struct {
	Processed int `json:"processed"`
	Resolved  int `json:"resolved"`
	Failed    int `json:"failed"`
	Abandoned int `json:"abandoned"`
}

// RetryDeadLetters makes one more delivery attempt for up to limit pending dead letters
func (d *NotificationDispatcher) RetryDeadLetters(ctx context.Context, limit int) (RetryResult, error) {
	var result RetryResult
	if limit <= 0 {
		limit = 100
	}

	var letters []model.NotificationDeadLetter
	if err := d.db.WithContext(ctx).
		Where("status = ?", model.DeadLetterPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&letters).Error; err != nil {
		return result, fmt.Errorf("failed to load dead letters: %w", err)
	}

	for i := range letters {
		letter := &letters[i]
		result.Processed++

		status, deliverErr := d.retryLetter(ctx, letter)
		updates := map[string]interface{}{
			"attempts":   letter.Attempts + 1,
			"status":     status,
			"updated_at": time.Now(),
		}
		if deliverErr != nil {
			updates["last_error"] = deliverErr.Error()
		}

		switch status {
		case model.DeadLetterResolved:
			now := time.Now()
			updates["resolved_at"] = &now
			result.Resolved++
		case model.DeadLetterAbandoned:
			result.Abandoned++
			log.Printf("[NOTIFY] abandoned dead letter %d (task %s, sink %s): %v", letter.ID, letter.TaskID, letter.Sink, deliverErr)
		default:
			result.Failed++
		}

		if err := d.db.WithContext(ctx).Model(&model.NotificationDeadLetter{}).
			Where("id = ?", letter.ID).
			Updates(updates).Error; err != nil {
			return result, fmt.Errorf("failed to update dead letter %d: %w", letter.ID, err)
		}
	}

	return result, nil
}

func (d *NotificationDispatcher) retryLetter(ctx context.Context, letter *model.NotificationDeadLetter) (model.DeadLetterStatus, error) {
	var task NotificationTask
	if err := json.Unmarshal(letter.Payload, &task); err != nil {
		return model.DeadLetterAbandoned, fmt.Errorf("corrupt payload: %w", err)
	}

	targets := d.sinksFor(letter.Sink)
	if len(targets) == 0 {
		return model.DeadLetterAbandoned, fmt.Errorf("sink %s is not registered", letter.Sink)
	}

	var errs []error
	for _, sink := range targets {
		if err := d.deliverOnce(ctx, sink, task); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	if len(errs) == 0 {
		return model.DeadLetterResolved, nil
	}

	err := errors.Join(errs...)
	if letter.Attempts+1 >= maxDeadLetterAttempts {
		return model.DeadLetterAbandoned, err
	}
	return model.DeadLetterPending, err
}

func (d *NotificationDispatcher) sinksFor(name string) []NotificationSink {
	if name == allSinks {
		return d.sinks
	}
	for _, s := range d.sinks {
		if s.Name() == name {
			return []NotificationSink{s}
		}
	}
	return nil
}

// ListDeadLetters returns dead letters, newest first, optionally filtered by status
func (d *NotificationDispatcher) ListDeadLetters(ctx context.Context, status string, limit, offset int) ([]model.NotificationDeadLetter, int64, error) {
	var letters []model.NotificationDeadLetter
	var total int64

	query := d.db.WithContext(ctx).Model(&model.NotificationDeadLetter{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count dead letters: %w", err)
	}

	if limit <= 0 {
		limit = 50
	}
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&letters).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch dead letters: %w", err)
	}

	return letters, total, nil
}

// CleanupResolvedDeadLetters deletes resolved or abandoned letters older than the cutoff
func (d *NotificationDispatcher) CleanupResolvedDeadLetters(ctx context.Context, olderThan time.Duration) (int64, error) {
	result := d.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]model.DeadLetterStatus{model.DeadLetterResolved, model.DeadLetterAbandoned},
			time.Now().Add(-olderThan)).
		Delete(&model.NotificationDeadLetter{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to cleanup dead letters: %w", result.Error)
	}
	return result.RowsAffected, nil
}
