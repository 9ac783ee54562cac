package cron

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sahilchouksey/learnhub-api/model"
)

// ExpireStalePayments fails pending payments nobody completed within the pending TTL
func (m *CronManager) ExpireStalePayments(ctx context.Context) (string, error) {
	if m.deps.Payments == nil {
		return "payments not configured", nil
	}

	expired, err := m.deps.Payments.ExpireStalePayments(ctx, m.deps.PendingTTL)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Expired %d pending payments older than %s", expired, m.deps.PendingTTL), nil
}

// RetryDeadLetters gives failed notification deliveries another attempt
func (m *CronManager) RetryDeadLetters(ctx context.Context) (string, error) {
	if m.deps.Dispatcher == nil {
		return "dispatcher not configured", nil
	}

	result, err := m.deps.Dispatcher.RetryDeadLetters(ctx, 100)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Processed %d dead letters: %d resolved, %d failed, %d abandoned",
		result.Processed, result.Resolved, result.Failed, result.Abandoned), nil
}

// CleanupOldData removes expired tokens, old cron logs, old read notifications and
// settled dead letters
func (m *CronManager) CleanupOldData(ctx context.Context) (string, error) {
	totalCleaned := int64(0)

	// 1. Expired JWT blacklist entries
	if m.deps.Blacklist != nil {
		n, err := m.deps.Blacklist.CleanupExpiredTokens(ctx)
		if err != nil {
			log.Printf("[CRON] Failed to clean token blacklist: %v", err)
		} else {
			log.Printf("[CRON] Cleaned %d expired tokens", n)
			totalCleaned += n
		}
	}

	// 2. Cron job logs, keep the last 90 days
	cutoffLogs := time.Now().Add(-90 * 24 * time.Hour)
	result := m.db.WithContext(ctx).Where("created_at < ?", cutoffLogs).Delete(&model.CronJobLog{})
	if result.Error != nil {
		log.Printf("[CRON] Failed to clean cron logs: %v", result.Error)
	} else {
		log.Printf("[CRON] Cleaned %d old cron logs", result.RowsAffected)
		totalCleaned += result.RowsAffected
	}

	// 3. Read notifications older than 60 days
	if m.deps.Notifications != nil {
		n, err := m.deps.Notifications.CleanupOldNotifications(ctx, 60*24*time.Hour)
		if err != nil {
			log.Printf("[CRON] Failed to clean notifications: %v", err)
		} else {
			totalCleaned += n
		}
	}

	// 4. Resolved or abandoned dead letters older than 30 days
	if m.deps.Dispatcher != nil {
		n, err := m.deps.Dispatcher.CleanupResolvedDeadLetters(ctx, 30*24*time.Hour)
		if err != nil {
			log.Printf("[CRON] Failed to clean dead letters: %v", err)
		} else {
			log.Printf("[CRON] Cleaned %d settled dead letters", n)
			totalCleaned += n
		}
	}

	return fmt.Sprintf("Cleaned %d records", totalCleaned), nil
}
