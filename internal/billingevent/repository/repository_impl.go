package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	billingeventdomain "github.com/maintly/maintly/internal/billingevent/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() billingeventdomain.Repository {
	return &repo{}
}

// InsertIfNew relies on the unique (provider, provider_event_id) constraint;
// ON CONFLICT DO NOTHING turns a redelivery into an affected-rows check
// instead of an error.
func (r *repo) InsertIfNew(ctx context.Context, db *gorm.DB, event *billingeventdomain.WebhookEvent) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (
			id, provider, provider_event_id, event_type, payload,
			received_at, processed_at, status, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.Payload,
		event.ReceivedAt,
		event.ProcessedAt,
		event.Status,
		event.ErrorMessage,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events SET status = 'completed', processed_at = ?, error_message = '' WHERE id = ?`,
		at,
		id,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time, reason string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events SET status = 'failed', processed_at = ?, error_message = ? WHERE id = ?`,
		at,
		reason,
		id,
	).Error
}

func (r *repo) ListRecent(ctx context.Context, db *gorm.DB, limit int) ([]billingeventdomain.WebhookEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []billingeventdomain.WebhookEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, payload,
		 received_at, processed_at, status, error_message
		 FROM webhook_events ORDER BY received_at DESC, id DESC LIMIT ?`,
		limit,
	).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
