package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/maintly/maintly/internal/billing/domain"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertIfNew records the delivery and reports whether the row was
	// actually inserted. False means the event was seen before.
	InsertIfNew(ctx context.Context, db *gorm.DB, event *WebhookEvent) (bool, error)
	MarkCompleted(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time, reason string) error
	ListRecent(ctx context.Context, db *gorm.DB, limit int) ([]WebhookEvent, error)
}

// Processor applies a parsed provider event to subscription state. Process
// never propagates handler failures; they are written to the event row so the
// provider is not driven into endless redelivery.
type Processor interface {
	Process(ctx context.Context, event *billingdomain.Event) error
}
