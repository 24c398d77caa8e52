// Package domain contains the durable webhook event log. Every delivery is
// recorded before processing so redeliveries can be detected and failures
// inspected after the fact.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the processing state of one recorded delivery.
type Status string

const (
	StatusReceived  Status = "received"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// WebhookEvent is one recorded provider delivery. The (provider,
// provider_event_id) pair is unique, so a redelivered event never gets a
// second row.
type WebhookEvent struct {
	ID              snowflake.ID   `gorm:"primaryKey"`
	Provider        string         `gorm:"type:text;not null;uniqueIndex:uq_webhook_events_provider_event"`
	ProviderEventID string         `gorm:"type:text;not null;uniqueIndex:uq_webhook_events_provider_event"`
	EventType       string         `gorm:"type:text;not null;default:''"`
	Payload         datatypes.JSON `gorm:"type:jsonb"`
	ReceivedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	ProcessedAt     *time.Time     `gorm:""`
	Status          Status         `gorm:"type:text;not null;default:'received'"`
	ErrorMessage    string         `gorm:"type:text;not null;default:''"`
}

// TableName sets the database table name.
func (WebhookEvent) TableName() string { return "webhook_events" }
