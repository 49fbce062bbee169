package models

import (
	"time"

	"gorm.io/datatypes"
)

// OutboxEvent is a domain event written in the same transaction as the state
// change it describes and delivered later by the dispatcher.
type OutboxEvent struct {
	ID            string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Topic         string         `gorm:"type:varchar(100);not null;index" json:"topic"`
	AggregateType string         `gorm:"type:varchar(50);not null" json:"aggregateType"`
	AggregateID   uint           `gorm:"not null;index" json:"aggregateId"`
	Payload       datatypes.JSON `json:"payload"`
	CreatedAt     time.Time      `gorm:"not null;index" json:"createdAt"`
	ProcessedAt   *time.Time     `gorm:"index" json:"processedAt"`
	Attempts      int            `gorm:"default:0" json:"attempts"`
	LastError     string         `gorm:"type:text" json:"lastError,omitempty"`
}

func (OutboxEvent) TableName() string {
	return "outbox_events"
}
