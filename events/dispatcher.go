package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"learnpay/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Handler consumes one event. Returning an error leaves the event unprocessed
// so the next dispatch retries it.
type Handler func(ctx context.Context, event models.OutboxEvent) error

// Dispatcher delivers outbox events to the handlers subscribed to their topic.
type Dispatcher struct {
	db          *gorm.DB
	batchSize   int
	maxAttempts int

	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewDispatcher returns a dispatcher reading from db.
func NewDispatcher(db *gorm.DB) *Dispatcher {
	return &Dispatcher{
		db:          db,
		batchSize:   100,
		maxAttempts: 10,
		handlers:    make(map[string][]Handler),
	}
}

// Subscribe registers h for topic.
func (d *Dispatcher) Subscribe(topic string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[topic] = append(d.handlers[topic], h)
}

// DispatchPending delivers one batch of unprocessed events, oldest first, and
// returns how many were marked processed.
func (d *Dispatcher) DispatchPending(ctx context.Context) (int, error) {
	processed := 0

	batch := func(tx *gorm.DB) error {
		query := tx.Where("processed_at IS NULL AND attempts < ?", d.maxAttempts).
			Order("created_at asc").
			Limit(d.batchSize)

		// Concurrent dispatchers skip each other's rows on PostgreSQL.
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var pending []models.OutboxEvent
		if err := query.Find(&pending).Error; err != nil {
			return fmt.Errorf("load outbox events: %w", err)
		}

		for _, event := range pending {
			if err := d.deliver(ctx, event); err != nil {
				log.Printf("[OUTBOX] Delivery of %s (%s) failed: %v", event.ID, event.Topic, err)
				if uerr := tx.Model(&models.OutboxEvent{}).Where("id = ?", event.ID).
					Updates(map[string]interface{}{
						"attempts":   gorm.Expr("attempts + 1"),
						"last_error": err.Error(),
					}).Error; uerr != nil {
					return uerr
				}
				continue
			}

			now := time.Now()
			if err := tx.Model(&models.OutboxEvent{}).Where("id = ?", event.ID).
				Updates(map[string]interface{}{
					"processed_at": now,
					"attempts":     gorm.Expr("attempts + 1"),
					"last_error":   "",
				}).Error; err != nil {
				return err
			}
			processed++
		}
		return nil
	}

	db := d.db.WithContext(ctx)
	if db.Dialector.Name() != "postgres" {
		// No row locks to hold; handlers may need the only SQLite connection.
		return processed, batch(db)
	}
	err := db.Transaction(batch)
	return processed, err
}

func (d *Dispatcher) deliver(ctx context.Context, event models.OutboxEvent) error {
	d.mu.RLock()
	handlers := d.handlers[event.Topic]
	d.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Decode unmarshals the event payload into v.
func Decode(event models.OutboxEvent, v any) error {
	if err := json.Unmarshal(event.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Topic, err)
	}
	return nil
}
