package domain

import (
	"context"
	"time"
)

// CartEventType задаёт тип события жизненного цикла корзины.
type CartEventType string

const (
	CartEventCreated         CartEventType = "cart.created"
	CartEventItemAdded       CartEventType = "cart.item_added"
	CartEventItemRemoved     CartEventType = "cart.item_removed"
	CartEventDiscountApplied CartEventType = "cart.discount_applied"
	CartEventDeleted         CartEventType = "cart.deleted"
)

// CartEvent описывает изменение корзины для внешних подписчиков.
type CartEvent struct {
	Type       CartEventType     `json:"event_type"`
	CartID     string            `json:"cart_id"`
	UserID     string            `json:"user_id"`
	Version    int64             `json:"version"`
	Total      string            `json:"total"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewCartEvent формирует событие по текущему состоянию корзины.
func NewCartEvent(eventType CartEventType, cart Cart, attrs map[string]string) CartEvent {
	return CartEvent{
		Type:       eventType,
		CartID:     cart.ID,
		UserID:     cart.UserID,
		Version:    cart.Version,
		Total:      cart.CalculateTotal().String(),
		OccurredAt: time.Now().UTC(),
		Attributes: attrs,
	}
}

// EventPublisher публикует события корзины наружу (например, в Kafka).
type EventPublisher interface {
	Publish(ctx context.Context, event CartEvent) error
}
