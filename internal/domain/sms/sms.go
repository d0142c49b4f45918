// Package sms is the notification collaborator. Messages are composed and
// recorded to a log the admin console can page through; nothing is actually
// sent anywhere. The order core never calls this package directly: handlers
// invoke it after a transition succeeds, and its failure never fails the
// transition.
package sms

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/islandgrocer/islandgrocer/internal/domain/order"
)

// DeliveryStatus mirrors what a real SMS gateway would report.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
)

// Message is one entry in the SMS log.
type Message struct {
	ID        string
	OrderID   string
	Body      string
	Status    DeliveryStatus
	CreatedAt time.Time
}

// Repository persists the SMS log.
type Repository interface {
	Create(ctx context.Context, m *Message) error
	// List returns messages newest first, paginated.
	List(ctx context.Context, limit, offset int) ([]Message, error)
}

// Notifier records customer-facing status messages for order transitions.
type Notifier struct {
	repo Repository
	lg   *zap.Logger
	now  func() time.Time
}

// NewNotifier creates a Notifier writing to the given repository.
func NewNotifier(repo Repository, lg *zap.Logger) *Notifier {
	return &Notifier{repo: repo, lg: lg, now: time.Now}
}

// OrderPlaced logs the checkout confirmation message.
func (n *Notifier) OrderPlaced(ctx context.Context, o *order.Order) error {
	return n.record(ctx, o.ID, fmt.Sprintf("Your order #%s has been placed successfully.", o.ID))
}

// OrderClaimed logs the shopping-started message.
func (n *Notifier) OrderClaimed(ctx context.Context, o *order.Order) error {
	return n.record(ctx, o.ID, fmt.Sprintf("Your order #%s is now being shopped.", o.ID))
}

// OutForDelivery logs the delivery-started message with the ETA in minutes.
func (n *Notifier) OutForDelivery(ctx context.Context, o *order.Order) error {
	minutes := int(o.ETA / time.Minute)
	return n.record(ctx, o.ID, fmt.Sprintf("Your order #%s is out for delivery. ETA: %d minutes.", o.ID, minutes))
}

// Delivered logs the completion message.
func (n *Notifier) Delivered(ctx context.Context, o *order.Order) error {
	return n.record(ctx, o.ID, fmt.Sprintf("Your order #%s has been delivered. Thank you!", o.ID))
}

func (n *Notifier) record(ctx context.Context, orderID, body string) error {
	m := &Message{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		Body:      body,
		Status:    StatusSent,
		CreatedAt: n.now().UTC(),
	}
	if err := n.repo.Create(ctx, m); err != nil {
		return errors.Wrap(err, "record sms")
	}
	n.lg.Info("sms logged",
		zap.String("order_id", orderID),
		zap.String("body", body),
	)
	return nil
}
