package worker

import (
	"context"
	"log"

	"maketheprint/internal/broker"
	"maketheprint/internal/models"
	"maketheprint/internal/service"
)

// NotificationWorker consumes OrderPaid events and re-drives the
// confirmation mailer. The mailer's sentinel claim makes this safe to
// run alongside the synchronous dispatch in the reconciler: whoever gets
// there first sends, everyone else no-ops.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, mailer *service.Mailer) *NotificationWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPaid(func(ctx context.Context, event *models.OrderPaidEvent) error {
		return mailer.SendOrderConfirmationEmails(ctx, event.OrderID)
	})

	return &NotificationWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	log.Println("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	log.Println("Stopping notification worker...")
	return w.consumer.Close()
}
