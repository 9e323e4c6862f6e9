package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"maketheprint/internal/models"
	"maketheprint/internal/util"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
)

type reconcilerStore interface {
	GetOrderForUser(ctx context.Context, orderID, userID string) (*models.Order, error)
	MarkOrderPaid(ctx context.Context, orderID, userID, paymentIntentID string) (bool, error)
	ClearCart(ctx context.Context, userID string) error
}

type intentRetriever interface {
	Get(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

type confirmationMailer interface {
	SendOrderConfirmationEmails(ctx context.Context, orderID string) error
}

type paidEventPublisher interface {
	PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
}

type webhookDeduper interface {
	SeenWebhookEvent(ctx context.Context, eventID string) (bool, error)
	MarkWebhookEvent(ctx context.Context, eventID string) error
}

// Reconciler drives the single pending→paid transition from its two
// independent triggers: the authenticated client confirmation call and
// the Stripe webhook. Both funnel into the same conditional database
// update, so any interleaving or redelivery converges on one final state
// and at most one set of side effects.
type Reconciler struct {
	sessions      reconcilerStore // session-scoped handle, client path
	admin         reconcilerStore // privileged handle, webhook path
	intents       intentRetriever
	mailer        confirmationMailer
	publisher     paidEventPublisher
	dedupe        webhookDeduper
	webhookSecret string
	logger        *zap.Logger
}

// NewReconciler creates a new payment reconciler. dedupe and publisher
// may be nil; the database guard alone is sufficient for correctness.
func NewReconciler(
	sessions reconcilerStore,
	admin reconcilerStore,
	intents intentRetriever,
	mailer confirmationMailer,
	publisher paidEventPublisher,
	dedupe webhookDeduper,
	webhookSecret string,
) *Reconciler {
	return &Reconciler{
		sessions:      sessions,
		admin:         admin,
		intents:       intents,
		mailer:        mailer,
		publisher:     publisher,
		dedupe:        dedupe,
		webhookSecret: webhookSecret,
		logger:        util.NamedLogger("reconciler"),
	}
}

// ConfirmOrderPaid is the client-confirm path. The client's claim that
// the charge succeeded is never trusted: the intent is re-fetched from
// Stripe and its status and metadata binding are verified before the
// transition. Returns alreadyPaid=true when the order was paid before
// this call (or another trigger won the race), which is success, not an
// error.
func (r *Reconciler) ConfirmOrderPaid(ctx context.Context, userID, orderID, paymentIntentID string) (alreadyPaid bool, err error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.ConfirmOrderPaid")
	defer span.End()

	intent, err := r.intents.Get(ctx, paymentIntentID)
	if err != nil {
		return false, fmt.Errorf("failed to retrieve payment intent: %w", err)
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return false, fmt.Errorf("payment intent not succeeded (%s): %w", intent.Status, models.ErrValidation)
	}
	if intent.Metadata["userId"] != userID || intent.Metadata["orderId"] != orderID {
		r.logger.Warn("Payment intent metadata mismatch",
			zap.String("order_id", orderID),
			zap.String("payment_intent_id", paymentIntentID))
		return false, fmt.Errorf("payment intent does not belong to this order: %w", models.ErrForbidden)
	}

	order, err := r.sessions.GetOrderForUser(ctx, orderID, userID)
	if err != nil {
		return false, err
	}
	if order.PaymentStatus == models.PaymentStatusPaid {
		return true, nil
	}

	won, err := r.transition(ctx, r.sessions, order, paymentIntentID, models.PaidSourceClient)
	if err != nil {
		return false, err
	}
	return !won, nil
}

// HandleWebhook is the asynchronous path. Errors map to non-2xx
// responses, which makes Stripe redeliver; everything behind the
// signature check is therefore built to tolerate arbitrary redelivery.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	ctx, span := util.StartSpan(ctx, "Reconciler.HandleWebhook")
	defer span.End()

	event, err := webhook.ConstructEvent(payload, signatureHeader, r.webhookSecret)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("bad_signature").Inc()
		r.logger.Warn("Webhook signature verification failed", zap.Error(err))
		return fmt.Errorf("webhook signature verification failed: %w", models.ErrValidation)
	}

	if string(event.Type) != "payment_intent.succeeded" {
		util.WebhookEventsTotal.WithLabelValues("ignored").Inc()
		return nil
	}

	if r.dedupe != nil {
		seen, err := r.dedupe.SeenWebhookEvent(ctx, event.ID)
		if err != nil {
			// Redis being down must not block reconciliation; the DB
			// conditional update stays authoritative.
			r.logger.Warn("Webhook dedupe check failed", zap.Error(err))
		} else if seen {
			util.WebhookEventsTotal.WithLabelValues("duplicate").Inc()
			return nil
		}
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		util.WebhookEventsTotal.WithLabelValues("malformed").Inc()
		return fmt.Errorf("malformed payment intent payload: %w", models.ErrValidation)
	}

	orderID := intent.Metadata["orderId"]
	userID := intent.Metadata["userId"]
	if orderID == "" || userID == "" {
		util.WebhookEventsTotal.WithLabelValues("missing_metadata").Inc()
		return fmt.Errorf("payment intent metadata missing orderId or userId: %w", models.ErrValidation)
	}

	order, err := r.admin.GetOrderForUser(ctx, orderID, userID)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("order_not_found").Inc()
		return err
	}
	if order.PaymentStatus == models.PaymentStatusPaid {
		util.WebhookEventsTotal.WithLabelValues("already_paid").Inc()
		r.markWebhookHandled(ctx, event.ID)
		return nil
	}

	if _, err := r.transition(ctx, r.admin, order, intent.ID, models.PaidSourceWebhook); err != nil {
		util.WebhookEventsTotal.WithLabelValues("error").Inc()
		return err
	}

	util.WebhookEventsTotal.WithLabelValues("processed").Inc()
	r.markWebhookHandled(ctx, event.ID)
	return nil
}

// markWebhookHandled records the event id only after handling succeeded.
// An event that errored stays unmarked, so Stripe's redelivery of the
// same id runs the transition again instead of being dropped as a
// duplicate.
func (r *Reconciler) markWebhookHandled(ctx context.Context, eventID string) {
	if r.dedupe == nil {
		return
	}
	if err := r.dedupe.MarkWebhookEvent(ctx, eventID); err != nil {
		r.logger.Warn("Webhook dedupe mark failed", zap.String("event_id", eventID), zap.Error(err))
	}
}

// transition runs the conditional paid update through the given handle
// and, only when this caller won it, fires the side effects. The mailer
// carries its own idempotency claim, so losing here simply means nothing
// is left to do.
func (r *Reconciler) transition(ctx context.Context, h reconcilerStore, order *models.Order, paymentIntentID, source string) (bool, error) {
	won, err := h.MarkOrderPaid(ctx, order.ID, order.UserID, paymentIntentID)
	if err != nil {
		return false, fmt.Errorf("failed to mark order paid: %w", err)
	}
	if !won {
		r.logger.Info("Paid transition already applied",
			zap.String("order_id", order.ID), zap.String("source", source))
		return false, nil
	}

	util.OrdersPaidTotal.WithLabelValues(source).Inc()
	r.logger.Info("Order paid",
		zap.String("order_id", order.ID),
		zap.String("payment_intent_id", paymentIntentID),
		zap.String("source", source))

	if err := h.ClearCart(ctx, order.UserID); err != nil {
		r.logger.Error("Failed to clear cart after payment",
			zap.String("order_id", order.ID), zap.Error(err))
	}

	if r.publisher != nil {
		event := &models.OrderPaidEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderPaid,
				Timestamp: time.Now(),
			},
			OrderID:         order.ID,
			UserID:          order.UserID,
			TotalAmount:     order.TotalAmount,
			PaymentIntentID: paymentIntentID,
			Source:          source,
		}
		if err := r.publisher.PublishOrderPaid(ctx, event); err != nil {
			r.logger.Error("Failed to publish OrderPaid event", zap.Error(err))
		}
	}

	if r.mailer != nil {
		if err := r.mailer.SendOrderConfirmationEmails(ctx, order.ID); err != nil {
			// The order is paid regardless; the mail failure is logged,
			// not surfaced as a failed confirmation.
			r.logger.Error("Failed to send confirmation emails",
				zap.String("order_id", order.ID), zap.Error(err))
		}
	}

	return true, nil
}
