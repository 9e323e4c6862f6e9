package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"maketheprint/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

const testWebhookSecret = "whsec_test"

type stubReconStore struct {
	orders      map[string]*models.Order
	transitions int
	cleared     []string
	loseRace    bool
	markFails   int // MarkOrderPaid errors this many times before working
}

func newStubReconStore(orders ...*models.Order) *stubReconStore {
	s := &stubReconStore{orders: make(map[string]*models.Order)}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *stubReconStore) GetOrderForUser(ctx context.Context, orderID, userID string) (*models.Order, error) {
	order, ok := s.orders[orderID]
	if !ok || order.UserID != userID {
		return nil, models.ErrNotFound
	}
	snapshot := *order
	return &snapshot, nil
}

func (s *stubReconStore) MarkOrderPaid(ctx context.Context, orderID, userID, paymentIntentID string) (bool, error) {
	if s.markFails > 0 {
		s.markFails--
		return false, errors.New("connection reset")
	}
	if s.loseRace {
		return false, nil
	}
	order, ok := s.orders[orderID]
	if !ok || order.UserID != userID || order.PaymentStatus == models.PaymentStatusPaid {
		return false, nil
	}
	order.PaymentStatus = models.PaymentStatusPaid
	order.Status = models.OrderStatusConfirmed
	order.PaymentIntentID.String = paymentIntentID
	order.PaymentIntentID.Valid = true
	s.transitions++
	return true, nil
}

func (s *stubReconStore) ClearCart(ctx context.Context, userID string) error {
	s.cleared = append(s.cleared, userID)
	return nil
}

type stubMailer struct {
	sent []string
	err  error
}

func (m *stubMailer) SendOrderConfirmationEmails(ctx context.Context, orderID string) error {
	m.sent = append(m.sent, orderID)
	return m.err
}

type stubPaidPublisher struct {
	events []*models.OrderPaidEvent
}

func (p *stubPaidPublisher) PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	p.events = append(p.events, event)
	return nil
}

type stubDeduper struct {
	seen map[string]bool
	err  error
}

func (d *stubDeduper) SeenWebhookEvent(ctx context.Context, eventID string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	return d.seen[eventID], nil
}

func (d *stubDeduper) MarkWebhookEvent(ctx context.Context, eventID string) error {
	if d.err != nil {
		return d.err
	}
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	d.seen[eventID] = true
	return nil
}

func succeededIntent(id, userID, orderID string) *stripe.PaymentIntent {
	return &stripe.PaymentIntent{
		ID:       id,
		Status:   stripe.PaymentIntentStatusSucceeded,
		Metadata: map[string]string{"userId": userID, "orderId": orderID},
	}
}

func pendingOrder(id, userID string) *models.Order {
	return &models.Order{
		ID:            id,
		UserID:        userID,
		TotalAmount:   29.24,
		PaymentStatus: models.PaymentStatusPending,
		Status:        models.OrderStatusPending,
	}
}

func webhookPayload(eventID, intentID, userID, orderID string) []byte {
	intent := map[string]interface{}{
		"id":     intentID,
		"status": "succeeded",
		"metadata": map[string]string{
			"userId":  userID,
			"orderId": orderID,
		},
	}
	raw, _ := json.Marshal(intent)
	event := map[string]interface{}{
		"id":          eventID,
		"type":        "payment_intent.succeeded",
		"api_version": stripe.APIVersion,
		"data":        map[string]interface{}{"object": json.RawMessage(raw)},
	}
	payload, _ := json.Marshal(event)
	return payload
}

func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestConfirmOrderPaidTransitionsOnce(t *testing.T) {
	store := newStubReconStore(pendingOrder("o1", "u1"))
	intents := &stubIntentClient{byID: map[string]*stripe.PaymentIntent{
		"pi_1": succeededIntent("pi_1", "u1", "o1"),
	}}
	mailer := &stubMailer{}
	publisher := &stubPaidPublisher{}
	r := NewReconciler(store, store, intents, mailer, publisher, nil, testWebhookSecret)

	alreadyPaid, err := r.ConfirmOrderPaid(context.Background(), "u1", "o1", "pi_1")
	require.NoError(t, err)
	assert.False(t, alreadyPaid)
	assert.Equal(t, 1, store.transitions)
	assert.Equal(t, []string{"u1"}, store.cleared)
	assert.Equal(t, []string{"o1"}, mailer.sent)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, models.PaidSourceClient, publisher.events[0].Source)
	assert.Equal(t, "pi_1", publisher.events[0].PaymentIntentID)

	// Redelivered confirmation is success with no second set of effects.
	alreadyPaid, err = r.ConfirmOrderPaid(context.Background(), "u1", "o1", "pi_1")
	require.NoError(t, err)
	assert.True(t, alreadyPaid)
	assert.Equal(t, 1, store.transitions)
	assert.Len(t, mailer.sent, 1)
}

func TestConfirmOrderPaidLosingRaceIsAlreadyPaid(t *testing.T) {
	store := newStubReconStore(pendingOrder("o1", "u1"))
	store.loseRace = true
	intents := &stubIntentClient{byID: map[string]*stripe.PaymentIntent{
		"pi_1": succeededIntent("pi_1", "u1", "o1"),
	}}
	mailer := &stubMailer{}
	r := NewReconciler(store, store, intents, mailer, nil, nil, testWebhookSecret)

	alreadyPaid, err := r.ConfirmOrderPaid(context.Background(), "u1", "o1", "pi_1")
	require.NoError(t, err)
	assert.True(t, alreadyPaid)
	assert.Empty(t, mailer.sent)
}

func TestConfirmOrderPaidRejectsUnsucceededIntent(t *testing.T) {
	store := newStubReconStore(pendingOrder("o1", "u1"))
	intent := succeededIntent("pi_1", "u1", "o1")
	intent.Status = stripe.PaymentIntentStatusRequiresPaymentMethod
	intents := &stubIntentClient{byID: map[string]*stripe.PaymentIntent{"pi_1": intent}}
	r := NewReconciler(store, store, intents, &stubMailer{}, nil, nil, testWebhookSecret)

	_, err := r.ConfirmOrderPaid(context.Background(), "u1", "o1", "pi_1")
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Zero(t, store.transitions)
}

func TestConfirmOrderPaidRejectsMetadataMismatch(t *testing.T) {
	store := newStubReconStore(pendingOrder("o1", "u1"), pendingOrder("o2", "u1"))
	intents := &stubIntentClient{byID: map[string]*stripe.PaymentIntent{
		"pi_other": succeededIntent("pi_other", "u1", "o2"),
	}}
	r := NewReconciler(store, store, intents, &stubMailer{}, nil, nil, testWebhookSecret)

	// A succeeded intent for a different order must not pay this one.
	_, err := r.ConfirmOrderPaid(context.Background(), "u1", "o1", "pi_other")
	assert.ErrorIs(t, err, models.ErrForbidden)
	assert.Zero(t, store.transitions)
}

func TestConfirmOrderPaidUnknownOrder(t *testing.T) {
	store := newStubReconStore()
	intents := &stubIntentClient{byID: map[string]*stripe.PaymentIntent{
		"pi_1": succeededIntent("pi_1", "u1", "o1"),
	}}
	r := NewReconciler(store, store, intents, &stubMailer{}, nil, nil, testWebhookSecret)

	_, err := r.ConfirmOrderPaid(context.Background(), "u1", "o1", "pi_1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	store := newStubReconStore(pendingOrder("o1", "u1"))
	r := NewReconciler(store, store, &stubIntentClient{}, &stubMailer{}, nil, nil, testWebhookSecret)

	payload := webhookPayload("evt_1", "pi_1", "u1", "o1")

	err := r.HandleWebhook(context.Background(), payload, signPayload(payload, "whsec_wrong"))
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Zero(t, store.transitions)
}

func TestHandleWebhookMarksOrderPaid(t *testing.T) {
	store := newStubReconStore(pendingOrder("o1", "u1"))
	mailer := &stubMailer{}
	publisher := &stubPaidPublisher{}
	r := NewReconciler(store, store, &stubIntentClient{}, mailer, publisher, nil, testWebhookSecret)

	payload := webhookPayload("evt_1", "pi_1", "u1", "o1")

	err := r.HandleWebhook(context.Background(), payload, signPayload(payload, testWebhookSecret))
	require.NoError(t, err)

	assert.Equal(t, 1, store.transitions)
	assert.Equal(t, models.PaymentStatusPaid, store.orders["o1"].PaymentStatus)
	assert.Equal(t, []string{"o1"}, mailer.sent)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, models.PaidSourceWebhook, publisher.events[0].Source)
}

func TestHandleWebhookRedeliveryIsIdempotent(t *testing.T) {
	store := newStubReconStore(pendingOrder("o1", "u1"))
	mailer := &stubMailer{}
	r := NewReconciler(store, store, &stubIntentClient{}, mailer, nil, nil, testWebhookSecret)

	payload := webhookPayload("evt_1", "pi_1", "u1", "o1")
	header := signPayload(payload, testWebhookSecret)

	require.NoError(t, r.HandleWebhook(context.Background(), payload, header))
	require.NoError(t, r.HandleWebhook(context.Background(), payload, header))

	assert.Equal(t, 1, store.transitions)
	assert.Len(t, mailer.sent, 1)
}

func TestHandleWebhookDedupeShortCircuitsRedelivery(t *testing.T) {
	store := newStubReconStore(pendingOrder("o1", "u1"))
	dedupe := &stubDeduper{}
	r := NewReconciler(store, store, &stubIntentClient{}, &stubMailer{}, nil, dedupe, testWebhookSecret)

	payload := webhookPayload("evt_1", "pi_1", "u1", "o1")
	header := signPayload(payload, testWebhookSecret)

	require.NoError(t, r.HandleWebhook(context.Background(), payload, header))
	assert.True(t, dedupe.seen["evt_1"], "event marked only after handling succeeded")

	require.NoError(t, r.HandleWebhook(context.Background(), payload, header))
	assert.Equal(t, 1, store.transitions)
}

func TestHandleWebhookTransientFailureRetriesOnRedelivery(t *testing.T) {
	store := newStubReconStore(pendingOrder("o1", "u1"))
	store.markFails = 1
	dedupe := &stubDeduper{}
	r := NewReconciler(store, store, &stubIntentClient{}, &stubMailer{}, nil, dedupe, testWebhookSecret)

	payload := webhookPayload("evt_1", "pi_1", "u1", "o1")
	header := signPayload(payload, testWebhookSecret)

	// First delivery hits a transient database error; the event must not
	// be recorded as handled or Stripe's redelivery would be dropped.
	require.Error(t, r.HandleWebhook(context.Background(), payload, header))
	assert.False(t, dedupe.seen["evt_1"])
	assert.Equal(t, models.PaymentStatusPending, store.orders["o1"].PaymentStatus)

	// Stripe redelivers the same event id; this time it lands.
	require.NoError(t, r.HandleWebhook(context.Background(), payload, header))
	assert.Equal(t, 1, store.transitions)
	assert.Equal(t, models.PaymentStatusPaid, store.orders["o1"].PaymentStatus)
	assert.True(t, dedupe.seen["evt_1"])
}

func TestHandleWebhookDedupeOutageDoesNotBlock(t *testing.T) {
	store := newStubReconStore(pendingOrder("o1", "u1"))
	dedupe := &stubDeduper{err: errors.New("redis down")}
	r := NewReconciler(store, store, &stubIntentClient{}, &stubMailer{}, nil, dedupe, testWebhookSecret)

	payload := webhookPayload("evt_1", "pi_1", "u1", "o1")

	require.NoError(t, r.HandleWebhook(context.Background(), payload, signPayload(payload, testWebhookSecret)))
	assert.Equal(t, 1, store.transitions)
}

func TestHandleWebhookIgnoresOtherEventTypes(t *testing.T) {
	store := newStubReconStore(pendingOrder("o1", "u1"))
	r := NewReconciler(store, store, &stubIntentClient{}, &stubMailer{}, nil, nil, testWebhookSecret)

	event := map[string]interface{}{
		"id":          "evt_1",
		"type":        "payment_intent.created",
		"api_version": stripe.APIVersion,
		"data":        map[string]interface{}{"object": map[string]string{"id": "pi_1"}},
	}
	payload, _ := json.Marshal(event)

	err := r.HandleWebhook(context.Background(), payload, signPayload(payload, testWebhookSecret))
	require.NoError(t, err)
	assert.Zero(t, store.transitions)
}

func TestHandleWebhookRequiresMetadata(t *testing.T) {
	store := newStubReconStore(pendingOrder("o1", "u1"))
	r := NewReconciler(store, store, &stubIntentClient{}, &stubMailer{}, nil, nil, testWebhookSecret)

	payload := webhookPayload("evt_1", "pi_1", "", "")

	err := r.HandleWebhook(context.Background(), payload, signPayload(payload, testWebhookSecret))
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.Zero(t, store.transitions)
}

func TestHandleWebhookUnknownOrder(t *testing.T) {
	store := newStubReconStore()
	r := NewReconciler(store, store, &stubIntentClient{}, &stubMailer{}, nil, nil, testWebhookSecret)

	payload := webhookPayload("evt_1", "pi_1", "u1", "o1")

	err := r.HandleWebhook(context.Background(), payload, signPayload(payload, testWebhookSecret))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestWebhookAfterClientConfirmHasNoSecondEffects(t *testing.T) {
	store := newStubReconStore(pendingOrder("o1", "u1"))
	intents := &stubIntentClient{byID: map[string]*stripe.PaymentIntent{
		"pi_1": succeededIntent("pi_1", "u1", "o1"),
	}}
	mailer := &stubMailer{}
	r := NewReconciler(store, store, intents, mailer, nil, nil, testWebhookSecret)

	_, err := r.ConfirmOrderPaid(context.Background(), "u1", "o1", "pi_1")
	require.NoError(t, err)

	payload := webhookPayload("evt_1", "pi_1", "u1", "o1")
	require.NoError(t, r.HandleWebhook(context.Background(), payload, signPayload(payload, testWebhookSecret)))

	assert.Equal(t, 1, store.transitions)
	assert.Len(t, mailer.sent, 1)
	assert.Len(t, store.cleared, 1)
}

func TestTransitionMailFailureDoesNotFailReconciliation(t *testing.T) {
	store := newStubReconStore(pendingOrder("o1", "u1"))
	mailer := &stubMailer{err: errors.New("smtp down")}
	r := NewReconciler(store, store, &stubIntentClient{}, mailer, nil, nil, testWebhookSecret)

	payload := webhookPayload("evt_1", "pi_1", "u1", "o1")

	err := r.HandleWebhook(context.Background(), payload, signPayload(payload, testWebhookSecret))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, store.orders["o1"].PaymentStatus)
}
