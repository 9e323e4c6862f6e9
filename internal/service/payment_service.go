package service

import (
	"context"
	"fmt"
	"math"

	"maketheprint/internal/models"
	"maketheprint/internal/util"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"go.uber.org/zap"
)

// IntentClient abstracts the payment processor's intent API.
type IntentClient interface {
	Create(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*stripe.PaymentIntent, error)
	Get(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

// StripeIntentClient is the production IntentClient backed by the Stripe
// SDK. stripe.Key is set once at startup.
type StripeIntentClient struct{}

func (StripeIntentClient) Create(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	return paymentintent.New(params)
}

func (StripeIntentClient) Get(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	return paymentintent.Get(id, params)
}

type paymentStore interface {
	GetOrderForUser(ctx context.Context, orderID, userID string) (*models.Order, error)
}

// PaymentService binds a payment intent 1:1 to a pending order's stored
// total. The charged amount comes from the order row written at intake
// time; nothing the client submits can change it.
type PaymentService struct {
	store           paymentStore
	intents         IntentClient
	defaultCurrency string
	logger          *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(store paymentStore, intents IntentClient, defaultCurrency string) *PaymentService {
	return &PaymentService{
		store:           store,
		intents:         intents,
		defaultCurrency: defaultCurrency,
		logger:          util.NamedLogger("payments"),
	}
}

// CreatePaymentIntentResponse carries what the payment UI needs.
type CreatePaymentIntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
}

// CreatePaymentIntent creates a processor-side charge intent for a
// pending order the caller owns. The {userId, orderId} metadata written
// here is the only correlation between the processor's charge and the
// local order, and is re-verified on every later read.
func (ps *PaymentService) CreatePaymentIntent(ctx context.Context, userID, orderID, currency string) (*CreatePaymentIntentResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CreatePaymentIntent")
	defer span.End()

	order, err := ps.store.GetOrderForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == models.PaymentStatusPaid {
		return nil, fmt.Errorf("order already paid: %w", models.ErrValidation)
	}
	if order.TotalAmount <= 0 {
		return nil, fmt.Errorf("order total must be positive: %w", models.ErrValidation)
	}

	if currency == "" {
		currency = ps.defaultCurrency
	}

	intent, err := ps.intents.Create(ctx, DollarsToCents(order.TotalAmount), currency, map[string]string{
		"userId":  userID,
		"orderId": orderID,
	})
	if err != nil {
		util.PaymentIntentsFailedTotal.Inc()
		ps.logger.Error("Failed to create payment intent",
			zap.String("order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	util.PaymentIntentsCreatedTotal.Inc()
	ps.logger.Info("Payment intent created",
		zap.String("order_id", orderID),
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("amount_cents", intent.Amount))

	return &CreatePaymentIntentResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
	}, nil
}

// DollarsToCents converts a stored order total to the processor's
// integer minor units.
func DollarsToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
