package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"maketheprint/internal/models"
	"maketheprint/internal/util"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// EmailClient abstracts the transactional email provider.
type EmailClient interface {
	Send(ctx context.Context, from string, to []string, subject, html string) error
}

// ResendClient is the production EmailClient backed by the Resend SDK.
type ResendClient struct {
	client *resend.Client
}

// NewResendClient creates a Resend-backed email client.
func NewResendClient(apiKey string) *ResendClient {
	return &ResendClient{client: resend.NewClient(apiKey)}
}

func (c *ResendClient) Send(ctx context.Context, from string, to []string, subject, html string) error {
	_, err := c.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    from,
		To:      to,
		Subject: subject,
		Html:    html,
	})
	return err
}

type mailerStore interface {
	ClaimConfirmationEmail(ctx context.Context, orderID string) (bool, error)
	GetOrderWithItems(ctx context.Context, orderID string) (*models.Order, []models.OrderItem, error)
}

// Mailer sends the two order confirmation emails: the buyer's invoice
// and the store-owner notification. The sentinel claim on the order row
// guarantees the emails go out at most once no matter how many triggers
// (client confirm, webhook, worker redelivery) fire.
type Mailer struct {
	store        mailerStore
	email        EmailClient
	fromAddress  string
	storeAddress string
	logger       *zap.Logger
}

// NewMailer creates a new confirmation mailer.
func NewMailer(store mailerStore, email EmailClient, fromAddress, storeAddress string) *Mailer {
	return &Mailer{
		store:        store,
		email:        email,
		fromAddress:  fromAddress,
		storeAddress: storeAddress,
		logger:       util.NamedLogger("mailer"),
	}
}

// SendOrderConfirmationEmails claims the order's email sentinel and, on
// winning it, renders and sends both emails. Losing the claim is
// success: another caller owns the send. A buyer-email failure fails the
// operation; the store notification is best-effort.
func (m *Mailer) SendOrderConfirmationEmails(ctx context.Context, orderID string) error {
	ctx, span := util.StartSpan(ctx, "Mailer.SendOrderConfirmationEmails")
	defer span.End()

	claimed, err := m.store.ClaimConfirmationEmail(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to claim confirmation email: %w", err)
	}
	if !claimed {
		m.logger.Info("Confirmation emails already claimed", zap.String("order_id", orderID))
		return nil
	}

	order, items, err := m.store.GetOrderWithItems(ctx, orderID)
	if err != nil {
		return fmt.Errorf("failed to load order for email: %w", err)
	}

	data := emailData{Order: order, Items: items}

	buyerHTML, err := renderTemplate(buyerInvoiceTmpl, data)
	if err != nil {
		return fmt.Errorf("failed to render invoice: %w", err)
	}
	subject := fmt.Sprintf("Your Make The Print order %s is confirmed", shortID(order.ID))
	if err := m.email.Send(ctx, m.fromAddress, []string{order.ShippingAddress.Email}, subject, buyerHTML); err != nil {
		util.ConfirmationEmailFailures.WithLabelValues("buyer").Inc()
		return fmt.Errorf("failed to send buyer confirmation: %w", err)
	}
	util.ConfirmationEmailsTotal.WithLabelValues("buyer").Inc()

	ownerHTML, err := renderTemplate(ownerNoticeTmpl, data)
	if err == nil {
		ownerSubject := fmt.Sprintf("New order %s (%.2f)", shortID(order.ID), order.TotalAmount)
		err = m.email.Send(ctx, m.fromAddress, []string{m.storeAddress}, ownerSubject, ownerHTML)
	}
	if err != nil {
		// Buyer already has their invoice; the owner notice failing must
		// not fail the whole dispatch.
		util.ConfirmationEmailFailures.WithLabelValues("owner").Inc()
		m.logger.Error("Failed to send store notification",
			zap.String("order_id", orderID), zap.Error(err))
	} else {
		util.ConfirmationEmailsTotal.WithLabelValues("owner").Inc()
	}

	m.logger.Info("Confirmation emails dispatched", zap.String("order_id", orderID))
	return nil
}

type emailData struct {
	Order *models.Order
	Items []models.OrderItem
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func renderTemplate(tmpl *template.Template, data emailData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var buyerInvoiceTmpl = template.Must(template.New("buyer").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>Thanks for your order, {{.Order.ShippingAddress.FullName}}!</h2>
  <p>Your payment was received and your order is confirmed.</p>
  <table cellpadding="6" style="border-collapse: collapse; width: 100%;">
    <tr style="border-bottom: 1px solid #ccc; text-align: left;">
      <th>Item</th><th>Qty</th><th>Price</th>
    </tr>
    {{range .Items}}
    <tr style="border-bottom: 1px solid #eee;">
      <td>{{.ProductName}}{{if .Customizations.Valid}}<br><small>&quot;{{.Customizations.Customizations.Text}}&quot; &middot; {{.Customizations.Customizations.Size}} &middot; {{.Customizations.Customizations.Font}}</small>{{end}}</td>
      <td>{{.Quantity}}</td>
      <td>{{printf "%.2f" .Price}}</td>
    </tr>
    {{end}}
  </table>
  <p><strong>Total: {{printf "%.2f" .Order.TotalAmount}}</strong></p>
  <p>We will let you know as soon as your order ships.</p>
</body>
</html>`))

var ownerNoticeTmpl = template.Must(template.New("owner").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222;">
  <h2>New paid order {{.Order.ID}}</h2>
  <table cellpadding="6" style="border-collapse: collapse;">
    <tr style="text-align: left;"><th>Item</th><th>Qty</th><th>Price</th><th>Customization</th></tr>
    {{range .Items}}
    <tr>
      <td>{{.ProductName}}</td>
      <td>{{.Quantity}}</td>
      <td>{{printf "%.2f" .Price}}</td>
      <td>{{if .Customizations.Valid}}&quot;{{.Customizations.Customizations.Text}}&quot; {{.Customizations.Customizations.Size}} {{.Customizations.Customizations.Font}} {{.Customizations.Customizations.Color}}{{end}}</td>
    </tr>
    {{end}}
  </table>
  <p><strong>Total: {{printf "%.2f" .Order.TotalAmount}}</strong></p>
  <h3>Ship to</h3>
  <p>
    {{.Order.ShippingAddress.FullName}}<br>
    {{.Order.ShippingAddress.Line1}}{{if .Order.ShippingAddress.Line2}}<br>{{.Order.ShippingAddress.Line2}}{{end}}<br>
    {{.Order.ShippingAddress.City}} {{.Order.ShippingAddress.PostalCode}}<br>
    {{.Order.ShippingAddress.Country}}<br>
    {{.Order.ShippingAddress.Email}}{{if .Order.ShippingAddress.Phone}} &middot; {{.Order.ShippingAddress.Phone}}{{end}}
  </p>
</body>
</html>`))
