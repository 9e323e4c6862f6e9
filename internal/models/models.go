package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Product types
const (
	ProductTypeCustom   = "custom"
	ProductTypeSeasonal = "seasonal"
)

// Product categories
const (
	CategoryPreset   = "preset"
	CategoryInquire  = "inquire"
	CategoryFinished = "finished"
)

// Product represents a catalog product. CustomConfig is resolved from the
// raw jsonb column once, at the store boundary, into a category-specific
// config value (see config.go).
type Product struct {
	ID              string         `db:"id" json:"id"`
	Name            string         `db:"name" json:"name"`
	NameLocalized   NullString     `db:"name_localized" json:"name_localized,omitempty"`
	Description     string         `db:"description" json:"description"`
	Price           float64        `db:"price" json:"price"`
	Images          pq.StringArray `db:"images" json:"images"`
	ProductType     string         `db:"product_type" json:"product_type"`
	Category        string         `db:"category" json:"category"`
	RawCustomConfig []byte         `db:"custom_config" json:"-"`
	Featured        bool           `db:"featured" json:"featured"`
	Seasonal        bool           `db:"seasonal" json:"seasonal"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`

	CustomConfig ProductConfig `db:"-" json:"custom_config,omitempty"`
}

// Customizations is the structured snapshot a customer's preset-product
// selections are frozen into when a cart line is created. For preset
// products TotalPrice, not the product's base price, is the authoritative
// unit price.
type Customizations struct {
	Text           string  `json:"text"`
	Font           string  `json:"font"`
	Color          string  `json:"color"`
	Size           string  `json:"size"`
	CharacterCount int     `json:"characterCount"`
	TotalPrice     float64 `json:"totalPrice"`
	Outdoor        bool    `json:"outdoor"`
	LEDStrip       bool    `json:"ledStrip"`
	ColorAddon     bool    `json:"colorAddon"`
}

func (c *Customizations) Scan(src interface{}) error {
	return scanJSON(c, src)
}

func (c Customizations) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// NullCustomizations handles the nullable jsonb column on cart and order
// items: non-preset lines carry no customizations at all.
type NullCustomizations struct {
	Customizations Customizations
	Valid          bool
}

func (n *NullCustomizations) Scan(src interface{}) error {
	if src == nil {
		n.Valid = false
		return nil
	}
	if err := scanJSON(&n.Customizations, src); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

func (n NullCustomizations) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return json.Marshal(n.Customizations)
}

func (n NullCustomizations) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Customizations)
}

func (n *NullCustomizations) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		n.Valid = false
		return nil
	}
	if err := json.Unmarshal(data, &n.Customizations); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// NullString wraps sql.NullString so nullable text columns serialize as
// a plain string or JSON null instead of the {String, Valid} pair.
type NullString struct {
	sql.NullString
}

func (n NullString) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.String)
}

func (n *NullString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		n.String = ""
		n.Valid = false
		return nil
	}
	if err := json.Unmarshal(data, &n.String); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// CartItem is a stored cart line. ProductName and ProductPrice are joined
// in from the products table on read so that totals can be recomputed from
// scratch on every request.
type CartItem struct {
	ID             string             `db:"id" json:"id"`
	UserID         string             `db:"user_id" json:"-"`
	ProductID      string             `db:"product_id" json:"product_id"`
	Quantity       int                `db:"quantity" json:"quantity"`
	Material       NullString         `db:"material" json:"material,omitempty"`
	Customizations NullCustomizations `db:"customizations" json:"customizations,omitempty"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`

	ProductName  string  `db:"product_name" json:"product_name"`
	ProductPrice float64 `db:"product_price" json:"product_price"`
}

// UnitPrice returns the authoritative per-unit price for the line: the
// customization snapshot total for preset products, the product base
// price otherwise.
func (ci *CartItem) UnitPrice() float64 {
	if ci.Customizations.Valid {
		return ci.Customizations.Customizations.TotalPrice
	}
	return ci.ProductPrice
}

// Address is stored as jsonb on orders and embeds the buyer's email, which
// the confirmation mailer extracts.
type Address struct {
	FullName   string `json:"fullName"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

func (a *Address) Scan(src interface{}) error {
	return scanJSON(a, src)
}

func (a Address) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// IsEmpty reports whether the address is missing the fields an order
// cannot be placed without.
func (a Address) IsEmpty() bool {
	return a.Email == "" || a.Line1 == "" || a.City == "" || a.PostalCode == ""
}

// Payment statuses
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
)

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
)

// Order is created in pending/pending by order intake and moves to
// paid/confirmed exactly once through the payment reconciler.
// ConfirmationEmailSentAt is the sentinel that grants a single caller the
// right to send the confirmation emails.
type Order struct {
	ID                      string         `db:"id" json:"id"`
	UserID                  string         `db:"user_id" json:"user_id"`
	TotalAmount             float64        `db:"total_amount" json:"total_amount"`
	ShippingAddress         Address        `db:"shipping_address" json:"shipping_address"`
	BillingAddress          Address        `db:"billing_address" json:"billing_address"`
	PaymentStatus           string         `db:"payment_status" json:"payment_status"`
	Status                  string         `db:"status" json:"status"`
	PaymentIntentID         NullString     `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	TrackingNumber          NullString     `db:"tracking_number" json:"tracking_number,omitempty"`
	ConfirmationEmailSentAt sql.NullTime   `db:"confirmation_email_sent_at" json:"-"`
	CreatedAt               time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time      `db:"updated_at" json:"updated_at"`
}

// OrderItem snapshots a cart line at order time. Price is captured then,
// never re-derived from the product later.
type OrderItem struct {
	ID             string             `db:"id" json:"id"`
	OrderID        string             `db:"order_id" json:"order_id"`
	ProductID      string             `db:"product_id" json:"product_id"`
	Quantity       int                `db:"quantity" json:"quantity"`
	Price          float64            `db:"price" json:"price"`
	Material       NullString         `db:"material" json:"material,omitempty"`
	Customizations NullCustomizations `db:"customizations" json:"customizations,omitempty"`

	ProductName string `db:"product_name" json:"product_name"`
}

func scanJSON(dst interface{}, src interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("cannot scan %T into %T", src, dst)
	}
}
