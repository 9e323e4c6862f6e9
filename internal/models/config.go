package models

import (
	"encoding/json"
	"strings"
)

// ProductConfig is the resolved form of the polymorphic custom_config
// column: a preset product carries pricing rules, an inquire product
// carries contact-channel data, a finished product carries nothing.
type ProductConfig interface {
	isProductConfig()
}

// SizePrice pairs a size label with its per-character price.
type SizePrice struct {
	Label          string  `json:"label"`
	PricePerLetter float64 `json:"pricePerLetter"`
}

// AddonOption is one of the three independently togglable flat-price
// add-ons. A disabled add-on must not be offered to the customer at all.
type AddonOption struct {
	Enabled bool    `json:"enabled"`
	Price   float64 `json:"price"`
}

// PresetConfig holds the admin-defined pricing rules for a configurable
// product: per-size per-character prices, available colors and fonts, and
// the outdoor / LED-strip / color add-ons.
type PresetConfig struct {
	SizePrices     []SizePrice `json:"sizePrices"`
	PricePerLetter float64     `json:"pricePerLetter"`
	Colors         []string    `json:"colors"`
	Fonts          []string    `json:"fonts"`
	DefaultFont    string      `json:"defaultFont"`
	Outdoor        AddonOption `json:"outdoor"`
	LEDStrip       AddonOption `json:"ledStrip"`
	ColorAddon     AddonOption `json:"colorAddon"`
}

func (PresetConfig) isProductConfig() {}

// InquireConfig is the contact-channel variant: no online checkout, the
// customer is sent to WhatsApp instead.
type InquireConfig struct {
	WhatsAppNumber  string `json:"whatsappNumber"`
	WhatsAppMessage string `json:"whatsappMessage"`
}

func (InquireConfig) isProductConfig() {}

// RenderWhatsAppMessage substitutes the {product_name} placeholder in the
// configured message template.
func (c InquireConfig) RenderWhatsAppMessage(productName string) string {
	return strings.ReplaceAll(c.WhatsAppMessage, "{product_name}", productName)
}

// ResolveCustomConfig decodes the raw custom_config column into the
// variant the category dictates. Malformed or missing config degrades to
// nil rather than failing: a product with a broken config prices at zero,
// which callers guard against at checkout.
func ResolveCustomConfig(category string, raw []byte) ProductConfig {
	if len(raw) == 0 {
		return nil
	}
	switch category {
	case CategoryPreset:
		var cfg PresetConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil
		}
		return &cfg
	case CategoryInquire:
		var cfg InquireConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil
		}
		return &cfg
	default:
		return nil
	}
}

// PresetConfigOf returns the preset pricing rules for a product, or false
// when the product is not a preset product (or its config failed to
// resolve).
func PresetConfigOf(p *Product) (*PresetConfig, bool) {
	cfg, ok := p.CustomConfig.(*PresetConfig)
	return cfg, ok
}

// InquireConfigOf returns the inquire contact data for a product, or
// false when absent.
func InquireConfigOf(p *Product) (*InquireConfig, bool) {
	cfg, ok := p.CustomConfig.(*InquireConfig)
	return cfg, ok
}
