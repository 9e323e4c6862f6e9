package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCustomConfigPreset(t *testing.T) {
	raw := []byte(`{
		"sizePrices": [{"label": "10cm", "pricePerLetter": 1.0}, {"label": "20cm", "pricePerLetter": 1.5}],
		"colors": ["black", "gold"],
		"outdoor": {"enabled": true, "price": 10},
		"ledStrip": {"enabled": false, "price": 25}
	}`)

	cfg := ResolveCustomConfig(CategoryPreset, raw)
	preset, ok := cfg.(*PresetConfig)
	require.True(t, ok)

	assert.Len(t, preset.SizePrices, 2)
	assert.Equal(t, "20cm", preset.SizePrices[1].Label)
	assert.True(t, preset.Outdoor.Enabled)
	assert.False(t, preset.LEDStrip.Enabled)
	assert.Equal(t, 25.0, preset.LEDStrip.Price)
}

func TestResolveCustomConfigInquire(t *testing.T) {
	raw := []byte(`{"whatsappNumber": "+15550100", "whatsappMessage": "Hi, I want {product_name}"}`)

	cfg := ResolveCustomConfig(CategoryInquire, raw)
	inquire, ok := cfg.(*InquireConfig)
	require.True(t, ok)
	assert.Equal(t, "+15550100", inquire.WhatsAppNumber)
}

func TestResolveCustomConfigDegradesToNil(t *testing.T) {
	assert.Nil(t, ResolveCustomConfig(CategoryPreset, []byte(`not json`)))
	assert.Nil(t, ResolveCustomConfig(CategoryPreset, nil))
	assert.Nil(t, ResolveCustomConfig(CategoryFinished, []byte(`{"anything": true}`)))
	assert.Nil(t, ResolveCustomConfig("unknown", []byte(`{}`)))
}

func TestRenderWhatsAppMessage(t *testing.T) {
	cfg := InquireConfig{WhatsAppMessage: "Hi, I am interested in {product_name}. Is it available?"}

	assert.Equal(t,
		"Hi, I am interested in Neon Sign. Is it available?",
		cfg.RenderWhatsAppMessage("Neon Sign"))

	plain := InquireConfig{WhatsAppMessage: "Hello there"}
	assert.Equal(t, "Hello there", plain.RenderWhatsAppMessage("Neon Sign"))
}

func TestPresetConfigOf(t *testing.T) {
	p := &Product{Category: CategoryPreset}
	p.CustomConfig = &PresetConfig{PricePerLetter: 2}

	cfg, ok := PresetConfigOf(p)
	require.True(t, ok)
	assert.Equal(t, 2.0, cfg.PricePerLetter)

	_, ok = PresetConfigOf(&Product{Category: CategoryFinished})
	assert.False(t, ok)
}

func TestCartItemUnitPrice(t *testing.T) {
	plain := CartItem{ProductPrice: 35}
	assert.Equal(t, 35.0, plain.UnitPrice())

	custom := CartItem{
		ProductPrice: 0,
		Customizations: NullCustomizations{
			Customizations: Customizations{TotalPrice: 17.5},
			Valid:          true,
		},
	}
	assert.Equal(t, 17.5, custom.UnitPrice())
}

func TestNullCustomizationsJSONRoundTrip(t *testing.T) {
	var n NullCustomizations
	require.NoError(t, n.UnmarshalJSON([]byte(`null`)))
	assert.False(t, n.Valid)

	require.NoError(t, n.UnmarshalJSON([]byte(`{"text":"HI","totalPrice":3.5}`)))
	require.True(t, n.Valid)
	assert.Equal(t, "HI", n.Customizations.Text)

	out, err := n.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"text":"HI"`)
}

func TestNullStringSerializesFlat(t *testing.T) {
	order := Order{ID: "o1", PaymentStatus: PaymentStatusPaid}
	order.PaymentIntentID.String = "pi_123"
	order.PaymentIntentID.Valid = true

	out, err := json.Marshal(order)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"payment_intent_id":"pi_123"`)
	assert.NotContains(t, string(out), `"Valid"`)
	assert.Contains(t, string(out), `"tracking_number":null`)

	var n NullString
	require.NoError(t, json.Unmarshal([]byte(`"abc"`), &n))
	assert.True(t, n.Valid)
	assert.Equal(t, "abc", n.String)

	require.NoError(t, json.Unmarshal([]byte(`null`), &n))
	assert.False(t, n.Valid)
}

func TestAddressIsEmpty(t *testing.T) {
	assert.True(t, Address{}.IsEmpty())
	assert.True(t, Address{Email: "a@b.c", Line1: "x", City: "y"}.IsEmpty())
	assert.False(t, Address{Email: "a@b.c", Line1: "x", City: "y", PostalCode: "12345"}.IsEmpty())
}
