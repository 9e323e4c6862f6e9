// Package pricing computes prices for configurable wall-lettering
// products. It is pure: no I/O, no errors. Malformed or missing config
// degrades to a zero price and empty option lists, and callers must
// refuse to check out a zero-priced line.
package pricing

import (
	"strings"
	"unicode/utf8"

	"maketheprint/internal/models"
)

// Selection is the customer's choice for a preset product.
type Selection struct {
	Text       string
	Size       string
	Outdoor    bool
	LEDStrip   bool
	ColorAddon bool
}

// SizePriceFor looks up the per-character price for a size label. The
// match is case-insensitive and ignores surrounding whitespace. An
// unmatched label yields 0.
func SizePriceFor(sizePrices []models.SizePrice, label string) float64 {
	want := strings.ToLower(strings.TrimSpace(label))
	for _, sp := range sizePrices {
		if strings.ToLower(strings.TrimSpace(sp.Label)) == want {
			return sp.PricePerLetter
		}
	}
	return 0
}

// SizeLabels returns the offered size labels in admin-defined order,
// dropping empty entries.
func SizeLabels(sizePrices []models.SizePrice) []string {
	labels := make([]string, 0, len(sizePrices))
	for _, sp := range sizePrices {
		if strings.TrimSpace(sp.Label) == "" {
			continue
		}
		labels = append(labels, sp.Label)
	}
	return labels
}

// CharacterCount counts the characters the customer pays for.
func CharacterCount(text string) int {
	return utf8.RuneCountInString(text)
}

// Total computes the full price for a selection:
// characters × per-character price for the chosen size, plus the flat
// price of each enabled add-on. An add-on the admin has not enabled
// contributes nothing even when its price field holds a value.
func Total(cfg *models.PresetConfig, sel Selection) float64 {
	if cfg == nil {
		return 0
	}

	perChar := cfg.PricePerLetter
	if len(cfg.SizePrices) > 0 {
		perChar = SizePriceFor(cfg.SizePrices, sel.Size)
	}

	total := float64(CharacterCount(sel.Text)) * perChar

	if sel.Outdoor && cfg.Outdoor.Enabled {
		total += cfg.Outdoor.Price
	}
	if sel.LEDStrip && cfg.LEDStrip.Enabled {
		total += cfg.LEDStrip.Price
	}
	if sel.ColorAddon && cfg.ColorAddon.Enabled {
		total += cfg.ColorAddon.Price
	}

	return total
}
