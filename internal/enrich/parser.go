// Package enrich turns raw dictation text into structured, AI-enriched
// suggestions for the kitchen's records.
//
// The pipeline has three stages: deterministic parsing (ingredient name,
// quantity, unit, price), a language detection heuristic, and AI enrichment
// (dietary tags, translations, menu images) behind circuit-breaker-protected
// fallback groups. A conservative apply policy decides whether a result is
// written directly or queued for review.
package enrich

import (
	"errors"
	"strconv"
	"strings"
)

// ErrNoName is returned by [ParseIngredient] when no ingredient name remains
// after numbers, units, and currency tokens are consumed.
var ErrNoName = errors.New("enrich: no ingredient name in text")

// ParsedIngredient is the structured form of a dictated ingredient phrase.
type ParsedIngredient struct {
	// Name is the ingredient name, joined from the non-numeric tokens.
	Name string

	// Quantity is the dictated amount. Zero when absent.
	Quantity float64

	// Unit is the normalised unit (kg, g, l, ml, piece, bunch). Empty when
	// absent.
	Unit string

	// Price is the dictated price. Zero when absent.
	Price float64

	// Currency is the ISO code of the dictated currency (EUR, USD, CHF,
	// GBP). Empty when absent.
	Currency string
}

// unitAliases maps dictated unit spellings to their normalised form.
var unitAliases = map[string]string{
	"kg": "kg", "kilo": "kg", "kilos": "kg", "kilogramm": "kg", "kilogram": "kg", "kilograms": "kg",
	"g": "g", "gramm": "g", "gram": "g", "grams": "g",
	"l": "l", "liter": "l", "litre": "l", "liters": "l", "litres": "l",
	"ml": "ml", "milliliter": "ml",
	"stück": "piece", "stueck": "piece", "stk": "piece", "piece": "piece", "pieces": "piece",
	"bund": "bunch", "bunch": "bunch", "bunches": "bunch",
}

// currencyAliases maps dictated currency spellings to ISO codes.
var currencyAliases = map[string]string{
	"euro": "EUR", "euros": "EUR", "eur": "EUR", "€": "EUR",
	"dollar": "USD", "dollars": "USD", "usd": "USD", "$": "USD",
	"franken": "CHF", "chf": "CHF",
	"pfund": "GBP", "pound": "GBP", "pounds": "GBP", "gbp": "GBP", "£": "GBP",
}

// numberWords covers the small German and English number words that show up
// in kitchen dictation.
var numberWords = map[string]float64{
	"null": 0, "ein": 1, "eine": 1, "einen": 1, "eins": 1, "zwei": 2, "drei": 3,
	"vier": 4, "fünf": 5, "fuenf": 5, "sechs": 6, "sieben": 7, "acht": 8,
	"neun": 9, "zehn": 10, "elf": 11, "zwölf": 12, "zwoelf": 12,
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
	"halb": 0.5, "half": 0.5,
}

// parseNumber parses a token as a number: digits with either decimal comma or
// point, or a German/English number word.
func parseNumber(tok string) (float64, bool) {
	if v, ok := numberWords[tok]; ok {
		return v, true
	}
	norm := strings.ReplaceAll(tok, ",", ".")
	v, err := strconv.ParseFloat(norm, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// splitCurrencySuffix splits tokens like "2€" or "2,50$" into the numeric
// part and the attached currency symbol.
func splitCurrencySuffix(tok string) (num, cur string) {
	for sym := range currencyAliases {
		if len(sym) > 0 && strings.HasSuffix(tok, sym) && len(tok) > len(sym) {
			return tok[:len(tok)-len(sym)], sym
		}
	}
	return tok, ""
}

// ParseIngredient parses a dictated ingredient phrase such as
// "Avocado 2 Euro" or "drei Kilo Tomaten 4,50 Euro".
//
// A number followed by a unit becomes the quantity; a number followed by a
// currency becomes the price; a trailing bare number is also taken as the
// price. Everything else joins into the name. Decimal commas are accepted.
func ParseIngredient(text string) (ParsedIngredient, error) {
	var out ParsedIngredient
	var nameTokens []string

	pending := 0.0
	hasPending := false

	flushPending := func() {
		// A dangling number with neither unit nor currency is taken as a
		// bare price ("Avocado 2").
		if hasPending && out.Price == 0 {
			out.Price = pending
		}
		hasPending = false
	}

	for _, raw := range strings.Fields(text) {
		tok := strings.ToLower(strings.Trim(raw, ".,;:!?"))
		if tok == "" {
			continue
		}

		if num, sym := splitCurrencySuffix(tok); sym != "" {
			if v, ok := parseNumber(num); ok {
				out.Price = v
				out.Currency = currencyAliases[sym]
				hasPending = false
				continue
			}
		}

		if v, ok := parseNumber(tok); ok {
			flushPending()
			pending = v
			hasPending = true
			continue
		}

		if unit, ok := unitAliases[tok]; ok && hasPending {
			out.Quantity = pending
			out.Unit = unit
			hasPending = false
			continue
		}

		if iso, ok := currencyAliases[tok]; ok && hasPending {
			out.Price = pending
			out.Currency = iso
			hasPending = false
			continue
		}

		nameTokens = append(nameTokens, strings.Trim(raw, ".,;:!?"))
	}
	flushPending()

	if len(nameTokens) == 0 {
		return ParsedIngredient{}, ErrNoName
	}
	out.Name = strings.Join(nameTokens, " ")
	return out, nil
}
