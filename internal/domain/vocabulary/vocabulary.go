// Package vocabulary holds the canonical numeric fields that free-text quantity
// mentions are normalized to.
package vocabulary

// Amount is the fallback field for aggregation.
const Amount = "amount"

// Field is one canonical storage field. Description lists the words that should
// resolve to it; it is what gets embedded for nearest-neighbour lookup.
type Field struct {
	ID          string
	Description string
}

// Default returns the built-in vocabulary.
func Default() []Field {
	return []Field{
		{ID: Amount, Description: "price, cost, amount of money, sum, payment, rubles, dollars, euros, currency, spent, paid"},
		{ID: "quantity", Description: "quantity, count of items, pieces, things, units, bananas, apples, bottles, packs"},
		{ID: "rating", Description: "rating, score, grade, stars, mark, evaluation"},
		{ID: "number", Description: "number, ordinal, phone number, apartment, house number, room, code"},
		{ID: "distance", Description: "distance, length, kilometers, meters, miles, km, run, walked"},
		{ID: "weight", Description: "weight, mass, kilograms, grams, pounds, kg, tons"},
		{ID: "duration", Description: "duration, time spent, hours, minutes, days, seconds, how long"},
		{ID: "volume", Description: "volume, liters, milliliters, gallons, capacity, fuel"},
	}
}

// IDs returns the identifiers of fields in order.
func IDs(fields []Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.ID
	}
	return out
}

// Contains reports whether id names a field in fields.
func Contains(fields []Field, id string) bool {
	for _, f := range fields {
		if f.ID == id {
			return true
		}
	}
	return false
}
