package calc

import "math"

// FlatUnitQuantity is the sentinel quantity recorded for services that are
// priced per unit rather than per measured area (e.g. a custom line item
// with no geometry). Cost for such items is simply the rate.
const FlatUnitQuantity = 1.0

// CabinetSection is one rectangular run of cabinetry: length x breadth,
// counted Quantity times.
type CabinetSection struct {
	Length   float64 `json:"length"`
	Breadth  float64 `json:"breadth"`
	Quantity float64 `json:"quantity"`
}

// WallArea computes the paintable area of a room from its wall widths and a
// shared height: height * sum(widths). A width of 0 is a legal unmeasured
// wall slot and contributes nothing.
func WallArea(walls []float64, height float64) float64 {
	total := 0.0
	for _, w := range walls {
		total += w
	}
	return height * total
}

// SectionArea computes the total area of a set of cabinet sections:
// sum(length * breadth * quantity). A section with any zero dimension
// contributes 0.
func SectionArea(sections []CabinetSection) float64 {
	total := 0.0
	for _, s := range sections {
		total += s.Length * s.Breadth * s.Quantity
	}
	return total
}

// Cost computes the cost snapshot for a measured quantity at the given rate.
// Inputs are taken literally: negative or zero values flow through as
// literal products, input sanitization belongs to the caller.
func Cost(netArea, rate float64) float64 {
	return netArea * rate
}

// FlatUnitCost is the cost of a unitized service with no geometry.
func FlatUnitCost(rate float64) float64 {
	return Cost(FlatUnitQuantity, rate)
}

// RoundCurrency rounds a value to the nearest whole currency unit. This is
// a presentation helper only; stored costs and areas keep full precision.
func RoundCurrency(v float64) float64 {
	return math.Round(v)
}
