package model

import "fmt"

// Pesewas is a GHS amount in minor units (1 cedi = 100 pesewas).
// All arithmetic in the system happens on this type; two-decimal
// rendering exists only at the edges.
type Pesewas int64

// Cedis formats the amount for user-facing messages, e.g. "GHS 24.00".
func (p Pesewas) Cedis() string {
	sign := ""
	v := p
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%sGHS %d.%02d", sign, v/100, v%100)
}
