package conversation

import "unicode/utf8"

// truncateRunes caps s at max characters without splitting a rune.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// EstimateTokens approximates the token cost of a text as
// ceil(len/4). The estimate only has to be stable and monotonic in
// text length; packing gates are defined against it, not against real
// tokenizer output.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// Budget tracks the running token estimate of one assembly call
// against a hard maximum. It is call-scoped and discarded afterwards.
type Budget struct {
	max  int
	used int
}

// NewBudget creates a budget with the given maximum.
func NewBudget(maxTokens int) *Budget {
	return &Budget{max: maxTokens}
}

// Add charges tokens against the budget.
func (b *Budget) Add(tokens int) {
	b.used += tokens
}

// Used returns the running estimate.
func (b *Budget) Used() int {
	return b.used
}

// Max returns the budget ceiling.
func (b *Budget) Max() int {
	return b.max
}

// Below reports whether the running estimate is under the given
// fraction of the maximum. Tier attempt gates use this.
func (b *Budget) Below(fraction float64) bool {
	return float64(b.used) < fraction*float64(b.max)
}

// FitsWithin reports whether charging tokens would keep the estimate
// under the given fraction of the maximum. Tier keep gates use this.
func (b *Budget) FitsWithin(tokens int, fraction float64) bool {
	return float64(b.used+tokens) < fraction*float64(b.max)
}

// Exceeded reports whether the estimate has reached the maximum.
func (b *Budget) Exceeded() bool {
	return b.used >= b.max
}
