// Package budget governs per-task model usage.
//
// A TokenBudget estimates tokens from text length, charges them against a fixed
// capacity and turns the remaining allowance into decisions: which model tier
// to use, how many output tokens to request, and how much prompt to send. Every
// method degrades to a safe minimum instead of failing.
package budget

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultCapacity is the per-task token allowance.
	DefaultCapacity = 10000
	// CharsPerToken is the fixed characters-per-token estimate.
	CharsPerToken = 4
	// CheapTierThreshold is the fraction used at which every phase gets the fast tier.
	CheapTierThreshold = 0.80
	// HardStopThreshold is the fraction used at which model calls stop.
	HardStopThreshold = 1.0
	// MinOutputTokens is the output cap floor.
	MinOutputTokens = 256
)

// TruncationMarker is appended to capped prompts. %d is the remaining tokens.
const TruncationMarker = "\n[truncated: %d tokens remaining]"

// TokenBudget tracks token-equivalents consumed by one task.
//
// A TokenBudget belongs to a single task and is not safe for concurrent use.
// Consumption only grows; a budget is never replenished.
type TokenBudget struct {
	capacity        int
	consumed        int
	consumedByPhase map[string]int
	truncations     map[string]int
}

// New creates a budget. A non-positive capacity uses DefaultCapacity.
func New(capacity int) *TokenBudget {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &TokenBudget{
		capacity:        capacity,
		consumedByPhase: make(map[string]int),
		truncations:     make(map[string]int),
	}
}

// EstimateTokens returns ceil(runes / CharsPerToken).
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// Consume charges text against the budget under phase and returns the tokens
// charged. Empty text charges nothing.
func (b *TokenBudget) Consume(text, phase string) int {
	tokens := EstimateTokens(text)
	b.ConsumeTokens(tokens, phase)
	return tokens
}

// ConsumeTokens charges a known token count, such as usage reported by a
// model API. Negative counts are ignored.
func (b *TokenBudget) ConsumeTokens(tokens int, phase string) {
	if tokens <= 0 {
		return
	}
	b.consumed += tokens
	b.consumedByPhase[phaseKey(phase)] += tokens
}

// Capacity returns the fixed allowance.
func (b *TokenBudget) Capacity() int { return b.capacity }

// Consumed returns the tokens charged so far.
func (b *TokenBudget) Consumed() int { return b.consumed }

// Remaining returns max(0, capacity - consumed).
func (b *TokenBudget) Remaining() int {
	if r := b.capacity - b.consumed; r > 0 {
		return r
	}
	return 0
}

// FractionUsed returns consumed / capacity. It can exceed 1.
func (b *TokenBudget) FractionUsed() float64 {
	return float64(b.consumed) / float64(b.capacity)
}

// ShouldSkipLLM reports whether the budget is exhausted. Once true it stays true.
func (b *TokenBudget) ShouldSkipLLM() bool {
	return b.FractionUsed() >= HardStopThreshold
}

// ConsumedByPhase returns a copy of the per-phase breakdown.
func (b *TokenBudget) ConsumedByPhase() map[string]int {
	return copyCounts(b.consumedByPhase)
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RecommendMaxOutput returns the output-token cap for a phase.
//
//	remaining < 500   -> 256
//	remaining < 2000  -> 512
//	active phases     -> min(4096, remaining/2)
//	other phases      -> min(1024, remaining/3)
//
// The result never drops below MinOutputTokens.
func (b *TokenBudget) RecommendMaxOutput(phase string) int {
	r := b.Remaining()
	var out int
	switch {
	case r < 500:
		out = MinOutputTokens
	case r < 2000:
		out = 512
	case isActivePhase(phase):
		out = min(4096, r/2)
	default:
		out = min(1024, r/3)
	}
	return max(out, MinOutputTokens)
}

// CapPrompt truncates text to remaining*CharsPerToken characters. When it
// truncates it appends TruncationMarker and counts the truncation under phase.
func (b *TokenBudget) CapPrompt(text, phase string) string {
	limit := b.Remaining() * CharsPerToken
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	b.truncations[phaseKey(phase)]++
	runes := []rune(text)
	return string(runes[:limit]) + fmt.Sprintf(TruncationMarker, b.Remaining())
}

// EfficiencyHint returns a note to add to prompts as the budget runs down,
// or "" while less than half is used.
func (b *TokenBudget) EfficiencyHint() string {
	used := b.FractionUsed()
	switch {
	case used >= CheapTierThreshold:
		return fmt.Sprintf("Budget nearly exhausted (%d tokens left). Answer now with what you have; no further exploration.", b.Remaining())
	case used >= 0.5:
		return fmt.Sprintf("Half the budget is used (%d tokens left). Prefer direct actions over exploration.", b.Remaining())
	default:
		return ""
	}
}

// Report is a snapshot of a budget for logs and responses.
type Report struct {
	Capacity        int            `json:"capacity"`
	Consumed        int            `json:"consumed"`
	Remaining       int            `json:"remaining"`
	FractionUsed    float64        `json:"fraction_used"`
	Exhausted       bool           `json:"exhausted"`
	ConsumedByPhase map[string]int `json:"consumed_by_phase"`
	Truncations     map[string]int `json:"truncations"`
}

// Report returns the current snapshot.
func (b *TokenBudget) Report() Report {
	return Report{
		Capacity:        b.capacity,
		Consumed:        b.consumed,
		Remaining:       b.Remaining(),
		FractionUsed:    b.FractionUsed(),
		Exhausted:       b.ShouldSkipLLM(),
		ConsumedByPhase: b.ConsumedByPhase(),
		Truncations:     copyCounts(b.truncations),
	}
}

// String renders the report on one line, phases sorted by name.
func (r Report) String() string {
	phases := make([]string, 0, len(r.ConsumedByPhase))
	for k := range r.ConsumedByPhase {
		phases = append(phases, k)
	}
	sort.Strings(phases)
	parts := make([]string, 0, len(phases))
	for _, p := range phases {
		parts = append(parts, fmt.Sprintf("%s=%d", p, r.ConsumedByPhase[p]))
	}
	return fmt.Sprintf("%d/%d tokens (%.0f%%) [%s]", r.Consumed, r.Capacity, r.FractionUsed*100, strings.Join(parts, " "))
}

func phaseKey(phase string) string {
	p := strings.ToUpper(strings.TrimSpace(phase))
	if p == "" {
		return "UNSPECIFIED"
	}
	return p
}
