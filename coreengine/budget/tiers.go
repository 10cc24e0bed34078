package budget

import "strings"

// Tier is a model capability class. Deployments map tiers to model IDs.
type Tier string

const (
	TierFast   Tier = "fast"
	TierStrong Tier = "strong"
)

// activePhases get the larger output allowance.
var activePhases = map[string]bool{
	"DECOMPOSE":       true,
	"ASSESS":          true,
	"COMPUTE":         true,
	"MUTATE":          true,
	"SCHEDULE_NOTIFY": true,
	"EXECUTE":         true,
}

// strongPhases default to the strong tier; every other phase is fast.
var strongPhases = map[string]bool{
	"COMPUTE": true,
	"MUTATE":  true,
	"EXECUTE": true,
}

// complexKeywords keep a strong phase on the strong tier.
var complexKeywords = []string{
	"reconcile", "root cause", "diagnose", "analyze", "analyse", "forecast",
	"synthesize", "cross-reference", "correlate", "investigate",
}

func isActivePhase(phase string) bool {
	return activePhases[phaseKey(phase)]
}

// IsComplexTask reports whether the task text asks for multi-step reasoning.
func IsComplexTask(taskText string) bool {
	t := strings.ToLower(taskText)
	for _, kw := range complexKeywords {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

// RecommendModel picks the tier for a phase. Past CheapTierThreshold every
// phase is fast. A strong phase stays strong only for complex tasks.
func (b *TokenBudget) RecommendModel(phase, taskText string) Tier {
	if b.FractionUsed() >= CheapTierThreshold {
		return TierFast
	}
	if !strongPhases[phaseKey(phase)] {
		return TierFast
	}
	if !IsComplexTask(taskText) {
		return TierFast
	}
	return TierStrong
}

// ModelFor maps a tier to a model ID.
func ModelFor(tier Tier, fastModel, strongModel string) string {
	if tier == TierStrong && strongModel != "" {
		return strongModel
	}
	return fastModel
}
