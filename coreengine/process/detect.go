package process

import (
	"regexp"
	"strings"
)

// processKeywords scores task text against each process type. Order matters:
// on equal scores the earlier entry wins.
var processKeywords = []struct {
	processType string
	keywords    []string
}{
	{"expense_approval", []string{"expense", "reimbursement", "approval", "spend", "budget", "receipt", "claim"}},
	{"procurement", []string{"vendor", "purchase", "order", "contract", "supplier", "rfp", "quote", "procurement"}},
	{"hr_offboarding", []string{"offboarding", "offboard", "termination", "access revocation", "exit", "last day"}},
	{"incident_response", []string{"incident", "outage", "down", "breach", "alert", "p1", "p2", "emergency", "sev"}},
	{"invoice_reconciliation", []string{"invoice", "reconcile", "reconciliation", "statement", "bill", "ap ", "accounts payable"}},
	{"customer_onboarding", []string{"onboarding", "onboard", "new customer", "new client", "setup", "provision"}},
	{"compliance_audit", []string{"compliance", "audit", "kyc", "gdpr", "pci", "sox", "regulatory", "review"}},
	{"dispute_resolution", []string{"dispute", "chargeback", "complaint", "resolution", "contested", "claim"}},
	{"order_management", []string{"order", "shipment", "delivery", "fulfillment", "cart", "item", "product"}},
	{"sla_breach", []string{"sla", "service level", "uptime", "downtime", "breach", "penalty", "credit"}},
	{"month_end_close", []string{"month-end", "month end", "close", "p&l", "financial close", "accounting", "books"}},
	{"ar_collections", []string{"accounts receivable", "ar ", "aging", "overdue", "collection", "payment plan", "bad debt"}},
	{"subscription_migration", []string{"migrate", "migration", "downgrade", "upgrade", "plan change", "subscription change"}},
	{"payroll", []string{"payroll", "salary", "wages", "compensation", "pay run", "paye", "bacs"}},
}

// DetectProcessType picks the process type whose keywords occur most often in
// task. Text with no matching keyword maps to DefaultProcessType.
func DetectProcessType(task string) string {
	text := strings.ToLower(task)
	best, bestScore := DefaultProcessType, 0
	for _, entry := range processKeywords {
		score := 0
		for _, kw := range entry.keywords {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = entry.processType, score
		}
	}
	return best
}

// =============================================================================
// Read-only shortcut
// =============================================================================

// ReadOnlyTemplate is the collapsed state list used for pure queries.
var ReadOnlyTemplate = []State{StateDecompose, StateAssess, StateComplete}

var (
	querySignal = regexp.MustCompile(`(?i)^\s*(what|which|who|when|where|how many|how much|list|show|find|get|look up|lookup|tell me|summari[sz]e|report|is|are|does|do|can you (tell|show|list|find))\b`)

	mutationVerb = regexp.MustCompile(`(?i)\b(create|update|delete|remove|approve|reject|submit|send|cancel|transfer|pay|refund|change|set|add|schedule|book|assign|close|migrate|terminate|escalate|notify|issue|revoke|grant|modify|apply|execute|place|reconcile|offboard|onboard|downgrade|upgrade|reset|disable|enable|provision)\b`)
)

// IsReadOnlyQuery reports whether task reads as a question that asks for
// information without asking for any change. Any mutation verb disqualifies
// the task.
func IsReadOnlyQuery(task string) bool {
	if strings.TrimSpace(task) == "" {
		return false
	}
	if mutationVerb.MatchString(task) {
		return false
	}
	return querySignal.MatchString(task)
}
