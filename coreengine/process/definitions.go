package process

// RiskLevel grades how much detail an approval brief needs.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Definition is static metadata about a process type.
type Definition struct {
	// HITLRequired is descriptive: it marks processes whose owners expect a
	// human sign-off. Gating is decided by the template's APPROVAL_GATE and the
	// action classifier, not by this flag.
	HITLRequired bool      `json:"hitl_required"`
	RiskLevel    RiskLevel `json:"risk_level"`
	// ConnectorHints are action-name fragments relevant to the process.
	ConnectorHints []string `json:"connector_hints"`
}

var definitions = map[string]Definition{
	"expense_approval":       {HITLRequired: true, RiskLevel: RiskMedium, ConnectorHints: []string{"expense", "finance", "slack", "email", "hr"}},
	"procurement":            {HITLRequired: true, RiskLevel: RiskHigh, ConnectorHints: []string{"vendor", "purchase", "contract", "finance", "erp"}},
	"hr_offboarding":         {HITLRequired: true, RiskLevel: RiskHigh, ConnectorHints: []string{"hr", "employee", "access", "payroll", "it"}},
	"incident_response":      {HITLRequired: false, RiskLevel: RiskHigh, ConnectorHints: []string{"incident", "pagerduty", "slack", "status", "ticket"}},
	"invoice_reconciliation": {HITLRequired: false, RiskLevel: RiskMedium, ConnectorHints: []string{"invoice", "vendor", "finance", "erp", "accounting"}},
	"customer_onboarding":    {HITLRequired: false, RiskLevel: RiskLow, ConnectorHints: []string{"crm", "customer", "account", "email"}},
	"compliance_audit":       {HITLRequired: true, RiskLevel: RiskHigh, ConnectorHints: []string{"audit", "compliance", "policy", "document"}},
	"dispute_resolution":     {HITLRequired: true, RiskLevel: RiskMedium, ConnectorHints: []string{"dispute", "payment", "customer", "ticket"}},
	"order_management":       {HITLRequired: true, RiskLevel: RiskMedium, ConnectorHints: []string{"order", "inventory", "shipment", "customer"}},
	"sla_breach":             {HITLRequired: false, RiskLevel: RiskMedium, ConnectorHints: []string{"sla", "ticket", "incident", "credit"}},
	"month_end_close":        {HITLRequired: true, RiskLevel: RiskHigh, ConnectorHints: []string{"accounting", "erp", "finance", "ledger"}},
	"ar_collections":         {HITLRequired: false, RiskLevel: RiskMedium, ConnectorHints: []string{"crm", "email", "finance", "billing"}},
	"subscription_migration": {HITLRequired: true, RiskLevel: RiskHigh, ConnectorHints: []string{"subscription", "billing", "plan", "customer"}},
	"payroll":                {HITLRequired: true, RiskLevel: RiskHigh, ConnectorHints: []string{"payroll", "employee", "hr", "finance", "bank"}},
}

// DefinitionFor returns the metadata for processType. Unknown types get a
// medium-risk definition with no hints that does not force HITL.
func DefinitionFor(processType string) Definition {
	def, ok := definitions[NormalizeProcessType(processType)]
	if !ok {
		return Definition{RiskLevel: RiskMedium, ConnectorHints: []string{}}
	}
	hints := make([]string, len(def.ConnectorHints))
	copy(hints, def.ConnectorHints)
	def.ConnectorHints = hints
	return def
}
