package rules

import (
	"github.com/expr-lang/expr/vm"
)

// Rule is a named refuel condition. The engine evaluates rules by priority and
// the first one that holds sends the mower back to a charging station.
type Rule struct {
	Name         string      `yaml:"name"`      // human-readable identifier
	Priority     int         `yaml:"priority"`  // higher = evaluated first
	ConditionSrc string      `yaml:"condition"` // expr source
	program      *vm.Program // compiled bytecode
}

// BudgetRuleName names the built-in rule that compares the energy needed for the
// plan and the trip back against the remaining energy.
const BudgetRuleName = "energy-budget"

// DefaultRules returns the built-in rule set.
func DefaultRules() []*Rule {
	return []*Rule{
		{
			Name:         BudgetRuleName,
			Priority:     1000,
			ConditionSrc: `PlanCost + ReturnCost > Energy`,
		},
	}
}
