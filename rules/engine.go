package rules

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Engine evaluates compiled refuel rules before every plan is committed.
type Engine struct {
	mu    sync.RWMutex
	rules []*Rule
}

// Decision is the outcome of one evaluation. Rule is empty when nothing fired.
type Decision struct {
	Refuel bool
	Rule   string
}

// NewEngine compiles all rule conditions into expr bytecode and sorts by priority.
func NewEngine(rules []*Rule) (*Engine, error) {
	compiled, err := compileRules(rules)
	if err != nil {
		return nil, err
	}
	return &Engine{rules: compiled}, nil
}

// Evaluate runs the rules against env in priority order and stops at the first
// one that holds. A rule whose condition fails to run is logged and skipped.
func (e *Engine) Evaluate(env RefuelEnv) Decision {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	for _, r := range rules {
		result, err := vm.Run(r.program, env)
		if err != nil {
			slog.Warn("refuel rule error", "rule", r.Name, "error", err)
			continue
		}

		match, ok := result.(bool)
		if !ok || !match {
			continue
		}

		slog.Debug("refuel rule fired", "rule", r.Name, "priority", r.Priority,
			"planCost", env.PlanCost, "returnCost", env.ReturnCost, "energy", env.Energy)
		return Decision{Refuel: true, Rule: r.Name}
	}
	return Decision{}
}

// Swap atomically replaces the rule set. Compiles first; if compilation fails
// the old rules remain active.
func (e *Engine) Swap(newRules []*Rule) error {
	compiled, err := compileRules(newRules)
	if err != nil {
		return err
	}
	names := make([]string, len(compiled))
	for i, r := range compiled {
		names[i] = r.Name
	}
	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()

	slog.Info("refuel rule set swapped", "count", len(compiled), "rules", names)
	return nil
}

// Names returns the rule names in evaluation order.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name
	}
	return names
}

func compileRules(rules []*Rule) ([]*Rule, error) {
	out := make([]*Rule, 0, len(rules))
	for _, r := range rules {
		if r == nil {
			continue
		}
		prog, err := expr.Compile(r.ConditionSrc, expr.Env(RefuelEnv{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("compile rule %q: %w", r.Name, err)
		}
		compiled := *r
		compiled.program = prog
		out = append(out, &compiled)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out, nil
}
