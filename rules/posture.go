package rules

import (
	"fmt"
	"math"
)

// ReserveRuleName names the rule a cautious posture adds on top of the budget rule.
const ReserveRuleName = "reserve-margin"

// maxReservePermille is the reserve a fully cautious posture keeps, in
// thousandths of the battery.
const maxReservePermille = 250

// Posture is a high-level refuel attitude. Caution runs from 0.0 (return only
// when the budget rule forces it) to 1.0 (keep a quarter of the battery in
// reserve after every plan and its trip home).
type Posture struct {
	Name    string  `yaml:"name"`
	Caution float64 `yaml:"caution"`
}

// DefaultPosture returns the posture that only runs the budget rule.
func DefaultPosture() Posture {
	return Posture{Name: "frugal"}
}

// Validate clamps Caution to [0, 1].
func (p *Posture) Validate() {
	p.Caution = clamp(p.Caution, 0, 1)
}

// ReservePermille is the battery share, in thousandths, the posture keeps back.
func (p Posture) ReservePermille() int {
	p.Validate()
	return lerp(0, maxReservePermille, p.Caution)
}

// CompilePosture generates the rule set for a posture. Conditions are built
// from interpolated integers so the output always compiles.
func CompilePosture(p Posture) []*Rule {
	p.Validate()
	rules := DefaultRules()

	reserve := p.ReservePermille()
	if reserve == 0 {
		return rules
	}
	// Only worth returning early when a station is known; otherwise the
	// budget rule decides whether the mower is stranded.
	rules = append(rules, &Rule{
		Name:         ReserveRuleName,
		Priority:     1500,
		ConditionSrc: fmt.Sprintf(`StationReachable && (Remaining() - ReturnCost) * 1000 < Capacity * %d`, reserve),
	})
	return rules
}

// lerp linearly interpolates between min and max by t (0–1), returning an int.
func lerp(min, max int, t float64) int {
	return min + int(math.Round(float64(max-min)*t))
}

// clamp restricts v to [min, max].
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
