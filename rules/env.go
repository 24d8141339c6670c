package rules

// RefuelEnv is the state a refuel rule is evaluated against. Its fields and
// methods are callable from expr conditions.
type RefuelEnv struct {
	PlanCost         int  // energy the next plan consumes
	PlanSteps        int  // number of steps in the next plan
	ReturnCost       int  // cheapest known trip from the plan's end to a station, 0 if none
	StationReachable bool // a charging station is reachable over visited fields
	Energy           int  // energy left before the plan
	Capacity         int  // full battery
}

// Remaining is the energy left after executing the plan.
func (e RefuelEnv) Remaining() int {
	return e.Energy - e.PlanCost
}

// Ratio is the fraction of the battery left after executing the plan.
func (e RefuelEnv) Ratio() float64 {
	if e.Capacity <= 0 {
		return 0
	}
	return float64(e.Remaining()) / float64(e.Capacity)
}
