package domain

// RuleState is the explicit one-shot state of a trigger rule arm.
//
// Transitions: Disabled -> Armed (user enables), Armed -> Fired (condition
// met, irreversible until disabled), Fired -> Disabled -> Armed (re-enable
// cycle). The Fired state is what prevents duplicate fires from bursty
// order-book updates.
type RuleState int

const (
	RuleDisabled RuleState = iota
	RuleArmed
	RuleFired
)

func (s RuleState) String() string {
	switch s {
	case RuleArmed:
		return "armed"
	case RuleFired:
		return "fired"
	default:
		return "disabled"
	}
}

// TriggerRule is an auto-buy rule for one outcome arm. While armed it may
// fire at most once; re-arming is the only way to clear the fired latch.
type TriggerRule struct {
	State        RuleState
	TargetReturn float64 // fire when 1/bestAsk >= TargetReturn
	AmountUSD    float64 // dollars to spend on fire
}

// Arm enables the rule, clearing any fired latch.
func (r *TriggerRule) Arm() { r.State = RuleArmed }

// Disable turns the rule off.
func (r *TriggerRule) Disable() { r.State = RuleDisabled }

// TryFire moves the rule Armed -> Fired. It reports false when the rule is
// not currently armed, making check-and-latch a single operation for
// callers that hold the session lock.
func (r *TriggerRule) TryFire() bool {
	if r.State != RuleArmed {
		return false
	}
	r.State = RuleFired
	return true
}

// AutoSellConfig holds the take-profit/stop-loss thresholds for the
// position monitor. Triggered tracks position identifiers (condition ids)
// already acted upon this enable cycle; it carries the same once-only
// invariant as TriggerRule, scoped per position instead of per arm.
type AutoSellConfig struct {
	Enabled           bool
	TakeProfitPercent float64
	StopLossPercent   float64
	Triggered         map[string]struct{}
}

// NewAutoSellConfig returns a disabled config with the stock thresholds
// (+25% take profit, -50% stop loss).
func NewAutoSellConfig() *AutoSellConfig {
	return &AutoSellConfig{
		TakeProfitPercent: 25,
		StopLossPercent:   50,
		Triggered:         make(map[string]struct{}),
	}
}

// MarkTriggered records the position id before any sell attempt so a slow
// or failing sell can never double-fire.
func (c *AutoSellConfig) MarkTriggered(id string) {
	if c.Triggered == nil {
		c.Triggered = make(map[string]struct{})
	}
	c.Triggered[id] = struct{}{}
}

// IsTriggered reports whether the position was already acted upon.
func (c *AutoSellConfig) IsTriggered(id string) bool {
	_, ok := c.Triggered[id]
	return ok
}

// Reset clears the triggered set; called when the operator re-enables the
// monitor for a fresh cycle.
func (c *AutoSellConfig) Reset() {
	c.Triggered = make(map[string]struct{})
}
