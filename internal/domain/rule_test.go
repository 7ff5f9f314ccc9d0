package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTriggerRule_OneShot(t *testing.T) {
	r := TriggerRule{TargetReturn: 2.0, AmountUSD: 10}

	assert.False(t, r.TryFire(), "disabled rule must not fire")

	r.Arm()
	assert.True(t, r.TryFire())
	assert.Equal(t, RuleFired, r.State)
	assert.False(t, r.TryFire(), "fired rule must stay latched")

	// Re-enable cycle clears the latch.
	r.Disable()
	r.Arm()
	assert.True(t, r.TryFire())
}

func TestAutoSellConfig_TriggeredSet(t *testing.T) {
	c := NewAutoSellConfig()
	assert.Equal(t, 25.0, c.TakeProfitPercent)
	assert.Equal(t, 50.0, c.StopLossPercent)

	assert.False(t, c.IsTriggered("cond-1"))
	c.MarkTriggered("cond-1")
	assert.True(t, c.IsTriggered("cond-1"))

	c.Reset()
	assert.False(t, c.IsTriggered("cond-1"))
}

func TestPosition_PercentPnL(t *testing.T) {
	p := Position{AvgPrice: 0.40, CurPrice: 0.51, Size: 100}
	assert.InDelta(t, 0.275, p.PercentPnL(), 1e-9)
	assert.InDelta(t, 11.0, p.CashPnL(), 1e-9)

	zero := Position{AvgPrice: 0, CurPrice: 0.5}
	assert.Zero(t, zero.PercentPnL())
	assert.Zero(t, zero.CashPnL())
}
