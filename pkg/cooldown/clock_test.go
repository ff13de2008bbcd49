package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_FiresInDeadlineOrder(t *testing.T) {
	clock := NewFakeClock(epoch)
	var order []string
	clock.AfterFunc(2*time.Second, func() { order = append(order, "late") })
	clock.AfterFunc(time.Second, func() { order = append(order, "early") })
	clock.AfterFunc(time.Hour, func() { order = append(order, "never") })

	clock.Advance(5 * time.Second)

	assert.Equal(t, []string{"early", "late"}, order)
	assert.Equal(t, 1, clock.Pending())
	assert.Equal(t, epoch.Add(5*time.Second), clock.Now())
}

func TestFakeClock_StoppedTimerDoesNotFire(t *testing.T) {
	clock := NewFakeClock(epoch)
	fired := false
	timer := clock.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	clock.Advance(time.Minute)

	assert.False(t, fired)
}
