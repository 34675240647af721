package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceFiresInDeadlineOrder(t *testing.T) {
	c := NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	var order []string

	c.AfterFunc(3*time.Second, func() { order = append(order, "three") })
	c.AfterFunc(1*time.Second, func() { order = append(order, "one") })
	c.AfterFunc(5*time.Second, func() { order = append(order, "five") })

	c.Advance(4 * time.Second)
	assert.Equal(t, []string{"one", "three"}, order)
	assert.Equal(t, 1, c.Pending())

	c.Advance(time.Second)
	assert.Equal(t, []string{"one", "three", "five"}, order)
	assert.Equal(t, 0, c.Pending())
}

func TestFake_StopPreventsCallback(t *testing.T) {
	c := NewFake(time.Time{})
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	c.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestFake_CallbackMaySchedule(t *testing.T) {
	c := NewFake(time.Time{})
	var fired []time.Duration
	start := c.Now()

	c.AfterFunc(time.Second, func() {
		fired = append(fired, c.Now().Sub(start))
		c.AfterFunc(time.Second, func() {
			fired = append(fired, c.Now().Sub(start))
		})
	})

	c.Advance(3 * time.Second)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, fired)
	assert.Equal(t, 3*time.Second, c.Now().Sub(start))
}

func TestReal_AfterFunc(t *testing.T) {
	done := make(chan struct{})
	Real().AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("real timer did not fire")
	}
}
