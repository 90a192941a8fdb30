package syncclient

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestSchedulerTicksOnClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	calls := make(chan struct{}, 10)
	s := NewScheduler(clock, TickInterval, func() { calls <- struct{}{} })
	s.Start()
	s.Start()
	assert.True(t, s.Running())

	for i := 0; i < 3; i++ {
		clock.Advance(TickInterval)
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatalf("tick %d not delivered", i)
		}
	}

	s.Stop()
	assert.False(t, s.Running())
	clock.Advance(5 * TickInterval)
	select {
	case <-calls:
		t.Fatal("tick after stop")
	case <-time.After(50 * time.Millisecond):
	}
	s.Stop()
}

func TestSchedulerDrivesSession(t *testing.T) {
	f := newFixture(t)
	f.login(at(0, 0))
	s := NewScheduler(f.clock, TickInterval, f.session.Tick)
	s.Start()
	defer s.Stop()

	for i := 0; i < 3; i++ {
		f.clock.Advance(TickInterval)
		want := int64(i + 1)
		assert.Eventually(t, func() bool {
			return f.session.View().Progress.ElapsedSeconds == want
		}, time.Second, 5*time.Millisecond)
	}
}
