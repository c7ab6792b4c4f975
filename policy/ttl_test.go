package policy_test

import (
	"testing"
	"time"

	"github.com/groc-prog/cache-nest/policy"
)

func TestTTL_ReregisteringDoesNotEmitTTLCleared(t *testing.T) {
	sched := &fakeScheduler{}
	p := policy.New(policy.LRU, sched, nil)
	p.Track("a")

	p.RegisterTTL("a", time.Second)
	p.RegisterTTL("a", 2*time.Second) // reschedule, not a cancellation

	select {
	case ev := <-p.Events():
		t.Fatalf("expected no event from a reschedule, got %+v", ev)
	default:
	}

	// only the second timer is live now
	sched.fire()
	select {
	case ev := <-p.Events():
		if !ev.Expired || ev.Key != "a" {
			t.Fatalf("expected ttlExpired for a, got %+v", ev)
		}
	default:
		t.Fatalf("expected the rescheduled timer to still fire")
	}
}

func TestTTL_StopTrackingCancelsTimerWithTTLCleared(t *testing.T) {
	sched := &fakeScheduler{}
	p := policy.New(policy.FIFO, sched, nil)
	p.Track("a")
	p.RegisterTTL("a", time.Second)

	p.StopTracking("a")

	select {
	case ev := <-p.Events():
		if ev.Key != "a" || ev.Expired {
			t.Fatalf("expected ttlCleared for a on stopTracking, got %+v", ev)
		}
	default:
		t.Fatalf("expected stopTracking to cancel the pending timer")
	}
}

func TestTTL_CloseStopsAllTimers(t *testing.T) {
	sched := &fakeScheduler{}
	p := policy.New(policy.RR, sched, nil)
	p.Track("a")
	p.RegisterTTL("a", time.Second)

	p.Close()
	sched.fire() // must be a no-op: Close already stopped the timer

	_, ok := <-p.Events()
	if ok {
		t.Fatalf("expected events channel to be closed with no pending sends")
	}
}
