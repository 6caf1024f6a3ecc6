package transport

import (
	"testing"
	"time"

	"github.com/dkrutz/radiolink/internal/hal"
)

func TestDeathNotificationTriggersRecovery(t *testing.T) {
	c, endpoint, _, rec := newTestClient(t, 0, fastConfig())
	if !c.Enable() {
		t.Fatalf("enable failed")
	}

	endpoint.Die()

	waitFor(t, 2*time.Second, "recovery completes", func() bool {
		states := rec.snapshotStates()
		return containsState(states, StateResetting) && c.State() == StateEnabled
	})
	states := rec.snapshotStates()
	want := []State{StateEnabling, StateEnabled, StateResetting, StateEnabled}
	for i, s := range want {
		if i >= len(states) || states[i] != s {
			t.Fatalf("state sequence=%v, want %v", states, want)
		}
	}
	if !endpoint.Enabled() {
		t.Fatalf("chip not re-enabled after recovery")
	}
}

func TestDeathRecoveryFailureLeavesDisabled(t *testing.T) {
	c, endpoint, provider, rec := newTestClient(t, 0, fastConfig())
	if !c.Enable() {
		t.Fatalf("enable failed")
	}

	// The endpoint dies and never comes back.
	provider.SetUnavailable(1000)
	endpoint.Die()

	waitFor(t, 2*time.Second, "recovery gives up", func() bool {
		states := rec.snapshotStates()
		return containsState(states, StateResetting) && c.State() == StateDisabled
	})
	states := rec.snapshotStates()
	if states[len(states)-1] != StateDisabled {
		t.Fatalf("final state=%v, want disabled", states[len(states)-1])
	}
}

func TestStaleDeathTokenIgnored(t *testing.T) {
	c, endpoint, _, rec := newTestClient(t, 0, fastConfig())
	if !c.Enable() {
		t.Fatalf("enable failed")
	}

	endpoint.FireDeath(9999)

	time.Sleep(50 * time.Millisecond)
	if got := c.State(); got != StateEnabled {
		t.Fatalf("stale death changed state to %v", got)
	}
	if containsState(rec.snapshotStates(), StateResetting) {
		t.Fatalf("stale death triggered recovery: %v", rec.snapshotStates())
	}
}

func TestZeroDeathTokenIgnored(t *testing.T) {
	c, endpoint, _, rec := newTestClient(t, 0, fastConfig())
	if !c.Enable() {
		t.Fatalf("enable failed")
	}

	endpoint.FireDeath(0)

	time.Sleep(50 * time.Millisecond)
	if got := c.State(); got != StateEnabled {
		t.Fatalf("invalid-token death changed state to %v", got)
	}
	if containsState(rec.snapshotStates(), StateResetting) {
		t.Fatalf("invalid-token death triggered recovery: %v", rec.snapshotStates())
	}
}

func TestTransportDownTriggersRecovery(t *testing.T) {
	c, endpoint, _, rec := newTestClient(t, 0, fastConfig())
	if !c.Enable() {
		t.Fatalf("enable failed")
	}

	endpoint.TransportDown("io error")

	waitFor(t, 2*time.Second, "recovery completes", func() bool {
		return containsState(rec.snapshotStates(), StateResetting) && c.State() == StateEnabled
	})
}

func TestSendFailureTriggersRecovery(t *testing.T) {
	c, endpoint, _, rec := newTestClient(t, 0, fastConfig())
	if !c.Enable() {
		t.Fatalf("enable failed")
	}

	// The peer hangs up without a death notification; the next send trips
	// over it and schedules the same recovery path.
	endpoint.DieSilently()
	if c.Send([]byte{0x01, 0x42, 0x00}) {
		t.Fatalf("send on a dead channel reported success")
	}

	waitFor(t, 2*time.Second, "recovery completes", func() bool {
		return containsState(rec.snapshotStates(), StateResetting) && c.State() == StateEnabled
	})
}

func TestCloseReleasesBindingAfterFailedEnable(t *testing.T) {
	c, endpoint, _, rec := newTestClient(t, 0, fastConfig())
	endpoint.SetEnableStatus(hal.StatusFailed)

	if c.Enable() {
		t.Fatalf("enable should fail when the chip reports an error")
	}
	// The failed enable keeps the binding for a later retry.
	if _, bound := c.Properties(); !bound {
		t.Fatalf("binding not held after failed enable")
	}

	c.Close()
	if _, bound := c.Properties(); bound {
		t.Fatalf("channel binding still held after close")
	}

	endpoint.Inject([]byte{0x05, 0x40, 0x01, 0x02, 0x03})
	time.Sleep(20 * time.Millisecond)
	if got := rec.messageCount(); got != 0 {
		t.Fatalf("sink received %d messages after close", got)
	}
}

func TestHardResetRefusedAfterClose(t *testing.T) {
	c, _, _, _ := newTestClient(t, 0, fastConfig())
	if !c.Enable() {
		t.Fatalf("enable failed")
	}

	c.Close()
	if c.HardReset() {
		t.Fatalf("hard reset succeeded on a closed client")
	}
	if got := c.State(); got != StateDisabled {
		t.Fatalf("state=%v after refused reset, want disabled", got)
	}
	if _, bound := c.Properties(); bound {
		t.Fatalf("refused reset rebound the channel")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c, _, _, _ := newTestClient(t, 0, fastConfig())
	if !c.Enable() {
		t.Fatalf("enable failed")
	}

	c.Close()
	if got := c.State(); got != StateDisabled {
		t.Fatalf("state=%v after close, want disabled", got)
	}
	// Cleanup calls Close again; both must be safe.
	c.Close()
}
