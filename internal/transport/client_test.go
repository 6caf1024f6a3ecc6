package transport

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkrutz/radiolink/internal/hal"
	"github.com/dkrutz/radiolink/internal/hal/simulator"
	"github.com/dkrutz/radiolink/internal/testutil/testlog"
)

// recorder collects sink notifications for assertions.
type recorder struct {
	mu     sync.Mutex
	states []State
	msgs   [][]byte
}

func (r *recorder) OnStateChanged(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) OnMessageReceived(msg []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, append([]byte(nil), msg...))
}

func (r *recorder) snapshotStates() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *recorder) messageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func fastConfig() Config {
	return Config{
		BindRetryCount:     3,
		BindRetryDelay:     time.Millisecond,
		FlowControlTimeout: 80 * time.Millisecond,
		KeepaliveInterval:  30 * time.Millisecond,
	}
}

func newTestClient(t *testing.T, options uint32, cfg Config) (*Client, *simulator.Channel, *simulator.Provider, *recorder) {
	t.Helper()
	testlog.Start(t)
	endpoint := simulator.New(options)
	provider := simulator.NewProvider(endpoint)
	c := New(provider, cfg, log.Logger)
	rec := &recorder{}
	c.SetCallback(rec)
	t.Cleanup(c.Close)
	return c, endpoint, provider, rec
}

func TestEnableStateSequence(t *testing.T) {
	c, endpoint, _, rec := newTestClient(t, 0, fastConfig())

	if !c.Enable() {
		t.Fatalf("enable failed")
	}
	if got := c.State(); got != StateEnabled {
		t.Fatalf("state=%v, want enabled", got)
	}
	if !endpoint.Enabled() {
		t.Fatalf("chip not enabled on the endpoint")
	}

	waitFor(t, time.Second, "state notifications", func() bool {
		return len(rec.snapshotStates()) >= 2
	})
	states := rec.snapshotStates()
	if states[0] != StateEnabling || states[1] != StateEnabled {
		t.Fatalf("state sequence=%v, want [enabling enabled]", states)
	}
}

func TestEnableIdempotent(t *testing.T) {
	c, _, _, rec := newTestClient(t, 0, fastConfig())

	if !c.Enable() {
		t.Fatalf("enable failed")
	}
	if !c.Enable() {
		t.Fatalf("second enable should be a no-op success")
	}

	waitFor(t, time.Second, "state notifications", func() bool {
		return len(rec.snapshotStates()) >= 2
	})
	// Give a stray dispatch a moment to show up before counting.
	time.Sleep(20 * time.Millisecond)
	if states := rec.snapshotStates(); len(states) != 2 {
		t.Fatalf("unexpected extra notifications: %v", states)
	}
}

func TestEnableBindRetryExhausted(t *testing.T) {
	cfg := fastConfig()
	c, _, provider, rec := newTestClient(t, 0, cfg)
	provider.SetUnavailable(cfg.BindRetryCount)

	if c.Enable() {
		t.Fatalf("enable should fail when the endpoint never appears")
	}
	if got := c.State(); got != StateDisabled {
		t.Fatalf("state=%v, want disabled", got)
	}
	if got := provider.Opens(); got != cfg.BindRetryCount {
		t.Fatalf("open attempts=%d, want %d", got, cfg.BindRetryCount)
	}

	waitFor(t, time.Second, "state notifications", func() bool {
		return len(rec.snapshotStates()) >= 2
	})
	states := rec.snapshotStates()
	if states[0] != StateEnabling || states[1] != StateDisabled {
		t.Fatalf("state sequence=%v, want [enabling disabled]", states)
	}
}

func TestEnableBindRetrySucceedsLate(t *testing.T) {
	cfg := fastConfig()
	c, _, provider, _ := newTestClient(t, 0, cfg)
	provider.SetUnavailable(cfg.BindRetryCount - 1)

	if !c.Enable() {
		t.Fatalf("enable should succeed on the last attempt")
	}
	if got := provider.Opens(); got != cfg.BindRetryCount {
		t.Fatalf("open attempts=%d, want %d", got, cfg.BindRetryCount)
	}
}

func TestEnableRemoteFailure(t *testing.T) {
	c, endpoint, _, _ := newTestClient(t, 0, fastConfig())
	endpoint.SetEnableStatus(hal.StatusFailed)

	if c.Enable() {
		t.Fatalf("enable should fail when the chip reports an error")
	}
	if got := c.State(); got != StateDisabled {
		t.Fatalf("state=%v, want disabled", got)
	}
}

func TestDisable(t *testing.T) {
	c, endpoint, _, rec := newTestClient(t, 0, fastConfig())

	if !c.Enable() {
		t.Fatalf("enable failed")
	}
	c.Disable()
	if got := c.State(); got != StateDisabled {
		t.Fatalf("state=%v, want disabled", got)
	}
	if endpoint.Enabled() {
		t.Fatalf("chip still enabled after disable")
	}

	waitFor(t, time.Second, "state notifications", func() bool {
		return len(rec.snapshotStates()) >= 4
	})
	states := rec.snapshotStates()
	want := []State{StateEnabling, StateEnabled, StateDisabling, StateDisabled}
	for i, s := range want {
		if states[i] != s {
			t.Fatalf("state sequence=%v, want %v", states, want)
		}
	}

	// Second disable is a no-op.
	c.Disable()
	time.Sleep(20 * time.Millisecond)
	if got := len(rec.snapshotStates()); got != 4 {
		t.Fatalf("disable on disabled transport produced notifications: %v", rec.snapshotStates())
	}
}

func TestSendFailsFastWhenNotEnabled(t *testing.T) {
	c, _, _, _ := newTestClient(t, 0, fastConfig())

	start := time.Now()
	if c.Send([]byte{0x01, 0x42, 0x00}) {
		t.Fatalf("send should fail while disabled")
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("send blocked for %v while disabled", elapsed)
	}
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	c, _, _, _ := newTestClient(t, 0, fastConfig())
	if !c.Enable() {
		t.Fatalf("enable failed")
	}
	if c.Send(nil) {
		t.Fatalf("nil message accepted")
	}
	if c.Send([]byte{}) {
		t.Fatalf("empty message accepted")
	}
}

func TestSendRoutesCommandAndData(t *testing.T) {
	c, endpoint, _, _ := newTestClient(t, hal.OptionFlowControl, fastConfig())
	if !c.Enable() {
		t.Fatalf("enable failed")
	}

	if !c.Send([]byte{0x01, 0x42, 0x00}) {
		t.Fatalf("command send failed")
	}
	if !c.Send([]byte{0x09, 0x4F, 0x00, 1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Fatalf("data send failed")
	}

	if got := len(endpoint.Commands()); got != 1 {
		t.Fatalf("command channel saw %d messages, want 1", got)
	}
	if got := len(endpoint.Data()); got != 1 {
		t.Fatalf("data channel saw %d messages, want 1", got)
	}
}

func TestInboundMessageDelivery(t *testing.T) {
	c, endpoint, _, rec := newTestClient(t, 0, fastConfig())
	if !c.Enable() {
		t.Fatalf("enable failed")
	}

	endpoint.Inject([]byte{0x05, 0x40, 0x01, 0x02, 0x03})
	waitFor(t, time.Second, "inbound delivery", func() bool {
		return rec.messageCount() == 1
	})
}

func TestCallbackClearedMidStream(t *testing.T) {
	c, endpoint, _, rec := newTestClient(t, 0, fastConfig())
	if !c.Enable() {
		t.Fatalf("enable failed")
	}

	c.SetCallback(nil)
	endpoint.Inject([]byte{0x05, 0x40, 0x01, 0x02, 0x03})
	time.Sleep(20 * time.Millisecond)
	if rec.messageCount() != 0 {
		t.Fatalf("message delivered after sink was cleared")
	}

	c.SetCallback(rec)
	endpoint.Inject([]byte{0x05, 0x40, 0x01, 0x02, 0x03})
	waitFor(t, time.Second, "inbound delivery", func() bool {
		return rec.messageCount() == 1
	})
}

func TestHardResetFromEnabled(t *testing.T) {
	c, _, _, rec := newTestClient(t, 0, fastConfig())
	if !c.Enable() {
		t.Fatalf("enable failed")
	}

	if !c.HardReset() {
		t.Fatalf("hard reset failed")
	}
	if got := c.State(); got != StateEnabled {
		t.Fatalf("state=%v, want enabled after reset", got)
	}

	waitFor(t, time.Second, "state notifications", func() bool {
		return len(rec.snapshotStates()) >= 4
	})
	states := rec.snapshotStates()
	want := []State{StateEnabling, StateEnabled, StateResetting, StateEnabled}
	for i, s := range want {
		if states[i] != s {
			t.Fatalf("state sequence=%v, want %v", states, want)
		}
	}
}

func TestHardResetFromDisabled(t *testing.T) {
	c, endpoint, _, _ := newTestClient(t, 0, fastConfig())

	if !c.HardReset() {
		t.Fatalf("hard reset should bind and enable from disabled")
	}
	if got := c.State(); got != StateEnabled {
		t.Fatalf("state=%v, want enabled", got)
	}
	if !endpoint.Enabled() {
		t.Fatalf("chip not enabled after reset")
	}
}

func TestConcurrentPowerOpsSettle(t *testing.T) {
	c, _, _, _ := newTestClient(t, 0, fastConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for j := 0; j < 20; j++ {
				switch rng.Intn(3) {
				case 0:
					c.Enable()
				case 1:
					c.Disable()
				case 2:
					c.HardReset()
				}
			}
		}(int64(i))
	}
	wg.Wait()

	if got := c.State(); got != StateDisabled && got != StateEnabled {
		t.Fatalf("state=%v after concurrent ops, want a resting state", got)
	}
}

func TestStateReadableDuringTransition(t *testing.T) {
	cfg := fastConfig()
	cfg.BindRetryDelay = 20 * time.Millisecond
	c, _, provider, _ := newTestClient(t, 0, cfg)
	provider.SetUnavailable(2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Enable()
	}()

	// State reads must not serialize behind the in-flight transition.
	waitFor(t, time.Second, "enabling state observed lock-free", func() bool {
		return c.State() == StateEnabling
	})
	<-done
	if got := c.State(); got != StateEnabled {
		t.Fatalf("state=%v, want enabled", got)
	}
}
