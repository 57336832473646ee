package relay

import (
	"sync"
	"testing"
	"time"
)

// expiryRecorder collects expiry callbacks from timer goroutines.
type expiryRecorder struct {
	mu    sync.Mutex
	kinds []string
}

func (r *expiryRecorder) record(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

func (r *expiryRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.kinds...)
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestDebouncer_ExpiresAfterGrace(t *testing.T) {
	rec := &expiryRecorder{}
	d := NewDebouncer(20*time.Millisecond, rec.record)

	d.Arm("node-proxmox")
	if !d.Pending("node-proxmox") {
		t.Fatal("Pending() = false after Arm()")
	}

	if !waitFor(t, time.Second, func() bool { return len(rec.snapshot()) == 1 }) {
		t.Fatalf("expiry not observed, got %v", rec.snapshot())
	}
	if rec.snapshot()[0] != "node-proxmox" {
		t.Errorf("expired kind = %q, want node-proxmox", rec.snapshot()[0])
	}
}

func TestDebouncer_CancelPreventsExpiry(t *testing.T) {
	rec := &expiryRecorder{}
	d := NewDebouncer(30*time.Millisecond, rec.record)

	d.Arm("node-proxmox")
	if cancelled := d.Cancel("node-proxmox"); !cancelled {
		t.Fatal("Cancel() = false, want true for pending timer")
	}
	if d.Pending("node-proxmox") {
		t.Error("Pending() = true after Cancel()")
	}

	time.Sleep(80 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("expiries after cancel = %v, want none", got)
	}
}

func TestDebouncer_CancelWithoutPending(t *testing.T) {
	d := NewDebouncer(time.Minute, func(string) {})

	if cancelled := d.Cancel("node-proxmox"); cancelled {
		t.Error("Cancel() = true with no pending timer")
	}
}

func TestDebouncer_ArmIsIdempotentWhilePending(t *testing.T) {
	rec := &expiryRecorder{}
	d := NewDebouncer(20*time.Millisecond, rec.record)

	d.Arm("node-proxmox")
	d.Arm("node-proxmox") // ignored: only one timer per kind

	waitFor(t, time.Second, func() bool { return len(rec.snapshot()) >= 1 })
	time.Sleep(50 * time.Millisecond)

	if got := rec.snapshot(); len(got) != 1 {
		t.Errorf("expiries = %v, want exactly one", got)
	}
}

func TestDebouncer_IndependentKinds(t *testing.T) {
	rec := &expiryRecorder{}
	d := NewDebouncer(25*time.Millisecond, rec.record)

	d.Arm("kind-a")
	d.Arm("kind-b")

	// Cancelling A must not disturb B.
	if !d.Cancel("kind-a") {
		t.Fatal("Cancel(kind-a) = false")
	}

	if !waitFor(t, time.Second, func() bool { return len(rec.snapshot()) == 1 }) {
		t.Fatalf("expected one expiry, got %v", rec.snapshot())
	}
	if rec.snapshot()[0] != "kind-b" {
		t.Errorf("expired kind = %q, want kind-b", rec.snapshot()[0])
	}
}

func TestDebouncer_ConfirmSettlesExpiry(t *testing.T) {
	d := NewDebouncer(time.Minute, func(string) {})

	d.Arm("node-proxmox")
	if !d.Confirm("node-proxmox") {
		t.Error("Confirm() = false for pending kind")
	}
	// Entry consumed: a second confirm (a stale expiry) is discarded.
	if d.Confirm("node-proxmox") {
		t.Error("second Confirm() = true, want false")
	}
}

func TestDebouncer_StopAll(t *testing.T) {
	rec := &expiryRecorder{}
	d := NewDebouncer(20*time.Millisecond, rec.record)

	d.Arm("kind-a")
	d.Arm("kind-b")
	d.StopAll()

	if d.Pending("kind-a") || d.Pending("kind-b") {
		t.Error("Pending() = true after StopAll()")
	}

	time.Sleep(60 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Errorf("expiries after StopAll = %v, want none", got)
	}
}
