package relay

import "time"

// Debouncer owns the per-device disconnect grace timers. A device socket
// closing arms a timer; a re-registration of the same kind before it fires
// cancels it, so reboot cycles and brief network blips never surface as an
// offline/online pair.
//
// At most one timer exists per kind. All methods are called under the
// Core's handler mutex; the expiry callback fires on a timer goroutine and
// must re-enter through the Core (which re-acquires the mutex and calls
// Confirm to settle the race between expiry and a concurrent cancel).
type Debouncer struct {
	grace  time.Duration
	timers map[string]*time.Timer
	expire func(kind string)
}

// NewDebouncer creates a debouncer with the given grace interval. The
// expire callback is invoked on a timer goroutine when a kind's window
// elapses without a reconnect.
func NewDebouncer(grace time.Duration, expire func(kind string)) *Debouncer {
	return &Debouncer{
		grace:  grace,
		timers: make(map[string]*time.Timer),
		expire: expire,
	}
}

// Arm starts the grace timer for kind. A timer already pending for the
// same kind is left untouched: the device can only be in one of Connected
// or PendingDisconnect at a time, so double-arming indicates a caller bug
// and is ignored.
func (d *Debouncer) Arm(kind string) {
	if _, pending := d.timers[kind]; pending {
		return
	}
	d.timers[kind] = time.AfterFunc(d.grace, func() {
		d.expire(kind)
	})
}

// Cancel stops any pending timer for kind and reports whether one was
// pending. A true result means the device reconnected within its grace
// window and was never considered offline.
func (d *Debouncer) Cancel(kind string) bool {
	timer, pending := d.timers[kind]
	if !pending {
		return false
	}
	delete(d.timers, kind)
	timer.Stop()
	return true
}

// Confirm settles an expiry: it reports whether kind was still pending and
// removes the entry. A false result means the timer lost the race against
// a cancel (the device re-registered while the callback was queued) and
// the expiry must be discarded.
func (d *Debouncer) Confirm(kind string) bool {
	if _, pending := d.timers[kind]; !pending {
		return false
	}
	delete(d.timers, kind)
	return true
}

// Pending reports whether a grace timer is outstanding for kind.
func (d *Debouncer) Pending(kind string) bool {
	_, pending := d.timers[kind]
	return pending
}

// StopAll cancels every outstanding timer. Used on shutdown.
func (d *Debouncer) StopAll() {
	for kind, timer := range d.timers {
		timer.Stop()
		delete(d.timers, kind)
	}
}
