// Package relay implements the connection classification, state
// synchronization, and disconnect-debouncing core of the WoL relay hub.
//
// The hub connects two kinds of long-lived socket clients over one
// bidirectional channel: embedded device endpoints (a monitored server node,
// a smart-light controller) that report telemetry and accept commands, and
// dashboard observers (phones, browsers) that receive state broadcasts.
//
// # Architecture
//
//   - Registry: tracks the role and identity of every open connection
//   - Store: canonical per-device state derived from inbound device messages
//   - Debouncer: per-device grace timer that absorbs brief reconnects
//     (device reboots) so dashboards never see a spurious offline flap
//   - Trigger: maps state transitions and discrete device events to push
//     notification requests
//   - Core: owns all of the above and fans state changes out to the
//     connections matching a role predicate
//
// # Concurrency
//
// The Core serializes every handler (inbound message, connect, disconnect,
// grace-timer expiry) behind a single mutex, so the registry, store, and
// debouncer need no locking of their own and no handler ever observes a
// partially applied state transition. Notification delivery is dispatched
// fire-and-forget after state mutation completes; a slow notification
// gateway never blocks message processing.
//
// # Usage
//
//	core := relay.NewCore(relay.Options{
//	    GracePeriod: 10 * time.Second,
//	    Notifier:    notifier,
//	    Logger:      log,
//	})
//	defer core.Close()
//
//	id := core.HandleConnect(sender)
//	core.HandleMessage(id, payload)
//	core.HandleDisconnect(id)
package relay
