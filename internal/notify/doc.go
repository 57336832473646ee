// Package notify delivers push notifications to registered mobile
// observers through the Expo push gateway.
//
// The package has three layers:
//
//   - Repository persists push tokens in SQLite so notifications survive
//     restarts. Tokens are upserted on value, so re-registration from the
//     same handset never produces duplicates.
//   - Gateway speaks the Expo push HTTP API: one POST per notification,
//     fanning a title out to every registered token.
//   - Service ties the two together and implements the relay's Notifier
//     and TokenSink contracts. Notification dispatch is fire-and-forget:
//     Notify returns immediately and delivery failures are logged, never
//     propagated back into the relay's handler path.
package notify
