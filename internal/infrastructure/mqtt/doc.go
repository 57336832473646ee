// Package mqtt wraps paho.mqtt.golang for the hub's optional broker
// integration.
//
// When enabled, the hub mirrors canonical device state onto retained
// topics so home-automation consumers can read it without speaking the
// WebSocket protocol, and accepts device commands published to the
// command topics.
//
// Topic layout (see topics.go):
//
//	wolhub/device/{kind}/state    retained device state (JSON)
//	wolhub/command/{kind}         inbound commands for one device kind
//	wolhub/system/status          hub online/offline status (retained, LWT)
//
// The client reconnects automatically with exponential backoff and
// restores subscriptions on reconnect. All methods are safe for
// concurrent use.
package mqtt
