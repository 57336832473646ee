package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingConn is a Sender that decodes and records every delivery.
type recordingConn struct {
	mu   sync.Mutex
	msgs []map[string]any
	fail bool
}

func (c *recordingConn) Send(data []byte) error {
	if c.fail {
		return errors.New("connection closing")
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *recordingConn) byType(msgType string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []map[string]any
	for _, m := range c.msgs {
		if m["type"] == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (c *recordingConn) countType(msgType string) int {
	return len(c.byType(msgType))
}

// tokenRecorder is a TokenSink capturing registered tokens.
type tokenRecorder struct {
	mu     sync.Mutex
	tokens []string
}

func (r *tokenRecorder) RegisterToken(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, token)
}

func testCore(t *testing.T, grace time.Duration, notifier Notifier) *Core {
	t.Helper()
	core := NewCore(Options{
		GracePeriod: grace,
		Notifier:    notifier,
	})
	t.Cleanup(core.Close)
	return core
}

func registerDevice(t *testing.T, core *Core, conn Sender, kind, displayName string) ConnectionID {
	t.Helper()
	id := core.HandleConnect(conn)
	core.HandleMessage(id, []byte(`{"type":"register-device","kind":"`+kind+`","displayName":"`+displayName+`"}`))
	return id
}

func TestCore_DeviceRegistration(t *testing.T) {
	notifier := &stubNotifier{}
	core := testCore(t, time.Minute, notifier)

	dashboard := &recordingConn{}
	core.HandleConnect(dashboard)

	device := &recordingConn{}
	registerDevice(t, core, device, "node-main-light", "Main Light")

	// Dashboards observe the online transition and the full state.
	if got := dashboard.countType(MsgTypeDeviceOnline); got != 1 {
		t.Errorf("dashboard device-online count = %d, want 1", got)
	}
	if got := dashboard.countType(MsgTypeDeviceState); got != 1 {
		t.Errorf("dashboard device-state count = %d, want 1", got)
	}

	// The device connection is not part of the dashboard audience.
	if got := len(device.byType(MsgTypeDeviceOnline)); got != 0 {
		t.Errorf("device received %d device-online broadcasts, want 0", got)
	}

	// Exactly one online notification.
	if got := notifier.count("Main Light Online"); got != 1 {
		t.Errorf("online notifications = %d, want 1", got)
	}

	state, ok := core.DeviceStateFor("node-main-light")
	if !ok {
		t.Fatal("DeviceStateFor() not found after registration")
	}
	if !state.Online {
		t.Error("Online = false after registration")
	}
}

func TestCore_ReconnectWithinGrace_IsSilent(t *testing.T) {
	notifier := &stubNotifier{}
	core := testCore(t, 60*time.Millisecond, notifier)

	dashboard := &recordingConn{}
	core.HandleConnect(dashboard)

	device := &recordingConn{}
	id := registerDevice(t, core, device, "node-proxmox", "Proxmox Node")

	core.HandleDisconnect(id)

	// Online throughout the grace window.
	if state, _ := core.DeviceStateFor("node-proxmox"); !state.Online {
		t.Error("Online = false during grace window")
	}

	// Device reboots and comes back before the window elapses.
	replacement := &recordingConn{}
	registerDevice(t, core, replacement, "node-proxmox", "Proxmox Node")

	// Give a stale timer every chance to misfire.
	time.Sleep(150 * time.Millisecond)

	if state, _ := core.DeviceStateFor("node-proxmox"); !state.Online {
		t.Error("Online = false after debounced reconnect")
	}
	if got := dashboard.countType(MsgTypeDeviceOffline); got != 0 {
		t.Errorf("offline broadcasts = %d, want 0", got)
	}
	if got := notifier.count("Proxmox Node Offline"); got != 0 {
		t.Errorf("offline notifications = %d, want 0", got)
	}
	// Only the initial registration notified; the reconnect stayed silent.
	if got := notifier.count("Proxmox Node Online"); got != 1 {
		t.Errorf("online notifications = %d, want 1", got)
	}
}

func TestCore_GraceExpiry_ReportsOfflineOnce(t *testing.T) {
	notifier := &stubNotifier{}
	core := testCore(t, 20*time.Millisecond, notifier)

	dashboard := &recordingConn{}
	core.HandleConnect(dashboard)

	device := &recordingConn{}
	id := registerDevice(t, core, device, "node-main-light", "Main Light")

	core.HandleDisconnect(id)

	if !waitFor(t, time.Second, func() bool {
		state, _ := core.DeviceStateFor("node-main-light")
		return !state.Online
	}) {
		t.Fatal("device never went offline after grace expiry")
	}

	time.Sleep(50 * time.Millisecond)

	if got := dashboard.countType(MsgTypeDeviceOffline); got != 1 {
		t.Errorf("offline broadcasts = %d, want exactly 1", got)
	}
	if got := notifier.count("Main Light Offline"); got != 1 {
		t.Errorf("offline notifications = %d, want exactly 1", got)
	}
}

func TestCore_Telemetry(t *testing.T) {
	core := testCore(t, time.Minute, nil)

	dashboard := &recordingConn{}
	core.HandleConnect(dashboard)

	device := &recordingConn{}
	id := registerDevice(t, core, device, "node-proxmox", "Proxmox Node")

	core.HandleMessage(id, []byte(`{"type":"telemetry","kind":"node-proxmox","status":"online","latency":"42","rssi":70}`))

	state, _ := core.DeviceStateFor("node-proxmox")
	if state.Status != "online" || state.LastLatencyMs != 42 || state.LastSignalStrength != 70 {
		t.Errorf("state = %+v, want status=online latency=42 rssi=70", state)
	}

	// Registration sent one device-state; telemetry sends another.
	if got := dashboard.countType(MsgTypeDeviceState); got != 2 {
		t.Errorf("dashboard device-state count = %d, want 2", got)
	}
	if got := device.countType(MsgTypeDeviceState); got != 0 {
		t.Errorf("device received %d device-state broadcasts, want 0", got)
	}
}

func TestCore_MalformedTelemetry_LeavesStateUnchanged(t *testing.T) {
	core := testCore(t, time.Minute, nil)

	device := &recordingConn{}
	id := registerDevice(t, core, device, "node-proxmox", "Proxmox Node")
	core.HandleMessage(id, []byte(`{"type":"telemetry","kind":"node-proxmox","status":"online","latency":42,"rssi":70}`))

	// Non-numeric latency is dropped at the boundary; nothing changes.
	core.HandleMessage(id, []byte(`{"type":"telemetry","kind":"node-proxmox","status":"broken","latency":"abc","rssi":1}`))

	state, _ := core.DeviceStateFor("node-proxmox")
	if state.Status != "online" || state.LastLatencyMs != 42 || state.LastSignalStrength != 70 {
		t.Errorf("state after malformed telemetry = %+v, want prior values", state)
	}
}

func TestCore_TelemetryFromUnregisteredSender_Rejected(t *testing.T) {
	core := testCore(t, time.Minute, nil)

	// A connection that never registered cannot create or mutate state.
	stranger := &recordingConn{}
	id := core.HandleConnect(stranger)
	core.HandleMessage(id, []byte(`{"type":"telemetry","kind":"node-ghost","status":"online","latency":1,"rssi":1}`))

	if _, ok := core.DeviceStateFor("node-ghost"); ok {
		t.Error("telemetry from unregistered sender created state")
	}
}

func TestCore_RoleConflict_Ignored(t *testing.T) {
	core := testCore(t, time.Minute, nil)

	device := &recordingConn{}
	id := registerDevice(t, core, device, "node-proxmox", "Proxmox Node")

	// An attempt to re-register the same socket as a different kind is
	// dropped without creating state.
	core.HandleMessage(id, []byte(`{"type":"register-device","kind":"node-main-light","displayName":"Main Light"}`))

	if _, ok := core.DeviceStateFor("node-main-light"); ok {
		t.Error("conflicting registration created state")
	}
	if state, ok := core.DeviceStateFor("node-proxmox"); !ok || !state.Online {
		t.Error("original registration disturbed by conflicting registration")
	}
}

func TestCore_IndependentDebounceTimers(t *testing.T) {
	notifier := &stubNotifier{}
	core := testCore(t, 60*time.Millisecond, notifier)

	connA := &recordingConn{}
	idA := registerDevice(t, core, connA, "kind-a", "Device A")
	connB := &recordingConn{}
	idB := registerDevice(t, core, connB, "kind-b", "Device B")

	core.HandleDisconnect(idA)
	core.HandleDisconnect(idB)

	// A reconnects within its window; B does not. Cancelling A's timer
	// must not touch B's.
	registerDevice(t, core, &recordingConn{}, "kind-a", "Device A")

	if !waitFor(t, time.Second, func() bool {
		state, _ := core.DeviceStateFor("kind-b")
		return !state.Online
	}) {
		t.Fatal("kind-b never went offline")
	}

	if state, _ := core.DeviceStateFor("kind-a"); !state.Online {
		t.Error("kind-a went offline despite reconnecting within grace")
	}
	if got := notifier.count("Device A Offline"); got != 0 {
		t.Errorf("Device A offline notifications = %d, want 0", got)
	}
	if got := notifier.count("Device B Offline"); got != 1 {
		t.Errorf("Device B offline notifications = %d, want 1", got)
	}
}

func TestCore_BroadcastCommand_TargetsOnlyMatchingDevices(t *testing.T) {
	core := testCore(t, time.Minute, nil)

	dashboard := &recordingConn{}
	core.HandleConnect(dashboard)
	light := &recordingConn{}
	registerDevice(t, core, light, "node-main-light", "Main Light")
	proxmox := &recordingConn{}
	registerDevice(t, core, proxmox, "node-proxmox", "Proxmox Node")

	sent := core.BroadcastCommand("node-proxmox", []byte(`{"type":"power","data":"on"}`))
	if sent != 1 {
		t.Errorf("BroadcastCommand() recipients = %d, want 1", sent)
	}

	if got := proxmox.countType("power"); got != 1 {
		t.Errorf("proxmox power commands = %d, want 1", got)
	}
	if got := light.countType("power"); got != 0 {
		t.Errorf("light power commands = %d, want 0", got)
	}
	if got := dashboard.countType("power"); got != 0 {
		t.Errorf("dashboard power commands = %d, want 0", got)
	}
}

func TestCore_UnrecognizedEvent_NoNotification(t *testing.T) {
	notifier := &stubNotifier{}
	core := testCore(t, time.Minute, notifier)

	device := &recordingConn{}
	id := registerDevice(t, core, device, "node-main-light", "Main Light")
	before := len(notifier.all())

	core.HandleMessage(id, []byte(`{"type":"event","kind":"node-main-light","data":"disco_mode"}`))

	if got := len(notifier.all()); got != before {
		t.Errorf("notifications = %d, want unchanged %d", got, before)
	}
}

func TestCore_DeviceEvents_TriggerNotifications(t *testing.T) {
	notifier := &stubNotifier{}
	core := testCore(t, time.Minute, notifier)

	device := &recordingConn{}
	id := registerDevice(t, core, device, "node-proxmox", "Proxmox Node")

	core.HandleMessage(id, []byte(`{"type":"event","kind":"node-proxmox","data":"server_on"}`))
	core.HandleMessage(id, []byte(`{"type":"event","kind":"node-proxmox","data":"boot_error"}`))

	if got := notifier.count("Server Online"); got != 1 {
		t.Errorf("server_on notifications = %d, want 1", got)
	}
	if got := notifier.count("Server Boot Error"); got != 1 {
		t.Errorf("boot_error notifications = %d, want 1", got)
	}
}

func TestCore_PushToken_ForwardedToSink(t *testing.T) {
	tokens := &tokenRecorder{}
	core := NewCore(Options{
		GracePeriod: time.Minute,
		Tokens:      tokens,
	})
	t.Cleanup(core.Close)

	id := core.HandleConnect(&recordingConn{})
	core.HandleMessage(id, []byte(`{"type":"push-token","token":"ExponentPushToken[abc]"}`))

	tokens.mu.Lock()
	defer tokens.mu.Unlock()
	if len(tokens.tokens) != 1 || tokens.tokens[0] != "ExponentPushToken[abc]" {
		t.Errorf("tokens = %v, want [ExponentPushToken[abc]]", tokens.tokens)
	}
}

func TestCore_NewConnectionReceivesStateSync(t *testing.T) {
	core := testCore(t, time.Minute, nil)

	registerDevice(t, core, &recordingConn{}, "node-proxmox", "Proxmox Node")
	registerDevice(t, core, &recordingConn{}, "node-main-light", "Main Light")

	// A dashboard connecting later still starts from the full picture.
	late := &recordingConn{}
	core.HandleConnect(late)

	if got := late.countType(MsgTypeDeviceState); got != 2 {
		t.Errorf("initial device-state sync count = %d, want 2", got)
	}
}

func TestCore_SendFailure_DoesNotAbortBroadcast(t *testing.T) {
	core := testCore(t, time.Minute, nil)

	dead := &recordingConn{fail: true}
	core.HandleConnect(dead)
	live := &recordingConn{}
	core.HandleConnect(live)

	registerDevice(t, core, &recordingConn{}, "node-proxmox", "Proxmox Node")

	if got := live.countType(MsgTypeDeviceOnline); got != 1 {
		t.Errorf("live dashboard device-online count = %d, want 1 despite dead peer", got)
	}
}
