package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mihai-mura/wolhub/internal/infrastructure/config"
	"github.com/mihai-mura/wolhub/internal/infrastructure/logging"
	"github.com/mihai-mura/wolhub/internal/relay"
)

// nullSender satisfies relay.Sender for seeding device state in tests.
type nullSender struct{}

func (nullSender) Send([]byte) error { return nil }

type stubNotifier struct {
	mu     sync.Mutex
	titles []string
}

func (n *stubNotifier) Notify(title string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.titles = append(n.titles, title)
}

func newTestServer(t *testing.T, notifier Notifier) (*Server, *relay.Core) {
	t.Helper()

	core := relay.NewCore(relay.Options{GracePeriod: time.Minute})
	t.Cleanup(core.Close)

	s, err := New(Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 5000},
		WS:       config.WebSocketConfig{Path: "/ws", MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:   logging.Default(),
		Core:     core,
		Notifier: notifier,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, core
}

// seedDevice registers a device connection so state exists for REST reads.
func seedDevice(t *testing.T, core *relay.Core, kind, displayName string) {
	t.Helper()
	id := core.HandleConnect(nullSender{})
	core.HandleMessage(id, []byte(`{"type":"register-device","kind":"`+kind+`","displayName":"`+displayName+`"}`))
}

func TestNew_RequiresCore(t *testing.T) {
	_, err := New(Deps{Logger: logging.Default()})
	if err == nil {
		t.Error("New() without core succeeded, want error")
	}
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	srv := httptest.NewServer(s.buildRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
}

func TestHandleListDevices(t *testing.T) {
	s, core := newTestServer(t, nil)
	seedDevice(t, core, "node-proxmox", "Proxmox Node")
	seedDevice(t, core, "node-main-light", "Main Light")

	srv := httptest.NewServer(s.buildRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/devices")
	if err != nil {
		t.Fatalf("GET /devices error = %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Devices []relay.DeviceState `json:"devices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.Devices) != 2 {
		t.Errorf("devices = %d, want 2", len(body.Devices))
	}
}

func TestHandleGetDevice(t *testing.T) {
	s, core := newTestServer(t, nil)
	seedDevice(t, core, "node-proxmox", "Proxmox Node")

	srv := httptest.NewServer(s.buildRouter())
	defer srv.Close()

	t.Run("known kind", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/v1/devices/node-proxmox")
		if err != nil {
			t.Fatalf("GET error = %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}
		var state relay.DeviceState
		if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
		if state.DisplayName != "Proxmox Node" || !state.Online {
			t.Errorf("state = %+v", state)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/v1/devices/node-ghost")
		if err != nil {
			t.Fatalf("GET error = %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", resp.StatusCode)
		}
	})
}

func TestHandlePowerCommand(t *testing.T) {
	s, core := newTestServer(t, nil)
	seedDevice(t, core, "node-proxmox", "Proxmox Node")

	srv := httptest.NewServer(s.buildRouter())
	defer srv.Close()

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
	}{
		{"power on", "/api/v1/devices/node-proxmox/power", `{"data":"on"}`, http.StatusOK},
		{"power off", "/api/v1/devices/node-proxmox/power", `{"data":"off"}`, http.StatusOK},
		{"invalid data", "/api/v1/devices/node-proxmox/power", `{"data":"reboot"}`, http.StatusBadRequest},
		{"malformed body", "/api/v1/devices/node-proxmox/power", `{`, http.StatusBadRequest},
		{"unknown kind", "/api/v1/devices/node-ghost/power", `{"data":"on"}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+tt.path, "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST error = %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestHandleActionCommand(t *testing.T) {
	s, core := newTestServer(t, nil)
	seedDevice(t, core, "node-main-light", "Main Light")

	srv := httptest.NewServer(s.buildRouter())
	defer srv.Close()

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"night mode", "/api/v1/devices/node-main-light/actions/night-mode", http.StatusOK},
		{"brightness up", "/api/v1/devices/node-main-light/actions/brightness-up", http.StatusOK},
		{"unknown action", "/api/v1/devices/node-main-light/actions/self-destruct", http.StatusBadRequest},
		{"unknown kind", "/api/v1/devices/node-ghost/actions/night-mode", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+tt.path, "application/json", nil)
			if err != nil {
				t.Fatalf("POST error = %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestHandleNotificationTest(t *testing.T) {
	t.Run("with notifier", func(t *testing.T) {
		notifier := &stubNotifier{}
		s, _ := newTestServer(t, notifier)
		srv := httptest.NewServer(s.buildRouter())
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/api/v1/notifications/test", "application/json", nil)
		if err != nil {
			t.Fatalf("POST error = %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusAccepted {
			t.Errorf("status = %d, want 202", resp.StatusCode)
		}
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		if len(notifier.titles) != 1 || notifier.titles[0] != "Test Notification" {
			t.Errorf("notifications = %v", notifier.titles)
		}
	})

	t.Run("no notifier configured", func(t *testing.T) {
		s, _ := newTestServer(t, nil)
		srv := httptest.NewServer(s.buildRouter())
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/api/v1/notifications/test", "application/json", nil)
		if err != nil {
			t.Fatalf("POST error = %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", resp.StatusCode)
		}
	})
}
