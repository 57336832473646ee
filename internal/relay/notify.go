package relay

// Notifier is the external notification gateway collaborator. Delivery is
// fire-and-forget: implementations must not block the caller and must
// swallow (and log) their own failures. A nil Notifier on the Core means
// notifications are unconfigured and every trigger is a no-op.
type Notifier interface {
	Notify(title string)
}

// eventTitles maps discrete device-reported event values to notification
// titles. Values outside this table are logged and produce nothing.
var eventTitles = map[string]string{
	"server_on":  "Server Online",
	"server_off": "Server Offline",
	"boot_error": "Server Boot Error",
}

// Trigger decides, from state transitions and discrete device events,
// whether and with what content a notification is requested from the
// gateway. It never observes delivery outcome.
type Trigger struct {
	notifier Notifier
	logger   Logger
}

// NewTrigger creates a notification trigger. notifier may be nil.
func NewTrigger(notifier Notifier, logger Logger) *Trigger {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Trigger{notifier: notifier, logger: logger}
}

// DeviceOnline requests a "{displayName} Online" notification. Callers
// suppress this for debounced reconnects, where the dashboard never
// observed an offline transition.
func (t *Trigger) DeviceOnline(displayName string) {
	t.request(displayName + " Online")
}

// DeviceOffline requests a "{displayName} Offline" notification after a
// grace window elapses with no reconnect.
func (t *Trigger) DeviceOffline(displayName string) {
	t.request(displayName + " Offline")
}

// DeviceEvent maps a discrete device-reported event to its notification.
// Unrecognized event values are logged and produce no notification; this
// is expected traffic, not an error.
func (t *Trigger) DeviceEvent(kind, data string) {
	title, ok := eventTitles[data]
	if !ok {
		t.logger.Debug("unrecognized device event", "kind", kind, "event", data)
		return
	}
	t.request(title)
}

func (t *Trigger) request(title string) {
	if t.notifier == nil {
		return
	}
	t.logger.Debug("notification requested", "title", title)
	t.notifier.Notify(title)
}
