package audit

import (
	"sync"
	"time"
)

// DefaultAnomalyThresholds maps event types to the number of occurrences per
// user per rolling minute that trips an anomaly event. The thresholds mirror
// the kinds of abuse the product has actually seen: credential stuffing,
// bulk scraping of client data and mass exports.
var DefaultAnomalyThresholds = map[string]int{
	EventLoginFailure:        8,
	EventSensitiveDataAccess: 30,
	EventDataExport:          10,
	EventUnauthorizedAccess:  15,
}

const anomalyWindow = time.Minute

// anomalyWindowState tracks one (user, event type) pair within the current window.
type anomalyWindowState struct {
	count       int
	windowStart time.Time
	flagged     bool
}

// anomalyDetector watches the audit stream for per-user event bursts.
// It replaces the original passive client probes with something a backend
// can actually observe: the events themselves.
type anomalyDetector struct {
	mu         sync.Mutex
	thresholds map[string]int
	windows    map[string]*anomalyWindowState
}

func newAnomalyDetector(thresholds map[string]int) *anomalyDetector {
	if thresholds == nil {
		thresholds = DefaultAnomalyThresholds
	}
	return &anomalyDetector{
		thresholds: thresholds,
		windows:    make(map[string]*anomalyWindowState),
	}
}

// observe counts the event against its (user, type) window and returns an
// anomaly event the first time the threshold is crossed in a window.
// Returns nil for untracked event types and for anonymous events.
func (d *anomalyDetector) observe(event *Event) *Event {
	threshold, tracked := d.thresholds[event.Type]
	if !tracked || threshold <= 0 || event.UserID == "" {
		return nil
	}

	now := time.Now()
	key := event.UserID + ":" + event.Type

	d.mu.Lock()
	defer d.mu.Unlock()

	w := d.windows[key]
	if w == nil || now.Sub(w.windowStart) > anomalyWindow {
		w = &anomalyWindowState{windowStart: now}
		d.windows[key] = w

		// Opportunistic purge keeps the map bounded without a dedicated
		// cleanup goroutine; the detector only grows with active users.
		if len(d.windows) > 4096 {
			for k, s := range d.windows {
				if now.Sub(s.windowStart) > anomalyWindow {
					delete(d.windows, k)
				}
			}
		}
	}

	w.count++
	if w.count < threshold || w.flagged {
		return nil
	}
	w.flagged = true

	return &Event{
		Type:      EventAnomalyDetected,
		UserID:    event.UserID,
		SessionID: event.SessionID,
		RequestID: event.RequestID,
		IPAddress: event.IPAddress,
		UserAgent: event.UserAgent,
		RiskLevel: RiskHigh,
		Action:    event.Type,
		Details: map[string]any{
			"event_type": event.Type,
			"count":      w.count,
			"threshold":  threshold,
			"window":     anomalyWindow.String(),
		},
	}
}
