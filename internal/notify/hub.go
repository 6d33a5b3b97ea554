// Package notify fans progress updates out to websocket subscribers.
package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// DefaultThrottleInterval is the minimum spacing between non-critical
// updates for one comparison id.
const DefaultThrottleInterval = 500 * time.Millisecond

// Update is the progress payload sent to transport subscribers.
// CurrentStep duplicates Step for consumers still on the legacy field name.
type Update struct {
	Type         string  `json:"type"` // "progress" or "error"
	ComparisonID string  `json:"comparison_id"`
	Step         string  `json:"step"`
	CurrentStep  string  `json:"current_step"` // legacy alias for step
	Status       string  `json:"status"`       // processing, completed, failed
	Progress     float64 `json:"progress"`
	Message      string  `json:"message,omitempty"`
}

// critical reports whether the update must bypass throttling.
func (u Update) critical() bool {
	return u.Type == "error" ||
		u.Status == "completed" || u.Status == "failed" ||
		u.Progress == 0 || u.Progress == 100
}

// Sink receives updates. Websocket connections are wrapped into sinks; tests
// may attach their own.
type Sink interface {
	Send(Update) error
}

// Hub is the process-lifetime connection manager for progress notifications.
// Non-critical updates are throttled per comparison id: only the latest
// pending payload is kept and flushed once the interval elapses. Delivery is
// fire-and-forget.
type Hub struct {
	interval time.Duration
	log      *logrus.Entry

	mu       sync.Mutex
	sinks    map[Sink]bool
	lastSent map[string]time.Time
	pending  map[string]Update
	timers   map[string]*time.Timer
}

// NewHub creates a Hub. A non-positive interval falls back to the default.
func NewHub(interval time.Duration) *Hub {
	if interval <= 0 {
		interval = DefaultThrottleInterval
	}
	return &Hub{
		interval: interval,
		log:      logrus.WithField("component", "notify"),
		sinks:    make(map[Sink]bool),
		lastSent: make(map[string]time.Time),
		pending:  make(map[string]Update),
		timers:   make(map[string]*time.Timer),
	}
}

// Attach registers a sink for future updates.
func (h *Hub) Attach(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks[s] = true
}

// Detach removes a previously attached sink.
func (h *Hub) Detach(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sinks, s)
}

// Publish delivers an update to all sinks, applying per-id throttling to
// non-critical updates.
func (h *Hub) Publish(u Update) {
	u.CurrentStep = u.Step

	h.mu.Lock()
	defer h.mu.Unlock()

	id := u.ComparisonID

	if u.critical() {
		// Critical updates flush immediately and supersede anything pending.
		h.dropPendingLocked(id)
		h.sendLocked(u)
		if u.Status == "completed" || u.Status == "failed" {
			// The comparison is finished; its throttle state is dead.
			delete(h.lastSent, id)
		}
		return
	}

	if elapsed := time.Since(h.lastSent[id]); elapsed >= h.interval {
		// A direct send supersedes anything still pending for this id.
		h.dropPendingLocked(id)
		h.sendLocked(u)
		return
	}

	// Within the throttle window: retain only the latest payload and arm a
	// flush timer if one is not already running.
	h.pending[id] = u
	if _, armed := h.timers[id]; !armed {
		wait := h.interval - time.Since(h.lastSent[id])
		h.timers[id] = time.AfterFunc(wait, func() { h.flush(id) })
	}
}

// flush delivers the pending update for id, if any.
func (h *Hub) flush(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.timers, id)
	u, ok := h.pending[id]
	if !ok {
		return
	}
	delete(h.pending, id)
	h.sendLocked(u)
}

// dropPendingLocked cancels any pending update and timer for id.
func (h *Hub) dropPendingLocked(id string) {
	if t, ok := h.timers[id]; ok {
		t.Stop()
		delete(h.timers, id)
	}
	delete(h.pending, id)
}

// sendLocked delivers to all sinks. Send errors are logged and otherwise
// ignored; a broken subscriber must not affect the run.
func (h *Hub) sendLocked(u Update) {
	h.lastSent[u.ComparisonID] = time.Now()
	for s := range h.sinks {
		if err := s.Send(u); err != nil {
			h.log.WithError(err).Debug("dropping notification")
		}
	}
}

// SinkCount returns the number of attached sinks.
func (h *Hub) SinkCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sinks)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// wsSink adapts a websocket connection into a Sink.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Send(u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(u)
}

// ServeHTTP upgrades the request to a websocket subscription that lives
// until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sink := &wsSink{conn: conn}
	h.Attach(sink)
	defer h.Detach(sink)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
