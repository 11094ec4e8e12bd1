// Package telemetry implements the crash-safe observer fan-out of
// §4.9: broadcasting a snapshot to a set of observers, removing any
// that fail only after iteration completes so the canonical set is
// never mutated mid-traversal (§9's "collect failures into a side
// list, reconcile after" guidance).
//
// The observer-registration shape (register/unregister channels
// serviced by a dedicated run loop) is grounded directly on the
// teacher's internal/websocket-hub.Hub.
package telemetry

import (
	"log"
	"sync"
)

// Observer is any sink capable of receiving a telemetry frame.
// Implementations (e.g. a WebSocket client) decide what "send" means;
// IsAlive lets a dead observer be skipped without attempting a send.
type Observer interface {
	Send(payload []byte) error
	IsAlive() bool
}

// Snapshot is the telemetry shape of §6.2, broadcast on every tick and
// on lifecycle transitions.
type Snapshot struct {
	Lifecycle       string  `json:"lifecycle"`
	ProfileName     string  `json:"profile_name,omitempty"`
	Temperature     float64 `json:"temperature"`
	Target          float64 `json:"target"`
	HeatRateActual  float64 `json:"heat_rate_actual"`
	HeatRateTarget  float64 `json:"heat_rate_target"`
	ActuatorDuty    float64 `json:"actuator_duty"`
	SegmentIndex    int     `json:"segment_index"`
	SegmentPhase    string  `json:"segment_phase"`
	ProgressPercent float64 `json:"progress_percent"`
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
	ETASeconds      float64 `json:"eta_seconds"`
	AccumulatedCost float64 `json:"accumulated_cost"`
	Currency        string  `json:"currency"`
	Unit            string  `json:"unit"`
	LastError       string  `json:"last_error,omitempty"`
}

// Marshaler encodes a Snapshot into the wire bytes sent to observers;
// the core stays encoding-agnostic (§6.2: "shape, not encoding").
type Marshaler func(Snapshot) ([]byte, error)

// Backlog is the "current profile summary plus the live
// temperature/target series for the in-progress run" an observer may
// request on connect (§4.9).
type Backlog struct {
	Snapshot Snapshot
	Series   []BacklogPoint
}

// BacklogPoint is one entry of the in-progress run's live series.
type BacklogPoint struct {
	RuntimeSeconds float64 `json:"t"`
	Temperature    float64 `json:"temp"`
	Target         float64 `json:"target"`
}

// Fanout maintains the observer set and serializes all registration
// and broadcast activity onto a single run loop, exactly as the
// teacher's Hub does for WebSocket clients.
type Fanout struct {
	marshal Marshaler

	register   chan Observer
	unregister chan Observer
	broadcast  chan Snapshot
	stop       chan struct{}

	infoLog *log.Logger
	errLog  *log.Logger

	mu           sync.RWMutex
	observers    map[Observer]bool
	lastSnapshot Snapshot
	series       []BacklogPoint
}

// NewFanout constructs a Fanout. Call Run on its own goroutine.
func NewFanout(marshal Marshaler, infoLog, errLog *log.Logger) *Fanout {
	return &Fanout{
		marshal:    marshal,
		register:   make(chan Observer),
		unregister: make(chan Observer),
		broadcast:  make(chan Snapshot, 1),
		stop:       make(chan struct{}),
		infoLog:    infoLog,
		errLog:     errLog,
		observers:  make(map[Observer]bool),
	}
}

// Register adds an observer to the fan-out.
func (f *Fanout) Register(o Observer) { f.register <- o }

// Unregister removes an observer from the fan-out.
func (f *Fanout) Unregister(o Observer) { f.unregister <- o }

// Broadcast is best-effort: if the run loop's queue is full (a
// previous snapshot hasn't been dispatched yet), the new snapshot
// replaces it rather than blocking the control thread (§4.6's
// backpressure rule applied one level up: the control thread never
// waits on telemetry).
func (f *Fanout) Broadcast(snap Snapshot) {
	select {
	case f.broadcast <- snap:
	default:
		select {
		case <-f.broadcast:
		default:
		}
		select {
		case f.broadcast <- snap:
		default:
		}
	}
}

// RecordSeriesPoint appends a point to the in-progress run's live
// series, consulted by GetBacklog.
func (f *Fanout) RecordSeriesPoint(p BacklogPoint) {
	f.mu.Lock()
	f.series = append(f.series, p)
	f.mu.Unlock()
}

// ResetSeries clears the live series, called on every RUNNING start.
func (f *Fanout) ResetSeries() {
	f.mu.Lock()
	f.series = nil
	f.mu.Unlock()
}

// GetBacklog returns the current snapshot plus live series for a
// newly connected observer (§4.9, §9: "send one summary message, then
// forward every subsequent broadcast").
func (f *Fanout) GetBacklog() Backlog {
	f.mu.RLock()
	defer f.mu.RUnlock()
	series := make([]BacklogPoint, len(f.series))
	copy(series, f.series)
	return Backlog{Snapshot: f.lastSnapshot, Series: series}
}

// Run services registration and broadcast traffic until Stop is
// called. Intended to run on its own goroutine (§5).
func (f *Fanout) Run() {
	if f.infoLog != nil {
		f.infoLog.Println("telemetry: starting fan-out run loop")
	}
	for {
		select {
		case o := <-f.register:
			f.mu.Lock()
			f.observers[o] = true
			f.mu.Unlock()
			if f.infoLog != nil {
				f.infoLog.Println("telemetry: registered observer")
			}

		case o := <-f.unregister:
			f.mu.Lock()
			delete(f.observers, o)
			f.mu.Unlock()

		case snap := <-f.broadcast:
			f.mu.Lock()
			f.lastSnapshot = snap
			f.mu.Unlock()
			f.dispatch(snap)

		case <-f.stop:
			if f.infoLog != nil {
				f.infoLog.Println("telemetry: stopped fan-out run loop")
			}
			return
		}
	}
}

// dispatch iterates a point-in-time snapshot of the observer set,
// collecting failures into a side list, and reconciles the canonical
// set only after iteration completes (§4.9, §9).
func (f *Fanout) dispatch(snap Snapshot) {
	payload, err := f.marshal(snap)
	if err != nil {
		if f.errLog != nil {
			f.errLog.Printf("telemetry: failed to marshal snapshot: %s\n", err.Error())
		}
		return
	}

	f.mu.RLock()
	current := make([]Observer, 0, len(f.observers))
	for o := range f.observers {
		current = append(current, o)
	}
	f.mu.RUnlock()

	var failed []Observer
	for _, o := range current {
		if !o.IsAlive() {
			failed = append(failed, o)
			continue
		}
		if err := o.Send(payload); err != nil {
			failed = append(failed, o)
		}
	}

	if len(failed) == 0 {
		return
	}
	f.mu.Lock()
	for _, o := range failed {
		delete(f.observers, o)
	}
	f.mu.Unlock()
	if f.infoLog != nil {
		f.infoLog.Printf("telemetry: dropped %d failed observer(s)\n", len(failed))
	}
}

// Stop shuts down the run loop.
func (f *Fanout) Stop() { close(f.stop) }

// Count returns the number of currently registered observers (used by
// tests exercising observer churn, §8 scenario 6).
func (f *Fanout) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.observers)
}
