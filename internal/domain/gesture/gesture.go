// Package gesture tracks one pointer gesture at a time and buffers the
// positions sampled while it is active.
package gesture

import "github.com/okian/circle/internal/domain/model"

// State is the phase of the tracker.
type State int

// Tracker states.
const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	default:
		return "unknown"
	}
}

// Tracker is the two-state gesture machine. The zero value is Idle.
// It is not safe for concurrent use.
type Tracker struct {
	state  State
	origin model.Point
	path   model.Path
}

// Start begins a new gesture at p, discarding any gesture in progress.
// The start position is the stroke origin and is not sampled.
func (t *Tracker) Start(p model.Point) {
	t.state = Dragging
	t.origin = p
	t.path = nil
}

// Sample appends p to the active gesture. It reports false, and does
// nothing, when no gesture is active.
func (t *Tracker) Sample(p model.Point) bool {
	if t.state != Dragging {
		return false
	}
	t.path = append(t.path, p)
	return true
}

// End finishes the active gesture and hands over its path. It reports false
// when no gesture was active.
func (t *Tracker) End() (model.Path, bool) {
	if t.state != Dragging {
		return nil, false
	}
	path := t.path
	t.path = nil
	t.state = Idle
	return path, true
}

// State returns the current phase.
func (t *Tracker) State() State { return t.state }

// Origin returns where the current or last gesture started.
func (t *Tracker) Origin() model.Point { return t.origin }

// Len returns the number of points buffered for the active gesture.
func (t *Tracker) Len() int { return len(t.path) }
