// Package connlifecycle drives the high-watermark pause/resume protocol for
// one connection through an explicit state machine instead of the two raw
// booleans the contract implies. States: idle (accepted, not yet reading),
// reading (normal flow), paused (high watermark crossed, reads stopped),
// closed (terminal).
package connlifecycle

import (
	"context"

	"github.com/cockroachdb/errors"
	lfsm "github.com/looplab/fsm"

	"github.com/dkoosis/goarpc/internal/logging"
)

const (
	StateIdle    = "idle"
	StateReading = "reading"
	StatePaused  = "paused"
	StateClosed  = "closed"

	eventStart        = "start"
	eventHighWaterMark = "high_water_mark"
	eventDrained       = "drained"
	eventClose         = "close"
)

// Hooks are the two backpressure actions a transport supplies: StopRead is
// invoked when the connection crosses its high-watermark threshold,
// StartRead when the pending write buffer has drained back below it.
type Hooks struct {
	StopRead  func()
	StartRead func()
}

// Lifecycle is the per-connection state machine. HighWaterMark, Drained
// and Close read the current state before firing their event, and the two
// steps are not atomic: when calls race on one instance, the losing call
// finds no valid transition and returns an error without running a hook.
type Lifecycle struct {
	fsm *lfsm.FSM
	log logging.Logger
}

// New builds a Lifecycle starting in StateIdle, wiring hooks.StopRead to the
// reading→paused transition and hooks.StartRead to paused→reading.
func New(hooks Hooks, log logging.Logger) *Lifecycle {
	if log == nil {
		log = logging.GetNoopLogger()
	}
	l := &Lifecycle{log: log.WithField("component", "connlifecycle")}

	callbacks := lfsm.Callbacks{
		"enter_" + StatePaused: func(_ context.Context, e *lfsm.Event) {
			l.log.Debug("connection crossed high-water mark, pausing reads")
			if hooks.StopRead != nil {
				hooks.StopRead()
			}
		},
		"enter_" + StateReading: func(_ context.Context, e *lfsm.Event) {
			if e.Src == StatePaused {
				l.log.Debug("connection drained below high-water mark, resuming reads")
				if hooks.StartRead != nil {
					hooks.StartRead()
				}
			}
		},
	}

	l.fsm = lfsm.NewFSM(StateIdle, lfsm.Events{
		{Name: eventStart, Src: []string{StateIdle}, Dst: StateReading},
		{Name: eventHighWaterMark, Src: []string{StateReading}, Dst: StatePaused},
		{Name: eventDrained, Src: []string{StatePaused}, Dst: StateReading},
		{Name: eventClose, Src: []string{StateIdle, StateReading, StatePaused}, Dst: StateClosed},
	}, callbacks)

	return l
}

// Current returns the connection's current lifecycle state.
func (l *Lifecycle) Current() string {
	return l.fsm.Current()
}

// Start transitions idle → reading, the first read callback having fired.
func (l *Lifecycle) Start(ctx context.Context) error {
	return l.fire(ctx, eventStart)
}

// HighWaterMark transitions reading → paused and fires Hooks.StopRead. A
// call while already paused or closed is a silent no-op — the transport may
// observe the threshold being crossed more than once before it drains.
func (l *Lifecycle) HighWaterMark(ctx context.Context) error {
	if l.fsm.Current() != StateReading {
		return nil
	}
	return l.fire(ctx, eventHighWaterMark)
}

// Drained transitions paused → reading and fires Hooks.StartRead. A call
// while not paused is a silent no-op.
func (l *Lifecycle) Drained(ctx context.Context) error {
	if l.fsm.Current() != StatePaused {
		return nil
	}
	return l.fire(ctx, eventDrained)
}

// Close transitions to the terminal closed state from any non-closed state.
// Closing an already-closed connection is a no-op.
func (l *Lifecycle) Close(ctx context.Context) error {
	if l.fsm.Current() == StateClosed {
		return nil
	}
	return l.fire(ctx, eventClose)
}

func (l *Lifecycle) fire(ctx context.Context, event string) error {
	if err := l.fsm.Event(ctx, event); err != nil {
		var noTransition lfsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return nil
		}
		return errors.Wrapf(err, "connlifecycle: %s from %s", event, l.fsm.Current())
	}
	return nil
}
