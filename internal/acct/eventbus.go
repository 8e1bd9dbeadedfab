package acct

import (
	"github.com/ocx/greyd/internal/events"
)

// EventBusSink republishes accounting events onto an in-process
// events.EventBus, which internal/admin's websocket handler subscribes
// to for the live verdict feed (see internal/websocket/dag_streamer.go
// for the subscribe/fan-out idiom this is modeled on).
type EventBusSink struct {
	bus    *events.EventBus
	source string
}

// NewEventBusSink wires a sink that emits CloudEvents of type
// "com.greyd.acct.<kind>" onto bus.
func NewEventBusSink(bus *events.EventBus, source string) *EventBusSink {
	return &EventBusSink{bus: bus, source: source}
}

// Log is a no-op: the event bus carries accounting events only, to keep
// the live feed free of routine log noise.
func (e *EventBusSink) Log(level Level, message string) {}

func (e *EventBusSink) Acct(kind EventKind, message string) {
	e.bus.Emit("com.greyd.acct."+kind.String(), e.source, "", map[string]interface{}{
		"kind":    kind.String(),
		"message": message,
	})
}
