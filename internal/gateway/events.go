package gateway

// ConnState is the connection lifecycle state reported to the consumer.
// Transitions are driven by socket lifecycle and handshake outcome only.
type ConnState string

// Connection states.
const (
	StateIdle       ConnState = "idle"
	StateConnecting ConnState = "connecting"
	StateConnected  ConnState = "connected"
	StateError      ConnState = "error"
)

// EventKind tags the events a client emits to its consumer.
type EventKind string

// Event kinds.
const (
	// KindAssistant carries a complete assistant message.
	KindAssistant EventKind = "assistant"

	// KindAssistantDelta carries the full accumulated streaming text so far.
	// Consumers must replace their view with the carried text, not append:
	// each delta repeats everything already streamed.
	KindAssistantDelta EventKind = "assistant_delta"

	// KindAssistantDone marks the end of streaming. It carries no text;
	// the final renderable text, if any, follows as a KindAssistant event
	// and may differ from the last delta (media markers only appear there).
	KindAssistantDone EventKind = "assistant_done"

	// KindError carries an agent or gateway error message.
	KindError EventKind = "error"

	// KindInfo carries informational text for the consumer.
	KindInfo EventKind = "info"
)

// Event is one typed event emitted by the client.
type Event struct {
	Kind EventKind
	Text string
}

// Handlers receive connection state transitions and client events. Callbacks
// are invoked from the client's own goroutines and must not block; the note
// accompanies error and idle transitions with a human-readable reason.
type Handlers struct {
	OnState func(state ConnState, note string)
	OnEvent func(ev Event)
}

func (h Handlers) state(state ConnState, note string) {
	if h.OnState != nil {
		h.OnState(state, note)
	}
}

func (h Handlers) event(ev Event) {
	if h.OnEvent != nil {
		h.OnEvent(ev)
	}
}
