package model

// Sink receives classified events. Both methods must return immediately;
// implementations drop work they cannot keep up with.
type Sink interface {
	// Push records a single event (recent buffer, statistics, persistence).
	Push(evt Event)
	// Broadcast hands a batch of events to live subscribers.
	Broadcast(events []Event)
}

// EventLog exposes the events a sink has retained in memory.
type EventLog interface {
	Recent(model string, n int) []Event
	Stats(model string) map[string]int
}
