package continuity

import "time"

// Event is one decoded advertisement delivered to subscribers.
type Event struct {
	Address   Address
	RSSI      int16
	Timestamp time.Time
	Vendor    uint16
	Frame     Frame
	// Registry is the registry Frame was decoded with. Sinks use it to
	// re-encode record payloads, including caller-registered tags.
	Registry *Registry
}
