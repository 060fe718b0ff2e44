package queue

// Depths is a point-in-time view of the transport.
type Depths struct {
	Transport string `json:"transport"`
	// Live counts messages not yet acknowledged by the consumer, in flight included.
	Live int64 `json:"live"`
	// InFlight counts messages delivered but not yet acknowledged, when the transport knows.
	InFlight   int64 `json:"in_flight"`
	DeadLetter int64 `json:"dead_letter"`
}
