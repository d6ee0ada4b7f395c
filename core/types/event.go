package types

// Event represents a typed event emitted by the settlement core while
// applying a state-changing call.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}
