package domain

// Stats is the read-only snapshot served by the stats endpoint.
type Stats struct {
	Subscribers    map[string]int `json:"subscribers"`
	Rooms          int            `json:"rooms"`
	RetainedEvents int            `json:"retained_events"`
}
