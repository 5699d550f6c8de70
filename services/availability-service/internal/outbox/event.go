package outbox

// Event is the envelope written to the outbox table in the same transaction as the state
// change. The Kafka topic equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const EventJobBooked = "booking.job.booked.v1"
