package orders

const (
	TopicOrderCreated = "order.created"
	TopicOrderPaid    = "order.paid"
	TopicOrderExpired = "order.expired"
)

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

// TopicFor returns the topic and event type announcing a transition into s.
func TopicFor(s Status) (topic, eventType string) {
	switch s {
	case StatusPaid:
		return TopicOrderPaid, EventOrderPaid
	case StatusExpired:
		return TopicOrderExpired, EventOrderExpired
	default:
		return TopicOrderCreated, EventOrderCreated
	}
}
