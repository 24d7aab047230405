package orders

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status.changed"
	TopicRefundRequested    = "refund.requested"
	TopicRefundSettled      = "refund.settled"
)

// Partition key = order_id, so every event of one order keeps its ordering.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
