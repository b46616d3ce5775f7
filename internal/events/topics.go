package events

const (
	TopicOrderPlaced        = "order.placed"
	TopicOrderStatusChanged = "order.status.changed"
	TopicStockChanged       = "inventory.stock.changed"
)

// Partition key = order id for order events and variant id for stock events,
// so every event of one aggregate keeps its order on a single partition.
func PartitionKey(id string) []byte { return []byte(id) }
