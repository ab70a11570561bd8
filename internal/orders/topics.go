package orders

import "strconv"

const (
	TopicOrderCreated   = "order.created"
	TopicOrderConfirmed = "order.confirmed"
	TopicOrderCanceled  = "order.canceled"
)

var LifecycleTopics = []string{TopicOrderCreated, TopicOrderConfirmed, TopicOrderCanceled}

var topicByEvent = map[string]string{
	EventOrderCreated:   TopicOrderCreated,
	EventOrderConfirmed: TopicOrderConfirmed,
	EventOrderCanceled:  TopicOrderCanceled,
}

// Partition key = order id, so every event of one order keeps its order.
func PartitionKey(orderID int64) []byte { return []byte(strconv.FormatInt(orderID, 10)) }
