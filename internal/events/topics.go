package events

// Topic constants for domain events emitted by the checkout service.
const (
	TopicOrderPaid         = "order.paid"
	TopicPaymentFailed     = "payment.failed"
	TopicPaymentSuspicious = "payment.suspicious"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicOrderPaid,
		TopicPaymentFailed,
		TopicPaymentSuspicious,
	}
}

// Known reports whether topic is one of DefaultTopics.
func Known(topic string) bool {
	for _, t := range DefaultTopics() {
		if t == topic {
			return true
		}
	}
	return false
}
