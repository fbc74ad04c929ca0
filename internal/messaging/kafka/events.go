package kafka

// DefaultTopicCartEvents: топик событий корзины по умолчанию.
const DefaultTopicCartEvents = "shopcart.cart.events"

// Kafka headers сообщений о корзине.
const (
	HeaderEventType   = "x-event-type"
	HeaderCartVersion = "x-cart-version"
	HeaderContentType = "content-type"
)

const contentTypeJSON = "application/json"
