package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Constants for our RabbitMQ topology.
const (
	ProductsExchange   = "products.exchange"
	DeadLetterExchange = "products.dead.exchange"

	ProductAvailableQueue     = "products.available.queue"
	ProductAvailableDeadQueue = "products.available.dead"

	ProductAvailableRoutingKey = "product.available"

	Direct = "direct"
)

// Declarer is the part of *amqp.Channel used to declare the topology.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// DeclareTopology declares all necessary exchanges and queues.
// Declarations are idempotent, so both the publisher and every intake worker call it.
// Messages rejected without requeue land in the dead-letter queue.
func DeclareTopology(ch Declarer) error {
	exchangesToDeclare := []string{ProductsExchange, DeadLetterExchange}
	for _, name := range exchangesToDeclare {
		if err := ch.ExchangeDeclare(name, Direct, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", name, err)
		}
	}

	queueArgs := amqp.Table{
		"x-dead-letter-exchange":    DeadLetterExchange,
		"x-dead-letter-routing-key": ProductAvailableRoutingKey,
	}
	if _, err := ch.QueueDeclare(ProductAvailableQueue, true, false, false, false, queueArgs); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", ProductAvailableQueue, err)
	}
	if _, err := ch.QueueDeclare(ProductAvailableDeadQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", ProductAvailableDeadQueue, err)
	}

	if err := ch.QueueBind(ProductAvailableQueue, ProductAvailableRoutingKey, ProductsExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s to exchange %s: %w", ProductAvailableQueue, ProductsExchange, err)
	}
	if err := ch.QueueBind(ProductAvailableDeadQueue, ProductAvailableRoutingKey, DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s to exchange %s: %w", ProductAvailableDeadQueue, DeadLetterExchange, err)
	}

	return nil
}
