/**
 * @description
 * This package provides the RabbitMQ gateway for the subscription-service.
 * The consumer connects to a topic exchange, declares a durable queue, binds
 * it to one or more routing keys and dispatches deliveries to the handler
 * registered for each key.
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go: The Go client for RabbitMQ.
 *
 * @notes
 * - Handlers return a boolean ack decision: true acknowledges the message,
 *   false negative-acknowledges it with requeue so the broker's retry
 *   policy applies. Auto-ack is disabled.
 * - Prefetch bounds the in-flight message count per consumer.
 */
package rabbitmq

import (
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultPrefetch = 10

// Handler processes one delivery body and reports whether to acknowledge it.
type Handler func(body []byte) bool

// Consumer holds the connection and channel for RabbitMQ.
type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewConsumer creates and returns a new RabbitMQ consumer.
func NewConsumer(amqpURL string) (*Consumer, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.Qos(defaultPrefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Consumer{conn: conn, ch: ch}, nil
}

// Consume declares the exchange and a durable queue, binds the queue to
// every routing key in handlers and blocks dispatching deliveries.
func (c *Consumer) Consume(exchange, queueName string, handlers map[string]Handler) error {
	err := c.ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return err
	}

	q, err := c.ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return err
	}

	for routingKey := range handlers {
		if err := c.ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
			return err
		}
	}

	msgs, err := c.ch.Consume(
		q.Name, // queue
		"",     // consumer
		false,  // auto-ack is false, we will manually acknowledge
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return err
	}

	for d := range msgs {
		log.Printf("Received a message with routing key: %s", d.RoutingKey)
		handler, ok := handlers[d.RoutingKey]
		if !ok {
			log.Printf("WARN: no handler registered for routing key %s, dropping", d.RoutingKey)
			d.Ack(false)
			continue
		}
		if handler(d.Body) {
			d.Ack(false)
		} else {
			log.Printf("Handler failed to process message. Re-queuing.")
			d.Nack(false, true)
		}
	}
	return nil
}

// Close closes the RabbitMQ channel and connection.
func (c *Consumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
