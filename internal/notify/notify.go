// Package notify fans out user-visible events (inbound messages, opt-outs)
// without blocking the webhook acknowledgment. Dispatch itself never goes
// through here; sends are driven in-process by the dispatch loop.
package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/streadway/amqp"
)

// Publisher delivers one event to a topic.
type Publisher interface {
	Publish(topic string, payload any) error
	Close() error
}

// AMQPPublisher publishes events to durable RabbitMQ queues.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	mu       sync.Mutex
	declared map[string]bool
}

func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, declared: map[string]bool{}}, nil
}

func (p *AMQPPublisher) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.declared[topic] {
		if _, err := p.ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", topic, err)
		}
		p.declared[topic] = true
	}

	return p.ch.Publish("", topic, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

func (p *AMQPPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// InMemoryPublisher dispatches events to in-process handlers. Used in tests
// and in deployments without a broker.
type InMemoryPublisher struct {
	mu       sync.Mutex
	handlers map[string][]func(payload any)
	events   map[string][]any
}

func NewInMemoryPublisher() *InMemoryPublisher {
	return &InMemoryPublisher{
		handlers: map[string][]func(payload any){},
		events:   map[string][]any{},
	}
}

// Subscribe adds a handler for a topic.
func (p *InMemoryPublisher) Subscribe(topic string, handler func(payload any)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[topic] = append(p.handlers[topic], handler)
}

func (p *InMemoryPublisher) Publish(topic string, payload any) error {
	p.mu.Lock()
	p.events[topic] = append(p.events[topic], payload)
	handlers := append([]func(payload any){}, p.handlers[topic]...)
	p.mu.Unlock()

	for _, handler := range handlers {
		handler(payload)
	}
	if len(handlers) == 0 {
		log.Printf("📩 event on %s: %+v", topic, payload)
	}
	return nil
}

// Events returns the payloads published to a topic, in order.
func (p *InMemoryPublisher) Events(topic string) []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]any{}, p.events[topic]...)
}

func (p *InMemoryPublisher) Close() error { return nil }

var (
	_ Publisher = (*AMQPPublisher)(nil)
	_ Publisher = (*InMemoryPublisher)(nil)
)
