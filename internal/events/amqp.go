package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"floorpos/backend/internal/domain"
)

const exchangeName = "floorpos.events"

// AMQPChannel broadcasts station events through a RabbitMQ fanout exchange.
// Every station publishes to the same exchange; each subscriber consumes from
// its own exclusive queue so all stations see all events.
type AMQPChannel struct {
	url string

	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	acks   <-chan amqp.Confirmation
	closed bool
}

func DialAMQP(url string) (*AMQPChannel, error) {
	c := &AMQPChannel{url: url}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *AMQPChannel) connect() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err := ch.ExchangeDeclare(exchangeName, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	// Publisher confirms so a lost broker surfaces as an error, not silence.
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	c.conn = conn
	c.ch = ch
	c.acks = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return nil
}

func (c *AMQPChannel) Publish(ctx context.Context, event domain.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("event channel is closed")
	}

	if err := c.ch.PublishWithContext(ctx, exchangeName, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now(),
		Body:         body,
	}); err != nil {
		return err
	}

	select {
	case conf := <-c.acks:
		if !conf.Ack {
			return errors.New("publish NACK from broker")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe starts a consumer goroutine with its own connection and a
// reconnect loop. Cancel stops the loop and tears the consumer down.
func (c *AMQPChannel) Subscribe(handler Handler) func() {
	done := make(chan struct{})
	go c.consumeLoop(handler, done)
	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

func (c *AMQPChannel) consumeLoop(handler Handler, done <-chan struct{}) {
	backoff := time.Second
	for {
		select {
		case <-done:
			return
		default:
		}

		if err := c.consumeOnce(handler, done); err != nil {
			log.Printf("[events] consume loop ended: %v; reconnecting in %s", err, backoff)
			select {
			case <-done:
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		return
	}
}

func (c *AMQPChannel) consumeOnce(handler Handler, done <-chan struct{}) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.ExchangeDeclare(exchangeName, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchangeName, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-done:
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			var event domain.Event
			if err := json.Unmarshal(d.Body, &event); err != nil {
				log.Printf("[events] drop malformed event: %v", err)
				continue
			}
			handler(event)
		}
	}
}

func (c *AMQPChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
