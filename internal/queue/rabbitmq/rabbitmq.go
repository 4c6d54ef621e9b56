// Package rabbitmq implements the dispatch queue on RabbitMQ.
//
// Topology: a durable work queue, plus "<name>.retry" whose messages carry a
// per-message expiration and are dead-lettered back to the work queue. The
// attempt number travels in the x-attempt header.
package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	amqp "github.com/rabbitmq/amqp091-go"

	"fileflow/internal/model"
	"fileflow/internal/queue"
)

const (
	attemptHeader = "x-attempt"
	retrySuffix   = ".retry"
	maxDialTries  = 10
)

// Queue is a queue.Queue over one AMQP connection. Publishing uses its own
// confirm-mode channel so a nil error means the broker accepted the message.
type Queue struct {
	conn     *amqp.Connection
	pubCh    *amqp.Channel
	pubMu    sync.Mutex
	name     string
	retry    string
	prefetch int
	log      *slog.Logger

	// Consumer channels stay open after ctx is done so in-flight deliveries can still be settled.
	consMu    sync.Mutex
	consumers []*amqp.Channel
}

var _ queue.Queue = (*Queue)(nil)

// Dial connects with exponential backoff and declares the topology.
func Dial(ctx context.Context, url, name string, prefetch int, log *slog.Logger) (*Queue, error) {
	log = log.With("component", "rabbitmq", "queue", name)

	conn, err := backoff.Retry(ctx, func() (*amqp.Connection, error) {
		return amqp.Dial(url)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxDialTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("rabbitmq dial failed", "error", err, "retry_in", next.String())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	q := &Queue{
		conn:     conn,
		name:     name,
		retry:    name + retrySuffix,
		prefetch: prefetch,
		log:      log,
	}
	if err := q.setup(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	log.Info("connected to rabbitmq")
	return q, nil
}

func (q *Queue) setup() error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := declare(ch, q.name, q.retry); err != nil {
		return err
	}
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("enable publisher confirms: %w", err)
	}
	q.pubCh = ch
	return nil
}

func declare(ch *amqp.Channel, name, retry string) error {
	if _, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	if _, err := ch.QueueDeclare(
		retry,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": name,
		},
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", retry, err)
	}
	return nil
}

// Publish sends a first-attempt message and waits for the broker confirm.
func (q *Queue) Publish(ctx context.Context, msg model.WorkMessage) error {
	body, err := queue.Encode(msg)
	if err != nil {
		return err
	}
	return q.publish(ctx, q.name, newPublishing(body, 1, 0))
}

func newPublishing(body []byte, attempt int, delay time.Duration) amqp.Publishing {
	p := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{attemptHeader: int32(attempt)},
		Body:         body,
	}
	if delay > 0 {
		p.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}
	return p
}

func (q *Queue) publish(ctx context.Context, key string, p amqp.Publishing) error {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()

	dc, err := q.pubCh.PublishWithDeferredConfirmWithContext(ctx, "", key, false, false, p)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", key, err)
	}
	ok, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("confirm publish to %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("publish to %s: broker nacked message", key)
	}
	return nil
}

// Consume opens a dedicated channel with prefetch set to the worker concurrency.
func (q *Queue) Consume(ctx context.Context) (<-chan queue.Delivery, error) {
	ch, err := q.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}
	if err := ch.Qos(q.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx,
		q.name,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("register consumer: %w", err)
	}
	q.consMu.Lock()
	q.consumers = append(q.consumers, ch)
	q.consMu.Unlock()

	out := make(chan queue.Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					q.log.Warn("rabbitmq delivery channel closed")
					return
				}
				select {
				case out <- &delivery{q: q, d: m}:
				case <-ctx.Done():
					_ = m.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes consumer channels, the publish channel and the connection.
// Unsettled deliveries are returned to the queue by the broker.
func (q *Queue) Close() error {
	q.consMu.Lock()
	for _, ch := range q.consumers {
		_ = ch.Close()
	}
	q.consumers = nil
	q.consMu.Unlock()

	if q.pubCh != nil {
		_ = q.pubCh.Close()
	}
	if q.conn != nil && !q.conn.IsClosed() {
		return q.conn.Close()
	}
	return nil
}

type delivery struct {
	q *Queue
	d amqp.Delivery
}

func (d *delivery) Body() []byte { return d.d.Body }

func (d *delivery) Attempt() int {
	return attemptOf(d.d.Headers)
}

func attemptOf(h amqp.Table) int {
	switch v := h[attemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case int16:
		return int(v)
	case int8:
		return int(v)
	}
	return 1
}

func (d *delivery) Ack() error {
	return d.d.Ack(false)
}

func (d *delivery) Reject() error {
	return d.d.Nack(false, false)
}

// Retry parks a copy in the retry queue, then acks the original. If parking
// fails the original is requeued unchanged.
func (d *delivery) Retry(delay time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := newPublishing(d.d.Body, d.Attempt()+1, delay)
	if err := d.q.publish(ctx, d.q.retry, p); err != nil {
		_ = d.d.Nack(false, true)
		return err
	}
	return d.d.Ack(false)
}
