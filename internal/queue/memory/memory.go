// Package memory is an in-process dispatch queue for local runs and tests.
package memory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"fileflow/internal/model"
	"fileflow/internal/queue"
)

// ErrSettled is returned when a delivery is acknowledged twice.
var ErrSettled = errors.New("delivery already settled")

type envelope struct {
	body    []byte
	attempt int
}

// Queue is a buffered channel with timer-based delayed retries.
type Queue struct {
	ch  chan envelope
	log *slog.Logger

	mu       sync.Mutex
	closed   bool
	acked    int
	rejected int
	retried  int
	dropped  int
}

type Option func(*Queue)

// WithLogger sets the logger for messages the queue has to drop.
func WithLogger(log *slog.Logger) Option {
	return func(q *Queue) { q.log = log.With("component", "memory_queue") }
}

// New creates a queue holding up to buffer undelivered messages.
func New(buffer int, opts ...Option) *Queue {
	if buffer <= 0 {
		buffer = 1024
	}
	q := &Queue{
		ch:  make(chan envelope, buffer),
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

var _ queue.Queue = (*Queue)(nil)

func (q *Queue) Publish(ctx context.Context, msg model.WorkMessage) error {
	body, err := queue.Encode(msg)
	if err != nil {
		return err
	}
	return q.push(ctx, envelope{body: body, attempt: 1})
}

// PublishRaw enqueues an arbitrary body, bypassing validation.
func (q *Queue) PublishRaw(ctx context.Context, body []byte) error {
	return q.push(ctx, envelope{body: body, attempt: 1})
}

func (q *Queue) push(ctx context.Context, env envelope) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return queue.ErrClosed
	}
	select {
	case q.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) Consume(ctx context.Context) (<-chan queue.Delivery, error) {
	out := make(chan queue.Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case env := <-q.ch:
				d := &delivery{q: q, env: env}
				select {
				case out <- d:
				case <-ctx.Done():
					// Put it back for the next consumer.
					q.requeue(env)
					return
				}
			}
		}
	}()
	return out, nil
}

func (q *Queue) requeue(env envelope) {
	select {
	case q.ch <- env:
	default:
		q.drop(env, "requeue", errors.New("buffer full"))
	}
}

func (q *Queue) drop(env envelope, op string, err error) {
	q.log.Error("message dropped", "op", op, "attempt", env.attempt, "error", err)
	q.mu.Lock()
	q.dropped++
	q.mu.Unlock()
}

// Dropped reports how many messages were lost on requeue or retry.
func (q *Queue) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Len reports the number of messages waiting for a consumer.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Stats reports how deliveries were settled so far.
func (q *Queue) Stats() (acked, retried, rejected int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.acked, q.retried, q.rejected
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

type delivery struct {
	q   *Queue
	env envelope

	once sync.Once
}

func (d *delivery) Body() []byte { return d.env.body }

func (d *delivery) Attempt() int { return d.env.attempt }

func (d *delivery) settle(fn func()) error {
	err := ErrSettled
	d.once.Do(func() {
		d.q.mu.Lock()
		fn()
		d.q.mu.Unlock()
		err = nil
	})
	return err
}

func (d *delivery) Ack() error {
	return d.settle(func() { d.q.acked++ })
}

func (d *delivery) Reject() error {
	return d.settle(func() { d.q.rejected++ })
}

func (d *delivery) Retry(delay time.Duration) error {
	err := d.settle(func() { d.q.retried++ })
	if err != nil {
		return err
	}
	next := envelope{body: d.env.body, attempt: d.env.attempt + 1}
	time.AfterFunc(delay, func() {
		if err := d.q.push(context.Background(), next); err != nil {
			d.q.drop(next, "retry", err)
		}
	})
	return nil
}
