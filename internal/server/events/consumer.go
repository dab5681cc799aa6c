// Package events consumes live events from the message broker and turns them
// into durable trigger-queue jobs. The broker delivery is acked only after the
// job row is committed, so an event is never lost between intake and delivery.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/livebell/engine/internal/logging"
	"github.com/livebell/engine/internal/server/models"
	"github.com/livebell/engine/internal/server/repositories/repomanager"
)

const (
	maxReconnectAttempts = 10
	handleTimeout        = 30 * time.Second
)

// reconnectDelay is the base redial backoff; a var so tests can shrink it.
var reconnectDelay = 5 * time.Second

// LiveEvent is the wire format of one "subject went live" event.
type LiveEvent struct {
	SubjectID    int64   `json:"subject_id"`
	SubjectName  string  `json:"subject_name"`
	Destinations []int64 `json:"destinations"`
}

// Options configures the broker connection.
type Options struct {
	URL      string
	Queue    string
	Prefetch int
}

// Consumer bridges the broker queue to the trigger queue.
type Consumer struct {
	opts        Options
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// amqpDial is a seam for tests.
var amqpDial = amqp.Dial

// New connects to the broker and declares the intake queue.
func New(opts Options, db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) (*Consumer, error) {
	c := &Consumer{
		opts:        opts,
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "events"),
	}

	if err := c.connect(); err != nil {
		return nil, fmt.Errorf("broker connect: %w", err)
	}
	return c, nil
}

func (c *Consumer) connect() error {
	conn, err := amqpDial(c.opts.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		c.opts.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.Qos(c.opts.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	c.logger.Info(context.Background(), "connected to broker", "queue", c.opts.Queue)
	return nil
}

// Run consumes deliveries until ctx is cancelled. A closed delivery channel
// means the connection is gone: Run redials with backoff and resumes
// consuming. It returns an error only when the broker stays unreachable, so
// the caller decides whether that stops the whole app.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msgs, err := c.consume()
		if err != nil {
			return err
		}

		c.drain(ctx, msgs)
		if ctx.Err() != nil {
			return nil
		}

		c.logger.Warn(ctx, "broker connection lost, redialing")
		if err := c.redial(ctx); err != nil {
			return err
		}
	}
}

func (c *Consumer) consume() (<-chan amqp.Delivery, error) {
	c.mu.RLock()
	channel := c.channel
	c.mu.RUnlock()
	if channel == nil {
		return nil, errors.New("channel is not initialized")
	}

	msgs, err := channel.Consume(
		c.opts.Queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return msgs, nil
}

// drain processes deliveries until the channel closes or ctx is cancelled.
func (c *Consumer) drain(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			c.handleDelivery(ctx, msg)
		}
	}
}

// redial tears down the dead connection and dials again with growing backoff.
func (c *Consumer) redial(ctx context.Context) error {
	c.closeConn()

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		if err := c.connect(); err == nil {
			c.logger.Info(ctx, "reconnected to broker")
			return nil
		}

		delay := reconnectDelay * time.Duration(attempt)
		c.logger.Warn(ctx, "redial failed, retrying", "attempt", attempt, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.New("broker redial attempts exhausted")
}

func (c *Consumer) handleDelivery(ctx context.Context, msg amqp.Delivery) {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	requeue, err := c.Intake(ctx, msg.Body)
	if err != nil {
		c.logger.Error(ctx, "event rejected", "requeue", requeue, "error", err)
		_ = msg.Nack(false, requeue)
		return
	}
	_ = msg.Ack(false)
}

// Intake validates one raw event and enqueues its trigger job. The returned
// bool says whether a failed event should be redelivered: malformed bodies
// are poison and must not be, store errors are transient and should be.
func (c *Consumer) Intake(ctx context.Context, body []byte) (requeue bool, err error) {
	var event LiveEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return false, fmt.Errorf("malformed event: %w", err)
	}
	if event.SubjectID == 0 {
		return false, errors.New("event without subject_id")
	}
	if len(event.Destinations) == 0 {
		// Nobody to notify; consume the event without a job.
		c.logger.Debug(ctx, "event with no destinations", "subject_id", event.SubjectID)
		return false, nil
	}

	job := &models.NotificationJob{
		ID: uuid.NewString(),
		Payload: models.LivePayload{
			SubjectID:    event.SubjectID,
			SubjectName:  event.SubjectName,
			Destinations: event.Destinations,
		},
	}
	if err := c.repomanager.Jobs(c.db).Enqueue(ctx, job); err != nil {
		return true, fmt.Errorf("enqueue: %w", err)
	}

	c.logger.Info(ctx, "live event enqueued",
		"job_id", job.ID, "subject_id", event.SubjectID, "destinations", len(event.Destinations))
	return false, nil
}

func (c *Consumer) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close releases the broker connection.
func (c *Consumer) Close() {
	c.closeConn()
	c.logger.Info(context.Background(), "consumer closed")
}
