// Package queue also contains the background consumer that listens to the
// booking queues and appends one line per event to logs/booking.log.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer writes booking events to an append-only log file.
type Consumer struct {
	url     string
	logPath string
	log     *slog.Logger
	mu      sync.Mutex
}

func NewConsumer(url, logPath string, logger *slog.Logger) *Consumer {
	if logPath == "" {
		logPath = filepath.Join("logs", "booking.log")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{url: url, logPath: logPath, log: logger.With("component", "booking-consumer")}
}

// Run connects to RabbitMQ, declares the booking queues and consumes them
// until ctx is cancelled.  Broker outages are retried with a doubling
// backoff capped at 30s; a message that cannot be handled is rejected
// without requeue so one bad payload cannot stall the queue.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("failed to dial broker", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consume loop ended; reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set QoS failed", "error", err)
	}

	confirmed, err := declareAndConsume(ch, BookingConfirmedQueue)
	if err != nil {
		return err
	}
	cancelled, err := declareAndConsume(ch, BookingCancelledQueue)
	if err != nil {
		return err
	}

	for {
		var (
			d     amqp.Delivery
			ok    bool
			queue string
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok = <-confirmed:
			queue = BookingConfirmedQueue
		case d, ok = <-cancelled:
			queue = BookingCancelledQueue
		}
		if !ok {
			return errors.New("deliveries channel closed")
		}
		if err := c.HandleMessage(queue, d.Body); err != nil {
			c.log.Error("handle message failed", "queue", queue, "error", err)
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
}

func declareAndConsume(ch *amqp.Channel, name string) (<-chan amqp.Delivery, error) {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("queue declare %s: %w", name, err)
	}
	msgs, err := ch.Consume(name, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("queue consume %s: %w", name, err)
	}
	return msgs, nil
}

// HandleMessage formats one event from the named queue and appends it to
// the log file.
func (c *Consumer) HandleMessage(queue string, body []byte) error {
	var line string
	switch queue {
	case BookingConfirmedQueue:
		var ev BookingConfirmedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		line = fmt.Sprintf("[%s] Booking confirmed | booking_id=%d | ref=%s | show_id=%d | show=%q | venue=%q | phone=%s | total=%d cents | seats=%s\n",
			ev.ConfirmedAt, ev.BookingID, ev.BookingRef, ev.ShowID, ev.ShowTitle, ev.Venue, ev.Phone, ev.TotalAmountCents, seatList(ev.SeatCodes))
	case BookingCancelledQueue:
		var ev BookingCancelledEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		kind := "partial"
		if ev.Full {
			kind = "full"
		}
		line = fmt.Sprintf("[%s] Booking cancelled (%s) | booking_id=%d | ref=%s | show_id=%d | refund=%d%% %d cents | remaining=%d | seats=%s\n",
			ev.CancelledAt, kind, ev.BookingID, ev.BookingRef, ev.ShowID, ev.RefundPercent, ev.RefundAmountCents, ev.RemainingQuantity, seatList(ev.CancelledSeats))
	default:
		return fmt.Errorf("unknown queue %q", queue)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(c.logPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(c.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func seatList(codes []string) string {
	return "[" + strings.Join(codes, ",") + "]"
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
