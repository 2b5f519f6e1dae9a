// Package broker implements the message broker on Redis Streams. Each queue
// is a stream; consumers read through a consumer group so a message stays
// pending until it is acknowledged or requeued.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldPattern = "pattern"
	fieldBody    = "body"
	fieldAttempt = "attempt"
	headerPrefix = "h:"
)

// ErrMalformedFrame marks a stream entry that cannot be interpreted as a
// message. Such entries are never retried.
var ErrMalformedFrame = errors.New("malformed frame")

// Message is an outbound broker message.
type Message struct {
	Queue   string
	Pattern string
	Body    []byte
	Headers map[string]string
}

// Delivery is a message received from a consumer group.
type Delivery struct {
	ID      string
	Queue   string
	Group   string
	Pattern string
	Body    []byte
	Headers map[string]string
	Attempt int
	Err     error
}

type Broker struct {
	client *redis.Client
	logger *slog.Logger
}

func New(client *redis.Client, logger *slog.Logger) *Broker {
	return &Broker{client: client, logger: logger}
}

// Publish appends msg to its queue and returns the stream entry id.
func (b *Broker) Publish(ctx context.Context, msg Message) (string, error) {
	if msg.Queue == "" || msg.Pattern == "" {
		return "", fmt.Errorf("publishing message: queue and pattern are required")
	}

	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: msg.Queue,
		Values: encodeFields(msg.Pattern, msg.Body, msg.Headers, 1),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publishing %s to %s: %w", msg.Pattern, msg.Queue, err)
	}
	return id, nil
}

// EnsureGroup creates the consumer group (and stream) if it does not exist.
func (b *Broker) EnsureGroup(ctx context.Context, queue, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, queue, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group %s on %s: %w", group, queue, err)
	}
	return nil
}

// Read fetches up to count new messages for consumer. A negative block
// returns immediately when nothing is available.
func (b *Broker) Read(ctx context.Context, queue, group, consumer string, count int64, block time.Duration) ([]Delivery, error) {
	return b.readGroup(ctx, queue, group, consumer, ">", count, block)
}

// Pending re-reads entries already delivered to consumer that were never
// settled, oldest first, starting after id ("0" for the whole list).
func (b *Broker) Pending(ctx context.Context, queue, group, consumer, after string, count int64) ([]Delivery, error) {
	return b.readGroup(ctx, queue, group, consumer, after, count, -1)
}

func (b *Broker) readGroup(ctx context.Context, queue, group, consumer, start string, count int64, block time.Duration) ([]Delivery, error) {
	streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{queue, start},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading from %s: %w", queue, err)
	}

	var deliveries []Delivery
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			deliveries = append(deliveries, decodeDelivery(stream.Stream, group, msg))
		}
	}
	return deliveries, nil
}

// Claim moves up to count entries that have sat unsettled for at least
// minIdle, under any consumer, to consumer and returns them. Entries already
// delivered maxDeliveries times are acknowledged instead and their ids
// returned as discarded. A maxDeliveries of zero never discards.
func (b *Broker) Claim(ctx context.Context, queue, group, consumer string, minIdle time.Duration, maxDeliveries, count int64) ([]Delivery, []string, error) {
	pending, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: queue,
		Group:  group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("listing pending on %s: %w", queue, err)
	}

	var claim, discarded []string
	for _, p := range pending {
		if maxDeliveries > 0 && p.RetryCount >= maxDeliveries {
			discarded = append(discarded, p.ID)
			continue
		}
		claim = append(claim, p.ID)
	}

	if len(discarded) > 0 {
		if err := b.client.XAck(ctx, queue, group, discarded...).Err(); err != nil {
			return nil, nil, fmt.Errorf("discarding exhausted entries on %s: %w", queue, err)
		}
	}
	if len(claim) == 0 {
		return nil, discarded, nil
	}

	msgs, err := b.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   queue,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: claim,
	}).Result()
	if err != nil {
		return nil, discarded, fmt.Errorf("claiming entries on %s: %w", queue, err)
	}

	deliveries := make([]Delivery, 0, len(msgs))
	for _, msg := range msgs {
		deliveries = append(deliveries, decodeDelivery(queue, group, msg))
	}
	return deliveries, discarded, nil
}

// Ack permanently removes d from its group's pending list.
func (b *Broker) Ack(ctx context.Context, d Delivery) error {
	if err := b.client.XAck(ctx, d.Queue, d.Group, d.ID).Err(); err != nil {
		return fmt.Errorf("acking %s on %s: %w", d.ID, d.Queue, err)
	}
	return nil
}

// Requeue redelivers d by appending a copy with an incremented attempt and
// acknowledging the original, atomically.
func (b *Broker) Requeue(ctx context.Context, d Delivery) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: d.Queue,
			Values: encodeFields(d.Pattern, d.Body, d.Headers, d.Attempt+1),
		})
		pipe.XAck(ctx, d.Queue, d.Group, d.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("requeuing %s on %s: %w", d.ID, d.Queue, err)
	}

	b.logger.Debug("message requeued",
		"queue", d.Queue,
		"message_id", d.ID,
		"pattern", d.Pattern,
		"attempt", d.Attempt+1,
	)
	return nil
}

// Depth returns the number of entries in queue.
func (b *Broker) Depth(ctx context.Context, queue string) (int64, error) {
	return b.client.XLen(ctx, queue).Result()
}

func encodeFields(pattern string, body []byte, headers map[string]string, attempt int) map[string]any {
	values := map[string]any{
		fieldPattern: pattern,
		fieldBody:    string(body),
		fieldAttempt: strconv.Itoa(attempt),
	}
	for k, v := range headers {
		if v == "" {
			continue
		}
		values[headerPrefix+strings.ToLower(k)] = v
	}
	return values
}

func decodeDelivery(queue, group string, msg redis.XMessage) Delivery {
	d := Delivery{
		ID:      msg.ID,
		Queue:   queue,
		Group:   group,
		Headers: make(map[string]string),
		Attempt: 1,
	}

	for k, v := range msg.Values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch {
		case k == fieldPattern:
			d.Pattern = s
		case k == fieldBody:
			d.Body = []byte(s)
		case k == fieldAttempt:
			if n, err := strconv.Atoi(s); err == nil && n > 0 {
				d.Attempt = n
			}
		case strings.HasPrefix(k, headerPrefix):
			d.Headers[strings.TrimPrefix(k, headerPrefix)] = s
		}
	}

	switch {
	case d.Pattern == "":
		d.Err = fmt.Errorf("%w: entry %s has no pattern", ErrMalformedFrame, msg.ID)
	case len(d.Body) == 0:
		d.Err = fmt.Errorf("%w: entry %s has no body", ErrMalformedFrame, msg.ID)
	}
	return d
}
