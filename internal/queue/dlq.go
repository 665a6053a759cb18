package queue

import (
    "context"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
)

// Message is a parked message as seen by the dead-letter tooling.
type Message struct {
    MessageID   string    `json:"messageId"`
    Timestamp   time.Time `json:"timestamp"`
    SourceQueue string    `json:"sourceQueue,omitempty"`
    Reason      string    `json:"reason,omitempty"`
    DeathCount  int64     `json:"deathCount"`
    Body        string    `json:"body"`
}

func describe(d amqp.Delivery) Message {
    m := Message{MessageID: d.MessageId, Timestamp: d.Timestamp, Body: string(d.Body)}
    m.SourceQueue, m.Reason, m.DeathCount = firstDeath(d.Headers)
    return m
}

// firstDeath reads the most recent entry of the broker's x-death header.
func firstDeath(h amqp.Table) (queue, reason string, count int64) {
    deaths, ok := h["x-death"].([]interface{})
    if !ok || len(deaths) == 0 {
        return "", "", 0
    }
    t, ok := deaths[0].(amqp.Table)
    if !ok {
        return "", "", 0
    }
    queue, _ = t["queue"].(string)
    reason, _ = t["reason"].(string)
    switch c := t["count"].(type) {
    case int64:
        count = c
    case int32:
        count = int64(c)
    case int:
        count = int64(c)
    }
    return queue, reason, count
}

func (b *Broker) withChannel(fn func(ch *amqp.Channel) error) error {
    conn, err := b.dial(b.cfg.URL)
    if err != nil {
        return fmt.Errorf("%w: %v", ErrUnavailable, err)
    }
    defer func() { _ = conn.Close() }()
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()
    if err := DeclareTopology(ch); err != nil {
        return err
    }
    return fn(ch)
}

// Inspect returns up to limit messages from queue without removing
// them.  Messages are held unacked while reading and requeued when the
// channel closes, so they keep their position.
func (b *Broker) Inspect(ctx context.Context, queue string, limit int) ([]Message, error) {
    var out []Message
    err := b.withChannel(func(ch *amqp.Channel) error {
        for len(out) < limit {
            if err := ctx.Err(); err != nil {
                return err
            }
            d, ok, err := ch.Get(queue, false)
            if err != nil {
                return fmt.Errorf("get %s: %w", queue, err)
            }
            if !ok {
                return nil
            }
            out = append(out, describe(d))
        }
        return nil
    })
    return out, err
}

// Move republishes up to limit messages from one queue to another and
// acknowledges each original only after the republish is confirmed.
// It returns how many messages were moved.
func (b *Broker) Move(ctx context.Context, from, to string, limit int) (int, error) {
    moved := 0
    err := b.withChannel(func(ch *amqp.Channel) error {
        if err := ch.Confirm(false); err != nil {
            return fmt.Errorf("confirm mode: %w", err)
        }
        for moved < limit {
            if err := ctx.Err(); err != nil {
                return err
            }
            d, ok, err := ch.Get(from, false)
            if err != nil {
                return fmt.Errorf("get %s: %w", from, err)
            }
            if !ok {
                return nil
            }
            dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", to, false, false, amqp.Publishing{
                ContentType:  d.ContentType,
                DeliveryMode: amqp.Persistent,
                MessageId:    d.MessageId,
                Timestamp:    time.Now().UTC(),
                Body:         d.Body,
            })
            if err != nil {
                _ = d.Nack(false, true)
                return fmt.Errorf("republish to %s: %w", to, err)
            }
            if confirmed, err := dc.WaitContext(ctx); err != nil || !confirmed {
                _ = d.Nack(false, true)
                if err == nil {
                    err = ErrNotConfirmed
                }
                return fmt.Errorf("republish to %s: %w", to, err)
            }
            if err := d.Ack(false); err != nil {
                return fmt.Errorf("ack %s: %w", from, err)
            }
            moved++
        }
        return nil
    })
    return moved, err
}
