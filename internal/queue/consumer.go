package queue

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/rs/zerolog"
)

// Outcome tells the consumer how to settle a delivery.
type Outcome int

const (
    // Ack removes the message.
    Ack Outcome = iota
    // DeadLetter rejects without requeue so the broker moves the body to
    // dead-letters.
    DeadLetter
    // Requeue puts the message back for another delivery.
    Requeue
)

func (o Outcome) String() string {
    switch o {
    case Ack:
        return "ack"
    case DeadLetter:
        return "dead_letter"
    case Requeue:
        return "requeue"
    }
    return "unknown"
}

// Handler processes one delivery body.
type Handler func(ctx context.Context, body []byte) Outcome

type acknowledger interface {
    Ack(multiple bool) error
    Nack(multiple, requeue bool) error
}

func settle(d acknowledger, o Outcome) error {
    switch o {
    case Ack:
        return d.Ack(false)
    case DeadLetter:
        return d.Nack(false, false)
    default:
        return d.Nack(false, true)
    }
}

// Consume reads queue until ctx is cancelled, running h for each
// delivery on its own goroutine.  At most prefetch deliveries are in
// flight.  Lost connections are redialled with exponential backoff.
func (b *Broker) Consume(ctx context.Context, queue string, prefetch int, h Handler) error {
    if prefetch < 1 {
        prefetch = 1
    }
    backoff := b.cfg.ReconnectMin
    for {
        if ctx.Err() != nil {
            return nil
        }
        conn, err := b.dial(b.cfg.URL)
        if err != nil {
            b.log.Warn().Err(err).Str("queue", queue).Dur("retry_in", backoff).Msg("consumer dial failed")
            if sleepCtx(ctx, backoff) != nil {
                return nil
            }
            backoff = nextBackoff(backoff, b.cfg.ReconnectMax)
            continue
        }
        backoff = b.cfg.ReconnectMin

        err = b.consumeLoop(ctx, conn, queue, prefetch, h)
        _ = conn.Close()
        if ctx.Err() != nil {
            return nil
        }
        b.log.Warn().Err(err).Str("queue", queue).Msg("consume loop ended; reconnecting")
        if sleepCtx(ctx, 2*time.Second) != nil {
            return nil
        }
    }
}

func (b *Broker) consumeLoop(ctx context.Context, conn *amqp.Connection, queue string, prefetch int, h Handler) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(prefetch, 0, false); err != nil {
        return fmt.Errorf("set qos: %w", err)
    }
    if err := DeclareTopology(ch); err != nil {
        return err
    }
    msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }
    b.log.Info().Str("queue", queue).Int("prefetch", prefetch).Msg("consuming")
    return dispatch(ctx, msgs, prefetch, h, b.log)
}

// dispatch fans deliveries out to bounded goroutines and waits for them
// before returning so every settlement happens on an open channel.
func dispatch(ctx context.Context, msgs <-chan amqp.Delivery, limit int, h Handler, log *zerolog.Logger) error {
    sem := make(chan struct{}, limit)
    var wg sync.WaitGroup
    defer wg.Wait()
    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            sem <- struct{}{}
            wg.Add(1)
            go func(d amqp.Delivery) {
                defer wg.Done()
                defer func() { <-sem }()
                if err := settle(d, h(ctx, d.Body)); err != nil {
                    log.Error().Err(err).Uint64("delivery_tag", d.DeliveryTag).Msg("settle delivery failed")
                }
            }(d)
        }
    }
}
