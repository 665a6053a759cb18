package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "sync"
    "time"

    "github.com/google/uuid"
    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/rs/zerolog"

    "github.com/iliyamo/live-auction/internal/config"
    "github.com/iliyamo/live-auction/internal/logger"
    "github.com/iliyamo/live-auction/internal/metrics"
)

var (
    // ErrUnavailable is returned when the broker cannot be reached.
    ErrUnavailable = errors.New("broker unavailable")
    // ErrNotConfirmed is returned when the broker nacks a publish.
    ErrNotConfirmed = errors.New("publish not confirmed")
)

// Broker owns a publishing connection with a confirm-mode channel and
// opens dedicated connections for consumers.  A failed dial never
// panics: publishers get ErrUnavailable and consumers keep retrying.
type Broker struct {
    cfg     config.QueueConfig
    metrics *metrics.Metrics
    log     *zerolog.Logger
    dial    func(url string) (*amqp.Connection, error)

    mu    sync.Mutex
    conn  *amqp.Connection
    pubCh *amqp.Channel
}

func NewBroker(cfg config.QueueConfig, m *metrics.Metrics) *Broker {
    if m == nil {
        m = metrics.NewMetrics("")
    }
    return &Broker{
        cfg:     cfg,
        metrics: m,
        log:     logger.Component("broker"),
        dial:    amqp.Dial,
    }
}

// Ready reports whether the publishing connection is open.
func (b *Broker) Ready() bool {
    b.mu.Lock()
    defer b.mu.Unlock()
    return b.conn != nil && !b.conn.IsClosed()
}

// Connect dials the broker with exponential backoff until it succeeds
// or ctx is done.  It is used at startup; Publish reconnects lazily.
func (b *Broker) Connect(ctx context.Context) error {
    backoff := b.cfg.ReconnectMin
    for {
        _, err := b.channel()
        if err == nil {
            return nil
        }
        b.log.Warn().Err(err).Dur("retry_in", backoff).Msg("broker connect failed")
        if err := sleepCtx(ctx, backoff); err != nil {
            return err
        }
        backoff = nextBackoff(backoff, b.cfg.ReconnectMax)
    }
}

// channel returns the confirm-mode publishing channel, redialling if
// the connection or channel has closed.
func (b *Broker) channel() (*amqp.Channel, error) {
    b.mu.Lock()
    defer b.mu.Unlock()
    if b.pubCh != nil && !b.pubCh.IsClosed() {
        return b.pubCh, nil
    }
    if b.conn == nil || b.conn.IsClosed() {
        conn, err := b.dial(b.cfg.URL)
        if err != nil {
            return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
        }
        b.conn = conn
    }
    ch, err := b.conn.Channel()
    if err != nil {
        return nil, fmt.Errorf("%w: channel open: %v", ErrUnavailable, err)
    }
    if err := DeclareTopology(ch); err != nil {
        _ = ch.Close()
        return nil, err
    }
    if err := ch.Confirm(false); err != nil {
        _ = ch.Close()
        return nil, fmt.Errorf("confirm mode: %w", err)
    }
    b.pubCh = ch
    return ch, nil
}

// Publish JSON-encodes v and publishes it persistently to queue through
// the default exchange, then waits for the broker's confirm.
func (b *Broker) Publish(ctx context.Context, queue string, v any) error {
    body, err := json.Marshal(v)
    if err != nil {
        return fmt.Errorf("marshal %s payload: %w", queue, err)
    }
    return b.PublishRaw(ctx, queue, body)
}

// PublishRaw publishes an already encoded body.
func (b *Broker) PublishRaw(ctx context.Context, queue string, body []byte) error {
    err := b.publish(ctx, queue, body)
    if err != nil {
        b.metrics.QueuePublishErrs.WithLabelValues(queue).Inc()
        b.log.Error().Err(err).Str("queue", queue).Msg("publish failed")
    }
    return err
}

func (b *Broker) publish(ctx context.Context, queue string, body []byte) error {
    ch, err := b.channel()
    if err != nil {
        return err
    }
    if b.cfg.PublishTimeout > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, b.cfg.PublishTimeout)
        defer cancel()
    }
    dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    uuid.NewString(),
        Timestamp:    time.Now().UTC(),
        Body:         body,
    })
    if err != nil {
        return fmt.Errorf("%w: %v", ErrUnavailable, err)
    }
    ok, err := dc.WaitContext(ctx)
    if err != nil {
        return fmt.Errorf("%w: await confirm: %v", ErrUnavailable, err)
    }
    if !ok {
        return ErrNotConfirmed
    }
    return nil
}

// Close shuts the publishing connection.
func (b *Broker) Close() error {
    b.mu.Lock()
    defer b.mu.Unlock()
    if b.conn == nil {
        return nil
    }
    err := b.conn.Close()
    b.conn, b.pubCh = nil, nil
    if errors.Is(err, amqp.ErrClosed) {
        return nil
    }
    return err
}

func nextBackoff(cur, limit time.Duration) time.Duration {
    if cur <= 0 {
        cur = time.Second
    }
    cur *= 2
    if limit > 0 && cur > limit {
        cur = limit
    }
    return cur
}

func sleepCtx(ctx context.Context, d time.Duration) error {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-t.C:
        return nil
    }
}
