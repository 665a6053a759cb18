package queue

import (
    "fmt"

    amqp "github.com/rabbitmq/amqp091-go"
)

type declarer interface {
    QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
}

// deadLettered routes rejected (requeue=false) messages to dead-letters
// via the default exchange, body untouched.
func deadLettered() amqp.Table {
    return amqp.Table{
        "x-dead-letter-exchange":    "",
        "x-dead-letter-routing-key": DeadLetterQueue,
    }
}

// DeclareTopology declares every durable queue.  QueueDeclare is
// idempotent as long as arguments match, so each channel owner calls it.
func DeclareTopology(ch declarer) error {
    if _, err := ch.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("declare %s: %w", DeadLetterQueue, err)
    }
    for _, name := range []string{BidProcessingQueue, NotificationsQueue, AuditQueue} {
        if _, err := ch.QueueDeclare(name, true, false, false, false, deadLettered()); err != nil {
            return fmt.Errorf("declare %s: %w", name, err)
        }
    }
    return nil
}
