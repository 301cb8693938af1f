package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"

    "github.com/iliyamo/hostel-occupancy/internal/occupancy"
)

// Publisher sends occupancy events to QueueName.  It dials per publish;
// event volume is a handful per request so a long-lived channel is not
// worth the reconnect handling.  Errors are logged and returned, and the
// occupancy service ignores them beyond that.
type Publisher struct {
    url string
    log *zap.Logger
    now func() time.Time
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string, log *zap.Logger) *Publisher {
    if log == nil {
        log = zap.NewNop()
    }
    return &Publisher{url: url, log: log, now: time.Now}
}

// Publish implements occupancy.Events.
func (p *Publisher) Publish(ctx context.Context, ev occupancy.Event) error {
    msg, err := newPublishing(NewOccupancyEvent(ev, p.now()))
    if err != nil {
        p.log.Warn("rabbitmq: marshal event failed", zap.Error(err))
        return err
    }

    conn, err := amqp.Dial(p.url)
    if err != nil {
        p.log.Warn("rabbitmq: dial failed", zap.Error(err))
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        p.log.Warn("rabbitmq: channel open failed", zap.Error(err))
        return err
    }
    defer func() { _ = ch.Close() }()

    if err := declareQueue(ch); err != nil {
        p.log.Warn("rabbitmq: queue declare failed", zap.Error(err))
        return err
    }

    if err := ch.PublishWithContext(ctx,
        "",        // default exchange
        QueueName, // routing key = queue name
        false,     // mandatory
        false,     // immediate
        msg,
    ); err != nil {
        p.log.Warn("rabbitmq: publish failed", zap.String("message_id", msg.MessageId), zap.Error(err))
        return err
    }
    p.log.Debug("event published",
        zap.String("type", string(ev.Type)),
        zap.Uint64("room_id", ev.RoomID),
        zap.String("message_id", msg.MessageId),
    )
    return nil
}

func newPublishing(ev OccupancyEvent) (amqp.Publishing, error) {
    body, err := json.Marshal(ev)
    if err != nil {
        return amqp.Publishing{}, fmt.Errorf("marshal %s: %w", ev.Type, err)
    }
    return amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    ev.EventID,
        Type:         ev.Type,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }, nil
}

// declareQueue is idempotent.  Durable so messages survive broker restarts.
func declareQueue(ch *amqp.Channel) error {
    _, err := ch.QueueDeclare(
        QueueName, // name
        true,      // durable
        false,     // autoDelete
        false,     // exclusive
        false,     // noWait
        nil,       // args
    )
    return err
}
