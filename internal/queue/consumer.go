package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// AuditConsumer appends every occupancy event to a log file, one line per
// event.  Malformed messages are rejected without requeue.
type AuditConsumer struct {
    url  string
    path string
    log  *zap.Logger
}

// NewAuditConsumer returns a consumer writing to path.
func NewAuditConsumer(url, path string, log *zap.Logger) *AuditConsumer {
    if log == nil {
        log = zap.NewNop()
    }
    return &AuditConsumer{url: url, path: path, log: log}
}

// Run connects, consumes and reconnects with backoff until ctx is done.
func (a *AuditConsumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(a.url)
        if err != nil {
            a.log.Warn("audit-consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = a.consume(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        a.log.Warn("audit-consumer: consume loop ended, reconnecting", zap.Error(err))
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (a *AuditConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        a.log.Warn("audit-consumer: set QoS failed", zap.Error(err))
    }
    if err := declareQueue(ch); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(QueueName, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := a.handle(d.Body); err != nil {
                a.log.Warn("audit-consumer: handle message failed",
                    zap.String("message_id", d.MessageId),
                    zap.Error(err),
                )
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func (a *AuditConsumer) handle(body []byte) error {
    var ev OccupancyEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Type == "" {
        return errors.New("event without type")
    }
    if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
        return fmt.Errorf("mkdir: %w", err)
    }
    f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()

    if _, err := f.WriteString(formatAuditLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

func formatAuditLine(ev OccupancyEvent) string {
    line := fmt.Sprintf("[%s] %s | event_id=%s | room_id=%d | room=%q | occupied=%d/%d | status=%s",
        ev.OccurredAt, ev.Type, ev.EventID, ev.RoomID, ev.RoomNumber, ev.Occupied, ev.Capacity, ev.Status)
    if ev.StudentID != 0 {
        line += fmt.Sprintf(" | student_id=%d", ev.StudentID)
    }
    if ev.Detail != "" {
        line += fmt.Sprintf(" | detail=%q", ev.Detail)
    }
    return line + "\n"
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
