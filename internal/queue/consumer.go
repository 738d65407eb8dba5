package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/ceremony-admission/internal/model"
)

// Appender stores scan records; repository.ScanRepo implements it.
type Appender interface {
	Append(ctx context.Context, rec model.ScanRecord) error
}

// StartScanConsumer drains the scan.recorded queue into sink until ctx
// is cancelled.  Broker failures are retried with exponential backoff.
// Undecodable messages are rejected without requeue; messages whose
// write failed are requeued once and then dropped.
func StartScanConsumer(ctx context.Context, url string, sink Appender, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("scan consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, sink, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("scan consumer: loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
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

func consumeLoop(ctx context.Context, conn *amqp.Connection, sink Appender, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("scan consumer: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(ScanQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(ScanQueueName, "", false, false, false, false, nil)
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
			switch err := handleMessage(ctx, d.Body, sink); {
			case err == nil:
				_ = d.Ack(false)
			case errors.Is(err, errUndecodable):
				log.Error("scan consumer: dropping message", zap.Error(err))
				_ = d.Nack(false, false)
			default:
				log.Error("scan consumer: store failed", zap.Error(err), zap.Bool("redelivered", d.Redelivered))
				_ = d.Nack(false, !d.Redelivered)
			}
		}
	}
}

var errUndecodable = errors.New("undecodable scan event")

func handleMessage(ctx context.Context, body []byte, sink Appender) error {
	var ev ScanRecordedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", errUndecodable, err)
	}
	rec, err := ev.Record()
	if err != nil {
		return fmt.Errorf("%w: %v", errUndecodable, err)
	}
	return sink.Append(ctx, rec)
}
