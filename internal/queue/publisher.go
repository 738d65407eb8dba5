package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/ceremony-admission/internal/model"
)

const (
	// dialTimeout bounds TCP connect plus AMQP handshake when the caller's
	// context has no earlier deadline.
	dialTimeout = 3 * time.Second
	// redialBackoff is how long Append fails fast after a failed dial.
	redialBackoff = 5 * time.Second
)

// ErrBrokerUnavailable is returned while the publisher is backing off
// after a failed connection attempt.
var ErrBrokerUnavailable = errors.New("rabbitmq unavailable")

// ScanPublisher sends scan records to the scan.recorded queue.  The
// broker connection is opened on first use and re-opened after it
// drops.  Messages are persistent JSON.  Dialling honours the caller's
// context and happens outside the lock, so a stalled broker never
// serialises callers behind one connection attempt.
type ScanPublisher struct {
	url string
	log *zap.Logger
	now func() time.Time

	mu        sync.Mutex
	conn      *amqp.Connection
	ch        *amqp.Channel
	downUntil time.Time
}

func NewScanPublisher(url string, log *zap.Logger) *ScanPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &ScanPublisher{url: url, log: log, now: time.Now}
}

// Append publishes rec.  It satisfies the audit sink contract so the
// audit log can write through the broker instead of the database.
func (p *ScanPublisher) Append(ctx context.Context, rec model.ScanRecord) error {
	body, err := json.Marshal(newScanRecordedEvent(rec))
	if err != nil {
		return fmt.Errorf("marshal scan event: %w", err)
	}
	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx,
		"",            // default exchange
		ScanQueueName, // routing key = queue name
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    p.now().UTC(),
			Body:         body,
		})
	if err != nil {
		p.drop(ch)
		return fmt.Errorf("publish scan event: %w", err)
	}
	return nil
}

// channel returns an open channel, dialling when needed.
func (p *ScanPublisher) channel(ctx context.Context) (*amqp.Channel, error) {
	p.mu.Lock()
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		ch := p.ch
		p.mu.Unlock()
		return ch, nil
	}
	if p.now().Before(p.downUntil) {
		p.mu.Unlock()
		return nil, ErrBrokerUnavailable
	}
	p.mu.Unlock()

	conn, ch, err := p.connect(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.downUntil = p.now().Add(redialBackoff)
		return nil, err
	}
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		// Another caller connected first.
		_ = conn.Close()
		return p.ch, nil
	}
	p.resetLocked()
	p.conn, p.ch = conn, ch
	p.log.Info("scan publisher connected", zap.String("queue", ScanQueueName))
	return ch, nil
}

func (p *ScanPublisher) connect(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: contextDialer(ctx)})
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(ScanQueueName, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	return conn, ch, nil
}

// contextDialer connects with ctx and sets a socket deadline covering
// the AMQP handshake; the library clears it once the connection is open.
func contextDialer(ctx context.Context) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		deadline := time.Now().Add(dialTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		dialer := net.Dialer{Deadline: deadline}
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

// drop discards ch if it is still the current channel.
func (p *ScanPublisher) drop(ch *amqp.Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == ch {
		p.resetLocked()
	}
}

func (p *ScanPublisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

// Close releases the broker connection.
func (p *ScanPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}
