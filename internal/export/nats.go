package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/pankaj-dahiya-devops/adposture/internal/models"
)

const natsFlushTimeout = 5 * time.Second

// natsConn is the subset of *nats.Conn the publisher uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
}

// NATSPublisher publishes the snapshot Summary to a subject. The full
// snapshot stays in the file, database or bucket sinks.
type NATSPublisher struct {
	conn    natsConn
	subject string
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(conn natsConn, subject string) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: subject}
}

// ConnectNATS dials url with the options the publisher expects.
func ConnectNATS(url string, extra ...nats.Option) (*nats.Conn, error) {
	opts := append([]nats.Option{
		nats.Name("adposture"),
		nats.Timeout(10 * time.Second),
	}, extra...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect NATS %s: %w", url, err)
	}
	return nc, nil
}

func (p *NATSPublisher) Name() string { return "nats" }

func (p *NATSPublisher) Export(ctx context.Context, snap *models.Snapshot) error {
	data, err := json.Marshal(Summarize(snap))
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}

	timeout := natsFlushTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(dl))
	}
	if err := p.conn.FlushTimeout(timeout); err != nil {
		return fmt.Errorf("flush %s: %w", p.subject, err)
	}
	return nil
}
