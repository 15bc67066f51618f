package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/technosupport/frl-toolbox/internal/audit"
)

// DefaultSubject carries one message per forwarded COPS transaction.
const DefaultSubject = "frl.proxy.transactions"

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

var _ Conn = (*nats.Conn)(nil)

type Publisher struct {
	conn       Conn
	subject    string
	maxRetries int
	dedup      *Dedup
	backoff    time.Duration
}

func NewPublisher(conn Conn, subject string, maxRetries int, dedup *Dedup) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{
		conn:       conn,
		subject:    subject,
		maxRetries: maxRetries,
		dedup:      dedup,
		backoff:    100 * time.Millisecond,
	}
}

// Connect dials the NATS server with reconnects enabled.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("frl-proxy"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}

// Publish sends tx to the subject. Retried requests that reuse a request id
// within the dedup window are published once.
func (p *Publisher) Publish(tx audit.Transaction) error {
	if p.dedup != nil && p.dedup.IsDuplicate(BuildDedupKey(tx)) {
		return nil
	}

	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	for i := 0; i <= p.maxRetries; i++ {
		err = p.conn.Publish(p.subject, data)
		if err == nil {
			return nil
		}

		time.Sleep(time.Duration(i) * p.backoff)
	}

	return fmt.Errorf("publish failed after %d retries: %w", p.maxRetries, err)
}
