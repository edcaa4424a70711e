// Package queue bridges the ingestor and the indexer through an ActiveMQ
// queue over STOMP. The ingestor publishes one message per stored book; any
// indexer node consumes it and updates the distributed index.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-stomp/stomp/v3"

	"github.com/kadirpekel/gutensearch/pkg/config"
	"github.com/kadirpekel/gutensearch/pkg/guten"
)

const (
	contentTypeText = "text/plain"

	// headerSourceNode carries the advertised address of the publishing
	// node, so the consumer can tell which datalake holds the book.
	headerSourceNode = "sourceNodeIp"
)

// Publisher is the producing side of the indexing queue.
type Publisher interface {
	Publish(ctx context.Context, id guten.BookID) error
}

// Producer publishes indexing jobs. The payload is the decimal book id; the
// message is persistent so a broker restart does not lose accepted jobs.
type Producer struct {
	cfg      config.ActiveMQConfig
	sourceIP string
	log      *slog.Logger

	mu   sync.Mutex
	conn *stomp.Conn
}

// NewProducer returns a lazily connecting producer. sourceIP is the address
// this node advertises to consumers.
func NewProducer(cfg config.ActiveMQConfig, sourceIP string, log *slog.Logger) *Producer {
	return &Producer{cfg: cfg, sourceIP: sourceIP, log: log}
}

func destination(cfg config.ActiveMQConfig) string {
	return "/queue/" + cfg.QueueName
}

// Publish enqueues one indexing job. A stale broker connection is retried
// once with a fresh one before the error is surfaced.
func (p *Producer) Publish(_ context.Context, id guten.BookID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	payload := []byte(id.String())
	send := func() error {
		if p.conn == nil {
			conn, err := stomp.Dial("tcp", p.cfg.BrokerAddr())
			if err != nil {
				return err
			}
			p.conn = conn
		}
		return p.conn.Send(destination(p.cfg), contentTypeText, payload,
			stomp.SendOpt.Header("persistent", "true"),
			stomp.SendOpt.Header("correlation-id", id.String()),
			stomp.SendOpt.Header(headerSourceNode, p.sourceIP),
		)
	}

	if err := send(); err != nil {
		p.dropConn()
		if err = send(); err != nil {
			return fmt.Errorf("publishing book %d: %w: %v", id, guten.ErrQueue, err)
		}
	}
	p.log.Debug("indexing job published", "bookId", id, "queue", p.cfg.QueueName)
	return nil
}

func (p *Producer) dropConn() {
	if p.conn != nil {
		_ = p.conn.Disconnect()
		p.conn = nil
	}
}

// Close disconnects from the broker.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropConn()
}
