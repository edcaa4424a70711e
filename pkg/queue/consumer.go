package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-stomp/stomp/v3"

	"github.com/kadirpekel/gutensearch/pkg/config"
	"github.com/kadirpekel/gutensearch/pkg/guten"
)

const (
	// pollInterval bounds how long a blocked receive goes without checking
	// for shutdown.
	pollInterval = 5 * time.Second

	// reconnectDelay is the pause before redialing a lost broker.
	reconnectDelay = 10 * time.Second
)

// Handler processes one indexing job. sourceNode is the address of the node
// that stored the book.
type Handler func(ctx context.Context, id guten.BookID, sourceNode string) error

// Consumer subscribes to the indexing queue and feeds jobs to a handler.
// Jobs are acknowledged individually: a handler failure that can succeed on
// another node or a later attempt is requeued, while permanent failures are
// swallowed so a poisoned message cannot wedge the queue.
type Consumer struct {
	cfg     config.ActiveMQConfig
	handler Handler
	log     *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewConsumer returns a consumer for the configured queue.
func NewConsumer(cfg config.ActiveMQConfig, handler Handler, log *slog.Logger) *Consumer {
	return &Consumer{cfg: cfg, handler: handler, log: log}
}

// Start begins consuming in the background, reconnecting on broker loss
// until Stop is called or ctx is done.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		for ctx.Err() == nil {
			if err := c.consume(ctx); err != nil && ctx.Err() == nil {
				c.log.Warn("broker connection lost, reconnecting",
					"broker", c.cfg.BrokerAddr(), "delay", reconnectDelay, "error", err)
				select {
				case <-time.After(reconnectDelay):
				case <-ctx.Done():
				}
			}
		}
	}()
}

// Stop cancels consumption and waits for the loop to exit.
func (c *Consumer) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *Consumer) consume(ctx context.Context) error {
	conn, err := stomp.Dial("tcp", c.cfg.BrokerAddr())
	if err != nil {
		return err
	}
	defer func() { _ = conn.Disconnect() }()

	sub, err := conn.Subscribe(destination(c.cfg), stomp.AckClientIndividual)
	if err != nil {
		return err
	}
	c.log.Info("consuming indexing queue", "queue", c.cfg.QueueName, "broker", c.cfg.BrokerAddr())

	for {
		select {
		case <-ctx.Done():
			_ = sub.Unsubscribe()
			return nil
		case msg, ok := <-sub.C:
			if !ok {
				return errors.New("subscription channel closed")
			}
			if msg.Err != nil {
				return msg.Err
			}
			c.dispatch(ctx, conn, msg)
		case <-time.After(pollInterval):
			// Idle wake-up so shutdown is observed promptly.
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, conn *stomp.Conn, msg *stomp.Message) {
	id, err := guten.ParseBookID(string(msg.Body))
	if err != nil {
		// Malformed payloads can never succeed anywhere; drop them.
		c.log.Error("dropping malformed indexing job", "payload", string(msg.Body), "error", err)
		_ = conn.Ack(msg)
		return
	}
	sourceNode := msg.Header.Get(headerSourceNode)

	err = c.handler(ctx, id, sourceNode)
	if Requeue(err) {
		c.log.Warn("indexing job requeued", "bookId", id, "error", err)
		_ = conn.Nack(msg)
		return
	}
	if err != nil {
		c.log.Info("indexing job discarded", "bookId", id, "reason", err)
	}
	_ = conn.Ack(msg)
}

// Requeue reports whether a handler error should send the job back to the
// broker. A book missing from the local datalake or failing format checks is
// a permanent condition for this message; cluster and other transient errors
// deserve redelivery.
func Requeue(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, guten.ErrNotFound) || errors.Is(err, guten.ErrBookFormat) {
		return false
	}
	return true
}
