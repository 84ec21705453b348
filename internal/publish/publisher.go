// Package publish streams evidence events to NATS while a scan runs.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"cheatwatch/internal/core"
)

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Message is the wire envelope of one published event.
type Message struct {
	Type      string     `json:"type"`
	Host      string     `json:"host"`
	Timestamp string     `json:"timestamp"`
	Event     core.Event `json:"event"`
}

const defaultQueueSize = 1000

// Publisher implements core.Emitter. Emit never blocks the scanner: events
// are queued and a background loop publishes them. A full queue drops the
// event with a warning; the sink still holds it.
type Publisher struct {
	conn    Conn
	subject string
	host    string
	logger  *slog.Logger

	queue   chan core.Event
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	mu      sync.Mutex
	started bool
	dropped int
}

// Connect dials the NATS server at url.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("cheatwatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	return nc, nil
}

func New(conn Conn, subject string, logger *slog.Logger) *Publisher {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &Publisher{
		conn:    conn,
		subject: subject,
		host:    host,
		logger:  logger.With("component", "publisher", "subject", subject),
		queue:   make(chan core.Event, defaultQueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start runs the send loop until ctx is done or Close is called.
func (p *Publisher) Start(ctx context.Context) {
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()

	p.logger.Info("starting evidence publisher")
	go func() {
		defer close(p.stopped)
		p.sendLoop(ctx)
	}()
}

// Emit queues an event for publishing.
func (p *Publisher) Emit(ev core.Event) {
	select {
	case p.queue <- ev:
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		p.logger.Warn("publish queue full, event dropped", "event_id", ev.ID)
	}
}

// Dropped returns how many events were dropped on a full queue.
func (p *Publisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close stops the send loop after draining queued events and waits for it.
func (p *Publisher) Close() {
	p.once.Do(func() { close(p.done) })

	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if started {
		<-p.stopped
	}
}

func (p *Publisher) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("evidence publisher context cancelled")
			return
		case <-p.done:
			p.drain()
			p.logger.Info("evidence publisher stopped")
			return
		case ev := <-p.queue:
			p.send(ev)
		}
	}
}

func (p *Publisher) drain() {
	for {
		select {
		case ev := <-p.queue:
			p.send(ev)
		default:
			return
		}
	}
}

func (p *Publisher) send(ev core.Event) {
	if err := p.publish(ev); err != nil {
		p.logger.Error("failed to publish evidence event", "error", err, "event_id", ev.ID)
	}
}

func (p *Publisher) publish(ev core.Event) error {
	data, err := json.Marshal(Message{
		Type:      "evidence",
		Host:      p.host,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Event:     ev,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}
