// Package events publishes run progress to a message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"walkerevo/internal/ga"
)

// Event types.
const (
	TypeGeneration = "generation"
	TypeBest       = "best"
	TypeReset      = "reset"
	TypeImport     = "import"
)

// Event is one published message.
type Event struct {
	Type   string     `json:"type"`
	RunID  string     `json:"runId"`
	Time   time.Time  `json:"time"`
	Record *ga.Record `json:"record,omitempty"`
	Best   *Best      `json:"best,omitempty"`
}

// Best describes a new best-ever walker.
type Best struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Fitness float64 `json:"fitness"`
}

// Publisher sends events. Implementations are safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// NATSPublisher publishes JSON events on <subject>.<type>.
type NATSPublisher struct {
	nc      conn
	subject string
}

// Connect dials the NATS server at url.
func Connect(url, subject string, log *slog.Logger) (*NATSPublisher, error) {
	nc, err := natsgo.Connect(url,
		natsgo.Name("walkerevo"),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			log.Warn("nats disconnected", "error", err)
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	log.Info("nats connected", "url", nc.ConnectedUrl())
	return newNATSPublisher(nc, subject), nil
}

func newNATSPublisher(nc conn, subject string) *NATSPublisher {
	return &NATSPublisher{nc: nc, subject: subject}
}

func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := p.nc.Publish(p.subject+"."+ev.Type, data); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Open returns a NATS publisher for url, or Nop when url is empty.
func Open(url, subject string, log *slog.Logger) (Publisher, error) {
	if url == "" {
		return Nop{}, nil
	}
	return Connect(url, subject, log)
}

// Generation builds the event for a ranked generation.
func Generation(runID string, rec ga.Record) Event {
	return Event{Type: TypeGeneration, RunID: runID, Time: time.Now().UTC(), Record: &rec}
}

// NewBest builds the event for a new best-ever walker.
func NewBest(runID string, w *ga.Walker) Event {
	return Event{
		Type:  TypeBest,
		RunID: runID,
		Time:  time.Now().UTC(),
		Best:  &Best{ID: w.ID.String(), Name: w.Name, Fitness: w.Fitness},
	}
}
