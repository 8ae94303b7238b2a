package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walkerevo/internal/ga"
)

type fakeConn struct {
	subjects []string
	payloads [][]byte
	fail     error
	drained  bool
}

func (c *fakeConn) Publish(subj string, data []byte) error {
	if c.fail != nil {
		return c.fail
	}
	c.subjects = append(c.subjects, subj)
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *fakeConn) Drain() error {
	c.drained = true
	return nil
}

func TestNATSPublisher(t *testing.T) {
	fc := &fakeConn{}
	p := newNATSPublisher(fc, "walkerevo.runs")

	rec := ga.Record{Generation: 3, Best: 80, Average: 30}
	require.NoError(t, p.Publish(context.Background(), Generation("run-1", rec)))
	w := &ga.Walker{ID: uuid.New(), Name: "Quick Hopper 2", Fitness: 81}
	require.NoError(t, p.Publish(context.Background(), NewBest("run-1", w)))

	assert.Equal(t, []string{"walkerevo.runs.generation", "walkerevo.runs.best"}, fc.subjects)

	var ev Event
	require.NoError(t, json.Unmarshal(fc.payloads[0], &ev))
	assert.Equal(t, TypeGeneration, ev.Type)
	require.NotNil(t, ev.Record)
	assert.Equal(t, rec, *ev.Record)
	assert.Contains(t, string(fc.payloads[0]), `"bestScore":80`)

	require.NoError(t, json.Unmarshal(fc.payloads[1], &ev))
	require.NotNil(t, ev.Best)
	assert.Equal(t, w.ID.String(), ev.Best.ID)

	require.NoError(t, p.Close())
	assert.True(t, fc.drained)
}

func TestNATSPublisherErrors(t *testing.T) {
	fc := &fakeConn{fail: errors.New("nats: connection closed")}
	p := newNATSPublisher(fc, "x")
	assert.Error(t, p.Publish(context.Background(), Event{Type: TypeReset}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, newNATSPublisher(&fakeConn{}, "x").Publish(ctx, Event{}), context.Canceled)
}

func TestOpenWithoutURLIsNop(t *testing.T) {
	p, err := Open("", "walkerevo", slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)})))
	require.NoError(t, err)
	assert.IsType(t, Nop{}, p)
	assert.NoError(t, p.Publish(context.Background(), Event{Type: TypeReset}))
	assert.NoError(t, p.Close())
}

func TestRecorder(t *testing.T) {
	var r Recorder
	require.NoError(t, r.Publish(context.Background(), Event{Type: TypeImport}))
	evs := r.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, TypeImport, evs[0].Type)
}
