package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Gerondiz/backend-mediasoup/internal/app"
	"github.com/Gerondiz/backend-mediasoup/internal/core"
)

var seq atomic.Int64

func nextID(prefix string) string { return fmt.Sprintf("%s-%d", prefix, seq.Add(1)) }

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type fakeConn struct {
	mu     sync.Mutex
	frames []frame
	fail   bool
	closed bool
	// onSend runs after a frame is recorded, outside mu.
	onSend func(frame)
}

func (c *fakeConn) TrySend(f core.Frame) error {
	var fr frame
	if err := json.Unmarshal(f, &fr); err != nil {
		return err
	}
	c.mu.Lock()
	if c.fail || c.closed {
		c.mu.Unlock()
		return core.ErrConnClosed
	}
	c.frames = append(c.frames, fr)
	hook := c.onSend
	c.mu.Unlock()
	if hook != nil {
		hook(fr)
	}
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, f.Type)
	}
	return out
}

func (c *fakeConn) count(msgType string) int {
	n := 0
	for _, t := range c.types() {
		if t == msgType {
			n++
		}
	}
	return n
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

// last decodes the data of the latest frame of msgType into v.
func (c *fakeConn) last(t *testing.T, msgType string, v any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i].Type == msgType {
			require.NoError(t, json.Unmarshal(c.frames[i].Data, v))
			return
		}
	}
	t.Fatalf("no %q frame among %d frames", msgType, len(c.frames))
}

type closer struct {
	mu     sync.Mutex
	closed bool
	cbs    []func()
}

func (c *closer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cbs := c.cbs
	c.cbs = nil
	c.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

func (c *closer) OnClose(cb func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cb()
		return
	}
	c.cbs = append(c.cbs, cb)
	c.mu.Unlock()
}

func (c *closer) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeEngine struct {
	fail    error
	mu      sync.Mutex
	routers []*fakeRouter
}

func (e *fakeEngine) CreateRouter(context.Context) (core.MediaRouter, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	r := &fakeRouter{id: nextID("router"), canConsume: true, producers: make(map[string]*fakeProducer)}
	e.mu.Lock()
	e.routers = append(e.routers, r)
	e.mu.Unlock()
	return r, nil
}

type fakeRouter struct {
	closer
	id         string
	canConsume bool

	mu        sync.Mutex
	producers map[string]*fakeProducer
}

func (r *fakeRouter) producer(id string) (*fakeProducer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[id]
	return p, ok
}

func (r *fakeRouter) ID() string                       { return r.id }
func (r *fakeRouter) RTPCapabilities() json.RawMessage { return json.RawMessage(`{"codecs":[]}`) }
func (r *fakeRouter) CanConsume(string, json.RawMessage) bool {
	return r.canConsume
}

func (r *fakeRouter) CreateTransport(_ context.Context, opts core.TransportOptions) (core.MediaTransport, error) {
	return &fakeTransport{id: nextID("transport"), dir: opts.Direction, router: r}, nil
}

type fakeTransport struct {
	closer
	id        string
	dir       core.TransportDirection
	router    *fakeRouter
	connected atomic.Bool
}

func (t *fakeTransport) ID() string { return t.id }
func (t *fakeTransport) Params() core.TransportParams {
	return core.TransportParams{
		ICEParameters:  map[string]string{"usernameFragment": "u"},
		ICECandidates:  []string{},
		DTLSParameters: map[string]string{"role": "auto"},
	}
}

func (t *fakeTransport) Connect(context.Context, json.RawMessage) error {
	if t.isClosed() {
		return errors.New("transport closed")
	}
	t.connected.Store(true)
	return nil
}

func (t *fakeTransport) Produce(_ context.Context, opts core.ProduceOptions) (core.MediaProducer, error) {
	p := &fakeProducer{id: nextID("producer"), kind: opts.Kind, owner: opts.OwnerID}
	t.router.mu.Lock()
	t.router.producers[p.id] = p
	t.router.mu.Unlock()
	t.OnClose(p.Close)
	return p, nil
}

func (t *fakeTransport) Consume(_ context.Context, opts core.ConsumeOptions) (core.MediaConsumer, error) {
	p, ok := t.router.producer(opts.ProducerID)
	if !ok {
		return nil, errors.New("unknown producer")
	}
	c := &fakeConsumer{id: nextID("consumer"), producerID: p.id, kind: p.kind}
	t.OnClose(c.Close)
	p.OnClose(c.Close)
	return c, nil
}

type fakeProducer struct {
	closer
	id    string
	kind  core.MediaKind
	owner string
}

func (p *fakeProducer) ID() string           { return p.id }
func (p *fakeProducer) Kind() core.MediaKind { return p.kind }
func (p *fakeProducer) OwnerID() string      { return p.owner }

type fakeConsumer struct {
	closer
	id         string
	producerID string
	kind       core.MediaKind
}

func (c *fakeConsumer) ID() string                     { return c.id }
func (c *fakeConsumer) Kind() core.MediaKind           { return c.kind }
func (c *fakeConsumer) ProducerID() string             { return c.producerID }
func (c *fakeConsumer) RTPParameters() json.RawMessage { return json.RawMessage(`{"codecs":[]}`) }

func newTestOrchestrator(maxUsers int) (*Orchestrator, *fakeEngine) {
	engine := &fakeEngine{}
	return &Orchestrator{
		Rooms:  app.NewRoomRegistry(app.RegistryOptions{MaxUsers: maxUsers}),
		Engine: engine,
		Policy: app.LogPolicy{},
	}, engine
}

func newClient() (*core.ConnContext, *fakeConn) {
	conn := &fakeConn{}
	return core.NewConnContext(conn, nextID("token")), conn
}
