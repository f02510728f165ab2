package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/Gerondiz/backend-mediasoup/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []Frame
	fail   bool
	closed bool
}

func (c *fakeConn) TrySend(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail || c.closed {
		return errors.New("socket closing")
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		var m struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(f, &m)
		out = append(out, m.Type)
	}
	return out
}

type fakeRouter struct {
	id     string
	closed atomic.Bool
}

func (r *fakeRouter) ID() string                              { return r.id }
func (r *fakeRouter) RTPCapabilities() json.RawMessage        { return json.RawMessage(`{"codecs":[]}`) }
func (r *fakeRouter) CanConsume(string, json.RawMessage) bool { return true }
func (r *fakeRouter) Close()                                  { r.closed.Store(true) }
func (r *fakeRouter) CreateTransport(context.Context, TransportOptions) (MediaTransport, error) {
	return nil, errors.New("not implemented")
}

type fakeProducer struct {
	id    string
	owner string
}

func (p *fakeProducer) ID() string      { return p.id }
func (p *fakeProducer) Close()          {}
func (p *fakeProducer) OnClose(func())  {}
func (p *fakeProducer) Kind() MediaKind { return KindAudio }
func (p *fakeProducer) OwnerID() string { return p.owner }

func newTestMember(name string, sid domain.SessionID, conn SignalConnection) *Member {
	u, err := domain.NewUser(name, sid)
	if err != nil {
		panic(err)
	}
	return NewMember(u, conn)
}
