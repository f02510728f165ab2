package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Gerondiz/backend-mediasoup/internal/core"
)

var errClosed = errors.New("closed")

// Router groups the transports and producers of one room.
type Router struct {
	closeNotifier
	id      string
	codecs  []codec
	caps    json.RawMessage
	newORTC func(context.Context) (*ortc, error)

	mu         sync.RWMutex
	transports map[string]*Transport
	producers  map[string]*Producer
}

func newRouter(id string, codecs []codec, newORTC func(context.Context) (*ortc, error)) *Router {
	return &Router{
		id:         id,
		codecs:     codecs,
		caps:       capabilitiesJSON(codecs),
		newORTC:    newORTC,
		transports: make(map[string]*Transport),
		producers:  make(map[string]*Producer),
	}
}

func (r *Router) ID() string { return r.id }

func (r *Router) RTPCapabilities() json.RawMessage { return r.caps }

func (r *Router) CreateTransport(ctx context.Context, opts core.TransportOptions) (core.MediaTransport, error) {
	if r.isClosed() {
		return nil, errClosed
	}
	var o *ortc
	if r.newORTC != nil {
		var err error
		if o, err = r.newORTC(ctx); err != nil {
			return nil, err
		}
	}
	t := newTransport(uuid.NewString(), opts.Direction, r, o)

	r.mu.Lock()
	if r.isClosed() {
		r.mu.Unlock()
		t.Close()
		return nil, errClosed
	}
	r.transports[t.id] = t
	r.mu.Unlock()

	log.Debug().Str("module", "rtc").Str("router_id", r.id).Str("transport_id", t.id).Str("direction", string(opts.Direction)).Msg("transport created")
	return t, nil
}

// CanConsume reports whether caps can receive the producer's codec.
func (r *Router) CanConsume(producerID string, caps json.RawMessage) bool {
	p, ok := r.producer(producerID)
	if !ok || p.isClosed() {
		return false
	}
	return supports(caps, p.codec)
}

func (r *Router) producer(id string) (*Producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[id]
	return p, ok
}

func (r *Router) addProducer(p *Producer) {
	r.mu.Lock()
	r.producers[p.id] = p
	r.mu.Unlock()
}

func (r *Router) removeProducer(id string) {
	r.mu.Lock()
	delete(r.producers, id)
	r.mu.Unlock()
}

func (r *Router) removeTransport(id string) {
	r.mu.Lock()
	delete(r.transports, id)
	r.mu.Unlock()
}

func (r *Router) Close() {
	if !r.markClosed() {
		return
	}
	r.mu.Lock()
	transports := make([]*Transport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	r.mu.Unlock()
	for _, t := range transports {
		t.Close()
	}
	log.Info().Str("module", "rtc").Str("router_id", r.id).Msg("router closed")
	r.notify()
}
