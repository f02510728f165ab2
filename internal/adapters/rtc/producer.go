package rtc

import (
	"encoding/json"
	"math/rand/v2"
	"sync"

	"github.com/Gerondiz/backend-mediasoup/internal/core"
)

type Producer struct {
	closeNotifier
	id        string
	kind      core.MediaKind
	owner     string
	codec     codec
	transport *Transport

	mu        sync.Mutex
	consumers map[string]*Consumer
}

func (p *Producer) ID() string           { return p.id }
func (p *Producer) Kind() core.MediaKind { return p.kind }
func (p *Producer) OwnerID() string      { return p.owner }

// addConsumer reports false once the producer is closed.
func (p *Producer) addConsumer(c *Consumer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isClosed() {
		return false
	}
	p.consumers[c.id] = c
	return true
}

func (p *Producer) removeConsumer(id string) {
	p.mu.Lock()
	delete(p.consumers, id)
	p.mu.Unlock()
}

// Close also closes every consumer of this producer.
func (p *Producer) Close() {
	if !p.markClosed() {
		return
	}
	p.transport.router.removeProducer(p.id)
	p.transport.removeProducer(p.id)

	p.mu.Lock()
	consumers := make([]*Consumer, 0, len(p.consumers))
	for _, c := range p.consumers {
		consumers = append(consumers, c)
	}
	p.consumers = map[string]*Consumer{}
	p.mu.Unlock()
	for _, c := range consumers {
		c.Close()
	}
	p.notify()
}

type Consumer struct {
	closeNotifier
	id            string
	producer      *Producer
	transport     *Transport
	rtpParameters json.RawMessage
}

func newConsumer(id string, p *Producer, t *Transport) *Consumer {
	codecParams := capabilityOf(p.codec)
	codecParams.Kind = ""
	codecParams.PayloadType = codecParams.PreferredPayloadType
	codecParams.PreferredPayloadType = 0
	params, _ := json.Marshal(map[string]any{
		"codecs":    []codecCapability{codecParams},
		"encodings": []map[string]uint32{{"ssrc": rand.Uint32()}},
		"rtcp":      map[string]any{"cname": p.owner, "reducedSize": true},
	})
	return &Consumer{id: id, producer: p, transport: t, rtpParameters: params}
}

func (c *Consumer) ID() string                     { return c.id }
func (c *Consumer) Kind() core.MediaKind           { return c.producer.kind }
func (c *Consumer) ProducerID() string             { return c.producer.id }
func (c *Consumer) RTPParameters() json.RawMessage { return c.rtpParameters }

func (c *Consumer) Close() {
	if !c.markClosed() {
		return
	}
	c.producer.removeConsumer(c.id)
	c.transport.removeConsumer(c.id)
	c.notify()
}
