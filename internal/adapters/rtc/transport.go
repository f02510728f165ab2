package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/Gerondiz/backend-mediasoup/internal/core"
)

var (
	errWrongDirection   = errors.New("wrong transport direction")
	errAlreadyConnected = errors.New("transport already connected")
	errNoFingerprint    = errors.New("dtls parameters without fingerprints")
	errUnknownProducer  = errors.New("unknown producer")
	errIncompatible     = errors.New("rtp capabilities do not match producer codec")
)

type iceParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	ICELite          bool   `json:"iceLite"`
}

type iceCandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	IP         string `json:"ip"`
	Address    string `json:"address"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
}

type dtlsFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

type dtlsParameters struct {
	Role         string            `json:"role"`
	Fingerprints []dtlsFingerprint `json:"fingerprints"`
}

// ortc holds the pion objects behind a transport.
type ortc struct {
	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport
	params   core.TransportParams
}

func (e *Engine) newTransportParams(ctx context.Context) (*ortc, error) {
	ctx, cancel := context.WithTimeout(ctx, e.gatherTimeout)
	defer cancel()

	gatherer, err := e.api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: e.iceServers})
	if err != nil {
		return nil, fmt.Errorf("ice gatherer: %w", err)
	}
	done := make(chan struct{})
	var once sync.Once
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			once.Do(func() { close(done) })
		}
	})
	if err := gatherer.Gather(); err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("gather: %w", err)
	}
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Str("module", "rtc").Msg("ice gathering timed out, using partial candidates")
	}

	localICE, err := gatherer.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("ice parameters: %w", err)
	}
	candidates, err := gatherer.GetLocalCandidates()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("ice candidates: %w", err)
	}

	ice := e.api.NewICETransport(gatherer)
	dtls, err := e.api.NewDTLSTransport(ice, nil)
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("dtls transport: %w", err)
	}
	localDTLS, err := dtls.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("dtls parameters: %w", err)
	}

	o := &ortc{gatherer: gatherer, ice: ice, dtls: dtls}
	o.params = core.TransportParams{
		ICEParameters: iceParameters{
			UsernameFragment: localICE.UsernameFragment,
			Password:         localICE.Password,
			ICELite:          localICE.ICELite,
		},
		ICECandidates:  convertCandidates(candidates),
		DTLSParameters: convertDTLS(localDTLS),
	}
	return o, nil
}

func convertCandidates(in []webrtc.ICECandidate) []iceCandidate {
	out := make([]iceCandidate, 0, len(in))
	for _, c := range in {
		out = append(out, iceCandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			IP:         c.Address,
			Address:    c.Address,
			Protocol:   c.Protocol.String(),
			Port:       c.Port,
			Type:       c.Typ.String(),
		})
	}
	return out
}

func convertDTLS(in webrtc.DTLSParameters) dtlsParameters {
	out := dtlsParameters{Role: "auto", Fingerprints: make([]dtlsFingerprint, 0, len(in.Fingerprints))}
	for _, f := range in.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, dtlsFingerprint{Algorithm: f.Algorithm, Value: f.Value})
	}
	return out
}

func (o *ortc) close() {
	if o == nil {
		return
	}
	if err := o.dtls.Stop(); err != nil {
		log.Debug().Err(err).Str("module", "rtc").Msg("dtls stop")
	}
	if err := o.ice.Stop(); err != nil {
		log.Debug().Err(err).Str("module", "rtc").Msg("ice stop")
	}
	if err := o.gatherer.Close(); err != nil {
		log.Debug().Err(err).Str("module", "rtc").Msg("gatherer close")
	}
}

type Transport struct {
	closeNotifier
	id        string
	direction core.TransportDirection
	router    *Router
	ortc      *ortc

	mu        sync.Mutex
	remote    *dtlsParameters
	producers map[string]*Producer
	consumers map[string]*Consumer
}

func newTransport(id string, dir core.TransportDirection, r *Router, o *ortc) *Transport {
	t := &Transport{
		id:        id,
		direction: dir,
		router:    r,
		ortc:      o,
		producers: make(map[string]*Producer),
		consumers: make(map[string]*Consumer),
	}
	if o != nil {
		o.dtls.OnStateChange(func(s webrtc.DTLSTransportState) {
			log.Debug().Str("module", "rtc").Str("transport_id", id).Str("dtls_state", s.String()).Msg("dtls state")
			if s == webrtc.DTLSTransportStateFailed || s == webrtc.DTLSTransportStateClosed {
				// pion invokes this under its own lock.
				go t.Close()
			}
		})
	}
	return t
}

func (t *Transport) ID() string { return t.id }

func (t *Transport) Params() core.TransportParams {
	if t.ortc == nil {
		return core.TransportParams{}
	}
	return t.ortc.params
}

// Connect records the client's DTLS parameters. Only one connect is allowed.
func (t *Transport) Connect(_ context.Context, raw json.RawMessage) error {
	var remote dtlsParameters
	if err := json.Unmarshal(raw, &remote); err != nil {
		return fmt.Errorf("parse dtls parameters: %w", err)
	}
	if len(remote.Fingerprints) == 0 {
		return errNoFingerprint
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isClosed() {
		return errClosed
	}
	if t.remote != nil {
		return errAlreadyConnected
	}
	t.remote = &remote
	log.Debug().Str("module", "rtc").Str("transport_id", t.id).Str("role", remote.Role).Msg("transport connected")
	return nil
}

func (t *Transport) Produce(_ context.Context, opts core.ProduceOptions) (core.MediaProducer, error) {
	if t.direction != core.DirectionSend {
		return nil, errWrongDirection
	}
	c, err := selectCodec(t.router.codecs, opts.Kind, opts.RTPParameters)
	if err != nil {
		return nil, err
	}
	p := &Producer{
		id:        uuid.NewString(),
		kind:      opts.Kind,
		owner:     opts.OwnerID,
		codec:     c,
		transport: t,
		consumers: make(map[string]*Consumer),
	}
	t.mu.Lock()
	if t.isClosed() {
		t.mu.Unlock()
		return nil, errClosed
	}
	t.producers[p.id] = p
	t.mu.Unlock()
	t.router.addProducer(p)
	return p, nil
}

func (t *Transport) Consume(_ context.Context, opts core.ConsumeOptions) (core.MediaConsumer, error) {
	if t.direction != core.DirectionRecv {
		return nil, errWrongDirection
	}
	p, ok := t.router.producer(opts.ProducerID)
	if !ok {
		return nil, errUnknownProducer
	}
	if !supports(opts.RTPCapabilities, p.codec) {
		return nil, errIncompatible
	}
	c := newConsumer(uuid.NewString(), p, t)

	t.mu.Lock()
	if t.isClosed() {
		t.mu.Unlock()
		return nil, errClosed
	}
	t.consumers[c.id] = c
	t.mu.Unlock()

	if !p.addConsumer(c) {
		c.Close()
		return nil, errClosed
	}
	return c, nil
}

func (t *Transport) removeProducer(id string) {
	t.mu.Lock()
	delete(t.producers, id)
	t.mu.Unlock()
}

func (t *Transport) removeConsumer(id string) {
	t.mu.Lock()
	delete(t.consumers, id)
	t.mu.Unlock()
}

// Close closes the transport's producers and consumers first.
func (t *Transport) Close() {
	if !t.markClosed() {
		return
	}
	t.router.removeTransport(t.id)

	t.mu.Lock()
	producers := make([]*Producer, 0, len(t.producers))
	for _, p := range t.producers {
		producers = append(producers, p)
	}
	consumers := make([]*Consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	t.mu.Unlock()

	for _, p := range producers {
		p.Close()
	}
	for _, c := range consumers {
		c.Close()
	}
	t.ortc.close()
	t.notify()
}
