package rtc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/Gerondiz/backend-mediasoup/internal/core"
)

type Options struct {
	MinPort       uint16
	MaxPort       uint16
	AnnouncedIP   string
	ICEServers    []webrtc.ICEServer
	GatherTimeout time.Duration
}

func DefaultICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
	}
}

// Engine is a core.MediaEngine backed by pion's ORTC API. Transports gather
// real ICE candidates and carry real DTLS certificates; moving RTP between
// them is left to the media plane.
type Engine struct {
	api           *webrtc.API
	codecs        []codec
	iceServers    []webrtc.ICEServer
	gatherTimeout time.Duration
}

func NewEngine(opts Options) (*Engine, error) {
	m := &webrtc.MediaEngine{}
	for _, c := range defaultCodecs {
		if err := m.RegisterCodec(c.params, c.typ()); err != nil {
			return nil, fmt.Errorf("failed to register codec %s: %w", c.params.MimeType, err)
		}
	}

	se := webrtc.SettingEngine{}
	if opts.MinPort > 0 && opts.MaxPort >= opts.MinPort {
		if err := se.SetEphemeralUDPPortRange(opts.MinPort, opts.MaxPort); err != nil {
			return nil, fmt.Errorf("failed to set UDP port range: %w", err)
		}
	}
	if opts.AnnouncedIP != "" {
		se.SetNAT1To1IPs([]string{opts.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}

	if opts.ICEServers == nil {
		opts.ICEServers = DefaultICEServers()
	}
	if opts.GatherTimeout <= 0 {
		opts.GatherTimeout = 5 * time.Second
	}

	log.Info().Str("module", "rtc").Uint16("min_port", opts.MinPort).Uint16("max_port", opts.MaxPort).Str("announced_ip", opts.AnnouncedIP).Msg("media engine ready")
	return &Engine{
		api:           webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se)),
		codecs:        defaultCodecs,
		iceServers:    opts.ICEServers,
		gatherTimeout: opts.GatherTimeout,
	}, nil
}

// ICEServers is the list handed to clients.
func (e *Engine) ICEServers() []webrtc.ICEServer { return e.iceServers }

func (e *Engine) CreateRouter(ctx context.Context) (core.MediaRouter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := newRouter(uuid.NewString(), e.codecs, e.newTransportParams)
	log.Info().Str("module", "rtc").Str("router_id", r.id).Msg("router created")
	return r, nil
}
