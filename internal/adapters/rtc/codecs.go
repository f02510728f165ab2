package rtc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/Gerondiz/backend-mediasoup/internal/core"
)

type codec struct {
	kind   core.MediaKind
	params webrtc.RTPCodecParameters
}

func (c codec) typ() webrtc.RTPCodecType {
	if c.kind == core.KindVideo {
		return webrtc.RTPCodecTypeVideo
	}
	return webrtc.RTPCodecTypeAudio
}

// defaultCodecs is what every router offers, in preference order per kind.
var defaultCodecs = []codec{
	{core.KindAudio, webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2, SDPFmtpLine: "minptime=10;useinbandfec=1"},
		PayloadType:        111,
	}},
	{core.KindVideo, webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		PayloadType:        96,
	}},
	{core.KindVideo, webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000, SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f"},
		PayloadType:        102,
	}},
}

// codecCapability is the JSON shape of one codec in RTP capabilities and
// RTP parameters.
type codecCapability struct {
	Kind                 core.MediaKind    `json:"kind,omitempty"`
	MimeType             string            `json:"mimeType"`
	ClockRate            uint32            `json:"clockRate"`
	Channels             uint16            `json:"channels,omitempty"`
	PreferredPayloadType uint8             `json:"preferredPayloadType,omitempty"`
	PayloadType          uint8             `json:"payloadType,omitempty"`
	Parameters           map[string]string `json:"parameters,omitempty"`
}

type rtpCapabilities struct {
	Codecs           []codecCapability `json:"codecs"`
	HeaderExtensions []any             `json:"headerExtensions"`
}

func capabilityOf(c codec) codecCapability {
	return codecCapability{
		Kind:                 c.kind,
		MimeType:             c.params.MimeType,
		ClockRate:            c.params.ClockRate,
		Channels:             c.params.Channels,
		PreferredPayloadType: uint8(c.params.PayloadType),
		Parameters:           fmtpParameters(c.params.SDPFmtpLine),
	}
}

func fmtpParameters(line string) map[string]string {
	if line == "" {
		return nil
	}
	out := make(map[string]string)
	for _, kv := range strings.Split(line, ";") {
		k, v, _ := strings.Cut(strings.TrimSpace(kv), "=")
		if k != "" {
			out[k] = v
		}
	}
	return out
}

func capabilitiesJSON(codecs []codec) json.RawMessage {
	caps := rtpCapabilities{Codecs: make([]codecCapability, 0, len(codecs)), HeaderExtensions: []any{}}
	for _, c := range codecs {
		caps.Codecs = append(caps.Codecs, capabilityOf(c))
	}
	b, _ := json.Marshal(caps)
	return b
}

// parseCodecs reads the codecs array of RTP parameters or capabilities.
func parseCodecs(raw json.RawMessage) ([]codecCapability, error) {
	var v struct {
		Codecs []codecCapability `json:"codecs"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v.Codecs, nil
}

func matches(a, b codecCapability) bool {
	if !strings.EqualFold(a.MimeType, b.MimeType) {
		return false
	}
	return a.ClockRate == 0 || b.ClockRate == 0 || a.ClockRate == b.ClockRate
}

func isRTX(c codecCapability) bool {
	return strings.HasSuffix(strings.ToLower(c.MimeType), "/rtx")
}

// selectCodec picks the router codec a producer sends with: the first
// non-RTX codec of its parameters, or the router default for kind when the
// parameters list none.
func selectCodec(codecs []codec, kind core.MediaKind, rtpParameters json.RawMessage) (codec, error) {
	offered, err := parseCodecs(rtpParameters)
	if err != nil {
		return codec{}, fmt.Errorf("parse rtp parameters: %w", err)
	}
	for _, o := range offered {
		if isRTX(o) {
			continue
		}
		for _, c := range codecs {
			if c.kind == kind && matches(capabilityOf(c), o) {
				return c, nil
			}
		}
		return codec{}, fmt.Errorf("unsupported %s codec %q", kind, o.MimeType)
	}
	for _, c := range codecs {
		if c.kind == kind {
			return c, nil
		}
	}
	return codec{}, fmt.Errorf("no %s codec configured", kind)
}

// supports reports whether caps lists a codec compatible with c.
func supports(caps json.RawMessage, c codec) bool {
	offered, err := parseCodecs(caps)
	if err != nil {
		return false
	}
	want := capabilityOf(c)
	for _, o := range offered {
		if matches(want, o) {
			return true
		}
	}
	return false
}
