package signal

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/Gerondiz/backend-mediasoup/internal/core"
	"github.com/Gerondiz/backend-mediasoup/internal/domain"
)

const maxRoomIDLen = 64

var errDataFormat = core.Invalid("data", "Invalid data format")

type object map[string]json.RawMessage

// asObject decodes raw as a JSON object. Absent data is rejected.
func asObject(raw json.RawMessage) (object, error) {
	if !isKind(raw, '{') {
		return nil, errDataFormat
	}
	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, errDataFormat
	}
	return obj, nil
}

func isKind(raw json.RawMessage, open byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == open
}

func isAbsent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// str reports false when key is missing or not a JSON string.
func (o object) str(key string) (string, bool) {
	raw, ok := o[key]
	if !ok || !isKind(raw, '"') {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func (o object) requiredID(key, msg string) (string, error) {
	s, ok := o.str(key)
	if !ok || s == "" {
		return "", core.Invalid(key, msg)
	}
	return s, nil
}

func (o object) requiredObject(key, msg string) (json.RawMessage, error) {
	raw, ok := o[key]
	if !ok || !isKind(raw, '{') {
		return nil, core.Invalid(key, msg)
	}
	return raw, nil
}

func validateJoin(raw json.RawMessage) (core.JoinRequest, error) {
	obj, err := asObject(raw)
	if err != nil {
		return core.JoinRequest{}, err
	}
	roomID, ok := obj.str("roomId")
	roomID = strings.TrimSpace(roomID)
	if !ok || roomID == "" {
		return core.JoinRequest{}, core.Invalid("roomId", "Room ID is required")
	}
	if len(roomID) > maxRoomIDLen {
		return core.JoinRequest{}, core.Invalid("roomId", "Room ID is too long")
	}
	username, ok := obj.str("username")
	username = strings.TrimSpace(username)
	if !ok || username == "" {
		return core.JoinRequest{}, core.Invalid("username", "Username is required")
	}
	if len(username) > domain.MaxUsernameLen {
		return core.JoinRequest{}, core.Invalid("username", "Username is too long")
	}
	sid, ok := obj.str("sessionId")
	if !ok {
		return core.JoinRequest{}, core.Invalid("sessionId", "Session ID is required")
	}
	sid = strings.TrimSpace(sid)
	if len(sid) > domain.MaxSessionIDLen {
		return core.JoinRequest{}, core.Invalid("sessionId", "Session ID is too long")
	}
	return core.JoinRequest{
		RoomID:    domain.RoomID(roomID),
		Username:  username,
		SessionID: domain.SessionID(sid),
	}, nil
}

func validateCreateTransport(raw json.RawMessage) (core.CreateTransportRequest, error) {
	obj, err := asObject(raw)
	if err != nil {
		return core.CreateTransportRequest{}, err
	}
	dir, _ := obj.str("direction")
	switch core.TransportDirection(dir) {
	case core.DirectionSend, core.DirectionRecv:
		return core.CreateTransportRequest{Direction: core.TransportDirection(dir)}, nil
	}
	return core.CreateTransportRequest{}, core.Invalid("direction", "Direction must be send or recv")
}

func validateConnectTransport(raw json.RawMessage) (core.ConnectTransportRequest, error) {
	obj, err := asObject(raw)
	if err != nil {
		return core.ConnectTransportRequest{}, err
	}
	tid, err := obj.requiredID("transportId", "Transport ID is required")
	if err != nil {
		return core.ConnectTransportRequest{}, err
	}
	dtls, err := obj.requiredObject("dtlsParameters", "DTLS parameters are required")
	if err != nil {
		return core.ConnectTransportRequest{}, err
	}
	return core.ConnectTransportRequest{TransportID: tid, DTLSParameters: dtls}, nil
}

func validateProduce(raw json.RawMessage) (core.ProduceRequest, error) {
	obj, err := asObject(raw)
	if err != nil {
		return core.ProduceRequest{}, err
	}
	tid, err := obj.requiredID("transportId", "Transport ID is required")
	if err != nil {
		return core.ProduceRequest{}, err
	}
	kind, _ := obj.str("kind")
	if k := core.MediaKind(kind); k != core.KindAudio && k != core.KindVideo {
		return core.ProduceRequest{}, core.Invalid("kind", "Kind must be audio or video")
	}
	rtp, err := obj.requiredObject("rtpParameters", "RTP parameters are required")
	if err != nil {
		return core.ProduceRequest{}, err
	}
	params, _ := asObject(rtp)
	if !isKind(params["codecs"], '[') {
		return core.ProduceRequest{}, core.Invalid("rtpParameters", "RTP parameters must include codecs array")
	}
	if !isKind(params["encodings"], '[') {
		return core.ProduceRequest{}, core.Invalid("rtpParameters", "RTP parameters must include encodings array")
	}
	return core.ProduceRequest{TransportID: tid, Kind: core.MediaKind(kind), RTPParameters: rtp}, nil
}

func validateConsume(raw json.RawMessage) (core.ConsumeRequest, error) {
	obj, err := asObject(raw)
	if err != nil {
		return core.ConsumeRequest{}, err
	}
	tid, err := obj.requiredID("transportId", "Transport ID is required")
	if err != nil {
		return core.ConsumeRequest{}, err
	}
	pid, err := obj.requiredID("producerId", "Producer ID is required")
	if err != nil {
		return core.ConsumeRequest{}, err
	}
	caps, err := obj.requiredObject("rtpCapabilities", "RTP capabilities are required")
	if err != nil {
		return core.ConsumeRequest{}, err
	}
	return core.ConsumeRequest{TransportID: tid, ProducerID: pid, RTPCapabilities: caps}, nil
}

func validateChat(raw json.RawMessage) (core.ChatRequest, error) {
	obj, err := asObject(raw)
	if err != nil {
		return core.ChatRequest{}, err
	}
	text, ok := obj.str("text")
	text = strings.TrimSpace(text)
	if !ok || text == "" {
		return core.ChatRequest{}, core.Invalid("text", "Message text is required")
	}
	return core.ChatRequest{Text: text}, nil
}

// validateEmpty accepts absent data or any object.
func validateEmpty(raw json.RawMessage) (core.Empty, error) {
	if isAbsent(raw) || isKind(raw, '{') {
		return core.Empty{}, nil
	}
	return core.Empty{}, errDataFormat
}
