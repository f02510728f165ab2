package signal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/Gerondiz/backend-mediasoup/internal/core"
	"github.com/Gerondiz/backend-mediasoup/internal/domain"
)

type sent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type recordingConn struct {
	mu     sync.Mutex
	frames []sent
}

func (c *recordingConn) TrySend(f core.Frame) error {
	var s sent
	if err := json.Unmarshal(f, &s); err != nil {
		return err
	}
	c.mu.Lock()
	c.frames = append(c.frames, s)
	c.mu.Unlock()
	return nil
}

func (c *recordingConn) Close() {}

func (c *recordingConn) lastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i].Type == core.TypeError {
			var e struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(c.frames[i].Data, &e)
			return e.Message
		}
	}
	return ""
}

func (c *recordingConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, f.Type)
	}
	return out
}

// stubHandlers records calls; Join binds the context to a throwaway room.
type stubHandlers struct {
	mu          sync.Mutex
	calls       []string
	joins       []core.JoinRequest
	disconnects int
	fail        error
}

func (h *stubHandlers) record(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, name)
	return h.fail
}

func (h *stubHandlers) called() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *stubHandlers) disconnectCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disconnects
}

func (h *stubHandlers) Join(_ context.Context, cc *core.ConnContext, req core.JoinRequest) error {
	if err := h.record("join"); err != nil {
		return err
	}
	h.mu.Lock()
	h.joins = append(h.joins, req)
	h.mu.Unlock()
	u, err := domain.NewUser(req.Username, req.SessionID)
	if err != nil {
		return err
	}
	room := core.NewRoom(req.RoomID, 10, -1)
	m := core.NewMember(u, cc.Conn)
	if err := room.AddMember(m); err != nil {
		return err
	}
	cc.Bind(m, room)
	return cc.Send(core.TypeJoined, map[string]string{"roomId": string(req.RoomID)})
}

func (h *stubHandlers) Leave(cc *core.ConnContext) {
	_ = h.record("leave")
	cc.Clear()
}

func (h *stubHandlers) Disconnect(cc *core.ConnContext) {
	h.mu.Lock()
	h.disconnects++
	h.mu.Unlock()
	cc.Clear()
}

func (h *stubHandlers) CreateTransport(context.Context, *core.ConnContext, core.CreateTransportRequest) error {
	return h.record("create-transport")
}

func (h *stubHandlers) ConnectTransport(context.Context, *core.ConnContext, core.ConnectTransportRequest) error {
	return h.record("connect-transport")
}

func (h *stubHandlers) Produce(context.Context, *core.ConnContext, core.ProduceRequest) error {
	return h.record("produce")
}

func (h *stubHandlers) Consume(context.Context, *core.ConnContext, core.ConsumeRequest) error {
	return h.record("consume")
}

func (h *stubHandlers) Producers(context.Context, *core.ConnContext) error {
	return h.record("get-producers")
}

func (h *stubHandlers) Chat(context.Context, *core.ConnContext, core.ChatRequest) error {
	return h.record("chat-message")
}

func (h *stubHandlers) ChatHistory(context.Context, *core.ConnContext) error {
	return h.record("get-chat-history")
}

var errWorkerCrashed = errors.New("worker crashed")
