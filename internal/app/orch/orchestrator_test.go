package orch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Gerondiz/backend-mediasoup/internal/app"
	"github.com/Gerondiz/backend-mediasoup/internal/core"
	"github.com/Gerondiz/backend-mediasoup/internal/domain"
)

var (
	testRTP  = json.RawMessage(`{"codecs":[],"encodings":[]}`)
	testCaps = json.RawMessage(`{"codecs":[{"mimeType":"audio/opus"}]}`)
)

func join(t *testing.T, o *Orchestrator, cc *core.ConnContext, room, name, sid string) {
	t.Helper()
	require.NoError(t, o.Join(context.Background(), cc, core.JoinRequest{
		RoomID:    domain.RoomID(room),
		Username:  name,
		SessionID: domain.SessionID(sid),
	}))
}

func createTransport(t *testing.T, o *Orchestrator, cc *core.ConnContext, conn *fakeConn, dir core.TransportDirection) string {
	t.Helper()
	require.NoError(t, o.CreateTransport(context.Background(), cc, core.CreateTransportRequest{Direction: dir}))
	var created transportCreated
	conn.last(t, core.TypeTransportCreated, &created)
	require.Equal(t, dir, created.Direction)
	require.NotNil(t, created.DTLSParameters)
	return created.TransportID
}

func TestTwoUsersEndToEnd(t *testing.T) {
	ctx := context.Background()
	o, engine := newTestOrchestrator(10)
	a, aConn := newClient()
	b, bConn := newClient()

	join(t, o, a, "r", "alice", "sa")
	var aJoined joined
	aConn.last(t, core.TypeJoined, &aJoined)
	require.Equal(t, domain.RoomID("r"), aJoined.RoomID)
	require.Len(t, aJoined.Users, 1)
	require.Equal(t, domain.SessionID("sa"), aJoined.SessionID)
	require.JSONEq(t, `{"codecs":[]}`, string(aJoined.RTPCapabilities))
	require.Empty(t, aJoined.ChatHistory)

	join(t, o, b, "r", "bob", "sb")
	var bJoined joined
	bConn.last(t, core.TypeJoined, &bJoined)
	require.Len(t, bJoined.Users, 2)
	require.Equal(t, "alice", bJoined.Users[0].Username)
	require.Equal(t, "bob", bJoined.Users[1].Username)

	var uj userJoined
	aConn.last(t, core.TypeUserJoined, &uj)
	require.Equal(t, "bob", uj.User.Username)
	require.Zero(t, bConn.count(core.TypeUserJoined))
	var upd usersUpdated
	aConn.last(t, core.TypeUsersUpdated, &upd)
	require.Len(t, upd.Users, 2)
	require.Len(t, engine.routers, 1)

	// Alice publishes audio.
	sendID := createTransport(t, o, a, aConn, core.DirectionSend)
	require.NoError(t, o.ConnectTransport(ctx, a, core.ConnectTransportRequest{TransportID: sendID, DTLSParameters: json.RawMessage(`{}`)}))
	var tc transportConnected
	aConn.last(t, core.TypeTransportConnected, &tc)
	require.Equal(t, sendID, tc.TransportID)

	require.NoError(t, o.Produce(ctx, a, core.ProduceRequest{TransportID: sendID, Kind: core.KindAudio, RTPParameters: testRTP}))
	var prod produced
	aConn.last(t, core.TypeProduced, &prod)
	var np newProducer
	bConn.last(t, core.TypeNewProducer, &np)
	require.Equal(t, prod.ProducerID, np.ProducerID)
	require.Equal(t, aJoined.Users[0].ID, np.UserID)
	require.Equal(t, core.KindAudio, np.Kind)
	require.Zero(t, aConn.count(core.TypeNewProducer))

	// Bob consumes it.
	recvID := createTransport(t, o, b, bConn, core.DirectionRecv)
	require.NoError(t, o.Consume(ctx, b, core.ConsumeRequest{TransportID: recvID, ProducerID: prod.ProducerID, RTPCapabilities: testCaps}))
	var cons consumed
	bConn.last(t, core.TypeConsumed, &cons)
	require.Equal(t, prod.ProducerID, cons.ProducerID)
	require.Equal(t, np.UserID, cons.UserID)
	require.NotEmpty(t, cons.ConsumerID)
	require.JSONEq(t, string(testCaps), string(b.User().RTPCapabilities()))

	require.NoError(t, o.Producers(ctx, b))
	var list producersList
	bConn.last(t, core.TypeProducersList, &list)
	require.Equal(t, []core.ProducerInfo{{ProducerID: prod.ProducerID, UserID: np.UserID, Kind: core.KindAudio}}, list.Producers)

	room, ok := o.Rooms.Get("r")
	require.True(t, ok)
	tr, pr, co := room.ResourceCounts()
	require.Equal(t, [3]int{2, 1, 1}, [3]int{tr, pr, co})

	// Alice's connection drops.
	bConn.reset()
	o.Disconnect(a)
	_, _, joinedNow := a.Joined()
	require.False(t, joinedNow)
	require.Equal(t, []string{
		core.TypeUserConnectionStatus,
		core.TypeProducerClosed,
		core.TypeUserLeft,
		core.TypeUsersUpdated,
	}, bConn.types())
	var pc producerClosed
	bConn.last(t, core.TypeProducerClosed, &pc)
	require.Equal(t, prod.ProducerID, pc.ProducerID)
	var left userLeft
	bConn.last(t, core.TypeUserLeft, &left)
	require.Equal(t, "alice", left.Username)

	tr, pr, co = room.ResourceCounts()
	require.Equal(t, [3]int{1, 0, 0}, [3]int{tr, pr, co}, "producer close cascades to bob's consumer")
	require.Equal(t, 1, room.MemberCount())

	// Second disconnect is a no-op.
	o.Disconnect(a)
	require.Equal(t, 4, len(bConn.types()))

	o.Leave(b)
	_, ok = o.Rooms.Get("r")
	require.False(t, ok)
	require.True(t, engine.routers[0].isClosed())
}

func TestReconnectRebindsSession(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(10)
	first, firstConn := newClient()
	other, otherConn := newClient()

	join(t, o, first, "r", "alice", "s1")
	join(t, o, other, "r", "bob", "s2")
	originalID := first.User().ID()

	tid := createTransport(t, o, first, firstConn, core.DirectionSend)
	require.NoError(t, o.Produce(ctx, first, core.ProduceRequest{TransportID: tid, Kind: core.KindAudio, RTPParameters: testRTP}))

	otherConn.reset()
	second, secondConn := newClient()
	join(t, o, second, "r", "alice", "s1")

	require.Equal(t, originalID, second.User().ID())
	room, _ := o.Rooms.Get("r")
	require.Equal(t, 2, room.MemberCount())
	require.True(t, firstConn.isClosed())

	var status connectionStatus
	otherConn.last(t, core.TypeUserConnectionStatus, &status)
	require.True(t, status.IsConnected)
	require.Equal(t, originalID, status.UserID)
	require.Equal(t, 1, otherConn.count(core.TypeProducerClosed))
	tr, pr, _ := room.ResourceCounts()
	require.Zero(t, tr)
	require.Zero(t, pr)

	var j joined
	secondConn.last(t, core.TypeJoined, &j)
	require.Equal(t, domain.SessionID("s1"), j.SessionID)
	require.Len(t, j.Users, 2)

	// The stale connection closing must not evict the rebound user.
	o.Disconnect(first)
	require.Equal(t, 2, room.MemberCount())
	require.Same(t, secondConn, room.Members()[0].Signal())
	require.True(t, room.Members()[0].Connected())
}

func TestJoinRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("room full", func(t *testing.T) {
		o, _ := newTestOrchestrator(1)
		a, _ := newClient()
		b, _ := newClient()
		join(t, o, a, "r", "alice", "sa")
		err := o.Join(ctx, b, core.JoinRequest{RoomID: "r", Username: "bob", SessionID: "sb"})
		require.ErrorIs(t, err, core.ErrRoomFull)
		require.Equal(t, "Room is full", core.PublicMessage(err))

		// A reconnecting session does not need a free slot.
		a2, _ := newClient()
		join(t, o, a2, "r", "alice", "sa")
	})

	t.Run("other room while joined", func(t *testing.T) {
		o, _ := newTestOrchestrator(10)
		a, _ := newClient()
		join(t, o, a, "r1", "alice", "sa")
		err := o.Join(ctx, a, core.JoinRequest{RoomID: "r2", Username: "alice", SessionID: "sa"})
		require.ErrorIs(t, err, core.ErrAlreadyJoined)
		_, room, _ := a.Joined()
		require.Equal(t, domain.RoomID("r1"), room.ID())
	})

	t.Run("engine failure is generic", func(t *testing.T) {
		o, engine := newTestOrchestrator(10)
		engine.fail = errors.New("worker died: pid 42")
		a, _ := newClient()
		err := o.Join(ctx, a, core.JoinRequest{RoomID: "r", Username: "alice", SessionID: "sa"})
		require.ErrorIs(t, err, core.ErrEngineFailure)
		require.Equal(t, "Failed to join room", core.PublicMessage(err))
		require.Zero(t, o.Rooms.Count())
	})

	t.Run("engine failure keeps an admin-created room", func(t *testing.T) {
		o, engine := newTestOrchestrator(10)
		created, err := o.Rooms.Create("ADMIN1")
		require.NoError(t, err)
		engine.fail = errors.New("worker died")
		a, _ := newClient()
		err = o.Join(ctx, a, core.JoinRequest{RoomID: "ADMIN1", Username: "alice", SessionID: "sa"})
		require.ErrorIs(t, err, core.ErrEngineFailure)
		got, ok := o.Rooms.Get("ADMIN1")
		require.True(t, ok)
		require.Same(t, created, got)
		require.False(t, got.Closed())

		engine.fail = nil
		join(t, o, a, "ADMIN1", "alice", "sa")
	})

	t.Run("too long username", func(t *testing.T) {
		o, _ := newTestOrchestrator(10)
		a, _ := newClient()
		long := make([]byte, domain.MaxUsernameLen+1)
		for i := range long {
			long[i] = 'x'
		}
		err := o.Join(ctx, a, core.JoinRequest{RoomID: "r", Username: string(long), SessionID: "sa"})
		require.ErrorIs(t, err, core.ErrValidation)
		require.Zero(t, o.Rooms.Count())
	})
}

func TestEmptySessionFallsBackToClientToken(t *testing.T) {
	o, _ := newTestOrchestrator(10)
	conn := &fakeConn{}
	cc := core.NewConnContext(conn, "cookie-token")
	join(t, o, cc, "r", "alice", "")
	var j joined
	conn.last(t, core.TypeJoined, &j)
	require.Equal(t, domain.SessionID("cookie-token"), j.SessionID)
}

func TestHandlersRequireJoin(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(10)
	cc, conn := newClient()

	for name, call := range map[string]func() error{
		"create-transport":  func() error { return o.CreateTransport(ctx, cc, core.CreateTransportRequest{Direction: core.DirectionSend}) },
		"connect-transport": func() error { return o.ConnectTransport(ctx, cc, core.ConnectTransportRequest{TransportID: "t"}) },
		"produce":           func() error { return o.Produce(ctx, cc, core.ProduceRequest{TransportID: "t"}) },
		"consume":           func() error { return o.Consume(ctx, cc, core.ConsumeRequest{TransportID: "t"}) },
		"get-producers":     func() error { return o.Producers(ctx, cc) },
		"chat-message":      func() error { return o.Chat(ctx, cc, core.ChatRequest{Text: "hi"}) },
		"get-chat-history":  func() error { return o.ChatHistory(ctx, cc) },
	} {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, call(), core.ErrNotInRoom)
		})
	}
	o.Leave(cc)
	require.Empty(t, conn.types())
}

func TestConsumeErrors(t *testing.T) {
	ctx := context.Background()
	o, engine := newTestOrchestrator(10)
	a, aConn := newClient()
	b, bConn := newClient()
	join(t, o, a, "r", "alice", "sa")
	join(t, o, b, "r", "bob", "sb")

	send := createTransport(t, o, a, aConn, core.DirectionSend)
	require.NoError(t, o.Produce(ctx, a, core.ProduceRequest{TransportID: send, Kind: core.KindVideo, RTPParameters: testRTP}))
	var prod produced
	aConn.last(t, core.TypeProduced, &prod)
	recv := createTransport(t, o, b, bConn, core.DirectionRecv)

	err := o.Consume(ctx, b, core.ConsumeRequest{TransportID: "nope", ProducerID: prod.ProducerID, RTPCapabilities: testCaps})
	require.ErrorIs(t, err, core.ErrResourceNotFound)
	require.Equal(t, "Transport not found", core.PublicMessage(err))

	err = o.Consume(ctx, b, core.ConsumeRequest{TransportID: recv, ProducerID: "nope", RTPCapabilities: testCaps})
	require.Equal(t, "Producer not found", core.PublicMessage(err))

	engine.routers[0].canConsume = false
	err = o.Consume(ctx, b, core.ConsumeRequest{TransportID: recv, ProducerID: prod.ProducerID, RTPCapabilities: testCaps})
	require.ErrorIs(t, err, core.ErrCannotConsume)
	require.Zero(t, bConn.count(core.TypeConsumed))
}

func TestEngineClosesProducer(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(10)
	a, aConn := newClient()
	b, bConn := newClient()
	join(t, o, a, "r", "alice", "sa")
	join(t, o, b, "r", "bob", "sb")

	tid := createTransport(t, o, a, aConn, core.DirectionSend)
	require.NoError(t, o.Produce(ctx, a, core.ProduceRequest{TransportID: tid, Kind: core.KindAudio, RTPParameters: testRTP}))

	room, _ := o.Rooms.Get("r")
	tr, _ := room.Transport(tid)
	tr.Close()
	tr.Close()

	require.Equal(t, 1, bConn.count(core.TypeProducerClosed))
	require.Equal(t, 1, aConn.count(core.TypeProducerClosed))
	transports, producers, _ := room.ResourceCounts()
	require.Zero(t, transports)
	require.Zero(t, producers)
	require.False(t, a.User().HasTransport(tid))

	err := o.ConnectTransport(ctx, a, core.ConnectTransportRequest{TransportID: tid})
	require.ErrorIs(t, err, core.ErrResourceNotFound)
}

func TestChat(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(10)
	o.ChatLimiter = app.NewRateLimiter(2, time.Minute)
	a, aConn := newClient()
	b, bConn := newClient()
	join(t, o, a, "r", "alice", "sa")
	join(t, o, b, "r", "bob", "sb")

	require.NoError(t, o.Chat(ctx, a, core.ChatRequest{Text: "hello"}))
	var msg domain.ChatMessage
	bConn.last(t, core.TypeChatMessage, &msg)
	require.Equal(t, "alice", msg.From)
	require.Equal(t, "hello", msg.Text)
	require.NotEmpty(t, msg.ID)
	require.Equal(t, 1, aConn.count(core.TypeChatMessage), "sender gets its own message")

	require.NoError(t, o.Chat(ctx, a, core.ChatRequest{Text: "again"}))
	require.ErrorIs(t, o.Chat(ctx, a, core.ChatRequest{Text: "spam"}), core.ErrRateLimited)

	require.NoError(t, o.ChatHistory(ctx, b))
	var hist []domain.ChatMessage
	bConn.last(t, core.TypeChatHistory, &hist)
	require.Len(t, hist, 2)
	require.Equal(t, "hello", hist[0].Text)

	late, lateConn := newClient()
	join(t, o, late, "r", "carol", "sc")
	var j joined
	lateConn.last(t, core.TypeJoined, &j)
	require.Len(t, j.ChatHistory, 2)
}

func TestKickPolicyClosesSlowMember(t *testing.T) {
	o, _ := newTestOrchestrator(10)
	o.Policy = app.KickPolicy{}
	a, _ := newClient()
	b, bConn := newClient()
	join(t, o, a, "r", "alice", "sa")
	join(t, o, b, "r", "bob", "sb")

	bConn.mu.Lock()
	bConn.fail = true
	bConn.mu.Unlock()

	require.NoError(t, o.Chat(context.Background(), a, core.ChatRequest{Text: "hi"}))
	require.True(t, bConn.isClosed())
}

func TestReconnectDuringDisconnect(t *testing.T) {
	o, _ := newTestOrchestrator(10)
	old, _ := newClient()
	bystander, bystanderConn := newClient()
	join(t, o, old, "r", "alice", "s1")
	join(t, o, bystander, "r", "bob", "s2")
	room, _ := o.Rooms.Get("r")
	departed := old.User()

	// Alice reconnects while her dropped socket is still being released:
	// the bystander hears about the drop before the release finishes.
	fresh, freshConn := newClient()
	var fired bool
	var joinErr error
	bystanderConn.onSend = func(f frame) {
		if f.Type != core.TypeUserConnectionStatus || fired {
			return
		}
		fired = true
		joinErr = o.Join(context.Background(), fresh, core.JoinRequest{RoomID: "r", Username: "alice", SessionID: "s1"})
	}
	o.Disconnect(old)
	require.NoError(t, joinErr)

	user, bound, ok := fresh.Joined()
	require.True(t, ok)
	require.Same(t, room, bound)
	member, ok := room.Member(user.ID())
	require.True(t, ok, "reconnected connection must be bound to a room member")
	require.Same(t, user, member)
	require.True(t, member.Connected())
	require.Same(t, freshConn, member.Signal())
	_, ok = room.Member(departed.ID())
	require.False(t, ok)
	require.Equal(t, 2, room.MemberCount())

	got, ok := o.Rooms.Get("r")
	require.True(t, ok)
	require.Same(t, room, got)

	var upd usersUpdated
	bystanderConn.last(t, core.TypeUsersUpdated, &upd)
	require.Len(t, upd.Users, 2)
}

func TestReconnectAsLastMemberDuringDisconnect(t *testing.T) {
	ctx := context.Background()
	o, engine := newTestOrchestrator(10)
	old, oldConn := newClient()
	join(t, o, old, "r", "alice", "s1")
	tid := createTransport(t, o, old, oldConn, core.DirectionSend)
	require.NoError(t, o.Produce(ctx, old, core.ProduceRequest{TransportID: tid, Kind: core.KindAudio, RTPParameters: testRTP}))
	var prod produced
	oldConn.last(t, core.TypeProduced, &prod)
	room, _ := o.Rooms.Get("r")
	p, ok := room.Producer(prod.ProducerID)
	require.True(t, ok)

	// Alice rejoins while the release of her last connection is tearing
	// down her producer, before the emptied room is dropped.
	fresh, _ := newClient()
	var joinErr error
	p.OnClose(func() {
		joinErr = o.Join(ctx, fresh, core.JoinRequest{RoomID: "r", Username: "alice", SessionID: "s1"})
	})
	o.Disconnect(old)
	require.NoError(t, joinErr)

	user, bound, ok := fresh.Joined()
	require.True(t, ok)
	require.Same(t, room, bound)
	_, ok = room.Member(user.ID())
	require.True(t, ok)
	got, ok := o.Rooms.Get("r")
	require.True(t, ok)
	require.Same(t, room, got)
	require.False(t, room.Closed())
	require.Len(t, engine.routers, 1)
	require.False(t, engine.routers[0].isClosed())
}

func TestStaleConnectionCannotAttachResources(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(10)
	first, firstConn := newClient()
	join(t, o, first, "r", "alice", "s1")
	tid := createTransport(t, o, first, firstConn, core.DirectionSend)

	second, secondConn := newClient()
	join(t, o, second, "r", "alice", "s1")
	room, _ := o.Rooms.Get("r")

	// Requests still queued on the replaced connection.
	require.ErrorIs(t, o.CreateTransport(ctx, first, core.CreateTransportRequest{Direction: core.DirectionRecv}), core.ErrNotInRoom)
	err := o.Produce(ctx, first, core.ProduceRequest{TransportID: tid, Kind: core.KindAudio, RTPParameters: testRTP})
	require.ErrorIs(t, err, core.ErrResourceNotFound, "the old transport went with the rebind teardown")

	// A produce on a live transport still cannot attach to the old connection.
	live := createTransport(t, o, second, secondConn, core.DirectionSend)
	err = o.Produce(ctx, first, core.ProduceRequest{TransportID: live, Kind: core.KindAudio, RTPParameters: testRTP})
	require.ErrorIs(t, err, core.ErrNotInRoom)
	require.Zero(t, firstConn.count(core.TypeProduced))

	tr, pr, co := room.ResourceCounts()
	require.Equal(t, [3]int{1, 0, 0}, [3]int{tr, pr, co})
	require.Equal(t, []string{live}, []string{second.User().Transports()[0].ID()})
	require.Empty(t, second.User().Producers())
}
