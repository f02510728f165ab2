package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Gerondiz/backend-mediasoup/internal/core"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump dispatches frames one at a time. Its exit is the only place the
// disconnect handler runs, so it runs once per connection.
func (ctl *SignalWSController) readPump(ctx context.Context, cc *core.ConnContext, c *WsSignalConn, hb *Heartbeat) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("module", "signal").Str("sid", cc.ClientToken).Msg("readPump recovered from panic")
		}
		cc.StopHeartbeat()
		ctl.Handlers.Disconnect(cc)
		c.Close()
		log.Info().Str("module", "signal").Str("sid", cc.ClientToken).Msg("readPump closed")
	}()

	c.conn.SetReadLimit(ctl.Opts.ReadLimit)
	c.conn.SetPongHandler(func(string) error {
		hb.Ack()
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", cc.ClientToken).Msg("readPump read error")
			}
			return
		}
		hb.Ack()
		if u := cc.User(); u != nil {
			u.Touch()
		}
		ctl.Dispatcher.Dispatch(ctx, cc, data)
	}
}
