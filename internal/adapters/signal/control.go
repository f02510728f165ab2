package signal

import (
	"context"

	"github.com/Gerondiz/backend-mediasoup/internal/core"
)

// handlePing answers a client ping. Liveness itself is refreshed by the read
// loop for every inbound frame.
func handlePing(_ context.Context, cc *core.ConnContext, _ core.Empty) error {
	_ = cc.Send(core.TypePong, core.Empty{})
	return nil
}

func handlePong(context.Context, *core.ConnContext, core.Empty) error { return nil }
