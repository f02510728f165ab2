package app

import (
	"strings"

	"github.com/Gerondiz/backend-mediasoup/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a member whose send buffer overflowed
// during a broadcast.
type Policy interface {
	OnBackPressure(room *core.Room, member *core.Member) BackpressureAction
}

// LogPolicy keeps slow members; the failed send is already logged by the room.
type LogPolicy struct{}

func (LogPolicy) OnBackPressure(*core.Room, *core.Member) BackpressureAction { return NoAction }

// KickPolicy closes the slow member's connection, which runs the normal
// disconnect path.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(*core.Room, *core.Member) BackpressureAction { return KickMember }

// PolicyByName maps the backpressure_policy config value to a Policy.
func PolicyByName(name string) Policy {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "kick":
		return KickPolicy{}
	default:
		return LogPolicy{}
	}
}
