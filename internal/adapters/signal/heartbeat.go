package signal

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Heartbeat probes a connection every interval and terminates it once no
// acknowledgment arrived for longer than timeout.
type Heartbeat struct {
	interval  time.Duration
	timeout   time.Duration
	probe     func() error
	terminate func()

	lastAck atomic.Int64
	stop    chan struct{}
	once    sync.Once
}

func NewHeartbeat(interval, timeout time.Duration, probe func() error, terminate func()) *Heartbeat {
	return &Heartbeat{
		interval:  interval,
		timeout:   timeout,
		probe:     probe,
		terminate: terminate,
		stop:      make(chan struct{}),
	}
}

func (h *Heartbeat) Start() {
	h.Ack()
	go h.loop()
}

// Ack records proof of life.
func (h *Heartbeat) Ack() { h.lastAck.Store(time.Now().UnixNano()) }

// Stop is safe to call any number of times.
func (h *Heartbeat) Stop() { h.once.Do(func() { close(h.stop) }) }

func (h *Heartbeat) loop() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			silent := time.Since(time.Unix(0, h.lastAck.Load()))
			if silent > h.timeout {
				log.Warn().Str("module", "signal").Dur("silent", silent).Msg("heartbeat timeout, terminating connection")
				h.terminate()
				return
			}
			if err := h.probe(); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("heartbeat probe failed")
			}
		}
	}
}
