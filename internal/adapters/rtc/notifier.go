package rtc

import "sync"

// closeNotifier delivers close callbacks exactly once. Callbacks registered
// after closure run immediately.
type closeNotifier struct {
	mu     sync.Mutex
	closed bool
	cbs    []func()
}

func (n *closeNotifier) OnClose(cb func()) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		cb()
		return
	}
	n.cbs = append(n.cbs, cb)
	n.mu.Unlock()
}

// markClosed reports false if the handle was already closed.
func (n *closeNotifier) markClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return false
	}
	n.closed = true
	return true
}

func (n *closeNotifier) notify() {
	n.mu.Lock()
	cbs := n.cbs
	n.cbs = nil
	n.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

func (n *closeNotifier) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}
