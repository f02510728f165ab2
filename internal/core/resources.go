package core

// Every resource handle is indexed twice: in the room (lookups by id from
// any member) and in its owning member (teardown). Both indexes change
// together under room.mu then member.mu.
//
// Track* refuse a handle, tracking nothing, unless owner is still a member
// whose live connection is conn. A request still in flight on a replaced
// connection therefore cannot attach resources after the rebind teardown.

func (r *Room) liveLocked(owner *Member, conn SignalConnection) bool {
	return r.members[owner.ID()] == owner && owner.conn == conn
}

func (r *Room) TrackTransport(owner *Member, conn SignalConnection, t MediaTransport) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner.mu.Lock()
	defer owner.mu.Unlock()
	if !r.liveLocked(owner, conn) {
		return false
	}
	r.transports[t.ID()] = t
	owner.transports[t.ID()] = t
	return true
}

// UntrackTransport reports whether the transport was still tracked.
func (r *Room) UntrackTransport(owner *Member, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner.mu.Lock()
	defer owner.mu.Unlock()
	_, inRoom := r.transports[id]
	_, inOwner := owner.transports[id]
	delete(r.transports, id)
	delete(owner.transports, id)
	return inRoom || inOwner
}

func (r *Room) Transport(id string) (MediaTransport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[id]
	return t, ok
}

func (r *Room) TrackProducer(owner *Member, conn SignalConnection, p MediaProducer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner.mu.Lock()
	defer owner.mu.Unlock()
	if !r.liveLocked(owner, conn) {
		return false
	}
	r.producers[p.ID()] = p
	owner.producers[p.ID()] = p
	return true
}

func (r *Room) UntrackProducer(owner *Member, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner.mu.Lock()
	defer owner.mu.Unlock()
	_, inRoom := r.producers[id]
	_, inOwner := owner.producers[id]
	delete(r.producers, id)
	delete(owner.producers, id)
	return inRoom || inOwner
}

func (r *Room) Producer(id string) (MediaProducer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[id]
	return p, ok
}

func (r *Room) TrackConsumer(owner *Member, conn SignalConnection, c MediaConsumer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner.mu.Lock()
	defer owner.mu.Unlock()
	if !r.liveLocked(owner, conn) {
		return false
	}
	r.consumers[c.ID()] = c
	owner.consumers[c.ID()] = c
	return true
}

func (r *Room) UntrackConsumer(owner *Member, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	owner.mu.Lock()
	defer owner.mu.Unlock()
	_, inRoom := r.consumers[id]
	_, inOwner := owner.consumers[id]
	delete(r.consumers, id)
	delete(owner.consumers, id)
	return inRoom || inOwner
}

func (r *Room) Consumer(id string) (MediaConsumer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.consumers[id]
	return c, ok
}

// Producers lists the room's producers ordered by their owners' join order.
func (r *Room) Producers() []ProducerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProducerInfo, 0, len(r.producers))
	seen := make(map[string]struct{}, len(r.producers))
	for _, uid := range r.order {
		m := r.members[uid]
		m.mu.RLock()
		for id, p := range m.producers {
			if _, ok := r.producers[id]; !ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, ProducerInfo{ProducerID: id, UserID: m.ID(), Kind: p.Kind()})
		}
		m.mu.RUnlock()
	}
	// Producers whose owner already left but whose close event is pending.
	for id, p := range r.producers {
		if _, ok := seen[id]; ok {
			continue
		}
		out = append(out, ProducerInfo{ProducerID: id, UserID: OwnerOf(p), Kind: p.Kind()})
	}
	return out
}

// ResourceCounts returns the sizes of the room-scoped indexes.
func (r *Room) ResourceCounts() (transports, producers, consumers int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.transports), len(r.producers), len(r.consumers)
}
