package bus

import (
	"context"
	"fmt"
	"sync"
)

// defaultQueueSize bounds how many envelopes a processor can have pending
// before senders start blocking.
const defaultQueueSize = 64

// Handle identifies one registered processor and owns its delivery queue.
type Handle struct {
	id    int
	name  string
	queue chan Envelope
	done  chan struct{}
}

// Name returns the processor name given at registration.
func (h *Handle) Name() string { return h.name }

// Queue returns the receive side of the processor's delivery queue. The
// dispatch loop is its only intended consumer.
func (h *Handle) Queue() <-chan Envelope { return h.queue }

// Bus routes requests to listening processors and fans control envelopes
// out to every registered one. All methods are safe for concurrent use.
type Bus struct {
	mu        sync.Mutex
	nextID    int
	procs     map[int]*Handle
	listeners map[string][]*Handle
	cursor    map[string]int
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		procs:     make(map[int]*Handle),
		listeners: make(map[string][]*Handle),
		cursor:    make(map[string]int),
	}
}

// Register attaches a processor to the bus under the given name and returns
// its handle. The processor receives control envelopes from this point on
// but no requests until it listens on at least one service.
func (b *Bus) Register(name string) *Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	h := &Handle{
		id:    b.nextID,
		name:  name,
		queue: make(chan Envelope, defaultQueueSize),
		done:  make(chan struct{}),
	}
	b.procs[h.id] = h
	return h
}

// Listen subscribes the processor to the given service names. Duplicate
// names, whether repeated in the call or already subscribed, are ignored.
// Every registered processor receives a fresh service-table snapshot.
func (b *Bus) Listen(h *Handle, services ...string) error {
	b.mu.Lock()

	if _, ok := b.procs[h.id]; !ok {
		b.mu.Unlock()
		return fmt.Errorf("bus: handle %q is not registered", h.name)
	}
	for _, svc := range services {
		if b.listensLocked(h, svc) {
			continue
		}
		b.listeners[svc] = append(b.listeners[svc], h)
	}
	targets, table := b.snapshotLocked()
	b.mu.Unlock()

	b.pushTable(targets, table)
	return nil
}

// Deregister detaches the processor from the bus: it stops receiving
// requests and control envelopes, senders blocked on its queue give up, and
// the remaining processors receive an updated service-table snapshot.
// Deregistering an unknown handle is a no-op.
func (b *Bus) Deregister(h *Handle) {
	b.mu.Lock()

	if _, ok := b.procs[h.id]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.procs, h.id)
	close(h.done)
	for svc, hs := range b.listeners {
		kept := hs[:0]
		for _, cur := range hs {
			if cur.id != h.id {
				kept = append(kept, cur)
			}
		}
		if len(kept) == 0 {
			delete(b.listeners, svc)
			delete(b.cursor, svc)
			continue
		}
		b.listeners[svc] = kept
	}
	targets, table := b.snapshotLocked()
	b.mu.Unlock()

	b.pushTable(targets, table)
}

// Call sends payload as a request to the named service and blocks until a
// reply arrives or ctx is done. Error replies surface as *ServiceError;
// addressing a service without listeners fails fast with a no_service error.
// A listener that deregisters before accepting the request is skipped in
// favor of the next one.
func (b *Bus) Call(ctx context.Context, sender, service string, payload []byte) ([]byte, error) {
	req, replyCh := NewRequest(sender, service, payload)

	for {
		h := b.pickListener(service)
		if h == nil {
			return nil, NewNoServiceError(service)
		}

		select {
		case h.queue <- Envelope{Kind: KindRequest, Request: req}:
		case <-h.done:
			// Listener deregistered before accepting; pick again.
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		break
	}

	select {
	case rep := <-replyCh:
		if rep.Err != nil {
			return nil, rep.Err
		}
		return rep.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown broadcasts a shutdown envelope to every registered processor.
// Delivery shares the regular queue, so each instance finishes the work it
// already accepted before it sees the shutdown.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	handles := make([]*Handle, 0, len(b.procs))
	for _, h := range b.procs {
		handles = append(handles, h)
	}
	b.mu.Unlock()

	for _, h := range handles {
		b.push(h, Envelope{Kind: KindShutdown})
	}
}

// Send delivers a control envelope to every registered processor with the
// given name and returns how many it reached. Request envelopes go through
// Call, never through Send.
func (b *Bus) Send(name string, env Envelope) int {
	b.mu.Lock()
	handles := make([]*Handle, 0, len(b.procs))
	for _, h := range b.procs {
		if h.name == name {
			handles = append(handles, h)
		}
	}
	b.mu.Unlock()

	for _, h := range handles {
		b.push(h, env)
	}
	return len(handles)
}

// Services returns the current service-table snapshot.
func (b *Bus) Services() ServiceTable {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, table := b.snapshotLocked()
	return table
}

func (b *Bus) pickListener(service string) *Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	hs := b.listeners[service]
	if len(hs) == 0 {
		return nil
	}
	h := hs[b.cursor[service]%len(hs)]
	b.cursor[service]++
	return h
}

func (b *Bus) listensLocked(h *Handle, service string) bool {
	for _, cur := range b.listeners[service] {
		if cur.id == h.id {
			return true
		}
	}
	return false
}

func (b *Bus) snapshotLocked() ([]*Handle, ServiceTable) {
	targets := make([]*Handle, 0, len(b.procs))
	for _, h := range b.procs {
		targets = append(targets, h)
	}
	table := make(ServiceTable, len(b.listeners))
	for svc, hs := range b.listeners {
		table[svc] = len(hs)
	}
	return targets, table
}

func (b *Bus) pushTable(targets []*Handle, table ServiceTable) {
	for _, h := range targets {
		b.push(h, Envelope{Kind: KindServiceTable, Table: table})
	}
}

// push delivers a control envelope without ever blocking the caller: a
// saturated queue falls back to an asynchronous send that gives up when the
// handle deregisters. Control envelopes are snapshots, so late or lost
// delivery is harmless.
func (b *Bus) push(h *Handle, env Envelope) {
	select {
	case h.queue <- env:
	default:
		go func() {
			select {
			case h.queue <- env:
			case <-h.done:
			}
		}()
	}
}
