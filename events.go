package serial

import "sync"

type eventKind int

const (
	eventConnect eventKind = iota
	eventData
	eventClose
)

type event struct {
	kind eventKind
	msg  []byte
}

type listener struct {
	id      uint64
	kind    eventKind
	onEvent func()
	onData  func([]byte)
}

// notifier fans events out to listeners in registration order. Events are
// queued without blocking the producer and delivered by a single dispatch
// goroutine that exits once the queue is drained.
type notifier struct {
	mu        sync.Mutex
	nextID    uint64
	listeners []listener
	queue     []event
	running   bool
	idle      *sync.Cond
}

func newNotifier() *notifier {
	n := &notifier{}
	n.idle = sync.NewCond(&n.mu)
	return n
}

func (n *notifier) subscribe(l listener) func() {
	n.mu.Lock()
	n.nextID++
	l.id = n.nextID
	n.listeners = append(n.listeners, l)
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			for i := range n.listeners {
				if n.listeners[i].id == l.id {
					n.listeners = append(n.listeners[:i:i], n.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (n *notifier) emit(e event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queue = append(n.queue, e)
	if !n.running {
		n.running = true
		go n.dispatch()
	}
}

func (n *notifier) dispatch() {
	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			n.running = false
			n.idle.Broadcast()
			n.mu.Unlock()
			return
		}
		e := n.queue[0]
		n.queue[0] = event{}
		n.queue = n.queue[1:]
		targets := make([]listener, 0, len(n.listeners))
		for _, l := range n.listeners {
			if l.kind == e.kind {
				targets = append(targets, l)
			}
		}
		n.mu.Unlock()

		for _, l := range targets {
			if e.kind == eventData {
				l.onData(e.msg)
			} else {
				l.onEvent()
			}
		}
	}
}

// flush blocks until every queued event has been delivered.
func (n *notifier) flush() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for n.running {
		n.idle.Wait()
	}
}
