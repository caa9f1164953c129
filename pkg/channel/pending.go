package channel

import (
	"sync"

	"github.com/vango-dev/pagewire/pkg/protocol"
)

type reply struct {
	msg *protocol.Message
	err error
}

// pendingRequests maps correlation ids to waiters of EnqueueWithResponse.
type pendingRequests struct {
	mu      sync.Mutex
	waiters map[string]chan reply
}

func newPendingRequests() *pendingRequests {
	return &pendingRequests{waiters: make(map[string]chan reply)}
}

func (p *pendingRequests) add(id string) chan reply {
	ch := make(chan reply, 1)
	p.mu.Lock()
	p.waiters[id] = ch
	p.mu.Unlock()
	return ch
}

func (p *pendingRequests) remove(id string) {
	p.mu.Lock()
	delete(p.waiters, id)
	p.mu.Unlock()
}

// resolve delivers msg to the waiter for its id. Reports whether one existed.
func (p *pendingRequests) resolve(msg *protocol.Message) bool {
	p.mu.Lock()
	ch, ok := p.waiters[msg.ID]
	if ok {
		delete(p.waiters, msg.ID)
	}
	p.mu.Unlock()
	if ok {
		ch <- reply{msg: msg}
	}
	return ok
}

// failAll rejects every waiter with err.
func (p *pendingRequests) failAll(err error) {
	p.mu.Lock()
	waiters := p.waiters
	p.waiters = make(map[string]chan reply)
	p.mu.Unlock()
	for _, ch := range waiters {
		ch <- reply{err: err}
	}
}

func (p *pendingRequests) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}
