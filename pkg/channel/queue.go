package channel

import "sync"

type outbound struct {
	id   string
	data []byte
}

// queue is the FIFO of encoded outbound messages. Only the drain holds the
// head; producers append.
type queue struct {
	mu    sync.Mutex
	items []outbound
	limit int
}

func (q *queue) push(m outbound) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit > 0 && len(q.items) >= q.limit {
		return ErrQueueFull
	}
	q.items = append(q.items, m)
	return nil
}

func (q *queue) peek() (outbound, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return outbound{}, false
	}
	return q.items[0], true
}

func (q *queue) pop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return
	}
	q.items[0] = outbound{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
