package backend

import (
	"encoding/json"
	"sync"
	"time"
)

// opResult is what a pending operation eventually resolves to.
type opResult struct {
	data json.RawMessage
	err  error
}

// pendingOp tracks one in-flight request: its continuation channel and when
// it was dispatched.
type pendingOp struct {
	ch      chan opResult
	created time.Time
}

// opMux is a request/response multiplexer: it hands out monotonically
// increasing correlation ids and matches responses back to their waiting
// continuation. Responses for ids that are no longer pending (timed out,
// cancelled, already resolved) are reported as unmatched and dropped by the
// caller.
type opMux struct {
	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*pendingOp
}

func newOpMux() *opMux {
	return &opMux{
		pending: make(map[uint64]*pendingOp),
	}
}

// register allocates a correlation id and a buffered continuation channel.
func (m *opMux) register() (uint64, <-chan opResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	op := &pendingOp{
		ch:      make(chan opResult, 1),
		created: time.Now(),
	}
	m.pending[id] = op
	return id, op.ch
}

// resolve delivers a result to the pending operation with the given id and
// removes it. It reports false when the id is unknown.
func (m *opMux) resolve(id uint64, data json.RawMessage, err error) bool {
	m.mu.Lock()
	op, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	op.ch <- opResult{data: data, err: err}
	return true
}

// drop removes a pending operation without delivering anything, used when
// the waiter has already given up (timeout or context cancellation).
func (m *opMux) drop(id uint64) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

// failAll rejects every pending operation with err and empties the table.
func (m *opMux) failAll(err error) {
	m.mu.Lock()
	pending := m.pending
	m.pending = make(map[uint64]*pendingOp)
	m.mu.Unlock()
	for _, op := range pending {
		op.ch <- opResult{err: err}
	}
}

// len returns the number of operations awaiting a response.
func (m *opMux) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
