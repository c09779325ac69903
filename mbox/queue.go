package mbox

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/mikeshx/omap/hal"
)

// DefaultQueueBytes is the software queue capacity used when the registry
// is not given one.
const DefaultQueueBytes = 256

// AlignQueueBytes rounds a requested software queue capacity up to a power
// of two of at least one message.
func AlignQueueBytes(n int) int {
	if n < hal.MessageBytes {
		n = hal.MessageBytes
	}
	size := hal.MessageBytes
	for size < n {
		size <<= 1
	}
	return size
}

// queue is the bounded software queue on one side of a channel: a byte ring
// holding whole messages. Callers hold mu around every in/out/flag access;
// the critical sections are a few loads and stores, never a hardware wait.
type queue struct {
	mu  sync.Mutex
	buf []byte
	in  uint32
	out uint32

	// full marks that the hardware RX interrupt was masked because this
	// (receive side) queue ran out of space. Transitions only under mu.
	full bool
}

func newQueue(capacity int) *queue {
	return &queue{buf: make([]byte, AlignQueueBytes(capacity))}
}

// len returns the occupied byte count. Caller holds mu.
func (q *queue) len() int { return int(q.in - q.out) }

// avail returns the free byte count. Caller holds mu.
func (q *queue) avail() int { return len(q.buf) - q.len() }

// put appends one message. Caller holds mu and has checked avail.
func (q *queue) put(m hal.Message) {
	var word [hal.MessageBytes]byte
	binary.LittleEndian.PutUint32(word[:], uint32(m))
	mask := uint32(len(q.buf) - 1)
	for _, b := range word {
		q.buf[q.in&mask] = b
		q.in++
	}
}

// get removes one message. Caller holds mu. A non-empty queue shorter than
// one message means the ring was corrupted; that never happens under
// correct sequencing and aborts the caller's draining pass.
func (q *queue) get() (hal.Message, error) {
	if n := q.len(); n < hal.MessageBytes {
		return 0, fmt.Errorf("mbox: short dequeue: %d bytes buffered, need %d", n, hal.MessageBytes)
	}
	var word [hal.MessageBytes]byte
	mask := uint32(len(q.buf) - 1)
	for i := range word {
		word[i] = q.buf[q.out&mask]
		q.out++
	}
	return hal.Message(binary.LittleEndian.Uint32(word[:])), nil
}
