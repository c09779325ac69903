// Package mbox is an interrupt-driven mailbox transport: fixed-size words
// exchanged with a remote processor through a narrow hardware FIFO, with
// bounded software queues decoupling callers from interrupt context.
//
// Three execution contexts touch a channel: the hardware interrupt handler
// (never blocks), the deferred transmit drain, and the deferred receive
// dispatch. Each software queue has exactly one lock, held only for O(1)
// ring operations; the transmit and receive locks are never held together.
package mbox

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mikeshx/omap/hal"
)

// txPollRetries bounds the wait for hardware transmit space on flagged
// hardware. Pipelined hardware gives up on the first full reading instead.
const txPollRetries = 1000

// Stats counts channel traffic. Direct counts messages written straight to
// hardware from Send, bypassing the software queue.
type Stats struct {
	TxQueued uint64
	TxDirect uint64
	RxQueued uint64
}

// Channel is one logical mailbox endpoint on a physical link.
type Channel struct {
	name string
	line int
	ops  hal.Ops

	// useCount is guarded by the registry's activation mutex. The queues
	// and tasks below are non-nil exactly while useCount > 0.
	useCount int

	txq *queue
	rxq *queue
	tx  *task
	rx  *task

	// draining blocks Send's direct-write fast path while the transmit
	// drain is between dequeueing a word and committing it to hardware.
	// Guarded by txq.mu.
	draining bool

	observers observerList

	txQueued atomic.Uint64
	txDirect atomic.Uint64
	rxQueued atomic.Uint64

	log zerolog.Logger
}

// NewChannel describes one mailbox endpoint: its registry lookup name, the
// interrupt line it owns, and the hardware operations behind it.
func NewChannel(name string, line int, ops hal.Ops) *Channel {
	return &Channel{
		name: name,
		line: line,
		ops:  ops,
		log:  zerolog.Nop(),
	}
}

// Name returns the channel's registry name.
func (c *Channel) Name() string { return c.name }

// Line returns the channel's interrupt line.
func (c *Channel) Line() int { return c.line }

// Stats returns the channel's traffic counters.
func (c *Channel) Stats() Stats {
	return Stats{
		TxQueued: c.txQueued.Load(),
		TxDirect: c.txDirect.Load(),
		RxQueued: c.rxQueued.Load(),
	}
}

// RegisterObserver adds o to the channel's dispatch list. Delivery starts
// with the next message dequeued after registration.
func (c *Channel) RegisterObserver(o Observer) {
	c.observers.add(o)
}

// UnregisterObserver removes o from the dispatch list.
func (c *Channel) UnregisterObserver(o Observer) {
	c.observers.remove(o)
}

// pollForSpace waits, bounded, for the hardware transmit FIFO to have room.
// Pipelined hardware cannot trust the fullness reading ahead of a commit,
// so a full FIFO fails the poll immediately there.
func (c *Channel) pollForSpace() bool {
	i := txPollRetries
	for c.ops.FIFOFull() {
		if c.ops.Variant() == hal.VariantPipelined {
			return false
		}
		i--
		if i == 0 {
			return false
		}
		time.Sleep(time.Microsecond)
	}
	return true
}

// Send queues one message for transmission. An idle channel with hardware
// space takes the direct path and never touches the software queue. Send
// never blocks on hardware beyond the bounded space poll; a full software
// queue returns ErrQueueFull immediately.
//
// The channel must be held open by a Registry.Open that has not yet been
// balanced by Registry.Close. Sending on a closed channel is a caller bug.
func (c *Channel) Send(m hal.Message) error {
	q := c.txq
	q.mu.Lock()

	if q.avail() < hal.MessageBytes {
		q.mu.Unlock()
		return ErrQueueFull
	}

	if q.len() == 0 && !c.draining && c.pollForSpace() {
		c.ops.FIFOWrite(m)
		c.txDirect.Add(1)
		q.mu.Unlock()
		return nil
	}

	q.put(m)
	c.txQueued.Add(1)
	c.tx.schedule()
	q.mu.Unlock()
	return nil
}

// transmitDrain is the deferred transmit task: it moves queued words into
// hardware until the queue empties or hardware fills. A full FIFO re-arms
// the TX-ready interrupt, which re-schedules this task when space frees.
func (c *Channel) transmitDrain() {
	q := c.txq
	q.mu.Lock()
	c.draining = true
	for {
		if q.len() == 0 {
			break
		}
		q.mu.Unlock()

		if !c.pollForSpace() {
			c.ops.EnableIRQ(hal.IRQTx)
			q.mu.Lock()
			break
		}

		q.mu.Lock()
		m, err := q.get()
		q.mu.Unlock()
		if err != nil {
			c.log.Error().Err(err).Msg("transmit queue corrupted, drain aborted")
			q.mu.Lock()
			break
		}

		c.ops.FIFOWrite(m)
		q.mu.Lock()
	}
	c.draining = false
	q.mu.Unlock()
}

// receiveDispatch is the deferred receive task: it hands each buffered
// message to every observer, in registration order, then releases the
// backpressure if the interrupt handler had masked RX for lack of space.
func (c *Channel) receiveDispatch() {
	q := c.rxq
	for {
		q.mu.Lock()
		if q.len() == 0 {
			q.mu.Unlock()
			return
		}
		m, err := q.get()
		q.mu.Unlock()
		if err != nil {
			c.log.Error().Err(err).Msg("receive queue corrupted, dispatch aborted")
			return
		}

		c.observers.dispatch(m)

		q.mu.Lock()
		wasFull := q.full
		q.full = false
		q.mu.Unlock()
		if wasFull {
			c.ops.EnableIRQ(hal.IRQRx)
		}
	}
}

// transmitInterrupt handles TX-ready: mask the line, clear the condition,
// and let the deferred drain continue. O(1), non-blocking.
func (c *Channel) transmitInterrupt() {
	c.ops.DisableIRQ(hal.IRQTx)
	c.ops.AckIRQ(hal.IRQTx)
	c.tx.schedule()
}

// receiveInterrupt handles RX-ready in interrupt context: drain hardware
// into the software queue. When the queue has no room the RX line is masked
// and the condition left pending, so the hardware-side message stays
// latched until receiveDispatch frees space and unmasks. Flagged hardware
// signals one message per interrupt, so it drains at most one.
func (c *Channel) receiveInterrupt() {
	q := c.rxq
	for !c.ops.FIFOEmpty() {
		q.mu.Lock()
		if q.avail() < hal.MessageBytes {
			c.ops.DisableIRQ(hal.IRQRx)
			q.full = true
			q.mu.Unlock()
			c.rx.schedule()
			return
		}
		q.mu.Unlock()

		m := c.ops.FIFORead()

		q.mu.Lock()
		q.put(m)
		q.mu.Unlock()
		c.rxQueued.Add(1)

		if c.ops.Variant() == hal.VariantFlagged {
			break
		}
	}

	// Hardware drained as far as it goes. Clear the interrupt source.
	c.ops.AckIRQ(hal.IRQRx)
	c.rx.schedule()
}

// interrupt demultiplexes the channel's shared interrupt line. Both
// conditions may be pending in one invocation.
func (c *Channel) interrupt() {
	if c.ops.IsIRQ(hal.IRQTx) {
		c.transmitInterrupt()
	}
	if c.ops.IsIRQ(hal.IRQRx) {
		c.receiveInterrupt()
	}
}
