// Package loopback simulates a mailbox physical link on the host: a pair of
// narrow FIFOs per endpoint, level-triggered TX/RX interrupt conditions, and
// a remote-side handle that plays the part of the other processor.
//
// Interrupt handlers run synchronously on whichever goroutine tripped the
// condition, which preserves the "interrupt context" constraint that the
// handler sees: it may not block and it may not re-enter the controller.
package loopback

import (
	"fmt"
	"sync"

	"github.com/mikeshx/omap/hal"
)

var (
	_ hal.Ops           = (*Endpoint)(nil)
	_ hal.IRQController = (*Link)(nil)
)

// fifo is a narrow hardware register FIFO.
type fifo struct {
	head  uint32
	tail  uint32
	slots []hal.Message
}

func (f *fifo) len() int   { return int(f.head - f.tail) }
func (f *fifo) full() bool { return f.len() >= len(f.slots) }

func (f *fifo) push(m hal.Message) bool {
	if f.full() {
		return false
	}
	f.slots[f.head%uint32(len(f.slots))] = m
	f.head++
	return true
}

func (f *fifo) pop() (hal.Message, bool) {
	if f.head == f.tail {
		return 0, false
	}
	m := f.slots[f.tail%uint32(len(f.slots))]
	f.tail++
	return m, true
}

// Config sets up a Link.
type Config struct {
	// Endpoints is the number of channels sharing the link. Default 1.
	Endpoints int
	// Depth is the hardware FIFO depth in messages. Default 4.
	Depth int
	// Variant tags every endpoint. Default hal.VariantFlagged.
	Variant hal.Variant
	// ContextSave enables Save/RestoreContext support.
	ContextSave bool
	// StartupErr, if set, is returned by the first Startup call.
	StartupErr error
}

// Link is one simulated physical link. It implements hal.IRQController for
// its own interrupt lines, which are the endpoint indexes.
type Link struct {
	mu        sync.Mutex
	endpoints []*Endpoint
	handlers  map[int]func()

	startups  int
	shutdowns int
	cfg       Config
}

// NewLink creates a link with cfg.Endpoints channel endpoints.
func NewLink(cfg Config) *Link {
	if cfg.Endpoints <= 0 {
		cfg.Endpoints = 1
	}
	if cfg.Depth <= 0 {
		cfg.Depth = 4
	}
	if cfg.Variant == 0 {
		cfg.Variant = hal.VariantFlagged
	}
	l := &Link{
		handlers: make(map[int]func()),
		cfg:      cfg,
	}
	for i := 0; i < cfg.Endpoints; i++ {
		l.endpoints = append(l.endpoints, &Endpoint{
			link: l,
			line: i,
			tx:   fifo{slots: make([]hal.Message, cfg.Depth)},
			rx:   fifo{slots: make([]hal.Message, cfg.Depth)},
		})
	}
	return l
}

// Endpoint returns the hardware operations for channel i.
func (l *Link) Endpoint(i int) *Endpoint { return l.endpoints[i] }

// Remote returns the remote-processor handle for channel i.
func (l *Link) Remote(i int) *Remote { return &Remote{e: l.endpoints[i]} }

// Request implements hal.IRQController.
func (l *Link) Request(line int, fn func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if line < 0 || line >= len(l.endpoints) {
		return fmt.Errorf("loopback: no irq line %d", line)
	}
	if l.handlers[line] != nil {
		return fmt.Errorf("loopback: irq line %d busy", line)
	}
	l.handlers[line] = fn
	return nil
}

// Free implements hal.IRQController. It returns only after any in-flight
// handler invocation on the line has finished, so callers may release state
// the handler touches.
func (l *Link) Free(line int) {
	l.mu.Lock()
	if line < 0 || line >= len(l.endpoints) {
		l.mu.Unlock()
		return
	}
	e := l.endpoints[line]
	delete(l.handlers, line)
	l.mu.Unlock()

	// Taking irqMu waits out a handler that is currently running.
	e.irqMu.Lock()
	e.irqMu.Unlock()
}

// Startups returns how many times the link has been brought up.
func (l *Link) Startups() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.startups
}

// Shutdowns returns how many times the link has been powered down.
func (l *Link) Shutdowns() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.shutdowns
}

// Endpoint is one channel's view of the link registers. It implements
// hal.Ops. The tx FIFO carries host-to-remote traffic, rx the reverse.
type Endpoint struct {
	link *Link
	line int

	tx fifo
	rx fifo

	txPending bool
	rxPending bool
	txEnabled bool
	rxEnabled bool

	saved      bool
	savedCount int

	txOverruns int

	// irqMu serializes handler invocations for this line, like a
	// non-reentrant hardware interrupt.
	irqMu sync.Mutex
}

// fire invokes the bound handler, if any, outside the link lock.
func (e *Endpoint) fire() {
	e.link.mu.Lock()
	fn := e.link.handlers[e.line]
	e.link.mu.Unlock()
	if fn == nil {
		return
	}
	e.irqMu.Lock()
	fn()
	e.irqMu.Unlock()
}

// Line returns the interrupt line number for this endpoint.
func (e *Endpoint) Line() int { return e.line }

// TxOverruns counts messages written while the transmit FIFO was full.
func (e *Endpoint) TxOverruns() int {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()
	return e.txOverruns
}

// SavedCount counts completed SaveContext calls.
func (e *Endpoint) SavedCount() int {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()
	return e.savedCount
}

func (e *Endpoint) FIFORead() hal.Message {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()
	m, _ := e.rx.pop()
	return m
}

func (e *Endpoint) FIFOWrite(m hal.Message) {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()
	if !e.tx.push(m) {
		// Hardware has nowhere to latch the word. Real pipelined mailboxes
		// lose it the same way.
		e.txOverruns++
	}
}

func (e *Endpoint) FIFOEmpty() bool {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()
	return e.rx.len() == 0
}

func (e *Endpoint) FIFOFull() bool {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()
	return e.tx.full()
}

func (e *Endpoint) IsIRQ(k hal.IRQ) bool {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()
	switch k {
	case hal.IRQTx:
		return e.txPending && e.txEnabled
	case hal.IRQRx:
		return e.rxPending && e.rxEnabled
	}
	return false
}

func (e *Endpoint) AckIRQ(k hal.IRQ) {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()
	switch k {
	case hal.IRQTx:
		e.txPending = false
	case hal.IRQRx:
		e.rxPending = false
	}
}

func (e *Endpoint) EnableIRQ(k hal.IRQ) {
	e.link.mu.Lock()
	var refire bool
	switch k {
	case hal.IRQTx:
		e.txEnabled = true
		refire = e.txPending
	case hal.IRQRx:
		e.rxEnabled = true
		refire = e.rxPending
	}
	e.link.mu.Unlock()
	if refire {
		e.fire()
	}
}

func (e *Endpoint) DisableIRQ(k hal.IRQ) {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()
	switch k {
	case hal.IRQTx:
		e.txEnabled = false
	case hal.IRQRx:
		e.rxEnabled = false
	}
}

func (e *Endpoint) Startup() error {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()
	if err := e.link.cfg.StartupErr; err != nil {
		e.link.cfg.StartupErr = nil
		return err
	}
	e.link.startups++
	return nil
}

func (e *Endpoint) Shutdown() {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()
	e.link.shutdowns++
}

func (e *Endpoint) SaveContext() error {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()
	if !e.link.cfg.ContextSave {
		return hal.ErrNotImplemented
	}
	e.saved = true
	e.savedCount++
	return nil
}

func (e *Endpoint) RestoreContext() error {
	e.link.mu.Lock()
	defer e.link.mu.Unlock()
	if !e.link.cfg.ContextSave {
		return hal.ErrNotImplemented
	}
	e.saved = false
	return nil
}

func (e *Endpoint) Variant() hal.Variant { return e.link.cfg.Variant }

// Remote is the far side of one endpoint: what the remote processor would
// do with the link registers.
type Remote struct {
	e *Endpoint
}

// Push delivers a message toward the host. It returns false when the
// hardware receive FIFO is full, in which case the word stays with the
// caller; nothing is lost.
func (r *Remote) Push(m hal.Message) bool {
	e := r.e
	e.link.mu.Lock()
	if !e.rx.push(m) {
		e.link.mu.Unlock()
		return false
	}
	e.rxPending = true
	deliver := e.rxEnabled
	e.link.mu.Unlock()
	if deliver {
		e.fire()
	}
	return true
}

// Pop consumes one message the host transmitted. Freeing FIFO space raises
// the TX-ready condition.
func (r *Remote) Pop() (hal.Message, bool) {
	e := r.e
	e.link.mu.Lock()
	m, ok := e.tx.pop()
	if !ok {
		e.link.mu.Unlock()
		return 0, false
	}
	e.txPending = true
	deliver := e.txEnabled
	e.link.mu.Unlock()
	if deliver {
		e.fire()
	}
	return m, true
}

// Buffered returns how many host-transmitted messages await the remote.
func (r *Remote) Buffered() int {
	r.e.link.mu.Lock()
	defer r.e.link.mu.Unlock()
	return r.e.tx.len()
}
