// Package hal defines the contact points between the mailbox core and the
// hardware: the per-link FIFO/interrupt register operations, interrupt line
// routing, and the power domain the link sits in.
package hal

import "errors"

var ErrNotImplemented = errors.New("not implemented")

// Message is one hardware mailbox word.
type Message uint32

// MessageBytes is the wire size of a Message in the software queues.
const MessageBytes = 4

// IRQ selects one of the two interrupt conditions of a mailbox channel.
type IRQ uint8

const (
	IRQTx IRQ = iota + 1 // transmit FIFO has space
	IRQRx                // receive FIFO holds a message
)

func (k IRQ) String() string {
	switch k {
	case IRQTx:
		return "tx"
	case IRQRx:
		return "rx"
	default:
		return "unknown"
	}
}

// Variant distinguishes mailbox hardware generations.
type Variant uint8

const (
	// VariantFlagged hardware exposes a fullness flag that is valid before
	// a write commits, and signals at most one received message per RX
	// interrupt.
	VariantFlagged Variant = iota + 1

	// VariantPipelined hardware cannot report fullness ahead of a write;
	// writes are always issued in the hope that they land. Its RX interrupt
	// covers any number of pending messages.
	VariantPipelined
)

// Ops is the capability set a hardware variant provides for one mailbox
// channel. All methods are non-blocking register accesses; Startup and
// Shutdown are the only calls allowed to take real time.
type Ops interface {
	// FIFORead pops one received message out of the hardware FIFO.
	FIFORead() Message
	// FIFOWrite pushes one message into the hardware FIFO.
	FIFOWrite(Message)
	// FIFOEmpty reports whether the receive side holds no message.
	FIFOEmpty() bool
	// FIFOFull reports whether the transmit side has no space left.
	FIFOFull() bool

	// IsIRQ reports whether the given interrupt condition is pending.
	IsIRQ(IRQ) bool
	// AckIRQ clears the given interrupt condition at the hardware.
	AckIRQ(IRQ)
	// EnableIRQ unmasks the given interrupt line.
	EnableIRQ(IRQ)
	// DisableIRQ masks the given interrupt line.
	DisableIRQ(IRQ)

	// Startup brings up the physical link. Called once when the first
	// channel on the link opens.
	Startup() error
	// Shutdown powers the physical link down. Called once when the last
	// channel on the link closes.
	Shutdown()

	// SaveContext captures channel register state ahead of a power loss.
	// Variants without retention support return ErrNotImplemented.
	SaveContext() error
	// RestoreContext reinstates state captured by SaveContext.
	RestoreContext() error

	// Variant tags the hardware generation, which selects the transmit
	// space-polling policy and the RX drain policy.
	Variant() Variant
}

// IRQController routes hardware interrupt lines to handler functions.
//
// A handler registered for a line is invoked in interrupt context: it must
// not block and must not call back into Request or Free.
type IRQController interface {
	// Request binds fn to the given line. Fails if the line is taken.
	Request(line int, fn func()) error
	// Free unbinds whatever handler holds the given line.
	Free(line int)
}

// PowerDomain is a reference-counted power resource. Get may block waiting
// for a power transition; callers must not hold any queue lock across it.
type PowerDomain interface {
	Get() error
	Put()
}
