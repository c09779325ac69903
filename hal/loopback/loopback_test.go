package loopback

import (
	"errors"
	"testing"

	"github.com/mikeshx/omap/hal"
)

func TestFIFOCapacity(t *testing.T) {
	link := NewLink(Config{Depth: 2})
	e := link.Endpoint(0)
	r := link.Remote(0)

	if !e.FIFOEmpty() {
		t.Fatal("FIFOEmpty() = false on a fresh link, want true")
	}

	e.FIFOWrite(1)
	e.FIFOWrite(2)
	if !e.FIFOFull() {
		t.Fatal("FIFOFull() = false after filling, want true")
	}

	// A write into a full FIFO has nowhere to latch.
	e.FIFOWrite(3)
	if got := e.TxOverruns(); got != 1 {
		t.Fatalf("TxOverruns() = %d, want 1", got)
	}

	if m, ok := r.Pop(); !ok || m != 1 {
		t.Fatalf("Pop() = %d, %v, want 1, true", m, ok)
	}
	if m, ok := r.Pop(); !ok || m != 2 {
		t.Fatalf("Pop() = %d, %v, want 2, true", m, ok)
	}
	if _, ok := r.Pop(); ok {
		t.Fatal("Pop() ok = true on empty FIFO, want false")
	}
}

func TestPushRaisesRXWhenEnabled(t *testing.T) {
	link := NewLink(Config{})
	e := link.Endpoint(0)
	r := link.Remote(0)

	fired := 0
	if err := link.Request(0, func() { fired++ }); err != nil {
		t.Fatalf("Request() error: %v", err)
	}

	// Masked: the condition latches but the handler stays quiet.
	r.Push(7)
	if fired != 0 {
		t.Fatalf("handler fired %d times with RX masked, want 0", fired)
	}
	if e.IsIRQ(hal.IRQRx) {
		t.Fatal("IsIRQ(rx) = true while masked, want false")
	}

	// Unmasking with the condition pending delivers it immediately.
	e.EnableIRQ(hal.IRQRx)
	if fired != 1 {
		t.Fatalf("handler fired %d times after unmask, want 1", fired)
	}

	e.AckIRQ(hal.IRQRx)
	if e.IsIRQ(hal.IRQRx) {
		t.Fatal("IsIRQ(rx) = true after ack, want false")
	}
}

func TestPopRaisesTXWhenEnabled(t *testing.T) {
	link := NewLink(Config{Depth: 1})
	e := link.Endpoint(0)
	r := link.Remote(0)

	fired := 0
	if err := link.Request(0, func() { fired++ }); err != nil {
		t.Fatalf("Request() error: %v", err)
	}
	e.EnableIRQ(hal.IRQTx)

	e.FIFOWrite(1)
	r.Pop()
	if fired != 1 {
		t.Fatalf("handler fired %d times after Pop, want 1", fired)
	}
}

func TestIRQLineOwnership(t *testing.T) {
	link := NewLink(Config{Endpoints: 1})

	if err := link.Request(0, func() {}); err != nil {
		t.Fatalf("Request() error: %v", err)
	}
	if err := link.Request(0, func() {}); err == nil {
		t.Fatal("second Request() error = nil, want busy error")
	}
	if err := link.Request(5, func() {}); err == nil {
		t.Fatal("Request() on missing line error = nil, want error")
	}

	link.Free(0)
	if err := link.Request(0, func() {}); err != nil {
		t.Fatalf("Request() after Free error: %v", err)
	}
}

func TestContextSaveSupport(t *testing.T) {
	link := NewLink(Config{ContextSave: true})
	e := link.Endpoint(0)
	if err := e.SaveContext(); err != nil {
		t.Fatalf("SaveContext() error: %v", err)
	}
	if err := e.RestoreContext(); err != nil {
		t.Fatalf("RestoreContext() error: %v", err)
	}
	if got := e.SavedCount(); got != 1 {
		t.Fatalf("SavedCount() = %d, want 1", got)
	}

	bare := NewLink(Config{})
	if err := bare.Endpoint(0).SaveContext(); !errors.Is(err, hal.ErrNotImplemented) {
		t.Fatalf("SaveContext() error = %v, want ErrNotImplemented", err)
	}
}

func TestStartupErrorFiresOnce(t *testing.T) {
	boom := errors.New("boom")
	link := NewLink(Config{StartupErr: boom})
	e := link.Endpoint(0)

	if err := e.Startup(); !errors.Is(err, boom) {
		t.Fatalf("Startup() error = %v, want %v", err, boom)
	}
	if err := e.Startup(); err != nil {
		t.Fatalf("second Startup() error = %v, want nil", err)
	}
	if got := link.Startups(); got != 1 {
		t.Fatalf("Startups() = %d, want 1", got)
	}
}
