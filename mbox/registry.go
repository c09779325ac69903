package mbox

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mikeshx/omap/hal"
)

// Options configures a Registry.
type Options struct {
	// IRQ routes channel interrupt lines. Required.
	IRQ hal.IRQController
	// Power is the power domain shared by every channel on the link.
	// Defaults to an always-on domain.
	Power hal.PowerDomain
	// QueueBytes is the software queue capacity per direction per channel,
	// rounded up to a power of two of at least one message. Defaults to
	// DefaultQueueBytes.
	QueueBytes int
	// Logger reports hardware faults and internal-consistency violations.
	// Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Registry owns the name lookup table and the channel lifecycle for one
// physical link. Its mutex is the activation mutex: it serializes open and
// close sequences and the one-time hardware startup/shutdown, and is never
// taken from interrupt or deferred-task context.
type Registry struct {
	mu     sync.Mutex
	byName map[string]*Channel
	order  []*Channel

	// configured counts open channels across the link; the hardware starts
	// on 0->1 and shuts down on 1->0, independent of any one channel's
	// use count.
	configured int

	irqc       hal.IRQController
	power      hal.PowerDomain
	queueBytes int
	log        zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		irqc:       opts.IRQ,
		power:      opts.Power,
		queueBytes: AlignQueueBytes(opts.QueueBytes),
		log:        zerolog.Nop(),
	}
	if opts.QueueBytes == 0 {
		r.queueBytes = DefaultQueueBytes
	}
	if r.power == nil {
		r.power = hal.NullPowerDomain{}
	}
	if opts.Logger != nil {
		r.log = *opts.Logger
	}
	return r
}

// Register populates the lookup table. It fails without side effects on an
// empty list, a duplicate name, or a table already in place.
func (r *Registry) Register(channels []*Channel) error {
	if len(channels) == 0 {
		return errors.New("mbox: no channels to register")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byName != nil {
		return errors.New("mbox: channels already registered")
	}
	byName := make(map[string]*Channel, len(channels))
	for _, c := range channels {
		if _, dup := byName[c.name]; dup {
			return fmt.Errorf("mbox: duplicate channel name %q", c.name)
		}
		byName[c.name] = c
	}
	for _, c := range channels {
		c.log = r.log.With().Str("mbox", c.name).Logger()
	}
	r.byName = byName
	r.order = append([]*Channel(nil), channels...)
	return nil
}

// Unregister clears the lookup table. Channels still open stay functional
// until closed; subsequent opens fail with ErrNotFound.
func (r *Registry) Unregister() {
	r.mu.Lock()
	r.byName = nil
	r.order = nil
	r.mu.Unlock()
}

// Open looks a channel up by name and brings it into use. The first open of
// a channel allocates its software queues, starts its deferred tasks, and
// binds its interrupt line; the first open on the whole link also starts
// the hardware. A failed open rolls everything back and leaves the use
// count untouched.
//
// A non-nil observer is registered after the channel is up.
func (r *Registry) Open(name string, obs Observer) (*Channel, error) {
	r.mu.Lock()
	c := r.byName[name]
	if c == nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err := r.startup(c); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.mu.Unlock()

	if obs != nil {
		c.observers.add(obs)
	}
	return c, nil
}

// startup runs with the activation mutex held.
func (r *Registry) startup(c *Channel) error {
	if err := r.power.Get(); err != nil {
		return fmt.Errorf("%w: power domain: %w", ErrNoDevice, err)
	}

	if r.configured == 0 {
		if c.ops == nil {
			r.power.Put()
			return fmt.Errorf("%w: %q has no hardware operations", ErrNoDevice, c.name)
		}
		if err := c.ops.Startup(); err != nil {
			r.power.Put()
			return fmt.Errorf("%w: %q: %w", ErrNoDevice, c.name, err)
		}
	}
	r.configured++

	if c.useCount == 0 {
		c.txq = newQueue(r.queueBytes)
		c.rxq = newQueue(r.queueBytes)
		c.tx = startTask(c.transmitDrain)
		c.rx = startTask(c.receiveDispatch)

		if err := r.irqc.Request(c.line, c.interrupt); err != nil {
			r.log.Error().Err(err).Str("mbox", c.name).Int("line", c.line).
				Msg("failed to register mailbox interrupt")
			c.tx.kill()
			c.rx.kill()
			c.txq, c.rxq = nil, nil
			c.tx, c.rx = nil, nil
			r.configured--
			if r.configured == 0 {
				c.ops.Shutdown()
			}
			r.power.Put()
			return fmt.Errorf("%w: %q: irq line %d: %w", ErrNoDevice, c.name, c.line, err)
		}
		c.ops.EnableIRQ(hal.IRQRx)
	}
	c.useCount++
	return nil
}

// Close releases one open reference. Pending deferred receive work is
// flushed to completion first, so no observer dispatch is in flight when
// the last close frees the queues. A non-nil observer is unregistered.
//
// The handle is dead once its matching open has been closed: the caller
// must not use it again until a fresh Open.
func (r *Registry) Close(c *Channel, obs Observer) {
	r.mu.Lock()
	if c.useCount == 0 {
		r.mu.Unlock()
		return
	}

	c.rx.flushSync()

	c.useCount--
	if c.useCount == 0 {
		r.irqc.Free(c.line)
		c.tx.kill()
		c.rx.kill()
		c.txq, c.rxq = nil, nil
		c.tx, c.rx = nil, nil
	}

	r.configured--
	if r.configured == 0 {
		c.ops.Shutdown()
	}

	r.power.Put()
	r.mu.Unlock()

	if obs != nil {
		c.observers.remove(obs)
	}
}

// Suspend saves hardware context for every in-use channel ahead of a system
// sleep. A channel whose hardware cannot save context is logged and
// skipped; suspend itself proceeds.
func (r *Registry) Suspend() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.order {
		if c.useCount == 0 {
			continue
		}
		if err := c.ops.SaveContext(); err != nil {
			r.log.Error().Err(err).Str("mbox", c.name).Msg("no context save")
		}
	}
}

// Resume restores hardware context for every in-use channel after a system
// sleep. Channels not open at suspend time have nothing to restore.
func (r *Registry) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.order {
		if c.useCount == 0 {
			continue
		}
		if err := c.ops.RestoreContext(); err != nil {
			r.log.Error().Err(err).Str("mbox", c.name).Msg("no context restore")
		}
	}
}
