package hal

import "sync"

// RefPowerDomain is a PowerDomain that turns the domain on at the first Get
// and off at the matching last Put. The hooks are optional.
type RefPowerDomain struct {
	// PowerOn is called with the domain lock held when the reference count
	// rises from zero. An error fails the Get and keeps the count at zero.
	PowerOn func() error
	// PowerOff is called with the domain lock held when the reference count
	// drops back to zero.
	PowerOff func()

	mu    sync.Mutex
	count int
}

func (d *RefPowerDomain) Get() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.count == 0 && d.PowerOn != nil {
		if err := d.PowerOn(); err != nil {
			return err
		}
	}
	d.count++
	return nil
}

func (d *RefPowerDomain) Put() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.count == 0 {
		return
	}
	d.count--
	if d.count == 0 && d.PowerOff != nil {
		d.PowerOff()
	}
}

// Count returns the current reference count.
func (d *RefPowerDomain) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// NullPowerDomain is a PowerDomain for links that are always powered.
type NullPowerDomain struct{}

func (NullPowerDomain) Get() error { return nil }
func (NullPowerDomain) Put()       {}
