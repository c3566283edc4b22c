package arbitrator

import (
	"context"

	"github.com/brlapi/brlapi-core/internal/device"
	"github.com/brlapi/brlapi-core/internal/registry"
)

// EnterRaw arms exclusive pass-through for c (spec §4.9 ENTER_RAW). It
// requires the driver to support raw mode and that no other connection
// currently holds raw or suspend.
func (a *Arbitrator) EnterRaw(c *registry.Connection, drv device.Driver) error {
	if !drv.SupportsRaw() {
		return ErrRawUnsupp
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.rawConn != nil || a.suspendConn != nil {
		return ErrRawBusy
	}
	a.rawConn = c
	c.SetRaw(true)
	if t, ok := drv.(device.RawToggler); ok {
		t.EnterRaw()
	}
	return nil
}

// LeaveRaw releases raw mode held by c.
func (a *Arbitrator) LeaveRaw(c *registry.Connection, drv device.Driver) error {
	a.mu.Lock()
	if a.rawConn != c {
		a.mu.Unlock()
		return ErrNotRawOwner
	}
	a.rawConn = nil
	a.mu.Unlock()
	c.SetRaw(false)
	if t, ok := drv.(device.RawToggler); ok {
		t.LeaveRaw()
	}
	return nil
}

// Suspend marks c as holding suspend and requests the device be closed
// via the core-task hop (spec §4.9 SUSPEND).
func (a *Arbitrator) Suspend(ctx context.Context, c *registry.Connection, drv device.Driver) error {
	a.mu.Lock()
	if a.rawConn != nil || a.suspendConn != nil {
		a.mu.Unlock()
		return ErrSuspendBusy
	}
	a.suspendConn = c
	a.mu.Unlock()
	c.SetSuspend(true)

	return a.requestSuspendDevice(ctx, drv)
}

// Resume reverses Suspend (spec §4.9 RESUME_DRIVER).
func (a *Arbitrator) Resume(c *registry.Connection) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.suspendConn != c {
		return ErrNotSuspendOwner
	}
	a.suspendConn = nil
	c.SetSuspend(false)
	return nil
}

// ForwardPacket relays a raw-mode PACKET from its owner straight to the
// true driver's writePacket, bypassing arbitration entirely (spec §4.7
// step 5).
func (a *Arbitrator) ForwardPacket(ctx context.Context, c *registry.Connection, drv device.Driver, data []byte) error {
	a.mu.Lock()
	owner := a.rawConn
	a.mu.Unlock()
	if owner != c {
		return ErrNotRawOwner
	}
	return drv.WritePacket(ctx, data)
}

// RecoverDisconnect runs the abrupt-disconnect rollback for c described
// in spec §4.9/§7: a raw owner's disconnect resets the device; a suspend
// owner's disconnect resumes it. It is a no-op if c held neither.
func (a *Arbitrator) RecoverDisconnect(ctx context.Context, c *registry.Connection, drv device.Driver) error {
	a.mu.Lock()
	wasRaw := a.rawConn == c
	wasSuspend := a.suspendConn == c
	if wasRaw {
		a.rawConn = nil
	}
	if wasSuspend {
		a.suspendConn = nil
	}
	a.mu.Unlock()

	if wasRaw {
		if t, ok := drv.(device.RawToggler); ok {
			t.LeaveRaw()
		}
		return a.tasks.Run(ctx, func() error { return drv.Reset(ctx) })
	}
	if wasSuspend {
		return a.tasks.Run(ctx, func() error { return nil })
	}
	return nil
}
