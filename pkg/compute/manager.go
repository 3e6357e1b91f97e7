package compute

import (
	"runtime"
	"sync"
)

// Manager owns the set of compute devices and the per-manager kernel
// cache. A manager is created once per process (or per test), shared by
// all transforms, and closed when no more device work will be issued.
type Manager struct {
	devices []*Device

	kmu     sync.Mutex
	kernels map[KernelKey]*compiledKernel

	cmu    sync.Mutex
	closed bool
}

// NewManager creates a manager driving numDevices FIFO queues. A value of
// zero or less selects one device per logical CPU.
func NewManager(numDevices int) (*Manager, error) {
	if numDevices <= 0 {
		numDevices = runtime.NumCPU()
	}
	m := &Manager{
		devices: make([]*Device, numDevices),
		kernels: make(map[KernelKey]*compiledKernel),
	}
	for i := range m.devices {
		m.devices[i] = newDevice(i)
	}
	return m, nil
}

// NumDevices returns the number of devices the manager drives.
func (m *Manager) NumDevices() int { return len(m.devices) }

// Devices returns the manager's devices in queue order. The returned slice
// must not be modified.
func (m *Manager) Devices() []*Device { return m.devices }

// Device returns the i-th device.
func (m *Manager) Device(i int) *Device { return m.devices[i] }

// Close shuts down all device queues. Pending submissions still run to
// completion; submissions issued after Close fail with ErrClosed.
func (m *Manager) Close() {
	m.cmu.Lock()
	if m.closed {
		m.cmu.Unlock()
		return
	}
	m.closed = true
	m.cmu.Unlock()
	for _, d := range m.devices {
		d.close()
	}
}
