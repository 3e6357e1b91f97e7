package compute

// Buffer is a float32 buffer resident on a single device. Host access goes
// through Upload and Download, which are enqueued on the owning device's
// queue like any other task; device code running on that queue may touch
// the backing storage directly via Data.
//
// Because a device queue is FIFO, a kernel submitted after an Upload sees
// the uploaded contents without further synchronization. Reading Data from
// the host while work that writes the buffer may still be queued is a data
// race; wait on the relevant event first.
type Buffer struct {
	dev  *Device
	data []float32
}

// NewBuffer allocates a zero-filled device buffer of n float32 values.
func NewBuffer(dev *Device, n int) *Buffer {
	return &Buffer{dev: dev, data: make([]float32, n)}
}

// Device returns the owning device.
func (b *Buffer) Device() *Device { return b.dev }

// Len returns the number of float32 values in the buffer.
func (b *Buffer) Len() int { return len(b.data) }

// Data exposes the device-side storage. It is only safe to use inside
// tasks running on the owning device, or from the host after every event
// touching the buffer has completed.
func (b *Buffer) Data() []float32 { return b.data }

// Upload enqueues a host-to-device copy and returns its event. The source
// slice must stay unmodified until the event completes and must match the
// buffer's length.
func (b *Buffer) Upload(src []float32) *Event {
	if len(src) != len(b.data) {
		return completedEvent(ErrSizeMismatch)
	}
	return b.dev.Submit(func() error {
		copy(b.data, src)
		return nil
	})
}

// Download enqueues a device-to-host copy and returns its event. The
// destination must match the buffer's length and must not be read before
// the event completes.
func (b *Buffer) Download(dst []float32) *Event {
	if len(dst) != len(b.data) {
		return completedEvent(ErrSizeMismatch)
	}
	return b.dev.Submit(func() error {
		copy(dst, b.data)
		return nil
	})
}
