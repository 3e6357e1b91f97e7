// Package compute provides the multi-device execution layer of the engine:
// a manager owning one FIFO command queue per compute device, completion
// events for asynchronous submissions, device-resident buffers and a lazy
// kernel registry.
//
// Devices are in-process workers, one goroutine per queue. Work submitted
// to a single device executes strictly in submission order, which is the
// ordering guarantee all higher layers rely on; work on different devices
// runs concurrently and is only ordered through explicit event waits.
package compute

import "errors"

var (
	// ErrNoDevice reports that a manager has no usable compute device.
	ErrNoDevice = errors.New("compute: no device available")

	// ErrClosed reports a submission to a closed manager or device.
	ErrClosed = errors.New("compute: device closed")

	// ErrUnknownKernel reports a kernel lookup for which no builder was
	// registered.
	ErrUnknownKernel = errors.New("compute: unknown kernel")

	// ErrSizeMismatch reports a host/device copy between differently
	// sized buffers.
	ErrSizeMismatch = errors.New("compute: buffer size mismatch")

	// ErrCrossDevice reports an operation combining buffers that live on
	// different devices.
	ErrCrossDevice = errors.New("compute: buffer owned by another device")
)
