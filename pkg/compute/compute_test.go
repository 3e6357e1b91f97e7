package compute

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsInFIFOOrder(t *testing.T) {
	m, err := NewManager(1)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Close()

	const n = 200
	order := make([]int, 0, n)
	var last *Event
	for i := 0; i < n; i++ {
		i := i
		last = m.Device(0).Submit(func() error {
			order = append(order, i)
			return nil
		})
	}
	if err := last.Wait(); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if len(order) != n {
		t.Fatalf("ran %d tasks, want %d", len(order), n)
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("task %d ran at position %d", got, i)
		}
	}
}

func TestEventPropagatesTaskError(t *testing.T) {
	m, err := NewManager(1)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Close()

	boom := errors.New("boom")
	ev := m.Device(0).Submit(func() error { return boom })
	if got := ev.Wait(); !errors.Is(got, boom) {
		t.Errorf("Wait returned %v, want %v", got, boom)
	}

	ok := m.Device(0).Submit(func() error { return nil })
	if got := ok.Wait(); got != nil {
		t.Errorf("Wait after failed task returned %v, want nil", got)
	}
}

func TestSubmitAfterCloseFails(t *testing.T) {
	m, err := NewManager(2)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	m.Close()

	ev := m.Device(1).Submit(func() error { return nil })
	if got := ev.Wait(); !errors.Is(got, ErrClosed) {
		t.Errorf("Wait returned %v, want %v", got, ErrClosed)
	}
	// Close is idempotent.
	m.Close()
}

func TestDevicesRunConcurrently(t *testing.T) {
	m, err := NewManager(2)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Close()

	// The task on device 0 can only finish if the task on device 1 runs
	// while it is still blocked, which requires independent workers.
	handshake := make(chan struct{})
	ev0 := m.Device(0).Submit(func() error {
		select {
		case <-handshake:
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("timed out waiting for second device")
		}
	})
	ev1 := m.Device(1).Submit(func() error {
		close(handshake)
		return nil
	})
	if err := ev1.Wait(); err != nil {
		t.Fatalf("device 1 task failed: %v", err)
	}
	if err := ev0.Wait(); err != nil {
		t.Fatalf("device 0 task failed: %v", err)
	}
}

func TestKernelBuilderRunsOnce(t *testing.T) {
	var builds atomic.Int32
	RegisterKernel("compute_test", "counting", func() (any, error) {
		builds.Add(1)
		return func() int { return 42 }, nil
	})

	m, err := NewManager(1)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Close()

	for i := 0; i < 3; i++ {
		fn, err := m.Kernel("compute_test", "counting")
		if err != nil {
			t.Fatalf("Kernel failed: %v", err)
		}
		if got := fn.(func() int)(); got != 42 {
			t.Fatalf("kernel returned %d, want 42", got)
		}
	}
	if got := builds.Load(); got != 1 {
		t.Errorf("builder ran %d times, want 1", got)
	}
}

func TestUnknownKernel(t *testing.T) {
	m, err := NewManager(1)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Close()

	if _, err := m.Kernel("compute_test", "no_such_kernel"); !errors.Is(err, ErrUnknownKernel) {
		t.Errorf("Kernel returned %v, want %v", err, ErrUnknownKernel)
	}
}

func TestBufferUploadDownloadRoundTrip(t *testing.T) {
	m, err := NewManager(1)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Close()

	src := []float32{1, 2, 3, 4, 5}
	buf := NewBuffer(m.Device(0), len(src))
	if err := buf.Upload(src).Wait(); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	// A kernel on the same queue sees the uploaded contents and may write
	// the buffer in place.
	ev := buf.Device().Submit(func() error {
		data := buf.Data()
		for i := range data {
			data[i] *= 2
		}
		return nil
	})
	if err := ev.Wait(); err != nil {
		t.Fatalf("kernel failed: %v", err)
	}

	dst := make([]float32, len(src))
	if err := buf.Download(dst).Wait(); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	for i, want := range []float32{2, 4, 6, 8, 10} {
		if dst[i] != want {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], want)
		}
	}
}

func TestBufferSizeMismatch(t *testing.T) {
	m, err := NewManager(1)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	defer m.Close()

	buf := NewBuffer(m.Device(0), 4)
	if err := buf.Upload(make([]float32, 3)).Wait(); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("Upload returned %v, want %v", err, ErrSizeMismatch)
	}
	if err := buf.Download(make([]float32, 5)).Wait(); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("Download returned %v, want %v", err, ErrSizeMismatch)
	}
}
