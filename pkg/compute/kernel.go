package compute

import (
	"fmt"
	"sync"
)

// KernelKey identifies a kernel by program and kernel name, mirroring how
// device code is addressed on an accelerated backend.
type KernelKey struct {
	Program string
	Kernel  string
}

// KernelBuilder compiles a kernel once. The returned value is the kernel's
// entry point; callers assert it to the concrete function type agreed on
// between the registering and the resolving package.
type KernelBuilder func() (any, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[KernelKey]KernelBuilder)
)

// RegisterKernel makes a kernel available for lookup under the given
// program and kernel name. It is intended to be called from package init
// functions and panics on duplicate registration.
func RegisterKernel(program, kernel string, builder KernelBuilder) {
	key := KernelKey{Program: program, Kernel: kernel}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[key]; dup {
		panic(fmt.Sprintf("compute: kernel %s/%s registered twice", program, kernel))
	}
	registry[key] = builder
}

type compiledKernel struct {
	once sync.Once
	fn   any
	err  error
}

// Kernel resolves a kernel entry point, compiling it on first use. The
// compiled result is cached per manager, so repeated lookups of the same
// (program, kernel) pair are cheap and run the builder exactly once.
func (m *Manager) Kernel(program, kernel string) (any, error) {
	key := KernelKey{Program: program, Kernel: kernel}

	m.kmu.Lock()
	ck, ok := m.kernels[key]
	if !ok {
		ck = &compiledKernel{}
		m.kernels[key] = ck
	}
	m.kmu.Unlock()

	ck.once.Do(func() {
		registryMu.RLock()
		builder, ok := registry[key]
		registryMu.RUnlock()
		if !ok {
			ck.err = fmt.Errorf("%w: %s/%s", ErrUnknownKernel, program, kernel)
			return
		}
		ck.fn, ck.err = builder()
	})
	return ck.fn, ck.err
}
