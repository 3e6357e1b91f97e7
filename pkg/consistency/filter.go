// Package consistency implements the Grangeat-style consistency machinery:
// intermediate functions of projections and volumes (derivatives of Radon
// transforms), correspondence generators pairing detector lines with
// 3D planes, and index-aligned intermediate function pairs whose mismatch
// quantifies geometric inconsistency.
package consistency

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"grangeat/pkg/voxel"
)

// DiffMethod selects the derivative kernel applied along the distance axis
// of Radon-space data. The set is closed; each method resolves to a plain
// function once per call, outside the per-sample loops.
type DiffMethod int

const (
	// DiffCentral is the two-point symmetric difference.
	DiffCentral DiffMethod = iota
	// DiffNext is the forward difference.
	DiffNext
	// DiffFivePoint is the five-point central difference.
	DiffFivePoint
	// DiffSpectral differentiates in Fourier space with the unmatched
	// Nyquist bin truncated.
	DiffSpectral
)

// String returns the configuration name of the method.
func (m DiffMethod) String() string {
	switch m {
	case DiffCentral:
		return "central"
	case DiffNext:
		return "next"
	case DiffFivePoint:
		return "five-point"
	case DiffSpectral:
		return "spectral"
	}
	return fmt.Sprintf("DiffMethod(%d)", int(m))
}

// ParseDiffMethod maps a configuration name to its method.
func ParseDiffMethod(name string) (DiffMethod, error) {
	for _, m := range []DiffMethod{DiffCentral, DiffNext, DiffFivePoint, DiffSpectral} {
		if m.String() == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("failed to parse derivative method: unknown name %q", name)
}

type diffFunc func(dst, src []float32, step float32)

func (m DiffMethod) fn() (diffFunc, error) {
	switch m {
	case DiffCentral:
		return diffCentral, nil
	case DiffNext:
		return diffNext, nil
	case DiffFivePoint:
		return diffFivePoint, nil
	case DiffSpectral:
		return diffSpectral, nil
	}
	return nil, fmt.Errorf("failed to select derivative method: unknown method %d", int(m))
}

// Derive differentiates a uniformly sampled signal with the given method
// and sample spacing, returning a new slice of the same length. Border
// samples the stencil cannot reach are zero.
func Derive(m DiffMethod, src []float32, step float32) ([]float32, error) {
	if step <= 0 {
		return nil, fmt.Errorf("failed to differentiate: step %v is not positive", step)
	}
	fn, err := m.fn()
	if err != nil {
		return nil, err
	}
	dst := make([]float32, len(src))
	fn(dst, src, step)
	return dst, nil
}

func diffCentral(dst, src []float32, step float32) {
	n := len(src)
	if n < 3 {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	dst[0] = 0
	dst[n-1] = 0
	inv := 1 / (2 * step)
	for i := 1; i < n-1; i++ {
		dst[i] = (src[i+1] - src[i-1]) * inv
	}
}

func diffNext(dst, src []float32, step float32) {
	n := len(src)
	if n == 0 {
		return
	}
	inv := 1 / step
	for i := 0; i < n-1; i++ {
		dst[i] = (src[i+1] - src[i]) * inv
	}
	dst[n-1] = 0
}

func diffFivePoint(dst, src []float32, step float32) {
	n := len(src)
	if n < 5 {
		diffCentral(dst, src, step)
		return
	}
	for i := 0; i < 2; i++ {
		dst[i] = 0
		dst[n-1-i] = 0
	}
	inv := 1 / (12 * step)
	for i := 2; i < n-2; i++ {
		dst[i] = (-src[i+2] + 8*src[i+1] - 8*src[i-1] + src[i-2]) * inv
	}
}

// diffSpectral computes the derivative through the real FFT: coefficient k
// is multiplied by i*2*pi*k/(n*step). For even lengths the Nyquist bin has
// no matching conjugate and is zeroed, which truncates the one mode whose
// derivative phase is ambiguous.
func diffSpectral(dst, src []float32, step float32) {
	n := len(src)
	if n < 2 {
		for i := range dst {
			dst[i] = 0
		}
		return
	}
	seq := make([]float64, n)
	for i, v := range src {
		seq[i] = float64(v)
	}
	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, seq)

	period := float64(n) * float64(step)
	for k := range coeffs {
		if 2*k == n {
			coeffs[k] = 0
			continue
		}
		omega := 2 * math.Pi * float64(k) / period
		coeffs[k] *= complex(0, omega)
	}
	out := fft.Sequence(nil, coeffs)
	scale := 1 / float64(n)
	for i := range dst {
		dst[i] = float32(out[i] * scale)
	}
}

// deriveColumns differentiates every column of a chunk (one column per
// angle, distance running down the column) and returns a new chunk of the
// same shape.
func deriveColumns(c *voxel.Chunk2D, m DiffMethod, step float32) (*voxel.Chunk2D, error) {
	fn, err := m.fn()
	if err != nil {
		return nil, err
	}
	if step <= 0 {
		return nil, fmt.Errorf("failed to differentiate sinogram: step %v is not positive", step)
	}
	out := voxel.NewChunk2D(c.Width, c.Height, c.PixelSize)
	col := make([]float32, c.Height)
	dcol := make([]float32, c.Height)
	for x := 0; x < c.Width; x++ {
		for y := 0; y < c.Height; y++ {
			col[y] = c.At(x, y)
		}
		fn(dcol, col, step)
		for y := 0; y < c.Height; y++ {
			out.Set(x, y, dcol[y])
		}
	}
	return out, nil
}

// deriveDepth differentiates a Radon-space volume along its distance axis
// (z) for every (azimuth, polar) pair.
func deriveDepth(v *voxel.Volume, m DiffMethod, step float32) (*voxel.Volume, error) {
	fn, err := m.fn()
	if err != nil {
		return nil, err
	}
	if step <= 0 {
		return nil, fmt.Errorf("failed to differentiate radon volume: step %v is not positive", step)
	}
	out := voxel.NewVolume(v.NX, v.NY, v.NZ, v.VoxelSize)
	out.Offset = v.Offset
	ray := make([]float32, v.NZ)
	dray := make([]float32, v.NZ)
	for y := 0; y < v.NY; y++ {
		for x := 0; x < v.NX; x++ {
			for z := 0; z < v.NZ; z++ {
				ray[z] = v.At(x, y, z)
			}
			fn(dray, ray, step)
			for z := 0; z < v.NZ; z++ {
				out.Set(x, y, z, dray[z])
			}
		}
	}
	return out, nil
}
