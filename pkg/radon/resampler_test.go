package radon

import (
	"errors"
	"math"
	"testing"

	"grangeat/pkg/compute"
	"grangeat/pkg/geometry"
	"grangeat/pkg/voxel"
)

// rampRadonVolume builds a small Radon-space volume whose value is a
// linear function of the grid indices, which trilinear interpolation
// reproduces exactly.
func rampRadonVolume() *voxel.Volume {
	v := voxel.NewVolume(5, 4, 3, [3]float32{0.5, 0.25, 2})
	v.Offset = [3]float32{0, 1, 0}
	for z := 0; z < v.NZ; z++ {
		for y := 0; y < v.NY; y++ {
			for x := 0; x < v.NX; x++ {
				v.Set(x, y, z, float32(x)+10*float32(y)+100*float32(z))
			}
		}
	}
	return v
}

func TestResamplerReproducesGridPoints(t *testing.T) {
	m := newTestManager(t, 1)
	vol := rampRadonVolume()
	r, err := NewRadonVolumeResampler(m, vol)
	if err != nil {
		t.Fatalf("NewRadonVolumeResampler failed: %v", err)
	}

	az, pol, dist := r.Ranges()
	azs := az.Linspace(vol.NX)
	pols := pol.Linspace(vol.NY)
	dists := dist.Linspace(vol.NZ)

	coords := []geometry.Radon3DCoord{}
	want := []float32{}
	for zi, d := range dists {
		for yi, p := range pols {
			for xi, a := range azs {
				coords = append(coords, geometry.Radon3DCoord{Azimuth: a, Polar: p, Dist: d})
				want = append(want, vol.At(xi, yi, zi))
			}
		}
	}
	got, err := r.Sample(coords)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-4 {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestResamplerInterpolatesBetweenGridPoints(t *testing.T) {
	m := newTestManager(t, 1)
	vol := rampRadonVolume()
	r, err := NewRadonVolumeResampler(m, vol)
	if err != nil {
		t.Fatalf("NewRadonVolumeResampler failed: %v", err)
	}

	az, pol, dist := r.Ranges()
	// Halfway between grid points 1 and 2 along the azimuth axis only.
	a := az.From + 1.5*az.Spacing(vol.NX)
	got, err := r.Sample([]geometry.Radon3DCoord{{Azimuth: a, Polar: pol.From, Dist: dist.From}})
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	want := (vol.At(1, 0, 0) + vol.At(2, 0, 0)) / 2
	if math.Abs(float64(got[0]-want)) > 1e-4 {
		t.Errorf("interpolated sample = %v, want %v", got[0], want)
	}
}

func TestResamplerClampsToBorder(t *testing.T) {
	m := newTestManager(t, 1)
	vol := rampRadonVolume()
	r, err := NewRadonVolumeResampler(m, vol)
	if err != nil {
		t.Fatalf("NewRadonVolumeResampler failed: %v", err)
	}

	az, pol, dist := r.Ranges()
	got, err := r.Sample([]geometry.Radon3DCoord{
		{Azimuth: az.From - 10, Polar: pol.From, Dist: dist.From},
		{Azimuth: az.To + 10, Polar: pol.To + 1, Dist: dist.To + 100},
	})
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}
	if math.Abs(float64(got[0]-vol.At(0, 0, 0))) > 1e-4 {
		t.Errorf("below-range sample = %v, want border %v", got[0], vol.At(0, 0, 0))
	}
	last := vol.At(vol.NX-1, vol.NY-1, vol.NZ-1)
	if math.Abs(float64(got[1]-last)) > 1e-4 {
		t.Errorf("above-range sample = %v, want border %v", got[1], last)
	}
}

func TestResamplerConsumesDeviceBuffer(t *testing.T) {
	m := newTestManager(t, 1)
	vol := rampRadonVolume()
	r, err := NewRadonVolumeResampler(m, vol)
	if err != nil {
		t.Fatalf("NewRadonVolumeResampler failed: %v", err)
	}

	coords := []geometry.Radon3DCoord{
		{Azimuth: -0.2, Polar: 1.1, Dist: 0.5},
		{Azimuth: 0.3, Polar: 0.9, Dist: -1},
	}
	ct, err := NewCoordTransform(m, coords)
	if err != nil {
		t.Fatalf("NewCoordTransform failed: %v", err)
	}
	h := geometry.HomographyFromRotTrans(geometry.RotationXYZ(0.1, 0.2, -0.1), [3]float64{1, 0, -2})

	// Device path: the transformed buffer feeds the resampler directly.
	buf, err := ct.Transform(h)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	viaDevice, err := r.SampleBuffer(buf)
	if err != nil {
		t.Fatalf("SampleBuffer failed: %v", err)
	}

	// Host path: download the same coordinates and sample them.
	hostCoords, err := ct.TransformToHost(h)
	if err != nil {
		t.Fatalf("TransformToHost failed: %v", err)
	}
	viaHost, err := r.Sample(hostCoords)
	if err != nil {
		t.Fatalf("Sample failed: %v", err)
	}

	for i := range viaDevice {
		if viaDevice[i] != viaHost[i] {
			t.Errorf("device path sample %d = %v, host path = %v", i, viaDevice[i], viaHost[i])
		}
	}
}

func TestResamplerRejectsForeignBuffers(t *testing.T) {
	m := newTestManager(t, 2)
	vol := rampRadonVolume()
	r, err := NewRadonVolumeResampler(m, vol)
	if err != nil {
		t.Fatalf("NewRadonVolumeResampler failed: %v", err)
	}

	foreign := compute.NewBuffer(m.Device(1), 3)
	if _, err := r.SampleBuffer(foreign); !errors.Is(err, compute.ErrCrossDevice) {
		t.Errorf("SampleBuffer returned %v, want %v", err, compute.ErrCrossDevice)
	}

	misaligned := compute.NewBuffer(m.Device(0), 4)
	if _, err := r.SampleBuffer(misaligned); !errors.Is(err, compute.ErrSizeMismatch) {
		t.Errorf("SampleBuffer returned %v, want %v", err, compute.ErrSizeMismatch)
	}
}
