package radon

import (
	"fmt"

	fmath "github.com/barnex/fmath"

	"grangeat/pkg/compute"
	"grangeat/pkg/geometry"
	"grangeat/pkg/voxel"
)

type resampleFunc func(data []float32, nx, ny, nz int, az, pol, dist geometry.SamplingRange, coords, out []float32)

func init() {
	compute.RegisterKernel("radon_resampler", "sample_volume", func() (any, error) {
		return resampleFunc(resampleKernel), nil
	})
}

// gridCoord maps a Radon coordinate to a continuous grid index over n
// samples covering the range, clamped to the borders.
func gridCoord(v float32, r geometry.SamplingRange, n int) float32 {
	if n <= 1 || r.Width() == 0 {
		return 0
	}
	g := (v - r.From) / r.Width() * float32(n-1)
	if g < 0 {
		return 0
	}
	if g > float32(n-1) {
		return float32(n - 1)
	}
	return g
}

// resampleKernel evaluates the Radon-space volume at arbitrary spherical
// coordinates, three floats per coordinate, with trilinear interpolation
// and clamp-to-edge addressing.
func resampleKernel(data []float32, nx, ny, nz int, az, pol, dist geometry.SamplingRange, coords, out []float32) {
	n := len(coords) / 3
	for i := 0; i < n; i++ {
		gx := gridCoord(coords[3*i], az, nx)
		gy := gridCoord(coords[3*i+1], pol, ny)
		gz := gridCoord(coords[3*i+2], dist, nz)

		x0 := int(fmath.Floor(gx))
		y0 := int(fmath.Floor(gy))
		z0 := int(fmath.Floor(gz))
		x1, y1, z1 := x0+1, y0+1, z0+1
		if x1 > nx-1 {
			x1 = nx - 1
		}
		if y1 > ny-1 {
			y1 = ny - 1
		}
		if z1 > nz-1 {
			z1 = nz - 1
		}
		fx := gx - float32(x0)
		fy := gy - float32(y0)
		fz := gz - float32(z0)

		at := func(x, y, z int) float32 { return data[(z*ny+y)*nx+x] }
		c00 := at(x0, y0, z0) + (at(x1, y0, z0)-at(x0, y0, z0))*fx
		c10 := at(x0, y1, z0) + (at(x1, y1, z0)-at(x0, y1, z0))*fx
		c01 := at(x0, y0, z1) + (at(x1, y0, z1)-at(x0, y0, z1))*fx
		c11 := at(x0, y1, z1) + (at(x1, y1, z1)-at(x0, y1, z1))*fx
		c0 := c00 + (c10-c00)*fy
		c1 := c01 + (c11-c01)*fy
		out[i] = c0 + (c1-c0)*fz
	}
}

// VolumeResampler holds a Radon-space volume resident on a device and
// interpolates it at arbitrary spherical coordinates. Its natural input is
// the output of Transform3D.SampleGrid together with the buffer produced
// by CoordTransform.Transform, which stays on the device end to end.
type VolumeResampler struct {
	dev       *compute.Device
	data      *compute.Buffer
	nx        int
	ny        int
	nz        int
	azRange   geometry.SamplingRange
	polRange  geometry.SamplingRange
	distRange geometry.SamplingRange
	kernel    resampleFunc
}

// NewVolumeResampler uploads the volume to the manager's first device. The
// three ranges state which Radon coordinates the volume's x, y and z axes
// cover; coordinates outside are clamped to the border samples.
func NewVolumeResampler(mgr *compute.Manager, vol *voxel.Volume, az, pol, dist geometry.SamplingRange) (*VolumeResampler, error) {
	if mgr == nil || mgr.NumDevices() == 0 {
		return nil, compute.ErrNoDevice
	}
	if vol == nil || len(vol.Data) == 0 {
		return nil, fmt.Errorf("failed to create volume resampler: empty volume")
	}
	fn, err := mgr.Kernel("radon_resampler", "sample_volume")
	if err != nil {
		return nil, fmt.Errorf("failed to create volume resampler: %v", err)
	}
	r := &VolumeResampler{
		dev:       mgr.Device(0),
		nx:        vol.NX,
		ny:        vol.NY,
		nz:        vol.NZ,
		azRange:   az,
		polRange:  pol,
		distRange: dist,
		kernel:    fn.(resampleFunc),
	}
	r.data = compute.NewBuffer(r.dev, len(vol.Data))
	if err := r.data.Upload(vol.Data).Wait(); err != nil {
		return nil, fmt.Errorf("failed to create volume resampler: %v", err)
	}
	return r, nil
}

// NewRadonVolumeResampler derives the coordinate ranges from the volume's
// own spacing and offset metadata, as produced by Transform3D.SampleGrid.
func NewRadonVolumeResampler(mgr *compute.Manager, vol *voxel.Volume) (*VolumeResampler, error) {
	if vol == nil {
		return nil, fmt.Errorf("failed to create volume resampler: nil volume")
	}
	rangeOf := func(n int, size, center float32) geometry.SamplingRange {
		half := float32(n-1) / 2 * size
		return geometry.NewSamplingRange(center-half, center+half)
	}
	return NewVolumeResampler(mgr, vol,
		rangeOf(vol.NX, vol.VoxelSize[0], vol.Offset[0]),
		rangeOf(vol.NY, vol.VoxelSize[1], vol.Offset[1]),
		rangeOf(vol.NZ, vol.VoxelSize[2], vol.Offset[2]),
	)
}

// Device returns the device holding the volume.
func (r *VolumeResampler) Device() *compute.Device { return r.dev }

// Ranges returns the azimuth, polar and distance ranges covered by the
// volume axes.
func (r *VolumeResampler) Ranges() (az, pol, dist geometry.SamplingRange) {
	return r.azRange, r.polRange, r.distRange
}

// SampleBuffer interpolates the volume at coordinates already resident on
// the owning device, three floats per coordinate, and returns one value
// per coordinate. The coordinate buffer is not copied back to the host.
func (r *VolumeResampler) SampleBuffer(coords *compute.Buffer) ([]float32, error) {
	if coords.Device() != r.dev {
		return nil, compute.ErrCrossDevice
	}
	if coords.Len()%3 != 0 {
		return nil, compute.ErrSizeMismatch
	}
	out := make([]float32, coords.Len()/3)
	ev := r.dev.Submit(func() error {
		r.kernel(r.data.Data(), r.nx, r.ny, r.nz, r.azRange, r.polRange, r.distRange, coords.Data(), out)
		return nil
	})
	if err := ev.Wait(); err != nil {
		return nil, fmt.Errorf("failed to resample volume: %v", err)
	}
	return out, nil
}

// Sample interpolates the volume at host-side spherical coordinates.
func (r *VolumeResampler) Sample(coords []geometry.Radon3DCoord) ([]float32, error) {
	if len(coords) == 0 {
		return nil, nil
	}
	buf := compute.NewBuffer(r.dev, 3*len(coords))
	if err := buf.Upload(geometry.FlattenRadon3D(coords)).Wait(); err != nil {
		return nil, fmt.Errorf("failed to resample volume: %v", err)
	}
	return r.SampleBuffer(buf)
}
