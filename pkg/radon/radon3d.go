package radon

import (
	"fmt"

	fmath "github.com/barnex/fmath"
	"github.com/ungerik/go3d/vec3"

	"grangeat/pkg/compute"
	"grangeat/pkg/geometry"
	"grangeat/pkg/voxel"
)

// patchSize is the edge length of one reduction patch of the plane
// integration slice. Slice dimensions are always a multiple of it.
const patchSize = 16

type planeIntegralFunc func(vol *voxel.Volume, patches []float32, dim int, reso float32, n vec3.T, dist float32) float64

func init() {
	compute.RegisterKernel("radon3d", "plane_integral", func() (any, error) {
		return planeIntegralFunc(planeIntegralKernel), nil
	})
}

// NextMultipleOf16 rounds n up to the next multiple of the patch size.
func NextMultipleOf16(n int) int {
	return (n + patchSize - 1) / patchSize * patchSize
}

// planeBasis returns two orthonormal directions spanning the plane with
// unit normal n.
func planeBasis(n vec3.T) (vec3.T, vec3.T) {
	ref := vec3.T{1, 0, 0}
	ax := fmath.Abs(n[0])
	ay := fmath.Abs(n[1])
	az := fmath.Abs(n[2])
	if ay <= ax && ay <= az {
		ref = vec3.T{0, 1, 0}
	} else if az <= ax && az <= ay {
		ref = vec3.T{0, 0, 1}
	}
	e1 := vec3.Cross(&n, &ref)
	e1.Normalize()
	e2 := vec3.Cross(&n, &e1)
	return e1, e2
}

// planeIntegralKernel rasterizes a dim x dim slice of the plane with unit
// normal n at the given distance from the origin, in steps of reso mm, and
// accumulates trilinear volume samples. Sums are first collected per 16x16
// patch and the patch buffer is then reduced to the final integral, scaled
// by the slice pixel area.
func planeIntegralKernel(vol *voxel.Volume, patches []float32, dim int, reso float32, n vec3.T, dist float32) float64 {
	e1, e2 := planeBasis(n)
	center := n.Scaled(dist)
	half := float32(dim-1) / 2
	patchesPerRow := dim / patchSize

	for pr := 0; pr < patchesPerRow; pr++ {
		for pc := 0; pc < patchesPerRow; pc++ {
			var acc float32
			for sy := pr * patchSize; sy < (pr+1)*patchSize; sy++ {
				v := (float32(sy) - half) * reso
				row := e2.Scaled(v)
				row.Add(&center)
				for sx := pc * patchSize; sx < (pc+1)*patchSize; sx++ {
					u := (float32(sx) - half) * reso
					p := e1.Scaled(u)
					p.Add(&row)
					acc += vol.Sample(p[0], p[1], p[2])
				}
			}
			patches[pr*patchesPerRow+pc] = acc
		}
	}

	var total float64
	for _, p := range patches {
		total += float64(p)
	}
	return total * float64(reso) * float64(reso)
}

// planeWorker drives the plane-integral kernel on one device. Its patch
// buffer is reallocated lazily from inside the device queue whenever the
// slice dimension changed, so in-flight work never observes a resize.
type planeWorker struct {
	dev     *compute.Device
	vol     *voxel.Volume
	kernel  planeIntegralFunc
	dim     int
	patches []float32
}

// dispatch submits one plane integral and returns the result location
// together with its completion event. The result is valid once the event
// has completed without error.
func (w *planeWorker) dispatch(c geometry.Radon3DCoord, dim int, reso float32) (*float64, *compute.Event) {
	out := new(float64)
	ev := w.dev.Submit(func() error {
		if w.dim != dim {
			w.dim = dim
			w.patches = make([]float32, (dim/patchSize)*(dim/patchSize))
		}
		nx, ny, nz := c.Normal()
		*out = w.kernel(w.vol, w.patches, dim, reso, vec3.T{nx, ny, nz}, c.Dist)
		return nil
	})
	return out, ev
}

// Transform3D computes plane integrals of a voxel volume. Each available
// compute device runs one worker; full sweeps distribute consecutive
// planes round-robin over the workers and keep one integral in flight per
// device, consuming the previous result just before issuing the next.
type Transform3D struct {
	vol       *voxel.Volume
	workers   []*planeWorker
	sliceDim  int
	sliceReso float32
	progress  ProgressCallback
}

// NewTransform3D prepares plane integration over the given volume on every
// device of the manager. The integration slice defaults to an edge length
// of sqrt(2) times the largest volume dimension, rounded up to a multiple
// of 16, sampled at the smallest voxel spacing.
func NewTransform3D(mgr *compute.Manager, vol *voxel.Volume) (*Transform3D, error) {
	if mgr == nil || mgr.NumDevices() == 0 {
		return nil, compute.ErrNoDevice
	}
	if vol == nil || vol.NX == 0 || vol.NY == 0 || vol.NZ == 0 {
		return nil, fmt.Errorf("failed to create 3D transform: empty volume")
	}
	for _, s := range vol.VoxelSize {
		if s <= 0 {
			return nil, fmt.Errorf("failed to create 3D transform: non-positive voxel size %v", vol.VoxelSize)
		}
	}
	fn, err := mgr.Kernel("radon3d", "plane_integral")
	if err != nil {
		return nil, fmt.Errorf("failed to create 3D transform: %v", err)
	}
	kernel := fn.(planeIntegralFunc)

	t := &Transform3D{
		vol:       vol,
		sliceDim:  NextMultipleOf16(int(fmath.Ceil(fmath.Sqrt(2) * float32(vol.MaxDim())))),
		sliceReso: vol.MinVoxelSize(),
	}
	for _, dev := range mgr.Devices() {
		t.workers = append(t.workers, &planeWorker{dev: dev, vol: vol, kernel: kernel})
	}
	return t, nil
}

// SliceDimension returns the edge length of the integration slice.
func (t *Transform3D) SliceDimension() int { return t.sliceDim }

// SetSliceDimension overrides the integration slice edge length. The value
// must be a positive multiple of 16; per-device patch buffers are rebuilt
// on their next dispatch.
func (t *Transform3D) SetSliceDimension(dim int) error {
	if dim <= 0 || dim%patchSize != 0 {
		return fmt.Errorf("failed to set slice dimension: %d is not a positive multiple of %d", dim, patchSize)
	}
	t.sliceDim = dim
	return nil
}

// SliceResolution returns the integration step in mm.
func (t *Transform3D) SliceResolution() float32 { return t.sliceReso }

// SetSliceResolution overrides the integration step in mm.
func (t *Transform3D) SetSliceResolution(reso float32) error {
	if reso <= 0 {
		return fmt.Errorf("failed to set slice resolution: %v is not positive", reso)
	}
	t.sliceReso = reso
	return nil
}

// SetProgressCallback sets a callback invoked after every consumed plane
// during full sweeps.
func (t *Transform3D) SetProgressCallback(cb ProgressCallback) { t.progress = cb }

// Volume returns the bound volume.
func (t *Transform3D) Volume() *voxel.Volume { return t.vol }

// PlaneIntegral computes a single plane integral on the first device and
// waits for the result.
func (t *Transform3D) PlaneIntegral(c geometry.Radon3DCoord) (float64, error) {
	if len(t.workers) == 0 {
		return 0, compute.ErrNoDevice
	}
	out, ev := t.workers[0].dispatch(c, t.sliceDim, t.sliceReso)
	if err := ev.Wait(); err != nil {
		return 0, fmt.Errorf("failed to integrate plane: %v", err)
	}
	return *out, nil
}

// PlaneIntegralNormal computes the integral over the plane <n, x> = dist.
// The normal need not be unit length; it is normalized together with the
// distance. A zero normal is an error.
func (t *Transform3D) PlaneIntegralNormal(nx, ny, nz, dist float32) (float64, error) {
	norm := fmath.Sqrt(nx*nx + ny*ny + nz*nz)
	if norm == 0 {
		return 0, fmt.Errorf("failed to integrate plane: zero normal")
	}
	plane := geometry.HomCoordPlane{Nx: nx / norm, Ny: ny / norm, Nz: nz / norm, MinusD: -dist / norm}
	return t.PlaneIntegral(plane.Radon3D())
}

// SamplePlanes computes one plane integral per coordinate, pipelined over
// all devices in list order.
func (t *Transform3D) SamplePlanes(coords []geometry.Radon3DCoord) ([]float32, error) {
	if len(t.workers) == 0 {
		return nil, compute.ErrNoDevice
	}
	out := make([]float32, len(coords))
	if err := t.sweep(out, coords); err != nil {
		return nil, err
	}
	return out, nil
}

// SampleGrid evaluates the transform on the full spherical grid. The
// result volume has one x-voxel per azimuth, one y-voxel per polar angle
// and one z-voxel per distance; its voxel size and offset carry the grid
// spacing and center so that Radon coordinates map directly to volume
// positions. Sample lists are expected ascending and equidistant.
func (t *Transform3D) SampleGrid(azimuths, polars, distances []float32) (*voxel.Volume, error) {
	if len(t.workers) == 0 {
		return nil, compute.ErrNoDevice
	}
	if len(azimuths) == 0 || len(polars) == 0 || len(distances) == 0 {
		return nil, fmt.Errorf("failed to sample 3D transform: empty sampling grid")
	}

	out := voxel.NewVolume(len(azimuths), len(polars), len(distances), [3]float32{
		axisSpacing(azimuths),
		axisSpacing(polars),
		axisSpacing(distances),
	})
	out.Offset = [3]float32{
		(azimuths[0] + azimuths[len(azimuths)-1]) / 2,
		(polars[0] + polars[len(polars)-1]) / 2,
		(distances[0] + distances[len(distances)-1]) / 2,
	}

	// Distance-major enumeration with the azimuth innermost matches the
	// volume's x-fastest layout, so plane i lands at Data[i].
	coords := make([]geometry.Radon3DCoord, 0, len(out.Data))
	for _, dist := range distances {
		for _, polar := range polars {
			for _, azimuth := range azimuths {
				coords = append(coords, geometry.Radon3DCoord{Azimuth: azimuth, Polar: polar, Dist: dist})
			}
		}
	}
	if err := t.sweep(out.Data, coords); err != nil {
		return nil, err
	}
	return out, nil
}

func axisSpacing(samples []float32) float32 {
	if len(samples) < 2 {
		return 1
	}
	return samples[1] - samples[0]
}

type inflight struct {
	out *float64
	ev  *compute.Event
	idx int
}

// sweep runs the issue-next/consume-previous pipeline: plane i goes to
// worker i mod n, and before a worker is handed new work its previous
// result is waited for and stored. On the first failure the remaining
// in-flight planes are drained and the error returned.
func (t *Transform3D) sweep(dst []float32, coords []geometry.Radon3DCoord) error {
	slots := make([]inflight, len(t.workers))
	total := len(coords)
	done := 0
	var firstErr error

	consume := func(s inflight) {
		if err := s.ev.Wait(); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to sample 3D transform: %v", err)
			}
			return
		}
		dst[s.idx] = float32(*s.out)
		done++
		if t.progress != nil {
			t.progress(done, total, "")
		}
	}

	for i, c := range coords {
		w := i % len(t.workers)
		if slots[w].ev != nil {
			consume(slots[w])
			slots[w].ev = nil
			if firstErr != nil {
				break
			}
		}
		out, ev := t.workers[w].dispatch(c, t.sliceDim, t.sliceReso)
		slots[w] = inflight{out: out, ev: ev, idx: i}
	}
	for _, s := range slots {
		if s.ev != nil {
			consume(s)
		}
	}
	return firstErr
}
