package radon

import (
	"fmt"

	"grangeat/pkg/compute"
	"grangeat/pkg/geometry"
)

type sphericalToPlaneFunc func(spherical, planes []float32)
type transformPlanesFunc func(h, planes, out []float32)

func init() {
	compute.RegisterKernel("radon3d_coords", "spherical_to_plane", func() (any, error) {
		return sphericalToPlaneFunc(sphericalToPlaneKernel), nil
	})
	compute.RegisterKernel("radon3d_coords", "transform_planes", func() (any, error) {
		return transformPlanesFunc(transformPlanesKernel), nil
	})
}

// sphericalToPlaneKernel expands (azimuth, polar, distance) triples into
// normalized homogeneous plane vectors, four floats per coordinate.
func sphericalToPlaneKernel(spherical, planes []float32) {
	n := len(spherical) / 3
	for i := 0; i < n; i++ {
		c := geometry.Radon3DCoord{
			Azimuth: spherical[3*i],
			Polar:   spherical[3*i+1],
			Dist:    spherical[3*i+2],
		}
		p := geometry.PlaneFromRadon3D(c)
		planes[4*i] = p.Nx
		planes[4*i+1] = p.Ny
		planes[4*i+2] = p.Nz
		planes[4*i+3] = p.MinusD
	}
}

// transformPlanesKernel applies the transposed homography h (16 floats,
// row-major) to every plane and writes the transformed planes back in
// spherical form, three floats per coordinate.
func transformPlanesKernel(h, planes, out []float32) {
	n := len(planes) / 4
	for i := 0; i < n; i++ {
		var t [4]float32
		for j := 0; j < 4; j++ {
			t[j] = h[j]*planes[4*i] +
				h[4+j]*planes[4*i+1] +
				h[8+j]*planes[4*i+2] +
				h[12+j]*planes[4*i+3]
		}
		c := geometry.HomCoordPlane{Nx: t[0], Ny: t[1], Nz: t[2], MinusD: t[3]}.Radon3D()
		out[3*i] = c.Azimuth
		out[3*i+1] = c.Polar
		out[3*i+2] = c.Dist
	}
}

// CoordTransform keeps a set of plane coordinates resident on a device and
// transforms the whole set by a rigid homography in a single kernel launch.
// Only the 16 floats of the matrix travel to the device per call; the
// coordinate buffers are uploaded once at construction and reused until
// ResetCoords replaces them.
//
// Planes are transformed as pi' = H^T * pi, consistent with volume points
// moving through the inverse of H (see geometry.Homography.ApplyToPlane).
type CoordTransform struct {
	dev         *compute.Device
	n           int
	spherical   *compute.Buffer // 3 floats per coordinate
	planes      *compute.Buffer // 4 floats per coordinate
	transformed *compute.Buffer // 3 floats per coordinate
	hbuf        *compute.Buffer // 16 floats
	toPlanes    sphericalToPlaneFunc
	apply       transformPlanesFunc
}

// NewCoordTransform uploads the given spherical coordinates to the
// manager's first device and derives their homogeneous plane form there.
func NewCoordTransform(mgr *compute.Manager, coords []geometry.Radon3DCoord) (*CoordTransform, error) {
	ct, err := newCoordTransform(mgr)
	if err != nil {
		return nil, err
	}
	if err := ct.ResetCoords(coords); err != nil {
		return nil, err
	}
	return ct, nil
}

// NewCoordTransformPlanes is like NewCoordTransform but starts from
// homogeneous plane vectors. The planes are normalized during upload.
func NewCoordTransformPlanes(mgr *compute.Manager, planes []geometry.HomCoordPlane) (*CoordTransform, error) {
	ct, err := newCoordTransform(mgr)
	if err != nil {
		return nil, err
	}
	if err := ct.ResetPlanes(planes); err != nil {
		return nil, err
	}
	return ct, nil
}

func newCoordTransform(mgr *compute.Manager) (*CoordTransform, error) {
	if mgr == nil || mgr.NumDevices() == 0 {
		return nil, compute.ErrNoDevice
	}
	toPlanes, err := mgr.Kernel("radon3d_coords", "spherical_to_plane")
	if err != nil {
		return nil, fmt.Errorf("failed to create coordinate transform: %v", err)
	}
	apply, err := mgr.Kernel("radon3d_coords", "transform_planes")
	if err != nil {
		return nil, fmt.Errorf("failed to create coordinate transform: %v", err)
	}
	dev := mgr.Device(0)
	return &CoordTransform{
		dev:      dev,
		hbuf:     compute.NewBuffer(dev, 16),
		toPlanes: toPlanes.(sphericalToPlaneFunc),
		apply:    apply.(transformPlanesFunc),
	}, nil
}

// Len returns the number of resident coordinates.
func (ct *CoordTransform) Len() int { return ct.n }

// Device returns the device holding the coordinate buffers.
func (ct *CoordTransform) Device() *compute.Device { return ct.dev }

func (ct *CoordTransform) ensureBuffers(n int) {
	if n == ct.n && ct.spherical != nil {
		return
	}
	ct.n = n
	ct.spherical = compute.NewBuffer(ct.dev, 3*n)
	ct.planes = compute.NewBuffer(ct.dev, 4*n)
	ct.transformed = compute.NewBuffer(ct.dev, 3*n)
}

// ResetCoords replaces the resident coordinate set. Buffers are reused
// when the count is unchanged and reallocated otherwise.
func (ct *CoordTransform) ResetCoords(coords []geometry.Radon3DCoord) error {
	if len(coords) == 0 {
		return fmt.Errorf("failed to reset coordinates: empty coordinate set")
	}
	ct.ensureBuffers(len(coords))
	// The queue is FIFO, so the conversion kernel is ordered after the
	// upload without waiting in between.
	ct.spherical.Upload(geometry.FlattenRadon3D(coords))
	ev := ct.dev.Submit(func() error {
		ct.toPlanes(ct.spherical.Data(), ct.planes.Data())
		return nil
	})
	if err := ev.Wait(); err != nil {
		return fmt.Errorf("failed to reset coordinates: %v", err)
	}
	return nil
}

// ResetPlanes replaces the resident coordinate set with homogeneous plane
// vectors, normalizing each while flattening.
func (ct *CoordTransform) ResetPlanes(planes []geometry.HomCoordPlane) error {
	if len(planes) == 0 {
		return fmt.Errorf("failed to reset coordinates: empty plane set")
	}
	normalized := make([]geometry.HomCoordPlane, len(planes))
	for i, p := range planes {
		if !p.NormalizeSelf() {
			return fmt.Errorf("failed to reset coordinates: plane %d has zero normal", i)
		}
		normalized[i] = p
	}
	ct.ensureBuffers(len(planes))
	if err := ct.planes.Upload(geometry.FlattenPlanes(normalized)).Wait(); err != nil {
		return fmt.Errorf("failed to reset coordinates: %v", err)
	}
	return nil
}

// Transform applies the homography to every resident plane and returns the
// device buffer holding the transformed coordinates in spherical form,
// three floats per coordinate. The call is synchronous; the buffer stays
// valid until the next Transform or ResetCoords call and may be consumed
// on the same device without a host round trip.
func (ct *CoordTransform) Transform(h geometry.Homography) (*compute.Buffer, error) {
	if ct.n == 0 {
		return nil, fmt.Errorf("failed to transform coordinates: empty coordinate set")
	}
	flat := h.Flatten16()
	ct.hbuf.Upload(flat[:])
	ev := ct.dev.Submit(func() error {
		ct.apply(ct.hbuf.Data(), ct.planes.Data(), ct.transformed.Data())
		return nil
	})
	if err := ev.Wait(); err != nil {
		return nil, fmt.Errorf("failed to transform coordinates: %v", err)
	}
	return ct.transformed, nil
}

// TransformToHost runs Transform and downloads the result.
func (ct *CoordTransform) TransformToHost(h geometry.Homography) ([]geometry.Radon3DCoord, error) {
	buf, err := ct.Transform(h)
	if err != nil {
		return nil, err
	}
	flat := make([]float32, buf.Len())
	if err := buf.Download(flat).Wait(); err != nil {
		return nil, fmt.Errorf("failed to transform coordinates: %v", err)
	}
	return geometry.UnflattenRadon3D(flat), nil
}
