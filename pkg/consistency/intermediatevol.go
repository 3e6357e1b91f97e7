package consistency

import (
	"fmt"

	"grangeat/pkg/compute"
	"grangeat/pkg/geometry"
	"grangeat/pkg/radon"
	"grangeat/pkg/voxel"
)

// IntermediateVol evaluates the intermediate function of a volume: the
// derivative along the distance axis of the volume's 3D Radon transform.
// By the Grangeat identity this is the quantity a cosine-weighted
// projection intermediate must agree with on corresponding planes.
type IntermediateVol struct {
	transform *radon.Transform3D
	method    DiffMethod
}

// NewIntermediateVol binds a volume and schedules its plane integrals
// across all devices of the manager.
func NewIntermediateVol(mgr *compute.Manager, vol *voxel.Volume) (*IntermediateVol, error) {
	transform, err := radon.NewTransform3D(mgr, vol)
	if err != nil {
		return nil, fmt.Errorf("failed to create volume intermediate: %v", err)
	}
	return &IntermediateVol{transform: transform, method: DiffCentral}, nil
}

// Transform returns the underlying 3D Radon transform. Slice dimension and
// resolution adjustments go through it directly.
func (v *IntermediateVol) Transform() *radon.Transform3D { return v.transform }

// DiffMethod returns the derivative method used for grid sampling.
func (v *IntermediateVol) DiffMethod() DiffMethod { return v.method }

// SetDiffMethod selects the derivative method used for grid sampling.
func (v *IntermediateVol) SetDiffMethod(m DiffMethod) error {
	if _, err := m.fn(); err != nil {
		return err
	}
	v.method = m
	return nil
}

// SetProgressCallback forwards progress reports of the plane sweeps.
func (v *IntermediateVol) SetProgressCallback(cb radon.ProgressCallback) {
	v.transform.SetProgressCallback(cb)
}

// Sampled evaluates the intermediate function at scattered spherical Radon
// coordinates. Each plane is integrated at dist-h and dist+h in one sweep
// across the devices and differenced.
func (v *IntermediateVol) Sampled(coords []geometry.Radon3DCoord, h float32) ([]float32, error) {
	if h <= 0 {
		return nil, fmt.Errorf("failed to sample volume intermediate: step %v is not positive", h)
	}
	if len(coords) == 0 {
		return nil, nil
	}
	shifted := make([]geometry.Radon3DCoord, 2*len(coords))
	for i, c := range coords {
		shifted[2*i] = geometry.Radon3DCoord{Azimuth: c.Azimuth, Polar: c.Polar, Dist: c.Dist - h}
		shifted[2*i+1] = geometry.Radon3DCoord{Azimuth: c.Azimuth, Polar: c.Polar, Dist: c.Dist + h}
	}
	values, err := v.transform.SamplePlanes(shifted)
	if err != nil {
		return nil, fmt.Errorf("failed to sample volume intermediate: %v", err)
	}
	out := make([]float32, len(coords))
	inv := 1 / (2 * h)
	for i := range out {
		out[i] = (values[2*i+1] - values[2*i]) * inv
	}
	return out, nil
}

// SampleGrid evaluates the intermediate function on a full spherical grid.
// The Radon volume is swept once and then derived along its distance axis
// with the configured method. The distance samples must be evenly spaced.
func (v *IntermediateVol) SampleGrid(azimuths, polars, distances []float32) (*voxel.Volume, error) {
	if len(distances) < 2 {
		return nil, fmt.Errorf("failed to sample volume intermediate: need at least 2 distances, got %d", len(distances))
	}
	vol, err := v.transform.SampleGrid(azimuths, polars, distances)
	if err != nil {
		return nil, fmt.Errorf("failed to sample volume intermediate: %v", err)
	}
	out, err := deriveDepth(vol, v.method, distances[1]-distances[0])
	if err != nil {
		return nil, fmt.Errorf("failed to sample volume intermediate: %v", err)
	}
	return out, nil
}
