package consistency

import (
	"fmt"

	"grangeat/pkg/compute"
	"grangeat/pkg/geometry"
	"grangeat/pkg/radon"
	"grangeat/pkg/voxel"
)

// IntermediateProj evaluates the intermediate function of a projection:
// the derivative along the distance axis of the projection's 2D Radon
// transform. With cosine weighting enabled the image is rescaled by the
// per-pixel obliquity cosines of its projection matrix first, which turns
// the line integrals into weighted plane integrals of the Grangeat kind.
type IntermediateProj struct {
	transform *radon.Transform2D
	proj      geometry.ProjectionMatrix
	method    DiffMethod
	weighted  bool
}

// NewIntermediateProj binds a projection image and its projection matrix.
// When weighted is set the image is copied and scaled by the obliquity
// cosines; the caller's chunk stays untouched either way.
func NewIntermediateProj(mgr *compute.Manager, img *voxel.Chunk2D, proj geometry.ProjectionMatrix, weighted bool) (*IntermediateProj, error) {
	if img == nil {
		return nil, fmt.Errorf("failed to create projection intermediate: nil image")
	}
	if weighted {
		cosines, err := proj.ObliquityCosines(img.Width, img.Height)
		if err != nil {
			return nil, fmt.Errorf("failed to create projection intermediate: %v", err)
		}
		img = img.Clone()
		for i := range img.Data {
			img.Data[i] *= cosines[i]
		}
	}
	transform, err := radon.NewTransform2D(mgr, img)
	if err != nil {
		return nil, fmt.Errorf("failed to create projection intermediate: %v", err)
	}
	return &IntermediateProj{
		transform: transform,
		proj:      proj,
		method:    DiffCentral,
		weighted:  weighted,
	}, nil
}

// Transform returns the underlying 2D Radon transform. Origin and line
// resolution adjustments go through it directly.
func (p *IntermediateProj) Transform() *radon.Transform2D { return p.transform }

// Projection returns the projection matrix the intermediate belongs to.
func (p *IntermediateProj) Projection() geometry.ProjectionMatrix { return p.proj }

// Weighted reports whether obliquity-cosine weighting was applied.
func (p *IntermediateProj) Weighted() bool { return p.weighted }

// DiffMethod returns the derivative method used for grid sampling.
func (p *IntermediateProj) DiffMethod() DiffMethod { return p.method }

// SetDiffMethod selects the derivative method used for grid sampling.
func (p *IntermediateProj) SetDiffMethod(m DiffMethod) error {
	if _, err := m.fn(); err != nil {
		return err
	}
	p.method = m
	return nil
}

// Sampled evaluates the intermediate function at scattered Radon
// coordinates. Off-grid points leave only the symmetric two-point
// derivative: each line is sampled at dist-h and dist+h in one device
// pass and differenced.
func (p *IntermediateProj) Sampled(coords []geometry.Radon2DCoord, h float32) ([]float32, error) {
	if h <= 0 {
		return nil, fmt.Errorf("failed to sample projection intermediate: step %v is not positive", h)
	}
	if len(coords) == 0 {
		return nil, nil
	}
	shifted := make([]geometry.Radon2DCoord, 2*len(coords))
	for i, c := range coords {
		shifted[2*i] = geometry.Radon2DCoord{Angle: c.Angle, Dist: c.Dist - h}
		shifted[2*i+1] = geometry.Radon2DCoord{Angle: c.Angle, Dist: c.Dist + h}
	}
	values, err := p.transform.SamplePoints(shifted)
	if err != nil {
		return nil, fmt.Errorf("failed to sample projection intermediate: %v", err)
	}
	out := make([]float32, len(coords))
	inv := 1 / (2 * h)
	for i := range out {
		out[i] = (values[2*i+1] - values[2*i]) * inv
	}
	return out, nil
}

// SampleGrid evaluates the intermediate function on a full angle x
// distance grid: the sinogram is computed in one pass and then derived
// column-wise along the distance axis with the configured method. The
// distance samples must be evenly spaced.
func (p *IntermediateProj) SampleGrid(angles, distances []float32) (*voxel.Chunk2D, error) {
	if len(distances) < 2 {
		return nil, fmt.Errorf("failed to sample projection intermediate: need at least 2 distances, got %d", len(distances))
	}
	sinogram, err := p.transform.SampleGrid(angles, distances)
	if err != nil {
		return nil, fmt.Errorf("failed to sample projection intermediate: %v", err)
	}
	out, err := deriveColumns(sinogram, p.method, distances[1]-distances[0])
	if err != nil {
		return nil, fmt.Errorf("failed to sample projection intermediate: %v", err)
	}
	return out, nil
}
