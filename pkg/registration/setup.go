package registration

import (
	"fmt"
	"math"

	"grangeat/pkg/compute"
	"grangeat/pkg/consistency"
	"grangeat/pkg/geometry"
	"grangeat/pkg/radon"
)

// GridSpec states the spherical grid the volume-side intermediate is
// evaluated on before device-resident resampling. Transformed plane
// coordinates falling outside the grid clamp to its border, so the
// distance range should cover the expected translation search radius.
type GridSpec struct {
	Azimuths  []float32
	Polars    []float32
	Distances []float32
}

// DefaultGridSpec covers the full direction sphere with the given sample
// counts and distances up to maxDist on either side of the origin.
func DefaultGridSpec(nAzimuth, nPolar, nDist int, maxDist float32) GridSpec {
	return GridSpec{
		Azimuths:  geometry.NewSamplingRange(-math.Pi, math.Pi).Linspace(nAzimuth),
		Polars:    geometry.NewSamplingRange(0, math.Pi).Linspace(nPolar),
		Distances: geometry.CenteredRange(2 * maxDist).Linspace(nDist),
	}
}

// NewFromIntermediates assembles the full registration pipeline: the
// generator pairs detector lines with planes, the projection intermediate
// is sampled once at those lines for the fixed reference signal, the
// volume intermediate is swept over the grid, and the plane set plus the
// gridded Radon space move onto the device for the optimizer inner loop.
func NewFromIntermediates(mgr *compute.Manager, ip *consistency.IntermediateProj, iv *consistency.IntermediateVol, gen *consistency.IntermedGen2D3D, h float32, grid GridSpec, metric consistency.Metric) (*Registration2D3D, error) {
	if gen == nil {
		return nil, fmt.Errorf("failed to assemble registration: nil generator")
	}
	if ip == nil || iv == nil {
		return nil, fmt.Errorf("failed to assemble registration: nil intermediate")
	}
	lines, planes, err := gen.SamplingFor(ip)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble registration: %v", err)
	}
	reference, err := ip.Sampled(lines, h)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble registration: %v", err)
	}
	radonVol, err := iv.SampleGrid(grid.Azimuths, grid.Polars, grid.Distances)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble registration: %v", err)
	}
	resampler, err := radon.NewRadonVolumeResampler(mgr, radonVol)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble registration: %v", err)
	}
	coords, err := radon.NewCoordTransform(mgr, planes)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble registration: %v", err)
	}
	return New(reference, coords, resampler, metric)
}
