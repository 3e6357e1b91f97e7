package consistency

import (
	"fmt"
	"math"
	"math/rand"

	"grangeat/pkg/geometry"
)

// IntermedGen2D3D generates corresponding Radon coordinates between a
// single projection and a volume: the projection's 2D Radon space is
// sampled on an angle x distance grid sized from the detector diagonal,
// and every line is backprojected through the camera onto the unique world
// plane containing the source. Line i and plane i describe the same
// geometry, so the two sample lists feed the two intermediates directly.
type IntermedGen2D3D struct {
	accuracy      float64
	subsampleRate float64
	seed          int64
	seeded        bool
	lastSampling  []geometry.Radon3DCoord
}

// NewIntermedGen2D3D returns a generator with accuracy 1 and no
// subsampling.
func NewIntermedGen2D3D() *IntermedGen2D3D {
	return &IntermedGen2D3D{accuracy: 1, subsampleRate: 1}
}

// Accuracy returns the grid-density factor.
func (g *IntermedGen2D3D) Accuracy() float64 { return g.accuracy }

// SetAccuracy sets the grid-density factor. 1 samples the Radon space at
// roughly pixel resolution; smaller values thin the grid proportionally.
func (g *IntermedGen2D3D) SetAccuracy(a float64) error {
	if a <= 0 {
		return fmt.Errorf("failed to set accuracy: %v is not positive", a)
	}
	g.accuracy = a
	return nil
}

// SubsampleRate returns the fraction of generated pairs that is kept.
func (g *IntermedGen2D3D) SubsampleRate() float64 { return g.subsampleRate }

// SetSubsampleRate sets the fraction of generated pairs to keep, in
// (0, 1].
func (g *IntermedGen2D3D) SetSubsampleRate(rate float64) error {
	if rate <= 0 || rate > 1 {
		return fmt.Errorf("failed to set subsample rate: %v outside (0, 1]", rate)
	}
	g.subsampleRate = rate
	return nil
}

// SetSubsampleSeed pins the seed used for subsampling. Without a pinned
// seed every generation call draws a fresh one.
func (g *IntermedGen2D3D) SetSubsampleSeed(seed int64) {
	g.seed = seed
	g.seeded = true
}

// LastSampling returns the plane coordinates produced by the most recent
// generation call: the exact set the volume-side transform consumed. The
// slice is owned by the generator and overwritten on the next call.
func (g *IntermedGen2D3D) LastSampling() []geometry.Radon3DCoord { return g.lastSampling }

// Sampling builds the index-aligned line and plane lists for one camera,
// with the Radon origin at the detector center.
func (g *IntermedGen2D3D) Sampling(proj geometry.ProjectionMatrix, spec ImageSpec) ([]geometry.Radon2DCoord, []geometry.Radon3DCoord, error) {
	ox, oy := spec.center()
	return g.sampling(proj, spec, ox, oy)
}

func (g *IntermedGen2D3D) sampling(proj geometry.ProjectionMatrix, spec ImageSpec, ox, oy float64) ([]geometry.Radon2DCoord, []geometry.Radon3DCoord, error) {
	if spec.Width < 2 || spec.Height < 2 {
		return nil, nil, fmt.Errorf("failed to generate sampling: image %dx%d too small", spec.Width, spec.Height)
	}
	norm, err := proj.Normalized()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate sampling: %v", err)
	}

	// Grid density: at accuracy 1 the distance axis steps at pixel
	// resolution and the angle axis keeps arc steps of one pixel at the
	// detector corner radius.
	diag := float64(spec.diagonal())
	minPx := float64(spec.minPixelSize())
	nAng := int(math.Ceil(g.accuracy * math.Pi * diag / (2 * minPx)))
	nDist := int(math.Ceil(g.accuracy * diag / minPx))
	if nAng < 1 {
		nAng = 1
	}
	if nDist < 2 {
		nDist = 2
	}
	dists := geometry.CenteredRange(float32(diag)).Linspace(nDist)

	sx, sy := float64(spec.PixelSize[0]), float64(spec.PixelSize[1])
	lines := make([]geometry.Radon2DCoord, 0, nAng*nDist)
	planes := make([]geometry.Radon3DCoord, 0, nAng*nDist)
	for ai := 0; ai < nAng; ai++ {
		// Angles cover [0, pi); pi itself duplicates angle 0 with the
		// antipodal orientation.
		angle := float32(math.Pi * float64(ai) / float64(nAng))
		for _, dist := range dists {
			line := geometry.Radon2DCoord{Angle: angle, Dist: dist}
			a, b, c := geometry.PixelLineFromRadon2D(line, ox, oy, sx, sy)
			plane, err := geometry.BackprojectLine(norm, a, b, c)
			if err != nil {
				continue
			}
			lines = append(lines, line)
			planes = append(planes, plane.Radon3D())
		}
	}

	if g.subsampleRate < 1 && len(lines) > 0 {
		seed := g.seed
		if !g.seeded {
			seed = rand.Int63()
		}
		keep := drawSortedSubset(seed, len(lines), g.subsampleRate)
		subLines := make([]geometry.Radon2DCoord, len(keep))
		subPlanes := make([]geometry.Radon3DCoord, len(keep))
		for i, idx := range keep {
			subLines[i] = lines[idx]
			subPlanes[i] = planes[idx]
		}
		lines, planes = subLines, subPlanes
	}

	g.lastSampling = planes
	return lines, planes, nil
}

// SamplingFor builds the line and plane lists against a projection
// intermediate, using the intermediate transform's own Radon origin so an
// origin moved on the transform stays consistent with the backprojection.
func (g *IntermedGen2D3D) SamplingFor(ip *IntermediateProj) ([]geometry.Radon2DCoord, []geometry.Radon3DCoord, error) {
	if ip == nil {
		return nil, nil, fmt.Errorf("failed to generate sampling: nil intermediate")
	}
	ox, oy := ip.Transform().Origin()
	return g.sampling(ip.Projection(), SpecOf(ip.Transform().Image()), float64(ox), float64(oy))
}

// FctPair samples a projection intermediate and a volume intermediate on
// corresponding coordinates and pairs the results.
func (g *IntermedGen2D3D) FctPair(ip *IntermediateProj, iv *IntermediateVol, h float32) (*IntermediateFctPair, error) {
	if ip == nil || iv == nil {
		return nil, fmt.Errorf("failed to build function pair: nil intermediate")
	}
	lines, planes, err := g.SamplingFor(ip)
	if err != nil {
		return nil, fmt.Errorf("failed to build function pair: %v", err)
	}
	first, err := ip.Sampled(lines, h)
	if err != nil {
		return nil, fmt.Errorf("failed to build function pair: %v", err)
	}
	second, err := iv.Sampled(planes, h)
	if err != nil {
		return nil, fmt.Errorf("failed to build function pair: %v", err)
	}
	return NewIntermediateFctPairFromSlices(first, second, SourceVolume)
}
