package consistency

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	fmath "github.com/barnex/fmath"

	"grangeat/pkg/geometry"
	"grangeat/pkg/voxel"
)

// DefaultAngleIncrement is the rotation step between consecutive pencil
// planes: 0.01 degrees, in radians.
const DefaultAngleIncrement = 0.01 * math.Pi / 180

// ImageSpec describes the detector geometry a generator works against:
// pixel dimensions plus physical spacing.
type ImageSpec struct {
	Width, Height int
	PixelSize     [2]float32
}

// SpecOf extracts the detector geometry of an image chunk.
func SpecOf(c *voxel.Chunk2D) ImageSpec {
	return ImageSpec{Width: c.Width, Height: c.Height, PixelSize: c.PixelSize}
}

// center returns the pixel coordinates of the detector center, the Radon
// origin all generated line coordinates refer to.
func (s ImageSpec) center() (float64, float64) {
	return float64(s.Width-1) / 2, float64(s.Height-1) / 2
}

// halfDiagonal returns the physical distance from the detector center to
// its farthest corner. Lines farther from the origin than this miss the
// detector entirely.
func (s ImageSpec) halfDiagonal() float32 {
	dx := float32(s.Width-1) / 2 * s.PixelSize[0]
	dy := float32(s.Height-1) / 2 * s.PixelSize[1]
	return fmath.Sqrt(dx*dx + dy*dy)
}

// diagonal returns the full physical corner-to-corner length.
func (s ImageSpec) diagonal() float32 { return 2 * s.halfDiagonal() }

// minPixelSize returns the smaller spacing of the two detector axes.
func (s ImageSpec) minPixelSize() float32 {
	if s.PixelSize[1] < s.PixelSize[0] {
		return s.PixelSize[1]
	}
	return s.PixelSize[0]
}

// IntermedGen2D2D generates corresponding detector lines between two
// projections of the same scene: a plane is rotated around the baseline
// through the two source positions in fixed increments, and each pencil
// plane that hits both detectors contributes one line per image. The two
// returned lists are index-aligned by construction.
type IntermedGen2D2D struct {
	angleIncrement float64
	subsampleRate  float64
	seed           int64
	seeded         bool
}

// NewIntermedGen2D2D returns a generator with the default angle increment
// and no subsampling.
func NewIntermedGen2D2D() *IntermedGen2D2D {
	return &IntermedGen2D2D{
		angleIncrement: DefaultAngleIncrement,
		subsampleRate:  1,
	}
}

// AngleIncrement returns the pencil rotation step in radians.
func (g *IntermedGen2D2D) AngleIncrement() float64 { return g.angleIncrement }

// SetAngleIncrement sets the pencil rotation step in radians.
func (g *IntermedGen2D2D) SetAngleIncrement(rad float64) error {
	if rad <= 0 || rad > math.Pi {
		return fmt.Errorf("failed to set angle increment: %v outside (0, pi]", rad)
	}
	g.angleIncrement = rad
	return nil
}

// SubsampleRate returns the fraction of generated pairs that is kept.
func (g *IntermedGen2D2D) SubsampleRate() float64 { return g.subsampleRate }

// SetSubsampleRate sets the fraction of generated pairs to keep, in
// (0, 1]. A rate of 1 keeps every pair.
func (g *IntermedGen2D2D) SetSubsampleRate(rate float64) error {
	if rate <= 0 || rate > 1 {
		return fmt.Errorf("failed to set subsample rate: %v outside (0, 1]", rate)
	}
	g.subsampleRate = rate
	return nil
}

// SetSubsampleSeed pins the seed used for subsampling. Without a pinned
// seed every generation call draws a fresh one.
func (g *IntermedGen2D2D) SetSubsampleSeed(seed int64) {
	g.seed = seed
	g.seeded = true
}

// LinePairs builds the corresponding line lists for two cameras viewing
// the same scene. Both projections must have the same pixel dimensions.
// The returned lists have equal length, are index-aligned, and are ordered
// by increasing pencil rotation angle; planes that miss either detector
// are discarded pairwise.
func (g *IntermedGen2D2D) LinePairs(proj0, proj1 geometry.ProjectionMatrix, spec0, spec1 ImageSpec) ([]geometry.Radon2DCoord, []geometry.Radon2DCoord, error) {
	if spec0.Width != spec1.Width || spec0.Height != spec1.Height {
		return nil, nil, fmt.Errorf("failed to generate line pairs: projection sizes differ (%dx%d vs %dx%d)",
			spec0.Width, spec0.Height, spec1.Width, spec1.Height)
	}

	n0, err := proj0.Normalized()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate line pairs: %v", err)
	}
	n1, err := proj1.Normalized()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate line pairs: %v", err)
	}
	c0, err := n0.SourcePosition()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate line pairs: %v", err)
	}
	c1, err := n1.SourcePosition()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate line pairs: %v", err)
	}
	dx, dy, dz := c1[0]-c0[0], c1[1]-c0[1], c1[2]-c0[2]
	if math.Sqrt(dx*dx+dy*dy+dz*dz) < 1e-9 {
		return nil, nil, fmt.Errorf("failed to generate line pairs: %w", ErrDegenerateBaseline)
	}

	count := int(math.Round(math.Pi / g.angleIncrement))
	planes, err := geometry.PlanePencil(c0, c1, count)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate line pairs: %v", err)
	}

	ox0, oy0 := spec0.center()
	ox1, oy1 := spec1.center()
	sx0, sy0 := float64(spec0.PixelSize[0]), float64(spec0.PixelSize[1])
	sx1, sy1 := float64(spec1.PixelSize[0]), float64(spec1.PixelSize[1])
	max0 := spec0.halfDiagonal()
	max1 := spec1.halfDiagonal()

	lines0 := make([]geometry.Radon2DCoord, 0, len(planes))
	lines1 := make([]geometry.Radon2DCoord, 0, len(planes))
	for _, plane := range planes {
		a0, b0, cc0, err := geometry.PlaneImageLine(n0, plane)
		if err != nil {
			continue
		}
		a1, b1, cc1, err := geometry.PlaneImageLine(n1, plane)
		if err != nil {
			continue
		}
		l0, ok := geometry.Radon2DFromPixelLine(a0, b0, cc0, ox0, oy0, sx0, sy0)
		if !ok {
			continue
		}
		l1, ok := geometry.Radon2DFromPixelLine(a1, b1, cc1, ox1, oy1, sx1, sy1)
		if !ok {
			continue
		}
		// A plane contributes only when its line crosses both detectors.
		if fmath.Abs(l0.Dist) > max0 || fmath.Abs(l1.Dist) > max1 {
			continue
		}
		lines0 = append(lines0, l0)
		lines1 = append(lines1, l1)
	}

	if g.subsampleRate < 1 && len(lines0) > 0 {
		keep := g.subsampleIndices(len(lines0))
		sub0 := make([]geometry.Radon2DCoord, len(keep))
		sub1 := make([]geometry.Radon2DCoord, len(keep))
		for i, idx := range keep {
			sub0[i] = lines0[idx]
			sub1[i] = lines1[idx]
		}
		lines0, lines1 = sub0, sub1
	}
	return lines0, lines1, nil
}

// subsampleIndices draws a random subset of row indices and returns it
// sorted, so the retained rotation angles stay strictly increasing. One
// seed per call drives the selection for both correspondence lists.
func (g *IntermedGen2D2D) subsampleIndices(n int) []int {
	seed := g.seed
	if !g.seeded {
		seed = rand.Int63()
	}
	return drawSortedSubset(seed, n, g.subsampleRate)
}

// drawSortedSubset keeps round(rate*n) of n indices, chosen uniformly
// without replacement from the given seed, in ascending order.
func drawSortedSubset(seed int64, n int, rate float64) []int {
	m := int(math.Round(rate * float64(n)))
	if m >= n {
		keep := make([]int, n)
		for i := range keep {
			keep[i] = i
		}
		return keep
	}
	rng := rand.New(rand.NewSource(seed))
	keep := append([]int(nil), rng.Perm(n)[:m]...)
	sort.Ints(keep)
	return keep
}
