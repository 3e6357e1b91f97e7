// Package geometry provides the projective-geometric vocabulary of the
// cone-beam consistency engine: Radon-space coordinates in two and three
// dimensions, homogeneous plane vectors, sampling ranges, projection
// matrices and rigid homographies.
package geometry

import (
	"math"

	fmath "github.com/barnex/fmath"
)

// SamplingRange describes a closed 1D interval [From, To] used to lay out
// sample positions along one Radon-space axis.
type SamplingRange struct {
	From float32
	To   float32
}

// NewSamplingRange returns the range [from, to]. The bounds are stored as
// given; a reversed range is legal and simply has negative Width.
func NewSamplingRange(from, to float32) SamplingRange {
	return SamplingRange{From: from, To: to}
}

// CenteredRange returns a range of the given width centered on zero.
func CenteredRange(width float32) SamplingRange {
	return SamplingRange{From: -width / 2, To: width / 2}
}

// Width returns To - From.
func (r SamplingRange) Width() float32 { return r.To - r.From }

// Center returns the midpoint of the range.
func (r SamplingRange) Center() float32 { return (r.From + r.To) / 2 }

// Spacing returns the distance between adjacent samples when the range is
// covered by n equidistant samples including both endpoints. For n < 2 the
// spacing is zero.
func (r SamplingRange) Spacing(n int) float32 {
	if n < 2 {
		return 0
	}
	return r.Width() / float32(n-1)
}

// Linspace returns n equidistant samples covering the range, endpoints
// included. For n == 1 the single sample sits at the range center.
func (r SamplingRange) Linspace(n int) []float32 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float32{r.Center()}
	}
	samples := make([]float32, n)
	step := r.Spacing(n)
	for i := range samples {
		samples[i] = r.From + float32(i)*step
	}
	// Guard against accumulation drift on the last sample.
	samples[n-1] = r.To
	return samples
}

// Contains reports whether v lies within the closed interval.
func (r SamplingRange) Contains(v float32) bool {
	lo, hi := r.From, r.To
	if lo > hi {
		lo, hi = hi, lo
	}
	return v >= lo && v <= hi
}

// Radon2DCoord parametrizes a line in image space relative to a settable
// origin: the line consists of all points (x, y) with
//
//	x*cos(Angle) + y*sin(Angle) = Dist.
//
// Angle is in radians, Dist in the physical units of the image (mm).
type Radon2DCoord struct {
	Angle float32
	Dist  float32
}

// Radon3DCoord parametrizes a plane by the spherical angles of its unit
// normal and its signed distance from the world origin:
//
//	n = (cos(Azimuth)*sin(Polar), sin(Azimuth)*sin(Polar), cos(Polar))
//	plane = { x : <n, x> = Dist }.
//
// Azimuth is taken in [-pi, pi), Polar in [0, pi].
type Radon3DCoord struct {
	Azimuth float32
	Polar   float32
	Dist    float32
}

// Normal returns the unit plane normal described by the spherical angles.
func (c Radon3DCoord) Normal() (nx, ny, nz float32) {
	sinPolar := fmath.Sin(c.Polar)
	return fmath.Cos(c.Azimuth) * sinPolar, fmath.Sin(c.Azimuth) * sinPolar, fmath.Cos(c.Polar)
}

// HomCoordPlane is the homogeneous representation [n_x, n_y, n_z, -d] of the
// plane <n, x> = d. After NormalizeSelf the first three components form a
// unit vector, which is the invariant all on-device plane code relies on.
type HomCoordPlane struct {
	Nx, Ny, Nz float32
	MinusD     float32
}

// PlaneFromRadon3D converts spherical plane coordinates to the homogeneous
// form. The result is normalized by construction.
func PlaneFromRadon3D(c Radon3DCoord) HomCoordPlane {
	nx, ny, nz := c.Normal()
	return HomCoordPlane{Nx: nx, Ny: ny, Nz: nz, MinusD: -c.Dist}
}

// NormalizeSelf rescales the homogeneous vector so that the normal part has
// unit length. A zero normal is left untouched and reported as false.
func (p *HomCoordPlane) NormalizeSelf() bool {
	norm := fmath.Sqrt(p.Nx*p.Nx + p.Ny*p.Ny + p.Nz*p.Nz)
	if norm == 0 {
		return false
	}
	p.Nx /= norm
	p.Ny /= norm
	p.Nz /= norm
	p.MinusD /= norm
	return true
}

// Radon3D converts the homogeneous plane back to spherical coordinates.
// The plane is normalized first; the returned azimuth lies in [-pi, pi),
// the polar angle in [0, pi].
func (p HomCoordPlane) Radon3D() Radon3DCoord {
	q := p
	q.NormalizeSelf()
	nz := q.Nz
	if nz > 1 {
		nz = 1
	} else if nz < -1 {
		nz = -1
	}
	azimuth := fmath.Atan2(q.Ny, q.Nx)
	if azimuth >= fmath.Pi {
		azimuth -= 2 * fmath.Pi
	}
	return Radon3DCoord{
		Azimuth: azimuth,
		Polar:   fmath.Acos(nz),
		Dist:    -q.MinusD,
	}
}

// Radon2DFromLine converts a homogeneous image-space line (a, b, c), taken
// in physical units relative to the Radon origin, into angle/distance form.
// The zero line yields a zero coordinate and ok == false.
func Radon2DFromLine(a, b, c float64) (Radon2DCoord, bool) {
	norm := math.Hypot(a, b)
	if norm == 0 {
		return Radon2DCoord{}, false
	}
	return Radon2DCoord{
		Angle: float32(math.Atan2(b/norm, a/norm)),
		Dist:  float32(-c / norm),
	}, true
}

// Radon2DFromPixelLine converts a homogeneous line given in pixel
// coordinates of an image into physical Radon coordinates relative to the
// origin (ox, oy) in pixels, with pixel spacings (sx, sy) in mm.
func Radon2DFromPixelLine(a, b, c, ox, oy, sx, sy float64) (Radon2DCoord, bool) {
	// Substituting u = qx/sx + ox, v = qy/sy + oy into a*u + b*v + c = 0
	// yields the line in origin-relative physical coordinates (qx, qy).
	return Radon2DFromLine(a/sx, b/sy, a*ox+b*oy+c)
}

// PixelLineFromRadon2D is the inverse of Radon2DFromPixelLine: it expresses
// the physical line x*cos + y*sin = s as a homogeneous line in pixel
// coordinates of the image with origin (ox, oy) and spacings (sx, sy).
func PixelLineFromRadon2D(coord Radon2DCoord, ox, oy, sx, sy float64) (a, b, c float64) {
	cosA := math.Cos(float64(coord.Angle))
	sinA := math.Sin(float64(coord.Angle))
	a = cosA * sx
	b = sinA * sy
	c = -float64(coord.Dist) - a*ox - b*oy
	return a, b, c
}

// FlattenRadon3D packs spherical coordinates into a flat float32 buffer,
// three values per coordinate, in (azimuth, polar, distance) order. This is
// the device upload layout shared by the coordinate transform and the
// volume resampler.
func FlattenRadon3D(coords []Radon3DCoord) []float32 {
	flat := make([]float32, 3*len(coords))
	for i, c := range coords {
		flat[3*i] = c.Azimuth
		flat[3*i+1] = c.Polar
		flat[3*i+2] = c.Dist
	}
	return flat
}

// UnflattenRadon3D is the inverse of FlattenRadon3D.
func UnflattenRadon3D(flat []float32) []Radon3DCoord {
	coords := make([]Radon3DCoord, len(flat)/3)
	for i := range coords {
		coords[i] = Radon3DCoord{
			Azimuth: flat[3*i],
			Polar:   flat[3*i+1],
			Dist:    flat[3*i+2],
		}
	}
	return coords
}

// FlattenPlanes packs homogeneous planes into a flat float32 buffer, four
// values per plane.
func FlattenPlanes(planes []HomCoordPlane) []float32 {
	flat := make([]float32, 4*len(planes))
	for i, p := range planes {
		flat[4*i] = p.Nx
		flat[4*i+1] = p.Ny
		flat[4*i+2] = p.Nz
		flat[4*i+3] = p.MinusD
	}
	return flat
}
