package geometry

import (
	"fmt"
	"math"
)

// Skew3 returns the skew-symmetric cross-product matrix [v]_x so that
// Skew3(v) * w == cross(v, w).
func Skew3(v [3]float64) [3][3]float64 {
	return [3][3]float64{
		{0, -v[2], v[1]},
		{v[2], 0, -v[0]},
		{-v[1], v[0], 0},
	}
}

// VeeSkew extracts the vector v from a skew-symmetric matrix [v]_x. The
// matrix is not required to be exactly antisymmetric; the antisymmetric
// part is used.
func VeeSkew(s [3][3]float64) [3]float64 {
	return [3]float64{
		(s[2][1] - s[1][2]) / 2,
		(s[0][2] - s[2][0]) / 2,
		(s[1][0] - s[0][1]) / 2,
	}
}

// PlaneImageLine maps a plane through the camera center onto its image: the
// set of detector points whose viewing rays lie inside the plane. With M
// the leading block of P and n the plane normal, the image line l satisfies
// [l]_x ~ M [n]_x M^T.
//
// The construction is only valid for planes that contain the source
// position; passing any other plane yields the image of the parallel plane
// through the source.
func PlaneImageLine(p ProjectionMatrix, plane HomCoordPlane) (a, b, c float64, err error) {
	n := [3]float64{float64(plane.Nx), float64(plane.Ny), float64(plane.Nz)}
	norm := math.Sqrt(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])
	if norm == 0 {
		return 0, 0, 0, fmt.Errorf("failed to map plane to image line: zero normal")
	}
	m := p.M()
	skew := Skew3(n)

	// S = M * [n]_x * M^T
	var tmp, s [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for l := 0; l < 3; l++ {
				sum += m[i][l] * skew[l][j]
			}
			tmp[i][j] = sum
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for l := 0; l < 3; l++ {
				sum += tmp[i][l] * m[j][l]
			}
			s[i][j] = sum
		}
	}
	line := VeeSkew(s)
	scale := math.Sqrt(line[0]*line[0] + line[1]*line[1] + line[2]*line[2])
	if scale == 0 {
		return 0, 0, 0, fmt.Errorf("failed to map plane to image line: degenerate configuration")
	}
	return line[0] / scale, line[1] / scale, line[2] / scale, nil
}

// BackprojectLine lifts a homogeneous detector line onto the world plane it
// images: pi = P^T * l. The returned plane is normalized and always
// contains the source position.
func BackprojectLine(p ProjectionMatrix, a, b, c float64) (HomCoordPlane, error) {
	plane := HomCoordPlane{
		Nx:     float32(p[0][0]*a + p[1][0]*b + p[2][0]*c),
		Ny:     float32(p[0][1]*a + p[1][1]*b + p[2][1]*c),
		Nz:     float32(p[0][2]*a + p[1][2]*b + p[2][2]*c),
		MinusD: float32(p[0][3]*a + p[1][3]*b + p[2][3]*c),
	}
	if !plane.NormalizeSelf() {
		return HomCoordPlane{}, fmt.Errorf("failed to backproject line: degenerate plane")
	}
	return plane, nil
}

// PlaneDistance returns the signed distance of a point from the plane,
// positive on the side the normal points to. The plane must be normalized.
func PlaneDistance(plane HomCoordPlane, x, y, z float64) float64 {
	return float64(plane.Nx)*x + float64(plane.Ny)*y + float64(plane.Nz)*z + float64(plane.MinusD)
}

// RotationAroundAxis returns the rotation matrix for the given angle
// (radians) around a unit axis, following the Rodrigues formula.
func RotationAroundAxis(axis [3]float64, angle float64) [3][3]float64 {
	c := math.Cos(angle)
	s := math.Sin(angle)
	t := 1 - c
	x, y, z := axis[0], axis[1], axis[2]
	return [3][3]float64{
		{t*x*x + c, t*x*y - s*z, t*x*z + s*y},
		{t*x*y + s*z, t*y*y + c, t*y*z - s*x},
		{t*x*z - s*y, t*y*z + s*x, t*z*z + c},
	}
}

// PerpendicularTo returns an arbitrary unit vector orthogonal to the given
// unit axis, chosen by crossing the axis with its least aligned coordinate
// direction for numerical stability.
func PerpendicularTo(axis [3]float64) [3]float64 {
	ref := [3]float64{1, 0, 0}
	ax, ay, az := math.Abs(axis[0]), math.Abs(axis[1]), math.Abs(axis[2])
	if ay <= ax && ay <= az {
		ref = [3]float64{0, 1, 0}
	} else if az <= ax && az <= ay {
		ref = [3]float64{0, 0, 1}
	}
	perp := cross3(axis, ref)
	norm := math.Sqrt(perp[0]*perp[0] + perp[1]*perp[1] + perp[2]*perp[2])
	return [3]float64{perp[0] / norm, perp[1] / norm, perp[2] / norm}
}

// PlanePencil enumerates count planes obtained by rotating a seed plane
// around the axis through the two given points, in equal angular steps
// covering half a turn. Every returned plane contains both points. The
// points must be distinct.
func PlanePencil(p1, p2 [3]float64, count int) ([]HomCoordPlane, error) {
	axis := [3]float64{p2[0] - p1[0], p2[1] - p1[1], p2[2] - p1[2]}
	norm := math.Sqrt(axis[0]*axis[0] + axis[1]*axis[1] + axis[2]*axis[2])
	if norm < 1e-9 {
		return nil, fmt.Errorf("failed to build plane pencil: points coincide")
	}
	axis = [3]float64{axis[0] / norm, axis[1] / norm, axis[2] / norm}
	seed := PerpendicularTo(axis)

	planes := make([]HomCoordPlane, 0, count)
	for i := 0; i < count; i++ {
		angle := math.Pi * float64(i) / float64(count)
		rot := RotationAroundAxis(axis, angle)
		n := mulMatVec3(rot, seed)
		d := n[0]*p1[0] + n[1]*p1[1] + n[2]*p1[2]
		planes = append(planes, HomCoordPlane{
			Nx:     float32(n[0]),
			Ny:     float32(n[1]),
			Nz:     float32(n[2]),
			MinusD: float32(-d),
		})
	}
	return planes, nil
}

func cross3(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func mulMatVec3(m [3][3]float64, v [3]float64) [3]float64 {
	return [3]float64{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}
