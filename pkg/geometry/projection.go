package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ProjectionMatrix is the 3x4 matrix P = K [R | t] of a finite projective
// camera mapping homogeneous world points (mm) to homogeneous detector
// points (pixels). Rows are stored in row-major order.
type ProjectionMatrix [3][4]float64

// NewProjectionMatrix builds a projection matrix from 12 row-major values.
func NewProjectionMatrix(values [12]float64) ProjectionMatrix {
	var p ProjectionMatrix
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			p[r][c] = values[4*r+c]
		}
	}
	return p
}

// ComposeProjection assembles P = K [R | t] from an intrinsic matrix, a
// rotation and a translation.
func ComposeProjection(k, r [3][3]float64, t [3]float64) ProjectionMatrix {
	var p ProjectionMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for l := 0; l < 3; l++ {
				sum += k[i][l] * r[l][j]
			}
			p[i][j] = sum
		}
		var sum float64
		for l := 0; l < 3; l++ {
			sum += k[i][l] * t[l]
		}
		p[i][3] = sum
	}
	return p
}

// M returns the leading 3x3 block of the projection matrix.
func (p ProjectionMatrix) M() [3][3]float64 {
	var m [3][3]float64
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m[r][c] = p[r][c]
		}
	}
	return m
}

// P4 returns the fourth column of the projection matrix.
func (p ProjectionMatrix) P4() [3]float64 {
	return [3]float64{p[0][3], p[1][3], p[2][3]}
}

// Normalized returns an equivalent projection matrix scaled so that the
// third row of its leading block has unit norm and the determinant of the
// block is positive. In this form the third homogeneous output coordinate
// of a projected point equals its signed depth along the principal ray.
func (p ProjectionMatrix) Normalized() (ProjectionMatrix, error) {
	m := p.M()
	norm := math.Sqrt(m[2][0]*m[2][0] + m[2][1]*m[2][1] + m[2][2]*m[2][2])
	if norm == 0 {
		return p, fmt.Errorf("failed to normalize projection matrix: zero third row")
	}
	scale := 1 / norm
	if det3(m) < 0 {
		scale = -scale
	}
	var out ProjectionMatrix
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			out[r][c] = p[r][c] * scale
		}
	}
	return out, nil
}

// SourcePosition returns the world-space position of the camera center,
// obtained as c = -M^-1 * p4. An error is returned for a degenerate
// (non-finite) camera whose leading block is singular.
func (p ProjectionMatrix) SourcePosition() ([3]float64, error) {
	inv, err := invert3(p.M())
	if err != nil {
		return [3]float64{}, fmt.Errorf("failed to compute source position: %v", err)
	}
	p4 := p.P4()
	var c [3]float64
	for i := 0; i < 3; i++ {
		c[i] = -(inv[i][0]*p4[0] + inv[i][1]*p4[1] + inv[i][2]*p4[2])
	}
	return c, nil
}

// PrincipalRay returns the unit direction of the principal ray, pointing
// from the source towards the detector.
func (p ProjectionMatrix) PrincipalRay() ([3]float64, error) {
	n, err := p.Normalized()
	if err != nil {
		return [3]float64{}, err
	}
	return [3]float64{n[2][0], n[2][1], n[2][2]}, nil
}

// ProjectPoint maps a world point (mm) to detector pixel coordinates. The
// third return value is the signed depth of the point in front of the
// camera; points at zero depth cannot be projected.
func (p ProjectionMatrix) ProjectPoint(x, y, z float64) (u, v, depth float64, err error) {
	n, err := p.Normalized()
	if err != nil {
		return 0, 0, 0, err
	}
	hu := n[0][0]*x + n[0][1]*y + n[0][2]*z + n[0][3]
	hv := n[1][0]*x + n[1][1]*y + n[1][2]*z + n[1][3]
	hw := n[2][0]*x + n[2][1]*y + n[2][2]*z + n[2][3]
	if hw == 0 {
		return 0, 0, 0, fmt.Errorf("failed to project point: zero depth")
	}
	return hu / hw, hv / hw, hw, nil
}

// Decompose splits the projection matrix into its intrinsic matrix K (upper
// triangular with positive diagonal), rotation R and translation t such
// that P ~ K [R | t]. The split uses an RQ decomposition of the leading
// block, computed through a QR factorization of its exchange-flipped
// transpose.
func (p ProjectionMatrix) Decompose() (k, r [3][3]float64, t [3]float64, err error) {
	n, err := p.Normalized()
	if err != nil {
		return k, r, t, fmt.Errorf("failed to decompose projection matrix: %v", err)
	}
	m := n.M()

	// RQ(M): with E the exchange matrix, factor (E*M)^T = Q~ * R~, then
	// K = E * R~^T * E and R = E * Q~^T.
	flipped := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			flipped.Set(j, i, m[2-i][j])
		}
	}
	var qr mat.QR
	qr.Factorize(flipped)
	var qd, rd mat.Dense
	qr.QTo(&qd)
	qr.RTo(&rd)

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			k[i][j] = rd.At(2-j, 2-i)
			r[i][j] = qd.At(j, 2-i)
		}
	}

	// Force a positive diagonal on K; each sign flip is compensated by
	// flipping the corresponding row of R.
	for i := 0; i < 3; i++ {
		if k[i][i] < 0 {
			for j := 0; j < 3; j++ {
				k[j][i] = -k[j][i]
				r[i][j] = -r[i][j]
			}
		}
	}
	if k[2][2] == 0 {
		return k, r, t, fmt.Errorf("failed to decompose projection matrix: singular intrinsics")
	}
	// The normalized matrix has |k22| == 1; after the sign fix k22 == 1, so
	// this rescale only cleans up rounding noise.
	scale := 1 / k[2][2]
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			k[i][j] *= scale
		}
	}

	kinv, err := invert3(k)
	if err != nil {
		return k, r, t, fmt.Errorf("failed to decompose projection matrix: %v", err)
	}
	p4 := n.P4()
	for i := 0; i < 3; i++ {
		t[i] = kinv[i][0]*p4[0] + kinv[i][1]*p4[1] + kinv[i][2]*p4[2]
	}
	return k, r, t, nil
}

// Magnification returns the factor by which a world length at the given
// point is magnified on the detector, i.e. the focal length in pixels
// divided by the point's depth along the principal ray.
func (p ProjectionMatrix) Magnification(x, y, z float64) (float64, error) {
	k, _, _, err := p.Decompose()
	if err != nil {
		return 0, err
	}
	_, _, depth, err := p.ProjectPoint(x, y, z)
	if err != nil {
		return 0, err
	}
	if depth == 0 {
		return 0, fmt.Errorf("failed to compute magnification: point at zero depth")
	}
	return k[0][0] / depth, nil
}

// BackprojectPixels returns, for every pixel of a width x height detector,
// the unit direction of the viewing ray in world coordinates, pointing
// from the source toward positive depth. The result is laid out row-major.
func (p ProjectionMatrix) BackprojectPixels(width, height int) ([][3]float64, error) {
	norm, err := p.Normalized()
	if err != nil {
		return nil, fmt.Errorf("failed to backproject pixels: %v", err)
	}
	minv, err := invert3(norm.M())
	if err != nil {
		return nil, fmt.Errorf("failed to backproject pixels: %v", err)
	}
	rays := make([][3]float64, width*height)
	for v := 0; v < height; v++ {
		for u := 0; u < width; u++ {
			dx := minv[0][0]*float64(u) + minv[0][1]*float64(v) + minv[0][2]
			dy := minv[1][0]*float64(u) + minv[1][1]*float64(v) + minv[1][2]
			dz := minv[2][0]*float64(u) + minv[2][1]*float64(v) + minv[2][2]
			n := math.Sqrt(dx*dx + dy*dy + dz*dz)
			if n == 0 {
				return nil, fmt.Errorf("failed to backproject pixels: degenerate ray at (%d, %d)", u, v)
			}
			rays[v*width+u] = [3]float64{dx / n, dy / n, dz / n}
		}
	}
	return rays, nil
}

// ObliquityCosines returns, for every pixel of a width x height detector,
// the cosine of the angle between the pixel's viewing ray and the principal
// ray. The result is laid out row-major and is the weight map applied to
// projection data before derivative-based consistency sampling.
func (p ProjectionMatrix) ObliquityCosines(width, height int) ([]float32, error) {
	k, _, _, err := p.Decompose()
	if err != nil {
		return nil, fmt.Errorf("failed to compute obliquity weights: %v", err)
	}
	kinv, err := invert3(k)
	if err != nil {
		return nil, fmt.Errorf("failed to compute obliquity weights: %v", err)
	}
	weights := make([]float32, width*height)
	for v := 0; v < height; v++ {
		for u := 0; u < width; u++ {
			// Direction of the viewing ray in camera coordinates.
			dx := kinv[0][0]*float64(u) + kinv[0][1]*float64(v) + kinv[0][2]
			dy := kinv[1][0]*float64(u) + kinv[1][1]*float64(v) + kinv[1][2]
			dz := kinv[2][0]*float64(u) + kinv[2][1]*float64(v) + kinv[2][2]
			norm := math.Sqrt(dx*dx + dy*dy + dz*dz)
			if norm == 0 {
				weights[v*width+u] = 0
				continue
			}
			weights[v*width+u] = float32(dz / norm)
		}
	}
	return weights, nil
}

func det3(m [3][3]float64) float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

func invert3(m [3][3]float64) ([3][3]float64, error) {
	det := det3(m)
	if math.Abs(det) < 1e-12 {
		return [3][3]float64{}, fmt.Errorf("matrix is singular")
	}
	inv := [3][3]float64{
		{m[1][1]*m[2][2] - m[1][2]*m[2][1], m[0][2]*m[2][1] - m[0][1]*m[2][2], m[0][1]*m[1][2] - m[0][2]*m[1][1]},
		{m[1][2]*m[2][0] - m[1][0]*m[2][2], m[0][0]*m[2][2] - m[0][2]*m[2][0], m[0][2]*m[1][0] - m[0][0]*m[1][2]},
		{m[1][0]*m[2][1] - m[1][1]*m[2][0], m[0][1]*m[2][0] - m[0][0]*m[2][1], m[0][0]*m[1][1] - m[0][1]*m[1][0]},
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			inv[i][j] /= det
		}
	}
	return inv, nil
}
