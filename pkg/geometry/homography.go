package geometry

import "math"

// Homography is a 4x4 homogeneous world transform, row-major. Throughout
// the package it is treated as a rigid transform (rotation plus
// translation), which is the only kind the registration layer produces.
type Homography [4][4]float64

// IdentityHomography returns the identity transform.
func IdentityHomography() Homography {
	return Homography{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// HomographyFromRotTrans assembles [R | t; 0 1].
func HomographyFromRotTrans(r [3][3]float64, t [3]float64) Homography {
	var h Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[i][j] = r[i][j]
		}
		h[i][3] = t[i]
	}
	h[3][3] = 1
	return h
}

// RotationXYZ returns the rotation matrix R = Rz(rz) * Ry(ry) * Rx(rx)
// for extrinsic rotations around the world axes, angles in radians.
func RotationXYZ(rx, ry, rz float64) [3][3]float64 {
	cx, sx := math.Cos(rx), math.Sin(rx)
	cy, sy := math.Cos(ry), math.Sin(ry)
	cz, sz := math.Cos(rz), math.Sin(rz)
	return [3][3]float64{
		{cy * cz, sx*sy*cz - cx*sz, cx*sy*cz + sx*sz},
		{cy * sz, sx*sy*sz + cx*cz, cx*sy*sz - sx*cz},
		{-sy, sx * cy, cx * cy},
	}
}

// Mul returns a * b, the transform applying b first and then a.
func (h Homography) Mul(b Homography) Homography {
	var out Homography
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for l := 0; l < 4; l++ {
				sum += h[i][l] * b[l][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

// InverseRigid returns the inverse under the assumption that the transform
// is rigid: the rotation block is transposed and the translation negated
// accordingly. Results for non-rigid matrices are undefined.
func (h Homography) InverseRigid() Homography {
	var inv Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			inv[i][j] = h[j][i]
		}
	}
	for i := 0; i < 3; i++ {
		inv[i][3] = -(inv[i][0]*h[0][3] + inv[i][1]*h[1][3] + inv[i][2]*h[2][3])
	}
	inv[3][3] = 1
	return inv
}

// ApplyToPoint maps a world point through the transform.
func (h Homography) ApplyToPoint(x, y, z float64) (float64, float64, float64) {
	return h[0][0]*x + h[0][1]*y + h[0][2]*z + h[0][3],
		h[1][0]*x + h[1][1]*y + h[1][2]*z + h[1][3],
		h[2][0]*x + h[2][1]*y + h[2][2]*z + h[2][3]
}

// ApplyToPlane maps a homogeneous plane as pi' = H^T * pi and renormalizes.
//
// Under this convention the planes move consistently with points moving
// through the INVERSE of h: to transform planes along with a volume moved
// by some rigid motion, pass the motion's inverse here. This matches the
// on-device coordinate transform, which resamples the static Radon volume
// at transformed plane positions.
func (h Homography) ApplyToPlane(p HomCoordPlane) HomCoordPlane {
	in := [4]float64{float64(p.Nx), float64(p.Ny), float64(p.Nz), float64(p.MinusD)}
	var out [4]float64
	for i := 0; i < 4; i++ {
		out[i] = h[0][i]*in[0] + h[1][i]*in[1] + h[2][i]*in[2] + h[3][i]*in[3]
	}
	res := HomCoordPlane{
		Nx:     float32(out[0]),
		Ny:     float32(out[1]),
		Nz:     float32(out[2]),
		MinusD: float32(out[3]),
	}
	res.NormalizeSelf()
	return res
}

// Flatten16 packs the matrix into 16 float32 values in row-major order,
// the exact layout uploaded to a device before each coordinate-transform
// launch.
func (h Homography) Flatten16() [16]float32 {
	var flat [16]float32
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			flat[4*i+j] = float32(h[i][j])
		}
	}
	return flat
}
