// Package phantom builds synthetic acquisition data: ellipsoid phantoms
// with analytic cone-beam projections and plane integrals, plus uniform
// test volumes. Because projections and Radon-space values exist in closed
// form, phantoms serve as ground truth for the discretized transforms.
package phantom

import (
	"fmt"
	"math"

	"grangeat/pkg/geometry"
	"grangeat/pkg/voxel"
)

// Ellipsoid is one additive component of a phantom: an axis-aligned
// ellipsoid rotated by Phi around the z-axis and shifted to Center.
// Overlapping ellipsoids sum their densities, so nested structures are
// modeled by adding a negative-density inner ellipsoid.
type Ellipsoid struct {
	Center   [3]float64
	SemiAxes [3]float64
	Phi      float64
	Density  float64
}

// contains reports whether the world point lies inside the ellipsoid.
func (e Ellipsoid) contains(x, y, z float64) bool {
	px, py, pz := e.toLocal(x, y, z)
	return px*px+py*py+pz*pz <= 1
}

// toLocal maps a world point into the frame where the ellipsoid is the
// unit sphere.
func (e Ellipsoid) toLocal(x, y, z float64) (float64, float64, float64) {
	x -= e.Center[0]
	y -= e.Center[1]
	z -= e.Center[2]
	c, s := math.Cos(e.Phi), math.Sin(e.Phi)
	rx := c*x + s*y
	ry := -s*x + c*y
	return rx / e.SemiAxes[0], ry / e.SemiAxes[1], z / e.SemiAxes[2]
}

// axisNormal returns T^T*n for the ellipsoid's shape map T = R^T*diag(a,b,c),
// the quantity that rescales plane offsets into the unit-sphere frame.
func (e Ellipsoid) axisNormal(nx, ny, nz float64) (float64, float64, float64) {
	c, s := math.Cos(e.Phi), math.Sin(e.Phi)
	rx := c*nx + s*ny
	ry := -s*nx + c*ny
	return rx * e.SemiAxes[0], ry * e.SemiAxes[1], nz * e.SemiAxes[2]
}

// Density evaluates the phantom at a world point.
func Density(ellipsoids []Ellipsoid, x, y, z float64) float64 {
	var sum float64
	for _, e := range ellipsoids {
		if e.contains(x, y, z) {
			sum += e.Density
		}
	}
	return sum
}

// DefaultEllipsoids returns the ten-ellipsoid head phantom (the modified
// Shepp-Logan table extended to 3D) scaled so the outer skull ellipsoid
// fits a sphere of the given radius in mm.
func DefaultEllipsoids(radius float64) []Ellipsoid {
	table := []Ellipsoid{
		{Center: [3]float64{0, 0, 0}, SemiAxes: [3]float64{0.69, 0.92, 0.81}, Phi: 0, Density: 1.0},
		{Center: [3]float64{0, -0.0184, 0}, SemiAxes: [3]float64{0.6624, 0.874, 0.78}, Phi: 0, Density: -0.8},
		{Center: [3]float64{0.22, 0, 0}, SemiAxes: [3]float64{0.11, 0.31, 0.22}, Phi: -18 * math.Pi / 180, Density: -0.2},
		{Center: [3]float64{-0.22, 0, 0}, SemiAxes: [3]float64{0.16, 0.41, 0.28}, Phi: 18 * math.Pi / 180, Density: -0.2},
		{Center: [3]float64{0, 0.35, -0.15}, SemiAxes: [3]float64{0.21, 0.25, 0.41}, Phi: 0, Density: 0.1},
		{Center: [3]float64{0, 0.1, 0.25}, SemiAxes: [3]float64{0.046, 0.046, 0.05}, Phi: 0, Density: 0.1},
		{Center: [3]float64{0, -0.1, 0.25}, SemiAxes: [3]float64{0.046, 0.046, 0.05}, Phi: 0, Density: 0.1},
		{Center: [3]float64{-0.08, -0.605, 0}, SemiAxes: [3]float64{0.046, 0.023, 0.05}, Phi: 0, Density: 0.1},
		{Center: [3]float64{0, -0.606, 0}, SemiAxes: [3]float64{0.023, 0.023, 0.02}, Phi: 0, Density: 0.1},
		{Center: [3]float64{0.06, -0.605, 0}, SemiAxes: [3]float64{0.023, 0.046, 0.02}, Phi: 0, Density: 0.1},
	}
	for i := range table {
		for a := 0; a < 3; a++ {
			table[i].Center[a] *= radius
			table[i].SemiAxes[a] *= radius
		}
	}
	return table
}

// UniformCube returns an n^3 volume of the given density with isotropic
// voxel spacing, centered on the world origin.
func UniformCube(n int, density, voxelSize float32) *voxel.Volume {
	v := voxel.NewVolume(n, n, n, [3]float32{voxelSize, voxelSize, voxelSize})
	v.Fill(density)
	return v
}

// Voxelize samples the phantom at voxel centers into an n^3 volume with
// isotropic spacing, centered on the world origin.
func Voxelize(ellipsoids []Ellipsoid, n int, voxelSize float32) *voxel.Volume {
	v := voxel.NewVolume(n, n, n, [3]float32{voxelSize, voxelSize, voxelSize})
	for z := 0; z < n; z++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				wx, wy, wz := v.GridToWorld(float32(x), float32(y), float32(z))
				v.Set(x, y, z, float32(Density(ellipsoids, float64(wx), float64(wy), float64(wz))))
			}
		}
	}
	return v
}

// chord returns the length of the intersection of the ray origin+t*dir
// (dir unit length) with the ellipsoid.
func (e Ellipsoid) chord(origin, dir [3]float64) float64 {
	ox, oy, oz := e.toLocal(origin[0], origin[1], origin[2])
	// Directions transform without the translation.
	dx, dy, dz := e.toLocal(origin[0]+dir[0], origin[1]+dir[1], origin[2]+dir[2])
	dx, dy, dz = dx-ox, dy-oy, dz-oz

	a := dx*dx + dy*dy + dz*dz
	b := 2 * (ox*dx + oy*dy + oz*dz)
	c := ox*ox + oy*oy + oz*oz - 1
	disc := b*b - 4*a*c
	if disc <= 0 || a == 0 {
		return 0
	}
	// t is in world units because dir has unit length there.
	return math.Sqrt(disc) / a
}

// ProjectEllipsoids renders the analytic cone-beam projection of the
// phantom: each pixel holds the density-weighted chord lengths of the ray
// from the camera source through that pixel. Pixel size only tags the
// returned chunk; the ray geometry comes entirely from the projection
// matrix.
func ProjectEllipsoids(ellipsoids []Ellipsoid, proj geometry.ProjectionMatrix, width, height int, pixelSize [2]float32) (*voxel.Chunk2D, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("failed to project phantom: empty %dx%d detector", width, height)
	}
	norm, err := proj.Normalized()
	if err != nil {
		return nil, fmt.Errorf("failed to project phantom: %v", err)
	}
	source, err := norm.SourcePosition()
	if err != nil {
		return nil, fmt.Errorf("failed to project phantom: %v", err)
	}
	rays, err := norm.BackprojectPixels(width, height)
	if err != nil {
		return nil, fmt.Errorf("failed to project phantom: %v", err)
	}

	out := voxel.NewChunk2D(width, height, pixelSize)
	for v := 0; v < height; v++ {
		for u := 0; u < width; u++ {
			dir := rays[v*width+u]
			var sum float64
			for _, e := range ellipsoids {
				if l := e.chord(source, dir); l > 0 {
					sum += l * e.Density
				}
			}
			out.Set(u, v, float32(sum))
		}
	}
	return out, nil
}

// PlaneIntegralEllipsoids evaluates the analytic 3D Radon transform of
// the phantom: the section of an ellipsoid by the plane <n, x> = dist is
// an ellipse whose area is known in closed form.
func PlaneIntegralEllipsoids(ellipsoids []Ellipsoid, c geometry.Radon3DCoord) float64 {
	nx32, ny32, nz32 := c.Normal()
	nx, ny, nz := float64(nx32), float64(ny32), float64(nz32)
	dist := float64(c.Dist)

	var sum float64
	for _, e := range ellipsoids {
		// Offset of the plane from the ellipsoid center, rescaled into
		// the unit-sphere frame.
		ax, ay, az := e.axisNormal(nx, ny, nz)
		scale := math.Sqrt(ax*ax + ay*ay + az*az)
		if scale == 0 {
			continue
		}
		rho := (dist - nx*e.Center[0] - ny*e.Center[1] - nz*e.Center[2]) / scale
		if rho*rho >= 1 {
			continue
		}
		abc := e.SemiAxes[0] * e.SemiAxes[1] * e.SemiAxes[2]
		sum += e.Density * math.Pi * (1 - rho*rho) * abc / scale
	}
	return sum
}

// IntermediateEllipsoids evaluates the analytic derivative of the
// phantom's 3D Radon transform along the distance axis: the quantity the
// volume-side intermediate function approximates numerically.
func IntermediateEllipsoids(ellipsoids []Ellipsoid, c geometry.Radon3DCoord) float64 {
	nx32, ny32, nz32 := c.Normal()
	nx, ny, nz := float64(nx32), float64(ny32), float64(nz32)
	dist := float64(c.Dist)

	var sum float64
	for _, e := range ellipsoids {
		ax, ay, az := e.axisNormal(nx, ny, nz)
		scale := math.Sqrt(ax*ax + ay*ay + az*az)
		if scale == 0 {
			continue
		}
		rho := (dist - nx*e.Center[0] - ny*e.Center[1] - nz*e.Center[2]) / scale
		if rho*rho >= 1 {
			continue
		}
		abc := e.SemiAxes[0] * e.SemiAxes[1] * e.SemiAxes[2]
		sum += e.Density * math.Pi * (-2 * rho) * abc / (scale * scale)
	}
	return sum
}
