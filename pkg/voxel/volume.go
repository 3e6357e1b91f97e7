// Package voxel holds the dense sample containers the engine works on: 3D
// voxel volumes and 2D pixel chunks, both backed by flat float32 slices in
// x-fastest order and carrying their physical spacing in mm.
package voxel

import (
	fmath "github.com/barnex/fmath"
)

// Volume is a dense 3D grid of float32 samples. Data is laid out x-fastest:
// Data[(z*NY+y)*NX+x]. The grid is centered on Offset, i.e. voxel (i,j,k)
// sits at world position (i - (NX-1)/2)*VoxelSize[0] + Offset[0] and so on
// per axis.
type Volume struct {
	NX, NY, NZ int
	VoxelSize  [3]float32
	Offset     [3]float32
	Data       []float32
}

// NewVolume allocates a zero-filled volume with the given dimensions and
// voxel spacing (mm) centered on the world origin.
func NewVolume(nx, ny, nz int, voxelSize [3]float32) *Volume {
	return &Volume{
		NX:        nx,
		NY:        ny,
		NZ:        nz,
		VoxelSize: voxelSize,
		Data:      make([]float32, nx*ny*nz),
	}
}

// Idx returns the flat index of voxel (x, y, z).
func (v *Volume) Idx(x, y, z int) int {
	return (z*v.NY+y)*v.NX + x
}

// At returns the value of voxel (x, y, z).
func (v *Volume) At(x, y, z int) float32 {
	return v.Data[(z*v.NY+y)*v.NX+x]
}

// Set assigns the value of voxel (x, y, z).
func (v *Volume) Set(x, y, z int, value float32) {
	v.Data[(z*v.NY+y)*v.NX+x] = value
}

// Fill sets every voxel to the given value.
func (v *Volume) Fill(value float32) {
	for i := range v.Data {
		v.Data[i] = value
	}
}

// Scale multiplies every voxel by the given factor.
func (v *Volume) Scale(factor float32) {
	for i := range v.Data {
		v.Data[i] *= factor
	}
}

// Clone returns a deep copy of the volume.
func (v *Volume) Clone() *Volume {
	out := *v
	out.Data = make([]float32, len(v.Data))
	copy(out.Data, v.Data)
	return &out
}

// MaxDim returns the largest grid dimension.
func (v *Volume) MaxDim() int {
	d := v.NX
	if v.NY > d {
		d = v.NY
	}
	if v.NZ > d {
		d = v.NZ
	}
	return d
}

// MinVoxelSize returns the smallest spacing over the three axes.
func (v *Volume) MinVoxelSize() float32 {
	s := v.VoxelSize[0]
	if v.VoxelSize[1] < s {
		s = v.VoxelSize[1]
	}
	if v.VoxelSize[2] < s {
		s = v.VoxelSize[2]
	}
	return s
}

// WorldToGrid converts a world position (mm) to continuous grid
// coordinates, where integer values land exactly on voxel centers.
func (v *Volume) WorldToGrid(wx, wy, wz float32) (float32, float32, float32) {
	gx := (wx-v.Offset[0])/v.VoxelSize[0] + float32(v.NX-1)/2
	gy := (wy-v.Offset[1])/v.VoxelSize[1] + float32(v.NY-1)/2
	gz := (wz-v.Offset[2])/v.VoxelSize[2] + float32(v.NZ-1)/2
	return gx, gy, gz
}

// GridToWorld is the inverse of WorldToGrid: it returns the world position
// of a (possibly fractional) grid coordinate.
func (v *Volume) GridToWorld(gx, gy, gz float32) (float32, float32, float32) {
	wx := (gx-float32(v.NX-1)/2)*v.VoxelSize[0] + v.Offset[0]
	wy := (gy-float32(v.NY-1)/2)*v.VoxelSize[1] + v.Offset[1]
	wz := (gz-float32(v.NZ-1)/2)*v.VoxelSize[2] + v.Offset[2]
	return wx, wy, wz
}

// Sample returns the trilinearly interpolated value at a world position.
// Positions outside the voxel grid sample as zero.
func (v *Volume) Sample(wx, wy, wz float32) float32 {
	gx, gy, gz := v.WorldToGrid(wx, wy, wz)
	if gx < 0 || gy < 0 || gz < 0 ||
		gx > float32(v.NX-1) || gy > float32(v.NY-1) || gz > float32(v.NZ-1) {
		return 0
	}
	x0 := int(fmath.Floor(gx))
	y0 := int(fmath.Floor(gy))
	z0 := int(fmath.Floor(gz))
	x1, y1, z1 := x0+1, y0+1, z0+1
	if x1 > v.NX-1 {
		x1 = v.NX - 1
	}
	if y1 > v.NY-1 {
		y1 = v.NY - 1
	}
	if z1 > v.NZ-1 {
		z1 = v.NZ - 1
	}
	fx := gx - float32(x0)
	fy := gy - float32(y0)
	fz := gz - float32(z0)

	c000 := v.At(x0, y0, z0)
	c100 := v.At(x1, y0, z0)
	c010 := v.At(x0, y1, z0)
	c110 := v.At(x1, y1, z0)
	c001 := v.At(x0, y0, z1)
	c101 := v.At(x1, y0, z1)
	c011 := v.At(x0, y1, z1)
	c111 := v.At(x1, y1, z1)

	c00 := c000 + (c100-c000)*fx
	c10 := c010 + (c110-c010)*fx
	c01 := c001 + (c101-c001)*fx
	c11 := c011 + (c111-c011)*fx
	c0 := c00 + (c10-c00)*fy
	c1 := c01 + (c11-c01)*fy
	return c0 + (c1-c0)*fz
}

// MinMax returns the smallest and largest sample in the volume.
func (v *Volume) MinMax() (float32, float32) {
	if len(v.Data) == 0 {
		return 0, 0
	}
	min, max := v.Data[0], v.Data[0]
	for _, s := range v.Data[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return min, max
}
