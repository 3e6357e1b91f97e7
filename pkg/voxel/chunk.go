package voxel

import (
	fmath "github.com/barnex/fmath"
)

// Chunk2D is a dense 2D grid of float32 samples laid out row-major:
// Data[y*Width+x]. PixelSize carries the physical spacing in mm; consumers
// that only care about pixel indices can leave it at the default of 1 mm.
type Chunk2D struct {
	Width, Height int
	PixelSize     [2]float32
	Data          []float32
}

// NewChunk2D allocates a zero-filled chunk with the given pixel spacing
// (mm). Passing zero spacing components defaults them to 1.
func NewChunk2D(width, height int, pixelSize [2]float32) *Chunk2D {
	if pixelSize[0] == 0 {
		pixelSize[0] = 1
	}
	if pixelSize[1] == 0 {
		pixelSize[1] = 1
	}
	return &Chunk2D{
		Width:     width,
		Height:    height,
		PixelSize: pixelSize,
		Data:      make([]float32, width*height),
	}
}

// At returns the value of pixel (x, y).
func (c *Chunk2D) At(x, y int) float32 {
	return c.Data[y*c.Width+x]
}

// Set assigns the value of pixel (x, y).
func (c *Chunk2D) Set(x, y int, value float32) {
	c.Data[y*c.Width+x] = value
}

// Fill sets every pixel to the given value.
func (c *Chunk2D) Fill(value float32) {
	for i := range c.Data {
		c.Data[i] = value
	}
}

// Scale multiplies every pixel by the given factor.
func (c *Chunk2D) Scale(factor float32) {
	for i := range c.Data {
		c.Data[i] *= factor
	}
}

// Clone returns a deep copy of the chunk.
func (c *Chunk2D) Clone() *Chunk2D {
	out := *c
	out.Data = make([]float32, len(c.Data))
	copy(out.Data, c.Data)
	return &out
}

// Sample returns the bilinearly interpolated value at continuous pixel
// coordinates. Positions outside the pixel grid sample as zero.
func (c *Chunk2D) Sample(px, py float32) float32 {
	if px < 0 || py < 0 || px > float32(c.Width-1) || py > float32(c.Height-1) {
		return 0
	}
	x0 := int(fmath.Floor(px))
	y0 := int(fmath.Floor(py))
	x1, y1 := x0+1, y0+1
	if x1 > c.Width-1 {
		x1 = c.Width - 1
	}
	if y1 > c.Height-1 {
		y1 = c.Height - 1
	}
	fx := px - float32(x0)
	fy := py - float32(y0)

	v00 := c.At(x0, y0)
	v10 := c.At(x1, y0)
	v01 := c.At(x0, y1)
	v11 := c.At(x1, y1)
	v0 := v00 + (v10-v00)*fx
	v1 := v01 + (v11-v01)*fx
	return v0 + (v1-v0)*fy
}

// MinMax returns the smallest and largest sample in the chunk.
func (c *Chunk2D) MinMax() (float32, float32) {
	if len(c.Data) == 0 {
		return 0, 0
	}
	min, max := c.Data[0], c.Data[0]
	for _, s := range c.Data[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return min, max
}
