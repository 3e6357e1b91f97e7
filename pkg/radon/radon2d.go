// Package radon computes Radon transforms of images and volumes on the
// compute-device layer: 2D line integrals, 3D plane integrals scheduled
// across all devices, device-resident Radon coordinate transforms and
// Radon-space volume resampling.
package radon

import (
	"fmt"

	fmath "github.com/barnex/fmath"
	"github.com/ungerik/go3d/vec2"

	"grangeat/pkg/compute"
	"grangeat/pkg/geometry"
	"grangeat/pkg/voxel"
)

// ProgressCallback is a function that reports progress during long-running
// sweeps. If total is zero the call carries only the message.
type ProgressCallback func(completed, total int, message string)

type lineIntegralFunc func(img *voxel.Chunk2D, ox, oy float32, c geometry.Radon2DCoord, step, halfRange float32) float32

func init() {
	compute.RegisterKernel("radon2d", "line_integral", func() (any, error) {
		return lineIntegralFunc(lineIntegralKernel), nil
	})
}

// lineIntegralKernel walks the line x*cos + y*sin = dist in physical
// coordinates relative to the transform origin, accumulating bilinear
// image samples every step millimeters over [-halfRange, halfRange].
func lineIntegralKernel(img *voxel.Chunk2D, ox, oy float32, c geometry.Radon2DCoord, step, halfRange float32) float32 {
	cosA := fmath.Cos(c.Angle)
	sinA := fmath.Sin(c.Angle)
	base := vec2.T{c.Dist * cosA, c.Dist * sinA}
	dir := vec2.T{-sinA, cosA}

	start := dir.Scaled(-halfRange)
	pos := vec2.Add(&base, &start)
	delta := dir.Scaled(step)

	steps := int(2*halfRange/step) + 1
	var sum float32
	for i := 0; i < steps; i++ {
		px := pos[0]/img.PixelSize[0] + ox
		py := pos[1]/img.PixelSize[1] + oy
		sum += img.Sample(px, py)
		pos.Add(&delta)
	}
	return sum * step
}

// Transform2D computes line integrals of a single image. The image is
// bound at construction time together with the manager's first device; all
// sampling calls run as tasks on that device's queue.
//
// Radon coordinates are physical: angles in radians, distances in mm
// relative to the transform origin, which defaults to the image center.
type Transform2D struct {
	dev       *compute.Device
	img       *voxel.Chunk2D
	kernel    lineIntegralFunc
	originX   float32
	originY   float32
	lineReso  float32
	halfRange float32
}

// NewTransform2D binds an image to the manager's first device. The line
// resolution defaults to the smaller pixel spacing, the origin to the
// image center.
func NewTransform2D(mgr *compute.Manager, img *voxel.Chunk2D) (*Transform2D, error) {
	if mgr == nil || mgr.NumDevices() == 0 {
		return nil, compute.ErrNoDevice
	}
	if img == nil || img.Width == 0 || img.Height == 0 {
		return nil, fmt.Errorf("failed to create 2D transform: empty image")
	}
	if img.PixelSize[0] <= 0 || img.PixelSize[1] <= 0 {
		return nil, fmt.Errorf("failed to create 2D transform: non-positive pixel size %v", img.PixelSize)
	}
	fn, err := mgr.Kernel("radon2d", "line_integral")
	if err != nil {
		return nil, fmt.Errorf("failed to create 2D transform: %v", err)
	}
	t := &Transform2D{
		dev:    mgr.Device(0),
		img:    img,
		kernel: fn.(lineIntegralFunc),
	}
	reso := img.PixelSize[0]
	if img.PixelSize[1] < reso {
		reso = img.PixelSize[1]
	}
	t.lineReso = reso
	t.SetOrigin(float32(img.Width-1)/2, float32(img.Height-1)/2)
	return t, nil
}

// SetOrigin moves the Radon origin to the given pixel position. Distances
// of all subsequently sampled lines are measured from this point.
func (t *Transform2D) SetOrigin(x, y float32) {
	t.originX = x
	t.originY = y

	// The integration range spans the largest physical distance from the
	// origin to an image corner.
	var max float32
	for _, cx := range []float32{0, float32(t.img.Width - 1)} {
		for _, cy := range []float32{0, float32(t.img.Height - 1)} {
			dx := (cx - x) * t.img.PixelSize[0]
			dy := (cy - y) * t.img.PixelSize[1]
			if d := fmath.Sqrt(dx*dx + dy*dy); d > max {
				max = d
			}
		}
	}
	t.halfRange = max
}

// Origin returns the Radon origin in pixel coordinates.
func (t *Transform2D) Origin() (float32, float32) { return t.originX, t.originY }

// SetLineResolution sets the integration step in mm.
func (t *Transform2D) SetLineResolution(reso float32) error {
	if reso <= 0 {
		return fmt.Errorf("failed to set line resolution: %v is not positive", reso)
	}
	t.lineReso = reso
	return nil
}

// LineResolution returns the integration step in mm.
func (t *Transform2D) LineResolution() float32 { return t.lineReso }

// Image returns the bound image.
func (t *Transform2D) Image() *voxel.Chunk2D { return t.img }

// SampleGrid evaluates the transform on the full angle x distance grid and
// returns a sinogram chunk with one column per angle and one row per
// distance. The whole grid is computed by a single device task.
func (t *Transform2D) SampleGrid(angles, distances []float32) (*voxel.Chunk2D, error) {
	if len(angles) == 0 || len(distances) == 0 {
		return nil, fmt.Errorf("failed to sample 2D transform: empty sampling grid")
	}
	spacing := func(s []float32) float32 {
		if len(s) < 2 {
			return 1
		}
		return s[1] - s[0]
	}
	out := voxel.NewChunk2D(len(angles), len(distances), [2]float32{spacing(angles), spacing(distances)})

	ox, oy, step, half := t.originX, t.originY, t.lineReso, t.halfRange
	ev := t.dev.Submit(func() error {
		for di, dist := range distances {
			for ai, angle := range angles {
				c := geometry.Radon2DCoord{Angle: angle, Dist: dist}
				out.Set(ai, di, t.kernel(t.img, ox, oy, c, step, half))
			}
		}
		return nil
	})
	if err := ev.Wait(); err != nil {
		return nil, fmt.Errorf("failed to sample 2D transform: %v", err)
	}
	return out, nil
}

// SamplePoints evaluates the transform at a list of arbitrary Radon
// coordinates and returns one line integral per coordinate.
func (t *Transform2D) SamplePoints(coords []geometry.Radon2DCoord) ([]float32, error) {
	if len(coords) == 0 {
		return nil, nil
	}
	out := make([]float32, len(coords))
	ox, oy, step, half := t.originX, t.originY, t.lineReso, t.halfRange
	ev := t.dev.Submit(func() error {
		for i, c := range coords {
			out[i] = t.kernel(t.img, ox, oy, c, step, half)
		}
		return nil
	})
	if err := ev.Wait(); err != nil {
		return nil, fmt.Errorf("failed to sample 2D transform: %v", err)
	}
	return out, nil
}
