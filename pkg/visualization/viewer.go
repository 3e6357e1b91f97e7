// Package visualization renders volumes and sinograms produced by the engine
// as grayscale images for inspection. Values are mapped linearly from a value
// range onto 16-bit gray, so signed data such as derivative volumes stays
// readable with zero at mid-gray when the range is symmetric.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"grangeat/pkg/voxel"
)

// Viewer extracts 2D slice images from a 3D volume. For a Radon volume the
// x axis carries azimuth, the y axis polar angle and the z axis plane
// distance, so a z slice shows the sphere of plane orientations at one
// distance.
type Viewer struct {
	vol *voxel.Volume

	// value range mapped to black..white
	lo, hi float32
}

// NewViewer creates a viewer for the volume. The gray range defaults to the
// full value range of the data.
func NewViewer(vol *voxel.Volume) *Viewer {
	v := &Viewer{vol: vol}
	v.lo, v.hi = dataRange(vol.Data)
	return v
}

// SetRange fixes the value range mapped onto black..white, overriding the
// data range. Useful to keep a consistent scale across a slice sequence or
// to center zero for signed data.
func (v *Viewer) SetRange(lo, hi float32) {
	v.lo, v.hi = lo, hi
}

func dataRange(data []float32) (float32, float32) {
	if len(data) == 0 {
		return 0, 0
	}
	lo, hi := data[0], data[0]
	for _, d := range data {
		if d < lo {
			lo = d
		}
		if d > hi {
			hi = d
		}
	}
	return lo, hi
}

func (v *Viewer) gray(value float32) color.Gray16 {
	span := float64(v.hi) - float64(v.lo)
	if span <= 0 {
		return color.Gray16{}
	}
	t := float64(value-v.lo) / span * 65535
	return color.Gray16{Y: uint16(math.Max(0, math.Min(65535, t)))}
}

// ExtractSlice extracts a 2D slice from the 3D volume along the specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	var img *image.Gray16

	switch axis {
	case "x", "X":
		// Extract slice along YZ plane
		if position >= v.vol.NX {
			return nil, fmt.Errorf("position %d exceeds width %d", position, v.vol.NX)
		}

		img = image.NewGray16(image.Rect(0, 0, v.vol.NZ, v.vol.NY))
		for y := 0; y < v.vol.NY; y++ {
			for z := 0; z < v.vol.NZ; z++ {
				img.SetGray16(z, y, v.gray(v.vol.At(position, y, z)))
			}
		}

	case "y", "Y":
		// Extract slice along XZ plane
		if position >= v.vol.NY {
			return nil, fmt.Errorf("position %d exceeds height %d", position, v.vol.NY)
		}

		img = image.NewGray16(image.Rect(0, 0, v.vol.NX, v.vol.NZ))
		for z := 0; z < v.vol.NZ; z++ {
			for x := 0; x < v.vol.NX; x++ {
				img.SetGray16(x, z, v.gray(v.vol.At(x, position, z)))
			}
		}

	case "z", "Z":
		// Extract slice along XY plane
		if position >= v.vol.NZ {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, v.vol.NZ)
		}

		img = image.NewGray16(image.Rect(0, 0, v.vol.NX, v.vol.NY))
		for y := 0; y < v.vol.NY; y++ {
			for x := 0; x < v.vol.NX; x++ {
				img.SetGray16(x, y, v.gray(v.vol.At(x, y, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// ExtractRegion extracts a 3D subregion of the volume as a volume of its own.
// Voxel spacing carries over and the offset shifts so the region keeps its
// world position.
func (v *Viewer) ExtractRegion(startX, startY, startZ, sizeX, sizeY, sizeZ int) (*voxel.Volume, error) {
	// Validate parameters
	if startX < 0 || startY < 0 || startZ < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}

	if sizeX <= 0 || sizeY <= 0 || sizeZ <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}

	if startX+sizeX > v.vol.NX || startY+sizeY > v.vol.NY || startZ+sizeZ > v.vol.NZ {
		return nil, fmt.Errorf("region extends beyond volume boundaries")
	}

	region := voxel.NewVolume(sizeX, sizeY, sizeZ, v.vol.VoxelSize)
	for i, start := range [3]int{startX, startY, startZ} {
		dims := [3]int{v.vol.NX, v.vol.NY, v.vol.NZ}
		sizes := [3]int{sizeX, sizeY, sizeZ}
		shift := float32(start) + float32(sizes[i]-1)/2 - float32(dims[i]-1)/2
		region.Offset[i] = v.vol.Offset[i] + shift*v.vol.VoxelSize[i]
	}

	for z := 0; z < sizeZ; z++ {
		for y := 0; y < sizeY; y++ {
			for x := 0; x < sizeX; x++ {
				region.Set(x, y, z, v.vol.At(startX+x, startY+y, startZ+z))
			}
		}
	}

	return region, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves a sequence of slices along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.vol.NX
	case "y", "Y":
		maxPos = v.vol.NY
	case "z", "Z":
		maxPos = v.vol.NZ
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

// ChunkImage renders a 2D chunk, such as a sinogram or a projection image,
// normalized to its own value range.
func ChunkImage(c *voxel.Chunk2D) image.Image {
	lo, hi := dataRange(c.Data)
	img := image.NewGray16(image.Rect(0, 0, c.Width, c.Height))
	span := float64(hi) - float64(lo)
	for y := 0; y < c.Height; y++ {
		for x := 0; x < c.Width; x++ {
			var g uint16
			if span > 0 {
				t := float64(c.At(x, y)-lo) / span * 65535
				g = uint16(math.Max(0, math.Min(65535, t)))
			}
			img.SetGray16(x, y, color.Gray16{Y: g})
		}
	}
	return img
}

// SaveChunk writes a 2D chunk as a JPEG image.
func SaveChunk(c *voxel.Chunk2D, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, ChunkImage(c), &jpeg.Options{Quality: 90})
}
