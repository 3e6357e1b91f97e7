package radon

import (
	"math"
	"testing"

	"grangeat/pkg/compute"
	"grangeat/pkg/geometry"
	"grangeat/pkg/voxel"
)

func newTestManager(t *testing.T, devices int) *compute.Manager {
	t.Helper()
	m, err := compute.NewManager(devices)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func uniformChunk(w, h int, value float32) *voxel.Chunk2D {
	c := voxel.NewChunk2D(w, h, [2]float32{1, 1})
	c.Fill(value)
	return c
}

func TestLineIntegralUniformSquare(t *testing.T) {
	m := newTestManager(t, 1)
	tr, err := NewTransform2D(m, uniformChunk(32, 32, 1))
	if err != nil {
		t.Fatalf("NewTransform2D failed: %v", err)
	}

	// A line through the center parallel to an edge crosses 31 mm of
	// support, independent of which edge.
	vals, err := tr.SamplePoints([]geometry.Radon2DCoord{
		{Angle: 0, Dist: 0},
		{Angle: math.Pi / 2, Dist: 0},
	})
	if err != nil {
		t.Fatalf("SamplePoints failed: %v", err)
	}
	for i, got := range vals {
		if math.Abs(float64(got)-31) > 1.5 {
			t.Errorf("integral %d = %v, want 31 +- 1.5", i, got)
		}
	}
}

func TestLineIntegralLinearity(t *testing.T) {
	m := newTestManager(t, 1)
	img := uniformChunk(24, 24, 1)
	tr, err := NewTransform2D(m, img)
	if err != nil {
		t.Fatalf("NewTransform2D failed: %v", err)
	}
	coords := []geometry.Radon2DCoord{{Angle: 0.7, Dist: 3}, {Angle: 2.1, Dist: -5}}
	base, err := tr.SamplePoints(coords)
	if err != nil {
		t.Fatalf("SamplePoints failed: %v", err)
	}

	img.Scale(2)
	doubled, err := tr.SamplePoints(coords)
	if err != nil {
		t.Fatalf("SamplePoints failed: %v", err)
	}
	for i := range base {
		if math.Abs(float64(doubled[i]-2*base[i])) > 1e-4*(1+math.Abs(float64(base[i]))) {
			t.Errorf("scaled integral %d = %v, want %v", i, doubled[i], 2*base[i])
		}
	}
}

func TestLineIntegralOutsideImageIsZero(t *testing.T) {
	m := newTestManager(t, 1)
	tr, err := NewTransform2D(m, uniformChunk(16, 16, 3))
	if err != nil {
		t.Fatalf("NewTransform2D failed: %v", err)
	}
	// Distances beyond the corner radius cannot intersect the image.
	vals, err := tr.SamplePoints([]geometry.Radon2DCoord{
		{Angle: 0.3, Dist: 50},
		{Angle: 1.9, Dist: -50},
	})
	if err != nil {
		t.Fatalf("SamplePoints failed: %v", err)
	}
	for i, got := range vals {
		if got != 0 {
			t.Errorf("integral %d = %v, want 0", i, got)
		}
	}
}

func TestSampleGridMatchesSamplePoints(t *testing.T) {
	m := newTestManager(t, 1)
	img := voxel.NewChunk2D(20, 20, [2]float32{1, 1})
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			img.Set(x, y, float32(x+2*y))
		}
	}
	tr, err := NewTransform2D(m, img)
	if err != nil {
		t.Fatalf("NewTransform2D failed: %v", err)
	}

	angles := []float32{0, 0.5, 1.0, 1.5}
	dists := []float32{-4, 0, 4}
	grid, err := tr.SampleGrid(angles, dists)
	if err != nil {
		t.Fatalf("SampleGrid failed: %v", err)
	}
	if grid.Width != len(angles) || grid.Height != len(dists) {
		t.Fatalf("grid is %dx%d, want %dx%d", grid.Width, grid.Height, len(angles), len(dists))
	}

	for di, dist := range dists {
		for ai, angle := range angles {
			single, err := tr.SamplePoints([]geometry.Radon2DCoord{{Angle: angle, Dist: dist}})
			if err != nil {
				t.Fatalf("SamplePoints failed: %v", err)
			}
			if got, want := grid.At(ai, di), single[0]; got != want {
				t.Errorf("grid(%d,%d) = %v, want %v", ai, di, got, want)
			}
		}
	}
}

func TestSinogramPointSymmetry(t *testing.T) {
	m := newTestManager(t, 1)
	img := voxel.NewChunk2D(20, 20, [2]float32{1, 1})
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			img.Set(x, y, float32(x*y%7))
		}
	}
	tr, err := NewTransform2D(m, img)
	if err != nil {
		t.Fatalf("NewTransform2D failed: %v", err)
	}

	// (angle, dist) and (angle+pi, -dist) parametrize the same line.
	coords := []geometry.Radon2DCoord{{Angle: 0.4, Dist: 2.5}, {Angle: 0.4 + math.Pi, Dist: -2.5}}
	vals, err := tr.SamplePoints(coords)
	if err != nil {
		t.Fatalf("SamplePoints failed: %v", err)
	}
	if diff := math.Abs(float64(vals[0] - vals[1])); diff > 1e-3*(1+math.Abs(float64(vals[0]))) {
		t.Errorf("symmetric samples differ by %v: %v vs %v", diff, vals[0], vals[1])
	}
}

func TestSetOriginMovesLines(t *testing.T) {
	m := newTestManager(t, 1)
	img := voxel.NewChunk2D(16, 16, [2]float32{1, 1})
	// A single bright column at x = 4.
	for y := 0; y < img.Height; y++ {
		img.Set(4, y, 1)
	}
	tr, err := NewTransform2D(m, img)
	if err != nil {
		t.Fatalf("NewTransform2D failed: %v", err)
	}

	// Relative to the default center origin the column sits at x = -3.5.
	vals, err := tr.SamplePoints([]geometry.Radon2DCoord{{Angle: 0, Dist: -3.5}})
	if err != nil {
		t.Fatalf("SamplePoints failed: %v", err)
	}
	centered := vals[0]

	// After moving the origin onto the column, the same line is at dist 0.
	tr.SetOrigin(4, 7.5)
	vals, err = tr.SamplePoints([]geometry.Radon2DCoord{{Angle: 0, Dist: 0}})
	if err != nil {
		t.Fatalf("SamplePoints failed: %v", err)
	}
	// The two origins sample the column at different fractional offsets,
	// so only the boundary contribution may differ.
	if diff := math.Abs(float64(vals[0] - centered)); diff > 1 {
		t.Errorf("line integral changed with origin: %v vs %v", vals[0], centered)
	}
	if centered < 10 {
		t.Errorf("column integral = %v, expected the full column (about 15)", centered)
	}
}

func TestTransform2DValidation(t *testing.T) {
	m := newTestManager(t, 1)
	if _, err := NewTransform2D(nil, uniformChunk(4, 4, 1)); err == nil {
		t.Error("expected error for nil manager")
	}
	if _, err := NewTransform2D(m, nil); err == nil {
		t.Error("expected error for nil image")
	}
	tr, err := NewTransform2D(m, uniformChunk(4, 4, 1))
	if err != nil {
		t.Fatalf("NewTransform2D failed: %v", err)
	}
	if err := tr.SetLineResolution(0); err == nil {
		t.Error("expected error for zero line resolution")
	}
	if err := tr.SetLineResolution(0.25); err != nil {
		t.Errorf("SetLineResolution failed: %v", err)
	}
	if _, err := tr.SampleGrid(nil, []float32{0}); err == nil {
		t.Error("expected error for empty angle list")
	}
}
