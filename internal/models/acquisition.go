// Package models holds the acquisition data model: projection views, their
// camera geometry, and the circular trajectory that generates them.
package models

import (
	"fmt"
	"math"

	"grangeat/pkg/geometry"
	"grangeat/pkg/voxel"
)

// View represents a single cone-beam projection with metadata
type View struct {
	// Image is the detector image of this view
	Image *voxel.Chunk2D

	// Index is the position of this view in the acquisition sequence
	Index int

	// Angle is the gantry angle of this view in radians
	Angle float64

	// Projection maps world points (mm) to detector pixels
	Projection geometry.ProjectionMatrix
}

// CircularTrajectory describes a circular cone-beam orbit. The source circles
// the isocenter in the world x-z plane; the detector sits opposite the source
// with its rows along the orbit tangent.
type CircularTrajectory struct {
	// SourceDistance is the source-isocenter distance in mm
	SourceDistance float64

	// DetectorDistance is the source-detector distance in mm
	DetectorDistance float64

	// Width and Height are the detector size in pixels
	Width, Height int

	// PixelPitch is the detector pixel spacing in mm
	PixelPitch [2]float64
}

// Projection returns the projection matrix of the view at gantry angle theta.
func (tr CircularTrajectory) Projection(theta float64) (geometry.ProjectionMatrix, error) {
	if tr.SourceDistance <= 0 || tr.DetectorDistance <= 0 {
		return geometry.ProjectionMatrix{}, fmt.Errorf("trajectory distances must be positive")
	}
	if tr.Width < 2 || tr.Height < 2 {
		return geometry.ProjectionMatrix{}, fmt.Errorf("detector must be at least 2x2 pixels")
	}
	if tr.PixelPitch[0] <= 0 || tr.PixelPitch[1] <= 0 {
		return geometry.ProjectionMatrix{}, fmt.Errorf("pixel pitch must be positive")
	}

	k := [3][3]float64{
		{tr.DetectorDistance / tr.PixelPitch[0], 0, float64(tr.Width-1) / 2},
		{0, tr.DetectorDistance / tr.PixelPitch[1], float64(tr.Height-1) / 2},
		{0, 0, 1},
	}
	c, s := math.Cos(theta), math.Sin(theta)
	r := [3][3]float64{
		{c, 0, s},
		{0, 1, 0},
		{-s, 0, c},
	}
	t := [3]float64{0, 0, tr.SourceDistance}
	return geometry.ComposeProjection(k, r, t), nil
}

// SourcePosition returns the orbit point of the source at gantry angle theta.
func (tr CircularTrajectory) SourcePosition(theta float64) [3]float64 {
	return [3]float64{
		tr.SourceDistance * math.Sin(theta),
		0,
		-tr.SourceDistance * math.Cos(theta),
	}
}

// Acquisition is an ordered sweep of views sharing one trajectory
type Acquisition struct {
	// Trajectory is the orbit the views were taken on
	Trajectory CircularTrajectory

	// Views are the projections in gantry-angle order
	Views []View
}

// NewAcquisition builds the view geometry for count gantry angles starting at
// start and spread evenly over arc radians, endpoint excluded so a full-circle
// sweep does not duplicate its first view. Images start out nil and are
// attached once acquired or simulated.
func NewAcquisition(tr CircularTrajectory, start, arc float64, count int) (*Acquisition, error) {
	if count < 1 {
		return nil, fmt.Errorf("acquisition needs at least one view")
	}
	views := make([]View, count)
	for i := range views {
		angle := start + arc*float64(i)/float64(count)
		proj, err := tr.Projection(angle)
		if err != nil {
			return nil, fmt.Errorf("failed to build view %d: %v", i, err)
		}
		views[i] = View{Index: i, Angle: angle, Projection: proj}
	}
	return &Acquisition{Trajectory: tr, Views: views}, nil
}

// AttachImages assigns one detector image per view, in view order.
func (a *Acquisition) AttachImages(images []*voxel.Chunk2D) error {
	if len(images) != len(a.Views) {
		return fmt.Errorf("got %d images for %d views", len(images), len(a.Views))
	}
	for i, img := range images {
		if img == nil {
			return fmt.Errorf("image %d is nil", i)
		}
		if img.Width != a.Trajectory.Width || img.Height != a.Trajectory.Height {
			return fmt.Errorf("image %d is %dx%d, detector is %dx%d",
				i, img.Width, img.Height, a.Trajectory.Width, a.Trajectory.Height)
		}
		a.Views[i].Image = img
	}
	return nil
}

// ViewPairs lists the index pairs of distinct views, nearest gantry angles
// first. Pairwise consistency checks walk these.
func (a *Acquisition) ViewPairs() [][2]int {
	n := len(a.Views)
	pairs := make([][2]int, 0, n*(n-1)/2)
	for gap := 1; gap < n; gap++ {
		for i := 0; i+gap < n; i++ {
			pairs = append(pairs, [2]int{i, i + gap})
		}
	}
	return pairs
}
