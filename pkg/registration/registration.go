// Package registration estimates the rigid 6-DoF motion aligning a
// projection with a volume by minimizing Grangeat inconsistency: the
// fixed projection-side intermediate samples are compared against the
// volume-side Radon space resampled at pose-transformed plane
// coordinates, and a derivative-free optimizer searches the pose.
package registration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"

	"grangeat/pkg/consistency"
	"grangeat/pkg/geometry"
	"grangeat/pkg/radon"
)

// Pose is a rigid 6-DoF motion: rotations in radians around the world x,
// y and z axes, applied in that order, followed by a translation in mm.
type Pose struct {
	Rx, Ry, Rz float64
	Tx, Ty, Tz float64
}

// Homography returns the 4x4 matrix of the pose.
func (p Pose) Homography() geometry.Homography {
	return geometry.HomographyFromRotTrans(
		geometry.RotationXYZ(p.Rx, p.Ry, p.Rz),
		[3]float64{p.Tx, p.Ty, p.Tz},
	)
}

// Vector packs the pose into the optimizer's parameter layout.
func (p Pose) Vector() []float64 {
	return []float64{p.Rx, p.Ry, p.Rz, p.Tx, p.Ty, p.Tz}
}

// PoseFromVector is the inverse of Vector.
func PoseFromVector(x []float64) (Pose, error) {
	if len(x) != 6 {
		return Pose{}, fmt.Errorf("failed to unpack pose: got %d parameters, want 6", len(x))
	}
	return Pose{Rx: x[0], Ry: x[1], Rz: x[2], Tx: x[3], Ty: x[4], Tz: x[5]}, nil
}

// Registration2D3D scores candidate poses for one projection against one
// volume. The plane set and the Radon-space volume stay resident on the
// device; per trial pose only the 16 floats of the homography travel to
// the device and one sample vector travels back.
type Registration2D3D struct {
	reference *consistency.Signal
	coords    *radon.CoordTransform
	resampler *radon.VolumeResampler
	metric    consistency.Metric
}

// New assembles a registration from its prepared parts: the fixed
// projection-side samples, the device-resident plane set that produced
// them, the resampler over the volume-side intermediate grid, and the
// metric. The coordinate set and the resampler must live on the same
// device, and the reference must hold one sample per plane.
func New(reference []float32, coords *radon.CoordTransform, resampler *radon.VolumeResampler, metric consistency.Metric) (*Registration2D3D, error) {
	if coords == nil || resampler == nil {
		return nil, fmt.Errorf("failed to create registration: nil device resources")
	}
	if coords.Device() != resampler.Device() {
		return nil, fmt.Errorf("failed to create registration: coordinate set and resampler on different devices")
	}
	if metric == nil {
		return nil, fmt.Errorf("failed to create registration: nil metric")
	}
	if len(reference) == 0 || len(reference) != coords.Len() {
		return nil, fmt.Errorf("failed to create registration: %d reference samples for %d planes",
			len(reference), coords.Len())
	}
	return &Registration2D3D{
		reference: consistency.NewSignal(reference),
		coords:    coords,
		resampler: resampler,
		metric:    metric,
	}, nil
}

// Reference returns the fixed projection-side samples.
func (r *Registration2D3D) Reference() *consistency.Signal { return r.reference }

// Cost evaluates the inconsistency at a trial pose. The call is a pure
// function of the pose given the fixed inputs.
func (r *Registration2D3D) Cost(pose Pose) (float64, error) {
	buf, err := r.coords.Transform(pose.Homography())
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate pose: %v", err)
	}
	moved, err := r.resampler.SampleBuffer(buf)
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate pose: %v", err)
	}
	pair, err := consistency.NewIntermediateFctPair(r.reference, consistency.NewSignal(moved), consistency.SourceVolume)
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate pose: %v", err)
	}
	return pair.Inconsistency(r.metric)
}

// Result reports the outcome of a pose search.
type Result struct {
	Pose        Pose
	Score       float64
	Evaluations int
	Status      optimize.Status
}

// Run searches for the pose of least inconsistency with Nelder-Mead,
// starting from initial. maxEvals bounds the number of cost evaluations;
// zero or less leaves the optimizer's own convergence criteria in charge.
func (r *Registration2D3D) Run(initial Pose, maxEvals int) (*Result, error) {
	var evalErr error
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			pose, err := PoseFromVector(x)
			if err != nil {
				evalErr = err
				return math.Inf(1)
			}
			score, err := r.Cost(pose)
			if err != nil {
				// Remember the first failure; an infinite score steers
				// the simplex away while the search winds down.
				if evalErr == nil {
					evalErr = err
				}
				return math.Inf(1)
			}
			return score
		},
	}

	var settings *optimize.Settings
	if maxEvals > 0 {
		settings = &optimize.Settings{FuncEvaluations: maxEvals}
	}
	res, err := optimize.Minimize(problem, initial.Vector(), settings, &optimize.NelderMead{})
	if evalErr != nil {
		return nil, fmt.Errorf("failed to run registration: %v", evalErr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to run registration: %v", err)
	}
	pose, err := PoseFromVector(res.X)
	if err != nil {
		return nil, fmt.Errorf("failed to run registration: %v", err)
	}
	return &Result{
		Pose:        pose,
		Score:       res.F,
		Evaluations: res.Stats.FuncEvaluations,
		Status:      res.Status,
	}, nil
}
