package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/cheggaaa/pb"

	"grangeat/internal/models"
	"grangeat/pkg/compute"
	"grangeat/pkg/config"
	"grangeat/pkg/consistency"
	"grangeat/pkg/geometry"
	"grangeat/pkg/phantom"
	"grangeat/pkg/radon"
	"grangeat/pkg/registration"
	"grangeat/pkg/visualization"
	"grangeat/pkg/voxel"
)

func main() {
	// Parse command line arguments
	mode := flag.String("mode", "", "What to run: radon2d, radon3d, consistency, register or init-config")
	configPath := flag.String("config", "grangeat.yaml", "Configuration file (YAML)")
	outputDir := flag.String("output", "", "Output directory (default: from configuration)")
	numViews := flag.Int("views", 8, "Number of simulated views on the orbit")
	detectorSize := flag.Int("size", 256, "Detector width and height in pixels")
	pixelPitch := flag.Float64("pitch", 0.5, "Detector pixel pitch in mm")
	sourceDist := flag.Float64("sid", 500, "Source-isocenter distance in mm")
	detectorDist := flag.Float64("sdd", 1000, "Source-detector distance in mm")
	phantomRadius := flag.Float64("radius", 25, "Phantom radius in mm")
	volumeSize := flag.Int("voxels", 65, "Phantom volume size per axis in voxels")
	flag.Parse()

	// Validate inputs
	if *mode == "" {
		flag.Usage()
		os.Exit(1)
	}

	fmt.Println("================================")
	fmt.Println("GRANGEAT CONSISTENCY ENGINE")
	fmt.Println("Radon transforms and projection consistency for cone-beam CT")
	fmt.Println("================================")

	if *mode == "init-config" {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	mgr, err := compute.NewManager(cfg.Compute.Devices)
	if err != nil {
		log.Fatalf("Failed to start compute devices: %v", err)
	}
	defer mgr.Close()
	fmt.Printf("Using %d compute devices\n", mgr.NumDevices())

	// The simulated scanner and the phantom it images
	trajectory := models.CircularTrajectory{
		SourceDistance:   *sourceDist,
		DetectorDistance: *detectorDist,
		Width:            *detectorSize,
		Height:           *detectorSize,
		PixelPitch:       [2]float64{*pixelPitch, *pixelPitch},
	}
	ellipsoids := phantom.DefaultEllipsoids(*phantomRadius)

	startTime := time.Now()
	switch *mode {
	case "radon2d":
		err = runRadon2D(cfg, mgr, trajectory, ellipsoids)
	case "radon3d":
		err = runRadon3D(cfg, mgr, ellipsoids, *phantomRadius, *volumeSize)
	case "consistency":
		err = runConsistency(cfg, mgr, trajectory, ellipsoids, *numViews, *phantomRadius, *volumeSize)
	case "register":
		err = runRegister(cfg, mgr, trajectory, ellipsoids, *phantomRadius, *volumeSize)
	default:
		log.Fatalf("Unknown mode: %s", *mode)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", *mode, err)
	}

	fmt.Printf("\nCompleted in %.2f seconds\n", time.Since(startTime).Seconds())
}

// simulateViews renders one phantom projection per view of the acquisition.
func simulateViews(acq *models.Acquisition, ellipsoids []phantom.Ellipsoid, verbose bool) error {
	tr := acq.Trajectory
	pitch := [2]float32{float32(tr.PixelPitch[0]), float32(tr.PixelPitch[1])}

	if verbose {
		fmt.Printf("Simulating %d projections of %dx%d pixels...\n", len(acq.Views), tr.Width, tr.Height)
	}
	bar := pb.StartNew(len(acq.Views))
	images := make([]*voxel.Chunk2D, len(acq.Views))
	for i, view := range acq.Views {
		img, err := phantom.ProjectEllipsoids(ellipsoids, view.Projection, tr.Width, tr.Height, pitch)
		if err != nil {
			return fmt.Errorf("failed to simulate view %d: %v", i, err)
		}
		images[i] = img
		bar.Increment()
	}
	bar.Finish()
	return acq.AttachImages(images)
}

// phantomVolume voxelizes the phantom on a grid wide enough to hold it.
func phantomVolume(ellipsoids []phantom.Ellipsoid, radius float64, voxels int) *voxel.Volume {
	voxelSize := float32(2.2 * radius / float64(voxels))
	return phantom.Voxelize(ellipsoids, voxels, voxelSize)
}

func volumeHalfDiagonal(vol *voxel.Volume) float32 {
	dx := float64(vol.NX) * float64(vol.VoxelSize[0])
	dy := float64(vol.NY) * float64(vol.VoxelSize[1])
	dz := float64(vol.NZ) * float64(vol.VoxelSize[2])
	return float32(0.5 * math.Sqrt(dx*dx+dy*dy+dz*dz))
}

// gridFor fits the Radon sampling grid to the volume unless the
// configuration pins the distance span.
func gridFor(cfg *config.Config, vol *voxel.Volume) registration.GridSpec {
	maxDist := float32(cfg.Grid.MaxDistance)
	if maxDist <= 0 {
		maxDist = volumeHalfDiagonal(vol)
	}
	return registration.DefaultGridSpec(cfg.Grid.Azimuths, cfg.Grid.Polars, cfg.Grid.Distances, maxDist)
}

// runRadon2D computes the sinogram of one simulated projection, row by row.
func runRadon2D(cfg *config.Config, mgr *compute.Manager, tr models.CircularTrajectory, ellipsoids []phantom.Ellipsoid) error {
	acq, err := models.NewAcquisition(tr, 0, 0, 1)
	if err != nil {
		return err
	}
	if err := simulateViews(acq, ellipsoids, cfg.Output.Verbose); err != nil {
		return err
	}
	img := acq.Views[0].Image

	transform, err := radon.NewTransform2D(mgr, img)
	if err != nil {
		return err
	}

	diag := tr.PixelPitch[0] * math.Hypot(float64(tr.Width), float64(tr.Height))
	nAngles := 360
	nDists := tr.Width
	distances := geometry.CenteredRange(float32(diag)).Linspace(nDists)

	fmt.Printf("Sampling %d angles x %d distances...\n", nAngles, nDists)
	sinogram := voxel.NewChunk2D(nDists, nAngles, [2]float32{
		geometry.CenteredRange(float32(diag)).Spacing(nDists),
		float32(math.Pi) / float32(nAngles),
	})
	bar := pb.StartNew(nAngles)
	row := make([]geometry.Radon2DCoord, nDists)
	for y := 0; y < nAngles; y++ {
		angle := float32(math.Pi) * float32(y) / float32(nAngles)
		for x, dist := range distances {
			row[x] = geometry.Radon2DCoord{Angle: angle, Dist: dist}
		}
		values, err := transform.SamplePoints(row)
		if err != nil {
			return err
		}
		for x, v := range values {
			sinogram.Set(x, y, v)
		}
		bar.Increment()
	}
	bar.Finish()

	sinogramPath := filepath.Join(cfg.Output.Dir, "sinogram.jpg")
	if err := visualization.SaveChunk(sinogram, sinogramPath); err != nil {
		return err
	}
	fmt.Printf("Sinogram saved to: %s\n", sinogramPath)

	if cfg.Output.SaveIntermediaryResults {
		projPath := filepath.Join(cfg.Output.Dir, "projection_000.jpg")
		if err := visualization.SaveChunk(img, projPath); err != nil {
			return err
		}
		fmt.Printf("Projection saved to: %s\n", projPath)
	}
	return nil
}

// runRadon3D computes the plane-integral volume of the voxelized phantom and
// saves it as a slice sequence over plane distance.
func runRadon3D(cfg *config.Config, mgr *compute.Manager, ellipsoids []phantom.Ellipsoid, radius float64, voxels int) error {
	vol := phantomVolume(ellipsoids, radius, voxels)
	fmt.Printf("Voxelized phantom: %dx%dx%d voxels of %.2f mm\n",
		vol.NX, vol.NY, vol.NZ, vol.VoxelSize[0])

	transform, err := radon.NewTransform3D(mgr, vol)
	if err != nil {
		return err
	}

	grid := gridFor(cfg, vol)
	total := len(grid.Azimuths) * len(grid.Polars) * len(grid.Distances)
	fmt.Printf("Integrating %d planes across %d devices...\n", total, mgr.NumDevices())

	bar := pb.StartNew(total)
	transform.SetProgressCallback(func(completed, total int, message string) {
		bar.Set(completed)
	})
	radonVol, err := transform.SampleGrid(grid.Azimuths, grid.Polars, grid.Distances)
	if err != nil {
		return err
	}
	bar.Finish()

	slicesDir := filepath.Join(cfg.Output.Dir, "radon_slices")
	viewer := visualization.NewViewer(radonVol)
	if err := viewer.SaveSliceSequence("z", slicesDir); err != nil {
		return err
	}
	fmt.Printf("Radon volume slices saved to: %s\n", slicesDir)
	return nil
}

// runConsistency scores every view pair of a simulated acquisition against
// each other and the first view against the phantom volume.
func runConsistency(cfg *config.Config, mgr *compute.Manager, tr models.CircularTrajectory, ellipsoids []phantom.Ellipsoid, numViews int, radius float64, voxels int) error {
	acq, err := models.NewAcquisition(tr, 0, 2*math.Pi, numViews)
	if err != nil {
		return err
	}
	if err := simulateViews(acq, ellipsoids, cfg.Output.Verbose); err != nil {
		return err
	}

	method, err := cfg.DiffMethod()
	if err != nil {
		return err
	}
	metric, err := cfg.Metric()
	if err != nil {
		return err
	}
	h := float32(cfg.Sampling.StepSize)

	intermediates := make([]*consistency.IntermediateProj, len(acq.Views))
	for i, view := range acq.Views {
		ip, err := consistency.NewIntermediateProj(mgr, view.Image, view.Projection, cfg.Sampling.ObliquityWeighting)
		if err != nil {
			return fmt.Errorf("failed to prepare view %d: %v", i, err)
		}
		if err := ip.SetDiffMethod(method); err != nil {
			return err
		}
		intermediates[i] = ip
	}

	gen := consistency.NewIntermedGen2D2D()
	if err := gen.SetAngleIncrement(cfg.AngleIncrement()); err != nil {
		return err
	}
	if err := gen.SetSubsampleRate(cfg.Sampling.SubsampleRate); err != nil {
		return err
	}

	pairs := acq.ViewPairs()
	fmt.Printf("\nPairwise projection consistency (%s metric, %s derivative):\n",
		cfg.Registration.Metric, method)
	spec := consistency.SpecOf(acq.Views[0].Image)
	for _, p := range pairs {
		i, j := p[0], p[1]
		lines0, lines1, err := gen.LinePairs(acq.Views[i].Projection, acq.Views[j].Projection, spec, spec)
		if errors.Is(err, consistency.ErrDegenerateBaseline) {
			fmt.Printf("  views %d-%d: skipped, sources coincide\n", i, j)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to pair views %d and %d: %v", i, j, err)
		}
		first, err := intermediates[i].Sampled(lines0, h)
		if err != nil {
			return err
		}
		second, err := intermediates[j].Sampled(lines1, h)
		if err != nil {
			return err
		}
		pair, err := consistency.NewIntermediateFctPairFromSlices(first, second, consistency.SourceProjections)
		if err != nil {
			return err
		}
		if pair.IsEmpty() {
			fmt.Printf("  views %d-%d: no valid line pairs\n", i, j)
			continue
		}
		score, err := pair.Inconsistency(metric)
		if err != nil {
			return err
		}
		fmt.Printf("  views %d-%d: %5d line pairs, inconsistency %.6f\n", i, j, pair.Len(), score)
	}

	// Volume side: check the first view against the phantom itself
	vol := phantomVolume(ellipsoids, radius, voxels)
	iv, err := consistency.NewIntermediateVol(mgr, vol)
	if err != nil {
		return err
	}
	if err := iv.SetDiffMethod(method); err != nil {
		return err
	}

	gen3 := consistency.NewIntermedGen2D3D()
	if err := gen3.SetAccuracy(cfg.Sampling.Accuracy); err != nil {
		return err
	}
	if err := gen3.SetSubsampleRate(cfg.Sampling.SubsampleRate); err != nil {
		return err
	}

	fmt.Println("\nProjection-volume consistency for view 0:")
	pair, err := gen3.FctPair(intermediates[0], iv, h)
	if err != nil {
		return err
	}
	score, err := pair.Inconsistency(metric)
	if err != nil {
		return err
	}
	fmt.Printf("  %d plane samples, inconsistency %.6f\n", pair.Len(), score)
	return nil
}

// runRegister recovers a deliberately perturbed volume pose from one view.
func runRegister(cfg *config.Config, mgr *compute.Manager, tr models.CircularTrajectory, ellipsoids []phantom.Ellipsoid, radius float64, voxels int) error {
	acq, err := models.NewAcquisition(tr, 0, 0, 1)
	if err != nil {
		return err
	}
	if err := simulateViews(acq, ellipsoids, cfg.Output.Verbose); err != nil {
		return err
	}

	method, err := cfg.DiffMethod()
	if err != nil {
		return err
	}
	metric, err := cfg.Metric()
	if err != nil {
		return err
	}

	ip, err := consistency.NewIntermediateProj(mgr, acq.Views[0].Image, acq.Views[0].Projection, cfg.Sampling.ObliquityWeighting)
	if err != nil {
		return err
	}
	if err := ip.SetDiffMethod(method); err != nil {
		return err
	}

	vol := phantomVolume(ellipsoids, radius, voxels)
	iv, err := consistency.NewIntermediateVol(mgr, vol)
	if err != nil {
		return err
	}
	if err := iv.SetDiffMethod(method); err != nil {
		return err
	}

	gen := consistency.NewIntermedGen2D3D()
	if err := gen.SetAccuracy(cfg.Sampling.Accuracy); err != nil {
		return err
	}
	if err := gen.SetSubsampleRate(cfg.Sampling.SubsampleRate); err != nil {
		return err
	}

	grid := gridFor(cfg, vol)
	total := len(grid.Azimuths) * len(grid.Polars) * len(grid.Distances)
	fmt.Printf("Building Radon space on a %dx%dx%d grid...\n",
		len(grid.Azimuths), len(grid.Polars), len(grid.Distances))
	bar := pb.StartNew(total)
	iv.SetProgressCallback(func(completed, total int, message string) {
		bar.Set(completed)
	})
	reg, err := registration.NewFromIntermediates(mgr, ip, iv, gen, float32(cfg.Sampling.StepSize), grid, metric)
	if err != nil {
		return err
	}
	bar.Finish()

	initial := registration.Pose{Ry: 0.02, Tx: 5, Ty: -3}
	before, err := reg.Cost(initial)
	if err != nil {
		return err
	}
	atRest, err := reg.Cost(registration.Pose{})
	if err != nil {
		return err
	}
	fmt.Printf("Cost at perturbed pose: %.6f\n", before)
	fmt.Printf("Cost at true pose:      %.6f\n", atRest)

	fmt.Printf("Searching pose over %d reference samples...\n", reg.Reference().Len())
	result, err := reg.Run(initial, cfg.Registration.MaxEvaluations)
	if err != nil {
		return err
	}

	fmt.Printf("\nRecovered pose after %d evaluations (%v):\n", result.Evaluations, result.Status)
	fmt.Printf("  rotation  (rad): %+.5f %+.5f %+.5f\n", result.Pose.Rx, result.Pose.Ry, result.Pose.Rz)
	fmt.Printf("  translation (mm): %+.3f %+.3f %+.3f\n", result.Pose.Tx, result.Pose.Ty, result.Pose.Tz)
	fmt.Printf("  inconsistency: %.6f (started at %.6f)\n", result.Score, before)
	return nil
}
