package phantom

import (
	"math"
	"testing"

	"grangeat/pkg/compute"
	"grangeat/pkg/geometry"
	"grangeat/pkg/radon"
)

// frontalCamera looks from (0, 0, -500) toward +z with the principal
// point at the detector center.
func frontalCamera(width, height int, focal float64) geometry.ProjectionMatrix {
	k := [3][3]float64{
		{focal, 0, float64(width-1) / 2},
		{0, focal, float64(height-1) / 2},
		{0, 0, 1},
	}
	r := [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	return geometry.ComposeProjection(k, r, [3]float64{0, 0, 500})
}

func sphere(radius, density float64) []Ellipsoid {
	return []Ellipsoid{{
		SemiAxes: [3]float64{radius, radius, radius},
		Density:  density,
	}}
}

func TestDensityNesting(t *testing.T) {
	head := DefaultEllipsoids(100)
	// The origin lies inside the skull and the brain but outside every
	// smaller structure: 1.0 - 0.8.
	if got := Density(head, 0, 0, 0); math.Abs(got-0.2) > 1e-12 {
		t.Errorf("density at origin = %v, want 0.2", got)
	}
	// Far outside everything.
	if got := Density(head, 300, 0, 0); got != 0 {
		t.Errorf("density outside phantom = %v, want 0", got)
	}
}

func TestVoxelizeSphereVolume(t *testing.T) {
	const radius = 10.0
	const density = 2.0
	vol := Voxelize(sphere(radius, density), 33, 1)

	var sum float64
	for _, v := range vol.Data {
		sum += float64(v)
	}
	want := 4.0 / 3.0 * math.Pi * radius * radius * radius * density
	if math.Abs(sum-want) > 0.03*want {
		t.Errorf("voxelized sphere mass = %v, want %v within 3%%", sum, want)
	}
}

func TestProjectSphereChords(t *testing.T) {
	const radius = 10.0
	proj, err := ProjectEllipsoids(sphere(radius, 1), frontalCamera(64, 64, 1000), 64, 64, [2]float32{1, 1})
	if err != nil {
		t.Fatalf("ProjectEllipsoids failed: %v", err)
	}

	// The ray nearest the principal point crosses almost the full
	// diameter.
	center := float64(proj.At(31, 31))
	if math.Abs(center-2*radius) > 0.01*2*radius {
		t.Errorf("central chord = %v, want about %v", center, 2*radius)
	}
	// A corner ray passes far outside the sphere.
	if corner := proj.At(0, 0); corner != 0 {
		t.Errorf("corner chord = %v, want 0", corner)
	}
}

func TestPlaneIntegralSphereClosedForm(t *testing.T) {
	const radius = 10.0
	const density = 3.0
	ph := sphere(radius, density)

	cases := []struct {
		name string
		c    geometry.Radon3DCoord
		want float64
	}{
		{"central axial", geometry.Radon3DCoord{Polar: 0, Dist: 0}, math.Pi * radius * radius * density},
		{"central oblique", geometry.Radon3DCoord{Azimuth: 0.7, Polar: 1.1, Dist: 0}, math.Pi * radius * radius * density},
		{"half radius", geometry.Radon3DCoord{Polar: math.Pi / 2, Dist: radius / 2}, math.Pi * (radius*radius - radius*radius/4) * density},
		{"outside", geometry.Radon3DCoord{Polar: 1, Dist: radius + 1}, 0},
	}
	for _, tc := range cases {
		got := PlaneIntegralEllipsoids(ph, tc.c)
		if math.Abs(got-tc.want) > 1e-3*(math.Abs(tc.want)+1) {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIntermediateMatchesDifferenceQuotient(t *testing.T) {
	head := DefaultEllipsoids(50)
	coord := geometry.Radon3DCoord{Azimuth: 0.4, Polar: 1.3, Dist: 7}
	const h = 0.05

	up := PlaneIntegralEllipsoids(head, geometry.Radon3DCoord{Azimuth: coord.Azimuth, Polar: coord.Polar, Dist: coord.Dist + h})
	down := PlaneIntegralEllipsoids(head, geometry.Radon3DCoord{Azimuth: coord.Azimuth, Polar: coord.Polar, Dist: coord.Dist - h})
	quotient := (up - down) / (2 * h)

	got := IntermediateEllipsoids(head, coord)
	if math.Abs(got-quotient) > 1e-2*(math.Abs(quotient)+1) {
		t.Errorf("analytic derivative %v, difference quotient %v", got, quotient)
	}
}

func TestVoxelizedPlaneIntegralMatchesAnalytic(t *testing.T) {
	mgr, err := compute.NewManager(2)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	defer mgr.Close()

	const radius = 8.0
	ph := sphere(radius, 1)
	transform, err := radon.NewTransform3D(mgr, Voxelize(ph, 41, 0.5))
	if err != nil {
		t.Fatalf("NewTransform3D failed: %v", err)
	}

	coord := geometry.Radon3DCoord{Azimuth: 0.3, Polar: 1.2, Dist: 2}
	got, err := transform.PlaneIntegral(coord)
	if err != nil {
		t.Fatalf("PlaneIntegral failed: %v", err)
	}
	want := PlaneIntegralEllipsoids(ph, coord)
	if math.Abs(got-want) > 0.05*want {
		t.Errorf("discretized integral %v, analytic %v", got, want)
	}
}
