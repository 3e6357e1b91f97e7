package geometry

import (
	"math"
	"testing"
)

// testCamera returns a realistic cone-beam geometry: 1000 px focal length,
// principal point near the detector center, a mild off-axis rotation and a
// source roughly 500 mm from the iso-center.
func testCamera() ([3][3]float64, [3][3]float64, [3]float64, ProjectionMatrix) {
	k := [3][3]float64{
		{1000, 0, 255.5},
		{0, 1000, 191.5},
		{0, 0, 1},
	}
	r := RotationXYZ(0.1, -0.2, 0.3)
	t := [3]float64{10, -5, 500}
	return k, r, t, ComposeProjection(k, r, t)
}

func TestSamplingRangeLinspace(t *testing.T) {
	r := NewSamplingRange(-2, 2)
	samples := r.Linspace(5)
	want := []float32{-2, -1, 0, 1, 2}
	if len(samples) != len(want) {
		t.Fatalf("Linspace returned %d samples, want %d", len(samples), len(want))
	}
	for i := range want {
		if math.Abs(float64(samples[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d = %v, want %v", i, samples[i], want[i])
		}
	}
	if got := r.Spacing(5); math.Abs(float64(got-1)) > 1e-6 {
		t.Errorf("Spacing(5) = %v, want 1", got)
	}
	if single := r.Linspace(1); len(single) != 1 || single[0] != 0 {
		t.Errorf("Linspace(1) = %v, want [0]", single)
	}
}

func TestRadon3DPlaneRoundTrip(t *testing.T) {
	coords := []Radon3DCoord{
		{Azimuth: 0.3, Polar: 1.1, Dist: 42},
		{Azimuth: -2.5, Polar: 0.4, Dist: -17},
		{Azimuth: 1.9, Polar: 2.8, Dist: 0},
	}
	for _, c := range coords {
		plane := PlaneFromRadon3D(c)
		back := plane.Radon3D()
		if math.Abs(float64(back.Azimuth-c.Azimuth)) > 1e-5 {
			t.Errorf("azimuth round trip: got %v, want %v", back.Azimuth, c.Azimuth)
		}
		if math.Abs(float64(back.Polar-c.Polar)) > 1e-5 {
			t.Errorf("polar round trip: got %v, want %v", back.Polar, c.Polar)
		}
		if math.Abs(float64(back.Dist-c.Dist)) > 1e-4 {
			t.Errorf("distance round trip: got %v, want %v", back.Dist, c.Dist)
		}
	}
}

func TestRadon2DPixelLineRoundTrip(t *testing.T) {
	const ox, oy = 127.5, 95.5
	const sx, sy = 0.8, 1.2
	coords := []Radon2DCoord{
		{Angle: 0.7, Dist: 12.5},
		{Angle: -1.2, Dist: -30},
		{Angle: 2.9, Dist: 0.25},
	}
	for _, c := range coords {
		a, b, cc := PixelLineFromRadon2D(c, ox, oy, sx, sy)
		back, ok := Radon2DFromPixelLine(a, b, cc, ox, oy, sx, sy)
		if !ok {
			t.Fatalf("line for %+v reported as degenerate", c)
		}
		// (angle, dist) and (angle+pi, -dist) denote the same line.
		dAngle := math.Abs(float64(back.Angle - c.Angle))
		dDist := math.Abs(float64(back.Dist - c.Dist))
		if dAngle > 1e-5 && math.Abs(dAngle-math.Pi) > 1e-5 {
			t.Errorf("angle round trip: got %v, want %v", back.Angle, c.Angle)
		}
		if dAngle > 1e-5 {
			dDist = math.Abs(float64(back.Dist + c.Dist))
		}
		if dDist > 1e-4 {
			t.Errorf("distance round trip: got %v, want %v", back.Dist, c.Dist)
		}
	}
}

func TestProjectionDecompose(t *testing.T) {
	k, r, tr, p := testCamera()
	gotK, gotR, gotT, err := p.Decompose()
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(gotK[i][j]-k[i][j]) > 1e-6*(1+math.Abs(k[i][j])) {
				t.Errorf("K[%d][%d] = %v, want %v", i, j, gotK[i][j], k[i][j])
			}
			if math.Abs(gotR[i][j]-r[i][j]) > 1e-9 {
				t.Errorf("R[%d][%d] = %v, want %v", i, j, gotR[i][j], r[i][j])
			}
		}
		if math.Abs(gotT[i]-tr[i]) > 1e-6 {
			t.Errorf("t[%d] = %v, want %v", i, gotT[i], tr[i])
		}
	}
}

func TestSourcePositionProjectsToZero(t *testing.T) {
	_, _, _, p := testCamera()
	c, err := p.SourcePosition()
	if err != nil {
		t.Fatalf("SourcePosition failed: %v", err)
	}
	// P * [c; 1] must be the zero vector.
	for i := 0; i < 3; i++ {
		h := p[i][0]*c[0] + p[i][1]*c[1] + p[i][2]*c[2] + p[i][3]
		if math.Abs(h) > 1e-6 {
			t.Errorf("P*[c;1] component %d = %v, want 0", i, h)
		}
	}
}

func TestProjectPointDepth(t *testing.T) {
	_, _, _, p := testCamera()
	c, err := p.SourcePosition()
	if err != nil {
		t.Fatalf("SourcePosition failed: %v", err)
	}
	ray, err := p.PrincipalRay()
	if err != nil {
		t.Fatalf("PrincipalRay failed: %v", err)
	}
	// A point 300 mm down the principal ray has depth 300 and projects to
	// the principal point.
	x := c[0] + 300*ray[0]
	y := c[1] + 300*ray[1]
	z := c[2] + 300*ray[2]
	u, v, depth, err := p.ProjectPoint(x, y, z)
	if err != nil {
		t.Fatalf("ProjectPoint failed: %v", err)
	}
	if math.Abs(depth-300) > 1e-6 {
		t.Errorf("depth = %v, want 300", depth)
	}
	if math.Abs(u-255.5) > 1e-6 || math.Abs(v-191.5) > 1e-6 {
		t.Errorf("principal ray projects to (%v, %v), want (255.5, 191.5)", u, v)
	}
}

func TestMagnificationMatchesFocalOverDepth(t *testing.T) {
	_, _, _, p := testCamera()
	mag, err := p.Magnification(0, 0, 0)
	if err != nil {
		t.Fatalf("Magnification failed: %v", err)
	}
	_, _, depth, err := p.ProjectPoint(0, 0, 0)
	if err != nil {
		t.Fatalf("ProjectPoint failed: %v", err)
	}
	want := 1000 / depth
	if math.Abs(mag-want) > 1e-9*(1+math.Abs(want)) {
		t.Errorf("Magnification = %v, want %v", mag, want)
	}
}

func TestPlaneImageLineContainsProjections(t *testing.T) {
	_, _, _, p := testCamera()
	c, err := p.SourcePosition()
	if err != nil {
		t.Fatalf("SourcePosition failed: %v", err)
	}

	// A plane through the source spanned by two directions.
	n := [3]float64{0.3, -0.5, 0.81}
	norm := math.Sqrt(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])
	for i := range n {
		n[i] /= norm
	}
	d := n[0]*c[0] + n[1]*c[1] + n[2]*c[2]
	plane := HomCoordPlane{Nx: float32(n[0]), Ny: float32(n[1]), Nz: float32(n[2]), MinusD: float32(-d)}

	a, b, cc, err := PlaneImageLine(p, plane)
	if err != nil {
		t.Fatalf("PlaneImageLine failed: %v", err)
	}

	e1 := PerpendicularTo(n)
	e2 := cross3(n, e1)
	for _, span := range [][2]float64{{120, 0}, {0, 80}, {-60, 45}} {
		x := c[0] + span[0]*e1[0] + span[1]*e2[0]
		y := c[1] + span[0]*e1[1] + span[1]*e2[1]
		z := c[2] + span[0]*e1[2] + span[1]*e2[2]
		u, v, _, err := p.ProjectPoint(x, y, z)
		if err != nil {
			t.Fatalf("ProjectPoint failed: %v", err)
		}
		if res := a*u + b*v + cc; math.Abs(res) > 1e-3 {
			t.Errorf("projected plane point off the image line by %v", res)
		}
	}

	// Backprojecting the image line recovers the plane.
	back, err := BackprojectLine(p, a, b, cc)
	if err != nil {
		t.Fatalf("BackprojectLine failed: %v", err)
	}
	if dist := PlaneDistance(back, c[0], c[1], c[2]); math.Abs(dist) > 1e-2 {
		t.Errorf("backprojected plane misses the source by %v", dist)
	}
	x := c[0] + 200*e1[0]
	y := c[1] + 200*e1[1]
	z := c[2] + 200*e1[2]
	if dist := PlaneDistance(back, x, y, z); math.Abs(dist) > 1e-2 {
		t.Errorf("backprojected plane misses an in-plane point by %v", dist)
	}
}

func TestPlanePencilContainsBothPoints(t *testing.T) {
	p1 := [3]float64{100, 0, 50}
	p2 := [3]float64{-30, 40, 10}
	planes, err := PlanePencil(p1, p2, 8)
	if err != nil {
		t.Fatalf("PlanePencil failed: %v", err)
	}
	if len(planes) != 8 {
		t.Fatalf("got %d planes, want 8", len(planes))
	}
	for i, pl := range planes {
		norm := math.Sqrt(float64(pl.Nx*pl.Nx + pl.Ny*pl.Ny + pl.Nz*pl.Nz))
		if math.Abs(norm-1) > 1e-5 {
			t.Errorf("plane %d normal has length %v, want 1", i, norm)
		}
		if d := PlaneDistance(pl, p1[0], p1[1], p1[2]); math.Abs(d) > 1e-3 {
			t.Errorf("plane %d misses first point by %v", i, d)
		}
		if d := PlaneDistance(pl, p2[0], p2[1], p2[2]); math.Abs(d) > 1e-3 {
			t.Errorf("plane %d misses second point by %v", i, d)
		}
	}

	if _, err := PlanePencil(p1, p1, 8); err == nil {
		t.Error("expected error for coinciding points, got nil")
	}
}

func TestRotationAroundAxis(t *testing.T) {
	rot := RotationAroundAxis([3]float64{0, 0, 1}, math.Pi/2)
	got := mulMatVec3(rot, [3]float64{1, 0, 0})
	want := [3]float64{0, 1, 0}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("rotated[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestHomographyPlaneConsistency(t *testing.T) {
	h := HomographyFromRotTrans(RotationXYZ(0.2, 0.1, -0.3), [3]float64{5, -2, 8})
	inv := h.InverseRigid()

	// Mul with the inverse gives the identity.
	id := h.Mul(inv)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(id[i][j]-want) > 1e-12 {
				t.Errorf("(h*h^-1)[%d][%d] = %v, want %v", i, j, id[i][j], want)
			}
		}
	}

	// ApplyToPlane(h) moves planes consistently with points moving by h^-1.
	plane := PlaneFromRadon3D(Radon3DCoord{Azimuth: 0.4, Polar: 1.2, Dist: 35})
	n := [3]float64{float64(plane.Nx), float64(plane.Ny), float64(plane.Nz)}
	base := [3]float64{35 * n[0], 35 * n[1], 35 * n[2]}
	e1 := PerpendicularTo(n)

	moved := h.ApplyToPlane(plane)
	for _, span := range []float64{0, 75, -140} {
		x := base[0] + span*e1[0]
		y := base[1] + span*e1[1]
		z := base[2] + span*e1[2]
		mx, my, mz := inv.ApplyToPoint(x, y, z)
		if d := PlaneDistance(moved, mx, my, mz); math.Abs(d) > 1e-3 {
			t.Errorf("transformed plane misses transformed point by %v", d)
		}
	}
}
