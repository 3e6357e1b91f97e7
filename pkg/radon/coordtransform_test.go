package radon

import (
	"math"
	"testing"

	"grangeat/pkg/geometry"
)

func testCoords() []geometry.Radon3DCoord {
	return []geometry.Radon3DCoord{
		{Azimuth: 0.3, Polar: 1.1, Dist: 40},
		{Azimuth: -2.1, Polar: 0.6, Dist: -12},
		{Azimuth: 1.7, Polar: 2.2, Dist: 3},
		{Azimuth: -0.4, Polar: 1.9, Dist: 25},
	}
}

func TestCoordTransformIdentity(t *testing.T) {
	m := newTestManager(t, 1)
	coords := testCoords()
	ct, err := NewCoordTransform(m, coords)
	if err != nil {
		t.Fatalf("NewCoordTransform failed: %v", err)
	}
	if ct.Len() != len(coords) {
		t.Fatalf("Len = %d, want %d", ct.Len(), len(coords))
	}

	got, err := ct.TransformToHost(geometry.IdentityHomography())
	if err != nil {
		t.Fatalf("TransformToHost failed: %v", err)
	}
	for i, c := range coords {
		if math.Abs(float64(got[i].Azimuth-c.Azimuth)) > 1e-5 ||
			math.Abs(float64(got[i].Polar-c.Polar)) > 1e-5 ||
			math.Abs(float64(got[i].Dist-c.Dist)) > 1e-3 {
			t.Errorf("identity transform of coord %d = %+v, want %+v", i, got[i], c)
		}
	}
}

func TestCoordTransformMatchesHostMath(t *testing.T) {
	m := newTestManager(t, 1)
	coords := testCoords()
	ct, err := NewCoordTransform(m, coords)
	if err != nil {
		t.Fatalf("NewCoordTransform failed: %v", err)
	}

	h := geometry.HomographyFromRotTrans(geometry.RotationXYZ(0.15, -0.32, 0.48), [3]float64{12, -7, 20})
	got, err := ct.TransformToHost(h)
	if err != nil {
		t.Fatalf("TransformToHost failed: %v", err)
	}
	for i, c := range coords {
		want := h.ApplyToPlane(geometry.PlaneFromRadon3D(c)).Radon3D()
		if math.Abs(float64(got[i].Azimuth-want.Azimuth)) > 1e-4 ||
			math.Abs(float64(got[i].Polar-want.Polar)) > 1e-4 ||
			math.Abs(float64(got[i].Dist-want.Dist)) > 1e-2 {
			t.Errorf("device transform of coord %d = %+v, want %+v", i, got[i], want)
		}
	}
}

func TestCoordTransformTranslationShiftsDistance(t *testing.T) {
	m := newTestManager(t, 1)
	// The plane z = 10.
	ct, err := NewCoordTransform(m, []geometry.Radon3DCoord{{Azimuth: 0, Polar: 0, Dist: 10}})
	if err != nil {
		t.Fatalf("NewCoordTransform failed: %v", err)
	}

	// Planes move with points moving through the inverse of h: passing a
	// translation by +4 along z moves the plane to z = 6.
	h := geometry.HomographyFromRotTrans(geometry.RotationXYZ(0, 0, 0), [3]float64{0, 0, 4})
	got, err := ct.TransformToHost(h)
	if err != nil {
		t.Fatalf("TransformToHost failed: %v", err)
	}
	if math.Abs(float64(got[0].Polar)) > 1e-5 {
		t.Errorf("polar angle changed under pure translation: %v", got[0].Polar)
	}
	if math.Abs(float64(got[0].Dist-6)) > 1e-4 {
		t.Errorf("translated plane distance = %v, want 6", got[0].Dist)
	}
}

func TestCoordTransformFromPlanes(t *testing.T) {
	m := newTestManager(t, 1)
	planes := make([]geometry.HomCoordPlane, 0, 3)
	for _, c := range testCoords()[:3] {
		p := geometry.PlaneFromRadon3D(c)
		// Scale the homogeneous vector; ResetPlanes must normalize it.
		p.Nx *= 2
		p.Ny *= 2
		p.Nz *= 2
		p.MinusD *= 2
		planes = append(planes, p)
	}
	ct, err := NewCoordTransformPlanes(m, planes)
	if err != nil {
		t.Fatalf("NewCoordTransformPlanes failed: %v", err)
	}
	got, err := ct.TransformToHost(geometry.IdentityHomography())
	if err != nil {
		t.Fatalf("TransformToHost failed: %v", err)
	}
	for i, c := range testCoords()[:3] {
		if math.Abs(float64(got[i].Dist-c.Dist)) > 1e-3 {
			t.Errorf("plane %d distance = %v, want %v", i, got[i].Dist, c.Dist)
		}
	}

	if _, err := NewCoordTransformPlanes(m, []geometry.HomCoordPlane{{}}); err == nil {
		t.Error("expected error for zero-normal plane")
	}
}

func TestResetCoordsResizes(t *testing.T) {
	m := newTestManager(t, 1)
	ct, err := NewCoordTransform(m, testCoords())
	if err != nil {
		t.Fatalf("NewCoordTransform failed: %v", err)
	}

	replacement := []geometry.Radon3DCoord{
		{Azimuth: 0.9, Polar: 0.8, Dist: 5},
		{Azimuth: -1.1, Polar: 2.4, Dist: -8},
	}
	if err := ct.ResetCoords(replacement); err != nil {
		t.Fatalf("ResetCoords failed: %v", err)
	}
	if ct.Len() != len(replacement) {
		t.Fatalf("Len after reset = %d, want %d", ct.Len(), len(replacement))
	}
	got, err := ct.TransformToHost(geometry.IdentityHomography())
	if err != nil {
		t.Fatalf("TransformToHost failed: %v", err)
	}
	for i, c := range replacement {
		if math.Abs(float64(got[i].Dist-c.Dist)) > 1e-3 {
			t.Errorf("coord %d distance = %v, want %v", i, got[i].Dist, c.Dist)
		}
	}

	if err := ct.ResetCoords(nil); err == nil {
		t.Error("expected error for empty coordinate set")
	}
}
