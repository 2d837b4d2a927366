package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAffineComposeAndInverse(t *testing.T) {
	tr := Translation(5, -3).Compose(Rotation(math.Pi / 6)).Compose(Scale(2, 2))
	inv, ok := tr.Inverse()
	require.True(t, ok)

	p := NewPoint2D(12.5, -4)
	back := inv.Apply(tr.Apply(p))
	assert.InDelta(t, p.X, back.X, 1e-9)
	assert.InDelta(t, p.Y, back.Y, 1e-9)

	_, ok = Scale(0, 1).Inverse()
	assert.False(t, ok)
}

func TestRotationAboutKeepsCenterFixed(t *testing.T) {
	c := NewPoint2D(160, 120)
	q := RotationAbout(0.3, c).Apply(c)
	assert.InDelta(t, c.X, q.X, 1e-9)
	assert.InDelta(t, c.Y, q.Y, 1e-9)
}

func TestHomographyApplyMatchesAffine(t *testing.T) {
	a := Translation(10, 20).Compose(Rotation(0.1))
	h := a.Homography()

	p := NewPoint2D(3, 4)
	got, ok := h.Apply(p)
	require.True(t, ok)
	want := a.Apply(p)
	assert.InDelta(t, want.X, got.X, 1e-12)
	assert.InDelta(t, want.Y, got.Y, 1e-12)
}

func TestHomographyInverse(t *testing.T) {
	h := Homography{
		{1.02, 0.05, 12},
		{-0.04, 0.98, -7},
		{1e-4, -2e-4, 1},
	}
	inv, ok := h.Inverse()
	require.True(t, ok)
	assert.InDelta(t, 1.0, inv[2][2], 1e-12)

	id, ok := h.Mul(inv).Normalize()
	require.True(t, ok)
	assert.True(t, id.AlmostEqual(IdentityHomography(), 1e-9), "got %s", id)

	p := NewPoint2D(100, 50)
	q, ok := h.Apply(p)
	require.True(t, ok)
	r, ok := inv.Apply(q)
	require.True(t, ok)
	assert.InDelta(t, p.X, r.X, 1e-9)
	assert.InDelta(t, p.Y, r.Y, 1e-9)
}

func TestHomographySingular(t *testing.T) {
	h := Homography{{1, 2, 3}, {2, 4, 6}, {0, 0, 1}}
	_, ok := h.Inverse()
	assert.False(t, ok)

	_, ok = Homography{{1, 0, 0}, {0, 1, 0}, {0, 0, 0}}.Normalize()
	assert.False(t, ok)
}

func TestHomographyPointAtInfinity(t *testing.T) {
	h := Homography{{1, 0, 0}, {0, 1, 0}, {1, 0, 0}}
	_, ok := h.Apply(NewPoint2D(0, 5))
	assert.False(t, ok)
}

func TestHomographyFlatIsRowMajor(t *testing.T) {
	h := Homography{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}
	assert.Equal(t, [9]float64{1, 2, 3, 4, 5, 6, 7, 8, 9}, h.Flat())
}

func TestConvexHullSquareWithInterior(t *testing.T) {
	pts := []Point2D{{0, 0}, {10, 0}, {5, 5}, {10, 10}, {0, 10}, {2, 3}}
	hull := ConvexHull(pts)
	require.Len(t, hull, 4)
	assert.InDelta(t, 100.0, PolygonArea(hull), 1e-9)
	assert.True(t, IsConvex(hull))
}

func TestIsConvexRejectsBowtie(t *testing.T) {
	bowtie := []Point2D{{0, 0}, {10, 10}, {10, 0}, {0, 10}}
	assert.False(t, IsConvex(bowtie))
	assert.False(t, IsConvex([]Point2D{{0, 0}, {5, 0}, {10, 0}, {5, 5}}))
}

func TestIntersectPolygonsWithRect(t *testing.T) {
	clip := NewRect(0, 0, 10, 10).Corners()
	subject := NewRect(5, 5, 10, 10).Corners()
	inter := IntersectPolygons(subject, clip)
	require.NotNil(t, inter)
	assert.InDelta(t, 25.0, PolygonArea(inter), 1e-9)

	assert.Nil(t, IntersectPolygons(NewRect(20, 20, 5, 5).Corners(), clip))
}

func TestCollinear(t *testing.T) {
	assert.True(t, Collinear(Point2D{0, 0}, Point2D{1, 1}, Point2D{2, 2}, 1e-3))
	assert.True(t, Collinear(Point2D{0, 0}, Point2D{0, 0}, Point2D{2, 5}, 1e-3))
	assert.False(t, Collinear(Point2D{0, 0}, Point2D{1, 0}, Point2D{0, 1}, 1e-3))
}

func TestCentroidAndBoundingBox(t *testing.T) {
	pts := []Point2D{{0, 0}, {4, 0}, {4, 2}, {0, 2}}
	c := Centroid(pts)
	assert.Equal(t, NewPoint2D(2, 1), c)
	assert.Equal(t, NewRect(0, 0, 4, 2), BoundingBox(pts))
	assert.Equal(t, Point2D{}, Centroid(nil))
}
