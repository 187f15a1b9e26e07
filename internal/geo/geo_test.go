package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoint_Validate(t *testing.T) {
	tests := []struct {
		name string
		p    Point
		want error
	}{
		{name: "chennai", p: Point{Lat: 13.08, Lng: 80.27}},
		{name: "edges", p: Point{Lat: -90, Lng: 180}},
		{name: "lat too big", p: Point{Lat: 90.0001, Lng: 0}, want: ErrLatitudeOutOfRange},
		{name: "lng too small", p: Point{Lat: 0, Lng: -180.5}, want: ErrLongitudeOutOfRange},
		{name: "nan", p: Point{Lat: math.NaN(), Lng: 0}, want: ErrLatitudeOutOfRange},
		{name: "inf", p: Point{Lat: 0, Lng: math.Inf(1)}, want: ErrLongitudeOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.p.Validate(), tt.want)
		})
	}
}

func TestValidateRadius(t *testing.T) {
	require.NoError(t, ValidateRadius(0.5))
	require.NoError(t, ValidateRadius(20_000_000))
	for _, r := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		assert.ErrorIs(t, ValidateRadius(r), ErrRadiusNotPositive, "radius %v", r)
	}
}

func TestParsePoint(t *testing.T) {
	p, err := ParsePoint(" 13.0843, 80.2707")
	require.NoError(t, err)
	assert.Equal(t, Point{Lat: 13.0843, Lng: 80.2707}, p)
	assert.Equal(t, "13.0843,80.2707", p.String())

	_, err = ParsePoint("13.08")
	require.Error(t, err)
	_, err = ParsePoint("x,1")
	require.Error(t, err)
	_, err = ParsePoint("91,1")
	require.ErrorIs(t, err, ErrLatitudeOutOfRange)
}

func TestDistance(t *testing.T) {
	a := Point{Lat: 13.08, Lng: 80.27}
	assert.InDelta(t, 0, Distance(a, a), 1e-9)

	// one degree of latitude is ~111.2 km
	b := Point{Lat: 14.08, Lng: 80.27}
	assert.InDelta(t, 111195, Distance(a, b), 50)

	// symmetric
	assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)

	// across the antimeridian
	c := Point{Lat: 0, Lng: 179.9}
	d := Point{Lat: 0, Lng: -179.9}
	assert.InDelta(t, 22239, Distance(c, d), 20)
}

func TestBoundingBox_ContainsCircle(t *testing.T) {
	center := Point{Lat: 13.08, Lng: 80.27}
	box := BoundingBox(center, 1000)

	for _, bearing := range []float64{0, 45, 90, 135, 180, 225, 270, 315} {
		p := destination(center, 999, bearing)
		assert.True(t, box.Contains(p), "bearing %v", bearing)
	}
	assert.False(t, box.Contains(Point{Lat: 13.2, Lng: 80.27}))
}

func TestBoundingBox_AntimeridianAndPole(t *testing.T) {
	box := BoundingBox(Point{Lat: 0, Lng: 179.99}, 5000)
	require.True(t, box.WrapsAntimeridian())
	assert.True(t, box.Contains(Point{Lat: 0, Lng: -179.99}))
	assert.False(t, box.Contains(Point{Lat: 0, Lng: 0}))

	polar := BoundingBox(Point{Lat: 89.99, Lng: 10}, 5000)
	assert.Equal(t, -180.0, polar.MinLng)
	assert.Equal(t, 180.0, polar.MaxLng)
}

func TestCellsAround_CoversNeighbours(t *testing.T) {
	const size = 0.01
	center := Point{Lat: 13.08, Lng: 80.27}
	cells := CellsAround(center, 1500, size)

	set := make(map[Cell]bool, len(cells))
	for _, c := range cells {
		set[c] = true
	}
	assert.True(t, set[CellOf(center, size)])
	for _, bearing := range []float64{0, 90, 180, 270} {
		assert.True(t, set[CellOf(destination(center, 1400, bearing), size)], "bearing %v", bearing)
	}
}

func TestCellsAround_WrapsColumns(t *testing.T) {
	const size = 1.0
	cells := CellsAround(Point{Lat: 0, Lng: 179.9}, 50000, size)

	set := make(map[Cell]bool, len(cells))
	for _, c := range cells {
		set[c] = true
	}
	assert.True(t, set[CellOf(Point{Lat: 0, Lng: -179.9}, size)])
}

// destination moves from p by dist meters along bearing (degrees).
func destination(p Point, dist, bearing float64) Point {
	d := dist / EarthRadiusMeters
	br := radians(bearing)
	lat1 := radians(p.Lat)
	lng1 := radians(p.Lng)
	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(br))
	lng2 := lng1 + math.Atan2(math.Sin(br)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))
	return Point{Lat: degrees(lat2), Lng: normalizeLng(degrees(lng2))}
}
