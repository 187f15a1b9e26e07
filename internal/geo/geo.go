// Package geo holds the coordinate type shared by the client and the
// server, great-circle distance, and the grid cells used for spatial
// bucketing.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EarthRadiusMeters is the mean Earth radius used by Distance.
const EarthRadiusMeters = 6371008.8

var (
	ErrLatitudeOutOfRange  = errors.New("latitude out of range")
	ErrLongitudeOutOfRange = errors.New("longitude out of range")
	ErrRadiusNotPositive   = errors.New("radius must be a positive number of meters")
)

// ValidateRadius is the search radius rule shared by the client index and
// the server: finite and greater than zero.
func ValidateRadius(meters float64) error {
	if math.IsNaN(meters) || math.IsInf(meters, 0) || meters <= 0 {
		return ErrRadiusNotPositive
	}
	return nil
}

// Point is a WGS84 latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate rejects NaN/Inf, |lat| > 90 and |lng| > 180.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.Abs(p.Lat) > 90 {
		return ErrLatitudeOutOfRange
	}
	if math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) || math.Abs(p.Lng) > 180 {
		return ErrLongitudeOutOfRange
	}
	return nil
}

func (p Point) String() string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'f', -1, 64)
}

// ParsePoint parses "lat,lng".
func ParsePoint(s string) (Point, error) {
	latS, lngS, ok := strings.Cut(s, ",")
	if !ok {
		return Point{}, fmt.Errorf("invalid point %q: want lat,lng", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latS), 64)
	if err != nil {
		return Point{}, fmt.Errorf("invalid latitude %q: %w", latS, err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(lngS), 64)
	if err != nil {
		return Point{}, fmt.Errorf("invalid longitude %q: %w", lngS, err)
	}
	p := Point{Lat: lat, Lng: lng}
	if err := p.Validate(); err != nil {
		return Point{}, err
	}
	return p, nil
}

// Distance returns the haversine distance between a and b in meters.
func Distance(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := lat2 - lat1
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Box is an axis-aligned lat/lng rectangle. When it crosses the
// antimeridian MinLng > MaxLng.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// WrapsAntimeridian reports whether the box spans the ±180° meridian.
func (b Box) WrapsAntimeridian() bool { return b.MinLng > b.MaxLng }

// Contains reports whether p lies in b.
func (b Box) Contains(p Point) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	if b.WrapsAntimeridian() {
		return p.Lng >= b.MinLng || p.Lng <= b.MaxLng
	}
	return p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// BoundingBox returns a box that contains every point within radius meters
// of center. Near the poles it widens to all longitudes.
func BoundingBox(center Point, radius float64) Box {
	dLat := degrees(radius / EarthRadiusMeters)
	b := Box{
		MinLat: math.Max(-90, center.Lat-dLat),
		MaxLat: math.Min(90, center.Lat+dLat),
	}

	if b.MinLat <= -90 || b.MaxLat >= 90 {
		b.MinLng, b.MaxLng = -180, 180
		return b
	}

	cosLat := math.Cos(radians(math.Max(math.Abs(b.MinLat), math.Abs(b.MaxLat))))
	dLng := degrees(radius / (EarthRadiusMeters * cosLat))
	if dLng >= 180 {
		b.MinLng, b.MaxLng = -180, 180
		return b
	}

	b.MinLng = normalizeLng(center.Lng - dLng)
	b.MaxLng = normalizeLng(center.Lng + dLng)
	return b
}

func normalizeLng(lng float64) float64 {
	for lng > 180 {
		lng -= 360
	}
	for lng < -180 {
		lng += 360
	}
	return lng
}

func radians(d float64) float64 { return d * math.Pi / 180 }
func degrees(r float64) float64 { return r * 180 / math.Pi }
