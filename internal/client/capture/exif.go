package capture

import (
	"fmt"
	"os"

	"github.com/dmitrijs2005/geocapsule/internal/geo"
	"github.com/rwcarlsen/goexif/exif"
)

// GPSFromFile reads the GPS position from the EXIF block of a JPEG or TIFF.
func GPSFromFile(path string) (geo.Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return geo.Point{}, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return geo.Point{}, fmt.Errorf("failed to decode exif: %w", err)
	}

	lat, lng, err := x.LatLong()
	if err != nil {
		return geo.Point{}, fmt.Errorf("no gps tags: %w", err)
	}

	p := geo.Point{Lat: lat, Lng: lng}
	if err := p.Validate(); err != nil {
		return geo.Point{}, err
	}
	return p, nil
}
