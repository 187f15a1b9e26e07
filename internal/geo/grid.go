package geo

import "math"

// Cell identifies one square of a lat/lng grid of a fixed size in degrees.
type Cell struct {
	Row int
	Col int
}

// CellOf returns the grid cell containing p.
func CellOf(p Point, sizeDeg float64) Cell {
	return Cell{
		Row: int(math.Floor((p.Lat + 90) / sizeDeg)),
		Col: int(math.Floor((p.Lng + 180) / sizeDeg)),
	}
}

// CellsAround returns every cell that intersects the bounding box of the
// circle (center, radius). Columns wrap at the antimeridian.
func CellsAround(center Point, radius, sizeDeg float64) []Cell {
	box := BoundingBox(center, radius)
	cols := int(math.Ceil(360 / sizeDeg))

	minRow := CellOf(Point{Lat: box.MinLat, Lng: 0}, sizeDeg).Row
	maxRow := CellOf(Point{Lat: box.MaxLat, Lng: 0}, sizeDeg).Row

	var colRanges [][2]int
	minCol := CellOf(Point{Lat: 0, Lng: box.MinLng}, sizeDeg).Col
	maxCol := CellOf(Point{Lat: 0, Lng: box.MaxLng}, sizeDeg).Col
	if box.WrapsAntimeridian() {
		colRanges = [][2]int{{minCol, cols}, {0, maxCol}}
	} else {
		colRanges = [][2]int{{minCol, maxCol}}
	}

	var cells []Cell
	for row := minRow; row <= maxRow; row++ {
		for _, r := range colRanges {
			for col := r[0]; col <= r[1]; col++ {
				cells = append(cells, Cell{Row: row, Col: col})
			}
		}
	}
	return cells
}
