// Package geo implements the planar point-in-polygon test used for zone
// resolution. Zone polygons are single simple rings in (lon, lat) order;
// at municipal scale a planar ray cast is accurate enough that no spherical
// correction is applied.
package geo

// Point is a (lon, lat) coordinate pair.
type Point struct {
	Lon float64
	Lat float64
}

// Ring is an ordered sequence of polygon vertices, treated as closed: the
// last vertex connects back to the first whether or not it is repeated.
type Ring []Point

// RingFromCoords builds a Ring from GeoJSON-style [lon, lat] pairs,
// skipping malformed entries.
func RingFromCoords(coords [][]float64) Ring {
	r := make(Ring, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			continue
		}
		r = append(r, Point{Lon: c[0], Lat: c[1]})
	}
	return r
}

// Closed reports whether the ring explicitly repeats its first vertex.
func (r Ring) Closed() bool {
	return len(r) > 1 && r[0] == r[len(r)-1]
}

// Valid reports whether the ring has enough distinct vertices to bound an
// area. Self-intersection is a data-entry invariant, not checked here.
func (r Ring) Valid() bool {
	n := len(r)
	if r.Closed() {
		n--
	}
	return n >= 3
}

// Contains reports whether p lies inside the ring, by even-odd ray casting
// against a horizontal ray extending in +lon. Points exactly on an edge
// follow the crossing parity, which keeps adjacent zones from both claiming
// a shared boundary point.
func (r Ring) Contains(p Point) bool {
	if !r.Valid() {
		return false
	}
	ring := r
	if ring.Closed() {
		ring = ring[:len(ring)-1]
	}

	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := ring[i], ring[j]
		intersects := (a.Lat > p.Lat) != (b.Lat > p.Lat) &&
			p.Lon < (b.Lon-a.Lon)*(p.Lat-a.Lat)/(b.Lat-a.Lat)+a.Lon
		if intersects {
			inside = !inside
		}
	}
	return inside
}
