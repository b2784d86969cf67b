// Package geo provides small lon/lat helpers shared by the scene generators:
// great-circle distance, local metric offsets and ring centroids.
package geo

import "math"

const earthRadiusMeters = 6371000

// LonLat is a geographic position in degrees, ordered the way the renderer
// expects it ([lon, lat]).
type LonLat struct {
	Lon float64 `json:"lon" yaml:"lon"`
	Lat float64 `json:"lat" yaml:"lat"`
}

// Pt is shorthand for constructing a LonLat.
func Pt(lon, lat float64) LonLat {
	return LonLat{Lon: lon, Lat: lat}
}

// MarshalArray returns the position as a [lon, lat] pair.
func (p LonLat) MarshalArray() [2]float64 {
	return [2]float64{p.Lon, p.Lat}
}

// Distance returns the haversine distance between two positions in meters.
func Distance(a, b LonLat) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// Offset moves p by the given east/north displacement in meters using an
// equirectangular approximation, which is accurate at city scale.
func Offset(p LonLat, eastMeters, northMeters float64) LonLat {
	dLat := northMeters / earthRadiusMeters * 180 / math.Pi
	dLon := eastMeters / (earthRadiusMeters * math.Cos(p.Lat*math.Pi/180)) * 180 / math.Pi
	return LonLat{Lon: p.Lon + dLon, Lat: p.Lat + dLat}
}

// Polar returns the point at the given distance (meters) and angle
// (radians, counter-clockwise from east) from the origin.
func Polar(origin LonLat, distanceMeters, angle float64) LonLat {
	return Offset(origin, distanceMeters*math.Cos(angle), distanceMeters*math.Sin(angle))
}

// Lerp linearly interpolates between two positions.
func Lerp(a, b LonLat, t float64) LonLat {
	return LonLat{
		Lon: a.Lon + (b.Lon-a.Lon)*t,
		Lat: a.Lat + (b.Lat-a.Lat)*t,
	}
}

// Ring is an ordered polygon ring. The closing vertex is implicit.
type Ring []LonLat

// SignedArea returns the planar signed area of the ring in square degrees.
// Positive for counter-clockwise rings.
func (r Ring) SignedArea() float64 {
	n := len(r)
	if n < 3 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += r[i].Lon*r[j].Lat - r[j].Lon*r[i].Lat
	}
	return sum / 2
}

// Centroid returns the area centroid of the ring. Degenerate rings fall back
// to the vertex average.
func (r Ring) Centroid() LonLat {
	n := len(r)
	if n == 0 {
		return LonLat{}
	}
	a := r.SignedArea()
	if n < 3 || math.Abs(a) < 1e-12 {
		return r.average()
	}
	cx, cy := 0.0, 0.0
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		cross := r[i].Lon*r[j].Lat - r[j].Lon*r[i].Lat
		cx += (r[i].Lon + r[j].Lon) * cross
		cy += (r[i].Lat + r[j].Lat) * cross
	}
	f := 1.0 / (6.0 * a)
	return LonLat{Lon: cx * f, Lat: cy * f}
}

func (r Ring) average() LonLat {
	sum := LonLat{}
	for _, v := range r {
		sum.Lon += v.Lon
		sum.Lat += v.Lat
	}
	return LonLat{Lon: sum.Lon / float64(len(r)), Lat: sum.Lat / float64(len(r))}
}

// Closed returns a copy of the ring with the first vertex repeated at the end,
// the form GeoJSON and most renderers expect.
func (r Ring) Closed() []LonLat {
	if len(r) == 0 {
		return nil
	}
	out := make([]LonLat, 0, len(r)+1)
	out = append(out, r...)
	if r[0] != r[len(r)-1] {
		out = append(out, r[0])
	}
	return out
}
