// Package polyline encodes and decodes Google's polyline format and samples
// positions along a path.
// The polyline algorithm is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"math"

	"github.com/urbanscope/urbanscope/pkg/geo"
)

// Decode decodes a polyline-encoded string into positions.
// The format uses a precision of 5 decimal places and stores latitude first.
func Decode(encoded string) []geo.LonLat {
	if encoded == "" {
		return nil
	}

	var coords []geo.LonLat
	index := 0
	lat := 0
	lon := 0

	for index < len(encoded) {
		latDelta, newIndex := decodeValue(encoded, index)
		index = newIndex
		lat += latDelta

		if index >= len(encoded) {
			// Truncated input: a latitude without its longitude.
			break
		}

		lonDelta, newIndex := decodeValue(encoded, index)
		index = newIndex
		lon += lonDelta

		coords = append(coords, geo.LonLat{
			Lon: float64(lon) / 1e5,
			Lat: float64(lat) / 1e5,
		})
	}

	return coords
}

// decodeValue decodes a single value from the polyline at the given index.
// Returns the decoded delta value and the new index position.
func decodeValue(encoded string, index int) (int, int) {
	shift := 0
	result := 0

	for index < len(encoded) {
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index
	}
	return result >> 1, index
}

// Encode encodes positions into a polyline string.
func Encode(coords []geo.LonLat) string {
	if len(coords) == 0 {
		return ""
	}

	encoded := make([]byte, 0, len(coords)*4)
	prevLat := 0
	prevLon := 0

	for _, coord := range coords {
		lat := int(math.Round(coord.Lat * 1e5))
		lon := int(math.Round(coord.Lon * 1e5))

		encoded = encodeValue(encoded, lat-prevLat)
		encoded = encodeValue(encoded, lon-prevLon)

		prevLat = lat
		prevLon = lon
	}

	return string(encoded)
}

func encodeValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	buf = append(buf, byte(value)+63)

	return buf
}

// Length returns the total path length in meters.
func Length(coords []geo.LonLat) float64 {
	if len(coords) < 2 {
		return 0
	}

	var total float64
	for i := 1; i < len(coords); i++ {
		total += geo.Distance(coords[i-1], coords[i])
	}
	return total
}

// Station is a sampled position along a path together with its distance
// from the start and the local heading of the segment it lies on.
type Station struct {
	Position geo.LonLat
	// Along is the distance from the path start in meters.
	Along float64
	// Heading is the segment direction in radians, counter-clockwise from east.
	Heading float64
}

// Sample returns stations spaced approximately intervalMeters apart along
// the path. The first and last vertices are always included.
func Sample(coords []geo.LonLat, intervalMeters float64) []Station {
	if len(coords) == 0 {
		return nil
	}
	if len(coords) == 1 || intervalMeters <= 0 {
		stations := make([]Station, 0, len(coords))
		along := 0.0
		for i, c := range coords {
			if i > 0 {
				along += geo.Distance(coords[i-1], c)
			}
			stations = append(stations, Station{Position: c, Along: along, Heading: headingAt(coords, i)})
		}
		return stations
	}

	sampled := []Station{{Position: coords[0], Heading: heading(coords[0], coords[1])}}
	accumulated := 0.0
	travelled := 0.0

	for i := 1; i < len(coords); i++ {
		segStart := coords[i-1]
		segEnd := coords[i]
		segmentDist := geo.Distance(segStart, segEnd)
		h := heading(segStart, segEnd)
		consumed := 0.0

		for segmentDist > 0 && accumulated+(segmentDist-consumed) >= intervalMeters {
			consumed += intervalMeters - accumulated
			fraction := consumed / segmentDist
			sampled = append(sampled, Station{
				Position: geo.Lerp(segStart, segEnd, fraction),
				Along:    travelled + consumed,
				Heading:  h,
			})
			accumulated = 0
		}

		accumulated += segmentDist - consumed
		travelled += segmentDist
	}

	last := coords[len(coords)-1]
	if sampled[len(sampled)-1].Position != last {
		sampled = append(sampled, Station{
			Position: last,
			Along:    travelled,
			Heading:  heading(coords[len(coords)-2], last),
		})
	}

	return sampled
}

// heading returns the planar direction from a to b, correcting longitude for
// latitude so that angles are metric.
func heading(a, b geo.LonLat) float64 {
	dx := (b.Lon - a.Lon) * math.Cos(a.Lat*math.Pi/180)
	dy := b.Lat - a.Lat
	return math.Atan2(dy, dx)
}

func headingAt(coords []geo.LonLat, i int) float64 {
	switch {
	case len(coords) < 2:
		return 0
	case i == len(coords)-1:
		return heading(coords[i-1], coords[i])
	default:
		return heading(coords[i], coords[i+1])
	}
}
