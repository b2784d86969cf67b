package geo_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/urbanscope/urbanscope/pkg/geo"
)

func TestDistance(t *testing.T) {
	// New Delhi to Noida, roughly 17 km.
	d := geo.Distance(geo.Pt(77.2090, 28.6139), geo.Pt(77.3910, 28.5355))
	assert.InDelta(t, 19500, d, 1500)

	assert.Zero(t, geo.Distance(geo.Pt(77.2, 28.6), geo.Pt(77.2, 28.6)))
}

func TestOffset_RoundTripsDistance(t *testing.T) {
	origin := geo.Pt(77.2090, 28.6139)

	east := geo.Offset(origin, 1000, 0)
	assert.InDelta(t, 1000, geo.Distance(origin, east), 5)
	assert.Equal(t, origin.Lat, east.Lat)

	north := geo.Offset(origin, 0, 2500)
	assert.InDelta(t, 2500, geo.Distance(origin, north), 5)
}

func TestPolar(t *testing.T) {
	origin := geo.Pt(77.2090, 28.6139)
	p := geo.Polar(origin, 3000, math.Pi/2)

	assert.InDelta(t, origin.Lon, p.Lon, 1e-9)
	assert.Greater(t, p.Lat, origin.Lat)
	assert.InDelta(t, 3000, geo.Distance(origin, p), 5)
}

func TestRing_Centroid(t *testing.T) {
	tests := []struct {
		name string
		ring geo.Ring
		want geo.LonLat
	}{
		{
			name: "unit square",
			ring: geo.Ring{geo.Pt(0, 0), geo.Pt(1, 0), geo.Pt(1, 1), geo.Pt(0, 1)},
			want: geo.Pt(0.5, 0.5),
		},
		{
			name: "clockwise square",
			ring: geo.Ring{geo.Pt(0, 0), geo.Pt(0, 2), geo.Pt(2, 2), geo.Pt(2, 0)},
			want: geo.Pt(1, 1),
		},
		{
			name: "degenerate line falls back to average",
			ring: geo.Ring{geo.Pt(0, 0), geo.Pt(1, 1), geo.Pt(2, 2)},
			want: geo.Pt(1, 1),
		},
		{
			name: "empty",
			ring: nil,
			want: geo.LonLat{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.ring.Centroid()
			assert.InDelta(t, tt.want.Lon, got.Lon, 1e-9)
			assert.InDelta(t, tt.want.Lat, got.Lat, 1e-9)
		})
	}
}

func TestRing_Closed(t *testing.T) {
	ring := geo.Ring{geo.Pt(0, 0), geo.Pt(1, 0), geo.Pt(1, 1)}
	closed := ring.Closed()

	assert.Len(t, closed, 4)
	assert.Equal(t, closed[0], closed[3])
	assert.Len(t, ring, 3, "original ring must not be modified")
}
