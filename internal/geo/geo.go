package geo

import "math"

const earthRadiusM = 6371000.0

// LatLng is a coordinate pair in degrees. It is not validated.
type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

func toRad(d float64) float64 { return d * math.Pi / 180 }

// Bearing returns the initial great-circle bearing from a to b in degrees,
// clockwise from north, normalized to [0, 360). Identical points yield 0.
func Bearing(a, b LatLng) float64 {
	if a == b {
		return 0
	}
	lat1, lat2 := toRad(a.Lat), toRad(b.Lat)
	dLng := toRad(b.Lng - a.Lng)
	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	brng := math.Mod(math.Atan2(y, x)*180/math.Pi+360, 360)
	if brng >= 360 {
		brng = 0
	}
	return brng
}

// Haversine distance in meters
func Haversine(a, b LatLng) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}

// PathLength sums the haversine lengths of consecutive segments.
func PathLength(pts []LatLng) float64 {
	sum := 0.0
	for i := 1; i < len(pts); i++ {
		sum += Haversine(pts[i-1], pts[i])
	}
	return sum
}

// Clone returns a copy of pts; nil stays nil.
func Clone(pts []LatLng) []LatLng {
	if pts == nil {
		return nil
	}
	out := make([]LatLng, len(pts))
	copy(out, pts)
	return out
}
