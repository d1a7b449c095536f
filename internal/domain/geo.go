package domain

import "math"

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// ValidCoordinate reports whether lat/lng are within WGS-84 bounds.
func ValidCoordinate(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180 &&
		!math.IsNaN(lat) && !math.IsNaN(lng)
}

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(a, b LatLng) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// BearingDeg returns the initial bearing from a to b in degrees [0,360).
func BearingDeg(a, b LatLng) float64 {
	lat1, lat2 := toRad(a.Lat), toRad(b.Lat)
	dLng := toRad(b.Lng - a.Lng)
	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	return normalizeBearing(toDeg(math.Atan2(y, x)))
}

// Destination moves from p along bearing for distKm and returns the result,
// clamped to valid coordinates.
func Destination(p LatLng, bearingDeg, distKm float64) LatLng {
	if distKm <= 0 {
		return p
	}
	d := distKm / EarthRadiusKm
	brg := toRad(bearingDeg)
	lat1, lng1 := toRad(p.Lat), toRad(p.Lng)
	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) + math.Cos(lat1)*math.Sin(d)*math.Cos(brg))
	lng2 := lng1 + math.Atan2(math.Sin(brg)*math.Sin(d)*math.Cos(lat1), math.Cos(d)-math.Sin(lat1)*math.Sin(lat2))
	return ClampLatLng(LatLng{Lat: toDeg(lat2), Lng: normalizeLng(toDeg(lng2))})
}

// ClampLatLng forces a coordinate into WGS-84 bounds.
func ClampLatLng(p LatLng) LatLng {
	return LatLng{
		Lat: math.Max(-90, math.Min(90, p.Lat)),
		Lng: math.Max(-180, math.Min(180, p.Lng)),
	}
}

// Interpolate returns the point a fraction t of the way from a to b along a
// straight line in degree space. Adequate for the short hops fusion makes.
func Interpolate(a, b LatLng, t float64) LatLng {
	return LatLng{Lat: a.Lat + (b.Lat-a.Lat)*t, Lng: a.Lng + (b.Lng-a.Lng)*t}
}

var compassPoints = [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// Compass converts a bearing to an 8-point compass label.
func Compass(bearingDeg float64) string {
	idx := int(math.Round(normalizeBearing(bearingDeg)/45)) % len(compassPoints)
	return compassPoints[idx]
}

// CompassBearing converts an 8-point compass label back to degrees.
func CompassBearing(label string) (float64, bool) {
	for i, p := range compassPoints {
		if p == label {
			return float64(i) * 45, true
		}
	}
	return 0, false
}

// GridCell returns the south-west corner of the cell of size deg containing
// the point.
func GridCell(lat, lng, deg float64) (float64, float64) {
	return math.Floor(lat/deg) * deg, math.Floor(lng/deg) * deg
}

func toRad(d float64) float64 { return d * math.Pi / 180 }
func toDeg(r float64) float64 { return r * 180 / math.Pi }

func normalizeBearing(b float64) float64 {
	b = math.Mod(b, 360)
	if b < 0 {
		b += 360
	}
	return b
}

func normalizeLng(l float64) float64 {
	for l > 180 {
		l -= 360
	}
	for l < -180 {
		l += 360
	}
	return l
}
