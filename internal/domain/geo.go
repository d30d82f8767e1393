package domain

import (
	"math"
	"time"
)

const (
	// EarthRadiusKm is the mean radius of the spherical Earth model.
	EarthRadiusKm = 6371.0

	// KmPerDegree converts great-circle kilometers to degrees of latitude.
	KmPerDegree = 111.191

	// NearThreshold is the metric at or below which two solutions are near.
	NearThreshold = math.Sqrt2
)

// SurfaceDistanceKm is the haversine great-circle distance between two points.
func SurfaceDistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := lat1 * math.Pi / 180
	p2 := lat2 * math.Pi / 180
	dp := p2 - p1
	dl := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dp/2)*math.Sin(dp/2) + math.Cos(p1)*math.Cos(p2)*math.Sin(dl/2)*math.Sin(dl/2)
	a = math.Min(1, math.Max(0, a))
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(a))
}

// Metric is the normalized Euclidean proximity of a distance and time
// separation against their windows.
func Metric(distanceKm float64, dt, distanceWindowKm float64, timeWindow time.Duration) float64 {
	nd := distanceKm / distanceWindowKm
	nt := math.Abs(dt) / timeWindow.Seconds()
	return math.Sqrt(nd*nd + nt*nt)
}

// NormalizeLongitude maps lon into [-180, 180]. Values already in range are unchanged.
func NormalizeLongitude(lon float64) float64 {
	if lon >= -180 && lon <= 180 {
		return lon
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

// Box is a latitude/longitude rectangle with MinLon <= MaxLon.
type Box struct {
	MinLat, MinLon float64
	MaxLat, MaxLon float64
}

// SearchBoxes returns the rectangles covering every point within distanceKm
// of (lat, lon). A window that crosses the antimeridian is split in two, and a
// window that reaches a pole spans every longitude.
func SearchBoxes(lat, lon, distanceKm float64) []Box {
	dlat := distanceKm / KmPerDegree
	minLat := math.Max(lat-dlat, -90)
	maxLat := math.Min(lat+dlat, 90)

	full := []Box{{MinLat: minLat, MinLon: -180, MaxLat: maxLat, MaxLon: 180}}
	if lat+dlat >= 90 || lat-dlat <= -90 {
		return full
	}
	dlon := dlat / math.Cos(lat*math.Pi/180)
	if dlon >= 180 {
		return full
	}

	lon = NormalizeLongitude(lon)
	minLon := lon - dlon
	maxLon := lon + dlon
	switch {
	case minLon < -180:
		return []Box{
			{MinLat: minLat, MinLon: minLon + 360, MaxLat: maxLat, MaxLon: 180},
			{MinLat: minLat, MinLon: -180, MaxLat: maxLat, MaxLon: maxLon},
		}
	case maxLon > 180:
		return []Box{
			{MinLat: minLat, MinLon: minLon, MaxLat: maxLat, MaxLon: 180},
			{MinLat: minLat, MinLon: -180, MaxLat: maxLat, MaxLon: maxLon - 360},
		}
	}
	return []Box{{MinLat: minLat, MinLon: minLon, MaxLat: maxLat, MaxLon: maxLon}}
}

// MomentMagnitude converts a scalar moment in newton-meters to Mw, rounded to 0.1.
func MomentMagnitude(m0 float64) float64 {
	mw := (2.0 / 3.0) * (math.Log10(m0) - 9.1)
	return math.Round(mw*10) / 10
}
