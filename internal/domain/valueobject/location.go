package valueobject

import "math"

const earthRadiusKm = 6371.0

// Location - координаты места, где находится товар.
type Location struct {
	Latitude  float64
	Longitude float64
}

func (l Location) IsValid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}

// DistanceKm - расстояние по большой окружности (формула гаверсинусов).
func (l Location) DistanceKm(other Location) float64 {
	lat1 := l.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLat := (other.Latitude - l.Latitude) * math.Pi / 180
	dLng := (other.Longitude - l.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}
