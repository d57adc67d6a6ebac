package domain

import "math"

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Lat float64
	Lng float64
}

// Valid reports whether both components are finite and within range.
func (c Coordinate) Valid() bool {
	return ValidLatitude(c.Lat) && ValidLongitude(c.Lng)
}

func ValidLatitude(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -90 && v <= 90
}

func ValidLongitude(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= -180 && v <= 180
}

// NewCoordinate returns a coordinate pointer, or nil when either component is
// out of range. A nil result means "absent", never zero.
func NewCoordinate(lat, lng float64) *Coordinate {
	c := Coordinate{Lat: lat, Lng: lng}
	if !c.Valid() {
		return nil
	}
	return &c
}
