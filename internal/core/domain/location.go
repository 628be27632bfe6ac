package domain

import (
	"errors"
	"math"
	"strings"
)

var (
	ErrInvalidCoordinate = errors.New("invalid coordinate (latitude must be -90..90, longitude -180..180)")
	ErrInvalidRadius     = errors.New("location radius cannot be negative")
	ErrLocationNameEmpty = errors.New("location name cannot be empty")
)

const (
	LocationHome    = "home"
	LocationOffice  = "office"
	LocationUnknown = "unknown"

	earthRadiusMeters = 6371000.0
	minMatchRadius    = 1.0
)

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return ErrInvalidCoordinate
	}
	if c.Latitude < -90 || c.Latitude > 90 || c.Longitude < -180 || c.Longitude > 180 {
		return ErrInvalidCoordinate
	}
	return nil
}

// DistanceTo returns the great-circle distance in meters (haversine).
func (c Coordinate) DistanceTo(other Coordinate) float64 {
	lat1 := c.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLat := (other.Latitude - c.Latitude) * math.Pi / 180
	dLon := (other.Longitude - c.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	a = math.Min(1, math.Max(0, a))

	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}

// Location is a saved place. Category is either a built-in (home, office)
// or any user-defined identifier.
type Location struct {
	ID           string     `json:"id" toml:"id"`
	Name         string     `json:"name" toml:"name"`
	Category     string     `json:"category" toml:"category"`
	Coordinate   Coordinate `json:"coordinate" toml:"coordinate"`
	RadiusMeters float64    `json:"radius_meters" toml:"radius_meters"`
}

func (l Location) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return ErrLocationNameEmpty
	}
	if l.RadiusMeters < 0 || math.IsNaN(l.RadiusMeters) {
		return ErrInvalidRadius
	}
	return l.Coordinate.Validate()
}

// Contains reports whether p lies inside the location's geofence. Radii below
// one meter are widened to one meter.
func (l Location) Contains(p Coordinate) bool {
	radius := math.Max(l.RadiusMeters, minMatchRadius)
	return l.Coordinate.DistanceTo(p) <= radius
}

func (l Location) category() string {
	if strings.TrimSpace(l.Category) == "" {
		return LocationUnknown
	}
	return l.Category
}
