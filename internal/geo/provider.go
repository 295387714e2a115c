// README: Mapping provider abstraction and the Google Maps implementation.
package geo

import (
	"context"
	"fmt"
	"math"
	"strings"

	"googlemaps.github.io/maps"

	"voltmate/internal/types"
)

const metersPerMile = 1609.344

// Leg is one travel leg between two locations.
type Leg struct {
	DistanceMiles   float64
	DurationMinutes int
}

// Provider is the upstream geocoding/routing service. Implementations return
// provider-native errors; retry and caching live in Service.
type Provider interface {
	Geocode(ctx context.Context, postcode string) (types.Point, error)
	Route(ctx context.Context, from, to types.Point) (Leg, error)
	Matrix(ctx context.Context, points []types.Point) ([][]Leg, error)
}

// GoogleProvider calls the Google Maps APIs, restricted to one country so a
// bare outward code cannot resolve to a plausible match overseas.
type GoogleProvider struct {
	client *maps.Client
	region string
}

func NewGoogleProvider(client *maps.Client, region string) *GoogleProvider {
	if region == "" {
		region = "GB"
	}
	return &GoogleProvider{client: client, region: region}
}

func (p *GoogleProvider) Geocode(ctx context.Context, postcode string) (types.Point, error) {
	results, err := p.client.Geocode(ctx, &maps.GeocodingRequest{
		Address:    postcode,
		Region:     strings.ToLower(p.region),
		Components: map[maps.Component]string{maps.ComponentCountry: p.region},
	})
	if err != nil {
		return types.Point{}, fmt.Errorf("geocode request: %w", err)
	}
	if len(results) == 0 {
		return types.Point{}, fmt.Errorf("no geocode result for %q", postcode)
	}
	loc := results[0].Geometry.Location
	return types.Point{Lng: loc.Lng, Lat: loc.Lat}, nil
}

func (p *GoogleProvider) Route(ctx context.Context, from, to types.Point) (Leg, error) {
	routes, _, err := p.client.Directions(ctx, &maps.DirectionsRequest{
		Origin:      latLng(from),
		Destination: latLng(to),
		Mode:        maps.TravelModeDriving,
	})
	if err != nil {
		return Leg{}, fmt.Errorf("directions request: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Leg{}, fmt.Errorf("no route found")
	}
	leg := routes[0].Legs[0]
	return Leg{
		DistanceMiles:   float64(leg.Distance.Meters) / metersPerMile,
		DurationMinutes: int(math.Round(leg.Duration.Minutes())),
	}, nil
}

func (p *GoogleProvider) Matrix(ctx context.Context, points []types.Point) ([][]Leg, error) {
	coords := make([]string, len(points))
	for i, pt := range points {
		coords[i] = latLng(pt)
	}
	resp, err := p.client.DistanceMatrix(ctx, &maps.DistanceMatrixRequest{
		Origins:      coords,
		Destinations: coords,
		Mode:         maps.TravelModeDriving,
	})
	if err != nil {
		return nil, fmt.Errorf("distance matrix request: %w", err)
	}
	if len(resp.Rows) != len(points) {
		return nil, fmt.Errorf("distance matrix: got %d rows for %d origins", len(resp.Rows), len(points))
	}
	legs := make([][]Leg, len(points))
	for i, row := range resp.Rows {
		legs[i] = make([]Leg, len(points))
		for j, el := range row.Elements {
			if el.Status != "OK" {
				return nil, fmt.Errorf("distance matrix element %d,%d: %s", i, j, el.Status)
			}
			legs[i][j] = Leg{
				DistanceMiles:   float64(el.Distance.Meters) / metersPerMile,
				DurationMinutes: int(math.Round(el.Duration.Minutes())),
			}
		}
	}
	return legs, nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}

// isRateLimited reports whether err is a provider rate-limit response and
// therefore worth retrying.
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "OVER_QUERY_LIMIT") || strings.Contains(msg, "429")
}
