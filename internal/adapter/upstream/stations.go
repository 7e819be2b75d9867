package upstream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/couchcryptid/meteo-ingest-service/internal/domain"
)

// stationCollection is the IPMA stations.json GeoJSON document.
type stationCollection struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"` // [lon, lat]
		} `json:"geometry"`
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

// FetchStations downloads IPMA station metadata.
func (c *Client) FetchStations(ctx context.Context, rawURL string) ([]domain.Station, error) {
	body, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return decodeStations(body)
}

func decodeStations(body []byte) ([]domain.Station, error) {
	var doc stationCollection
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode stations: %w", err)
	}

	stations := make([]domain.Station, 0, len(doc.Features))
	for _, f := range doc.Features {
		id := firstString(f.Properties, "idEstacao", "id", "stationId")
		if id == "" {
			continue
		}
		s := domain.Station{
			ID:   id,
			Name: firstString(f.Properties, "localEstacao", "nome", "name"),
		}
		if len(f.Geometry.Coordinates) >= 2 {
			lon, lat := f.Geometry.Coordinates[0], f.Geometry.Coordinates[1]
			s.Longitude, s.Latitude = &lon, &lat
		}
		stations = append(stations, s)
	}
	return stations, nil
}

// firstString returns the first key holding a string or number, as text.
func firstString(props map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := props[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
