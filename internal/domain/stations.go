package domain

import "strings"

const unknownStation = "UNKNOWN_STATION"

// Station is IPMA station metadata used to enrich observations.
type Station struct {
	ID        string
	Name      string
	Latitude  *float64
	Longitude *float64
}

// StationDirectory is a read-only station lookup built once per run and passed
// to the parsers explicitly. The zero value is an empty directory.
type StationDirectory struct {
	stations map[string]Station
	names    map[string]string
}

// NewStationDirectory indexes stations by id. Name overrides (typically from
// IPMA_STATION_NAMES) take precedence over fetched names.
func NewStationDirectory(stations []Station, nameOverrides map[string]string) StationDirectory {
	d := StationDirectory{
		stations: make(map[string]Station, len(stations)),
		names:    make(map[string]string, len(nameOverrides)),
	}
	for _, s := range stations {
		if s.ID == "" {
			continue
		}
		d.stations[s.ID] = s
	}
	for id, name := range nameOverrides {
		d.names[id] = strings.TrimSpace(name)
	}
	return d
}

// Len reports how many stations carry metadata.
func (d StationDirectory) Len() int {
	return len(d.stations)
}

// Lookup returns the station's metadata with any name override applied.
func (d StationDirectory) Lookup(id string) (Station, bool) {
	s, ok := d.stations[id]
	if !ok {
		s = Station{ID: id}
	}
	if name := d.names[id]; name != "" {
		s.Name = name
		ok = true
	}
	s.Name = strings.TrimSpace(s.Name)
	return s, ok
}

// Place builds the dedup place identifier: "<id> - <name>" when a name is
// known, otherwise the bare id.
func (d StationDirectory) Place(id string) string {
	if id == "" {
		return unknownStation
	}
	s, _ := d.Lookup(id)
	if s.Name == "" {
		return id
	}
	return id + " - " + s.Name
}

// ParseStationNames reads "id:name,id:name" pairs. Malformed pairs are ignored.
func ParseStationNames(s string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		id, name, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			continue
		}
		id, name = strings.TrimSpace(id), strings.TrimSpace(name)
		if id != "" && name != "" {
			out[id] = name
		}
	}
	return out
}
