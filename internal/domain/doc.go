// Package domain models weather observations ingested from upstream feeds and
// the rules for turning them into deduplicated storage batches.
//
// # Upstream Feeds
//
// Three payload shapes are recognized, always by structure rather than by an
// out-of-band type flag, because all of them arrive through the same fetch:
//
//	IPMA (Portuguese station network, observations.json):
//	  {"2024-05-01T10:00": {"1210702": {"temperatura": 17.2, ...}, ...}, ...}
//	  Top-level keys are observation timestamps shared by every station below them.
//	  Station values may be null when a station did not report. Numeric fields use
//	  -99 as the "not measured" sentinel.
//
//	Weatherbit (current conditions):
//	  {"data": [{"ob_time": "2024-05-01 10:00", "temp": 17.2, "rh": 60, ...}], "count": 1}
//	  Timestamps come from ob_time, falling back to the epoch ts field.
//
//	GeoNames ICAO (METAR via weatherIcaoJSON):
//	  {"weatherObservation": {"ICAO": "LPPR", "datetime": "2024-05-01 10:00:00", ...}}
//	  The fetcher requests one code at a time, so a run usually sees a list of these
//	  objects, each tagged with "_requested_icao". Error responses carry "status"
//	  instead of "weatherObservation" and are skipped.
//
// # Field Mapping
//
//	canonical      IPMA               Weatherbit   GeoNames ICAO
//	temperature    temperatura        temp         temperature
//	humidity       humidade           rh           humidity
//	wind_speed     intensidadeVento   wind_spd     windSpeed
//	pressure       pressao            pres         hectoPascAltimeter | seaLevelPressure | pressure
//	precipitation  precAcumulada      precip       precipitation
//	place          station id (+name) city_name    ICAO
//	lat/lon        station metadata   lat/lon      lat/lng
//
// Missing, empty, non-numeric and NaN values map to nil, never to zero.
//
// # Deduplication
//
// Records are grouped into batches keyed by (source, dedup key). The dedup key
// is the exact observation instant, the UTC calendar day, or a constant when
// deduplication is disabled. Within a batch, place is the discriminator: a
// record is written only when its place is not already stored for the key.
package domain
