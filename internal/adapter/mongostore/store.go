// Package mongostore implements the document backend on the MongoDB driver.
package mongostore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/couchcryptid/meteo-ingest-service/internal/domain"
	"github.com/couchcryptid/meteo-ingest-service/internal/registry"
)

const disconnectTimeout = 5 * time.Second

// collection is the subset of *mongo.Collection the store uses.
type collection interface {
	Distinct(ctx context.Context, fieldName string, filter interface{}, opts ...*options.DistinctOptions) ([]interface{}, error)
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
}

// document is the stored shape of one observation.
type document struct {
	Source        string    `bson:"source"`
	ObservedAt    time.Time `bson:"observed_at"`
	Temperature   *float64  `bson:"temperature"`
	Humidity      *float64  `bson:"humidity"`
	WindSpeed     *float64  `bson:"wind_speed"`
	Pressure      *float64  `bson:"pressure"`
	Precipitation *float64  `bson:"precipitation"`
	Place         string    `bson:"place"`
	Latitude      *float64  `bson:"latitude"`
	Longitude     *float64  `bson:"longitude"`
	IngestedAt    time.Time `bson:"ingested_at"`
}

// Store writes observations to one MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   collection
	clock  clockwork.Clock

	closeOnce sync.Once
}

// Open connects and pings the deployment. Failures wrap domain.ErrConnect.
func Open(ctx context.Context, d registry.TargetDescriptor, clock clockwork.Clock) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(d.URI))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w: %w", d.Name, domain.ErrConnect, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping %s: %w: %w", d.Name, domain.ErrConnect, err)
	}

	s := newStore(client.Database(d.Database).Collection(d.Collection), clock)
	s.client = client
	return s, nil
}

func newStore(coll collection, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{coll: coll, clock: clock}
}

// ExistingPlaces returns the distinct places stored for source at key.
func (s *Store) ExistingPlaces(ctx context.Context, source string, key domain.DedupKey) (map[string]struct{}, error) {
	places := make(map[string]struct{})
	if key.Granularity == domain.GranularityNone {
		return places, nil
	}

	values, err := s.coll.Distinct(ctx, "place", existenceFilter(source, key))
	if err != nil {
		return nil, fmt.Errorf("distinct places: %w", err)
	}
	for _, v := range values {
		if p, ok := v.(string); ok {
			places[p] = struct{}{}
		}
	}
	return places, nil
}

func existenceFilter(source string, key domain.DedupKey) bson.D {
	from, to := key.Window()
	if key.Granularity == domain.GranularityDate {
		return bson.D{
			{Key: "source", Value: source},
			{Key: "observed_at", Value: bson.D{{Key: "$gte", Value: from}, {Key: "$lt", Value: to}}},
		}
	}
	return bson.D{{Key: "source", Value: source}, {Key: "observed_at", Value: from}}
}

// InsertMany performs an unordered bulk insert so one rejected document does
// not stop its siblings. Any write error is reported as domain.ErrInsert.
func (s *Store) InsertMany(ctx context.Context, records []domain.Observation) error {
	if len(records) == 0 {
		return nil
	}

	ingestedAt := s.clock.Now().UTC()
	docs := make([]interface{}, len(records))
	for i, r := range records {
		docs[i] = toDocument(r, ingestedAt)
	}

	if _, err := s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false)); err != nil {
		return fmt.Errorf("insert many: %w: %w", domain.ErrInsert, err)
	}
	return nil
}

func toDocument(r domain.Observation, ingestedAt time.Time) document {
	return document{
		Source:        r.Source,
		ObservedAt:    r.ObservedAt.UTC(),
		Temperature:   r.Temperature,
		Humidity:      r.Humidity,
		WindSpeed:     r.WindSpeed,
		Pressure:      r.Pressure,
		Precipitation: r.Precipitation,
		Place:         r.Place,
		Latitude:      r.Latitude,
		Longitude:     r.Longitude,
		IngestedAt:    ingestedAt,
	}
}

// Close disconnects the client once.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.client == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		err = s.client.Disconnect(ctx)
	})
	return err
}
