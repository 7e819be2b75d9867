// Package backend resolves target descriptors to the adapter for their kind.
package backend

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/meteo-ingest-service/internal/adapter/mongostore"
	"github.com/couchcryptid/meteo-ingest-service/internal/adapter/sqlstore"
	"github.com/couchcryptid/meteo-ingest-service/internal/domain"
	"github.com/couchcryptid/meteo-ingest-service/internal/pipeline"
	"github.com/couchcryptid/meteo-ingest-service/internal/registry"
)

type opener func(ctx context.Context, d registry.TargetDescriptor) (pipeline.Store, error)

// Connector opens relational targets through sqlstore and document targets
// through mongostore.
type Connector struct {
	openers map[registry.Kind]opener
}

// NewConnector creates a Connector. The clock stamps ingested_at on document
// targets.
func NewConnector(clock clockwork.Clock) *Connector {
	openSQL := func(ctx context.Context, d registry.TargetDescriptor) (pipeline.Store, error) {
		s, err := sqlstore.Open(ctx, d)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return &Connector{openers: map[registry.Kind]opener{
		registry.KindPostgres: openSQL,
		registry.KindMySQL:    openSQL,
		registry.KindSQLite:   openSQL,
		registry.KindMongo: func(ctx context.Context, d registry.TargetDescriptor) (pipeline.Store, error) {
			s, err := mongostore.Open(ctx, d, clock)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
	}}
}

// Connect opens d. An unsupported kind fails like an unreachable target.
func (c *Connector) Connect(ctx context.Context, d registry.TargetDescriptor) (pipeline.Store, error) {
	open, ok := c.openers[d.Kind]
	if !ok {
		return nil, fmt.Errorf("connect %s: %w: unsupported kind %q", d.Name, domain.ErrConnect, d.Kind)
	}
	return open(ctx, d)
}
