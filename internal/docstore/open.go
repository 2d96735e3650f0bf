package docstore

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

type Options struct {
	Driver      string
	MongoURI    string
	MongoDB     string
	PostgresDSN string
}

// Open connects the store selected by o.Driver.
func Open(ctx context.Context, o Options, log zerolog.Logger) (Store, error) {
	switch o.Driver {
	case DriverMemory:
		return NewMemoryStore(WithMemoryLogger(log)), nil
	case DriverMongo:
		return ConnectMongo(ctx, o.MongoURI, o.MongoDB, log)
	case DriverPostgres:
		return ConnectPostgres(ctx, o.PostgresDSN, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", o.Driver)
	}
}
