package store

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jogardn/coastal-farmer/internal/config"
)

// Open returns the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, logger *logrus.Logger) (Store, error) {
	switch cfg.Driver {
	case "memory":
		logger.Warn("Using in-memory store, data is lost on restart")
		return NewMemoryStore(), nil
	case "postgres":
		return OpenPostgres(ctx, cfg.PostgresDSN, logger)
	case "mongo":
		return OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
