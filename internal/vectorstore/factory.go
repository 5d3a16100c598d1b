// Package vectorstore selects the vector index backend for a pipeline build.
package vectorstore

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"ragpipe/internal/config"
	"ragpipe/internal/domain"
	"ragpipe/internal/vectorstore/memory"
	"ragpipe/internal/vectorstore/pgstore"
	"ragpipe/internal/vectorstore/qdrant"
)

// Factory creates a fresh, build-scoped store for every pipeline build.
type Factory struct {
	cfg    config.VectorStoreConfig
	logger *zap.Logger

	mu sync.Mutex
	db *gorm.DB
}

func NewFactory(cfg config.VectorStoreConfig, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{cfg: cfg, logger: logger.Named("vectorstore")}
}

// Kind reports the configured backend.
func (f *Factory) Kind() string {
	if f.cfg.Type == "" {
		return "memory"
	}
	return f.cfg.Type
}

// New returns a store whose contents belong to buildID only.
func (f *Factory) New(buildID string) (domain.VectorStore, error) {
	switch f.Kind() {
	case "memory":
		return memory.NewStorage(), nil
	case "qdrant":
		q := f.cfg.Qdrant
		if q == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		prefix := q.CollectionPrefix
		if prefix == "" {
			prefix = "ragpipe"
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     os.Getenv(q.APIKeyEnv),
			Collection: prefix + "_" + strings.ReplaceAll(buildID, "-", ""),
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		}), nil
	case "pgvector":
		p := f.cfg.Pgvector
		if p == nil {
			return nil, fmt.Errorf("pgvector config missing")
		}
		db, err := f.openDB(os.Getenv(p.DSNEnv))
		if err != nil {
			return nil, err
		}
		return pgstore.NewStorage(db, p.Table, buildID), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", f.cfg.Type)
	}
}

func (f *Factory) openDB(dsn string) (*gorm.DB, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.db != nil {
		return f.db, nil
	}
	db, err := pgstore.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector connect: %w", err)
	}
	f.logger.Info("connected to postgres vector store")
	f.db = db
	return db, nil
}

// Close releases the shared database connection, if any.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.db == nil {
		return nil
	}
	sqlDB, err := f.db.DB()
	if err != nil {
		return err
	}
	f.db = nil
	return sqlDB.Close()
}
