package store

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/essay-qa/pkg/component/database"
	"github.com/kart-io/essay-qa/pkg/component/milvus"
	storeopts "github.com/kart-io/essay-qa/pkg/options/store"
)

// New 按 store.driver 创建文章存储并完成建表。
func New(ctx context.Context, opts *storeopts.Options) (DocumentStore, error) {
	switch opts.Driver {
	case storeopts.DriverMemory:
		if opts.Corpus == "" {
			return NewMemoryStore(), nil
		}
		s, err := LoadMemoryStore(opts.Corpus)
		if err != nil {
			return nil, err
		}
		n, _ := s.Count(ctx)
		logger.Infow("memory store loaded", "corpus", opts.Corpus, "essays", n)
		return s, nil

	case storeopts.DriverSQLite, storeopts.DriverMySQL, storeopts.DriverPostgres:
		db, err := database.Open(ctx, opts)
		if err != nil {
			return nil, err
		}
		s := NewSQLStore(db, opts.Driver, opts.Table, opts.Dimension)
		if err := s.Migrate(ctx); err != nil {
			_ = database.Close(db)
			return nil, err
		}
		logger.Infow("sql store ready", "driver", opts.Driver, "table", opts.Table)
		return s, nil

	case storeopts.DriverMilvus:
		client, err := milvus.New(ctx, opts.Milvus)
		if err != nil {
			return nil, err
		}
		s := NewMilvusStore(client, opts.Milvus.Collection, opts.Milvus.Dimension)
		if err := s.EnsureCollection(ctx); err != nil {
			_ = client.Close(ctx)
			return nil, err
		}
		logger.Infow("milvus store ready", "address", opts.Milvus.Address, "collection", opts.Milvus.Collection)
		return s, nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", opts.Driver)
	}
}
