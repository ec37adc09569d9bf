// Package milvus provides the Milvus client constructor and collection helpers.
package milvus

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	milvusopts "github.com/kart-io/essay-qa/pkg/options/milvus"
)

// Client wraps the Milvus SDK client.
type Client struct {
	client *milvusclient.Client
	opts   *milvusopts.Options
}

// New creates a new Milvus client.
func New(ctx context.Context, opts *milvusopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Client{client: c, opts: opts}, nil
}

// Close closes the Milvus client connection.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

// Raw returns the underlying Milvus client.
func (c *Client) Raw() *milvusclient.Client {
	return c.client
}

// CollectionSchema describes a collection keyed by a caller-supplied int64 primary key.
type CollectionSchema struct {
	Name        string
	Description string
	PrimaryKey  string
	VectorField string
	Dimension   int
	Metric      entity.MetricType
	MetaFields  []MetaField
}

// MetaField defines a scalar field in the collection.
type MetaField struct {
	Name     string
	DataType entity.FieldType
	MaxLen   int // VARCHAR only
}

// EnsureCollection creates the collection and its vector index when missing,
// then loads it into memory.
func (c *Client) EnsureCollection(ctx context.Context, schema *CollectionSchema) error {
	exists, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(schema.Name))
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if !exists {
		collSchema := entity.NewSchema().
			WithName(schema.Name).
			WithDescription(schema.Description).
			WithAutoID(false).
			WithField(entity.NewField().
				WithName(schema.PrimaryKey).
				WithDataType(entity.FieldTypeInt64).
				WithIsPrimaryKey(true)).
			WithField(entity.NewField().
				WithName(schema.VectorField).
				WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(schema.Dimension)))

		for _, f := range schema.MetaFields {
			field := entity.NewField().WithName(f.Name).WithDataType(f.DataType)
			if f.DataType == entity.FieldTypeVarChar && f.MaxLen > 0 {
				field.WithMaxLength(int64(f.MaxLen))
			}
			collSchema.WithField(field)
		}

		if err := c.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(schema.Name, collSchema)); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		idx := index.NewIvfFlatIndex(schema.Metric, 128)
		task, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(schema.Name, schema.VectorField, idx))
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		if err := task.Await(ctx); err != nil {
			return fmt.Errorf("failed to wait for index creation: %w", err)
		}
	}

	loadTask, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(schema.Name))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}
	return nil
}

// Flush makes recent writes visible to search.
func (c *Client) Flush(ctx context.Context, collection string) error {
	task, err := c.client.Flush(ctx, milvusclient.NewFlushOption(collection))
	if err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for flush: %w", err)
	}
	return nil
}

// RowCount returns the number of entities in a collection.
func (c *Client) RowCount(ctx context.Context, collection string) (int64, error) {
	stats, err := c.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(collection))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection stats: %w", err)
	}
	if val, ok := stats["row_count"]; ok {
		return strconv.ParseInt(val, 10, 64)
	}
	return 0, nil
}
