// Package store provides document store options.
package store

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/essay-qa/pkg/options"
	milvusopts "github.com/kart-io/essay-qa/pkg/options/milvus"
)

// Supported store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMilvus   = "milvus"
)

var drivers = []string{DriverMemory, DriverSQLite, DriverMySQL, DriverPostgres, DriverMilvus}

var _ options.IOptions = (*Options)(nil)

// Options selects and configures the essay store backend.
type Options struct {
	// Driver is one of memory, sqlite, mysql, postgres, milvus.
	Driver string `json:"driver" mapstructure:"driver"`

	// DSN is the database connection string for the SQL drivers.
	// For sqlite it is a file path or ":memory:".
	DSN string `json:"-" mapstructure:"dsn"`

	// Table holds essays on the SQL drivers.
	Table string `json:"table" mapstructure:"table"`

	// Dimension sizes the pgvector column on postgres.
	Dimension int `json:"dimension" mapstructure:"dimension"`

	// Corpus is a JSON file of embedded essays loaded by the memory driver.
	Corpus string `json:"corpus" mapstructure:"corpus"`

	// MaxOpenConns bounds the SQL connection pool.
	MaxOpenConns int `json:"max-open-conns" mapstructure:"max-open-conns"`

	// ConnMaxLifetime recycles SQL connections.
	ConnMaxLifetime time.Duration `json:"conn-max-lifetime" mapstructure:"conn-max-lifetime"`

	// LogLevel is the gorm log level: 1 silent, 2 error, 3 warn, 4 info.
	LogLevel int `json:"log-level" mapstructure:"log-level"`

	// Milvus configures the milvus driver.
	Milvus *milvusopts.Options `json:"milvus" mapstructure:"milvus"`
}

// NewOptions creates store options with an in-process sqlite default.
func NewOptions() *Options {
	return &Options{
		Driver:          DriverSQLite,
		DSN:             "essayqa.db",
		Table:           "essays",
		Dimension:       1536,
		MaxOpenConns:    10,
		ConnMaxLifetime: time.Hour,
		LogLevel:        1,
		Milvus:          milvusopts.NewOptions(),
	}
}

// AddFlags adds store flags.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "store."
	fs.StringVar(&o.Driver, p+"driver", o.Driver, "Essay store driver (memory|sqlite|mysql|postgres|milvus).")
	fs.StringVar(&o.DSN, p+"dsn", o.DSN, "Database DSN for sqlite/mysql/postgres.")
	fs.StringVar(&o.Table, p+"table", o.Table, "Table holding essays.")
	fs.IntVar(&o.Dimension, p+"dimension", o.Dimension, "Embedding dimension of the postgres vector column.")
	fs.StringVar(&o.Corpus, p+"corpus", o.Corpus, "Embedded corpus JSON loaded by the memory driver.")
	fs.IntVar(&o.MaxOpenConns, p+"max-open-conns", o.MaxOpenConns, "Maximum open SQL connections.")
	fs.DurationVar(&o.ConnMaxLifetime, p+"conn-max-lifetime", o.ConnMaxLifetime, "Maximum SQL connection lifetime.")
	fs.IntVar(&o.LogLevel, p+"log-level", o.LogLevel, "GORM log level (1 silent, 2 error, 3 warn, 4 info).")
	o.Milvus.AddFlags(fs, options.Join(prefixes...)+"store")
}

// Validate validates the store options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if !slices.Contains(drivers, o.Driver) {
		errs = append(errs, fmt.Errorf("store.driver %q is not one of %v", o.Driver, drivers))
	}
	switch o.Driver {
	case DriverSQLite, DriverMySQL, DriverPostgres:
		if o.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %s", o.Driver))
		}
		if o.Table == "" {
			errs = append(errs, fmt.Errorf("store.table is required"))
		}
		if o.Dimension <= 0 {
			errs = append(errs, fmt.Errorf("store.dimension must be positive"))
		}
	case DriverMemory:
		if o.Corpus == "" {
			errs = append(errs, fmt.Errorf("store.corpus is required for driver memory"))
		}
	case DriverMilvus:
		errs = append(errs, o.Milvus.Validate()...)
	}
	return errs
}
