package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/thanos-io/objstore/providers/filesystem"

	"github.com/blazingsql/engine/pkg/engine"
	util_log "github.com/blazingsql/engine/pkg/util/log"
)

// Config is the configuration of blazing-exec.
type Config struct {
	Log     util_log.Config   `yaml:"log"`
	Engine  engine.Config     `yaml:"engine"`
	Storage filesystem.Config `yaml:"storage"`

	// Tables lists the tables plans can read.
	Tables []TableConfig `yaml:"tables"`
	// Options are the query configuration options.
	Options map[string]string `yaml:"options"`

	PlanFile     string `yaml:"plan_file"`
	PrintVersion bool   `yaml:"-"`
}

// TableConfig describes a table stored as files.
type TableConfig struct {
	Name   string   `yaml:"name"`
	Format string   `yaml:"format"`
	Files  []string `yaml:"files"`

	// Header and Columns apply to CSV tables. Parquet tables read their
	// schema from their first file when Columns is empty.
	Header  bool           `yaml:"header"`
	Columns []ColumnConfig `yaml:"columns"`
}

// ColumnConfig is a column of a table.
type ColumnConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

const (
	formatCSV     = "csv"
	formatParquet = "parquet"
)

// RegisterFlags implements cfg.Registerer.
func (c *Config) RegisterFlags(f *flag.FlagSet) {
	c.Log.RegisterFlags(f)
	c.Engine.RegisterFlags(f)
	f.StringVar(&c.Storage.Directory, "storage.directory", ".", "Directory table files are read from.")
	f.StringVar(&c.PlanFile, "plan.file", "", "File holding the physical plan to execute.")
	f.BoolVar(&c.PrintVersion, "version", false, "Print version and exit.")
}

// Validate checks c for invalid values.
func (c *Config) Validate() error {
	errs := []error{c.Log.Validate(), c.Engine.Validate()}
	if c.PlanFile == "" {
		errs = append(errs, errors.New("plan file is required"))
	}

	seen := make(map[string]struct{}, len(c.Tables))
	for i, t := range c.Tables {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("table %d has no name", i))
			continue
		}
		if _, ok := seen[t.Name]; ok {
			errs = append(errs, fmt.Errorf("table %s is defined twice", t.Name))
		}
		seen[t.Name] = struct{}{}

		switch t.Format {
		case formatCSV:
			if len(t.Columns) == 0 {
				errs = append(errs, fmt.Errorf("csv table %s has no columns", t.Name))
			}
		case formatParquet:
		default:
			errs = append(errs, fmt.Errorf("table %s has unsupported format %q", t.Name, t.Format))
		}
		if len(t.Files) == 0 {
			errs = append(errs, fmt.Errorf("table %s has no files", t.Name))
		}
		for _, col := range t.Columns {
			if _, err := arrowType(col.Type); err != nil {
				errs = append(errs, fmt.Errorf("table %s column %s: %w", t.Name, col.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// schema returns the Arrow schema of the configured columns, or nil if
// there are none.
func (t TableConfig) schema() (*arrow.Schema, error) {
	if len(t.Columns) == 0 {
		return nil, nil
	}
	fields := make([]arrow.Field, len(t.Columns))
	for i, col := range t.Columns {
		dt, err := arrowType(col.Type)
		if err != nil {
			return nil, err
		}
		fields[i] = arrow.Field{Name: col.Name, Type: dt, Nullable: true}
	}
	return arrow.NewSchema(fields, nil), nil
}

func arrowType(name string) (arrow.DataType, error) {
	switch strings.ToLower(name) {
	case "bigint", "int64":
		return arrow.PrimitiveTypes.Int64, nil
	case "int", "integer", "int32":
		return arrow.PrimitiveTypes.Int32, nil
	case "double", "float64":
		return arrow.PrimitiveTypes.Float64, nil
	case "float", "float32":
		return arrow.PrimitiveTypes.Float32, nil
	case "varchar", "string":
		return arrow.BinaryTypes.String, nil
	case "boolean", "bool":
		return arrow.FixedWidthTypes.Boolean, nil
	case "date", "date32":
		return arrow.FixedWidthTypes.Date32, nil
	default:
		return nil, fmt.Errorf("unsupported type %q", name)
	}
}
