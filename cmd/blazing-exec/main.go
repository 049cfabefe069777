// Command blazing-exec runs a physical plan over CSV and Parquet tables and
// prints the result as CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/version"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/filesystem"

	"github.com/blazingsql/engine/pkg/engine"
	"github.com/blazingsql/engine/pkg/engine/querycontext"
	"github.com/blazingsql/engine/pkg/engine/source"
	"github.com/blazingsql/engine/pkg/util/cfg"
	util_log "github.com/blazingsql/engine/pkg/util/log"
)

func main() {
	var config Config
	if err := cfg.Parse(flag.CommandLine, &config, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "failed parsing config: %v\n", err)
		os.Exit(1)
	}
	if config.PrintVersion {
		fmt.Println(version.Print("blazing-exec"))
		os.Exit(0)
	}

	logger := util_log.InitLogger(&config.Log, prometheus.DefaultRegisterer, os.Stderr)
	if err := config.Validate(); err != nil {
		level.Error(logger).Log("msg", "validating config", "err", err)
		os.Exit(1)
	}
	level.Debug(logger).Log("msg", "starting blazing-exec", "version", version.Info())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, config, logger, prometheus.DefaultRegisterer, os.Stdout); err != nil {
		level.Error(logger).Log("msg", "executing plan", "err", err)
		cancel()
		os.Exit(1)
	}
}

// run executes the plan of config and writes its result to w.
func run(ctx context.Context, config Config, logger log.Logger, reg prometheus.Registerer, w io.Writer) error {
	plan, err := os.ReadFile(config.PlanFile)
	if err != nil {
		return fmt.Errorf("reading plan: %w", err)
	}

	bkt, err := filesystem.NewBucket(config.Storage.Directory)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer bkt.Close()

	req, err := newRequest(ctx, config, bkt, string(plan))
	if err != nil {
		return err
	}

	e, err := engine.New(engine.Params{
		Logger:     logger,
		Registerer: reg,
		Config:     config.Engine,
	})
	if err != nil {
		return err
	}
	defer e.Close()

	rec, err := e.ExecutePlan(ctx, req)
	if err != nil {
		return err
	}
	defer rec.Release()

	return writeCSV(w, rec)
}

// newRequest binds the tables scanned by plan to loaders reading from bkt.
func newRequest(ctx context.Context, config Config, bkt objstore.Bucket, plan string) (engine.Request, error) {
	info, err := engine.GetTableScanInfo(plan)
	if err != nil {
		return engine.Request{}, err
	}

	req := engine.Request{
		Context: querycontext.New("", config.Options, querycontext.Membership{}),
		Plan:    plan,
	}
	for _, name := range info.TableNames {
		if slices.Contains(req.TableNames, name) {
			continue
		}
		idx := slices.IndexFunc(config.Tables, func(t TableConfig) bool { return t.Name == name })
		if idx < 0 {
			return engine.Request{}, fmt.Errorf("plan reads unknown table %s", name)
		}

		loader, schema, err := newLoader(ctx, config.Tables[idx], bkt)
		if err != nil {
			return engine.Request{}, fmt.Errorf("table %s: %w", name, err)
		}
		req.Loaders = append(req.Loaders, loader)
		req.Schemas = append(req.Schemas, schema)
		req.TableNames = append(req.TableNames, name)
	}
	return req, nil
}

func newLoader(ctx context.Context, t TableConfig, bkt objstore.Bucket) (source.Loader, source.Schema, error) {
	arrowSchema, err := t.schema()
	if err != nil {
		return nil, source.Schema{}, err
	}
	schema := source.Schema{Arrow: arrowSchema, Files: t.Files}

	switch t.Format {
	case formatCSV:
		return source.NewCSVLoader(bkt, schema, source.CSVOptions{Header: t.Header, NullValues: []string{"NULL"}}), schema, nil
	case formatParquet:
		loader := source.NewParquetLoader(bkt, schema, source.ParquetOptions{})
		if schema.Arrow == nil {
			if schema.Arrow, err = loader.ReadSchema(ctx, t.Files[0]); err != nil {
				return nil, source.Schema{}, err
			}
			loader = source.NewParquetLoader(bkt, schema, source.ParquetOptions{})
		}
		return loader, schema, nil
	default:
		return nil, source.Schema{}, fmt.Errorf("unsupported format %q", t.Format)
	}
}

func writeCSV(w io.Writer, rec arrow.Record) error {
	if rec.NumCols() == 0 {
		return nil
	}
	cw := csv.NewWriter(w, rec.Schema(), csv.WithHeader(true), csv.WithNullWriter("NULL"))
	if err := cw.Write(rec); err != nil {
		return err
	}
	return cw.Flush()
}
