// Command receive-matrix-email processes one supplier matrix email from
// stdin. It is meant to be wired into the mail system as a delivery pipe; a
// non-zero exit makes the mail system bounce the email with the error
// message.
package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/nexbill/matrix-ingest/internal/cache"
	"github.com/nexbill/matrix-ingest/internal/config"
	"github.com/nexbill/matrix-ingest/internal/metrics"
	"github.com/nexbill/matrix-ingest/internal/parser"
	"github.com/nexbill/matrix-ingest/internal/preprocess"
	"github.com/nexbill/matrix-ingest/internal/processor"
	"github.com/nexbill/matrix-ingest/internal/repository"
	"github.com/nexbill/matrix-ingest/internal/storage"
	"github.com/nexbill/matrix-ingest/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "receive-matrix-email",
		Usage: "Read a supplier matrix email from stdin and store its quotes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to the INI configuration file",
				Value:   "config.ini",
				EnvVars: []string{"MATRIX_INGEST_CONFIG"},
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Error().Err(err).Msg("error when processing email")
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.Brokerage.LogLevel)

	// one delivery at a time; concurrent bulk inserts contend badly on the
	// quote table
	unlock, err := acquireLock(cfg.Brokerage.LockFile)
	if err != nil {
		return err
	}
	defer unlock()

	primary, err := repository.NewPrimaryDB(cfg.PrimaryDB.URL)
	if err != nil {
		return err
	}
	defer primary.Close()

	altitude, err := repository.NewAltitudeDB(cfg.AltitudeDB.URL)
	if err != nil {
		return err
	}
	defer altitude.Close()

	store, err := storage.NewS3Client(storage.S3Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Bucket:    cfg.S3.Bucket,
		Region:    cfg.S3.Region,
		UseSSL:    cfg.S3.UseSSL,
	})
	if err != nil {
		return err
	}

	sink, err := metrics.NewStatsD(cfg.StatsD.Host, cfg.StatsD.Port)
	if err != nil {
		// metrics are fire and forget; a missing collector never blocks
		// ingestion
		logger.Log.Warn().Err(err).Msg("statsd unavailable, metrics disabled")
		sink = nil
	}
	defer sink.Close()

	aliasCache, err := cache.NewRateClassAliasCache(cfg.Redis.URL, cfg.Redis.AliasTTL)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("redis unavailable, alias cache disabled")
		aliasCache = cache.NewNoopRateClassAliasCache()
	}

	office := preprocess.NewOfficeConverter(
		cfg.Brokerage.SofficePath, "xlsx", "xlsx:Calc MS Excel 2007 XML")
	defer office.Close()
	tabula := preprocess.NewTabulaConverter(cfg.Brokerage.JavaPath, cfg.Brokerage.TabulaJar)
	defer tabula.Close()

	proc := processor.New(
		processor.NewDAOStore(repository.NewQuoteDAO(primary, altitude)),
		store, sink, aliasCache,
		parser.Env{Office: office, Tabula: tabula},
		cfg.Brokerage.BatchSize)

	return proc.ProcessEmail(context.Background(), os.Stdin)
}

// acquireLock takes an exclusive flock on the configured lock file, blocking
// until any other running delivery finishes.
func acquireLock(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("cannot lock %s: %w", path, err)
	}
	return func() {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}
