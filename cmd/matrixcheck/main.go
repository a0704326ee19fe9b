// Command matrixcheck is an operator tool for working on matrix files
// without touching the databases: check that a file parses and validates
// with a given parser, dump the text-box layout of a PDF to find the
// coordinates a new parser needs, or list and download archived copies
// from the S3 bucket.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/nexbill/matrix-ingest/internal/config"
	"github.com/nexbill/matrix-ingest/internal/domain"
	"github.com/nexbill/matrix-ingest/internal/parser"
	"github.com/nexbill/matrix-ingest/internal/preprocess"
	"github.com/nexbill/matrix-ingest/internal/reader"
	"github.com/nexbill/matrix-ingest/internal/storage"
	"github.com/nexbill/matrix-ingest/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "matrixcheck",
		Usage: "Check parsing of matrix quote files without database access",
		Commands: []*cli.Command{
			{
				Name:      "file",
				Usage:     "Parse and validate a matrix file with the named parser",
				ArgsUsage: "PARSER_NAME FILE_PATH",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Print every extracted quote",
					},
					&cli.StringFlag{
						Name:  "soffice",
						Usage: "Path to the soffice executable for converted formats",
						Value: "soffice",
					},
					&cli.StringFlag{
						Name:  "pattern",
						Usage: "Attachment pattern for formats that read the date from the file name",
						Value: `.*(?P<date>\d\d\d\d[-_]\d\d[-_]\d\d).*`,
					},
				},
				Action: checkFile,
			},
			{
				Name:      "pdf-layout",
				Usage:     "Dump the text boxes of a PDF with their coordinates",
				ArgsUsage: "FILE_PATH",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "page",
						Usage: "Only dump this 1-based page",
					},
				},
				Action: dumpPDFLayout,
			},
			{
				Name:  "archive",
				Usage: "Inspect the S3 archive of processed matrix files",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Usage:   "Path to the INI configuration file",
						Value:   "config.ini",
						EnvVars: []string{"MATRIX_INGEST_CONFIG"},
					},
				},
				Subcommands: []*cli.Command{
					{
						Name:      "ls",
						Usage:     "List archived files, optionally under a key prefix",
						ArgsUsage: "[PREFIX]",
						Action:    listArchive,
					},
					{
						Name:      "get",
						Usage:     "Download an archived file",
						ArgsUsage: "KEY [OUT_PATH]",
						Action:    fetchArchived,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Error().Err(err).Msg("matrixcheck failed")
		os.Exit(1)
	}
}

func checkFile(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("expected PARSER_NAME and FILE_PATH arguments")
	}
	parserName, filePath := c.Args().Get(0), c.Args().Get(1)

	office := preprocess.NewOfficeConverter(
		c.String("soffice"), "xlsx", "xlsx:Calc MS Excel 2007 XML")
	defer office.Close()

	quoteParser, err := parser.ByName(parserName, parser.Env{Office: office})
	if err != nil {
		return err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}

	format := domain.MatrixFormat{AttachmentPattern: c.String("pattern")}
	if err := quoteParser.Load(context.Background(), data, filepath.Base(filePath), format); err != nil {
		return err
	}
	if err := quoteParser.Validate(); err != nil {
		return err
	}
	fmt.Println("validated")

	err = quoteParser.ExtractQuotes(func(q domain.MatrixQuote) error {
		if c.Bool("verbose") {
			fmt.Println(q)
		}
		validator, err := domain.ValidatorFor(q.ServiceType)
		if err != nil {
			return err
		}
		return validator.Validate(&q)
	})
	if err != nil {
		return err
	}

	fmt.Printf("got %d quotes\n", quoteParser.Count())
	return nil
}

func archiveStore(c *cli.Context) (storage.ObjectStorage, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	return storage.NewS3Client(storage.S3Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Bucket:    cfg.S3.Bucket,
		Region:    cfg.S3.Region,
		UseSSL:    cfg.S3.UseSSL,
	})
}

func listArchive(c *cli.Context) error {
	store, err := archiveStore(c)
	if err != nil {
		return err
	}
	objects, err := store.ListObjects(context.Background(), c.Args().Get(0))
	if err != nil {
		return err
	}
	for _, obj := range objects {
		fmt.Printf("%12d  %s\n", obj.Size, obj.Key)
	}
	return nil
}

func fetchArchived(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("expected KEY argument")
	}
	key := c.Args().Get(0)
	outPath := c.Args().Get(1)
	if outPath == "" {
		outPath = filepath.Base(key)
	}

	store, err := archiveStore(c)
	if err != nil {
		return err
	}
	data, err := store.DownloadObject(context.Background(), key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %d bytes to %s\n", len(data), outPath)
	return nil
}

func dumpPDFLayout(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected FILE_PATH argument")
	}
	filePath := c.Args().Get(0)

	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	pdf := reader.NewPDF(0)
	if err := pdf.Load(data, filepath.Base(filePath)); err != nil {
		return err
	}

	for page := 1; page <= pdf.PageCount(); page++ {
		if only := c.Int("page"); only != 0 && page != only {
			continue
		}
		boxes, err := pdf.Boxes(page)
		if err != nil {
			return err
		}
		fmt.Printf("page %d: %d text boxes\n", page, len(boxes))
		for _, box := range boxes {
			fmt.Printf("  y=%8.2f x=%8.2f %q\n", box.Y0, box.X0, box.Text)
		}
	}
	return nil
}
