// Package processor drives the ingestion of one matrix email: match the
// supplier, resolve a format per file, archive the file, parse it, validate
// the quotes, and insert them into the altitude database.
package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/nexbill/matrix-ingest/internal/cache"
	"github.com/nexbill/matrix-ingest/internal/domain"
	"github.com/nexbill/matrix-ingest/internal/metrics"
	"github.com/nexbill/matrix-ingest/internal/parser"
	"github.com/nexbill/matrix-ingest/internal/repository"
	"github.com/nexbill/matrix-ingest/internal/storage"
	"github.com/nexbill/matrix-ingest/pkg/logger"
)

// DefaultBatchSize is the number of quotes read and inserted at once. Larger
// is faster as long as it does not use too much memory; 1000 is the maximum
// row count some drivers allow per insert statement.
const DefaultBatchSize = 1000

// FileTx is the transaction holding one quote file's inserts. A file either
// commits all of its quotes or none of them.
type FileTx interface {
	InsertQuotes(ctx context.Context, quotes []domain.MatrixQuote) error
	Commit() error
	Rollback()
}

// QuoteStore is the persistence the pipeline needs: supplier and alias
// lookups, and a transaction per quote file.
type QuoteStore interface {
	SupplierForRecipient(ctx context.Context, toAddr string) (*domain.Supplier, *domain.SupplierAlias, error)
	RateClassAliases(ctx context.Context) (map[string][]int64, error)
	BeginFile(ctx context.Context) (FileTx, error)
}

// daoStore adapts *repository.QuoteDAO to QuoteStore; the DAO's BeginFile
// returns the concrete transaction type.
type daoStore struct {
	*repository.QuoteDAO
}

func (s daoStore) BeginFile(ctx context.Context) (FileTx, error) {
	tx, err := s.QuoteDAO.BeginFile(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// NewDAOStore wraps the database DAO as a QuoteStore.
func NewDAOStore(dao *repository.QuoteDAO) QuoteStore {
	return daoStore{QuoteDAO: dao}
}

// Processor receives emails from suppliers containing matrix quote files and
// extracts the quotes from them.
type Processor struct {
	dao        QuoteStore
	store      storage.ObjectStorage
	sink       metrics.Sink
	aliasCache cache.RateClassAliasCache
	env        parser.Env
	batchSize  int
}

// New builds a processor. batchSize <= 0 selects DefaultBatchSize.
func New(dao QuoteStore, store storage.ObjectStorage, sink metrics.Sink,
	aliasCache cache.RateClassAliasCache, env parser.Env, batchSize int) *Processor {

	if batchSize <= 0 || batchSize > DefaultBatchSize {
		batchSize = DefaultBatchSize
	}
	if aliasCache == nil {
		aliasCache = cache.NewNoopRateClassAliasCache()
	}
	if sink == nil {
		sink = (*metrics.StatsD)(nil)
	}
	return &Processor{
		dao:        dao,
		store:      store,
		sink:       sink,
		aliasCache: aliasCache,
		env:        env,
		batchSize:  batchSize,
	}
}

// ProcessEmail reads an email from r and processes each of its files. A
// failing file is rolled back and skipped without affecting the others; the
// collected failures come back as *MultipleErrors. With no failures, having
// read no files at all is *NoFilesError and having read files that contained
// zero quotes is *NoQuotesError.
func (p *Processor) ProcessEmail(ctx context.Context, r io.Reader) error {
	logger.Log.Info().Msg("starting to read email")

	email, err := ParseEmail(r)
	if err != nil {
		return err
	}
	p.sink.EmailReceived()

	supplier, altitudeSupplier, err := p.dao.SupplierForRecipient(ctx, email.To)
	if err != nil {
		return err
	}
	logger.Log.Info().Str("supplier", supplier.Name).Msg("matched email with supplier")

	aliases, err := p.loadRateClassAliases(ctx)
	if err != nil {
		return err
	}

	var errs []error
	filesCount, quotesTotal := 0, 0
	for _, file := range email.Files {
		logger.Log.Info().
			Str("supplier", supplier.Name).
			Str("file", file.Name).
			Msg("processing attachment")

		count, err := p.processQuoteFile(ctx, supplier, altitudeSupplier, aliases, file)

		var unknownFormat *UnknownFormatError
		if errors.As(err, &unknownFormat) {
			logger.Log.Warn().
				Str("supplier", supplier.Name).
				Str("file", file.Name).
				Msg("skipped attachment with unexpected name")
			continue
		}
		if err != nil {
			// include the supplier and file name so the failure can be
			// reported without any other context
			errs = append(errs, fmt.Errorf(
				"error when processing attachment %q from %s: %w",
				file.Name, supplier.Name, err))
			continue
		}

		filesCount++
		quotesTotal += count
	}

	if len(errs) > 0 {
		return &MultipleErrors{FileCount: len(email.Files), Errors: errs}
	}
	if filesCount == 0 {
		return &NoFilesError{Msg: fmt.Sprintf("no files were read from %s", supplier.Name)}
	}
	if quotesTotal == 0 {
		return &NoQuotesError{Msg: fmt.Sprintf("files from %s contained no quotes", supplier.Name)}
	}

	logger.Log.Info().Str("supplier", supplier.Name).Int("quotes", quotesTotal).
		Msg("finished email")
	return nil
}

// processQuoteFile handles one quote file and returns the number of quotes
// read from it. The file's quotes live in their own transaction.
func (p *Processor) processQuoteFile(ctx context.Context, supplier *domain.Supplier,
	altitudeSupplier *domain.SupplierAlias, aliases map[string][]int64, file EmailFile) (int, error) {

	format, err := FormatForFile(supplier, file.Name, file.MatchEmailBody)
	if err != nil {
		return 0, err
	}

	// archive after identifying the format but before parsing, so even
	// invalid files get archived
	if err := p.store.UploadObject(ctx, file.Name, file.Content); err != nil {
		return 0, err
	}

	quoteParser, err := parser.ForFormat(format.ID, p.env)
	if err != nil {
		return 0, err
	}
	if err := quoteParser.Load(ctx, file.Content, file.Name, format); err != nil {
		return 0, err
	}
	if err := quoteParser.Validate(); err != nil {
		return 0, err
	}
	quoteParser.SetRateClassIDs(aliases)

	tx, err := p.dao.BeginFile(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	dateReceived := time.Now().UTC()
	batch := make([]domain.MatrixQuote, 0, p.batchSize)
	flush := func() error {
		if err := tx.InsertQuotes(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		logger.Log.Debug().Int("count", quoteParser.Count()).Msg("quotes so far")
		return nil
	}

	err = quoteParser.ExtractQuotes(func(q domain.MatrixQuote) error {
		if altitudeSupplier != nil {
			q.SupplierID = altitudeSupplier.CompanyID
		}
		if q.DateReceived.IsZero() {
			q.DateReceived = dateReceived
		}
		validator, err := domain.ValidatorFor(q.ServiceType)
		if err != nil {
			return err
		}
		if err := validator.Validate(&q); err != nil {
			return err
		}
		batch = append(batch, q)
		if len(batch) >= p.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := flush(); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	count := quoteParser.Count()
	logger.Log.Info().
		Str("supplier", supplier.Name).
		Str("file", file.Name).
		Int("quotes", count).
		Msg("read quotes")
	p.sink.QuotesExtracted(quoteParser.Name(), count)
	return count, nil
}

// FormatForFile returns the matrix format that determines which parser will
// handle a file from the given supplier. The chosen format is the one whose
// attachment pattern matches the file name case-insensitively (or is empty),
// and whose match-email-body flag agrees with the file's. Anything other
// than exactly one match is an *UnknownFormatError.
func FormatForFile(supplier *domain.Supplier, fileName string, matchEmailBody bool) (domain.MatrixFormat, error) {
	var matching []domain.MatrixFormat
	for _, f := range supplier.Formats {
		if f.MatchEmailBody != matchEmailBody {
			continue
		}
		if f.AttachmentPattern != "" {
			re, err := regexp.Compile("(?is)" + f.AttachmentPattern)
			if err != nil {
				return domain.MatrixFormat{}, fmt.Errorf(
					"invalid attachment pattern %q for format %d: %w",
					f.AttachmentPattern, f.ID, err)
			}
			loc := re.FindStringIndex(fileName)
			if loc == nil || loc[0] != 0 {
				continue
			}
		}
		matching = append(matching, f)
	}
	if len(matching) == 0 {
		return domain.MatrixFormat{}, &UnknownFormatError{
			Msg: fmt.Sprintf("no formats matched file name %q", fileName)}
	}
	if len(matching) > 1 {
		return domain.MatrixFormat{}, &UnknownFormatError{
			Msg: fmt.Sprintf("multiple formats matched file name %q", fileName)}
	}
	return matching[0], nil
}

func (p *Processor) loadRateClassAliases(ctx context.Context) (map[string][]int64, error) {
	aliases, hit, err := p.aliasCache.Get(ctx)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("rate class alias cache read failed")
	} else if hit {
		return aliases, nil
	}

	aliases, err = p.dao.RateClassAliases(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.aliasCache.Set(ctx, aliases); err != nil {
		logger.Log.Warn().Err(err).Msg("rate class alias cache write failed")
	}
	return aliases, nil
}
