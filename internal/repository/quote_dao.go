package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/nexbill/matrix-ingest/internal/domain"
	"github.com/nexbill/matrix-ingest/pkg/logger"
)

// UnknownSupplierError means an email could not be matched to exactly one
// supplier.
type UnknownSupplierError struct {
	Msg string
}

func (e *UnknownSupplierError) Error() string { return e.Msg }

// QuoteDAO handles database access for the email processor: supplier lookup
// in the primary store, alias lookup and quote insertion in the altitude
// store.
type QuoteDAO struct {
	primary  *DB
	altitude *DB
}

// NewQuoteDAO builds a DAO over the two stores.
func NewQuoteDAO(primary, altitude *DB) *QuoteDAO {
	return &QuoteDAO{primary: primary, altitude: altitude}
}

// SupplierForRecipient determines which supplier an email is from using the
// recipient's address. This works because matrix emails are forwarded to a
// unique address per supplier. The supplier's formats are loaded with it.
//
// The second return value is the same supplier in the altitude database,
// matched by name, which means names for the same supplier must always be
// the same. It may be nil when the altitude database has no matching row.
func (d *QuoteDAO) SupplierForRecipient(ctx context.Context, toAddr string) (*domain.Supplier, *domain.SupplierAlias, error) {
	release, err := d.primary.acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	var suppliers []domain.Supplier
	err = d.primary.SelectContext(ctx, &suppliers, `
		SELECT id, name, matrix_email_recipient
		FROM supplier
		WHERE lower(matrix_email_recipient) = lower($1)`, toAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query suppliers: %w", err)
	}
	if len(suppliers) != 1 {
		return nil, nil, &UnknownSupplierError{Msg: fmt.Sprintf(
			"%d suppliers matched recipient address %s", len(suppliers), toAddr)}
	}
	supplier := suppliers[0]

	err = d.primary.SelectContext(ctx, &supplier.Formats, `
		SELECT matrix_format_id, supplier_id, name,
		       COALESCE(matrix_attachment_name, '') AS matrix_attachment_name,
		       match_email_body
		FROM matrix_format
		WHERE supplier_id = $1
		ORDER BY matrix_format_id`, supplier.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query matrix formats: %w", err)
	}

	var alias domain.SupplierAlias
	err = d.altitude.GetContext(ctx, &alias, `
		SELECT company_id, name
		FROM altitude_supplier
		WHERE name = $1
		LIMIT 1`, supplier.Name)
	if errors.Is(err, sql.ErrNoRows) {
		logger.Log.Warn().Str("supplier", supplier.Name).
			Msg("supplier has no altitude counterpart; quotes will have no supplier id")
		return &supplier, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query altitude supplier: %w", err)
	}
	return &supplier, &alias, nil
}

// RateClassAliases loads the whole alias table, mapping each alias string to
// the rate class ids it stands for. Loaded once per email so extraction does
// not query per quote.
func (d *QuoteDAO) RateClassAliases(ctx context.Context) (map[string][]int64, error) {
	release, err := d.altitude.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var rows []domain.RateClassAlias
	err = d.altitude.SelectContext(ctx, &rows, `
		SELECT rate_class_alias_id, rate_class_id, rate_class_alias
		FROM rate_class_alias
		ORDER BY rate_class_alias_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rate class aliases: %w", err)
	}

	aliases := make(map[string][]int64, len(rows))
	for _, row := range rows {
		aliases[row.Alias] = append(aliases[row.Alias], row.RateClassID)
	}
	return aliases, nil
}

// FileTx is the altitude transaction for one quote file. Each file gets its
// own transaction so an error in a later file does not undo earlier ones.
type FileTx struct {
	tx      *sqlx.Tx
	release func()
	done    bool
}

// BeginFile starts the transaction for one quote file.
func (d *QuoteDAO) BeginFile(ctx context.Context) (*FileTx, error) {
	release, err := d.altitude.acquire(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := d.altitude.BeginTxx(ctx, nil)
	if err != nil {
		release()
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}
	return &FileTx{tx: tx, release: release}, nil
}

// matrixQuoteColumns are the insert columns of the quote table, in the order
// used by InsertQuotes.
var matrixQuoteColumns = []string{
	"rate_class_alias",
	"rate_class_id",
	"start_from",
	"start_until",
	"term_months",
	"valid_from",
	"valid_until",
	"min_volume",
	"limit_volume",
	"price",
	"purchase_of_receivables",
	"dual_billing",
	"service_type",
	"date_received",
	"supplier_id",
	"file_reference",
}

// InsertQuotes bulk-inserts quotes in one multi-row statement. Callers keep
// batches at or below the processor's batch size.
func (t *FileTx) InsertQuotes(ctx context.Context, quotes []domain.MatrixQuote) error {
	if len(quotes) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO matrix_quote (")
	sb.WriteString(strings.Join(matrixQuoteColumns, ", "))
	sb.WriteString(") VALUES ")

	args := make([]any, 0, len(quotes)*len(matrixQuoteColumns))
	for i, q := range quotes {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := range matrixQuoteColumns {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*len(matrixQuoteColumns)+j+1)
		}
		sb.WriteString(")")

		var supplierID any
		if q.SupplierID != 0 {
			supplierID = q.SupplierID
		}
		args = append(args,
			q.RateClassAlias, q.RateClassID,
			q.StartFrom, q.StartUntil, q.TermMonths,
			q.ValidFrom, q.ValidUntil,
			q.MinVolume, q.LimitVolume, q.Price,
			q.PurchaseOfReceivables, q.DualBilling,
			string(q.ServiceType), q.DateReceived,
			supplierID, q.FileReference)
	}

	if _, err := t.tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to insert %d quotes: %w", len(quotes), err)
	}
	return nil
}

// Commit permanently stores the file's quotes.
func (t *FileTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.release()
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}
	return nil
}

// Rollback discards the file's quotes after an error. Safe to call after
// Commit.
func (t *FileTx) Rollback() {
	if t.done {
		return
	}
	t.done = true
	defer t.release()
	if err := t.tx.Rollback(); err != nil {
		logger.Log.Error().Err(err).Msg("could not rollback transaction")
	}
}
