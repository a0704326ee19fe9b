package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ServiceType distinguishes electric and gas quotes. Prices and volumes are
// in $/kWh and kWh for electric, $/therm and therms for gas.
type ServiceType string

const (
	Electric ServiceType = "electric"
	Gas      ServiceType = "gas"
)

// Supplier is an energy supplier in the primary (operator-facing) database.
// Matrix emails are forwarded to a unique address per supplier, which is how
// incoming mail is matched to a supplier.
type Supplier struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`

	// MatrixEmailRecipient is the forwarding address for this supplier's
	// matrix emails. Unique across suppliers; empty when the supplier does
	// not send matrices by email.
	MatrixEmailRecipient string `json:"matrix_email_recipient" db:"matrix_email_recipient"`

	Formats []MatrixFormat `json:"formats" db:"-"`
}

func (s Supplier) String() string { return s.Name }

// MatrixFormat describes one file layout belonging to a supplier and selects
// the parser for it.
type MatrixFormat struct {
	ID         int64  `json:"matrix_format_id" db:"matrix_format_id"`
	SupplierID int64  `json:"supplier_id" db:"supplier_id"`
	Name       string `json:"name" db:"name"`

	// AttachmentPattern is a regular expression matching either attachment
	// file names or email subjects, depending on MatchEmailBody. Empty
	// means the format matches any file.
	AttachmentPattern string `json:"matrix_attachment_name" db:"matrix_attachment_name"`

	// MatchEmailBody is true when the quotes are in the email body rather
	// than an attachment; the pattern then matches the subject.
	MatchEmailBody bool `json:"match_email_body" db:"match_email_body"`
}

// SupplierAlias is the same supplier as recorded in the downstream altitude
// database, matched by name. Inserted quotes are stamped with its id.
type SupplierAlias struct {
	CompanyID int64  `db:"company_id"`
	Name      string `db:"name"`
}

// RateClassAlias maps a parser-assembled alias string to a rate class id in
// the altitude database.
type RateClassAlias struct {
	ID          int64  `db:"rate_class_alias_id"`
	RateClassID int64  `db:"rate_class_id"`
	Alias       string `db:"rate_class_alias"`
}

// MatrixQuote is one extracted fixed-price offer. Quotes are append-only:
// they are created inside a per-file transaction during ingestion and never
// mutated afterwards.
type MatrixQuote struct {
	ServiceType    ServiceType `db:"-"`
	RateClassAlias string      `db:"rate_class_alias"`
	RateClassID    *int64      `db:"rate_class_id"`

	// Half-open range of dates on which the contract may start, usually
	// one calendar month.
	StartFrom  time.Time `db:"start_from"`
	StartUntil time.Time `db:"start_until"`

	TermMonths int `db:"term_months"`

	// Half-open range during which the supplier honours this price,
	// usually one business day.
	ValidFrom  time.Time `db:"valid_from"`
	ValidUntil time.Time `db:"valid_until"`

	// Half-open annual-consumption band in kWh or therms. Either endpoint
	// may be absent.
	MinVolume   *float64 `db:"min_volume"`
	LimitVolume *float64 `db:"limit_volume"`

	// Price in $/kWh or $/therm after normalisation.
	Price decimal.Decimal `db:"price"`

	PurchaseOfReceivables bool `db:"purchase_of_receivables"`
	DualBilling           bool `db:"dual_billing"`

	DateReceived time.Time `db:"date_received"`

	// SupplierID is the altitude database id of the supplier, set by the
	// processor before insertion.
	SupplierID int64 `db:"supplier_id"`

	// FileReference names the source file and the cell or coordinates that
	// produced the quote, for troubleshooting.
	FileReference string `db:"file_reference"`
}

// Clone returns a copy of the quote. Pointer fields are deep-copied so the
// clone can be modified independently.
func (q MatrixQuote) Clone() MatrixQuote {
	out := q
	if q.MinVolume != nil {
		v := *q.MinVolume
		out.MinVolume = &v
	}
	if q.LimitVolume != nil {
		v := *q.LimitVolume
		out.LimitVolume = &v
	}
	if q.RateClassID != nil {
		v := *q.RateClassID
		out.RateClassID = &v
	}
	return out
}

// Equal reports whether two quotes have the same field values.
func (q MatrixQuote) Equal(other MatrixQuote) bool {
	eqPtrF := func(a, b *float64) bool {
		if a == nil || b == nil {
			return a == b
		}
		return *a == *b
	}
	eqPtrI := func(a, b *int64) bool {
		if a == nil || b == nil {
			return a == b
		}
		return *a == *b
	}
	return q.ServiceType == other.ServiceType &&
		q.RateClassAlias == other.RateClassAlias &&
		eqPtrI(q.RateClassID, other.RateClassID) &&
		q.StartFrom.Equal(other.StartFrom) &&
		q.StartUntil.Equal(other.StartUntil) &&
		q.TermMonths == other.TermMonths &&
		q.ValidFrom.Equal(other.ValidFrom) &&
		q.ValidUntil.Equal(other.ValidUntil) &&
		eqPtrF(q.MinVolume, other.MinVolume) &&
		eqPtrF(q.LimitVolume, other.LimitVolume) &&
		q.Price.Equal(other.Price) &&
		q.PurchaseOfReceivables == other.PurchaseOfReceivables &&
		q.DualBilling == other.DualBilling &&
		q.SupplierID == other.SupplierID &&
		q.FileReference == other.FileReference
}

func (q MatrixQuote) String() string {
	var b strings.Builder
	b.WriteString("Matrix quote\n")
	fmt.Fprintf(&b, "service_type: %s\n", q.ServiceType)
	fmt.Fprintf(&b, "rate_class_alias: %s\n", q.RateClassAlias)
	fmt.Fprintf(&b, "start_from: %s\n", q.StartFrom.Format("2006-01-02"))
	fmt.Fprintf(&b, "start_until: %s\n", q.StartUntil.Format("2006-01-02"))
	fmt.Fprintf(&b, "term_months: %d\n", q.TermMonths)
	fmt.Fprintf(&b, "valid_from: %s\n", q.ValidFrom.Format(time.RFC3339))
	fmt.Fprintf(&b, "valid_until: %s\n", q.ValidUntil.Format(time.RFC3339))
	if q.MinVolume != nil {
		fmt.Fprintf(&b, "min_volume: %v\n", *q.MinVolume)
	}
	if q.LimitVolume != nil {
		fmt.Fprintf(&b, "limit_volume: %v\n", *q.LimitVolume)
	}
	fmt.Fprintf(&b, "price: %s\n", q.Price)
	fmt.Fprintf(&b, "purchase_of_receivables: %v\n", q.PurchaseOfReceivables)
	fmt.Fprintf(&b, "dual_billing: %v\n", q.DualBilling)
	fmt.Fprintf(&b, "file_reference: %s\n", q.FileReference)
	return b.String()
}

// Float64Ptr is a convenience for building quotes with optional volumes.
func Float64Ptr(v float64) *float64 { return &v }
