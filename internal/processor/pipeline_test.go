package processor

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/nexbill/matrix-ingest/internal/domain"
	"github.com/nexbill/matrix-ingest/internal/parser"
	"github.com/nexbill/matrix-ingest/internal/storage"
)

// eventLog records pipeline side effects across the fakes, in order.
type eventLog struct {
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.events = append(l.events, fmt.Sprintf(format, args...))
}

type fakeTx struct {
	log     *eventLog
	quotes  []domain.MatrixQuote
	batches []int
	state   string
}

func (tx *fakeTx) InsertQuotes(ctx context.Context, quotes []domain.MatrixQuote) error {
	if len(quotes) == 0 {
		return nil
	}
	tx.batches = append(tx.batches, len(quotes))
	tx.quotes = append(tx.quotes, quotes...)
	tx.log.add("insert %d", len(quotes))
	return nil
}

func (tx *fakeTx) Commit() error {
	if tx.state == "open" {
		tx.state = "committed"
		tx.log.add("commit")
	}
	return nil
}

func (tx *fakeTx) Rollback() {
	if tx.state == "open" {
		tx.state = "rolled back"
		tx.log.add("rollback")
	}
}

type fakeQuoteStore struct {
	log      *eventLog
	supplier domain.Supplier
	alias    *domain.SupplierAlias
	aliases  map[string][]int64
	txs      []*fakeTx
}

func (s *fakeQuoteStore) SupplierForRecipient(ctx context.Context, toAddr string) (*domain.Supplier, *domain.SupplierAlias, error) {
	supplier := s.supplier
	return &supplier, s.alias, nil
}

func (s *fakeQuoteStore) RateClassAliases(ctx context.Context) (map[string][]int64, error) {
	return s.aliases, nil
}

func (s *fakeQuoteStore) BeginFile(ctx context.Context) (FileTx, error) {
	tx := &fakeTx{log: s.log, state: "open"}
	s.txs = append(s.txs, tx)
	s.log.add("begin")
	return tx, nil
}

type fakeArchive struct {
	log     *eventLog
	objects map[string][]byte
}

func (a *fakeArchive) UploadObject(ctx context.Context, key string, data []byte) error {
	if a.objects == nil {
		a.objects = make(map[string][]byte)
	}
	a.objects[key] = data
	a.log.add("upload %s", key)
	return nil
}

func (a *fakeArchive) DownloadObject(ctx context.Context, key string) ([]byte, error) {
	data, ok := a.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object %s", key)
	}
	return data, nil
}

func (a *fakeArchive) ListObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	var out []storage.ObjectInfo
	for key, data := range a.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	return out, nil
}

// directEnergyWorkbook builds a Daily Matrix Price workbook with one data row
// and six price columns; overrides replace individual cells. The footer row
// keeps the table shape of the real file, which never ends on a quote row.
func directEnergyWorkbook(t *testing.T, overrides map[string]any) []byte {
	t.Helper()
	cells := map[string]any{
		"A1": "Direct Energy HQ - Daily Matrix Price Report",
		"A3": "as of 3/14/2018",

		"A51": "Contract Start Month",
		"B51": "State",
		"C51": "Utility",
		"D51": "Zone",
		"E51": "Rate Code(s)",
		"F51": "Product Special Options",
		"G51": "Billing Method",
		"H51": "Term",
		"I51": "0 - 74",
		"J51": "75 - 149",
		"K51": "150 - 249",
		"L51": "250 - 499",
		"M51": "500 - 999",
		"N51": "1000 - 2000",

		"A52": 43160,
		"B52": "NJ",
		"C52": "PSEG",
		"D52": "PS",
		"E52": "GLP",
		"F52": "POR",
		"G52": "Dual",
		"H52": 12,
		"I52": 71.5,
		"J52": 72.1,
		"K52": 72.8,
		"L52": 73.2,
		"M52": 74.0,
		"N52": 74.9,

		"A53": "Prices include capacity and transmission",
	}
	for ref, value := range overrides {
		cells[ref] = value
	}

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Daily Matrix Price"))
	for ref, value := range cells {
		require.NoError(t, f.SetCellValue("Daily Matrix Price", ref, value))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

type emailAttachment struct {
	name    string
	content []byte
}

func emailWithAttachments(t *testing.T, attachments []emailAttachment) string {
	t.Helper()
	lines := []string{
		"From: quotes@supplier.example",
		"Delivered-To: matrix-directenergy@nexbill.example",
		"Subject: Daily Matrix",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="MIXED"`,
		"",
	}
	for _, a := range attachments {
		lines = append(lines,
			"--MIXED",
			fmt.Sprintf(`Content-Type: application/octet-stream; name="%s"`, a.name),
			"Content-Transfer-Encoding: base64",
			fmt.Sprintf(`Content-Disposition: attachment; filename="%s"`, a.name),
			"",
			base64Wrapped(t, a.content),
		)
	}
	lines = append(lines, "--MIXED--", "")
	return strings.Join(lines, "\r\n")
}

func directEnergySupplier() domain.Supplier {
	return domain.Supplier{
		ID:                   1,
		Name:                 "Direct Energy",
		MatrixEmailRecipient: "matrix-directenergy@nexbill.example",
		Formats: []domain.MatrixFormat{{
			ID:                8,
			SupplierID:        1,
			Name:              "Daily Matrix",
			AttachmentPattern: `matrix.*\.xlsx`,
		}},
	}
}

func newTestPipeline(batchSize int) (*Processor, *fakeQuoteStore, *fakeArchive, *eventLog) {
	log := &eventLog{}
	store := &fakeQuoteStore{
		log:      log,
		supplier: directEnergySupplier(),
		alias:    &domain.SupplierAlias{CompanyID: 42, Name: "Direct Energy"},
	}
	archive := &fakeArchive{log: log}
	proc := New(store, archive, nil, nil, parser.Env{}, batchSize)
	return proc, store, archive, log
}

func TestProcessEmailBatchesInserts(t *testing.T) {
	proc, store, _, _ := newTestPipeline(4)

	email := emailWithAttachments(t, []emailAttachment{
		{"matrix one.xlsx", directEnergyWorkbook(t, nil)},
	})
	require.NoError(t, proc.ProcessEmail(context.Background(), strings.NewReader(email)))

	require.Len(t, store.txs, 1)
	tx := store.txs[0]
	// six quotes with a batch size of four arrive as two bulk inserts
	assert.Equal(t, []int{4, 2}, tx.batches)
	assert.Equal(t, "committed", tx.state)
	require.Len(t, tx.quotes, 6)
	assert.Equal(t, int64(42), tx.quotes[0].SupplierID)
	assert.False(t, tx.quotes[0].DateReceived.IsZero())
}

func TestProcessEmailArchivesBeforeInserting(t *testing.T) {
	proc, _, archive, log := newTestPipeline(0)

	email := emailWithAttachments(t, []emailAttachment{
		{"matrix one.xlsx", directEnergyWorkbook(t, nil)},
	})
	require.NoError(t, proc.ProcessEmail(context.Background(), strings.NewReader(email)))

	assert.Contains(t, archive.objects, "matrix one.xlsx")
	assert.Equal(t, []string{
		"upload matrix one.xlsx",
		"begin",
		"insert 6",
		"commit",
	}, log.events)
}

func TestProcessEmailIsolatesFailingFiles(t *testing.T) {
	proc, store, archive, _ := newTestPipeline(0)

	// the middle file's first price is far outside the electric bounds, so
	// it fails validation mid-extraction, after its transaction has begun
	email := emailWithAttachments(t, []emailAttachment{
		{"matrix one.xlsx", directEnergyWorkbook(t, nil)},
		{"matrix two.xlsx", directEnergyWorkbook(t, map[string]any{"I52": 9999.0})},
		{"matrix three.xlsx", directEnergyWorkbook(t, nil)},
	})
	err := proc.ProcessEmail(context.Background(), strings.NewReader(email))

	var multi *MultipleErrors
	require.ErrorAs(t, err, &multi)
	assert.Equal(t, 3, multi.FileCount)
	require.Len(t, multi.Errors, 1)
	assert.Contains(t, multi.Errors[0].Error(), "matrix two.xlsx")
	assert.Contains(t, multi.Errors[0].Error(), "Direct Energy")

	require.Len(t, store.txs, 3)
	assert.Equal(t, "committed", store.txs[0].state)
	assert.Equal(t, "rolled back", store.txs[1].state)
	assert.Equal(t, "committed", store.txs[2].state)
	assert.Len(t, store.txs[0].quotes, 6)
	assert.Empty(t, store.txs[1].quotes)
	assert.Len(t, store.txs[2].quotes, 6)

	// the failing file is still archived; archival precedes parsing
	assert.Len(t, archive.objects, 3)
	assert.Contains(t, archive.objects, "matrix two.xlsx")
}

func TestProcessEmailSkipsUnmatchedFiles(t *testing.T) {
	proc, store, archive, _ := newTestPipeline(0)

	email := emailWithAttachments(t, []emailAttachment{
		{"unrelated.pdf", []byte("not a matrix")},
	})
	err := proc.ProcessEmail(context.Background(), strings.NewReader(email))

	var noFiles *NoFilesError
	require.ErrorAs(t, err, &noFiles)
	assert.Empty(t, store.txs)
	// unknown-format files are never archived
	assert.Empty(t, archive.objects)
}
