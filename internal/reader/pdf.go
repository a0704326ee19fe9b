package reader

import (
	"bytes"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// TextBox is one piece of text on a PDF page with the coordinates of its
// lower-left corner in PDF user-space units (origin at the bottom left).
type TextBox struct {
	Text string
	X0   float64
	Y0   float64
	X1   float64
	Y1   float64
}

// PDF reads every text box of a PDF into memory and serves lookups by
// nearest lower-left corner, within a tolerance. Matrix PDFs drift a few
// points between issues; SetOffsetByElement compensates for whole-page
// shifts.
type PDF struct {
	tolerance float64
	fileName  string
	pages     [][]TextBox
	offsetX   float64
	offsetY   float64
}

// NewPDF returns an empty PDF reader. tolerance is the maximum allowed
// distance between expected and actual box coordinates.
func NewPDF(tolerance float64) *PDF {
	return &PDF{tolerance: tolerance}
}

// Load parses the whole document. May be expensive.
func (r *PDF) Load(data []byte, fileName string) error {
	r.fileName = fileName
	r.pages = nil
	r.offsetX, r.offsetY = 0, 0

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return &ReadError{FileName: fileName, Err: err}
	}
	for n := 1; n <= doc.NumPage(); n++ {
		page := doc.Page(n)
		if page.V.IsNull() {
			r.pages = append(r.pages, nil)
			continue
		}
		r.pages = append(r.pages, groupTexts(page.Content().Text))
	}
	return nil
}

// LoadBoxes installs pre-built pages of text boxes. It exists for the
// layout-dump tool and for tests; Load is the normal path.
func (r *PDF) LoadBoxes(pages [][]TextBox, fileName string) {
	r.fileName = fileName
	r.pages = pages
	r.offsetX, r.offsetY = 0, 0
}

// groupTexts merges the character runs the pdf library reports into
// text boxes: runs on the same baseline separated by less than about one
// character width belong to the same box.
func groupTexts(texts []pdf.Text) []TextBox {
	if len(texts) == 0 {
		return nil
	}
	sorted := make([]pdf.Text, len(texts))
	copy(sorted, texts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if math.Abs(sorted[i].Y-sorted[j].Y) > 0.5 {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var boxes []TextBox
	var cur TextBox
	var curEnd float64
	var curSize float64
	flush := func() {
		cur.Text = strings.TrimSpace(cur.Text)
		if cur.Text != "" {
			cur.X1 = curEnd
			boxes = append(boxes, cur)
		}
	}
	for i, t := range sorted {
		sameLine := i > 0 && math.Abs(t.Y-cur.Y0) <= 0.5
		gap := t.X - curEnd
		if i == 0 || !sameLine || gap > math.Max(curSize, t.FontSize) {
			if i > 0 {
				flush()
			}
			cur = TextBox{Text: t.S, X0: t.X, Y0: t.Y, Y1: t.Y + t.FontSize}
			curEnd = t.X + t.W
			curSize = t.FontSize
			continue
		}
		cur.Text += t.S
		curEnd = t.X + t.W
		if t.FontSize > curSize {
			curSize = t.FontSize
		}
	}
	flush()
	return boxes
}

// Loaded reports whether a document has been loaded.
func (r *PDF) Loaded() bool { return r.pages != nil }

// FileName returns the name passed to Load.
func (r *PDF) FileName() string { return r.fileName }

// PageCount returns the number of pages in the document.
func (r *PDF) PageCount() int { return len(r.pages) }

// Boxes returns every text box on the given 1-based page, for layout dumps.
func (r *PDF) Boxes(page int) ([]TextBox, error) {
	boxes, err := r.page(page)
	if err != nil {
		return nil, err
	}
	out := make([]TextBox, len(boxes))
	copy(out, boxes)
	return out, nil
}

func (r *PDF) page(n int) ([]TextBox, error) {
	if n < 1 || n > len(r.pages) {
		return nil, FormatErrorf("no page %d in %s: last page number is %d", n, r.fileName, len(r.pages))
	}
	return r.pages[n-1], nil
}

func distance(box TextBox, x, y float64) float64 {
	return math.Hypot(box.X0-x, box.Y0-y)
}

// SetOffsetByElement finds the first text box matching re, computes the
// delta between its actual and expected lower-left corner, and applies that
// delta to every subsequent coordinate lookup.
func (r *PDF) SetOffsetByElement(re *regexp.Regexp, expectedY, expectedX float64) error {
	box, err := r.FindElement(1, 0, 0, re)
	if err != nil {
		return err
	}
	r.offsetX = box.X0 - expectedX
	r.offsetY = box.Y0 - expectedY
	return nil
}

// GetWithCoordinates returns the text box whose lower-left corner is nearest
// (x, y), within the reader's tolerance.
func (r *PDF) GetWithCoordinates(page int, y, x float64) (TextBox, error) {
	y += r.offsetY
	x += r.offsetX

	boxes, err := r.page(page)
	if err != nil {
		return TextBox{}, err
	}
	if len(boxes) == 0 {
		return TextBox{}, FormatErrorf("no text elements on page %d of %s", page, r.fileName)
	}
	closest := boxes[0]
	for _, b := range boxes[1:] {
		if distance(b, x, y) < distance(closest, x, y) {
			closest = b
		}
	}
	if d := distance(closest, x, y); d > r.tolerance {
		return TextBox{}, FormatErrorf(
			"no text elements within %v of (%v,%v) in %s page %d: closest is %q at (%v,%v)",
			r.tolerance, x, y, r.fileName, page, closest.Text, closest.X0, closest.Y0)
	}
	return closest, nil
}

// Get returns the text of the box nearest (x, y) on the page.
func (r *PDF) Get(page int, y, x float64) (string, error) {
	box, err := r.GetWithCoordinates(page, y, x)
	if err != nil {
		return "", err
	}
	return box.Text, nil
}

// GetMatches returns the capture groups of re applied to the nearest box
// whose text matches it. Position may be fuzzy because the pattern selects
// the right box; pass maxDistance > 0 to also bound the distance.
func (r *PDF) GetMatches(page int, y, x float64, re *regexp.Regexp, maxDistance float64) ([]string, error) {
	boxes, err := r.matchingBoxes(page, y+r.offsetY, x+r.offsetX, re)
	if err != nil {
		return nil, err
	}
	closest := boxes[0]
	if maxDistance > 0 {
		if d := distance(closest, x+r.offsetX, y+r.offsetY); d > maxDistance {
			return nil, FormatErrorf(
				"no text elements within %v of (%v,%v) on page %d: closest is %q at (%v,%v)",
				maxDistance, x, y, page, closest.Text, closest.X0, closest.Y0)
		}
	}
	return ExtractGroups(re, closest.Text)
}

// FindElement returns the box nearest (x, y) whose text matches re, with the
// current offset removed from its coordinates so callers see file-relative
// positions.
func (r *PDF) FindElement(page int, y, x float64, re *regexp.Regexp) (TextBox, error) {
	boxes, err := r.matchingBoxes(page, y, x, re)
	if err != nil {
		return TextBox{}, err
	}
	box := boxes[0]
	box.X0 -= r.offsetX
	box.X1 -= r.offsetX
	box.Y0 -= r.offsetY
	box.Y1 -= r.offsetY
	return box, nil
}

// matchingBoxes returns the boxes on the page matching re in increasing
// order of distance from (x, y).
func (r *PDF) matchingBoxes(page int, y, x float64, re *regexp.Regexp) ([]TextBox, error) {
	boxes, err := r.page(page)
	if err != nil {
		return nil, err
	}
	var matching []TextBox
	for _, b := range boxes {
		if matchStart(re, b.Text) != nil {
			matching = append(matching, b)
		}
	}
	if len(matching) == 0 {
		return nil, FormatErrorf("no text elements on page %d of %s match %q", page, r.fileName, re)
	}
	sort.SliceStable(matching, func(i, j int) bool {
		return distance(matching[i], x, y) < distance(matching[j], x, y)
	})
	return matching, nil
}
