// Package preprocess converts incoming matrix files into something the
// readers can open: legacy Office formats through a headless office suite,
// PDF tables through the bundled tabulariser, and single-entry zip archives.
package preprocess

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/nexbill/matrix-ingest/pkg/logger"
)

// Error means a conversion subprocess failed or produced no output, or a zip
// archive did not contain exactly one entry.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// converter runs one external program in a scoped temporary directory.
// The directory is created lazily and removed by Close.
type converter struct {
	dir string
}

func (c *converter) tempDir() (string, error) {
	if c.dir == "" {
		dir, err := os.MkdirTemp("", "matrix-ingest-*")
		if err != nil {
			return "", fmt.Errorf("failed to create temp directory: %w", err)
		}
		c.dir = dir
	}
	return c.dir, nil
}

// Close removes the converter's temporary directory and everything in it.
func (c *converter) Close() error {
	if c.dir == "" {
		return nil
	}
	dir := c.dir
	c.dir = ""
	return os.RemoveAll(dir)
}

func (c *converter) run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &Error{
			Msg: fmt.Sprintf("%s failed: %s", name, strings.TrimSpace(string(out))),
			Err: err,
		}
	}
	return nil
}

// writeInput copies the original file bytes into the temp directory under
// its own name, which the office suite uses to pick an import filter.
func (c *converter) writeInput(data []byte, fileName string) (string, error) {
	dir, err := c.tempDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, filepath.Base(fileName))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// readOutput treats the conversion as successful only when the expected
// output file appeared on disk.
func (c *converter) readOutput(path, fileName string) ([]byte, error) {
	out, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Msg: fmt.Sprintf("failed to convert file %q to %s", fileName, path), Err: err}
	}
	return out, nil
}

// OfficeConverter converts Office files between variants using the
// LibreOffice command-line interface.
type OfficeConverter struct {
	converter

	// SofficePath is the soffice executable; its location is
	// environment-dependent.
	SofficePath string

	// DestExtension is the extension of the converted file, e.g. "xlsx".
	DestExtension string

	// DestTypeString is the LibreOffice filter string that determines the
	// output variant, e.g. "xlsx:Calc MS Excel 2007 XML". Usually starts
	// with DestExtension.
	DestTypeString string
}

// NewOfficeConverter builds a converter producing files of the given type.
func NewOfficeConverter(sofficePath, destExtension, destTypeString string) *OfficeConverter {
	return &OfficeConverter{
		SofficePath:    sofficePath,
		DestExtension:  destExtension,
		DestTypeString: destTypeString,
	}
}

// Convert runs the office suite and returns the converted file bytes.
func (c *OfficeConverter) Convert(ctx context.Context, data []byte, fileName string) ([]byte, error) {
	in, err := c.writeInput(data, fileName)
	if err != nil {
		return nil, err
	}
	// soffice can exit 0 even when it failed to convert; errors are also
	// detected by checking whether the destination file exists.
	if err := c.run(ctx, c.SofficePath,
		"--headless", "--convert-to", c.DestTypeString, "--outdir", c.dir, in); err != nil {
		return nil, err
	}
	out := strings.TrimSuffix(in, filepath.Ext(in)) + "." + c.DestExtension
	logger.Log.Debug().Str("file", fileName).Str("output", out).Msg("office conversion done")
	return c.readOutput(out, fileName)
}

// TabulaConverter extracts tabular data from PDF files into CSV using
// tabula-java, which is shipped with the deployment so there is nothing to
// install.
type TabulaConverter struct {
	converter

	JavaPath string
	JarPath  string
}

// NewTabulaConverter builds a PDF-to-CSV converter.
func NewTabulaConverter(javaPath, jarPath string) *TabulaConverter {
	return &TabulaConverter{JavaPath: javaPath, JarPath: jarPath}
}

// Convert runs tabula over every page and returns the CSV bytes.
func (c *TabulaConverter) Convert(ctx context.Context, data []byte, fileName string) ([]byte, error) {
	in, err := c.writeInput(data, fileName)
	if err != nil {
		return nil, err
	}
	out := strings.TrimSuffix(in, filepath.Ext(in)) + ".csv"
	if err := c.run(ctx, c.JavaPath, "-jar", c.JarPath, "--pages", "all", "-o", out, in); err != nil {
		return nil, err
	}
	return c.readOutput(out, fileName)
}

// ExtractZip opens a zip archive and returns the content and name of its
// single entry. Archives with any other number of entries fail.
func ExtractZip(data []byte) ([]byte, string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, "", &Error{Msg: "failed to open zip archive", Err: err}
	}
	if len(zr.File) != 1 {
		names := make([]string, len(zr.File))
		for i, f := range zr.File {
			names[i] = f.Name
		}
		return nil, "", &Error{Msg: fmt.Sprintf(
			"expected 1 file in zip, found %d: %s", len(zr.File), strings.Join(names, ", "))}
	}
	entry := zr.File[0]
	rc, err := entry.Open()
	if err != nil {
		return nil, "", &Error{Msg: fmt.Sprintf("failed to open zip entry %s", entry.Name), Err: err}
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", &Error{Msg: fmt.Sprintf("failed to read zip entry %s", entry.Name), Err: err}
	}
	return content, entry.Name, nil
}
