// -- internal/reporting/reporter.go --
package reporting

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/flightscout/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Supported output formats.
const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
)

// Reporter defines the interface for writing flight results to an output.
type Reporter interface {
	// Write accepts a batch of results. Batches past the limit are dropped.
	Write(results []schemas.FlightResult) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// IsStdout reports whether outputPath means standard output.
func IsStdout(outputPath string) bool {
	return outputPath == "" || outputPath == "-" || outputPath == "stdout"
}

// New creates a reporter for format writing to outputPath (stdout when blank).
// limit caps the number of results written; zero means no cap.
func New(format, outputPath string, limit int) (Reporter, error) {
	return NewWithStdout(format, outputPath, limit, os.Stdout)
}

// NewWithStdout is New with a substitute for os.Stdout.
func NewWithStdout(format, outputPath string, limit int, stdout io.Writer) (Reporter, error) {
	if format != FormatJSON && format != FormatJSONL {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	if limit < 0 {
		return nil, fmt.Errorf("limit must not be negative, got %d", limit)
	}

	var writer io.WriteCloser
	if IsStdout(outputPath) {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{stdout}
	} else {
		path, err := homedir.Expand(outputPath)
		if err != nil {
			return nil, fmt.Errorf("expanding output path %s: %w", outputPath, err)
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
			}
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	if format == FormatJSONL {
		return &jsonlReporter{w: writer, buf: bufio.NewWriter(writer), limit: limit}, nil
	}
	return &jsonReporter{w: writer, limit: limit}, nil
}

// remaining trims batch to what limit still allows after written results.
func remaining(batch []schemas.FlightResult, written, limit int) []schemas.FlightResult {
	if limit <= 0 {
		return batch
	}
	left := limit - written
	if left <= 0 {
		return nil
	}
	if len(batch) > left {
		return batch[:left]
	}
	return batch
}

// jsonReporter buffers every result and writes one indented array on Close.
type jsonReporter struct {
	w       io.WriteCloser
	limit   int
	results []schemas.FlightResult
	closed  bool
}

func (r *jsonReporter) Write(results []schemas.FlightResult) error {
	if r.closed {
		return fmt.Errorf("reporter is closed")
	}
	r.results = append(r.results, remaining(results, len(r.results), r.limit)...)
	return nil
}

func (r *jsonReporter) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	records := make([]schemas.FlightRecord, 0, len(r.results))
	for _, res := range r.results {
		records = append(records, res.Record())
	}
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		r.w.Close()
		return fmt.Errorf("encoding results: %w", err)
	}
	if _, err := r.w.Write(append(data, '\n')); err != nil {
		r.w.Close()
		return fmt.Errorf("writing results: %w", err)
	}
	return r.w.Close()
}

// jsonlReporter streams one result per line.
type jsonlReporter struct {
	w       io.WriteCloser
	buf     *bufio.Writer
	limit   int
	written int
	closed  bool
}

func (r *jsonlReporter) Write(results []schemas.FlightResult) error {
	if r.closed {
		return fmt.Errorf("reporter is closed")
	}
	for _, res := range remaining(results, r.written, r.limit) {
		line, err := json.Marshal(res.Record())
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		if _, err := r.buf.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("writing result: %w", err)
		}
		r.written++
	}
	return nil
}

func (r *jsonlReporter) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.buf.Flush(); err != nil {
		r.w.Close()
		return fmt.Errorf("flushing results: %w", err)
	}
	return r.w.Close()
}
