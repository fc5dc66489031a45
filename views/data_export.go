package views

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"glider-processor/models"
)

// partSuffix marks files that are still being written. They only take their
// final name on Commit.
const partSuffix = ".part"

// CSVWriter is a concurrency-safe, buffered CSV writer.
//
// Rows go to "<path>.part". Commit flushes, closes and renames it to path;
// Abort removes it. A reader never sees a half-written file under the final
// name.
type CSVWriter struct {
	mu   sync.Mutex
	path string
	file *os.File
	buf  *bufio.Writer
	csv  *csv.Writer
	rows uint64
	done bool
}

// NewCSVWriter creates the part file and writes the CSV header row.
func NewCSVWriter(path string, bufSizeBytes int, writeHeader bool, header []string) (*CSVWriter, error) {
	f, err := os.Create(path + partSuffix)
	if err != nil {
		return nil, fmt.Errorf("csv create %s: %w", path, err)
	}

	if bufSizeBytes <= 0 {
		bufSizeBytes = 256 * 1024 // 256 KB default
	}

	bw := bufio.NewWriterSize(f, bufSizeBytes)
	cw := csv.NewWriter(bw)

	w := &CSVWriter{
		path: path,
		file: f,
		buf:  bw,
		csv:  cw,
	}

	if writeHeader && len(header) > 0 {
		if err := cw.Write(header); err != nil {
			f.Close()
			os.Remove(path + partSuffix)
			return nil, fmt.Errorf("csv write header: %w", err)
		}
	}

	return w, nil
}

// WriteRow appends a single CSV row. Thread-safe.
func (w *CSVWriter) WriteRow(row []string) {
	w.mu.Lock()
	_ = w.csv.Write(row) // error is buffered; checked on Flush
	w.rows++
	w.mu.Unlock()
}

// WriteRecord appends one model row.
func (w *CSVWriter) WriteRecord(r models.CSVRowWriter) {
	w.WriteRow(r.CSVRow())
}

// Flush pushes the buffered data to the OS and reports any write error
// buffered since the last flush.
func (w *CSVWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *CSVWriter) flushLocked() error {
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("csv write %s: %w", w.path, err)
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("csv flush %s: %w", w.path, err)
	}
	return nil
}

// Commit flushes remaining data, closes the file and moves it to its final
// name.
func (w *CSVWriter) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return fmt.Errorf("csv %s already closed", w.path)
	}
	w.done = true

	if err := w.flushLocked(); err != nil {
		w.file.Close()
		os.Remove(w.path + partSuffix)
		return err
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.path + partSuffix)
		return fmt.Errorf("csv close %s: %w", w.path, err)
	}
	if err := os.Rename(w.path+partSuffix, w.path); err != nil {
		return fmt.Errorf("csv commit %s: %w", w.path, err)
	}
	return nil
}

// Abort discards everything written. Safe to call after Commit, where it is
// a no-op.
func (w *CSVWriter) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	w.done = true
	_ = w.file.Close()
	_ = os.Remove(w.path + partSuffix)
}

// Path returns the final path of the file.
func (w *CSVWriter) Path() string { return w.path }

// Rows returns the number of data rows written (excludes header).
func (w *CSVWriter) Rows() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}
