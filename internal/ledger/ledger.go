// Package ledger maintains the append-only attendance log. The CSV layout
// (header Name,Time,Date, field order, upper-cased names) is a compatibility
// contract for downstream consumers; rows are never rewritten or reordered.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"
)

// Outcome reports what Record did with an attendance event.
type Outcome string

const (
	Appended Outcome = "appended"
	Skipped  Outcome = "skipped"
)

const (
	timeLayout = "15:04:05"
	dateLayout = "2006-01-02"
)

var header = []string{"Name", "Time", "Date"}

// Record is one attendance row as stored in the file.
type Record struct {
	Name string `json:"name"`
	Time string `json:"time"` // HH:MM:SS
	Date string `json:"date"` // YYYY-MM-DD
}

// Ledger appends attendance records to a CSV file. All writes go through a
// single mutex so concurrent appends can never interleave partial rows.
type Ledger struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *csv.Writer
	// seen guards against duplicate (name, date) rows within this process.
	// Cross-restart duplicates are allowed: the file is append-only with no
	// read-before-write index.
	seen map[string]struct{}
}

// Open opens (or creates) the attendance file at path. A new or zero-length
// file gets the header row; a non-empty file must already carry it.
func Open(path string) (*Ledger, error) {
	info, statErr := os.Stat(path)
	create := errors.Is(statErr, fs.ErrNotExist)
	if statErr != nil && !create {
		return nil, fmt.Errorf("stat attendance file: %w", statErr)
	}
	if !create && info.Size() == 0 {
		create = true
	}

	if !create {
		if err := validateHeader(path); err != nil {
			return nil, err
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("opening attendance file: %w", err)
	}

	l := &Ledger{
		path: path,
		f:    f,
		w:    csv.NewWriter(f),
		seen: make(map[string]struct{}),
	}

	if create {
		if err := l.writeRow(header); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("writing attendance header: %w", err)
		}
	}

	return l, nil
}

func validateHeader(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("opening attendance file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	row, err := r.Read()
	if errors.Is(err, io.EOF) {
		// Non-empty file (blank lines only) with no header row.
		return fmt.Errorf("attendance file %s has no header", path)
	}
	if err != nil {
		return fmt.Errorf("reading attendance header: %w", err)
	}
	if len(row) != len(header) || row[0] != header[0] || row[1] != header[1] || row[2] != header[2] {
		return fmt.Errorf("attendance file %s has unexpected header %v", path, row)
	}
	return nil
}

// Record appends one attendance row for name at instant t. A (name, date)
// pair already appended by this process is Skipped. The row is durable once
// Record returns without error.
func (l *Ledger) Record(name string, t time.Time) (Outcome, error) {
	upper := strings.ToUpper(name)
	date := t.Format(dateLayout)
	dayKey := upper + "\x00" + date

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[dayKey]; ok {
		return Skipped, nil
	}

	if err := l.writeRow([]string{upper, t.Format(timeLayout), date}); err != nil {
		return Skipped, fmt.Errorf("appending attendance row for %s: %w", upper, err)
	}
	l.seen[dayKey] = struct{}{}
	return Appended, nil
}

// writeRow writes and flushes a single CSV row. Callers hold l.mu.
func (l *Ledger) writeRow(row []string) error {
	if err := l.w.Write(row); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

// Records reads all rows currently in the file, in append order. Safe to
// call while the ledger is open for writing: rows are only ever appended.
func (l *Ledger) Records() ([]Record, error) {
	return ReadRecords(l.path)
}

// Today returns the records whose date matches now.
func (l *Ledger) Today(now time.Time) ([]Record, error) {
	all, err := l.Records()
	if err != nil {
		return nil, err
	}
	date := now.Format(dateLayout)
	var out []Record
	for _, r := range all {
		if r.Date == date {
			out = append(out, r)
		}
	}
	return out, nil
}

// Path returns the attendance file path.
func (l *Ledger) Path() string {
	return l.path
}

// Close closes the underlying file. Further Record calls will fail.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		_ = l.f.Close()
		return err
	}
	return l.f.Close()
}

// ReadRecords reads an attendance file without opening it for writing.
func ReadRecords(path string) ([]Record, error) {
	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("opening attendance file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading attendance file: %w", err)
	}

	var records []Record
	for i, row := range rows {
		if i == 0 && row[0] == header[0] {
			continue
		}
		records = append(records, Record{Name: row[0], Time: row[1], Date: row[2]})
	}
	return records, nil
}
