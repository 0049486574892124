// Package manifest loads the pipe-delimited file-mapping table that tells the
// manifest-driven dataset adapters which upstream files to keep and where to
// place them in the canonical layout.
package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"strings"

	"rawbench/internal/services"
)

// Column names recognised in the manifest header.
const (
	ColumnDataset   = "dataset_name"
	ColumnAudioPath = "audio_filepath"
	ColumnOrigPath  = "orig_filepath"
	ColumnFileID    = "file_id"
)

// Separator is the column delimiter of the manifest file.
const Separator = '|'

// Entry maps one upstream file to its canonical location.
type Entry struct {
	Dataset string
	// AudioPath is the canonical path relative to the dataset directory.
	AudioPath string
	// OrigPath is the path inside the upstream archive, when the dataset has one.
	OrigPath string
	// FileID is an opaque identifier some datasets use instead of OrigPath.
	FileID string
	// Line is the 1-based line number in the manifest file.
	Line int
}

// Table is an immutable, loaded manifest.
type Table struct {
	path    string
	entries []Entry
	index   map[string][]int
	order   []string
}

// Load parses the manifest at path. A missing file is reported as
// services.ErrMissingManifest.
func Load(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrMissingManifest, "", "load manifest", path, err)
		}
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer file.Close()

	table, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	table.path = path
	return table, nil
}

// Parse reads a manifest from r. The first row must be a header naming at
// least the dataset_name column.
func Parse(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = Separator
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty manifest")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
	}
	if _, ok := columns[ColumnDataset]; !ok {
		return nil, fmt.Errorf("header is missing %q column", ColumnDataset)
	}

	field := func(record []string, name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	table := &Table{index: make(map[string][]int)}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := reader.FieldPos(0)
		entry := Entry{
			Dataset:   field(record, ColumnDataset),
			AudioPath: field(record, ColumnAudioPath),
			OrigPath:  field(record, ColumnOrigPath),
			FileID:    field(record, ColumnFileID),
			Line:      line,
		}
		if entry.Dataset == "" {
			continue
		}
		if _, seen := table.index[entry.Dataset]; !seen {
			table.order = append(table.order, entry.Dataset)
		}
		table.index[entry.Dataset] = append(table.index[entry.Dataset], len(table.entries))
		table.entries = append(table.entries, entry)
	}
	return table, nil
}

// Path returns the file the table was loaded from, if any.
func (t *Table) Path() string {
	if t == nil {
		return ""
	}
	return t.path
}

// EntriesFor yields the entries of dataset in file order. The sequence can be
// ranged over any number of times.
func (t *Table) EntriesFor(dataset string) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		if t == nil {
			return
		}
		for _, idx := range t.index[dataset] {
			if !yield(t.entries[idx]) {
				return
			}
		}
	}
}

// Count returns the number of entries for dataset.
func (t *Table) Count(dataset string) int {
	if t == nil {
		return 0
	}
	return len(t.index[dataset])
}

// Datasets returns dataset names in order of first appearance.
func (t *Table) Datasets() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.order...)
}

// Len returns the total number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
