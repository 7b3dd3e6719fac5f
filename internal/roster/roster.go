// Package roster loads the externally supplied contact roster. The roster
// is read-only input: records keep whatever fields the file carries.
package roster

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"callsheet/internal/domain"
)

// Load reads a roster file by extension: .csv or .json.
func Load(path string) ([]domain.Record, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path)
	case ".json":
		return LoadJSON(path)
	default:
		return nil, fmt.Errorf("unsupported roster format %q (want .csv or .json)", filepath.Ext(path))
	}
}

// LoadCSV reads a headered CSV file; the header row names the fields and
// every value stays a string.
func LoadCSV(path string) ([]domain.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read roster csv %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	header := rows[0]
	records := make([]domain.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := domain.Record{}
		for i, field := range header {
			if i < len(row) {
				rec[field] = row[i]
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// LoadJSON reads a JSON array of objects.
func LoadJSON(path string) ([]domain.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var records []domain.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse roster json %s: %w", path, err)
	}
	return records, nil
}

// MissingIDCount reports how many records lack a durable identity field
// (idField, or "id" when empty). Those contacts fall back to positional
// identity, which silently reassigns ids if roster content or ordering
// ever changes.
func MissingIDCount(records []domain.Record, idField string) int {
	if idField == "" {
		idField = "id"
	}
	n := 0
	for _, r := range records {
		if v, ok := r[idField]; !ok || v == nil || fmt.Sprint(v) == "" {
			n++
		}
	}
	return n
}
