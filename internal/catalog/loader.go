package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Column names required in the catalog source header. Column order does not
// matter; lookup is header-based.
const (
	ColumnID          = "id"
	ColumnName        = "name"
	ColumnDuration    = "duration"
	ColumnTestType    = "test_type"
	ColumnAdaptive    = "adaptive_support"
	ColumnRemote      = "remote_support"
	ColumnURL         = "url"
	ColumnDescription = "description"
)

var requiredColumns = []string{
	ColumnID,
	ColumnName,
	ColumnDuration,
	ColumnTestType,
	ColumnAdaptive,
	ColumnRemote,
	ColumnURL,
	ColumnDescription,
}

// MalformedCatalogError reports a defect in the catalog source. Load aborts
// on the first defect; running with a partial catalog is never allowed.
type MalformedCatalogError struct {
	Row    int
	Field  string
	Reason string
}

func (e *MalformedCatalogError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("malformed catalog: header: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("malformed catalog: row %d: %s: %s", e.Row, e.Field, e.Reason)
}

// Load parses a tabular catalog source into typed records. The first row is
// the header; absence of a required column is fatal.
func Load(r io.Reader) (Records, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &MalformedCatalogError{Field: "header", Reason: "catalog source is empty"}
		}
		return nil, fmt.Errorf("reading catalog header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, &MalformedCatalogError{Field: name, Reason: "required column is missing"}
		}
	}

	var records Records
	seen := make(map[string]int)
	row := 1
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading catalog row %d: %w", row, err)
		}

		rec, err := parseRecord(columns, fields, row)
		if err != nil {
			return nil, err
		}

		if prev, ok := seen[rec.ID]; ok {
			return nil, &MalformedCatalogError{
				Row:    row,
				Field:  ColumnID,
				Reason: fmt.Sprintf("duplicate identifier %q (first seen at row %d)", rec.ID, prev),
			}
		}
		seen[rec.ID] = row

		records = append(records, rec)
		row++
	}

	if len(records) == 0 {
		return nil, &MalformedCatalogError{Row: 1, Field: ColumnID, Reason: "catalog has no records"}
	}

	return records, nil
}

func parseRecord(columns map[string]int, fields []string, row int) (*AssessmentRecord, error) {
	get := func(name string) (string, error) {
		idx := columns[name]
		if idx >= len(fields) {
			return "", &MalformedCatalogError{Row: row, Field: name, Reason: "field is missing"}
		}
		return strings.TrimSpace(fields[idx]), nil
	}

	require := func(name string) (string, error) {
		v, err := get(name)
		if err != nil {
			return "", err
		}
		if v == "" {
			return "", &MalformedCatalogError{Row: row, Field: name, Reason: "field is empty"}
		}
		return v, nil
	}

	id, err := require(ColumnID)
	if err != nil {
		return nil, err
	}
	name, err := require(ColumnName)
	if err != nil {
		return nil, err
	}
	description, err := require(ColumnDescription)
	if err != nil {
		return nil, err
	}
	url, err := require(ColumnURL)
	if err != nil {
		return nil, err
	}
	testType, err := require(ColumnTestType)
	if err != nil {
		return nil, err
	}

	durationRaw, err := require(ColumnDuration)
	if err != nil {
		return nil, err
	}
	duration, err := strconv.Atoi(durationRaw)
	if err != nil || duration < 0 {
		return nil, &MalformedCatalogError{
			Row:    row,
			Field:  ColumnDuration,
			Reason: fmt.Sprintf("expected non-negative minutes, got %q", durationRaw),
		}
	}

	adaptive, err := parseFlag(columns, fields, ColumnAdaptive, row)
	if err != nil {
		return nil, err
	}
	remote, err := parseFlag(columns, fields, ColumnRemote, row)
	if err != nil {
		return nil, err
	}

	return &AssessmentRecord{
		ID:              id,
		Name:            name,
		DurationMinutes: duration,
		TestType:        testType,
		Adaptive:        adaptive,
		RemoteTesting:   remote,
		URL:             url,
		Description:     description,
	}, nil
}

func parseFlag(columns map[string]int, fields []string, name string, row int) (bool, error) {
	idx := columns[name]
	if idx >= len(fields) {
		return false, &MalformedCatalogError{Row: row, Field: name, Reason: "field is missing"}
	}
	switch strings.ToLower(strings.TrimSpace(fields[idx])) {
	case "yes", "true", "y", "1":
		return true, nil
	case "no", "false", "n", "0", "":
		return false, nil
	default:
		return false, &MalformedCatalogError{
			Row:    row,
			Field:  name,
			Reason: fmt.Sprintf("expected yes/no flag, got %q", fields[idx]),
		}
	}
}
