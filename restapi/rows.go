package restapi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row is one record returned by the REST API. Columns holds the keys in the
// order they appeared in the JSON object.
type Row struct {
	Columns []string
	Values  map[string]any
}

// Get returns the value for col and whether the row carries that column.
func (r Row) Get(col string) (any, bool) {
	v, ok := r.Values[col]
	return v, ok
}

// DecodeRows parses a JSON array of objects, keeping per-object key order.
// Numbers are decoded as json.Number so their text form is preserved.
// A literal null body decodes to no rows.
func DecodeRows(data []byte) ([]Row, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if tok == nil {
		return nil, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("expected a JSON array, got %v", tok)
	}

	var rows []Row
	for dec.More() {
		row, err := decodeRow(dec)
		if err != nil {
			return nil, fmt.Errorf("decoding row %d: %w", len(rows), err)
		}
		rows = append(rows, row)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("reading end of array: %w", err)
	}
	return rows, nil
}

func decodeRow(dec *json.Decoder) (Row, error) {
	tok, err := dec.Token()
	if err != nil {
		return Row{}, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return Row{}, fmt.Errorf("expected a JSON object, got %v", tok)
	}

	row := Row{Values: make(map[string]any)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Row{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Row{}, fmt.Errorf("expected an object key, got %v", tok)
		}

		var v any
		if err := dec.Decode(&v); err != nil {
			return Row{}, fmt.Errorf("decoding column %s: %w", key, err)
		}
		if _, dup := row.Values[key]; !dup {
			row.Columns = append(row.Columns, key)
		}
		row.Values[key] = v
	}
	if _, err := dec.Token(); err != nil {
		return Row{}, err
	}
	return row, nil
}
