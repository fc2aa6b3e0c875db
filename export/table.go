package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/KazanKK/supaexport/restapi"
	"github.com/rs/zerolog"
)

const DefaultPageSize = 1000

// Source is the paginated read side of the REST API.
type Source interface {
	FetchPage(ctx context.Context, table string, offset, limit int) (*restapi.Page, error)
}

// TableExporter pulls every row of a table and appends it as INSERT
// statements to a stream.
type TableExporter struct {
	Source   Source
	PageSize int
	Encoder  Encoder
	// Columns pins the column list of a table. Tables not listed get the
	// union of all row keys, ordered by first appearance.
	Columns map[string][]string
	Logger  zerolog.Logger
}

// Export writes the "-- Data for" section of table to w and returns the
// number of rows written. A table without rows writes nothing.
func (x *TableExporter) Export(ctx context.Context, table string, w io.Writer) (int, error) {
	rows, err := x.fetchAll(ctx, table)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		x.Logger.Info().Str("table", table).Msg("no data")
		return 0, nil
	}

	columns := x.columnSet(table, rows)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "-- Data for %s\n", table)
	for i, row := range rows {
		stmt, err := x.Encoder.InsertStatement(table, columns, row.Values)
		if err != nil {
			return 0, fmt.Errorf("encoding row %d of %s: %w", i, table, err)
		}
		buf.WriteString(stmt)
		buf.WriteByte('\n')
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return 0, fmt.Errorf("writing %s: %w", table, err)
	}
	return len(rows), nil
}

func (x *TableExporter) pageSize() int {
	if x.PageSize <= 0 {
		return DefaultPageSize
	}
	return x.PageSize
}

func (x *TableExporter) fetchAll(ctx context.Context, table string) ([]restapi.Row, error) {
	limit := x.pageSize()
	offset := 0
	var rows []restapi.Row

	for {
		page, err := x.Source.FetchPage(ctx, table, offset, limit)
		if errors.Is(err, restapi.ErrNotFound) {
			x.Logger.Warn().Str("table", table).Int("offset", offset).Msg("table vanished during export")
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fetching %s at offset %d: %w", table, offset, err)
		}
		if len(page.Rows) == 0 {
			break
		}

		rows = append(rows, page.Rows...)
		total := "?"
		if page.TotalKnown {
			total = strconv.FormatInt(page.Total, 10)
		}
		x.Logger.Info().Str("table", table).Msgf("fetched %d/%s rows", len(rows), total)

		offset += limit
		if page.TotalKnown && int64(len(rows)) >= page.Total {
			break
		}
	}
	return rows, nil
}

func (x *TableExporter) columnSet(table string, rows []restapi.Row) []string {
	if declared := x.Columns[table]; len(declared) > 0 {
		known := make(map[string]bool, len(declared))
		for _, c := range declared {
			known[c] = true
		}
		var dropped []string
		for _, row := range rows {
			for _, c := range row.Columns {
				if !known[c] {
					known[c] = true
					dropped = append(dropped, c)
				}
			}
		}
		if len(dropped) > 0 {
			x.Logger.Warn().Str("table", table).Strs("columns", dropped).Msg("dropping undeclared columns")
		}
		return declared
	}

	columns := append([]string(nil), rows[0].Columns...)
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		seen[c] = true
	}
	var added []string
	for _, row := range rows[1:] {
		for _, c := range row.Columns {
			if !seen[c] {
				seen[c] = true
				columns = append(columns, c)
				added = append(added, c)
			}
		}
	}
	if len(added) > 0 {
		x.Logger.Warn().Str("table", table).Strs("columns", added).Msg("rows carry columns absent from the first row")
	}
	return columns
}
