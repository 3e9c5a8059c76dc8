package spreadsheet

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXReader buffers the first sheet's rows, built on excelize's
// streaming f.Rows iterator, and then emits them in slices.
type XLSXReader struct {
	path string
}

func (r *XLSXReader) load() (*Header, [][]string, error) {
	f, err := excelize.OpenFile(r.path)
	if err != nil {
		return nil, nil, fmt.Errorf("spreadsheet: open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("spreadsheet: workbook has no sheets")
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("spreadsheet: open xlsx rows: %w", err)
	}
	defer rows.Close()

	var header *Header
	var data [][]string
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, nil, fmt.Errorf("spreadsheet: read xlsx row: %w", err)
		}
		if header == nil {
			trimmed := make([]string, len(cols))
			for i, c := range cols {
				trimmed[i] = strings.TrimSpace(c)
			}
			header = &Header{Columns: trimmed}
			continue
		}
		data = append(data, cols)
	}
	if header == nil {
		return nil, nil, fmt.Errorf("spreadsheet: workbook has no header row")
	}
	return header, data, nil
}

func (r *XLSXReader) CountRows() (int, error) {
	_, data, err := r.load()
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

func (r *XLSXReader) ValidateHeader(required []string) ([]string, error) {
	header, _, err := r.load()
	if err != nil {
		return nil, err
	}
	return validateHeader(header, required), nil
}

func (r *XLSXReader) ReadChunks(chunkSize int, fn func(startRow int, rows []Row) error) error {
	header, data, err := r.load()
	if err != nil {
		return err
	}

	for start := 0; start < len(data); start += chunkSize {
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		batch := make([]Row, 0, end-start)
		for _, raw := range data[start:end] {
			batch = append(batch, Row{Header: header, Values: trimRow(header.Columns, raw)})
		}
		if err := fn(start, batch); err != nil {
			return err
		}
	}
	return nil
}
