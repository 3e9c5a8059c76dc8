package spreadsheet

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSVReader streams a CSV file incrementally: chunks are produced as
// bytes are read, rather than buffering the whole file.
type CSVReader struct {
	path string
}

func (r *CSVReader) openWithHeader() (*os.File, *csv.Reader, *Header, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("spreadsheet: open csv: %w", err)
	}
	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cols, err := cr.Read()
	if err != nil {
		f.Close()
		return nil, nil, nil, fmt.Errorf("spreadsheet: read csv header: %w", err)
	}
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	return f, cr, &Header{Columns: cols}, nil
}

func (r *CSVReader) CountRows() (int, error) {
	f, cr, _, err := r.openWithHeader()
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	for {
		_, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("spreadsheet: count csv rows: %w", err)
		}
		count++
	}
	return count, nil
}

func (r *CSVReader) ValidateHeader(required []string) ([]string, error) {
	f, _, header, err := r.openWithHeader()
	if err != nil {
		return nil, err
	}
	f.Close()
	return validateHeader(header, required), nil
}

func (r *CSVReader) ReadChunks(chunkSize int, fn func(startRow int, rows []Row) error) error {
	f, cr, header, err := r.openWithHeader()
	if err != nil {
		return err
	}
	defer f.Close()

	var batch []Row
	rowNum := 0
	startRow := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("spreadsheet: read csv row %d: %w", rowNum, err)
		}
		batch = append(batch, Row{Header: header, Values: trimRow(header.Columns, record)})
		rowNum++
		if len(batch) >= chunkSize {
			if err := fn(startRow, batch); err != nil {
				return err
			}
			startRow = rowNum
			batch = nil
		}
	}
	if len(batch) > 0 {
		if err := fn(startRow, batch); err != nil {
			return err
		}
	}
	return nil
}
