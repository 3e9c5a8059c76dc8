package spreadsheet

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/richardlehane/mscfb"
)

// XLSReader extracts cell data from legacy BIFF8 (.xls) compound files
// via a minimal hand-rolled record scan: richardlehane/mscfb walks the
// OLE compound-file directory to locate the "Workbook"/"Book" stream,
// then a forward pass over that stream's BIFF records builds a sparse
// (row, col) -> string grid. There is no chunked decoder for this
// binary format, so the whole stream is read into memory first, the
// same tradeoff as the XLSX reader.
//
// Known limitation: strings split across CONTINUE records and
// multi-sheet workbooks are not handled; the scan takes the first
// contiguous run of cell records it finds, which covers the
// single-sheet generated exports this pipeline is built for.
type XLSReader struct {
	path string
}

const (
	biffBOF        = 0x0809
	biffEOF        = 0x000A
	biffSST        = 0x00FC
	biffLabelSST   = 0x00FD
	biffLabel      = 0x0204
	biffNumber     = 0x0203
	biffRK         = 0x027E
	biffMulRK      = 0x00BD
	biffBoolErr    = 0x0205
)

func (r *XLSReader) workbookStream() ([]byte, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: open xls: %w", err)
	}
	defer f.Close()

	doc, err := mscfb.New(f)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: open compound file: %w", err)
	}
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if entry.Name != "Workbook" && entry.Name != "Book" {
			continue
		}
		buf := make([]byte, entry.Size)
		if _, err := doc.Read(buf); err != nil {
			return nil, fmt.Errorf("spreadsheet: read workbook stream: %w", err)
		}
		return buf, nil
	}
	return nil, fmt.Errorf("spreadsheet: no Workbook stream in %s", r.path)
}

type xlsCell struct {
	row, col int
	value    string
}

func scanBIFF(stream []byte) []xlsCell {
	var sst []string
	var cells []xlsCell

	pos := 0
	for pos+4 <= len(stream) {
		recType := binary.LittleEndian.Uint16(stream[pos : pos+2])
		recLen := binary.LittleEndian.Uint16(stream[pos+2 : pos+4])
		start := pos + 4
		end := start + int(recLen)
		if end > len(stream) {
			break
		}
		data := stream[start:end]

		switch recType {
		case biffSST:
			sst = parseSST(data)
		case biffLabelSST:
			if len(data) >= 10 {
				row := int(binary.LittleEndian.Uint16(data[0:2]))
				col := int(binary.LittleEndian.Uint16(data[2:4]))
				idx := int(binary.LittleEndian.Uint32(data[6:10]))
				val := ""
				if idx >= 0 && idx < len(sst) {
					val = sst[idx]
				}
				cells = append(cells, xlsCell{row, col, val})
			}
		case biffLabel:
			if len(data) >= 6 {
				row := int(binary.LittleEndian.Uint16(data[0:2]))
				col := int(binary.LittleEndian.Uint16(data[2:4]))
				s, _ := parseUnicodeString(data[6:])
				cells = append(cells, xlsCell{row, col, s})
			}
		case biffNumber:
			if len(data) >= 14 {
				row := int(binary.LittleEndian.Uint16(data[0:2]))
				col := int(binary.LittleEndian.Uint16(data[2:4]))
				bits := binary.LittleEndian.Uint64(data[6:14])
				val := math.Float64frombits(bits)
				cells = append(cells, xlsCell{row, col, formatNumber(val)})
			}
		case biffRK:
			if len(data) >= 10 {
				row := int(binary.LittleEndian.Uint16(data[0:2]))
				col := int(binary.LittleEndian.Uint16(data[2:4]))
				rk := binary.LittleEndian.Uint32(data[6:10])
				cells = append(cells, xlsCell{row, col, formatNumber(decodeRK(rk))})
			}
		case biffMulRK:
			if len(data) >= 6 {
				row := int(binary.LittleEndian.Uint16(data[0:2]))
				firstCol := int(binary.LittleEndian.Uint16(data[2:4]))
				body := data[4 : len(data)-2]
				lastCol := int(binary.LittleEndian.Uint16(data[len(data)-2:]))
				col := firstCol
				for off := 0; off+6 <= len(body) && col <= lastCol; off += 6 {
					rk := binary.LittleEndian.Uint32(body[off+2 : off+6])
					cells = append(cells, xlsCell{row, col, formatNumber(decodeRK(rk))})
					col++
				}
			}
		case biffBoolErr:
			if len(data) >= 7 {
				row := int(binary.LittleEndian.Uint16(data[0:2]))
				col := int(binary.LittleEndian.Uint16(data[2:4]))
				val := "FALSE"
				if data[6] != 0 {
					val = "TRUE"
				}
				cells = append(cells, xlsCell{row, col, val})
			}
		case biffEOF:
			// End of a substream: once a sheet has yielded cells, stop so
			// later sheets are not merged into the same grid.
			if len(cells) > 0 {
				return cells
			}
		case biffBOF:
			// substream start; nothing to record.
		}

		pos = end
	}
	return cells
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func decodeRK(rk uint32) float64 {
	isInt := rk&0x2 != 0
	div100 := rk&0x1 != 0

	var val float64
	if isInt {
		val = float64(int32(rk) >> 2)
	} else {
		bits := uint64(rk&0xFFFFFFFC) << 32
		val = math.Float64frombits(bits)
	}
	if div100 {
		val /= 100
	}
	return val
}

// parseUnicodeString decodes a BIFF8 XLUnicodeString (cch, flags,
// [richtext count], [phonetic size], chars, [richtext runs], [phonetic
// data]) starting at data[0]. It returns the decoded text and the
// number of bytes consumed.
func parseUnicodeString(data []byte) (string, int) {
	if len(data) < 3 {
		return "", len(data)
	}
	cch := int(binary.LittleEndian.Uint16(data[0:2]))
	flags := data[2]
	pos := 3

	richCount := 0
	if flags&0x8 != 0 {
		if pos+2 > len(data) {
			return "", pos
		}
		richCount = int(binary.LittleEndian.Uint16(data[pos : pos+2]))
		pos += 2
	}
	phoneticSize := 0
	if flags&0x4 != 0 {
		if pos+4 > len(data) {
			return "", pos
		}
		phoneticSize = int(binary.LittleEndian.Uint32(data[pos : pos+4]))
		pos += 4
	}

	var sb strings.Builder
	if flags&0x1 != 0 {
		// uncompressed: UTF-16LE, 2 bytes/char
		for i := 0; i < cch && pos+2 <= len(data); i++ {
			sb.WriteRune(rune(binary.LittleEndian.Uint16(data[pos : pos+2])))
			pos += 2
		}
	} else {
		for i := 0; i < cch && pos < len(data); i++ {
			sb.WriteRune(rune(data[pos]))
			pos++
		}
	}
	pos += richCount * 4
	pos += phoneticSize
	return sb.String(), pos
}

func parseSST(data []byte) []string {
	if len(data) < 8 {
		return nil
	}
	unique := int(binary.LittleEndian.Uint32(data[4:8]))
	pos := 8
	out := make([]string, 0, unique)
	for i := 0; i < unique && pos < len(data); i++ {
		s, consumed := parseUnicodeString(data[pos:])
		if consumed <= 0 {
			break
		}
		out = append(out, s)
		pos += consumed
	}
	return out
}

func (r *XLSReader) grid() (*Header, [][]string, error) {
	stream, err := r.workbookStream()
	if err != nil {
		return nil, nil, err
	}
	cells := scanBIFF(stream)
	if len(cells) == 0 {
		return nil, nil, fmt.Errorf("spreadsheet: no cell data found in xls workbook")
	}

	rowSet := map[int]bool{}
	maxCol := 0
	for _, c := range cells {
		rowSet[c.row] = true
		if c.col > maxCol {
			maxCol = c.col
		}
	}
	rows := make([]int, 0, len(rowSet))
	for r := range rowSet {
		rows = append(rows, r)
	}
	sort.Ints(rows)
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("spreadsheet: no rows found in xls workbook")
	}

	grid := make(map[int][]string, len(rows))
	for _, rowIdx := range rows {
		grid[rowIdx] = make([]string, maxCol+1)
	}
	for _, c := range cells {
		grid[c.row][c.col] = c.value
	}

	header := &Header{Columns: grid[rows[0]]}
	for i := range header.Columns {
		header.Columns[i] = strings.TrimSpace(header.Columns[i])
	}
	data := make([][]string, 0, len(rows)-1)
	for _, rowIdx := range rows[1:] {
		data = append(data, grid[rowIdx])
	}
	return header, data, nil
}

func (r *XLSReader) CountRows() (int, error) {
	_, data, err := r.grid()
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

func (r *XLSReader) ValidateHeader(required []string) ([]string, error) {
	header, _, err := r.grid()
	if err != nil {
		return nil, err
	}
	return validateHeader(header, required), nil
}

func (r *XLSReader) ReadChunks(chunkSize int, fn func(startRow int, rows []Row) error) error {
	header, data, err := r.grid()
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
