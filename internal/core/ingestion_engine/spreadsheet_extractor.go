package ingestion_engine

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/markdave123-py/contexta-kb/internal/models"
)

type sheet struct {
	name string
	rows [][]string
}

// extractSpreadsheet renders every sheet as pipe tables of RowGroupSize data
// rows, each block repeating the header so it stands alone after chunking.
func (e *Extractor) extractSpreadsheet(file models.RawFile) (string, error) {
	sheets, err := readSheets(file)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, s := range sheets {
		renderSheet(&b, s, e.cfg.RowGroupSize)
	}
	return strings.TrimSpace(b.String()), nil
}

func readSheets(file models.RawFile) ([]sheet, error) {
	ext := strings.ToLower(filepath.Ext(file.Name))
	if ext == ".csv" || strings.Contains(strings.ToLower(file.MimeType), "csv") {
		r := csv.NewReader(strings.NewReader(readVerbatim(file.Data)))
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		rows, err := r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		return []sheet{{name: strings.TrimSuffix(filepath.Base(file.Name), filepath.Ext(file.Name)), rows: rows}}, nil
	}

	f, err := excelize.OpenReader(bytes.NewReader(file.Data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var out []sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		out = append(out, sheet{name: name, rows: rows})
	}
	return out, nil
}

func renderSheet(b *strings.Builder, s sheet, groupSize int) {
	if groupSize <= 0 {
		groupSize = 20
	}

	rows := make([][]string, 0, len(s.rows))
	width := 0
	for _, row := range s.rows {
		if isBlankRow(row) {
			continue
		}
		rows = append(rows, row)
		width = max(width, len(row))
	}
	if len(rows) == 0 {
		return
	}

	header := tableRow(rows[0], width)
	sep := "|" + strings.Repeat(" --- |", width)
	data := rows[1:]

	if len(data) == 0 {
		fmt.Fprintf(b, "[Sheet: %s]\n%s\n%s\n\n", s.name, header, sep)
		return
	}

	for start := 0; start < len(data); start += groupSize {
		end := min(start+groupSize, len(data))
		fmt.Fprintf(b, "[Sheet: %s (Rows %d-%d)]\n%s\n%s\n", s.name, start+1, end, header, sep)
		for _, row := range data[start:end] {
			b.WriteString(tableRow(row, width))
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
}

var cellReplacer = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ", "\r", " ")

func tableRow(row []string, width int) string {
	cells := make([]string, width)
	for i := range cells {
		if i < len(row) {
			cells[i] = cellReplacer.Replace(strings.TrimSpace(row[i]))
		}
	}
	return "| " + strings.Join(cells, " | ") + " |"
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
