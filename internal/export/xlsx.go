// Package export renders dashboard results as spreadsheets.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"nirsvault/internal/dashboard"
)

// ContentType is the MIME type of the xlsx workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const maxSheetName = 31

// WriteXLSX writes res as a workbook. The first sheet holds the result
// table; each sample matrix in it gets its own sheet with one timestamp
// column followed by one column per channel.
func WriteXLSX(w io.Writer, res *dashboard.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	main := sheetName(res.Metric)
	if err := f.SetSheetName("Sheet1", main); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	header := make([]any, len(res.Columns))
	for i, c := range res.Columns {
		header[i] = c
	}
	if err := writeRow(f, main, 1, header); err != nil {
		return err
	}
	if err := f.SetRowStyle(main, 1, 1, bold); err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	matrices := 0
	for i, row := range res.Rows {
		cells := make([]any, len(row))
		var stamps []time.Time
		for _, v := range row {
			if ts, ok := v.([]time.Time); ok {
				stamps = ts
			}
		}
		for j, v := range row {
			m, ok := v.([][]float64)
			if !ok {
				cells[j] = cellValue(v)
				continue
			}
			matrices++
			name := sheetName(fmt.Sprintf("matrix %d", matrices))
			if err := writeMatrix(f, name, m, stamps, bold); err != nil {
				return err
			}
			cells[j] = fmt.Sprintf("%d×%d (sheet %q)", len(m), width(m), name)
		}
		if err := writeRow(f, main, i+2, cells); err != nil {
			return err
		}
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeMatrix(f *excelize.File, sheet string, m [][]float64, stamps []time.Time, style int) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("new sheet %s: %w", sheet, err)
	}
	header := []any{"timestamp"}
	for c := 1; c <= width(m); c++ {
		header = append(header, fmt.Sprintf("channel %d", c))
	}
	if err := writeRow(f, sheet, 1, header); err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, 1, 1, style); err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	for i, samples := range m {
		cells := make([]any, 0, len(samples)+1)
		if i < len(stamps) {
			cells = append(cells, stamps[i])
		} else {
			cells = append(cells, nil)
		}
		for _, s := range samples {
			cells = append(cells, s)
		}
		if err := writeRow(f, sheet, i+2, cells); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("%s row %d: %w", sheet, row, err)
	}
	return nil
}

// cellValue keeps scalars as they are and renders anything else as text.
func cellValue(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int, int64, float64, time.Time:
		return x
	case []string:
		return strings.Join(x, ", ")
	case []time.Time:
		if len(x) == 0 {
			return ""
		}
		return fmt.Sprintf("%s … %s (%d)", x[0].Format(time.RFC3339Nano), x[len(x)-1].Format(time.RFC3339Nano), len(x))
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func width(m [][]float64) int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// sheetName strips the characters Excel rejects and truncates to its limit.
func sheetName(s string) string {
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '_'
		}
		return r
	}, s)
	if s == "" {
		s = "result"
	}
	if r := []rune(s); len(r) > maxSheetName {
		s = string(r[:maxSheetName])
	}
	return s
}
