package header

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"nirsvault/internal/apperr"
)

// ArrayTerminator ends an embedded array block.
const ArrayTerminator = "#"

var errArrayMissing = errors.New("array header token not found")

// ReadArray seeks the line holding token, then reads the following
// tab-separated rows until a line containing the terminator. The terminator
// line is not part of the array. Blank lines are skipped.
//
// A missing token is MalformedHeaderField; running out of lines before the
// terminator is ArrayTerminatorNotFound. Both are fatal for the file: the
// array's extent cannot be guessed.
func (s *Scanner) ReadArray(token string) ([][]float64, error) {
	if !s.Seek(token) {
		return nil, apperr.MalformedHeaderField(token, errArrayMissing)
	}

	rows := [][]float64{}
	width := -1
	for {
		line, ok := s.NextLine()
		if !ok {
			return nil, apperr.ArrayTerminatorNotFound(token)
		}
		if strings.Contains(line, ArrayTerminator) {
			return rows, nil
		}
		line = strings.TrimRight(line, " \t")
		if line == "" {
			continue
		}
		row, err := parseArrayRow(line)
		if err != nil {
			return nil, apperr.MalformedHeaderField(token, err)
		}
		if width < 0 {
			width = len(row)
		} else if len(row) != width {
			return nil, apperr.MalformedHeaderField(token,
				fmt.Errorf("row %d has %d cells, want %d", len(rows)+1, len(row), width))
		}
		rows = append(rows, row)
	}
}

func parseArrayRow(line string) ([]float64, error) {
	cells := strings.Split(line, "\t")
	row := make([]float64, len(cells))
	for i, c := range cells {
		v, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", i+1, err)
		}
		row[i] = v
	}
	return row, nil
}
