package header

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ── Scanner ────────────────────────────────────────────────
// Line index over a header file with an explicit cursor.
// The text is split into lines once; every lookup after that works on the
// index. A Scanner covers a region [start, end) of the index: the whole file,
// or one bracketed section.

// Scanner locates fields and boundary markers in header text.
type Scanner struct {
	lines    []string
	sections map[string]int // "[Name]" → heading line

	start, end int
	pos        int
}

// maxLineSize bounds a single line; raw data rows can be long.
const maxLineSize = 16 * 1024 * 1024

// NewScanner reads r fully and indexes its lines.
func NewScanner(r io.Reader) (*Scanner, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	var lines []string
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan lines: %w", err)
	}
	return newScanner(lines), nil
}

// ScanString indexes text held in memory.
func ScanString(text string) *Scanner {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return newScanner(nil)
	}
	return newScanner(strings.Split(text, "\n"))
}

func newScanner(lines []string) *Scanner {
	s := &Scanner{
		lines:    lines,
		sections: make(map[string]int),
		end:      len(lines),
	}
	for i, line := range lines {
		name, ok := sectionName(line)
		if !ok {
			continue
		}
		if _, dup := s.sections[name]; !dup {
			s.sections[name] = i
		}
	}
	return s
}

// sectionName reports whether line is a "[Name]" heading.
func sectionName(line string) (string, bool) {
	t := strings.TrimSpace(line)
	if len(t) < 3 || t[0] != '[' || t[len(t)-1] != ']' {
		return "", false
	}
	return t[1 : len(t)-1], true
}

// Field returns the text following the first occurrence of name in the lines
// from the cursor to the end of the region, cut at a second occurrence of name
// on the same line. An absent field yields "".
//
// Matching is by substring: "Date" also matches "Date2". Callers pass the
// longest unambiguous name.
func (s *Scanner) Field(name string) string {
	v, _ := s.Lookup(name)
	return v
}

// Lookup is Field with a presence flag.
func (s *Scanner) Lookup(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	for _, line := range s.lines[s.pos:s.end] {
		i := strings.Index(line, name)
		if i < 0 {
			continue
		}
		rest := line[i+len(name):]
		if j := strings.Index(rest, name); j >= 0 {
			rest = rest[:j]
		}
		return rest, true
	}
	return "", false
}

// Seek moves the cursor past the first line at or after it that contains
// marker. It only moves forward. When no line matches, the cursor is left at
// the end of the region and Seek returns false.
func (s *Scanner) Seek(marker string) bool {
	for s.pos < s.end {
		line := s.lines[s.pos]
		s.pos++
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// Rewind moves the cursor back to the start of the region.
func (s *Scanner) Rewind() {
	s.pos = s.start
}

// NextLine returns the line under the cursor and advances.
func (s *Scanner) NextLine() (string, bool) {
	if s.pos >= s.end {
		return "", false
	}
	line := s.lines[s.pos]
	s.pos++
	return line, true
}

// Rest returns the lines from the cursor to the end of the region.
// The slice aliases the index and must not be modified.
func (s *Scanner) Rest() []string {
	return s.lines[s.pos:s.end]
}

// Pos returns the cursor as an index into the file's lines.
func (s *Scanner) Pos() int {
	return s.pos
}

// Len returns the number of lines in the region.
func (s *Scanner) Len() int {
	return s.end - s.start
}

// Section returns a scanner over the lines of the "[name]" section, heading
// excluded, up to the next heading. The lookup goes through the section index.
func (s *Scanner) Section(name string) (*Scanner, bool) {
	head, ok := s.sections[name]
	if !ok || head < s.start || head >= s.end {
		return nil, false
	}
	end := s.end
	for i := head + 1; i < s.end; i++ {
		if _, isHead := sectionName(s.lines[i]); isHead {
			end = i
			break
		}
	}
	return &Scanner{
		lines:    s.lines,
		sections: s.sections,
		start:    head + 1,
		end:      end,
		pos:      head + 1,
	}, true
}

// Sections lists the section names found in the file, in file order.
func (s *Scanner) Sections() []string {
	names := make([]string, 0, len(s.sections))
	for i, line := range s.lines {
		if name, ok := sectionName(line); ok && s.sections[name] == i {
			names = append(names, name)
		}
	}
	return names
}
